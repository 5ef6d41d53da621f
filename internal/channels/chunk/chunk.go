// Package chunk splits outbound text into platform-sized messages.
package chunk

import "unicode/utf8"

// SlackLimit is Slack's per-message text limit.
const SlackLimit = 4000

// DefaultLimit leaves headroom under SlackLimit for mrkdwn expansion.
const DefaultLimit = 3900

// Split cuts text into consecutive pieces of at most limit characters.
// Concatenating the pieces yields text exactly: nothing is trimmed, dropped,
// or repeated, and a multi-byte character is never divided.
func Split(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	chunks := make([]string, 0, utf8.RuneCountInString(text)/limit+1)
	start, count := 0, 0
	for i := range text {
		if count == limit {
			chunks = append(chunks, text[start:i])
			start, count = i, 0
		}
		count++
	}
	return append(chunks, text[start:])
}
