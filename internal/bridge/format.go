package bridge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/haasonsaas/claudebridge/internal/channels/chunk"
	"github.com/haasonsaas/claudebridge/internal/claude"
	"github.com/haasonsaas/claudebridge/internal/markdown"
)

// StripMentions removes every user mention marker and trims the rest.
func StripMentions(text string) string {
	return strings.TrimSpace(mentionMarker.ReplaceAllString(text, ""))
}

// FormatReply converts CLI markdown to Slack mrkdwn. Empty output becomes
// EmptyResultText so there is always something to post.
func FormatReply(text string, opts Options) string {
	formatted := markdown.Convert(text, markdown.Options{Tables: opts.Tables})
	if strings.TrimSpace(formatted) == "" {
		return EmptyResultText
	}
	return formatted
}

// SplitReply cuts text into ordered messages of at most size characters.
func SplitReply(text string, size int) []string {
	return chunk.Split(text, size)
}

// ErrorMessage renders the thread notice for a failed turn:
// ":warning: Error (<kind>): <message>".
func ErrorMessage(err error) string {
	kind := claude.KindOf(err)
	if kind == "" {
		kind = claude.KindInternal
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	var processErr *claude.ProcessError
	if errors.As(err, &processErr) && processErr.Stderr != "" && !strings.Contains(msg, processErr.Stderr) {
		msg += ": " + processErr.Stderr
	}
	return fmt.Sprintf(":warning: Error (%s): %s", kind, msg)
}
