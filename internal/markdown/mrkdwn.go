// Package markdown converts the CLI's GitHub-flavored markdown into Slack
// mrkdwn.
package markdown

import (
	"regexp"
	"strings"
)

var (
	heading  = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+)$`)
	bold     = regexp.MustCompile(`\*\*(.+?)\*\*`)
	link     = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	listItem = regexp.MustCompile(`(?m)^([ \t]*)-[ \t]+`)
)

// Options controls the conversion.
type Options struct {
	Tables TableMode
}

// Convert rewrites headings as bold lines, **bold** as *bold*, [text](url) as
// <url|text>, and "- " list markers as bullets. Lines inside ``` fences,
// including the fences ConvertTables adds, are left as they are. It is a pure
// function.
func Convert(text string, opts Options) string {
	text = ConvertTables(text, opts.Tables)

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	var prose []string
	flush := func() {
		if len(prose) > 0 {
			out = append(out, strings.Split(rewrite(strings.Join(prose, "\n")), "\n")...)
			prose = prose[:0]
		}
	}
	inFence := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			flush()
			inFence = !inFence
			out = append(out, line)
			continue
		}
		if inFence {
			out = append(out, line)
			continue
		}
		prose = append(prose, line)
	}
	flush()
	return strings.Join(out, "\n")
}

func rewrite(text string) string {
	text = heading.ReplaceAllString(text, "*${1}*")
	text = bold.ReplaceAllString(text, "*${1}*")
	text = link.ReplaceAllString(text, "<${2}|${1}>")
	text = listItem.ReplaceAllString(text, "${1}• ")
	return text
}
