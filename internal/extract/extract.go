// Package extract pulls the structured result record out of Claude CLI output.
//
// When the CLI runs under a pseudo-terminal its stdout mixes cursor movement,
// color codes and progress redraws with exactly one JSON line carrying the
// result. Extract strips the terminal noise and scans for that line, falling
// back to the cleaned text when no record parses.
package extract

import (
	"encoding/json"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// resultMarker must appear on a line before it is considered a result record.
const resultMarker = `"result"`

// Output is what Extract recovered from a finished run.
type Output struct {
	// Text is the record's result field, or the whole cleaned output when no
	// record was found.
	Text string
	// Token is the record's session_id; empty when absent.
	Token string
	// Structured reports whether a record was parsed.
	Structured bool
	// IsError mirrors the record's is_error flag.
	IsError bool
	// CostUSD and DurationMS are informational and only set for records.
	CostUSD    float64
	DurationMS int64
}

// record is the subset of the CLI's --output-format json payload we read.
type record struct {
	Type       string  `json:"type"`
	Subtype    string  `json:"subtype"`
	IsError    bool    `json:"is_error"`
	Result     string  `json:"result"`
	SessionID  string  `json:"session_id"`
	CostUSD    float64 `json:"total_cost_usd"`
	DurationMS int64   `json:"duration_ms"`
}

// Extract never fails: malformed candidate lines are skipped and output
// without any record degrades to plain text.
func Extract(raw []byte) Output {
	cleaned := Clean(raw)

	for _, line := range strings.Split(cleaned, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") || !strings.Contains(line, resultMarker) {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		return Output{
			Text:       rec.Result,
			Token:      rec.SessionID,
			Structured: true,
			IsError:    rec.IsError,
			CostUSD:    rec.CostUSD,
			DurationMS: rec.DurationMS,
		}
	}

	return Output{Text: cleaned}
}

// Clean removes terminal escape sequences and surrounding whitespace.
func Clean(raw []byte) string {
	return strings.TrimSpace(ansi.Strip(string(raw)))
}
