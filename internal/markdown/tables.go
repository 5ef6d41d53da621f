package markdown

import (
	"regexp"
	"strings"
)

// TableMode specifies how markdown tables are rewritten.
type TableMode string

const (
	// TableModeOff leaves tables unchanged.
	TableModeOff TableMode = "off"
	// TableModeBullets turns each row into a "Header: value" bullet.
	TableModeBullets TableMode = "bullets"
	// TableModeCode fences the table so column alignment survives.
	TableModeCode TableMode = "code"
)

// ParseTableMode parses mode, returning fallback for unknown values.
func ParseTableMode(mode string, fallback TableMode) TableMode {
	switch m := TableMode(strings.ToLower(strings.TrimSpace(mode))); m {
	case TableModeOff, TableModeBullets, TableModeCode:
		return m
	default:
		return fallback
	}
}

// IsValidTableMode reports whether mode names a known table mode.
func IsValidTableMode(mode string) bool {
	return ParseTableMode(mode, "") != ""
}

var (
	tableRow       = regexp.MustCompile(`^\s*\|(.+)\|\s*$`)
	tableSeparator = regexp.MustCompile(`^\s*\|[\s\-:|]+\|\s*$`)
)

// table is a header row, a separator, and at least one data row, located by
// line range within the source text.
type table struct {
	headers    []string
	rows       [][]string
	start, end int // line indexes, end exclusive
}

// ConvertTables rewrites every table in text according to mode.
func ConvertTables(text string, mode TableMode) string {
	if mode == TableModeOff || mode == "" || !strings.Contains(text, "|") {
		return text
	}

	lines := strings.Split(text, "\n")
	tables := findTables(lines)
	if len(tables) == 0 {
		return text
	}

	out := make([]string, 0, len(lines)+2*len(tables))
	next := 0
	for _, tbl := range tables {
		out = append(out, lines[next:tbl.start]...)
		switch mode {
		case TableModeCode:
			out = append(out, "```")
			out = append(out, lines[tbl.start:tbl.end]...)
			out = append(out, "```")
		case TableModeBullets:
			out = append(out, tbl.bullets()...)
		}
		next = tbl.end
	}
	out = append(out, lines[next:]...)
	return strings.Join(out, "\n")
}

// HasTables reports whether text contains a markdown table.
func HasTables(text string) bool {
	return len(findTables(strings.Split(text, "\n"))) > 0
}

func findTables(lines []string) []table {
	var tables []table
	for i := 0; i+2 < len(lines); i++ {
		if !tableRow.MatchString(lines[i]) || !tableSeparator.MatchString(lines[i+1]) {
			continue
		}
		tbl := table{headers: splitCells(lines[i]), start: i}
		end := i + 2
		for end < len(lines) && tableRow.MatchString(lines[end]) {
			tbl.rows = append(tbl.rows, splitCells(lines[end]))
			end++
		}
		if len(tbl.rows) == 0 {
			continue
		}
		tbl.end = end
		tables = append(tables, tbl)
		i = end - 1
	}
	return tables
}

func splitCells(row string) []string {
	row = strings.TrimSpace(row)
	row = strings.TrimSuffix(strings.TrimPrefix(row, "|"), "|")
	cells := strings.Split(row, "|")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

func (t table) bullets() []string {
	lines := make([]string, 0, len(t.rows))
	for _, row := range t.rows {
		var parts []string
		for i, cell := range row {
			if cell == "" {
				continue
			}
			if i < len(t.headers) && t.headers[i] != "" {
				cell = t.headers[i] + ": " + cell
			}
			parts = append(parts, cell)
		}
		if len(parts) > 0 {
			lines = append(lines, "• "+strings.Join(parts, " | "))
		}
	}
	return lines
}
