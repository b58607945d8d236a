// Package tabular parses comma-delimited text into header-keyed rows.
//
// Parsing is positional: cells are split on every comma with no quoting
// rules, which is what the forecast endpoints emit. Bad rows are logged and
// skipped or truncated, never fatal.
package tabular

import (
	"strings"

	"github.com/rs/zerolog"
)

// Row maps a trimmed header name to a trimmed cell value. Cells missing from
// a short row are absent from the map.
type Row map[string]string

// Get returns the cell for header, trimmed.
func (r Row) Get(header string) (string, bool) {
	v, ok := r[header]
	return v, ok
}

// Parser converts raw tables to rows.
type Parser struct {
	logger zerolog.Logger
}

// NewParser creates a parser that logs malformed rows to logger.
func NewParser(logger zerolog.Logger) *Parser {
	return &Parser{logger: logger}
}

// Parse splits raw into rows keyed by the first line's headers.
func (p *Parser) Parse(raw string) []Row {
	lines := splitLines(raw)
	if len(lines) == 0 {
		return nil
	}

	headers := splitCells(lines[0])
	rows := make([]Row, 0, len(lines)-1)

	for i, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}

		cells := splitCells(line)
		if len(cells) > len(headers) {
			p.logger.Debug().
				Int("line", i+2).
				Int("cells", len(cells)).
				Int("headers", len(headers)).
				Msg("dropping cells beyond header width")
			cells = cells[:len(headers)]
		}

		row := make(Row, len(cells))
		for j, cell := range cells {
			if headers[j] == "" {
				continue
			}
			row[headers[j]] = cell
		}
		rows = append(rows, row)
	}

	return rows
}

// Headers returns the trimmed header names of raw.
func Headers(raw string) []string {
	lines := splitLines(raw)
	if len(lines) == 0 {
		return nil
	}
	return splitCells(lines[0])
}

func splitLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.TrimLeft(raw, "\n")
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, "\n")
}

func splitCells(line string) []string {
	cells := strings.Split(line, ",")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}
