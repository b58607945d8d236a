package aeronet

import (
	"bytes"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/aqforecast/aqforecast/internal/forecast"
	"github.com/aqforecast/aqforecast/internal/tabular"
)

// Column names with a fixed meaning.
const (
	ColStation  = "Station"
	ColSiteName = "Site_Name"
	ColDate     = "UTC_DATE"
)

// TextContent returns the concatenated text of an HTML document, excluding
// script and style elements. Plain text passes through unchanged.
func TextContent(page []byte) (string, error) {
	z := html.NewTokenizer(bytes.NewReader(page))

	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return "", err
			}
			return b.String(), nil
		case html.StartTagToken:
			if name, _ := z.TagName(); isRawText(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isRawText(name) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isRawText(tag []byte) bool {
	s := string(tag)
	return s == "script" || s == "style"
}

// SkipLines drops the first n lines of text.
func SkipLines(text string, n int) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if n >= len(lines) {
		return ""
	}
	return strings.Join(lines[n:], "\n")
}

// RowsToRecords converts parsed rows to records. Rows without a site name
// or a parseable date are counted as skipped. Every other column whose cell
// is numeric becomes a reading field.
func RowsToRecords(rows []tabular.Row) ([]forecast.Record, int) {
	records := make([]forecast.Record, 0, len(rows))
	skipped := 0

	for _, row := range rows {
		site, _ := row.Get(ColSiteName)
		rawDate, _ := row.Get(ColDate)
		date, err := forecast.ParseDate(rawDate)
		if site == "" || err != nil {
			skipped++
			continue
		}
		station, _ := row.Get(ColStation)

		fields := make(map[string]float64, len(row))
		for name, cell := range row {
			if name == ColSiteName || name == ColDate || name == ColStation {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			fields[name] = v
		}

		records = append(records, forecast.Record{Reading: &forecast.Reading{
			Station:  station,
			SiteName: site,
			Date:     date,
			Fields:   fields,
		}})
	}
	return records, skipped
}
