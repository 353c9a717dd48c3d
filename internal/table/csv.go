// Package table reads and filters the geo targets CSV table.
package table

import (
	"encoding/csv"
	"io"
	"strings"
)

// newCSVReader returns a reader that tolerates ragged rows and stray quotes.
func newCSVReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader
}

// NormalizeCountry trims and uppercases a country filter code.
func NormalizeCountry(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
