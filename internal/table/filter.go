package table

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geotargets-cli/internal/model"
)

// FilterStats summarizes a CopyFiltered call. Rows and Kept count data rows
// and are only populated when a country filter is applied.
type FilterStats struct {
	Bytes int64
	Rows  int
	Kept  int
}

// CopyFiltered copies the table in src to dst. With an empty country the
// bytes are copied unchanged. Otherwise the header is kept and only rows
// whose country_code matches (case-insensitively) are written.
func CopyFiltered(dst io.Writer, src io.Reader, country string) (FilterStats, error) {
	var stats FilterStats

	country = NormalizeCountry(country)
	if country == "" {
		n, err := io.Copy(dst, src)
		stats.Bytes = n
		if err != nil {
			return stats, eris.Wrap(err, "table: copy")
		}
		return stats, nil
	}

	cw := &countingWriter{w: dst}
	reader := newCSVReader(src)
	writer := csv.NewWriter(cw)

	header, err := reader.Read()
	if err == io.EOF {
		return stats, nil
	}
	if err != nil {
		return stats, eris.Wrap(err, "table: read header")
	}
	if err := writer.Write(header); err != nil {
		return stats, eris.Wrap(err, "table: write header")
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, eris.Wrapf(err, "table: read row %d", stats.Rows+1)
		}
		stats.Rows++
		if len(row) <= model.ColCountryCode {
			continue
		}
		if strings.ToUpper(row[model.ColCountryCode]) != country {
			continue
		}
		if err := writer.Write(row); err != nil {
			return stats, eris.Wrap(err, "table: write row")
		}
		stats.Kept++
	}

	writer.Flush()
	stats.Bytes = cw.n
	if err := writer.Error(); err != nil {
		return stats, eris.Wrap(err, "table: flush")
	}
	return stats, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
