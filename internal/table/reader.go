package table

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geotargets-cli/internal/geoerr"
	"github.com/sells-group/geotargets-cli/internal/model"
)

// Reader answers point lookups against a table file. Every call re-opens
// and streams the file, so a replaced table is picked up immediately.
type Reader struct {
	path string
}

// NewReader returns a Reader for the table at path.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// Path returns the table path.
func (r *Reader) Path() string {
	return r.path
}

// FindByID returns the first row whose criteria_id equals id exactly.
// It returns nil, nil when no row matches.
func (r *Reader) FindByID(id string) (*model.Record, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, geoerr.IO(geoerr.ReasonNotFound, eris.Wrapf(err, "table: %s not found", r.path))
		}
		return nil, geoerr.IO(geoerr.ReasonOpenFailed, eris.Wrapf(err, "table: stat %s", r.path))
	}
	if info.IsDir() {
		return nil, geoerr.IO(geoerr.ReasonNotFound, eris.Errorf("table: %s is a directory", r.path))
	}

	f, err := os.Open(r.path)
	if err != nil {
		return nil, geoerr.IO(geoerr.ReasonOpenFailed, eris.Wrapf(err, "table: open %s", r.path))
	}
	defer f.Close() //nolint:errcheck

	reader := newCSVReader(f)
	reader.ReuseRecord = true

	// Header.
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, geoerr.IO(geoerr.ReasonReadFailed, eris.Wrap(err, "table: read header"))
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, geoerr.IO(geoerr.ReasonReadFailed, eris.Wrap(err, "table: read row"))
		}
		if len(row) > 0 && row[model.ColCriteriaID] == id {
			rec := model.RecordFromRow(row)
			return &rec, nil
		}
	}
}
