// Package archive turns a downloaded resource into a stream over the
// geo targets table, unpacking it first when it is a zip archive.
package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geotargets-cli/internal/geoerr"
)

// Kind names a table source variant.
type Kind string

// Table source variants.
const (
	KindArchived Kind = "archived"
	KindFlat     Kind = "flat"
)

const tableExt = ".csv"

var zipMagic = []byte("PK\x03\x04")

// TableSource opens a stream over table bytes. Callers must close the
// returned reader.
type TableSource interface {
	Open() (io.ReadCloser, error)
	Kind() Kind
}

// Archived is a zip file holding the table as one of its entries.
type Archived struct {
	Path string
}

// Kind implements TableSource.
func (Archived) Kind() Kind { return KindArchived }

// Open returns the first non-directory entry whose name ends in .csv.
// Closing the reader releases both the entry and the archive.
func (a Archived) Open() (io.ReadCloser, error) {
	zr, err := zip.OpenReader(a.Path)
	if err != nil {
		return nil, geoerr.Archive(geoerr.ReasonOpenFailed, eris.Wrapf(err, "archive: open %s", a.Path))
	}

	entry := findTableEntry(zr.File)
	if entry == nil {
		_ = zr.Close()
		return nil, geoerr.Archive(geoerr.ReasonNoTableFound,
			eris.Errorf("archive: no %s entry in %s", tableExt, a.Path))
	}

	rc, err := entry.Open()
	if err != nil {
		_ = zr.Close()
		return nil, geoerr.Archive(geoerr.ReasonEntryOpenFailed,
			eris.Wrapf(err, "archive: open entry %s", entry.Name))
	}
	return &entryReader{ReadCloser: rc, archive: zr, name: entry.Name}, nil
}

func findTableEntry(files []*zip.File) *zip.File {
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		if strings.EqualFold(path.Ext(f.Name), tableExt) {
			return f
		}
	}
	return nil
}

// entryReader classifies decompression failures and closes the entry and
// then its archive.
type entryReader struct {
	io.ReadCloser
	archive *zip.ReadCloser
	name    string
}

// Name is the archive entry the stream reads from.
func (r *entryReader) Name() string { return r.name }

func (r *entryReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if err != nil && err != io.EOF {
		err = geoerr.Archive(geoerr.ReasonExtractFailed, eris.Wrapf(err, "archive: read entry %s", r.name))
	}
	return n, err
}

func (r *entryReader) Close() error {
	entryErr := r.ReadCloser.Close()
	archiveErr := r.archive.Close()
	if entryErr != nil {
		return eris.Wrap(entryErr, "archive: close entry")
	}
	if archiveErr != nil {
		return eris.Wrap(archiveErr, "archive: close archive")
	}
	return nil
}

// Flat is an uncompressed table file.
type Flat struct {
	Path string
}

// Kind implements TableSource.
func (Flat) Kind() Kind { return KindFlat }

// Open returns the file itself.
func (f Flat) Open() (io.ReadCloser, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, geoerr.IO(geoerr.ReasonOpenFailed, eris.Wrapf(err, "archive: open %s", f.Path))
	}
	return file, nil
}

// Detect picks the source variant for the resource at p. A .zip name or a
// zip local file header at the start of the file selects Archived.
func Detect(p string) TableSource {
	if strings.EqualFold(filepath.Ext(p), ".zip") || hasZipMagic(p) {
		return Archived{Path: p}
	}
	return Flat{Path: p}
}

func hasZipMagic(p string) bool {
	f, err := os.Open(p)
	if err != nil {
		return false
	}
	defer f.Close() //nolint:errcheck

	head := make([]byte, len(zipMagic))
	if _, err := io.ReadFull(f, head); err != nil {
		return false
	}
	return bytes.Equal(head, zipMagic)
}

// OpenTableStream detects the resource type and opens its table stream.
func OpenTableStream(p string) (io.ReadCloser, TableSource, error) {
	src := Detect(p)
	rc, err := src.Open()
	if err != nil {
		return nil, src, err
	}
	return rc, src, nil
}
