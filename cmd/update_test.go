//go:build !integration

package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geotargets-cli/internal/config"
	"github.com/sells-group/geotargets-cli/internal/geoerr"
)

// newSourceServer serves a publisher page linking to /files/geotargets.csv.
func newSourceServer(t *testing.T, page string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(page))
	})
	mux.HandleFunc("/files/geotargets.csv", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testTable))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setupUpdateEnv(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	dir := setupWorkdir(t)
	t.Setenv("GEOTARGETS_SOURCE_ORIGIN", srv.URL)
	t.Setenv("GEOTARGETS_SOURCE_MIN_RESOURCE_BYTES", "10")
	t.Setenv("GEOTARGETS_SOURCE_REQUESTS_PER_SECOND", "0")
	t.Setenv("GEOTARGETS_TABLE_TEMP_DIR", t.TempDir())
	return dir
}

func TestUpdate_Success(t *testing.T) {
	srv := newSourceServer(t, `<a href="/files/geotargets.csv">download</a>`)
	dir := setupUpdateEnv(t, srv)
	out := filepath.Join(dir, "out")

	code, stdout, stderr := run(t, "update", "--source", srv.URL+"/page", "--dir", out, "--country", "at")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "Saved table to: "+filepath.Join(out, "geotargets.csv")+"\n", stdout)

	data, err := os.ReadFile(filepath.Join(out, "geotargets.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Vienna")
	assert.NotContains(t, string(data), "Germany")
	assert.FileExists(t, filepath.Join(out, "last_update.txt"))
}

func TestUpdate_NoLink(t *testing.T) {
	srv := newSourceServer(t, `<p>maintenance</p>`)
	dir := setupUpdateEnv(t, srv)

	code, stdout, stderr := run(t, "update", "--source", srv.URL+"/page", "--dir", filepath.Join(dir, "out"))
	assert.Equal(t, geoerr.ExitParse, code)
	assert.Empty(t, stdout)
	assert.True(t, strings.HasPrefix(stderr, "Update failed: "), stderr)
	assert.NoFileExists(t, filepath.Join(dir, "out", "geotargets.csv"))
}

func TestUpdate_PageNotFound(t *testing.T) {
	srv := newSourceServer(t, "")
	dir := setupUpdateEnv(t, srv)

	code, _, stderr := run(t, "update", "--source", srv.URL+"/missing", "--dir", filepath.Join(dir, "out"))
	assert.Equal(t, geoerr.ExitFetch, code)
	assert.Contains(t, stderr, "404")
}

func TestApplyUpdateFlags(t *testing.T) {
	resetFlags()
	t.Cleanup(resetFlags)

	c := &config.Config{}
	c.Table.Dir = "data"
	c.Table.Country = "DE"
	updateFilename = "geo.csv"
	updateCountry = " fr "
	updateSource = "https://example.com/page"

	applyUpdateFlags(c)
	assert.Equal(t, "data", c.Table.Dir)
	assert.Equal(t, "geo.csv", c.Table.Filename)
	assert.Equal(t, "FR", c.Table.Country)
	assert.Equal(t, "https://example.com/page", c.Source.PageURL)
}
