package mirror

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// newTestGCS creates a GCS publisher pointed at a test server.
func newTestGCS(t *testing.T, handler http.Handler, cfg GCSConfig) *GCS {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() }) //nolint:errcheck

	g, err := NewGCS(client, cfg)
	require.NoError(t, err)
	return g
}

func writeTable(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "geotargets.csv")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestNewGCS_Validation(t *testing.T) {
	_, err := NewGCS(nil, GCSConfig{Bucket: "b"})
	assert.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close() //nolint:errcheck

	_, err = NewGCS(client, GCSConfig{Bucket: "  "})
	assert.Error(t, err)
}

func TestGCS_ObjectName(t *testing.T) {
	g := &GCS{cfg: GCSConfig{Bucket: "b", ObjectPrefix: "/geotargets/"}}
	assert.Equal(t, "geotargets/geotargets.csv", g.ObjectName("/data/geotargets.csv"))

	g.cfg.ObjectPrefix = ""
	assert.Equal(t, "geotargets.csv", g.ObjectName("/data/geotargets.csv"))
}

func TestGCS_Publish(t *testing.T) {
	const body = "Criteria ID,Name\n2276,Germany\n"

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/geo-bucket/o")
		assert.Equal(t, "tables/geotargets.csv", r.URL.Query().Get("name"))

		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(data), body)
		assert.Contains(t, string(data), "text/csv")

		fmt.Fprintln(w, `{"name":"tables/geotargets.csv","bucket":"geo-bucket"}`)
	})

	g := newTestGCS(t, handler, GCSConfig{Bucket: "geo-bucket", ObjectPrefix: "tables"})
	uri, err := g.Publish(context.Background(), writeTable(t, body))
	require.NoError(t, err)
	assert.Equal(t, "gs://geo-bucket/tables/geotargets.csv", uri)
}

func TestGCS_Publish_ServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	g := newTestGCS(t, handler, GCSConfig{Bucket: "geo-bucket"})
	_, err := g.Publish(context.Background(), writeTable(t, "x"))
	require.Error(t, err)
}

func TestGCS_Publish_MissingFile(t *testing.T) {
	g := &GCS{cfg: GCSConfig{Bucket: "geo-bucket"}}
	_, err := g.Publish(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mirror: open")
}
