// Package mirror publishes a refreshed table to object storage.
package mirror

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/rotisserie/eris"
)

// Publisher copies the table file at localPath somewhere durable and
// returns the location it was written to.
type Publisher interface {
	Publish(ctx context.Context, localPath string) (string, error)
}

// GCSConfig captures the destination bucket and object prefix.
type GCSConfig struct {
	Bucket       string
	ObjectPrefix string
}

// GCS publishes tables to a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	cfg    GCSConfig
}

// NewGCS creates a GCS publisher.
func NewGCS(client *storage.Client, cfg GCSConfig) (*GCS, error) {
	if client == nil {
		return nil, eris.New("mirror: storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, eris.New("mirror: bucket name is required")
	}
	return &GCS{client: client, cfg: cfg}, nil
}

// ObjectName returns the object name used for localPath.
func (g *GCS) ObjectName(localPath string) string {
	name := filepath.Base(localPath)
	prefix := strings.Trim(g.cfg.ObjectPrefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Publish uploads localPath as text/csv and returns its gs:// URI.
func (g *GCS) Publish(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", eris.Wrapf(err, "mirror: open %s", localPath)
	}
	defer f.Close() //nolint:errcheck

	object := g.ObjectName(localPath)
	w := g.client.Bucket(g.cfg.Bucket).Object(object).NewWriter(ctx)
	w.ContentType = "text/csv"

	if _, err := io.Copy(w, f); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return "", eris.Wrapf(err, "mirror: copy object (close writer: %v)", closeErr)
		}
		return "", eris.Wrap(err, "mirror: copy object")
	}
	if err := w.Close(); err != nil {
		return "", eris.Wrap(err, "mirror: close writer")
	}
	return fmt.Sprintf("gs://%s/%s", g.cfg.Bucket, object), nil
}
