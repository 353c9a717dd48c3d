// Package updater refreshes the local geo targets table from the
// publisher page.
package updater

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geotargets-cli/internal/archive"
	"github.com/sells-group/geotargets-cli/internal/geoerr"
	"github.com/sells-group/geotargets-cli/internal/metrics"
	"github.com/sells-group/geotargets-cli/internal/mirror"
	"github.com/sells-group/geotargets-cli/internal/source"
	"github.com/sells-group/geotargets-cli/internal/table"
)

// Defaults applied by New.
const (
	DefaultFilename   = "geotargets.csv"
	MarkerFilename    = "last_update.txt"
	MarkerTimeLayout  = "2006-01-02 15:04:05"
	downloadSubdir    = "geo_update"
	downloadPrefix    = "geotargets_download-"
	fallbackExtension = "dat"
)

// Fetcher retrieves the publisher page and the linked resource.
type Fetcher interface {
	FetchPage(ctx context.Context, url string) (string, error)
	FetchResource(ctx context.Context, url, path string) (int64, error)
}

// Options configures an Updater.
type Options struct {
	SourcePageURL string
	Origin        string
	TargetDir     string
	Filename      string
	Country       string
	// TempDir holds downloads; the OS temp dir when empty.
	TempDir string
	Now     func() time.Time
}

// Option configures optional Updater collaborators.
type Option func(*Updater)

// WithPublisher mirrors each refreshed table through p.
func WithPublisher(p mirror.Publisher) Option {
	return func(u *Updater) {
		u.publisher = p
	}
}

// Request overrides Options for a single run. Empty fields fall back to
// the Updater's options.
type Request struct {
	SourcePageURL string
	Country       string
}

// Result describes a completed run.
type Result struct {
	Path       string
	RunID      string
	Source     string
	Kind       archive.Kind
	Downloaded int64
	Bytes      int64
	Rows       int
	Kept       int
	MirrorURI  string
}

// Updater runs the page → download → extract → filter → write pipeline.
// Runs are serialized.
type Updater struct {
	fetcher   Fetcher
	opts      Options
	publisher mirror.Publisher

	mu sync.Mutex
}

// New creates an Updater.
func New(f Fetcher, opts Options, options ...Option) *Updater {
	if opts.SourcePageURL == "" {
		opts.SourcePageURL = source.DefaultPageURL
	}
	if opts.Origin == "" {
		opts.Origin = source.DefaultOrigin
	}
	if opts.Filename == "" {
		opts.Filename = DefaultFilename
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Country = table.NormalizeCountry(opts.Country)

	u := &Updater{fetcher: f, opts: opts}
	for _, o := range options {
		o(u)
	}
	return u
}

// TablePath is the final location of the table.
func (u *Updater) TablePath() string {
	return filepath.Join(u.opts.TargetDir, u.opts.Filename)
}

// MarkerPath is the location of the last-updated marker.
func (u *Updater) MarkerPath() string {
	return filepath.Join(u.opts.TargetDir, MarkerFilename)
}

// Run refreshes the table. On any failure the previous table, if there
// was one, is left as it was.
func (u *Updater) Run(ctx context.Context, req Request) (Result, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	start := time.Now()
	res := Result{Path: u.TablePath(), RunID: uuid.New().String()}
	log := zap.L().With(
		zap.String("component", "updater"),
		zap.String("run_id", res.RunID),
	)

	err := u.run(ctx, req, &res, log)

	outcome := metrics.ResultSuccess
	if err != nil {
		outcome = metrics.ResultError
		log.Error("update failed",
			zap.String("kind", string(geoerr.KindOf(err))),
			zap.String("reason", geoerr.ReasonOf(err)),
			zap.Error(err))
	}
	metrics.ObserveUpdate(outcome, time.Since(start))
	return res, err
}

func (u *Updater) run(ctx context.Context, req Request, res *Result, log *zap.Logger) error {
	pageURL := req.SourcePageURL
	if pageURL == "" {
		pageURL = u.opts.SourcePageURL
	}
	country := table.NormalizeCountry(req.Country)
	if country == "" {
		country = u.opts.Country
	}

	if err := os.MkdirAll(u.opts.TargetDir, 0o755); err != nil {
		return geoerr.IO(geoerr.ReasonMkdirFailed, eris.Wrapf(err, "updater: create target dir %s", u.opts.TargetDir))
	}

	page, err := u.fetcher.FetchPage(ctx, pageURL)
	if err != nil {
		return err
	}
	log.Info("source page fetched", zap.String("url", pageURL), zap.Int("bytes", len(page)))

	link, ok := source.ExtractDownloadURL(page)
	if !ok {
		return geoerr.Parse(geoerr.ReasonNoLinkFound, eris.Errorf("updater: no download link on %s", pageURL))
	}
	resourceURL, err := source.Resolve(u.opts.Origin, link)
	if err != nil {
		return geoerr.Parse(geoerr.ReasonNoLinkFound, err)
	}
	res.Source = resourceURL
	log.Info("download link found", zap.String("url", resourceURL))

	download, err := u.downloadPath(resourceURL)
	if err != nil {
		return err
	}
	defer removeBestEffort(download, log)

	n, err := u.fetcher.FetchResource(ctx, resourceURL, download)
	if err != nil {
		return err
	}
	res.Downloaded = n
	log.Info("resource downloaded", zap.String("path", download), zap.Int64("bytes", n))

	stats, kind, err := u.writeTable(log, download, country)
	res.Kind = kind
	if err != nil {
		return err
	}
	res.Bytes, res.Rows, res.Kept = stats.Bytes, stats.Rows, stats.Kept
	if country != "" {
		metrics.SetTableRows("read", stats.Rows)
		metrics.SetTableRows("kept", stats.Kept)
	}
	log.Info("table written",
		zap.String("path", res.Path),
		zap.String("source_kind", string(kind)),
		zap.String("country", country),
		zap.Int64("bytes", stats.Bytes),
		zap.Int("rows", stats.Rows),
		zap.Int("kept", stats.Kept))

	u.writeMarker(log)

	if u.publisher != nil {
		uri, err := u.publisher.Publish(ctx, res.Path)
		if err != nil {
			log.Warn("mirror publish failed", zap.Error(err))
		} else {
			res.MirrorURI = uri
			log.Info("table mirrored", zap.String("uri", uri))
		}
	}
	return nil
}

// downloadPath returns a unique temp path for the resource, creating the
// download directory.
func (u *Updater) downloadPath(resourceURL string) (string, error) {
	dir := filepath.Join(u.opts.TempDir, downloadSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", geoerr.IO(geoerr.ReasonMkdirFailed, eris.Wrapf(err, "updater: create download dir %s", dir))
	}
	ext := source.Extension(resourceURL)
	if ext == "" {
		ext = fallbackExtension
	}
	return filepath.Join(dir, downloadPrefix+uuid.New().String()+"."+ext), nil
}

// writeTable streams the table out of download into a temp file next to
// the final path, then renames it into place.
func (u *Updater) writeTable(log *zap.Logger, download, country string) (table.FilterStats, archive.Kind, error) {
	var stats table.FilterStats

	rc, src, err := archive.OpenTableStream(download)
	if err != nil {
		return stats, src.Kind(), err
	}
	defer rc.Close() //nolint:errcheck
	if entry, ok := rc.(interface{ Name() string }); ok {
		log.Info("table entry opened", zap.String("entry", entry.Name()))
	}

	tmp, err := os.CreateTemp(u.opts.TargetDir, "."+u.opts.Filename+".tmp-*")
	if err != nil {
		return stats, src.Kind(), geoerr.IO(geoerr.ReasonOpenFailed, eris.Wrap(err, "updater: create temp table"))
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	stats, err = table.CopyFiltered(tmp, rc, country)
	if err != nil {
		// Archive read failures arrive classified; the rest are local file errors.
		if geoerr.KindOf(err) == "" {
			err = geoerr.IO(geoerr.ReasonWriteFailed, err)
		}
		return stats, src.Kind(), err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return stats, src.Kind(), geoerr.IO(geoerr.ReasonWriteFailed, eris.Wrap(err, "updater: chmod temp table"))
	}
	if err := tmp.Sync(); err != nil {
		return stats, src.Kind(), geoerr.IO(geoerr.ReasonWriteFailed, eris.Wrap(err, "updater: sync temp table"))
	}
	if err := tmp.Close(); err != nil {
		return stats, src.Kind(), geoerr.IO(geoerr.ReasonWriteFailed, eris.Wrap(err, "updater: close temp table"))
	}
	if err := os.Rename(tmpPath, u.TablePath()); err != nil {
		return stats, src.Kind(), geoerr.IO(geoerr.ReasonWriteFailed, eris.Wrap(err, "updater: replace table"))
	}
	committed = true
	return stats, src.Kind(), nil
}

func (u *Updater) writeMarker(log *zap.Logger) {
	stamp := u.opts.Now().Format(MarkerTimeLayout)
	if err := os.WriteFile(u.MarkerPath(), []byte(stamp), 0o644); err != nil {
		log.Warn("marker write failed", zap.String("path", u.MarkerPath()), zap.Error(err))
		return
	}
	log.Info("marker written", zap.String("path", u.MarkerPath()), zap.String("at", stamp))
}

func removeBestEffort(path string, log *zap.Logger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("temp cleanup failed", zap.String("path", path), zap.Error(err))
	}
}
