// Package fetcher retrieves the publisher page and the geo targets resource
// over HTTP or FTP.
package fetcher

import (
	"context"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geotargets-cli/internal/geoerr"
)

// Defaults applied by New.
const (
	DefaultUserAgent        = "geotargets-updater/1.0"
	DefaultPageTimeout      = 15 * time.Second
	DefaultResourceTimeout  = 120 * time.Second
	DefaultMinResourceBytes = 100_000
)

// Options configures the Client.
type Options struct {
	UserAgent         string
	PageTimeout       time.Duration
	ResourceTimeout   time.Duration
	MinResourceBytes  int64
	RequestsPerSecond float64
}

// Client fetches pages and resources. Resources with an ftp:// URL go
// through the FTP fetcher, everything else through HTTP.
type Client struct {
	opts Options
	http *HTTPFetcher
	ftp  *FTPFetcher
}

// New creates a Client with the given options.
func New(opts Options) *Client {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.PageTimeout == 0 {
		opts.PageTimeout = DefaultPageTimeout
	}
	if opts.ResourceTimeout == 0 {
		opts.ResourceTimeout = DefaultResourceTimeout
	}
	if opts.MinResourceBytes == 0 {
		opts.MinResourceBytes = DefaultMinResourceBytes
	}
	return &Client{
		opts: opts,
		http: NewHTTPFetcher(HTTPOptions{
			UserAgent:         opts.UserAgent,
			RequestsPerSecond: opts.RequestsPerSecond,
		}),
		ftp: NewFTPFetcher(FTPOptions{Timeout: opts.ResourceTimeout}),
	}
}

// FetchPage returns the page body decoded to UTF-8.
func (c *Client) FetchPage(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.PageTimeout)
	defer cancel()
	return c.http.Page(ctx, rawURL)
}

// FetchResource downloads rawURL to path and returns the byte count. A
// download smaller than MinResourceBytes is removed and reported as
// too_small, which usually means an error page was served instead.
func (c *Client) FetchResource(ctx context.Context, rawURL, path string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ResourceTimeout)
	defer cancel()

	var (
		n   int64
		err error
	)
	if isFTP(rawURL) {
		n, err = c.ftp.DownloadToFile(ctx, rawURL, path)
	} else {
		n, err = c.http.DownloadToFile(ctx, rawURL, path)
	}
	if err != nil {
		_ = os.Remove(path)
		return n, err
	}

	if n < c.opts.MinResourceBytes {
		if rmErr := os.Remove(path); rmErr != nil {
			zap.L().Warn("fetcher: remove undersized download",
				zap.String("path", path), zap.Error(rmErr))
		}
		return n, geoerr.Fetch(geoerr.ReasonTooSmall,
			eris.Errorf("fetcher: %s returned %d bytes, want at least %d", rawURL, n, c.opts.MinResourceBytes))
	}
	return n, nil
}

func isFTP(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, "ftp")
}
