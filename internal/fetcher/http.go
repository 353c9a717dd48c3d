package fetcher

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"

	"github.com/sells-group/geotargets-cli/internal/geoerr"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	// RequestsPerSecond spaces requests to the same host. Zero disables it.
	RequestsPerSecond float64
}

// HTTPFetcher issues single-attempt GET requests. Timeouts come from the
// caller's context.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client:   &http.Client{Transport: transport},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (f *HTTPFetcher) limiterFor(rawURL string) *rate.Limiter {
	if f.opts.RequestsPerSecond <= 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[u.Host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(f.opts.RequestsPerSecond), 1)
		f.limiters[u.Host] = lim
	}
	return lim
}

// get performs the request and returns the response for a 2xx status.
func (f *HTTPFetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, geoerr.Fetch(geoerr.ReasonTransport, eris.Wrapf(err, "fetcher: create request for %q", rawURL))
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	if lim := f.limiterFor(rawURL); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, geoerr.FetchFromTransport(eris.Wrap(err, "fetcher: rate limiter wait"))
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, geoerr.FetchFromTransport(eris.Wrapf(err, "fetcher: get %s", rawURL))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, geoerr.FetchStatus(resp.StatusCode,
			eris.Errorf("fetcher: unexpected status %d from %s", resp.StatusCode, rawURL))
	}
	return resp, nil
}

// Page fetches rawURL and returns its body as UTF-8 text.
func (f *HTTPFetcher) Page(ctx context.Context, rawURL string) (string, error) {
	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", geoerr.FetchFromTransport(eris.Wrapf(err, "fetcher: read page %s", rawURL))
	}

	text, err := decodeCharset(body, resp.Header.Get("Content-Type"))
	if err != nil {
		zap.L().Warn("fetcher: page charset decode failed, using raw bytes",
			zap.String("url", rawURL), zap.Error(err))
		return string(body), nil
	}
	return text, nil
}

// DownloadToFile streams rawURL to path. Returns bytes written.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL, path string) (int64, error) {
	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close() //nolint:errcheck

	file, err := os.Create(path)
	if err != nil {
		return 0, geoerr.IO(geoerr.ReasonWriteFailed, eris.Wrap(err, "fetcher: create file"))
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, resp.Body)
	if err != nil {
		return n, geoerr.FetchFromTransport(eris.Wrapf(err, "fetcher: download %s", rawURL))
	}
	if err := file.Close(); err != nil {
		return n, geoerr.IO(geoerr.ReasonWriteFailed, eris.Wrap(err, "fetcher: close file"))
	}
	return n, nil
}

// decodeCharset converts body to UTF-8 using the charset parameter of
// contentType. Bodies without a declared charset are returned as-is.
func decodeCharset(body []byte, contentType string) (string, error) {
	if contentType == "" {
		return string(body), nil
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return string(body), nil
	}
	charset := strings.ToLower(strings.TrimSpace(params["charset"]))
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return string(body), nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: unsupported charset %q", charset)
	}
	out, err := io.ReadAll(enc.NewDecoder().Reader(bytes.NewReader(body)))
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: decode %s", charset)
	}
	return string(out), nil
}
