// Package source locates the geo targets download link on the publisher page.
package source

import (
	"html"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// Defaults for the publisher page.
const (
	DefaultPageURL = "https://developers.google.com/google-ads/api/data/geotargets"
	DefaultOrigin  = "https://developers.google.com"
)

// downloadLinkRe matches the first href whose target mentions geotargets
// and ends in .zip or .csv. Double and single quoted values are accepted.
var downloadLinkRe = regexp.MustCompile(
	`(?i)href\s*=\s*(?:"([^"]*geotargets[^"]*\.(?:zip|csv))"|'([^']*geotargets[^']*\.(?:zip|csv))')`,
)

// ExtractDownloadURL returns the first geotargets download link in page,
// with HTML entities decoded.
func ExtractDownloadURL(page string) (string, bool) {
	m := downloadLinkRe.FindStringSubmatch(page)
	if m == nil {
		return "", false
	}
	link := m[1]
	if link == "" {
		link = m[2]
	}
	return html.UnescapeString(link), true
}

// Resolve completes a relative link against origin. Absolute links are
// returned unchanged.
func Resolve(origin, link string) (string, error) {
	ref, err := url.Parse(link)
	if err != nil {
		return "", eris.Wrapf(err, "source: parse link %q", link)
	}
	if ref.IsAbs() {
		return link, nil
	}
	base, err := url.Parse(origin)
	if err != nil {
		return "", eris.Wrapf(err, "source: parse origin %q", origin)
	}
	if base.Path == "" {
		base.Path = "/"
	}
	return base.ResolveReference(ref).String(), nil
}

// Extension returns the lowercased file extension of the URL path without
// the dot, or "" when there is none.
func Extension(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	return strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
}

