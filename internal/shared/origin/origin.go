// Package origin canonicalizes URLs to scheme://host[:port] strings, the
// grouping key for stored credentials and whitelist entries.
package origin

import (
	"fmt"
	"net/url"
	"strings"
)

// FromURL derives the canonical origin for a URL. Default ports are not
// stripped: the origin keeps whatever port the URL carried, matching how
// pages themselves report their location.
func FromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q has no scheme or host", rawURL)
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), nil
}

// Hostname returns the lowercased hostname of a URL, without port. Used for
// whitelist checks, which are host-granular rather than origin-granular.
func Hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
