package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"

	"github.com/hazyhaar/bullhorn/internal/surface"
)

const (
	urlIdentityPrefix   = "url:"
	titleIdentityPrefix = "title:"
)

// Identity derives the stable cross-run identity for an announcement.
//
// A detail URL is preferred: normalised so cosmetic variants (fragment,
// query order, trailing slash) map onto one identity, and since Sakai
// embeds the message id in the path, recurring same-title posts stay
// distinct. Without any URL the identity falls back to a hash of the
// normalised title; two distinct unlinked announcements with identical
// titles collide there, which is accepted — the panel links every real
// announcement it lists, so the fallback is rare. The prefixes keep the
// two namespaces from ever colliding with each other.
func Identity(detailURL, title string) string {
	if detailURL != "" {
		return urlIdentityPrefix + normalizeDetailURL(detailURL)
	}
	return titleIdentityPrefix + titleKey(title)
}

func titleKey(title string) string {
	sum := sha256.Sum256([]byte(surface.NormaliseTitle(title)))
	return hex.EncodeToString(sum[:])[:16]
}

// normalizeDetailURL canonicalises an http(s) URL for identity comparison:
// lowercase scheme and host, default port stripped, fragment removed,
// trailing slash dropped, query keys sorted. Anything unparseable or
// non-http comes back unchanged — a stable raw string still dedups
// against itself.
func normalizeDetailURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return raw
	}
	if parsed.Host == "" {
		return raw
	}

	parsed.Scheme = scheme
	parsed.Host = strings.ToLower(parsed.Host)
	switch {
	case scheme == "http" && strings.HasSuffix(parsed.Host, ":80"):
		parsed.Host = strings.TrimSuffix(parsed.Host, ":80")
	case scheme == "https" && strings.HasSuffix(parsed.Host, ":443"):
		parsed.Host = strings.TrimSuffix(parsed.Host, ":443")
	}

	parsed.Fragment = ""
	parsed.Path = strings.TrimRight(parsed.Path, "/")

	if parsed.RawQuery != "" {
		params := parsed.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf strings.Builder
		for i, k := range keys {
			vals := params[k]
			sort.Strings(vals)
			for j, v := range vals {
				if i > 0 || j > 0 {
					buf.WriteByte('&')
				}
				buf.WriteString(url.QueryEscape(k))
				buf.WriteByte('=')
				buf.WriteString(url.QueryEscape(v))
			}
		}
		parsed.RawQuery = buf.String()
	}

	return parsed.String()
}
