// Package resource derives stable local identifiers from resource URLs.
package resource

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/SysdataSpA/Docker/pkg/errors"
	"github.com/SysdataSpA/Docker/pkg/model"
)

// Key derives the content-address for a URL string. It is a pure function:
// the same input always yields the same key, across processes.
func Key(urlString string) model.ResourceKey {
	sum := sha256.Sum256([]byte(urlString))
	return model.ResourceKey(hex.EncodeToString(sum[:]))
}

// EncodeURL percent-escapes a URL string so it can be used as a request
// target. Encoding is idempotent: url.Parse keeps a valid pre-escaped path
// verbatim, so re-encoding never doubles up, and characters that are legal
// in a path (a literal '+' among them) pass through untouched.
func EncodeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.ErrInvalidURL
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", errors.Wrapf(errors.ErrInvalidURL, "cannot parse %q", raw)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.Wrapf(errors.ErrInvalidURL, "missing scheme or host in %q", raw)
	}
	if u.RawQuery != "" {
		// The query is canonicalized through its form encoding, where
		// '+' and '%20' are the same character.
		if q, err := url.ParseQuery(u.RawQuery); err == nil {
			u.RawQuery = q.Encode()
		}
	}
	return u.String(), nil
}

// NormalizedKey encodes the URL and derives its key in one step.
func NormalizedKey(raw string) (model.ResourceKey, string, error) {
	encoded, err := EncodeURL(raw)
	if err != nil {
		return "", "", err
	}
	return Key(encoded), encoded, nil
}
