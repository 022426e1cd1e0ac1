package download

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// ephemeralParams are query parameters that change between requests for the
// same content: timestamps, tokens, signatures, and session identifiers.
// They are stripped before hashing so that volatile URLs still dedup.
var ephemeralParams = map[string]struct{}{
	"timestamp":  {},
	"ts":         {},
	"time":       {},
	"t":          {},
	"token":      {},
	"signature":  {},
	"sig":        {},
	"expires":    {},
	"expiry":     {},
	"expire":     {},
	"session":    {},
	"session_id": {},
	"sessionid":  {},
	"key":        {},
	"nonce":      {},
}

// NormalizeURL canonicalizes a source URL for deduplication: ephemeral
// query parameters are dropped, the remainder sorted, and the fragment
// discarded. Two URLs differing only in ephemeral parameters normalize to
// the same string.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("unparseable url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	query := u.Query()
	for param := range query {
		if _, ok := ephemeralParams[strings.ToLower(param)]; ok {
			query.Del(param)
		}
	}

	// url.Values.Encode sorts by key, which makes parameter order
	// irrelevant to the hash.
	u.RawQuery = query.Encode()

	return u.String(), nil
}

// ContentHash returns the dedup key for a source URL: the hex sha256 digest
// of its normalized form.
func ContentHash(raw string) (string, error) {
	normalized, err := NormalizeURL(raw)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(normalized))

	return hex.EncodeToString(sum[:]), nil
}
