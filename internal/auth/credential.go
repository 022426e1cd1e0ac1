package auth

import (
	"regexp"
	"time"
)

const (
	// TokenTTL is how long the service honors a credential after issue.
	TokenTTL = time.Hour

	// SafetyMargin is how far before expiry a credential stops being reused.
	// A token inside the margin triggers re-acquisition instead.
	SafetyMargin = 30 * time.Minute

	// TokenLength is the fixed credential length the service issues.
	TokenLength = 28
)

var tokenShape = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Credential is a short-lived authorization token for the remote service.
type Credential struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Valid reports whether the credential can still be used, applying the
// safety margin so a token is never presented close to its expiry.
func (c *Credential) Valid() bool {
	if c == nil || c.Token == "" {
		return false
	}

	return time.Now().Before(c.ExpiresAt.Add(-SafetyMargin))
}

// ValidShape reports whether a candidate token matches the shape the
// service issues: exactly TokenLength characters of [a-zA-Z0-9_-].
// Every acquisition strategy must validate its result with this before
// handing it to callers.
func ValidShape(token string) bool {
	if len(token) != TokenLength {
		return false
	}

	return tokenShape.MatchString(token)
}
