// ABOUTME: Shared-secret extraction and constant-time verification for S2S callers.
// ABOUTME: Accepts the legacy x-warden-secret header or an Authorization bearer token.

package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// SecretHeader is the legacy header trusted sibling services send.
const SecretHeader = "x-warden-secret"

var (
	// ErrNotConfigured indicates the facade has no shared secret set. This is
	// a server misconfiguration, never a caller failure.
	ErrNotConfigured = errors.New("s2s shared secret is not configured")

	// ErrUnauthorized covers every caller-side authentication failure.
	// Responses built from it carry a uniform body.
	ErrUnauthorized = errors.New("access denied")
)

// ExtractSecret pulls the caller-supplied secret from the legacy header or,
// failing that, from an Authorization bearer token. Returns "" if neither
// is present.
func ExtractSecret(r *http.Request) string {
	if secret := r.Header.Get(SecretHeader); secret != "" {
		return secret
	}

	authz := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(authz, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// verifySecret compares a caller-supplied secret against the configured one
// in constant time.
func verifySecret(provided, configured string) error {
	if configured == "" {
		return ErrNotConfigured
	}
	if provided == "" {
		return fmt.Errorf("missing shared secret: %w", ErrUnauthorized)
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(configured)) != 1 {
		return fmt.Errorf("shared secret mismatch: %w", ErrUnauthorized)
	}
	return nil
}
