// ABOUTME: HMAC-SHA256 signed-request verification with timestamp and nonce checks.
// ABOUTME: Signature covers METHOD, path, timestamp, and nonce joined by newlines.

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/warden/internal/replay"
)

// Signed request headers.
const (
	HeaderTimestamp = "X-S2S-Timestamp"
	HeaderNonce     = "X-S2S-Nonce"
	HeaderSignature = "X-S2S-Signature"
)

// ComputeSignature returns the hex HMAC-SHA256 signature for a request.
// The signed payload is the uppercased method, URL path, epoch-millisecond
// timestamp, and nonce joined by newlines. Clients use this to sign; the
// verifier uses it to check.
func ComputeSignature(secret, method, path, timestamp, nonce string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s\n%s\n%s\n%s", strings.ToUpper(method), path, timestamp, nonce)
	return hex.EncodeToString(mac.Sum(nil))
}

// hasSignedHeaders reports whether any signed-request header is present.
func hasSignedHeaders(r *http.Request) bool {
	return r.Header.Get(HeaderTimestamp) != "" ||
		r.Header.Get(HeaderNonce) != "" ||
		r.Header.Get(HeaderSignature) != ""
}

// verifySigned checks the signed-request headers: all three must be present,
// the timestamp must be within tolerance, the signature must match, and the
// nonce must not have been seen before. The nonce is recorded only after the
// signature verifies, so unauthenticated traffic cannot poison the cache.
func verifySigned(r *http.Request, secret string, tolerance time.Duration, nonces replay.Recorder) error {
	if secret == "" {
		return ErrNotConfigured
	}

	timestamp := r.Header.Get(HeaderTimestamp)
	nonce := r.Header.Get(HeaderNonce)
	signature := r.Header.Get(HeaderSignature)

	if timestamp == "" || nonce == "" || signature == "" {
		return fmt.Errorf("missing signed request headers: %w", ErrUnauthorized)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed timestamp: %w", ErrUnauthorized)
	}

	// The header carries epoch milliseconds. Skew stays in raw integer
	// arithmetic: converting a hostile timestamp through time.Duration can
	// saturate, and negating a saturated minimum leaves it negative, which
	// would pass the window check.
	skew := time.Now().UnixMilli() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew < 0 || skew > tolerance.Milliseconds() {
		return fmt.Errorf("timestamp outside tolerance: %w", ErrUnauthorized)
	}

	expected := ComputeSignature(secret, r.Method, r.URL.Path, timestamp, nonce)
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("malformed signature: %w", ErrUnauthorized)
	}
	expectedBytes, _ := hex.DecodeString(expected)
	if !hmac.Equal(provided, expectedBytes) {
		return fmt.Errorf("signature mismatch: %w", ErrUnauthorized)
	}

	if nonces.Record(nonce) {
		return fmt.Errorf("nonce replayed: %w", ErrUnauthorized)
	}

	return nil
}
