// ABOUTME: Tests for signed-request verification and auth mode selection
// ABOUTME: Covers signature checks, timestamp tolerance, nonce replay, and both-mode rules

package auth

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/warden/internal/config"
	"github.com/2389/warden/internal/replay"
)

const testSecret = "hunter2"

func newVerifier(t *testing.T, mode config.AuthMode) *Verifier {
	t.Helper()
	nonces := replay.New(10*time.Minute, 1000)
	t.Cleanup(nonces.Close)

	return NewVerifier(config.S2SConfig{
		SharedSecret:     testSecret,
		AuthMode:         mode,
		SigningTolerance: 5 * time.Minute,
	}, nonces, slog.Default())
}

// signRequest attaches valid signed headers to a request. The timestamp
// header carries epoch milliseconds.
func signRequest(r *http.Request, secret, nonce string, at time.Time) {
	timestamp := strconv.FormatInt(at.UnixMilli(), 10)
	r.Header.Set(HeaderTimestamp, timestamp)
	r.Header.Set(HeaderNonce, nonce)
	r.Header.Set(HeaderSignature, ComputeSignature(secret, r.Method, r.URL.Path, timestamp, nonce))
}

func TestAuthenticate_SignedValid(t *testing.T) {
	v := newVerifier(t, config.AuthModeSigned)

	r := httptest.NewRequest("POST", "/s2s/warden/tools/execute", nil)
	signRequest(r, testSecret, "nonce-1", time.Now())

	scheme, err := v.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "signed", scheme)
}

func TestAuthenticate_SignedMissingHeaders(t *testing.T) {
	v := newVerifier(t, config.AuthModeSigned)

	r := httptest.NewRequest("POST", "/s2s/warden/tools/execute", nil)
	r.Header.Set(SecretHeader, testSecret)

	_, err := v.Authenticate(r)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticate_SignedWrongSecret(t *testing.T) {
	v := newVerifier(t, config.AuthModeSigned)

	r := httptest.NewRequest("POST", "/s2s/warden/tools/execute", nil)
	signRequest(r, "wrong-secret", "nonce-1", time.Now())

	_, err := v.Authenticate(r)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticate_SignedTamperedPath(t *testing.T) {
	v := newVerifier(t, config.AuthModeSigned)

	r := httptest.NewRequest("POST", "/s2s/warden/tools/execute", nil)
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	r.Header.Set(HeaderTimestamp, timestamp)
	r.Header.Set(HeaderNonce, "nonce-1")
	// Signature computed for a different path
	r.Header.Set(HeaderSignature, ComputeSignature(testSecret, r.Method, "/s2s/warden/realm/branding", timestamp, "nonce-1"))

	_, err := v.Authenticate(r)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticate_TimestampTooOld(t *testing.T) {
	v := newVerifier(t, config.AuthModeSigned)

	r := httptest.NewRequest("POST", "/s2s/warden/tools/execute", nil)
	signRequest(r, testSecret, "nonce-1", time.Now().Add(-6*time.Minute))

	_, err := v.Authenticate(r)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticate_TimestampInFuture(t *testing.T) {
	v := newVerifier(t, config.AuthModeSigned)

	r := httptest.NewRequest("POST", "/s2s/warden/tools/execute", nil)
	signRequest(r, testSecret, "nonce-1", time.Now().Add(6*time.Minute))

	_, err := v.Authenticate(r)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticate_TimestampFarFuture(t *testing.T) {
	v := newVerifier(t, config.AuthModeSigned)

	// A timestamp centuries ahead would saturate a time.Duration
	// conversion; the raw integer skew math must still reject it.
	r := httptest.NewRequest("POST", "/s2s/warden/tools/execute", nil)
	signRequest(r, testSecret, "nonce-1", time.Now().AddDate(1000, 0, 0))

	_, err := v.Authenticate(r)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticate_TimestampExtremeValues(t *testing.T) {
	v := newVerifier(t, config.AuthModeSigned)

	for _, timestamp := range []string{
		strconv.FormatInt(math.MaxInt64, 10),
		strconv.FormatInt(math.MinInt64, 10),
	} {
		r := httptest.NewRequest("POST", "/s2s/warden/tools/execute", nil)
		r.Header.Set(HeaderTimestamp, timestamp)
		r.Header.Set(HeaderNonce, "nonce-1")
		r.Header.Set(HeaderSignature, ComputeSignature(testSecret, r.Method, r.URL.Path, timestamp, "nonce-1"))

		_, err := v.Authenticate(r)
		assert.ErrorIs(t, err, ErrUnauthorized, "timestamp %s", timestamp)
	}
}

func TestAuthenticate_MethodCaseInsensitive(t *testing.T) {
	v := newVerifier(t, config.AuthModeSigned)

	// The signing recipe uppercases the method, so a client signing a
	// lowercased method name produces the same signature.
	r := httptest.NewRequest("POST", "/s2s/warden/tools/execute", nil)
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	r.Header.Set(HeaderTimestamp, timestamp)
	r.Header.Set(HeaderNonce, "nonce-1")
	r.Header.Set(HeaderSignature, ComputeSignature(testSecret, "post", r.URL.Path, timestamp, "nonce-1"))

	_, err := v.Authenticate(r)
	assert.NoError(t, err)
}

func TestAuthenticate_NonceReplay(t *testing.T) {
	v := newVerifier(t, config.AuthModeSigned)

	r1 := httptest.NewRequest("POST", "/s2s/warden/tools/execute", nil)
	signRequest(r1, testSecret, "nonce-replayed", time.Now())
	_, err := v.Authenticate(r1)
	require.NoError(t, err)

	// Same nonce again, freshly signed
	r2 := httptest.NewRequest("POST", "/s2s/warden/tools/execute", nil)
	signRequest(r2, testSecret, "nonce-replayed", time.Now())
	_, err = v.Authenticate(r2)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticate_BadSignatureDoesNotBurnNonce(t *testing.T) {
	v := newVerifier(t, config.AuthModeSigned)

	r1 := httptest.NewRequest("POST", "/s2s/warden/tools/execute", nil)
	signRequest(r1, "wrong-secret", "nonce-kept", time.Now())
	_, err := v.Authenticate(r1)
	require.ErrorIs(t, err, ErrUnauthorized)

	// The nonce was not recorded by the failed attempt
	r2 := httptest.NewRequest("POST", "/s2s/warden/tools/execute", nil)
	signRequest(r2, testSecret, "nonce-kept", time.Now())
	_, err = v.Authenticate(r2)
	assert.NoError(t, err)
}

func TestAuthenticate_LegacyMode(t *testing.T) {
	v := newVerifier(t, config.AuthModeLegacy)

	r := httptest.NewRequest("GET", "/s2s/warden/realm/branding", nil)
	r.Header.Set(SecretHeader, testSecret)

	scheme, err := v.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "legacy", scheme)
}

func TestAuthenticate_BothMode_LegacyAccepted(t *testing.T) {
	v := newVerifier(t, config.AuthModeBoth)

	r := httptest.NewRequest("GET", "/s2s/warden/realm/branding", nil)
	r.Header.Set("Authorization", "Bearer "+testSecret)

	scheme, err := v.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "legacy", scheme)
}

func TestAuthenticate_BothMode_BadSignatureNotRescuedByLegacy(t *testing.T) {
	v := newVerifier(t, config.AuthModeBoth)

	r := httptest.NewRequest("POST", "/s2s/warden/tools/execute", nil)
	r.Header.Set(SecretHeader, testSecret) // valid legacy secret
	signRequest(r, "wrong-secret", "nonce-1", time.Now())

	_, err := v.Authenticate(r)
	assert.ErrorIs(t, err, ErrUnauthorized, "signed headers commit the request to signature verification")
}

func TestAuthenticate_BothMode_PartialSignedHeaders(t *testing.T) {
	v := newVerifier(t, config.AuthModeBoth)

	r := httptest.NewRequest("POST", "/s2s/warden/tools/execute", nil)
	r.Header.Set(SecretHeader, testSecret)
	r.Header.Set(HeaderNonce, "nonce-only")

	_, err := v.Authenticate(r)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestMiddleware_Statuses(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		decorate   func(r *http.Request)
		wantStatus int
	}{
		{
			name:       "valid legacy",
			secret:     testSecret,
			decorate:   func(r *http.Request) { r.Header.Set(SecretHeader, testSecret) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong secret",
			secret:     testSecret,
			decorate:   func(r *http.Request) { r.Header.Set(SecretHeader, "wrong") },
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "unconfigured secret",
			secret:     "",
			decorate:   func(r *http.Request) { r.Header.Set(SecretHeader, "anything") },
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nonces := replay.New(time.Minute, 100)
			defer nonces.Close()

			v := NewVerifier(config.S2SConfig{
				SharedSecret:     tt.secret,
				AuthMode:         config.AuthModeLegacy,
				SigningTolerance: 5 * time.Minute,
			}, nonces, slog.Default())

			var sawScheme string
			handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				sawScheme = SchemeFromContext(r.Context())
				fmt.Fprint(w, "ok")
			}))

			r := httptest.NewRequest("GET", "/s2s/warden/realm/branding", nil)
			tt.decorate(r)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "legacy", sawScheme)
			}
		})
	}
}
