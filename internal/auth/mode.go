// ABOUTME: Auth mode selection for inbound S2S requests and HTTP middleware.
// ABOUTME: Modes: legacy secret only, signed headers required, or both.

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/warden/internal/config"
	"github.com/2389/warden/internal/replay"
)

// Verifier authenticates inbound S2S requests according to the configured
// auth mode.
type Verifier struct {
	secret    string
	mode      config.AuthMode
	tolerance time.Duration
	nonces    replay.Recorder
	logger    *slog.Logger
}

// NewVerifier creates a Verifier from the S2S configuration. The nonce
// recorder is injected so deployments can swap the replay store.
func NewVerifier(cfg config.S2SConfig, nonces replay.Recorder, logger *slog.Logger) *Verifier {
	return &Verifier{
		secret:    cfg.SharedSecret,
		mode:      cfg.AuthMode,
		tolerance: cfg.SigningTolerance,
		nonces:    nonces,
		logger:    logger.With("component", "auth"),
	}
}

// scheme identifies which verification path admitted a request.
type scheme string

const (
	schemeLegacy scheme = "legacy"
	schemeSigned scheme = "signed"
)

type schemeKey struct{}

// SchemeFromContext returns the auth scheme that admitted the request, or ""
// if the request did not pass through the middleware.
func SchemeFromContext(ctx context.Context) string {
	s, _ := ctx.Value(schemeKey{}).(scheme)
	return string(s)
}

// Authenticate verifies the request and returns the scheme that admitted it.
// In "both" mode the presence of any signed header commits the request to
// signature verification; a valid legacy secret never rescues a bad
// signature.
func (v *Verifier) Authenticate(r *http.Request) (string, error) {
	switch v.mode {
	case config.AuthModeSigned:
		if err := verifySigned(r, v.secret, v.tolerance, v.nonces); err != nil {
			return "", err
		}
		return string(schemeSigned), nil

	case config.AuthModeBoth:
		if hasSignedHeaders(r) {
			if err := verifySigned(r, v.secret, v.tolerance, v.nonces); err != nil {
				return "", err
			}
			return string(schemeSigned), nil
		}
		fallthrough

	default: // config.AuthModeLegacy
		if err := verifySecret(ExtractSecret(r), v.secret); err != nil {
			return "", err
		}
		return string(schemeLegacy), nil
	}
}

// Middleware wraps an HTTP handler with S2S authentication. Failures return
// a uniform 403 body; a missing server-side secret returns 500.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admitted, err := v.Authenticate(r)
		if err != nil {
			v.writeAuthError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), schemeKey{}, scheme(admitted))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// writeAuthError maps authentication failures to HTTP responses.
func (v *Verifier) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("Content-Type", "application/json")

	if errors.Is(err, ErrNotConfigured) {
		v.logger.Error("rejecting s2s request: shared secret not configured", "path", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "S2S authentication is not configured on this server"})
		return
	}

	v.logger.Warn("rejected s2s request", "path", r.URL.Path, "reason", err)
	w.WriteHeader(http.StatusForbidden)
	json.NewEncoder(w).Encode(map[string]string{"error": "Access denied"})
}
