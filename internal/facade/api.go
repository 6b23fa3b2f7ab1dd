// ABOUTME: HTTP handlers for the S2S facade endpoints
// ABOUTME: Covers tool execution and realm branding reads and updates

package facade

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/2389/warden/internal/branding"
	"github.com/2389/warden/internal/controlplane"
	"github.com/2389/warden/internal/invoker"
	"github.com/2389/warden/internal/store"
	"github.com/2389/warden/internal/tools"
)

// ExecuteRequest is the JSON request body for POST /s2s/warden/tools/execute.
type ExecuteRequest struct {
	RealmID          int64           `json:"realm_id"`
	InvokerUserID    int64           `json:"invoker_user_id"`
	InvokerMessageID int64           `json:"invoker_message_id"`
	Tool             string          `json:"tool"`
	Args             json.RawMessage `json:"args,omitempty"`
}

// ExecuteResponse is the JSON response for a successful tool execution.
type ExecuteResponse struct {
	OK      bool            `json:"ok"`
	Tool    string          `json:"tool"`
	Result  json.RawMessage `json:"result"`
	Deduped bool            `json:"deduped"`
}

// BrandingUpdateRequest is the JSON request body for POST /s2s/warden/realm/branding.
type BrandingUpdateRequest struct {
	RealmID  int64           `json:"realm_id"`
	Branding json.RawMessage `json:"branding"`
}

// handleExecute handles POST /s2s/warden/tools/execute.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Tool == "" {
		s.sendJSONError(w, http.StatusBadRequest, "tool is required")
		return
	}

	inv, err := s.resolver.Resolve(r.Context(), req.RealmID, req.InvokerUserID, req.InvokerMessageID)
	if err != nil {
		s.sendError(w, err)
		return
	}

	result, err := s.dispatcher.Execute(r.Context(), inv, req.Tool, req.Args)
	if err != nil {
		s.sendError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, ExecuteResponse{
		OK:      true,
		Tool:    result.Tool,
		Result:  result.Payload,
		Deduped: result.Deduped,
	})
}

// handleBranding handles GET and POST /s2s/warden/realm/branding.
func (s *Server) handleBranding(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleBrandingGet(w, r)
	case http.MethodPost:
		s.handleBrandingSet(w, r)
	default:
		s.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleBrandingGet returns a realm's overrides and effective branding.
func (s *Server) handleBrandingGet(w http.ResponseWriter, r *http.Request) {
	realmID, err := strconv.ParseInt(r.URL.Query().Get("realm_id"), 10, 64)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "realm_id query parameter is required")
		return
	}

	if !s.requireRealm(w, r, realmID) {
		return
	}

	view, err := tools.BrandingView(r.Context(), s.store, s.defaults, realmID)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendRaw(w, http.StatusOK, view)
}

// handleBrandingSet applies a partial branding override update.
func (s *Server) handleBrandingSet(w http.ResponseWriter, r *http.Request) {
	var req BrandingUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Branding) == 0 {
		s.sendJSONError(w, http.StatusBadRequest, "branding object is required")
		return
	}

	if !s.requireRealm(w, r, req.RealmID) {
		return
	}

	patch, err := branding.ParsePatch(req.Branding)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := tools.ApplyBrandingPatch(r.Context(), s.store, req.RealmID, patch); err != nil {
		s.sendError(w, err)
		return
	}

	view, err := tools.BrandingView(r.Context(), s.store, s.defaults, req.RealmID)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendRaw(w, http.StatusOK, view)
}

// requireRealm checks that the realm exists, writing the error response if
// not. Returns true when the handler may proceed.
func (s *Server) requireRealm(w http.ResponseWriter, r *http.Request, realmID int64) bool {
	_, err := s.store.GetRealm(r.Context(), realmID)
	if errors.Is(err, store.ErrNotFound) {
		s.sendError(w, invoker.ErrRealmNotFound)
		return false
	}
	if err != nil {
		s.sendError(w, err)
		return false
	}
	return true
}

// sendError maps a pipeline error to an HTTP status and JSON error body.
// Resolution and authorization failures carry contract messages; everything
// else collapses to a generic 500.
func (s *Server) sendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, invoker.ErrRealmNotFound),
		errors.Is(err, invoker.ErrInvokerNotFound),
		errors.Is(err, invoker.ErrMessageNotFound):
		s.sendJSONError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, invoker.ErrInvokerDeactivated),
		errors.Is(err, invoker.ErrInvokerNotHuman),
		errors.Is(err, invoker.ErrProofMismatch),
		errors.Is(err, invoker.ErrProofStale),
		errors.Is(err, tools.ErrAccessDenied):
		s.sendJSONError(w, http.StatusForbidden, err.Error())

	case errors.Is(err, tools.ErrUnknownTool),
		errors.Is(err, tools.ErrInvalidArgs):
		s.sendJSONError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, controlplane.ErrUnavailable),
		errors.Is(err, controlplane.ErrUpstream):
		s.sendJSONError(w, http.StatusBadGateway, err.Error())

	default:
		s.logger.Error("internal error", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// sendRaw writes an already-encoded JSON payload.
func (s *Server) sendRaw(w http.ResponseWriter, status int, payload json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
