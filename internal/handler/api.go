package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"topolens/internal/domain"
	"topolens/internal/session"
)

// TopologyProvider is the service surface the API exposes.
type TopologyProvider interface {
	GetTopology(ctx context.Context, scope string, forceRefresh bool) (*domain.Topology, error)
	SessionHealth() session.Health
}

// ErrorResponse is the JSON shape of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// TopologyHandler serves the topology API.
type TopologyHandler struct {
	svc TopologyProvider
}

// NewTopologyHandler creates a new topology handler.
func NewTopologyHandler(svc TopologyProvider) *TopologyHandler {
	return &TopologyHandler{svc: svc}
}

// GetTopology returns the correlated topology for a scope. refresh=true
// bypasses the cache TTL.
func (h *TopologyHandler) GetTopology(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		h.writeError(w, "Invalid scope", "scope query parameter is required", http.StatusBadRequest)
		return
	}
	forceRefresh := r.URL.Query().Get("refresh") == "true"

	topo, err := h.svc.GetTopology(r.Context(), scope, forceRefresh)
	if err != nil {
		log.Printf("Failed to get topology for %q: %v", scope, err)
		switch {
		case errors.Is(err, domain.ErrNoSources):
			h.writeError(w, "No sources available", err.Error(), http.StatusServiceUnavailable)
		case errors.Is(err, domain.ErrRateLimited):
			h.writeError(w, "Upstream rate limited", err.Error(), http.StatusTooManyRequests)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			h.writeError(w, "Request cancelled", err.Error(), http.StatusGatewayTimeout)
		default:
			var authErr *domain.AuthError
			if errors.As(err, &authErr) {
				h.writeError(w, "Control plane authentication failed", err.Error(), http.StatusBadGateway)
				return
			}
			h.writeError(w, "Failed to get topology", err.Error(), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, topo, http.StatusOK)
}

// GetSessionHealth reports the control-plane session state.
func (h *TopologyHandler) GetSessionHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.svc.SessionHealth(), http.StatusOK)
}

func (h *TopologyHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON: %v", err)
	}
}

func (h *TopologyHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		log.Printf("Failed to encode error response: %v", err)
	}
}
