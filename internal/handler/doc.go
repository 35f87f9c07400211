// Package handler implements the HTTP layer of the topolens API.
//
// TopologyHandler serves the correlated topology and session health.
// Middleware provides panic recovery, CORS, and request logging; the
// chain is assembled in cmd/server.
//
// Errors are returned as JSON with an {error, details} structure.
// Upstream failures map to gateway-class status codes: total source
// unavailability is 503, control-plane auth failure is 502, and
// upstream rate limiting is 429.
//
// The /events endpoint (served by internal/hub) streams topology
// refresh, degradation, and stale-serve notifications over SSE.
package handler
