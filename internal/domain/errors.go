package domain

import (
	"errors"
	"fmt"
)

// ErrRateLimited is returned by an adapter call that hit the target's
// rate limit. Adapters retry it with backoff before degrading the source
// to unavailable.
var ErrRateLimited = errors.New("rate limited by target")

// ErrNoSources means every discovery source failed in one fetch cycle.
// The cache layer recovers it by serving the last known snapshot when
// one exists; it is the only error class that can reach a caller.
var ErrNoSources = errors.New("no discovery sources available")

// AuthError means both session login and the static-token fallback
// failed against the control plane.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (%s): %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// SourceError wraps a single adapter failure. It is recovered by the
// orchestrator: the source is recorded unavailable and the cycle
// continues with the remaining adapters.
type SourceError struct {
	Source Source
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }
