package video

import (
	"context"
	"time"
)

// Provider allocates video sessions for appointments and issues client
// tokens for joining them. Session creation is a remote call that can fail
// transiently; callers must treat failures as retryable and never leave
// partial state behind.
type Provider interface {
	CreateSession(ctx context.Context) (string, error)
	IssueToken(sessionID string, opts TokenOptions) (string, error)
}

// TokenOptions controls a client token's capabilities and lifetime.
type TokenOptions struct {
	Role      string
	ExpiresAt time.Time
	// Data is opaque connection metadata (caller name, role) surfaced to
	// other participants in the session.
	Data string
}
