package ports

import (
	"context"
	"errors"
	"time"

	"bluecarbon-registry/internal/core/domain"
)

// ErrLedgerTransport marks a ledger call that failed before the ledger
// accepted or rejected the payload. Such failures are retried.
var ErrLedgerTransport = errors.New("ledger transport failure")

// Ledger is the external append-only ledger that anchors transitions.
// Implementations may be slow or unavailable.
type Ledger interface {
	Submit(ctx context.Context, payload []byte) (string, error)
	Status(ctx context.Context, txRef string) (domain.LedgerTxStatus, error)
}

// IDGenerator mints entity identifiers.
type IDGenerator interface {
	NewID() string
}

// Anchorer accepts ledger-relevant transitions for asynchronous anchoring.
type Anchorer interface {
	Enqueue(ctx context.Context, req domain.AnchorRequest) (domain.AnchorRecord, error)
}

// AnchorListener is notified of anchoring outcomes. Calls are made without
// any coordinator lock held.
type AnchorListener interface {
	AnchorSubmitted(rec domain.AnchorRecord)
	AnchorFailed(rec domain.AnchorRecord)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(subject string, role domain.Role) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject string
	Role    domain.Role
}

// AuditService records audit entries without blocking the caller.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// RateLimiter counts requests per key within fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}
