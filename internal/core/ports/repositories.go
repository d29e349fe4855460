package ports

import (
	"context"

	"bluecarbon-registry/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// AnchorRepository persists anchoring records so they survive a restart.
type AnchorRepository interface {
	// InsertIfAbsent stores rec unless a record with the same transition id
	// exists. It reports whether a row was written.
	InsertIfAbsent(ctx context.Context, rec *domain.AnchorRecord) (bool, error)
	Save(ctx context.Context, rec *domain.AnchorRecord) error
	// SaveAll upserts every record in a single database transaction.
	SaveAll(ctx context.Context, recs []domain.AnchorRecord) error
	Get(ctx context.Context, transitionID string) (*domain.AnchorRecord, error)
	// ListResumable returns records that are not confirmed and not exhausted.
	ListResumable(ctx context.Context) ([]domain.AnchorRecord, error)
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
	ListByEntity(ctx context.Context, kind domain.EntityKind, id string, limit int) ([]domain.AuditLog, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
