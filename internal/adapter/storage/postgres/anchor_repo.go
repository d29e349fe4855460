package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

const anchorColumns = `transition_id, kind, entity_kind, entity_id, payload, status, tx_ref,
attempts, last_error, exhausted, next_attempt_at, confirmed_at, created_at, updated_at`

const upsertAnchor = `INSERT INTO anchor_records (` + anchorColumns + `)
 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
 ON CONFLICT (transition_id) DO UPDATE SET
 status = EXCLUDED.status, tx_ref = EXCLUDED.tx_ref, attempts = EXCLUDED.attempts,
 last_error = EXCLUDED.last_error, exhausted = EXCLUDED.exhausted,
 next_attempt_at = EXCLUDED.next_attempt_at, confirmed_at = EXCLUDED.confirmed_at,
 updated_at = EXCLUDED.updated_at`

type anchorRepo struct {
	pool Pool
	tx   ports.DBTransactor
}

// NewAnchorRepository creates a PostgreSQL-backed AnchorRepository.
func NewAnchorRepository(pool Pool) ports.AnchorRepository {
	return &anchorRepo{pool: pool, tx: NewTransactor(pool)}
}

func anchorArgs(rec *domain.AnchorRecord) []any {
	return []any{
		rec.TransitionID, string(rec.Kind), string(rec.Entity.Kind), rec.Entity.ID, rec.Payload,
		string(rec.Status), rec.TxRef, rec.Attempts, rec.LastError, rec.Exhausted,
		rec.NextAttemptAt, rec.ConfirmedAt, rec.CreatedAt, rec.UpdatedAt,
	}
}

func (r *anchorRepo) InsertIfAbsent(ctx context.Context, rec *domain.AnchorRecord) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO anchor_records (`+anchorColumns+`)
 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
 ON CONFLICT (transition_id) DO NOTHING`,
		anchorArgs(rec)...,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *anchorRepo) Save(ctx context.Context, rec *domain.AnchorRecord) error {
	_, err := r.pool.Exec(ctx, upsertAnchor, anchorArgs(rec)...)
	return err
}

func (r *anchorRepo) SaveAll(ctx context.Context, recs []domain.AnchorRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := r.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning anchor flush: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := range recs {
		if _, err := tx.Exec(ctx, upsertAnchor, anchorArgs(&recs[i])...); err != nil {
			return fmt.Errorf("saving anchor %s: %w", recs[i].TransitionID, err)
		}
	}
	return tx.Commit(ctx)
}

func (r *anchorRepo) Get(ctx context.Context, transitionID string) (*domain.AnchorRecord, error) {
	rec, err := scanAnchor(r.pool.QueryRow(ctx,
		`SELECT `+anchorColumns+` FROM anchor_records WHERE transition_id = $1`,
		transitionID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *anchorRepo) ListResumable(ctx context.Context) ([]domain.AnchorRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+anchorColumns+` FROM anchor_records
 WHERE status <> 'confirmed' AND NOT exhausted
 ORDER BY created_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AnchorRecord
	for rows.Next() {
		rec, err := scanAnchor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanAnchor(row pgx.Row) (*domain.AnchorRecord, error) {
	var (
		rec                        domain.AnchorRecord
		kind, entityKind, status   string
		nextAttemptAt, confirmedAt *time.Time
	)
	err := row.Scan(
		&rec.TransitionID, &kind, &entityKind, &rec.Entity.ID, &rec.Payload,
		&status, &rec.TxRef, &rec.Attempts, &rec.LastError, &rec.Exhausted,
		&nextAttemptAt, &confirmedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Kind = domain.AnchorKind(kind)
	rec.Entity.Kind = domain.EntityKind(entityKind)
	rec.Status = domain.AnchorStatus(status)
	rec.NextAttemptAt = nextAttemptAt
	rec.ConfirmedAt = confirmedAt
	return &rec, nil
}
