package postgres

import (
	"context"

	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/internal/core/ports"
)

const defaultAuditLimit = 100

type auditRepo struct {
	pool Pool
}

// NewAuditRepository creates a PostgreSQL-backed AuditRepository.
func NewAuditRepository(pool Pool) ports.AuditRepository {
	return &auditRepo{pool: pool}
}

func (r *auditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, entity_kind, entity_id, action, event, from_status, to_status,
 actor, severity, details, ip_address, created_at)
 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		log.ID, string(log.EntityKind), log.EntityID, string(log.Action), log.Event,
		log.FromStatus, log.ToStatus, log.Actor, string(log.Severity), log.Details,
		log.IPAddress, log.CreatedAt,
	)
	return err
}

// ListByEntity returns the newest entries for one entity, newest first.
func (r *auditRepo) ListByEntity(ctx context.Context, kind domain.EntityKind, id string, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, entity_kind, entity_id, action, event, from_status, to_status,
 actor, severity, details, ip_address, created_at
 FROM audit_logs WHERE entity_kind = $1 AND entity_id = $2
 ORDER BY created_at DESC LIMIT $3`,
		string(kind), id, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []domain.AuditLog{}
	for rows.Next() {
		var (
			l                            domain.AuditLog
			entityKind, action, severity string
		)
		if err := rows.Scan(
			&l.ID, &entityKind, &l.EntityID, &action, &l.Event, &l.FromStatus, &l.ToStatus,
			&l.Actor, &severity, &l.Details, &l.IPAddress, &l.CreatedAt,
		); err != nil {
			return nil, err
		}
		l.EntityKind = domain.EntityKind(entityKind)
		l.Action = domain.AuditAction(action)
		l.Severity = domain.AuditSeverity(severity)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
