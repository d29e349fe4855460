package registry

import (
	"context"

	"bluecarbon-registry/internal/core/domain"
)

// entryLocked builds an audit entry and appends it to the entity trail.
// Callers hold s.mu for writing.
func (s *Store) entryLocked(ref domain.EntityRef, action domain.AuditAction, ev, from, to, actor, details string) domain.AuditLog {
	entry := domain.AuditLog{
		ID:         s.ids.NewID(),
		EntityKind: ref.Kind,
		EntityID:   ref.ID,
		Action:     action,
		Event:      ev,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		Severity:   domain.AuditSeverityInfo,
		Details:    details,
		CreatedAt:  s.now().UTC(),
	}
	if action == domain.AuditActionAnchorFailed {
		entry.Severity = domain.AuditSeverityWarning
	}
	s.trail[ref] = append(s.trail[ref], entry)
	return entry
}

// forward hands committed entries to the audit service, outside any lock.
func (s *Store) forward(ctx context.Context, entries ...domain.AuditLog) {
	if s.audit == nil {
		return
	}
	for i := range entries {
		e := entries[i]
		s.audit.Log(ctx, &e)
	}
}

// AuditTrail returns the history of one entity, oldest first.
func (s *Store) AuditTrail(_ context.Context, ref domain.EntityRef) []domain.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AuditLog(nil), s.trail[ref]...)
}

// Warnings returns the non-fatal conditions recorded against an entity.
func (s *Store) Warnings(_ context.Context, ref domain.EntityRef) []domain.Warning {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Warning
	for _, e := range s.trail[ref] {
		if e.Severity != domain.AuditSeverityWarning {
			continue
		}
		out = append(out, domain.Warning{Code: "ANC_001", Message: e.Details, TransitionID: e.Event})
	}
	return out
}
