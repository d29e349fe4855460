package service

import (
	"context"
	"sync"
	"time"

	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/internal/core/ports"

	"github.com/rs/zerolog"
)

// AuditService writes audit entries to the log and, when configured, to the repository.
type AuditService struct {
	repo    ports.AuditRepository
	log     zerolog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewAuditService creates a new audit service.
// If repo is nil, audit logs are only written to the logger.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) *AuditService {
	return &AuditService{repo: repo, log: log, timeout: 5 * time.Second}
}

// Log records an audit entry asynchronously (fire-and-forget).
func (s *AuditService) Log(_ context.Context, entry *domain.AuditLog) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		evt := s.log.Info()
		if entry.Severity == domain.AuditSeverityWarning {
			evt = s.log.Warn()
		}
		evt.Str("action", string(entry.Action)).
			Str("entity_kind", string(entry.EntityKind)).
			Str("entity_id", entry.EntityID).
			Str("event", entry.Event).
			Str("from", entry.FromStatus).
			Str("to", entry.ToStatus).
			Str("actor", entry.Actor).
			Msg("audit")

		if s.repo == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.repo.Create(ctx, entry); err != nil {
			s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit log")
		}
	}()
}

// Wait blocks until every pending write has finished.
func (s *AuditService) Wait() {
	s.wg.Wait()
}
