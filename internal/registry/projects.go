package registry

import (
	"context"
	"strings"

	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/internal/core/transition"
	"bluecarbon-registry/pkg/apperror"
)

// CreateProject registers a new project in pending status. An empty id is
// filled from the identifier generator.
func (s *Store) CreateProject(ctx context.Context, spec domain.ProjectSpec) (domain.Project, error) {
	if err := transition.ValidateProjectSpec(spec); err != nil {
		return domain.Project{}, err
	}

	id := strings.TrimSpace(spec.ID)
	if id == "" {
		id = s.ids.NewID()
	}

	release := s.locks.acquire(domain.ProjectRef(id))
	defer release()

	now := s.now().UTC()
	p := &domain.Project{
		ID:               id,
		Name:             spec.Name,
		Location:         spec.Location,
		Ecosystem:        spec.Ecosystem,
		AreaHectares:     spec.AreaHectares,
		EstimatedCredits: spec.EstimatedCredits,
		Status:           domain.ProjectStatusPending,
		StartDate:        spec.StartDate.UTC(),
		EndDate:          spec.EndDate.UTC(),
		Coordinates:      spec.Coordinates,
		Images:           append([]string(nil), spec.Images...),
		Description:      spec.Description,
		OwnerID:          spec.OwnerID,
		VerifierID:       spec.VerifierID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	s.mu.Lock()
	if _, exists := s.projects[id]; exists {
		s.mu.Unlock()
		return domain.Project{}, apperror.ErrDuplicateID("project", id)
	}
	s.projects[id] = p
	entry := s.entryLocked(domain.ProjectRef(id), domain.AuditActionProjectCreated, "", "", string(p.Status), spec.OwnerID, p.Name)
	out := p.Clone()
	s.mu.Unlock()

	s.forward(ctx, entry)
	s.log.Info().Str("project_id", id).Str("ecosystem", string(p.Ecosystem)).Int64("estimated_credits", p.EstimatedCredits).Msg("project created")
	return out, nil
}

func (s *Store) transitionProject(ctx context.Context, id string, ev transition.Event) (TransitionResult, error) {
	ref := domain.ProjectRef(id)
	release := s.locks.acquire(ref)
	defer release()

	s.mu.RLock()
	p, ok := s.projects[id]
	if !ok {
		s.mu.RUnlock()
		return TransitionResult{}, apperror.ErrNotFound("project", id)
	}
	current := p.Clone()
	guard := transition.ProjectGuard{
		IssuedCount:   len(s.creditsByProject[id]),
		VerifiedTotal: current.VerifiedCredits,
	}
	s.mu.RUnlock()

	next, err := transition.Project(current, ev, guard)
	if err != nil {
		return TransitionResult{}, err
	}

	s.mu.Lock()
	p.Status = next
	p.UpdatedAt = s.now().UTC()
	entry := s.entryLocked(ref, domain.AuditActionTransition, string(ev.Name), string(current.Status), string(next), ev.Actor, ev.Reason)
	s.mu.Unlock()

	s.forward(ctx, entry)
	s.log.Info().Str("project_id", id).Str("event", string(ev.Name)).Str("from", string(current.Status)).Str("to", string(next)).Msg("project transition committed")

	return TransitionResult{Ref: ref, Event: ev.Name, From: string(current.Status), To: string(next)}, nil
}
