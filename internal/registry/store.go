// Package registry owns the project, credit and verification report
// collections. Writers serialize per entity; readers copy committed state.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/internal/core/ports"
	"bluecarbon-registry/internal/core/transition"
	"bluecarbon-registry/pkg/apperror"

	"github.com/rs/zerolog"
)

// Store is the in-process registry of entities.
//
// Two levels of locking are used. Entity sections (locks) serialize writers
// targeting the same entity for the duration of validate-and-commit. The
// table mutex (mu) guards the maps and is held only while copying state in
// or committing it, so readers never wait on validation work.
type Store struct {
	locks *lockTable

	mu               sync.RWMutex
	projects         map[string]*domain.Project
	credits          map[string]*domain.Credit
	reports          map[string]*domain.VerificationReport
	creditsByProject map[string][]string
	reportsByCredit  map[string][]string
	openReview       map[string]string // credit id -> pending report id
	serialSeq        map[string]uint64 // project id -> last issued sequence
	serials          map[string]string // serial number -> credit id
	trail            map[domain.EntityRef][]domain.AuditLog

	ids      ports.IDGenerator
	anchorer ports.Anchorer
	audit    ports.AuditService
	now      func() time.Time
	log      zerolog.Logger
}

// New creates an empty Store. anchorer and audit may be nil.
func New(ids ports.IDGenerator, anchorer ports.Anchorer, audit ports.AuditService, log zerolog.Logger) *Store {
	return &Store{
		locks:            newLockTable(),
		projects:         make(map[string]*domain.Project),
		credits:          make(map[string]*domain.Credit),
		reports:          make(map[string]*domain.VerificationReport),
		creditsByProject: make(map[string][]string),
		reportsByCredit:  make(map[string][]string),
		openReview:       make(map[string]string),
		serialSeq:        make(map[string]uint64),
		serials:          make(map[string]string),
		trail:            make(map[domain.EntityRef][]domain.AuditLog),
		ids:              ids,
		anchorer:         anchorer,
		audit:            audit,
		now:              time.Now,
		log:              log,
	}
}

// SetClock overrides the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Change is one entity status change inside a committed unit.
type Change struct {
	Ref  domain.EntityRef `json:"ref"`
	From string           `json:"from"`
	To   string           `json:"to"`
}

// TransitionResult describes a committed transition and everything it cascaded into.
type TransitionResult struct {
	Ref      domain.EntityRef     `json:"ref"`
	Event    transition.EventName `json:"event"`
	From     string               `json:"from"`
	To       string               `json:"to"`
	Cascaded []Change             `json:"cascaded,omitempty"`
	Warnings []domain.Warning     `json:"warnings,omitempty"`
}

// IssueResult is the outcome of IssueCredit.
type IssueResult struct {
	Credit   domain.Credit    `json:"credit"`
	Project  domain.Project   `json:"project"`
	Warnings []domain.Warning `json:"warnings,omitempty"`
}

// Snapshot is a consistent copy of every collection.
type Snapshot struct {
	Projects []domain.Project
	Credits  []domain.Credit
	Reports  []domain.VerificationReport
	TakenAt  time.Time
}

func (s *Store) GetProject(_ context.Context, id string) (domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return domain.Project{}, apperror.ErrNotFound("project", id)
	}
	return p.Clone(), nil
}

func (s *Store) GetCredit(_ context.Context, id string) (domain.Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.credits[id]
	if !ok {
		return domain.Credit{}, apperror.ErrNotFound("credit", id)
	}
	return *c, nil
}

func (s *Store) GetReport(_ context.Context, id string) (domain.VerificationReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[id]
	if !ok {
		return domain.VerificationReport{}, apperror.ErrNotFound("report", id)
	}
	return r.Clone(), nil
}

// ListCredits returns the credits of one project in issuance order, or all
// credits when projectID is empty.
func (s *Store) ListCredits(_ context.Context, projectID string) []domain.Credit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if projectID == "" {
		return s.allCreditsLocked()
	}
	ids := s.creditsByProject[projectID]
	out := make([]domain.Credit, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.credits[id])
	}
	return out
}

// ListReports returns the reports of one credit, or all reports when creditID is empty.
func (s *Store) ListReports(_ context.Context, creditID string) []domain.VerificationReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if creditID == "" {
		return s.allReportsLocked()
	}
	ids := s.reportsByCredit[creditID]
	out := make([]domain.VerificationReport, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.reports[id].Clone())
	}
	return out
}

func (s *Store) ListProjects(_ context.Context) []domain.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allProjectsLocked()
}

// OpenReviewFor returns the pending report for a credit, if one exists.
func (s *Store) OpenReviewFor(_ context.Context, creditID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.openReview[creditID]
	return id, ok
}

// Snapshot copies every collection under one read lock.
func (s *Store) Snapshot(_ context.Context) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		Projects: s.allProjectsLocked(),
		Credits:  s.allCreditsLocked(),
		Reports:  s.allReportsLocked(),
		TakenAt:  s.now().UTC(),
	}
}

func (s *Store) allProjectsLocked() []domain.Project {
	out := make([]domain.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) allCreditsLocked() []domain.Credit {
	out := make([]domain.Credit, 0, len(s.credits))
	for _, c := range s.credits {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SerialNumber < out[j].SerialNumber })
	return out
}

func (s *Store) allReportsLocked() []domain.VerificationReport {
	out := make([]domain.VerificationReport, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VerificationDate.Equal(out[j].VerificationDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].VerificationDate.Before(out[j].VerificationDate)
	})
	return out
}

// ApplyTransition validates ev against the entity ref points to and commits
// the resulting state. On rejection nothing changes.
func (s *Store) ApplyTransition(ctx context.Context, ref domain.EntityRef, ev transition.Event) (TransitionResult, error) {
	switch ref.Kind {
	case domain.EntityProject:
		return s.transitionProject(ctx, ref.ID, ev)
	case domain.EntityCredit:
		return s.transitionCredit(ctx, ref.ID, ev)
	case domain.EntityReport:
		switch ev.Name {
		case transition.EventApprove:
			return s.approveReport(ctx, ref.ID, ev)
		case transition.EventReject:
			return s.rejectReport(ctx, ref.ID, ev)
		case transition.EventRecordFindings:
			return TransitionResult{}, apperror.ErrInvalidSpec("findings are recorded with RecordFindings")
		}
		r, err := s.GetReport(ctx, ref.ID)
		if err != nil {
			return TransitionResult{}, err
		}
		_, err = transition.Report(r, ev)
		return TransitionResult{}, err
	}
	return TransitionResult{}, apperror.ErrInvalidSpec("unknown entity kind " + string(ref.Kind))
}
