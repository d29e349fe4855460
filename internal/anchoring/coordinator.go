// Package anchoring records ledger-relevant transitions on the external
// ledger. Submission and confirmation run on background workers; domain
// state is never touched from here.
package anchoring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/internal/core/ports"
	"bluecarbon-registry/pkg/apperror"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Config tunes retries, the worker pool and the confirmation poll.
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	PollInterval   time.Duration
	SubmitTimeout  time.Duration
	Workers        int
	QueueSize      int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		PollInterval:   5 * time.Second,
		SubmitTimeout:  10 * time.Second,
		Workers:        4,
		QueueSize:      256,
	}
}

// Coordinator owns the anchoring record table.
type Coordinator struct {
	cfg      Config
	ledger   ports.Ledger
	repo     ports.AnchorRepository
	metrics  *Metrics
	log      zerolog.Logger
	now      func() time.Time
	listener ports.AnchorListener

	mu       sync.Mutex
	records  map[string]*domain.AnchorRecord
	inflight map[string]struct{} // queued on the channel or being processed

	queue  chan string
	flight singleflight.Group

	runMu  sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates a Coordinator. repo may be nil, in which case records live only in memory.
func New(cfg Config, ledger ports.Ledger, repo ports.AnchorRepository, metrics *Metrics, log zerolog.Logger) *Coordinator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultConfig().SubmitTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Coordinator{
		cfg:      cfg,
		ledger:   ledger,
		repo:     repo,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
		records:  make(map[string]*domain.AnchorRecord),
		inflight: make(map[string]struct{}),
		queue:    make(chan string, cfg.QueueSize),
	}
}

// SetListener registers the receiver of submission and exhaustion events.
// It must be called before Start.
func (c *Coordinator) SetListener(l ports.AnchorListener) {
	c.listener = l
}

// Enqueue accepts a transition for anchoring. Re-enqueuing a known
// transition id returns the existing record unchanged.
func (c *Coordinator) Enqueue(ctx context.Context, req domain.AnchorRequest) (domain.AnchorRecord, error) {
	if req.TransitionID == "" {
		return domain.AnchorRecord{}, apperror.ErrInvalidSpec("transition id is required")
	}

	c.mu.Lock()
	if existing, ok := c.records[req.TransitionID]; ok {
		out := cloneRecord(existing)
		c.mu.Unlock()
		return out, nil
	}
	now := c.now().UTC()
	rec := &domain.AnchorRecord{
		TransitionID: req.TransitionID,
		Kind:         req.Kind,
		Entity:       req.Entity,
		Payload:      append([]byte(nil), req.Payload...),
		Status:       domain.AnchorStatusQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	c.records[req.TransitionID] = rec
	c.metrics.move("", rec.Status)
	out := cloneRecord(rec)
	c.mu.Unlock()

	c.metrics.Enqueued.Inc()

	if c.repo != nil {
		inserted, err := c.repo.InsertIfAbsent(ctx, &out)
		if err != nil {
			// Keep the in-memory record; it is flushed again on shutdown.
			c.dispatch(req.TransitionID)
			return out, fmt.Errorf("persisting anchor record %s: %w", req.TransitionID, err)
		}
		if !inserted {
			if durable, err := c.repo.Get(ctx, req.TransitionID); err == nil && durable != nil {
				out = c.adopt(durable)
			}
		}
	}

	c.dispatch(req.TransitionID)
	c.log.Debug().Str("transition_id", req.TransitionID).Str("kind", string(req.Kind)).Msg("anchor enqueued")
	return out, nil
}

// adopt replaces the in-memory record with a durable one written by an
// earlier process.
func (c *Coordinator) adopt(durable *domain.AnchorRecord) domain.AnchorRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.records[durable.TransitionID]; ok {
		c.metrics.Records.WithLabelValues(string(cur.Status)).Dec()
	}
	rec := cloneRecord(durable)
	c.records[durable.TransitionID] = &rec
	c.metrics.Records.WithLabelValues(string(rec.Status)).Inc()
	return cloneRecord(&rec)
}

// dispatch hands a runnable record to the workers. When the queue is full
// the record stays queued and the poll sweep picks it up later.
func (c *Coordinator) dispatch(id string) {
	c.mu.Lock()
	rec, ok := c.records[id]
	if !ok || !runnable(rec) {
		c.mu.Unlock()
		return
	}
	if _, busy := c.inflight[id]; busy {
		c.mu.Unlock()
		return
	}
	c.inflight[id] = struct{}{}
	c.mu.Unlock()

	select {
	case c.queue <- id:
	default:
		c.mu.Lock()
		delete(c.inflight, id)
		c.mu.Unlock()
		c.log.Debug().Str("transition_id", id).Msg("anchor queue full, deferring to sweep")
	}
}

func runnable(rec *domain.AnchorRecord) bool {
	switch rec.Status {
	case domain.AnchorStatusQueued:
		return true
	case domain.AnchorStatusFailed:
		return !rec.Exhausted
	}
	return false
}

// Start launches the worker pool and the confirmation poll.
func (c *Coordinator) Start(ctx context.Context) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.group != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.cfg.Workers; i++ {
		g.Go(func() error { return c.work(gctx) })
	}
	g.Go(func() error { return c.poll(gctx) })

	c.cancel = cancel
	c.group = g
	c.log.Info().Int("workers", c.cfg.Workers).Dur("poll_interval", c.cfg.PollInterval).Msg("anchoring coordinator started")
}

// Shutdown cancels in-flight work, waits for the workers and flushes every
// record to the repository. Records interrupted mid-retry stay queued or
// failed and are resumed by Recover on the next start.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.runMu.Lock()
	cancel, g := c.cancel, c.group
	c.cancel, c.group = nil, nil
	c.runMu.Unlock()

	if g == nil {
		return c.flush(ctx)
	}

	cancel()
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for anchoring workers: %w", ctx.Err()))
	}

	if err := c.flush(ctx); err != nil {
		errs = append(errs, err)
	}
	c.log.Info().Msg("anchoring coordinator stopped")
	return errors.Join(errs...)
}

func (c *Coordinator) flush(ctx context.Context) error {
	if c.repo == nil {
		return nil
	}
	recs := c.List()
	if len(recs) == 0 {
		return nil
	}
	if err := c.repo.SaveAll(ctx, recs); err != nil {
		return fmt.Errorf("flushing anchor records: %w", err)
	}
	return nil
}

// Recover loads every resumable record from the repository and schedules
// the ones that still need a submission.
func (c *Coordinator) Recover(ctx context.Context) (int, error) {
	if c.repo == nil {
		return 0, nil
	}
	recs, err := c.repo.ListResumable(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing resumable anchors: %w", err)
	}

	var loaded []string
	c.mu.Lock()
	for i := range recs {
		if _, ok := c.records[recs[i].TransitionID]; ok {
			continue
		}
		rec := cloneRecord(&recs[i])
		c.records[rec.TransitionID] = &rec
		c.metrics.move("", rec.Status)
		loaded = append(loaded, rec.TransitionID)
	}
	c.mu.Unlock()

	for _, id := range loaded {
		c.dispatch(id)
	}
	c.log.Info().Int("records", len(loaded)).Msg("anchoring records recovered")
	return len(loaded), nil
}

// Retry re-arms an exhausted record with a fresh attempt budget. Records
// still inside their retry budget are left to the worker that owns them.
func (c *Coordinator) Retry(ctx context.Context, transitionID string) (domain.AnchorRecord, error) {
	c.mu.Lock()
	rec, ok := c.records[transitionID]
	if !ok {
		c.mu.Unlock()
		return domain.AnchorRecord{}, apperror.ErrNotFound("anchor", transitionID)
	}
	if rec.Status != domain.AnchorStatusFailed || !rec.Exhausted {
		status := string(rec.Status)
		c.mu.Unlock()
		return domain.AnchorRecord{}, apperror.ErrInvalidTransition("anchor", transitionID, status, "Retry", "only exhausted anchors can be retried")
	}
	c.setStatusLocked(rec, domain.AnchorStatusQueued)
	rec.Attempts = 0
	rec.Exhausted = false
	rec.NextAttemptAt = nil
	out := cloneRecord(rec)
	c.mu.Unlock()

	c.persist(out)
	c.dispatch(transitionID)
	c.log.Info().Str("transition_id", transitionID).Msg("anchor re-armed")
	return out, nil
}

// Get returns a copy of one record.
func (c *Coordinator) Get(transitionID string) (domain.AnchorRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[transitionID]
	if !ok {
		return domain.AnchorRecord{}, false
	}
	return cloneRecord(rec), true
}

// List returns copies of every record ordered by creation time.
func (c *Coordinator) List() []domain.AnchorRecord {
	c.mu.Lock()
	out := make([]domain.AnchorRecord, 0, len(c.records))
	for _, rec := range c.records {
		out = append(out, cloneRecord(rec))
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].TransitionID < out[j].TransitionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Counts returns the number of records per status.
func (c *Coordinator) Counts() map[domain.AnchorStatus]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := map[domain.AnchorStatus]int{
		domain.AnchorStatusQueued:    0,
		domain.AnchorStatusSubmitted: 0,
		domain.AnchorStatusConfirmed: 0,
		domain.AnchorStatusFailed:    0,
	}
	for _, rec := range c.records {
		out[rec.Status]++
	}
	return out
}

func (c *Coordinator) setStatusLocked(rec *domain.AnchorRecord, status domain.AnchorStatus) {
	if rec.Status != status {
		c.metrics.move(rec.Status, status)
	}
	rec.Status = status
	rec.UpdatedAt = c.now().UTC()
}

// persist writes one record to the repository, detached from the caller's
// context so shutdown cancellation does not drop the write.
func (c *Coordinator) persist(rec domain.AnchorRecord) {
	if c.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SubmitTimeout)
	defer cancel()
	if err := c.repo.Save(ctx, &rec); err != nil {
		c.log.Warn().Err(err).Str("transition_id", rec.TransitionID).Msg("failed to persist anchor record")
	}
}

func cloneRecord(rec *domain.AnchorRecord) domain.AnchorRecord {
	out := *rec
	out.Payload = append([]byte(nil), rec.Payload...)
	return out
}
