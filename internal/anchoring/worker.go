package anchoring

import (
	"context"
	"errors"
	"time"

	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/internal/core/ports"

	"github.com/cenkalti/backoff/v4"
)

var errLedgerRejected = errors.New("ledger reported transaction failed")

func (c *Coordinator) work(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case id := <-c.queue:
			c.process(ctx, id)
		}
	}
}

// process runs the submission for id. Concurrent calls for the same id
// share a single ledger interaction.
func (c *Coordinator) process(ctx context.Context, id string) {
	defer func() {
		c.mu.Lock()
		delete(c.inflight, id)
		c.mu.Unlock()
	}()

	_, _, _ = c.flight.Do(id, func() (interface{}, error) {
		c.submit(ctx, id)
		return nil, nil
	})
}

func (c *Coordinator) submit(ctx context.Context, id string) {
	c.mu.Lock()
	rec, ok := c.records[id]
	if !ok || !runnable(rec) {
		c.mu.Unlock()
		return
	}
	remaining := c.cfg.MaxAttempts - rec.Attempts
	payload := append([]byte(nil), rec.Payload...)
	c.mu.Unlock()

	if remaining <= 0 {
		c.exhaust(id)
		return
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(remaining-1)), ctx)

	var txRef string
	op := func() error {
		ref, err := c.attempt(ctx, id, payload)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		txRef = ref
		return nil
	}
	notify := func(err error, wait time.Duration) {
		next := c.now().UTC().Add(wait)
		c.mu.Lock()
		if rec, ok := c.records[id]; ok {
			rec.NextAttemptAt = &next
		}
		c.mu.Unlock()
		c.log.Warn().Err(err).Str("transition_id", id).Dur("retry_in", wait).Msg("ledger submission failed, retrying")
	}

	err := backoff.RetryNotify(op, policy, notify)
	switch {
	case err == nil:
		c.submitted(id, txRef)
	case ctx.Err() != nil:
		// Shutdown: leave the record queued or failed for the next start.
		c.log.Info().Str("transition_id", id).Msg("anchoring interrupted")
	default:
		c.exhaust(id)
	}
}

// attempt performs one ledger submission and records its outcome.
func (c *Coordinator) attempt(ctx context.Context, id string, payload []byte) (string, error) {
	c.mu.Lock()
	rec, ok := c.records[id]
	if !ok {
		c.mu.Unlock()
		return "", backoff.Permanent(errors.New("anchor record disappeared"))
	}
	rec.Attempts++
	rec.NextAttemptAt = nil
	rec.UpdatedAt = c.now().UTC()
	c.mu.Unlock()

	c.metrics.Attempts.Inc()
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
	defer cancel()

	start := time.Now()
	ref, err := c.ledger.Submit(attemptCtx, payload)
	c.metrics.SubmitDuration.Observe(time.Since(start).Seconds())
	if err == nil && ref == "" {
		err = errors.New("ledger returned an empty transaction reference")
	}
	if err != nil {
		c.metrics.AttemptErrors.Inc()
		c.mu.Lock()
		c.setStatusLocked(rec, domain.AnchorStatusFailed)
		rec.LastError = err.Error()
		out := cloneRecord(rec)
		c.mu.Unlock()
		c.persist(out)
		return "", err
	}
	return ref, nil
}

// retryable reports whether a submission error may succeed on a later attempt.
func retryable(err error) bool {
	return errors.Is(err, ports.ErrLedgerTransport) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Coordinator) submitted(id, txRef string) {
	c.mu.Lock()
	rec, ok := c.records[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	c.setStatusLocked(rec, domain.AnchorStatusSubmitted)
	rec.TxRef = txRef
	rec.LastError = ""
	out := cloneRecord(rec)
	c.mu.Unlock()

	c.metrics.Submitted.Inc()
	c.persist(out)
	c.log.Info().Str("transition_id", id).Str("tx_ref", txRef).Int("attempts", out.Attempts).Msg("anchor submitted")
	if c.listener != nil {
		c.listener.AnchorSubmitted(out)
	}
}

// exhaust marks a record permanently failed and notifies the listener.
func (c *Coordinator) exhaust(id string) {
	c.mu.Lock()
	rec, ok := c.records[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	c.setStatusLocked(rec, domain.AnchorStatusFailed)
	rec.Exhausted = true
	rec.NextAttemptAt = nil
	out := cloneRecord(rec)
	c.mu.Unlock()

	c.metrics.Exhausted.Inc()
	c.persist(out)
	c.log.Warn().Str("transition_id", id).Int("attempts", out.Attempts).Str("last_error", out.LastError).Msg("anchoring attempts exhausted")
	if c.listener != nil {
		c.listener.AnchorFailed(out)
	}
}

// poll checks submitted records for finality and re-dispatches runnable
// records that are not on the queue.
func (c *Coordinator) poll(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.confirm(ctx)
			c.sweep()
		}
	}
}

func (c *Coordinator) confirm(ctx context.Context) {
	type pending struct{ id, txRef string }

	c.mu.Lock()
	var batch []pending
	for id, rec := range c.records {
		if rec.Status == domain.AnchorStatusSubmitted {
			batch = append(batch, pending{id: id, txRef: rec.TxRef})
		}
	}
	c.mu.Unlock()

	for _, p := range batch {
		if ctx.Err() != nil {
			return
		}
		statusCtx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
		status, err := c.ledger.Status(statusCtx, p.txRef)
		cancel()
		if err != nil {
			c.log.Warn().Err(err).Str("transition_id", p.id).Str("tx_ref", p.txRef).Msg("ledger status check failed")
			continue
		}

		switch status {
		case domain.LedgerTxConfirmed:
			c.confirmed(p.id, p.txRef)
		case domain.LedgerTxFailed:
			c.ledgerFailed(p.id, p.txRef)
		}
	}
}

func (c *Coordinator) confirmed(id, txRef string) {
	c.mu.Lock()
	rec, ok := c.records[id]
	if !ok || rec.Status != domain.AnchorStatusSubmitted || rec.TxRef != txRef {
		c.mu.Unlock()
		return
	}
	now := c.now().UTC()
	c.setStatusLocked(rec, domain.AnchorStatusConfirmed)
	rec.ConfirmedAt = &now
	out := cloneRecord(rec)
	c.mu.Unlock()

	c.metrics.Confirmed.Inc()
	c.persist(out)
	c.log.Info().Str("transition_id", id).Str("tx_ref", txRef).Msg("anchor confirmed")
}

// ledgerFailed handles a transaction the ledger accepted and later dropped.
// The record goes back to failed and is resubmitted while attempts remain.
func (c *Coordinator) ledgerFailed(id, txRef string) {
	c.mu.Lock()
	rec, ok := c.records[id]
	if !ok || rec.Status != domain.AnchorStatusSubmitted || rec.TxRef != txRef {
		c.mu.Unlock()
		return
	}
	c.setStatusLocked(rec, domain.AnchorStatusFailed)
	rec.LastError = errLedgerRejected.Error() + ": " + txRef
	exhausted := rec.Attempts >= c.cfg.MaxAttempts
	out := cloneRecord(rec)
	c.mu.Unlock()

	c.log.Warn().Str("transition_id", id).Str("tx_ref", txRef).Msg("ledger dropped anchored transaction")
	if exhausted {
		c.exhaust(id)
		return
	}
	c.persist(out)
	c.dispatch(id)
}

func (c *Coordinator) sweep() {
	c.mu.Lock()
	var ids []string
	for id, rec := range c.records {
		if _, busy := c.inflight[id]; busy || !runnable(rec) {
			continue
		}
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.dispatch(id)
	}
}
