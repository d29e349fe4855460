package registry

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/pkg/apperror"
)

type anchorPayload struct {
	TransitionID string              `json:"transition_id"`
	Kind         domain.AnchorKind   `json:"kind"`
	ProjectID    string              `json:"project_id"`
	CreditID     string              `json:"credit_id"`
	ReportID     string              `json:"report_id,omitempty"`
	VerifierID   string              `json:"verifier_id,omitempty"`
	Serial       string              `json:"serial_number"`
	Amount       int64               `json:"amount"`
	Vintage      int                 `json:"vintage"`
	Methodology  string              `json:"methodology"`
	Status       domain.CreditStatus `json:"credit_status"`
	OccurredAt   string              `json:"occurred_at"`
}

func issuancePayload(c domain.Credit) []byte {
	b, _ := json.Marshal(anchorPayload{
		TransitionID: domain.BuildIssuanceTransitionID(c.ID),
		Kind:         domain.AnchorKindCreditIssuance,
		ProjectID:    c.ProjectID,
		CreditID:     c.ID,
		Serial:       c.SerialNumber,
		Amount:       c.Amount,
		Vintage:      c.Vintage,
		Methodology:  c.Methodology,
		Status:       c.Status,
		OccurredAt:   c.IssuedAt.Format(time.RFC3339Nano),
	})
	return b
}

func approvalPayload(r domain.VerificationReport, c domain.Credit) []byte {
	occurred := r.UpdatedAt
	if r.DecidedAt != nil {
		occurred = *r.DecidedAt
	}
	b, _ := json.Marshal(anchorPayload{
		TransitionID: domain.BuildApprovalTransitionID(r.ID),
		Kind:         domain.AnchorKindReportApproval,
		ProjectID:    r.ProjectID,
		CreditID:     r.CreditID,
		ReportID:     r.ID,
		VerifierID:   r.VerifierID,
		Serial:       c.SerialNumber,
		Amount:       c.Amount,
		Vintage:      c.Vintage,
		Methodology:  c.Methodology,
		Status:       domain.CreditStatusVerified,
		OccurredAt:   occurred.Format(time.RFC3339Nano),
	})
	return b
}

// anchor hands a committed transition to the anchorer. Failure never undoes
// the transition; it becomes a warning on the result and the audit trail.
func (s *Store) anchor(ctx context.Context, req domain.AnchorRequest) []domain.Warning {
	if s.anchorer == nil {
		return nil
	}
	if _, err := s.anchorer.Enqueue(ctx, req); err != nil {
		appErr := apperror.ErrAnchoringFailure(req.TransitionID, err)
		s.log.Warn().Err(err).Str("transition_id", req.TransitionID).Msg("anchoring enqueue failed")

		s.mu.Lock()
		entry := s.entryLocked(req.Entity, domain.AuditActionAnchorFailed, req.TransitionID, "", "", "", appErr.Error())
		s.mu.Unlock()
		s.forward(ctx, entry)

		return []domain.Warning{{Code: appErr.Code, Message: appErr.Error(), TransitionID: req.TransitionID}}
	}
	return nil
}

// AnchorSubmitted records the ledger reference on the anchored entity.
func (s *Store) AnchorSubmitted(rec domain.AnchorRecord) {
	release := s.locks.acquire(rec.Entity)
	defer release()

	s.mu.Lock()
	switch rec.Entity.Kind {
	case domain.EntityCredit:
		if c, ok := s.credits[rec.Entity.ID]; ok {
			c.AnchorTxRef = rec.TxRef
		}
	case domain.EntityReport:
		if r, ok := s.reports[rec.Entity.ID]; ok {
			r.AnchorTxRef = rec.TxRef
		}
	}
	entry := s.entryLocked(rec.Entity, domain.AuditActionAnchorSubmitted, rec.TransitionID, "", string(rec.Status), "", rec.TxRef)
	s.mu.Unlock()

	s.forward(context.Background(), entry)
}

// AnchorFailed surfaces an exhausted anchoring record as a warning on the
// entity's audit trail. Domain state is left as committed.
func (s *Store) AnchorFailed(rec domain.AnchorRecord) {
	s.mu.Lock()
	entry := s.entryLocked(rec.Entity, domain.AuditActionAnchorFailed, rec.TransitionID, "", string(rec.Status), "",
		apperror.ErrAnchoringFailure(rec.TransitionID, errors.New(rec.LastError)).Error())
	s.mu.Unlock()

	s.forward(context.Background(), entry)
	s.log.Warn().
		Str("transition_id", rec.TransitionID).
		Int("attempts", rec.Attempts).
		Str("last_error", rec.LastError).
		Msg("anchoring exhausted; transition stays committed")
}
