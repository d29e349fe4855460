package registry

import (
	"context"
	"strings"
	"time"

	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/internal/core/transition"
	"bluecarbon-registry/pkg/apperror"
)

// IssueCredit allocates a pending credit with a fresh serial number and
// activates the project on its first issuance.
func (s *Store) IssueCredit(ctx context.Context, req domain.IssueRequest) (IssueResult, error) {
	req.ProjectID = strings.TrimSpace(req.ProjectID)
	req.Methodology = strings.TrimSpace(req.Methodology)
	if err := transition.ValidateIssueRequest(req); err != nil {
		return IssueResult{}, err
	}

	projectRef := domain.ProjectRef(req.ProjectID)
	release := s.locks.acquire(projectRef)

	s.mu.RLock()
	p, ok := s.projects[req.ProjectID]
	if !ok {
		s.mu.RUnlock()
		release()
		return IssueResult{}, apperror.ErrNotFound("project", req.ProjectID)
	}
	project := p.Clone()
	var outstanding int64
	for _, cid := range s.creditsByProject[req.ProjectID] {
		outstanding += s.credits[cid].Amount
	}
	issued := len(s.creditsByProject[req.ProjectID])
	seq := s.serialSeq[req.ProjectID] + 1
	s.mu.RUnlock()

	if err := transition.Issuance(project, outstanding, req.Amount); err != nil {
		release()
		return IssueResult{}, err
	}

	var activate bool
	if project.Status == domain.ProjectStatusPending {
		if _, err := transition.Project(project, transition.ActivateOnFirstIssuance(), transition.ProjectGuard{IssuedCount: issued + 1}); err != nil {
			release()
			return IssueResult{}, err
		}
		activate = true
	}

	id := s.ids.NewID()
	now := s.now().UTC()
	credit := &domain.Credit{
		ID:           id,
		ProjectID:    req.ProjectID,
		Amount:       req.Amount,
		PricePerTon:  req.PricePerTon,
		Status:       domain.CreditStatusPending,
		IssuedAt:     now,
		SerialNumber: domain.BuildSerialNumber(req.ProjectID, req.Vintage, seq),
		Vintage:      req.Vintage,
		Methodology:  req.Methodology,
		UpdatedAt:    now,
	}

	s.mu.Lock()
	if _, exists := s.credits[id]; exists {
		s.mu.Unlock()
		release()
		return IssueResult{}, apperror.ErrDuplicateID("credit", id)
	}
	if _, taken := s.serials[credit.SerialNumber]; taken {
		s.mu.Unlock()
		release()
		return IssueResult{}, apperror.ErrDuplicateID("serial", credit.SerialNumber)
	}
	s.credits[id] = credit
	s.creditsByProject[req.ProjectID] = append(s.creditsByProject[req.ProjectID], id)
	s.serialSeq[req.ProjectID] = seq
	s.serials[credit.SerialNumber] = id

	entries := []domain.AuditLog{
		s.entryLocked(domain.CreditRef(id), domain.AuditActionCreditIssued, string(transition.EventIssue), "", string(credit.Status), project.OwnerID, credit.SerialNumber),
	}
	if activate {
		p.Status = domain.ProjectStatusActive
		entries = append(entries, s.entryLocked(projectRef, domain.AuditActionTransition, string(transition.EventActivate),
			string(domain.ProjectStatusPending), string(domain.ProjectStatusActive), "", "first issuance "+credit.SerialNumber))
	}
	p.UpdatedAt = now
	result := IssueResult{Credit: *credit, Project: p.Clone()}
	s.mu.Unlock()
	release()

	s.forward(ctx, entries...)
	s.log.Info().
		Str("project_id", req.ProjectID).
		Str("credit_id", id).
		Str("serial", credit.SerialNumber).
		Int64("amount", req.Amount).
		Msg("credit issued")

	result.Warnings = s.anchor(ctx, domain.AnchorRequest{
		TransitionID: domain.BuildIssuanceTransitionID(id),
		Kind:         domain.AnchorKindCreditIssuance,
		Entity:       domain.CreditRef(id),
		Payload:      issuancePayload(result.Credit),
	})
	return result, nil
}

func (s *Store) transitionCredit(ctx context.Context, id string, ev transition.Event) (TransitionResult, error) {
	s.mu.RLock()
	c, ok := s.credits[id]
	var projectID string
	if ok {
		projectID = c.ProjectID
	}
	s.mu.RUnlock()
	if !ok {
		return TransitionResult{}, apperror.ErrNotFound("credit", id)
	}

	ref := domain.CreditRef(id)
	// Verify changes project aggregates, so it serializes with the project.
	var release func()
	if ev.Name == transition.EventVerify {
		release = s.locks.acquire(domain.ProjectRef(projectID), ref)
	} else {
		release = s.locks.acquire(ref)
	}
	defer release()

	s.mu.RLock()
	c, ok = s.credits[id]
	if !ok {
		s.mu.RUnlock()
		return TransitionResult{}, apperror.ErrNotFound("credit", id)
	}
	current := *c
	p := s.projects[projectID]
	guard := transition.CreditGuard{
		Headroom:      p.Headroom(),
		ProjectStatus: p.Status,
	}
	if ev.Name == transition.EventVerify {
		for _, rid := range s.reportsByCredit[id] {
			if r := s.reports[rid]; r.ID == ev.ReportID && r.Status == domain.ReportStatusApproved {
				guard.ApprovedReportID = r.ID
			}
		}
	}
	s.mu.RUnlock()

	next, err := transition.Credit(current, ev, guard)
	if err != nil {
		return TransitionResult{}, err
	}

	now := s.now().UTC()
	s.mu.Lock()
	entries := []domain.AuditLog{s.applyCreditLocked(c, ev, next, now)}
	var cascaded []Change
	if ev.Name == transition.EventVerify {
		if change, entry, ok := s.creditVerifiedLocked(p, c.Amount, now); ok {
			cascaded = append(cascaded, change)
			entries = append(entries, entry)
		}
	}
	s.mu.Unlock()

	s.forward(ctx, entries...)
	s.log.Info().Str("credit_id", id).Str("event", string(ev.Name)).Str("from", string(current.Status)).Str("to", string(next)).Msg("credit transition committed")

	return TransitionResult{Ref: ref, Event: ev.Name, From: string(current.Status), To: string(next), Cascaded: cascaded}, nil
}

// applyCreditLocked writes a validated credit transition. Callers hold s.mu.
func (s *Store) applyCreditLocked(c *domain.Credit, ev transition.Event, next domain.CreditStatus, now time.Time) domain.AuditLog {
	from := c.Status
	c.Status = next
	c.UpdatedAt = now
	switch ev.Name {
	case transition.EventVerify:
		c.VerifiedAt = &now
		c.ApprovedReportID = ev.ReportID
	case transition.EventSell:
		c.BuyerRef = ev.BuyerRef
		c.SoldAt = &now
	case transition.EventRetire:
		c.RetiredAt = &now
	}
	return s.entryLocked(domain.CreditRef(c.ID), domain.AuditActionTransition, string(ev.Name), string(from), string(next), ev.Actor, ev.BuyerRef)
}

// creditVerifiedLocked adds amount to the project's verified volume and
// completes the project once the estimate is reached. Callers hold s.mu.
func (s *Store) creditVerifiedLocked(p *domain.Project, amount int64, now time.Time) (Change, domain.AuditLog, bool) {
	p.VerifiedCredits += amount
	p.UpdatedAt = now

	snapshot := p.Clone()
	next, err := transition.Project(snapshot, transition.CompleteOnFullVerification(), transition.ProjectGuard{
		IssuedCount:   len(s.creditsByProject[p.ID]),
		VerifiedTotal: p.VerifiedCredits,
	})
	if err != nil {
		return Change{}, domain.AuditLog{}, false
	}
	p.Status = next
	entry := s.entryLocked(domain.ProjectRef(p.ID), domain.AuditActionTransition, string(transition.EventComplete),
		string(snapshot.Status), string(next), "", "verified volume reached estimate")
	return Change{Ref: domain.ProjectRef(p.ID), From: string(snapshot.Status), To: string(next)}, entry, true
}

// DeleteCredit removes a pending credit that no verification report
// references. Its serial number stays reserved.
func (s *Store) DeleteCredit(ctx context.Context, id string, actor string) error {
	c, err := s.GetCredit(ctx, id)
	if err != nil {
		return err
	}

	release := s.locks.acquire(domain.ProjectRef(c.ProjectID), domain.CreditRef(id))
	defer release()

	s.mu.Lock()
	stored, ok := s.credits[id]
	if !ok {
		s.mu.Unlock()
		return apperror.ErrNotFound("credit", id)
	}
	if stored.Status != domain.CreditStatusPending {
		s.mu.Unlock()
		return apperror.ErrInvalidTransition("credit", id, string(stored.Status), "Delete", "only pending credits may be deleted")
	}
	if refs := s.reportsByCredit[id]; len(refs) > 0 {
		s.mu.Unlock()
		return apperror.ErrReferenced("credit", id, "report "+refs[0])
	}

	delete(s.credits, id)
	ids := s.creditsByProject[stored.ProjectID]
	for i, cid := range ids {
		if cid == id {
			s.creditsByProject[stored.ProjectID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	entry := s.entryLocked(domain.CreditRef(id), domain.AuditActionCreditDeleted, "", string(stored.Status), "", actor, stored.SerialNumber)
	s.mu.Unlock()

	s.forward(ctx, entry)
	s.log.Info().Str("credit_id", id).Str("serial", stored.SerialNumber).Msg("credit deleted")
	return nil
}
