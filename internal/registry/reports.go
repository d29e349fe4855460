package registry

import (
	"context"
	"strings"

	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/internal/core/transition"
	"bluecarbon-registry/pkg/apperror"
)

// OpenReview creates a pending verification report for a pending credit.
// A credit has at most one pending report at a time.
func (s *Store) OpenReview(ctx context.Context, projectID, creditID, verifierID string) (domain.VerificationReport, error) {
	if strings.TrimSpace(verifierID) == "" {
		return domain.VerificationReport{}, apperror.ErrInvalidSpec("verifier is required")
	}
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return domain.VerificationReport{}, err
	}

	creditRef := domain.CreditRef(creditID)
	release := s.locks.acquire(creditRef)
	defer release()

	s.mu.RLock()
	c, ok := s.credits[creditID]
	if !ok {
		s.mu.RUnlock()
		return domain.VerificationReport{}, apperror.ErrNotFound("credit", creditID)
	}
	credit := *c
	openID, open := s.openReview[creditID]
	s.mu.RUnlock()

	if credit.ProjectID != projectID {
		return domain.VerificationReport{}, apperror.ErrInvalidSpec("credit " + creditID + " does not belong to project " + projectID)
	}
	if credit.Status != domain.CreditStatusPending {
		return domain.VerificationReport{}, apperror.ErrInvalidTransition("credit", creditID, string(credit.Status), "StartReview", "only pending credits can be reviewed")
	}
	if open {
		return domain.VerificationReport{}, apperror.ErrDuplicateOpenReview(creditID, openID)
	}

	now := s.now().UTC()
	r := &domain.VerificationReport{
		ID:               s.ids.NewID(),
		ProjectID:        projectID,
		CreditID:         creditID,
		VerifierID:       verifierID,
		VerificationDate: now,
		Status:           domain.ReportStatusPending,
		Recommendations:  []string{},
		Attachments:      []string{},
		UpdatedAt:        now,
	}

	s.mu.Lock()
	if _, exists := s.reports[r.ID]; exists {
		s.mu.Unlock()
		return domain.VerificationReport{}, apperror.ErrDuplicateID("report", r.ID)
	}
	s.reports[r.ID] = r
	s.reportsByCredit[creditID] = append(s.reportsByCredit[creditID], r.ID)
	s.openReview[creditID] = r.ID
	entry := s.entryLocked(domain.ReportRef(r.ID), domain.AuditActionReviewOpened, "", "", string(r.Status), verifierID, "credit "+creditID)
	out := r.Clone()
	s.mu.Unlock()

	s.forward(ctx, entry)
	s.log.Info().Str("report_id", r.ID).Str("credit_id", creditID).Str("verifier_id", verifierID).Msg("review opened")
	return out, nil
}

// RecordFindings replaces the findings of a pending report.
func (s *Store) RecordFindings(ctx context.Context, reportID string, f domain.Findings, actor string) (domain.VerificationReport, error) {
	ref := domain.ReportRef(reportID)
	release := s.locks.acquire(ref)
	defer release()

	s.mu.RLock()
	r, ok := s.reports[reportID]
	if !ok {
		s.mu.RUnlock()
		return domain.VerificationReport{}, apperror.ErrNotFound("report", reportID)
	}
	current := r.Clone()
	s.mu.RUnlock()

	if _, err := transition.Report(current, transition.RecordFindings()); err != nil {
		return domain.VerificationReport{}, err
	}

	s.mu.Lock()
	r.Findings = f.Summary
	r.Recommendations = append([]string{}, f.Recommendations...)
	r.Attachments = append([]string{}, f.Attachments...)
	r.UpdatedAt = s.now().UTC()
	entry := s.entryLocked(ref, domain.AuditActionFindingsRecorded, string(transition.EventRecordFindings),
		string(r.Status), string(r.Status), actor, "")
	out := r.Clone()
	s.mu.Unlock()

	s.forward(ctx, entry)
	return out, nil
}

// approveReport approves a pending report and verifies its credit as one
// unit. Locks are taken project, credit, report.
func (s *Store) approveReport(ctx context.Context, reportID string, ev transition.Event) (TransitionResult, error) {
	r0, err := s.GetReport(ctx, reportID)
	if err != nil {
		return TransitionResult{}, err
	}

	ref := domain.ReportRef(reportID)
	release := s.locks.acquire(domain.ProjectRef(r0.ProjectID), domain.CreditRef(r0.CreditID), ref)

	s.mu.RLock()
	r := s.reports[reportID]
	c, ok := s.credits[r.CreditID]
	if !ok {
		s.mu.RUnlock()
		release()
		return TransitionResult{}, apperror.ErrNotFound("credit", r.CreditID)
	}
	report := r.Clone()
	credit := *c
	p := s.projects[credit.ProjectID]
	guard := transition.CreditGuard{
		ApprovedReportID: reportID,
		Headroom:         p.Headroom(),
		ProjectStatus:    p.Status,
	}
	s.mu.RUnlock()

	nextReport, err := transition.Report(report, ev)
	if err != nil {
		release()
		return TransitionResult{}, err
	}
	verify := transition.Verify(reportID).By(ev.Actor)
	nextCredit, err := transition.Credit(credit, verify, guard)
	if err != nil {
		release()
		return TransitionResult{}, err
	}

	now := s.now().UTC()
	s.mu.Lock()
	r.Status = nextReport
	r.DecisionReason = strings.TrimSpace(ev.Reason)
	r.DecidedAt = &now
	r.UpdatedAt = now
	delete(s.openReview, r.CreditID)
	entries := []domain.AuditLog{
		s.entryLocked(ref, domain.AuditActionTransition, string(ev.Name), string(report.Status), string(nextReport), ev.Actor, ev.Reason),
		s.applyCreditLocked(c, verify, nextCredit, now),
	}
	cascaded := []Change{{Ref: domain.CreditRef(c.ID), From: string(credit.Status), To: string(nextCredit)}}
	if change, entry, ok := s.creditVerifiedLocked(p, c.Amount, now); ok {
		cascaded = append(cascaded, change)
		entries = append(entries, entry)
	}
	approved := r.Clone()
	s.mu.Unlock()
	release()

	s.forward(ctx, entries...)
	s.log.Info().Str("report_id", reportID).Str("credit_id", credit.ID).Int64("amount", credit.Amount).Msg("report approved, credit verified")

	result := TransitionResult{
		Ref:      ref,
		Event:    ev.Name,
		From:     string(report.Status),
		To:       string(nextReport),
		Cascaded: cascaded,
	}
	result.Warnings = s.anchor(ctx, domain.AnchorRequest{
		TransitionID: domain.BuildApprovalTransitionID(reportID),
		Kind:         domain.AnchorKindReportApproval,
		Entity:       ref,
		Payload:      approvalPayload(approved, credit),
	})
	return result, nil
}

// rejectReport closes a pending report without touching its credit, which
// may be reviewed again.
func (s *Store) rejectReport(ctx context.Context, reportID string, ev transition.Event) (TransitionResult, error) {
	r0, err := s.GetReport(ctx, reportID)
	if err != nil {
		return TransitionResult{}, err
	}

	ref := domain.ReportRef(reportID)
	release := s.locks.acquire(domain.CreditRef(r0.CreditID), ref)
	defer release()

	s.mu.RLock()
	r := s.reports[reportID]
	report := r.Clone()
	s.mu.RUnlock()

	next, err := transition.Report(report, ev)
	if err != nil {
		return TransitionResult{}, err
	}

	now := s.now().UTC()
	s.mu.Lock()
	r.Status = next
	r.DecisionReason = strings.TrimSpace(ev.Reason)
	r.DecidedAt = &now
	r.UpdatedAt = now
	if s.openReview[r.CreditID] == reportID {
		delete(s.openReview, r.CreditID)
	}
	entry := s.entryLocked(ref, domain.AuditActionTransition, string(ev.Name), string(report.Status), string(next), ev.Actor, r.DecisionReason)
	s.mu.Unlock()

	s.forward(ctx, entry)
	s.log.Info().Str("report_id", reportID).Str("credit_id", report.CreditID).Str("reason", r.DecisionReason).Msg("report rejected")

	return TransitionResult{Ref: ref, Event: ev.Name, From: string(report.Status), To: string(next)}, nil
}
