// Package workflow drives verification reviews from opening to decision.
package workflow

import (
	"context"
	"strings"

	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/internal/core/transition"
	"bluecarbon-registry/internal/registry"
	"bluecarbon-registry/pkg/apperror"

	"github.com/rs/zerolog"
)

// Registry is the subset of the registry store a review needs.
type Registry interface {
	OpenReview(ctx context.Context, projectID, creditID, verifierID string) (domain.VerificationReport, error)
	RecordFindings(ctx context.Context, reportID string, f domain.Findings, actor string) (domain.VerificationReport, error)
	ApplyTransition(ctx context.Context, ref domain.EntityRef, ev transition.Event) (registry.TransitionResult, error)
	GetReport(ctx context.Context, id string) (domain.VerificationReport, error)
}

// Outcome is the result of a decision: the decided report and everything
// the decision committed.
type Outcome struct {
	Report     domain.VerificationReport `json:"report"`
	Transition registry.TransitionResult `json:"transition"`
}

type Service struct {
	registry Registry
	log      zerolog.Logger
}

func New(reg Registry, log zerolog.Logger) *Service {
	return &Service{registry: reg, log: log}
}

// StartReview opens a pending report on a pending credit.
func (s *Service) StartReview(ctx context.Context, projectID, creditID, verifierID string) (domain.VerificationReport, error) {
	projectID = strings.TrimSpace(projectID)
	creditID = strings.TrimSpace(creditID)
	if projectID == "" || creditID == "" {
		return domain.VerificationReport{}, apperror.ErrInvalidSpec("project and credit are required")
	}
	return s.registry.OpenReview(ctx, projectID, creditID, strings.TrimSpace(verifierID))
}

// RecordFindings replaces the findings of a pending report. Empty entries
// are dropped from the recommendation and attachment lists.
func (s *Service) RecordFindings(ctx context.Context, reportID string, f domain.Findings, actor string) (domain.VerificationReport, error) {
	f.Summary = strings.TrimSpace(f.Summary)
	f.Recommendations = compact(f.Recommendations)
	f.Attachments = compact(f.Attachments)
	return s.registry.RecordFindings(ctx, reportID, f, actor)
}

// Decide approves or rejects a pending report. Approval verifies the
// report's credit in the same unit; rejection requires a reason.
func (s *Service) Decide(ctx context.Context, reportID string, decision domain.Decision, reason, actor string) (Outcome, error) {
	var ev transition.Event
	switch decision {
	case domain.DecisionApprove:
		ev = transition.Approve()
		ev.Reason = strings.TrimSpace(reason)
	case domain.DecisionReject:
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return Outcome{}, apperror.ErrInvalidSpec("a reason is required to reject a report")
		}
		ev = transition.Reject(reason)
	default:
		return Outcome{}, apperror.ErrInvalidSpec("decision must be approve or reject")
	}

	res, err := s.registry.ApplyTransition(ctx, domain.ReportRef(reportID), ev.By(actor))
	if err != nil {
		return Outcome{}, err
	}

	report, err := s.registry.GetReport(ctx, reportID)
	if err != nil {
		return Outcome{}, err
	}

	evt := s.log.Info()
	if len(res.Warnings) > 0 {
		evt = s.log.Warn().Int("warnings", len(res.Warnings))
	}
	evt.Str("report_id", reportID).Str("decision", string(decision)).Str("actor", actor).Msg("review decided")

	return Outcome{Report: report, Transition: res}, nil
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
