package transition

import (
	"strings"

	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/pkg/apperror"
)

// CreditGuard carries the facts outside the credit that its transitions depend on.
type CreditGuard struct {
	// ApprovedReportID is the id of an approved report for this credit, if any.
	ApprovedReportID string
	// Headroom is estimated minus already verified/sold/retired volume of the project.
	Headroom      int64
	ProjectStatus domain.ProjectStatus
}

var creditTransitions = map[domain.CreditStatus]map[EventName]domain.CreditStatus{
	domain.CreditStatusPending: {
		EventVerify: domain.CreditStatusVerified,
	},
	domain.CreditStatusVerified: {
		EventSell:   domain.CreditStatusSold,
		EventRetire: domain.CreditStatusRetired,
	},
	domain.CreditStatusSold: {
		EventRetire: domain.CreditStatusRetired,
	},
	domain.CreditStatusRetired: {},
}

// Credit validates ev against c and returns the status c would move to.
func Credit(c domain.Credit, ev Event, g CreditGuard) (domain.CreditStatus, error) {
	if ev.Name == EventIssue {
		return "", apperror.ErrInvalidTransition("credit", c.ID, string(c.Status), string(ev.Name), "already issued")
	}

	next, ok := creditTransitions[c.Status][ev.Name]
	if !ok {
		return "", apperror.ErrInvalidTransition("credit", c.ID, string(c.Status), string(ev.Name), "")
	}

	switch ev.Name {
	case EventVerify:
		if ev.ReportID == "" || ev.ReportID != g.ApprovedReportID {
			return "", apperror.ErrInvalidTransition("credit", c.ID, string(c.Status), string(ev.Name),
				"requires an approved verification report for this credit")
		}
		if g.ProjectStatus == domain.ProjectStatusSuspended {
			return "", apperror.ErrInvalidTransition("credit", c.ID, string(c.Status), string(ev.Name),
				"project is suspended")
		}
		if c.Amount > g.Headroom {
			return "", apperror.ErrCapacityExceeded(c.ProjectID, c.Amount, g.Headroom)
		}
	case EventSell:
		if strings.TrimSpace(ev.BuyerRef) == "" {
			return "", apperror.ErrInvalidSpec("buyer reference is required")
		}
	}

	return next, nil
}

// AllowedCreditEvents lists the events a credit in status s may accept.
func AllowedCreditEvents(s domain.CreditStatus) []EventName {
	out := make([]EventName, 0, len(creditTransitions[s]))
	for _, name := range []EventName{EventVerify, EventSell, EventRetire} {
		if _, ok := creditTransitions[s][name]; ok {
			out = append(out, name)
		}
	}
	return out
}
