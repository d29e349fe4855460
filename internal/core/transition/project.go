package transition

import (
	"math"
	"strings"

	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/pkg/apperror"
)

// ProjectGuard carries aggregate facts about a project's credits.
type ProjectGuard struct {
	IssuedCount   int
	VerifiedTotal int64
}

// Project validates ev against p and returns the status p would move to.
func Project(p domain.Project, ev Event, g ProjectGuard) (domain.ProjectStatus, error) {
	reject := func(reason string) (domain.ProjectStatus, error) {
		return "", apperror.ErrInvalidTransition("project", p.ID, string(p.Status), string(ev.Name), reason)
	}

	switch ev.Name {
	case EventActivate:
		if p.Status != domain.ProjectStatusPending {
			return reject("")
		}
		if g.IssuedCount < 1 {
			return reject("no credits issued")
		}
		return domain.ProjectStatusActive, nil

	case EventComplete:
		if p.Status != domain.ProjectStatusActive {
			return reject("")
		}
		if p.EstimatedCredits <= 0 || g.VerifiedTotal != p.EstimatedCredits {
			return reject("verified volume has not reached the estimate")
		}
		return domain.ProjectStatusCompleted, nil

	case EventSuspend:
		if p.Status != domain.ProjectStatusPending && p.Status != domain.ProjectStatusActive {
			return reject("")
		}
		return domain.ProjectStatusSuspended, nil

	case EventReinstate:
		if p.Status != domain.ProjectStatusSuspended {
			return reject("")
		}
		if g.IssuedCount > 0 {
			return domain.ProjectStatusActive, nil
		}
		return domain.ProjectStatusPending, nil
	}

	return reject("")
}

// Issuance checks whether amount more tCO2e may be issued against p, given the
// volume already issued in any status.
func Issuance(p domain.Project, outstanding, amount int64) error {
	if amount <= 0 {
		return apperror.ErrInvalidSpec("amount must be a positive integer")
	}
	if !p.AcceptsIssuance() {
		return apperror.ErrInvalidTransition("project", p.ID, string(p.Status), string(EventIssue),
			"project does not accept issuance")
	}
	if amount > p.EstimatedCredits-outstanding {
		return apperror.ErrCapacityExceeded(p.ID, amount, p.EstimatedCredits-outstanding)
	}
	return nil
}

// ValidateProjectSpec rejects malformed creation input.
func ValidateProjectSpec(s domain.ProjectSpec) error {
	switch {
	case math.IsNaN(s.AreaHectares) || math.IsInf(s.AreaHectares, 0) || s.AreaHectares <= 0:
		return apperror.ErrInvalidSpec("area must be greater than zero")
	case s.StartDate.IsZero() || s.EndDate.IsZero():
		return apperror.ErrInvalidSpec("start and end dates are required")
	case !s.StartDate.Before(s.EndDate):
		return apperror.ErrInvalidSpec("start date must be before end date")
	case !s.Ecosystem.Valid():
		return apperror.ErrInvalidSpec("unknown ecosystem type " + string(s.Ecosystem))
	case !s.Coordinates.Valid():
		return apperror.ErrInvalidSpec("coordinates out of range")
	case strings.TrimSpace(s.OwnerID) == "":
		return apperror.ErrInvalidSpec("owner is required")
	case s.EstimatedCredits < 0:
		return apperror.ErrInvalidSpec("estimated credits must not be negative")
	}
	return nil
}

// ValidateIssueRequest rejects malformed issuance input.
func ValidateIssueRequest(r domain.IssueRequest) error {
	switch {
	case r.Amount <= 0:
		return apperror.ErrInvalidSpec("amount must be a positive integer")
	case math.IsNaN(r.PricePerTon) || math.IsInf(r.PricePerTon, 0) || r.PricePerTon < 0:
		return apperror.ErrInvalidSpec("price must be a finite, non-negative number")
	case strings.TrimSpace(r.Methodology) == "":
		return apperror.ErrInvalidSpec("methodology is required")
	case r.Vintage < 1900 || r.Vintage > 9999:
		return apperror.ErrInvalidSpec("vintage must be a four-digit year")
	}
	return nil
}
