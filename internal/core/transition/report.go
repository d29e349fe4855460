package transition

import (
	"strings"

	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/pkg/apperror"
)

// Report validates ev against r and returns the status r would move to.
// Every accepted report event requires an open report.
func Report(r domain.VerificationReport, ev Event) (domain.ReportStatus, error) {
	if r.Status != domain.ReportStatusPending {
		reason := ""
		if ev.Name == EventApprove || ev.Name == EventReject {
			reason = "already decided"
		}
		return "", apperror.ErrInvalidTransition("report", r.ID, string(r.Status), string(ev.Name), reason)
	}

	switch ev.Name {
	case EventApprove:
		return domain.ReportStatusApproved, nil
	case EventReject:
		if strings.TrimSpace(ev.Reason) == "" {
			return "", apperror.ErrInvalidSpec("a reason is required to reject a report")
		}
		return domain.ReportStatusRejected, nil
	case EventRecordFindings:
		return domain.ReportStatusPending, nil
	}

	return "", apperror.ErrInvalidTransition("report", r.ID, string(r.Status), string(ev.Name), "")
}
