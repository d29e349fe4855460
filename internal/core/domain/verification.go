package domain

import "time"

// ReportStatus represents the review state of a verification report.
type ReportStatus string

const (
	ReportStatusPending  ReportStatus = "pending"
	ReportStatusApproved ReportStatus = "approved"
	ReportStatusRejected ReportStatus = "rejected"
)

// VerificationReport is a verifier's review of one credit.
// ProjectID and CreditID are lookup references only.
type VerificationReport struct {
	ID               string       `json:"id"`
	ProjectID        string       `json:"project_id"`
	CreditID         string       `json:"credit_id"`
	VerifierID       string       `json:"verifier_id"`
	VerificationDate time.Time    `json:"verification_date"`
	Status           ReportStatus `json:"status"`
	Findings         string       `json:"findings"`
	Recommendations  []string     `json:"recommendations"`
	Attachments      []string     `json:"attachments"`
	AnchorTxRef      string       `json:"blockchain_tx_hash,omitempty"`
	DecisionReason   string       `json:"decision_reason,omitempty"`
	DecidedAt        *time.Time   `json:"decided_at,omitempty"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// IsOpen returns true while the report awaits a decision.
func (r *VerificationReport) IsOpen() bool {
	return r.Status == ReportStatusPending
}

// Clone returns a deep copy.
func (r VerificationReport) Clone() VerificationReport {
	if r.Recommendations != nil {
		r.Recommendations = append([]string(nil), r.Recommendations...)
	}
	if r.Attachments != nil {
		r.Attachments = append([]string(nil), r.Attachments...)
	}
	return r
}

// Findings is the mutable content of an open report.
type Findings struct {
	Summary         string
	Recommendations []string
	Attachments     []string
}

// Decision is the verifier's outcome for a report.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)
