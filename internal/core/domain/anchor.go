package domain

import (
	"strings"
	"time"
)

// AnchorStatus represents the ledger anchoring state of one transition.
type AnchorStatus string

const (
	AnchorStatusQueued    AnchorStatus = "queued"
	AnchorStatusSubmitted AnchorStatus = "submitted"
	AnchorStatusConfirmed AnchorStatus = "confirmed"
	AnchorStatusFailed    AnchorStatus = "failed"
)

// AnchorKind names the ledger-relevant transition being anchored.
type AnchorKind string

const (
	AnchorKindCreditIssuance AnchorKind = "credit_issuance"
	AnchorKindReportApproval AnchorKind = "report_approval"
)

// LedgerTxStatus is the finality state reported by the ledger collaborator.
type LedgerTxStatus string

const (
	LedgerTxPending   LedgerTxStatus = "pending"
	LedgerTxConfirmed LedgerTxStatus = "confirmed"
	LedgerTxFailed    LedgerTxStatus = "failed"
)

// AnchorRecord tracks one transition's journey to the external ledger.
type AnchorRecord struct {
	TransitionID  string       `json:"transition_id"`
	Kind          AnchorKind   `json:"kind"`
	Entity        EntityRef    `json:"entity"`
	Payload       []byte       `json:"payload"`
	Status        AnchorStatus `json:"status"`
	TxRef         string       `json:"tx_ref,omitempty"`
	Attempts      int          `json:"attempts"`
	LastError     string       `json:"last_error,omitempty"`
	Exhausted     bool         `json:"exhausted"`
	NextAttemptAt *time.Time   `json:"next_attempt_at,omitempty"`
	ConfirmedAt   *time.Time   `json:"confirmed_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// IsTerminal returns true once the record will not be worked on again
// without administrative action.
func (a *AnchorRecord) IsTerminal() bool {
	return a.Status == AnchorStatusConfirmed || (a.Status == AnchorStatusFailed && a.Exhausted)
}

// AnchorRequest is what a caller hands to the coordinator.
type AnchorRequest struct {
	TransitionID string
	Kind         AnchorKind
	Entity       EntityRef
	Payload      []byte
}

// BuildIssuanceTransitionID returns the anchoring key of a credit's issuance.
func BuildIssuanceTransitionID(creditID string) string {
	return "credit:" + creditID + ":issue"
}

// BuildApprovalTransitionID returns the anchoring key of a report's approval.
func BuildApprovalTransitionID(reportID string) string {
	return "report:" + reportID + ":approve"
}

// ParseTransitionID splits a transition id into its entity reference.
func ParseTransitionID(id string) (EntityRef, bool) {
	parts := strings.Split(id, ":")
	if len(parts) != 3 || parts[1] == "" {
		return EntityRef{}, false
	}
	switch EntityKind(parts[0]) {
	case EntityCredit, EntityReport:
		return EntityRef{Kind: EntityKind(parts[0]), ID: parts[1]}, true
	}
	return EntityRef{}, false
}
