package domain

import (
	"fmt"
	"time"
)

// CreditStatus represents the lifecycle state of a carbon credit.
type CreditStatus string

const (
	CreditStatusPending  CreditStatus = "pending"
	CreditStatusVerified CreditStatus = "verified"
	CreditStatusSold     CreditStatus = "sold"
	CreditStatusRetired  CreditStatus = "retired"
)

// CountsTowardCapacity returns true for statuses whose volume is bounded by
// the project's estimated credits.
func (s CreditStatus) CountsTowardCapacity() bool {
	return s == CreditStatusVerified || s == CreditStatusSold || s == CreditStatusRetired
}

// Credit is an issued quantity of tCO2e belonging to one project.
type Credit struct {
	ID               string       `json:"id"`
	ProjectID        string       `json:"project_id"`
	Amount           int64        `json:"amount"`
	PricePerTon      float64      `json:"price"`
	Status           CreditStatus `json:"status"`
	IssuedAt         time.Time    `json:"issuance_date"`
	VerifiedAt       *time.Time   `json:"verification_date,omitempty"`
	SerialNumber     string       `json:"serial_number"`
	Vintage          int          `json:"vintage"`
	Methodology      string       `json:"methodology"`
	AnchorTxRef      string       `json:"blockchain_tx_hash,omitempty"`
	ApprovedReportID string       `json:"approved_report_id,omitempty"`
	BuyerRef         string       `json:"buyer,omitempty"`
	SoldAt           *time.Time   `json:"sold_at,omitempty"`
	RetiredAt        *time.Time   `json:"retired_at,omitempty"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// IsTerminal returns true if the credit can no longer change state.
func (c *Credit) IsTerminal() bool {
	return c.Status == CreditStatusRetired
}

// Value is price times amount.
func (c *Credit) Value() float64 {
	return c.PricePerTon * float64(c.Amount)
}

// IssueRequest is the caller-supplied input for a new credit.
type IssueRequest struct {
	ProjectID   string
	Amount      int64
	PricePerTon float64
	Methodology string
	Vintage     int
}

// BuildSerialNumber formats a registry serial: BCR-<project>-<vintage>-<seq>.
func BuildSerialNumber(projectID string, vintage int, seq uint64) string {
	return fmt.Sprintf("BCR-%s-%d-%06d", projectID, vintage, seq)
}
