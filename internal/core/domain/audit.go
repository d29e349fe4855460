package domain

import "time"

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionProjectCreated   AuditAction = "PROJECT_CREATED"
	AuditActionCreditIssued     AuditAction = "CREDIT_ISSUED"
	AuditActionCreditDeleted    AuditAction = "CREDIT_DELETED"
	AuditActionTransition       AuditAction = "TRANSITION"
	AuditActionReviewOpened     AuditAction = "REVIEW_OPENED"
	AuditActionFindingsRecorded AuditAction = "FINDINGS_RECORDED"
	AuditActionAnchorSubmitted  AuditAction = "ANCHOR_SUBMITTED"
	AuditActionAnchorFailed     AuditAction = "ANCHOR_FAILED"
	AuditActionHTTPRequest      AuditAction = "HTTP_REQUEST"
)

// AuditSeverity distinguishes warnings (degraded anchoring) from normal history.
type AuditSeverity string

const (
	AuditSeverityInfo    AuditSeverity = "info"
	AuditSeverityWarning AuditSeverity = "warning"
)

// AuditLog records a single audited action against a registry entity.
type AuditLog struct {
	ID         string        `json:"id"`
	EntityKind EntityKind    `json:"entity_kind"`
	EntityID   string        `json:"entity_id"`
	Action     AuditAction   `json:"action"`
	Event      string        `json:"event,omitempty"`
	FromStatus string        `json:"from_status,omitempty"`
	ToStatus   string        `json:"to_status,omitempty"`
	Actor      string        `json:"actor,omitempty"`
	Severity   AuditSeverity `json:"severity"`
	Details    string        `json:"details,omitempty"`
	IPAddress  string        `json:"ip_address,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}
