// Package transition holds the pure lifecycle rules for projects, credits and
// verification reports. Nothing here mutates state; callers apply the returned
// status only after validation succeeds.
package transition

// EventName identifies a lifecycle event.
type EventName string

const (
	EventIssue          EventName = "Issue"
	EventVerify         EventName = "Verify"
	EventSell           EventName = "Sell"
	EventRetire         EventName = "Retire"
	EventApprove        EventName = "Approve"
	EventReject         EventName = "Reject"
	EventRecordFindings EventName = "RecordFindings"
	EventActivate       EventName = "ActivateOnFirstIssuance"
	EventComplete       EventName = "CompleteOnFullVerification"
	EventSuspend        EventName = "Suspend"
	EventReinstate      EventName = "Reinstate"
)

// Event is a proposed lifecycle change plus its arguments.
type Event struct {
	Name     EventName `json:"name"`
	ReportID string    `json:"report_id,omitempty"`
	BuyerRef string    `json:"buyer_ref,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Actor    string    `json:"actor,omitempty"`
}

func Issue() Event { return Event{Name: EventIssue} }
func Verify(reportID string) Event { return Event{Name: EventVerify, ReportID: reportID} }
func Sell(buyerRef string) Event { return Event{Name: EventSell, BuyerRef: buyerRef} }
func Retire() Event { return Event{Name: EventRetire} }
func Approve() Event { return Event{Name: EventApprove} }
func Reject(reason string) Event { return Event{Name: EventReject, Reason: reason} }
func RecordFindings() Event { return Event{Name: EventRecordFindings} }
func ActivateOnFirstIssuance() Event { return Event{Name: EventActivate} }
func CompleteOnFullVerification() Event { return Event{Name: EventComplete} }
func Suspend(reason string) Event { return Event{Name: EventSuspend, Reason: reason} }
func Reinstate() Event { return Event{Name: EventReinstate} }

// By returns a copy of the event attributed to actor.
func (e Event) By(actor string) Event {
	e.Actor = actor
	return e
}
