package domain

// EntityKind names one of the registry's collections.
type EntityKind string

const (
	EntityProject EntityKind = "project"
	EntityCredit  EntityKind = "credit"
	EntityReport  EntityKind = "report"
)

// EntityRef addresses a single registry entity.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
}

func ProjectRef(id string) EntityRef { return EntityRef{Kind: EntityProject, ID: id} }
func CreditRef(id string) EntityRef { return EntityRef{Kind: EntityCredit, ID: id} }
func ReportRef(id string) EntityRef { return EntityRef{Kind: EntityReport, ID: id} }

func (r EntityRef) String() string {
	return string(r.Kind) + ":" + r.ID
}

// Warning is a non-fatal condition reported alongside a committed result.
type Warning struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	TransitionID string `json:"transition_id,omitempty"`
}
