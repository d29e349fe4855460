package dto

import (
	"time"

	"bluecarbon-registry/internal/core/domain"
)

// CoordinatesRequest is a WGS84 point.
type CoordinatesRequest struct {
	Lat float64 `json:"lat" binding:"gte=-90,lte=90"`
	Lng float64 `json:"lng" binding:"gte=-180,lte=180"`
}

// CreateProjectRequest is the request body for project registration.
// Owner defaults to the caller; only admins may register on behalf of another owner.
type CreateProjectRequest struct {
	ID               string             `json:"id" binding:"omitempty,max=64,safe_id"`
	Name             string             `json:"name" binding:"required,max=200"`
	Location         string             `json:"location" binding:"required,max=200"`
	Type             string             `json:"type" binding:"required,ecosystem"`
	Area             float64            `json:"area" binding:"required,gt=0"`
	EstimatedCredits int64              `json:"estimated_credits" binding:"gte=0"`
	StartDate        time.Time          `json:"start_date" binding:"required"`
	EndDate          time.Time          `json:"end_date" binding:"required,gtfield=StartDate"`
	Coordinates      CoordinatesRequest `json:"coordinates"`
	Images           []string           `json:"images" binding:"max=20,dive,safe_url"`
	Description      string             `json:"description" binding:"max=5000"`
	Owner            string             `json:"owner" binding:"omitempty,max=128"`
	Verifier         string             `json:"verifier" binding:"omitempty,max=128"`
}

// ToSpec converts the request into a domain project spec owned by owner.
func (r CreateProjectRequest) ToSpec(owner string) domain.ProjectSpec {
	return domain.ProjectSpec{
		ID:               r.ID,
		Name:             r.Name,
		Location:         r.Location,
		Ecosystem:        domain.EcosystemType(r.Type),
		AreaHectares:     r.Area,
		EstimatedCredits: r.EstimatedCredits,
		StartDate:        r.StartDate,
		EndDate:          r.EndDate,
		Coordinates:      domain.Coordinates{Lat: r.Coordinates.Lat, Lng: r.Coordinates.Lng},
		Images:           r.Images,
		Description:      r.Description,
		OwnerID:          owner,
		VerifierID:       r.Verifier,
	}
}

// IssueCreditRequest is the request body for credit issuance.
type IssueCreditRequest struct {
	Amount      int64   `json:"amount" binding:"required,gt=0"`
	Price       float64 `json:"price" binding:"gte=0"`
	Methodology string  `json:"methodology" binding:"required,max=100"`
	Vintage     int     `json:"vintage" binding:"required,gte=1990,lte=2100"`
}

// SellRequest is the request body for selling a verified credit. Buyer
// defaults to the caller.
type SellRequest struct {
	Buyer string `json:"buyer" binding:"omitempty,max=128"`
}

// ReasonRequest carries a free-text reason (suspension).
type ReasonRequest struct {
	Reason string `json:"reason" binding:"required,max=1000"`
}

// StartReviewRequest opens a verification review.
type StartReviewRequest struct {
	ProjectID string `json:"project_id" binding:"required,max=64,safe_id"`
	CreditID  string `json:"credit_id" binding:"required,max=64,safe_id"`
}

// FindingsRequest replaces the findings of an open review.
type FindingsRequest struct {
	Findings        string   `json:"findings" binding:"max=10000"`
	Recommendations []string `json:"recommendations" binding:"max=50,dive,max=1000"`
	Attachments     []string `json:"attachments" binding:"max=20,dive,safe_url"`
}

// ToFindings converts the request into domain findings.
func (r FindingsRequest) ToFindings() domain.Findings {
	return domain.Findings{
		Summary:         r.Findings,
		Recommendations: r.Recommendations,
		Attachments:     r.Attachments,
	}
}

// DecisionRequest approves or rejects an open review.
type DecisionRequest struct {
	Decision string `json:"decision" binding:"required,oneof=approve reject"`
	Reason   string `json:"reason" binding:"max=1000"`
}

// IssueCreditResponse is the response body for a successful issuance.
type IssueCreditResponse struct {
	Credit  domain.Credit  `json:"credit"`
	Project domain.Project `json:"project"`
}

// AnchorResponse is one anchoring record as exposed over the API.
type AnchorResponse struct {
	TransitionID  string              `json:"transition_id"`
	Kind          domain.AnchorKind   `json:"kind"`
	Entity        domain.EntityRef    `json:"entity"`
	Status        domain.AnchorStatus `json:"status"`
	TxRef         string              `json:"tx_ref,omitempty"`
	Attempts      int                 `json:"attempts"`
	LastError     string              `json:"last_error,omitempty"`
	Exhausted     bool                `json:"exhausted"`
	NextAttemptAt *time.Time          `json:"next_attempt_at,omitempty"`
	ConfirmedAt   *time.Time          `json:"confirmed_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func ToAnchorResponse(rec domain.AnchorRecord) AnchorResponse {
	return AnchorResponse{
		TransitionID:  rec.TransitionID,
		Kind:          rec.Kind,
		Entity:        rec.Entity,
		Status:        rec.Status,
		TxRef:         rec.TxRef,
		Attempts:      rec.Attempts,
		LastError:     rec.LastError,
		Exhausted:     rec.Exhausted,
		NextAttemptAt: rec.NextAttemptAt,
		ConfirmedAt:   rec.ConfirmedAt,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}
