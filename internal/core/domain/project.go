package domain

import "time"

// EcosystemType is the coastal ecosystem a project restores or conserves.
type EcosystemType string

const (
	EcosystemMangrove  EcosystemType = "mangrove"
	EcosystemSeagrass  EcosystemType = "seagrass"
	EcosystemSaltMarsh EcosystemType = "salt_marsh"
)

// Valid reports whether e is one of the known ecosystems.
func (e EcosystemType) Valid() bool {
	switch e {
	case EcosystemMangrove, EcosystemSeagrass, EcosystemSaltMarsh:
		return true
	}
	return false
}

// ProjectStatus represents the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectStatusPending   ProjectStatus = "pending"
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusSuspended ProjectStatus = "suspended"
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies within latitude/longitude bounds.
func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Project is a blue-carbon project that generates credits.
type Project struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Location         string        `json:"location"`
	Ecosystem        EcosystemType `json:"type"`
	AreaHectares     float64       `json:"area"`
	EstimatedCredits int64         `json:"estimated_credits"`
	VerifiedCredits  int64         `json:"verified_credits"`
	Status           ProjectStatus `json:"status"`
	StartDate        time.Time     `json:"start_date"`
	EndDate          time.Time     `json:"end_date"`
	Coordinates      Coordinates   `json:"coordinates"`
	Images           []string      `json:"images,omitempty"`
	Description      string        `json:"description,omitempty"`
	OwnerID          string        `json:"owner"`
	VerifierID       string        `json:"verifier,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// AcceptsIssuance returns true if new credits may be issued against the project.
func (p *Project) AcceptsIssuance() bool {
	return p.Status == ProjectStatusPending || p.Status == ProjectStatusActive
}

// Headroom is the volume that may still be verified before the estimate is reached.
func (p *Project) Headroom() int64 {
	return p.EstimatedCredits - p.VerifiedCredits
}

// Clone returns a deep copy.
func (p Project) Clone() Project {
	if p.Images != nil {
		p.Images = append([]string(nil), p.Images...)
	}
	return p
}

// ProjectSpec is the caller-supplied input for a new project.
type ProjectSpec struct {
	ID               string
	Name             string
	Location         string
	Ecosystem        EcosystemType
	AreaHectares     float64
	EstimatedCredits int64
	StartDate        time.Time
	EndDate          time.Time
	Coordinates      Coordinates
	Images           []string
	Description      string
	OwnerID          string
	VerifierID       string
}
