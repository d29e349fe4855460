package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEcosystemType_Valid(t *testing.T) {
	tests := []struct {
		eco  EcosystemType
		want bool
	}{
		{EcosystemMangrove, true},
		{EcosystemSeagrass, true},
		{EcosystemSaltMarsh, true},
		{"coral_reef", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.eco), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.eco.Valid())
		})
	}
}

func TestCoordinates_Valid(t *testing.T) {
	assert.True(t, Coordinates{Lat: -8.65, Lng: 115.22}.Valid())
	assert.True(t, Coordinates{Lat: 90, Lng: -180}.Valid())
	assert.False(t, Coordinates{Lat: 90.1, Lng: 0}.Valid())
	assert.False(t, Coordinates{Lat: 0, Lng: 180.5}.Valid())
}

func TestProject_AcceptsIssuance(t *testing.T) {
	tests := []struct {
		status ProjectStatus
		want   bool
	}{
		{ProjectStatusPending, true},
		{ProjectStatusActive, true},
		{ProjectStatusCompleted, false},
		{ProjectStatusSuspended, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			p := &Project{Status: tt.status}
			assert.Equal(t, tt.want, p.AcceptsIssuance())
		})
	}
}

func TestProject_CloneIsDeep(t *testing.T) {
	p := Project{ID: "P1", Images: []string{"a.jpg"}}
	cp := p.Clone()
	cp.Images[0] = "b.jpg"

	assert.Equal(t, "a.jpg", p.Images[0])
	assert.Equal(t, int64(400), (&Project{EstimatedCredits: 1000, VerifiedCredits: 600}).Headroom())
}

func TestCreditStatus_CountsTowardCapacity(t *testing.T) {
	assert.False(t, CreditStatusPending.CountsTowardCapacity())
	assert.True(t, CreditStatusVerified.CountsTowardCapacity())
	assert.True(t, CreditStatusSold.CountsTowardCapacity())
	assert.True(t, CreditStatusRetired.CountsTowardCapacity())
}

func TestCredit_TerminalAndValue(t *testing.T) {
	c := &Credit{Status: CreditStatusRetired, Amount: 40, PricePerTon: 12.5}
	assert.True(t, c.IsTerminal())
	assert.Equal(t, 500.0, c.Value())

	c.Status = CreditStatusSold
	assert.False(t, c.IsTerminal())
}

func TestBuildSerialNumber(t *testing.T) {
	assert.Equal(t, "BCR-P1-2024-000001", BuildSerialNumber("P1", 2024, 1))
	assert.Equal(t, "BCR-mangrove-7-2023-123456", BuildSerialNumber("mangrove-7", 2023, 123456))
}

func TestVerificationReport_CloneIsDeep(t *testing.T) {
	r := VerificationReport{Recommendations: []string{"replant"}, Attachments: []string{"survey.pdf"}}
	cp := r.Clone()
	cp.Recommendations[0] = "x"
	cp.Attachments[0] = "y"

	assert.Equal(t, "replant", r.Recommendations[0])
	assert.Equal(t, "survey.pdf", r.Attachments[0])
}

func TestAnchorRecord_IsTerminal(t *testing.T) {
	tests := []struct {
		name      string
		status    AnchorStatus
		exhausted bool
		want      bool
	}{
		{"queued", AnchorStatusQueued, false, false},
		{"submitted", AnchorStatusSubmitted, false, false},
		{"confirmed", AnchorStatusConfirmed, false, true},
		{"failed with attempts left", AnchorStatusFailed, false, false},
		{"failed and exhausted", AnchorStatusFailed, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &AnchorRecord{Status: tt.status, Exhausted: tt.exhausted}
			assert.Equal(t, tt.want, a.IsTerminal())
		})
	}
}

func TestTransitionIDs(t *testing.T) {
	issue := BuildIssuanceTransitionID("c-1")
	approve := BuildApprovalTransitionID("r-1")
	assert.Equal(t, "credit:c-1:issue", issue)
	assert.Equal(t, "report:r-1:approve", approve)

	ref, ok := ParseTransitionID(issue)
	assert.True(t, ok)
	assert.Equal(t, CreditRef("c-1"), ref)

	ref, ok = ParseTransitionID(approve)
	assert.True(t, ok)
	assert.Equal(t, ReportRef("r-1"), ref)

	_, ok = ParseTransitionID("project:p-1:create")
	assert.False(t, ok)
	_, ok = ParseTransitionID("garbage")
	assert.False(t, ok)
}

func TestEntityRef_String(t *testing.T) {
	assert.Equal(t, "credit:c-9", CreditRef("c-9").String())
}
