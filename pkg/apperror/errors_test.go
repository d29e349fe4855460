package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("REG_006", KindCapacityExceeded, "over capacity", http.StatusUnprocessableEntity),
			expected: "[REG_006] over capacity",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("SYS_001", KindInternal, "DB error", http.StatusInternalServerError, fmt.Errorf("connection refused")),
			expected: "[SYS_001] DB error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap("SYS_001", KindInternal, "wrapped", http.StatusInternalServerError, inner)

	assert.True(t, errors.Is(appErr, inner))
}

func TestAppError_IsNilUnwrap(t *testing.T) {
	appErr := New("REG_001", KindInvalidSpec, "test", http.StatusBadRequest)
	assert.Nil(t, appErr.Unwrap())
}

func TestAppError_WithDoesNotMutateReceiver(t *testing.T) {
	base := New("REG_002", KindNotFound, "missing", http.StatusNotFound).With("entity", "credit")
	derived := base.With("id", "c-1")

	assert.Len(t, base.Details, 1)
	assert.Equal(t, "credit", derived.Details["entity"])
	assert.Equal(t, "c-1", derived.Details["id"])
}

func TestRegistryErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		kind       Kind
		httpStatus int
	}{
		{"InvalidSpec", ErrInvalidSpec("area must be positive"), "REG_001", KindInvalidSpec, 400},
		{"NotFound", ErrNotFound("project", "p-1"), "REG_002", KindNotFound, 404},
		{"DuplicateID", ErrDuplicateID("project", "p-1"), "REG_003", KindDuplicateID, 409},
		{"DuplicateOpenReview", ErrDuplicateOpenReview("c-1", "r-1"), "REG_004", KindDuplicateOpenReview, 409},
		{"InvalidTransition", ErrInvalidTransition("credit", "c-1", "retired", "Sell", ""), "REG_005", KindInvalidTransition, 409},
		{"CapacityExceeded", ErrCapacityExceeded("p-1", 500, 400), "REG_006", KindCapacityExceeded, 422},
		{"Referenced", ErrReferenced("credit", "c-1", "report r-1"), "REG_007", KindReferenced, 409},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.kind, tt.err.Kind)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestInvalidTransition_Details(t *testing.T) {
	err := ErrInvalidTransition("report", "r-9", "approved", "Approve", "already decided")

	assert.Equal(t, "report", err.Details["entity"])
	assert.Equal(t, "r-9", err.Details["id"])
	assert.Equal(t, "approved", err.Details["state"])
	assert.Equal(t, "Approve", err.Details["event"])
	assert.Contains(t, err.Message, "already decided")
}

func TestAuthErrors(t *testing.T) {
	assert.Equal(t, "AUTH_001", ErrInvalidToken().Code)
	assert.Equal(t, 401, ErrInvalidToken().HTTPStatus)
	assert.Equal(t, "AUTH_002", ErrForbidden("suspend projects").Code)
	assert.Equal(t, 403, ErrForbidden("suspend projects").HTTPStatus)
}

func TestSystemErrors(t *testing.T) {
	inner := fmt.Errorf("pg: connection closed")
	dbErr := ErrDatabaseError(inner)
	assert.Equal(t, "SYS_001", dbErr.Code)
	assert.Equal(t, 500, dbErr.HTTPStatus)
	assert.True(t, errors.Is(dbErr, inner))

	ledgerErr := ErrLedgerUnavailable(inner)
	assert.Equal(t, "SYS_002", ledgerErr.Code)
	assert.Equal(t, 503, ledgerErr.HTTPStatus)
}

func TestAnchoringFailure(t *testing.T) {
	inner := errors.New("dial tcp: refused")
	err := ErrAnchoringFailure("credit:c-1:issue", inner)

	assert.Equal(t, "ANC_001", err.Code)
	assert.Equal(t, KindAnchoringFailure, err.Kind)
	assert.Equal(t, "credit:c-1:issue", err.Details["transition_id"])
	assert.ErrorIs(t, err, inner)
}

func TestRateLimitError(t *testing.T) {
	err := ErrRateLimitExceeded()
	assert.Equal(t, "RATE_001", err.Code)
	assert.Equal(t, 429, err.HTTPStatus)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"direct", ErrNotFound("credit", "c-1"), KindNotFound},
		{"wrapped", fmt.Errorf("issuing: %w", ErrCapacityExceeded("p-1", 1, 0)), KindCapacityExceeded},
		{"plain error", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}

	assert.True(t, IsKind(fmt.Errorf("x: %w", ErrDuplicateOpenReview("c", "r")), KindDuplicateOpenReview))
	assert.False(t, IsKind(nil, KindInternal))
}
