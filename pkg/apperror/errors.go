package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers that branch on failure category
// rather than on a specific code.
type Kind string

const (
	KindInvalidSpec         Kind = "InvalidSpec"
	KindNotFound            Kind = "NotFound"
	KindDuplicateID         Kind = "DuplicateId"
	KindDuplicateOpenReview Kind = "DuplicateOpenReview"
	KindInvalidTransition   Kind = "InvalidTransition"
	KindCapacityExceeded    Kind = "CapacityExceeded"
	KindReferenced          Kind = "Referenced"
	KindAnchoringFailure    Kind = "AnchoringFailure"
	KindUnauthorized        Kind = "Unauthorized"
	KindForbidden           Kind = "Forbidden"
	KindRateLimited         Kind = "RateLimited"
	KindInternal            Kind = "Internal"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string            `json:"error_code"`
	Kind       Kind              `json:"kind"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, kind Kind, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Kind:       kind,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, kind Kind, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Kind:       kind,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// With returns a copy of e carrying an extra diagnostic detail.
func (e *AppError) With(key, value string) *AppError {
	cp := *e
	cp.Details = make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// KindOf reports the Kind of the first AppError in err's chain.
// Errors that are not AppErrors are classified as KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ---- Registry (REG) ----

func ErrInvalidSpec(message string) *AppError {
	return New("REG_001", KindInvalidSpec, message, http.StatusBadRequest)
}

func ErrNotFound(entity, id string) *AppError {
	return New("REG_002", KindNotFound, fmt.Sprintf("%s %q not found", entity, id), http.StatusNotFound).
		With("entity", entity).
		With("id", id)
}

func ErrDuplicateID(entity, id string) *AppError {
	return New("REG_003", KindDuplicateID, fmt.Sprintf("%s %q already exists", entity, id), http.StatusConflict).
		With("entity", entity).
		With("id", id)
}

func ErrDuplicateOpenReview(creditID, openReportID string) *AppError {
	return New("REG_004", KindDuplicateOpenReview,
		fmt.Sprintf("credit %q already has an open review", creditID), http.StatusConflict).
		With("credit_id", creditID).
		With("report_id", openReportID)
}

// ErrInvalidTransition names the entity, its current state and the rejected event.
func ErrInvalidTransition(entity, id, state, event, reason string) *AppError {
	msg := fmt.Sprintf("%s %q: cannot apply %s in state %s", entity, id, event, state)
	if reason != "" {
		msg += ": " + reason
	}
	return New("REG_005", KindInvalidTransition, msg, http.StatusConflict).
		With("entity", entity).
		With("id", id).
		With("state", state).
		With("event", event)
}

func ErrCapacityExceeded(projectID string, requested, headroom int64) *AppError {
	return New("REG_006", KindCapacityExceeded,
		fmt.Sprintf("project %q: %d tCO2e requested, %d remaining", projectID, requested, headroom),
		http.StatusUnprocessableEntity).
		With("project_id", projectID)
}

func ErrReferenced(entity, id, by string) *AppError {
	return New("REG_007", KindReferenced,
		fmt.Sprintf("%s %q is still referenced by %s", entity, id, by), http.StatusConflict).
		With("entity", entity).
		With("id", id)
}

// ---- Anchoring (ANC) ----

// ErrAnchoringFailure is non-fatal: it is attached as a warning, never returned
// in place of a committed domain result.
func ErrAnchoringFailure(transitionID string, err error) *AppError {
	return Wrap("ANC_001", KindAnchoringFailure, fmt.Sprintf("anchoring %s failed", transitionID),
		http.StatusAccepted, err).
		With("transition_id", transitionID)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", KindUnauthorized, "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden(action string) *AppError {
	return New("AUTH_002", KindForbidden, fmt.Sprintf("caller may not %s", action), http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", KindRateLimited, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", KindInternal, "Internal database error", http.StatusInternalServerError, err)
}

func ErrLedgerUnavailable(err error) *AppError {
	return Wrap("SYS_002", KindInternal, "Ledger collaborator unavailable", http.StatusServiceUnavailable, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", KindInternal, "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a REG_001 validation error.
func Validation(message string) *AppError {
	return ErrInvalidSpec(message)
}
