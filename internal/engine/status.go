package engine

import (
	"errors"
	"net/http"

	"ideaforge/internal/engine/auth"
)

// StatusCode maps an operation result to the ledger's integer result code:
// 404 not found, 403 unauthorized or not owner, 400 invalid transition or
// argument. Anything else is an infrastructure failure (500).
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var ue auth.UnauthorizedError
	var ne auth.NotOwnerError
	var te InvalidTransitionError
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &ue), errors.As(err, &ne):
		return http.StatusForbidden
	case errors.As(err, &te), errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Result is the tagged outcome of a call: either OK with a value or an error code.
type Result struct {
	OK    any    `json:"ok,omitempty"`
	Err   int    `json:"err,omitempty"`
	Error string `json:"error,omitempty"`
}

// ResultOf packs a value and error into a Result.
func ResultOf(v any, err error) Result {
	if err != nil {
		return Result{Err: StatusCode(err), Error: err.Error()}
	}
	return Result{OK: v}
}
