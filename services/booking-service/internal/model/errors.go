package model

import "errors"

// Domain errors surfaced to callers. Handlers map each to a stable error code.
var (
	ErrInvalidDuration        = errors.New("duration must be a positive number of minutes")
	ErrEmployeeNotFound       = errors.New("employee not found")
	ErrSlotUnavailable        = errors.New("requested slot is not available")
	ErrCancellationNotAllowed = errors.New("appointment cannot be cancelled")
	ErrAlreadyDecided         = errors.New("decision already recorded")
	ErrInvalidTransition      = errors.New("appointment is not awaiting this decision")
	ErrUnauthenticated        = errors.New("authentication required")
	ErrUnauthorized           = errors.New("actor is not allowed to perform this action")
	ErrAlreadyReviewed        = errors.New("appointment already reviewed")
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflicting state")
	ErrValidation             = errors.New("validation failed")
	ErrStaleVersion           = errors.New("appointment was modified concurrently")
)
