package appointment

import "errors"

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrForbidden         = errors.New("caller is not a participant of this appointment")
	ErrInvalidTransition = errors.New("transition not permitted")
	ErrConflict          = errors.New("appointment was modified concurrently")
	ErrInvalidArgument   = errors.New("invalid argument")
)
