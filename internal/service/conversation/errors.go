package conversation

import "errors"

var (
	ErrNotFound     = errors.New("conversation not found")
	ErrForbidden    = errors.New("caller is not a participant of this conversation")
	ErrEmptyContent = errors.New("message content must not be empty")
	ErrNotUnlocked  = errors.New("conversation requires a completed appointment")
)
