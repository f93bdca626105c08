package identity

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// ErrAccountUnresolved is a variant of ErrUnauthorized for a credential
	// that verifies but matches no local participant record.
	ErrAccountUnresolved = fmt.Errorf("%w: account unresolved", ErrUnauthorized)
)
