package notification

import (
	"errors"
	"fmt"
)

var ErrUnknownKind = errors.New("unknown notification kind")

// DeliveryError reports a delivery abandoned after the retry budget ran out.
// It carries the last transport error and never fails the triggering
// state transition.
type DeliveryError struct {
	Kind     EventKind
	To       string
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notification %s to %s abandoned after %d attempts: %v", e.Kind, e.To, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
