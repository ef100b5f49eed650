package broker

import (
	"errors"
	"fmt"
)

var (
	// ErrNotParticipant rejects operations from users outside the
	// conversation.
	ErrNotParticipant = errors.New("not a participant in this conversation")

	// ErrNotSender rejects edit/delete from anyone but the original sender.
	ErrNotSender = errors.New("only the sender may modify this message")
)

// ValidationError rejects a malformed payload before anything is persisted
// or broadcast.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid payload: " + e.Reason
}

// StoreError wraps a persistence failure. The operation it aborted produced
// no broadcast.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
