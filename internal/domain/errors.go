package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrRoomNotFound         = errors.New("room not found")
	ErrNotParticipant       = errors.New("user is not a participant of this room")
	ErrEmptyMessage         = errors.New("message text is required")
	ErrInvalidRoom          = errors.New("room needs at least two distinct participants")
	ErrMissingRecipient     = errors.New("notification recipient is required")
	ErrUnknownType          = errors.New("unknown notification type")
)

// PersistenceError reports a failed read or write against the backing store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NewPersistenceError wraps err for op. A nil err stays nil.
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsPersistence reports whether err came from the store layer.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
