package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrConflict           = errors.New("session was modified concurrently")
	ErrMissingFilePath    = errors.New("file path is required for uploaded status")
	ErrUnexpectedFilePath = errors.New("file path is only accepted for uploaded status")

	// Transient failures. Callers may retry the whole operation: every
	// lifecycle operation is idempotent or guarded by a conditional write.
	ErrStoreUnavailable   = errors.New("session store unavailable")
	ErrStorageUnavailable = errors.New("scan storage unavailable")
)

// InvalidTransitionError reports a disallowed edge in the session status
// graph, carrying both states so callers can surface them.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %q to %q", e.From, e.To)
}

func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}
