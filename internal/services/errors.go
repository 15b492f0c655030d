package services

import (
	"errors"
)

// Error taxonomy of the notification core. Handlers translate these into
// transport-level responses with errors.Is.
var (
	// ErrInvalidTarget means the target spec could not be parsed or resolved
	// to at least one valid recipient.
	ErrInvalidTarget = errors.New("invalid notification target")

	// ErrInvalidNotification means the notification content failed
	// validation: empty title or message, or an unknown type, priority or
	// status.
	ErrInvalidNotification = errors.New("invalid notification")

	// ErrInvalidTemplate means a template references an undeclared
	// placeholder, is missing a required variable, or is otherwise malformed.
	ErrInvalidTemplate = errors.New("invalid notification template")

	// ErrNotFound means the operation referenced a notification, delivery
	// pair or template that does not exist.
	ErrNotFound = errors.New("notification not found")

	// ErrUnsupportedOperation means the operation does not apply to this
	// notification, e.g. archiving a global one.
	ErrUnsupportedOperation = errors.New("operation not supported for this notification")

	// ErrFanoutFailed means the notification and its delivery rows could not
	// be committed together; nothing was sent.
	ErrFanoutFailed = errors.New("notification fan-out failed")

	// ErrStoreUnavailable means the record store call failed. Read paths
	// degrade to empty results with this surfaced as a warning.
	ErrStoreUnavailable = errors.New("record store unavailable")
)
