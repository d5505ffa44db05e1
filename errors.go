package stride

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("stride: no store configured")
	ErrStoreClosed = errors.New("stride: store closed")

	// Not found errors.
	ErrRecordNotFound = errors.New("stride: batch record not found")

	// Integration errors. A missing handler is fatal for the invocation
	// and is not re-submitted for retry.
	ErrHandlerNotFound = errors.New("stride: no handler registered for unit")

	// Lock errors.
	ErrLockNotHeld = errors.New("stride: lock not held by this owner")

	// Retry errors.
	ErrMaxAttemptsExceeded = errors.New("stride: max retry attempts exceeded")
)
