package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or out-of-range input rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrAlreadyExists indicates a unique key collision.
	ErrAlreadyExists = errors.New("already exists")
	// ErrUpstreamRejected indicates the order-management system refused or could not be reached.
	ErrUpstreamRejected = errors.New("upstream rejected")
	// ErrSyncInProgress indicates another invoice synchronisation holds the lock.
	ErrSyncInProgress = errors.New("invoice synchronisation already in progress")
)

// UpstreamError carries the message reported by the external system.
type UpstreamError struct {
	Message string
	Err     error
}

// NewUpstreamError builds an UpstreamError, falling back to a generic message.
func NewUpstreamError(message string, err error) *UpstreamError {
	if message == "" {
		message = "failed to update order-management system"
	}
	return &UpstreamError{Message: message, Err: err}
}

func (e *UpstreamError) Error() string {
	return e.Message
}

// Unwrap exposes the transport error, when there is one.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrUpstreamRejected) hold for every UpstreamError.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamRejected
}
