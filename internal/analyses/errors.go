package analyses

import "errors"

var (
	ErrNotFound              = errors.New("analysis not found")
	ErrInvalidInput          = errors.New("invalid analysis input")
	ErrInvalidTransition     = errors.New("invalid analysis status transition")
	ErrJobQueueNotConfigured = errors.New("job queue not configured")
)

const (
	ErrorCodeStorage  = "STORAGE_ERROR"
	ErrorCodeTimeout  = "ANALYSIS_TIMEOUT"
	ErrorCodeUpstream = "UPSTREAM_ERROR"
	ErrorCodeNotFound = "NOT_FOUND"
	ErrorCodeCanceled = "CANCELED"
	ErrorCodeInternal = "INTERNAL_ERROR"
)

// stageError tags an error with the failure code of the step that produced it.
type stageError struct {
	code string
	err  error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func storageErr(err error) error {
	if err == nil {
		return nil
	}
	return &stageError{code: ErrorCodeStorage, err: err}
}
