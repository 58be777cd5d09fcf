package vault

import "errors"

// Operations reported in Error.Op
const (
	OpConfig    = "config"
	OpOpen      = "open"
	OpBootstrap = "bootstrap"
	OpClose     = "close"
)

var (
	ErrSchemaTooNew   = errors.New("vault schema is newer than this binary supports")
	ErrNotInitialized = errors.New("vault has not been initialized")

	ErrLaunchNotRecorded = errors.New("launch record does not match the committed state")
)

// Error is returned by Run. Op names the bootstrap step that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
