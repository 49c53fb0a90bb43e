package common

import (
	"errors"
	"fmt"
)

var ErrStoreUnavailable = errors.New("object store unavailable")
var ErrStreamTimeout = errors.New("stream timed out")
var ErrArchiveWriter = errors.New("archive writer failed")
var ErrUploadPartFailure = errors.New("multipart upload failed")
var ErrObjectNotFound = errors.New("object not found")
var ErrJobAlreadyRunning = errors.New("export job is already running")
var ErrArchiveFinalized = errors.New("archive already finalized")

// ExportError attaches the failing operation and object key to one of the error kinds above.
// errors.Is matches both the kind and the underlying cause.
type ExportError struct {
	Kind error
	Op   string
	Key  string
	Err  error
}

func (e *ExportError) Error() string {
	subject := e.Op
	if e.Key != "" {
		subject = e.Op + " " + e.Key
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", subject, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", subject, e.Kind, e.Err)
}

func (e *ExportError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewExportError(kind error, op string, key string, err error) *ExportError {
	return &ExportError{Kind: kind, Op: op, Key: key, Err: err}
}
