package storage

import (
	"errors"
	"fmt"
)

// Reason classifies why a persist operation failed.
type Reason int

const (
	// SourceMissing means the source was nil, did not exist or was a directory.
	SourceMissing Reason = iota + 1
	// IOFailure means opening, writing, flushing or closing the destination failed.
	IOFailure
	// DirectoryCreateFailure is logged when the destination directory cannot be
	// created. Persist carries on and the following open reports IOFailure.
	DirectoryCreateFailure
	// RootUnavailable means no cache root was configured.
	RootUnavailable
	// Canceled means the context ended between chunks.
	Canceled
)

var reasonNames = map[Reason]string{
	SourceMissing:          "source_missing",
	IOFailure:              "io_failure",
	DirectoryCreateFailure: "directory_create_failure",
	RootUnavailable:        "root_unavailable",
	Canceled:               "canceled",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "unknown"
}

// Sentinel errors matched by errors.Is against an *Error of the same Reason.
var (
	ErrSourceMissing          = errors.New("source missing")
	ErrIOFailure              = errors.New("i/o failure")
	ErrDirectoryCreateFailure = errors.New("directory create failure")
	ErrRootUnavailable        = errors.New("cache root unavailable")
	ErrCanceled               = errors.New("persist canceled")
)

func (r Reason) sentinel() error {
	switch r {
	case SourceMissing:
		return ErrSourceMissing
	case IOFailure:
		return ErrIOFailure
	case DirectoryCreateFailure:
		return ErrDirectoryCreateFailure
	case RootUnavailable:
		return ErrRootUnavailable
	case Canceled:
		return ErrCanceled
	}
	return nil
}

// Error is returned by every failing Persister operation.
type Error struct {
	Op     string
	Path   string
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("storage %s %s: %s", e.Op, e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Reason.
func (e *Error) Is(target error) bool {
	s := e.Reason.sentinel()
	return s != nil && target == s
}

// ReasonOf extracts the Reason from err, or 0 if err is not an *Error.
func ReasonOf(err error) Reason {
	var se *Error
	if errors.As(err, &se) {
		return se.Reason
	}
	return 0
}

func newError(op, path string, reason Reason, err error) *Error {
	return &Error{Op: op, Path: path, Reason: reason, Err: err}
}
