package edma

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Status represents an EDMA operation status code
type Status int

const (
	StatusSuccess              Status = 0
	StatusInvalidChannel       Status = 1
	StatusInvalidResourceRange Status = 2
	StatusAllocationFailed     Status = 3
	StatusSizeMismatch         Status = 4
	StatusUnsupported          Status = 5
	StatusUnsupportedDirection Status = 6
	StatusNotAllocated         Status = 7
	StatusCancelled            Status = 8
	StatusInvalidArgument      Status = 9
)

var statusMessages = map[Status]string{
	StatusSuccess:              "success",
	StatusInvalidChannel:       "invalid channel",
	StatusInvalidResourceRange: "invalid resource range",
	StatusAllocationFailed:     "resource allocation failed",
	StatusSizeMismatch:         "size mismatch",
	StatusUnsupported:          "unsupported transfer geometry",
	StatusUnsupportedDirection: "unsupported channel direction",
	StatusNotAllocated:         "channel not allocated",
	StatusCancelled:            "resource release failed",
	StatusInvalidArgument:      "invalid argument",
}

// String returns the human-readable status message
func (s Status) String() string {
	if msg, ok := statusMessages[s]; ok {
		return msg
	}
	return fmt.Sprintf("unknown status (%d)", int(s))
}

// Error represents an error from the EDMA resource manager
type Error struct {
	Status  Status
	Context string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Context != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s: %v", e.Context, e.Status.String(), e.Cause)
		}
		return fmt.Sprintf("%s: %s", e.Context, e.Status.String())
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Status.String(), e.Cause)
	}
	return e.Status.String()
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target status
func (e *Error) Is(target error) bool {
	var edmaErr *Error
	if errors.As(target, &edmaErr) {
		return e.Status == edmaErr.Status
	}
	return false
}

// NewError creates a new Error with the given status
func NewError(status Status, context string) *Error {
	return &Error{
		Status:  status,
		Context: context,
	}
}

// NewErrorWithCause creates a new Error with an underlying cause
func NewErrorWithCause(status Status, context string, cause error) *Error {
	return &Error{
		Status:  status,
		Context: context,
		Cause:   cause,
	}
}

// Errno converts a status to the Linux errno a kernel-side driver
// would report for the same condition.
func (s Status) Errno() unix.Errno {
	switch s {
	case StatusSuccess:
		return 0
	case StatusInvalidChannel, StatusInvalidResourceRange, StatusInvalidArgument:
		return unix.EINVAL
	case StatusAllocationFailed:
		return unix.ENOBUFS
	case StatusSizeMismatch, StatusUnsupported, StatusUnsupportedDirection:
		return unix.ENOTSUP
	case StatusNotAllocated:
		return unix.ENOENT
	case StatusCancelled:
		return unix.ECANCELED
	default:
		return unix.EIO
	}
}

// ErrnoToStatus converts a Linux errno to an EDMA status
func ErrnoToStatus(errno unix.Errno) Status {
	switch errno {
	case 0:
		return StatusSuccess
	case unix.EINVAL:
		return StatusInvalidArgument
	case unix.ENOBUFS, unix.ENOMEM:
		return StatusAllocationFailed
	case unix.ENOTSUP:
		return StatusUnsupported
	case unix.ENOENT:
		return StatusNotAllocated
	case unix.ECANCELED:
		return StatusCancelled
	default:
		return StatusInvalidArgument
	}
}

// StatusOf extracts the status code from an error, or StatusSuccess
// for nil errors. Errors that are not *Error map to StatusInvalidArgument.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var edmaErr *Error
	if errors.As(err, &edmaErr) {
		return edmaErr.Status
	}
	return StatusInvalidArgument
}
