package models

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType int

const (
	ErrPackageRejected ErrorType = iota
	ErrFetch
	ErrIndexing
	ErrPackageParse
	ErrFileOp
	ErrInvalidConfig
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrPackageRejected:
		return "PackageRejected"
	case ErrFetch:
		return "Fetch"
	case ErrIndexing:
		return "Indexing"
	case ErrPackageParse:
		return "PackageParse"
	case ErrFileOp:
		return "FileOp"
	case ErrInvalidConfig:
		return "InvalidConfig"
	default:
		return "Unknown"
	}
}

// PrefetchError represents an error during an rpm prefetch run.
// Solution carries a remediation hint shown to the user.
type PrefetchError struct {
	Type     ErrorType
	Package  string
	Err      error
	Solution string
}

// Error implements the error interface
func (e *PrefetchError) Error() string {
	var msg string
	if e.Package != "" {
		msg = fmt.Sprintf("[%s] %s: %v", e.Type, e.Package, e.Err)
	} else {
		msg = fmt.Sprintf("[%s] %v", e.Type, e.Err)
	}
	if e.Solution != "" {
		msg += "\nSolution: " + e.Solution
	}
	return msg
}

// Unwrap returns the wrapped error
func (e *PrefetchError) Unwrap() error {
	return e.Err
}

// NewPackageRejected returns an input rejection error with a remediation hint.
func NewPackageRejected(reason, solution string) *PrefetchError {
	return &PrefetchError{
		Type:     ErrPackageRejected,
		Err:      errors.New(reason),
		Solution: solution,
	}
}

// IsType reports whether err is a PrefetchError of the given type.
func IsType(err error, t ErrorType) bool {
	var pe *PrefetchError
	if errors.As(err, &pe) {
		return pe.Type == t
	}
	return false
}
