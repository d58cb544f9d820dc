// Package errors provides the structured error types used across beautypos.
//
// Every error kind maps to a recovery policy: validation and local
// persistence failures abort the caller's operation, while network, remote
// and parse failures are absorbed by the sync engine and turned into queued
// pending operations.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error by the recovery policy it demands.
type Kind string

const (
	// KindValidation marks malformed or missing domain fields. Rejected
	// before anything reaches the local store. Not retryable.
	KindValidation Kind = "VALIDATION"

	// KindLocalPersistence marks a failed durable write on the device.
	// Fatal: the operation aborts and the failure surfaces to the caller.
	KindLocalPersistence Kind = "LOCAL_PERSISTENCE"

	// KindNetwork marks a transport failure or timeout. Triggers the
	// offline transition and enqueues the operation.
	KindNetwork Kind = "NETWORK"

	// KindRemote marks a request the remote system processed but reported
	// as failed (success:false). Enqueued for retry.
	KindRemote Kind = "REMOTE"

	// KindParse marks a malformed remote response. Treated like KindRemote.
	KindParse Kind = "PARSE"

	// KindNotFound marks a lookup for a record that does not exist locally.
	KindNotFound Kind = "NOT_FOUND"
)

// Operation names the high-level operation during which an error occurred.
type Operation string

const (
	OpApply Operation = "apply"
	OpDrain Operation = "drain"
	OpPull  Operation = "pull"
	OpProbe Operation = "probe"
	OpCall  Operation = "call"
	OpStore Operation = "store"
	OpLoad  Operation = "load"
	OpClose Operation = "close"
)

// PosError is the structured error carried across component boundaries.
type PosError struct {
	// Op is the operation during which the error occurred.
	Op Operation

	// Component that generated the error (e.g. "localstore", "gateway").
	Component string

	// Kind classifies the error for recovery-policy decisions.
	Kind Kind

	// Err is the underlying cause.
	Err error

	// Retryable reports whether replaying the operation may succeed.
	Retryable bool

	// Metadata carries additional context for logging.
	Metadata map[string]interface{}
}

func (e *PosError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s operation failed", e.Op)
	}
	if e.Kind != "" {
		msg += fmt.Sprintf(" [%s]", e.Kind)
	}
	return msg + fmt.Sprintf(": %v", e.Err)
}

func (e *PosError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a non-retryable validation error.
func NewValidationError(op Operation, cause error) *PosError {
	return &PosError{
		Kind: KindValidation,
		Op:   op,
		Err:  cause,
	}
}

// NewStorageError creates a fatal local-persistence error.
func NewStorageError(op Operation, cause error) *PosError {
	return &PosError{
		Kind:      KindLocalPersistence,
		Op:        op,
		Component: "localstore",
		Err:       cause,
	}
}

// NewNetworkError creates a retryable transport error.
func NewNetworkError(op Operation, cause error) *PosError {
	return &PosError{
		Kind:      KindNetwork,
		Op:        op,
		Component: "gateway",
		Err:       cause,
		Retryable: true,
	}
}

// NewRemoteError creates a retryable error for a remote-reported failure.
func NewRemoteError(op Operation, cause error) *PosError {
	return &PosError{
		Kind:      KindRemote,
		Op:        op,
		Component: "gateway",
		Err:       cause,
		Retryable: true,
	}
}

// NewParseError creates a retryable error for a malformed remote response.
func NewParseError(op Operation, cause error) *PosError {
	return &PosError{
		Kind:      KindParse,
		Op:        op,
		Component: "gateway",
		Err:       cause,
		Retryable: true,
	}
}

// NewNotFoundError creates a non-retryable error for a missing record.
func NewNotFoundError(op Operation, cause error) *PosError {
	return &PosError{
		Kind: KindNotFound,
		Op:   op,
		Err:  cause,
	}
}

// New creates a PosError with no classification.
func New(op Operation, err error) *PosError {
	return &PosError{Op: op, Err: err}
}

// NewWithComponent creates a PosError with component information.
func NewWithComponent(op Operation, component string, err error) *PosError {
	return &PosError{Op: op, Component: component, Err: err}
}

// IsRetryable reports whether err is a retryable PosError.
func IsRetryable(err error) bool {
	var posErr *PosError
	if errors.As(err, &posErr) {
		return posErr.Retryable
	}
	return false
}

// KindOf returns the Kind of err, or the empty Kind for foreign errors.
func KindOf(err error) Kind {
	var posErr *PosError
	if errors.As(err, &posErr) {
		return posErr.Kind
	}
	return ""
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
