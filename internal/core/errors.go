package core

import (
	"errors"
	"fmt"
)

// Error kinds shared by every component. Remote failures are reported as a
// *RemoteError whose Kind is one of the sentinels below, so callers test
// with errors.Is.
var (
	ErrAuthExpired       = errors.New("authentication expired")
	ErrRemoteUnavailable = errors.New("remote unavailable")
	ErrRemoteRejected    = errors.New("remote rejected request")
)

// ReasonDuplicate is the non-error outcome of appending an entry that
// already exists in the ledger.
const ReasonDuplicate = "duplicate"

// RemoteError describes a failed call to the remote ledger or identity
// provider.
type RemoteError struct {
	Op   string
	Kind error
	Err  error
}

func (e *RemoteError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *RemoteError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Unavailable wraps err as a transient remote failure.
func Unavailable(op string, err error) error {
	return &RemoteError{Op: op, Kind: ErrRemoteUnavailable, Err: err}
}

// Rejected wraps err as a remote refusal (not found, permission denied,
// malformed request).
func Rejected(op string, err error) error {
	return &RemoteError{Op: op, Kind: ErrRemoteRejected, Err: err}
}

// AuthExpired wraps err as an expired or revoked credential.
func AuthExpired(op string, err error) error {
	return &RemoteError{Op: op, Kind: ErrAuthExpired, Err: err}
}

// ValidationError reports a bad field on an entry or extracted candidate.
// Index is the candidate position in a batch, or -1 for a single entry.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("candidate %d: invalid %s: %s", e.Index, e.Field, e.Reason)
}

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
