package backend

import (
	"context"

	"rupee/internal/session"
	"rupee/internal/sheets"
)

// CleanupFunc releases resources held by a backend
type CleanupFunc func() error

// BackendResult is a ledger gateway together with the session manager that
// authorizes it
type BackendResult struct {
	Gateway  sheets.Gateway
	Sessions *session.Manager
	Cleanup  CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config, store session.CredentialStore) (*BackendResult, error)
}

// BackendType represents the type of ledger backend
type BackendType string

const (
	// MemoryBackend keeps ledgers in process memory and signs in a fixed
	// principal
	MemoryBackend BackendType = "memory"
	// SheetsBackend stores ledgers as Google spreadsheets behind an OAuth
	// desktop login
	SheetsBackend BackendType = "sheets"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid checks if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SheetsBackend:
		return true
	default:
		return false
	}
}
