package sheets

import (
	"context"
	"time"
)

// Ports for outbound adapters.
type (
	// Gateway is the remote tabular store holding ledgers. Every failure is
	// a *core.RemoteError classified as unavailable, rejected or auth
	// expired. Implementations never retry.
	Gateway interface {
		ReadRange(ctx context.Context, ledgerID, rng string) ([][]string, error)
		AppendRow(ctx context.Context, ledgerID, rng string, row []string) error
		WriteRange(ctx context.Context, ledgerID, rng string, rows [][]string) error
		CreateLedger(ctx context.Context, title string) (ledgerID string, err error)
		// Exists returns false with a nil error when the ledger is gone or
		// not accessible; an error means the answer is unknown.
		Exists(ctx context.Context, ledgerID string) (bool, error)
		// ListCandidates returns ledgers whose title contains namePattern.
		ListCandidates(ctx context.Context, namePattern string) ([]Candidate, error)
	}

	// TabAdder is implemented by gateways that can add a named tab to an
	// existing ledger.
	TabAdder interface {
		EnsureTab(ctx context.Context, ledgerID, title string) error
	}

	Candidate struct {
		ID           string
		Title        string
		LastModified time.Time
	}
)
