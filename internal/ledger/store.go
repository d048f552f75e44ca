// Package ledger keeps the local cache of a ledger's entries in step with
// the remote spreadsheet.
//
// Mutations are applied to the cache first and then written remotely. The
// entry's Status records the outcome: local while the write is in flight,
// confirmed once it is acknowledged, failed otherwise. A failed write is
// never rolled back; RetryFailed re-issues it when the caller decides to.
//
// Only one mutation runs at a time, so remote writes for a ledger are
// issued in the order the mutations were made. Readers only take the cache
// lock and never wait on the network.
//
// A cache position is not always a sheet row: an entry whose append failed
// has no row until the append is retried, and later appends land above it.
// The store keeps the sheet row of every entry and addresses updates by
// that row. Refresh realigns positions with rows.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"rupee/internal/core"
	"rupee/internal/dedup"
	"rupee/internal/log"
	"rupee/internal/sheets"
)

var ErrNoLedger = errors.New("no ledger selected")

// AppendResult is the outcome of Append. Accepted is false only for
// duplicates; a failed remote write is still accepted with Status failed.
type AppendResult struct {
	Accepted bool             `json:"accepted"`
	Reason   string           `json:"reason,omitempty"`
	Position int              `json:"position"`
	Status   core.EntryStatus `json:"status,omitempty"`
}

type pendingOp uint8

const (
	opNone pendingOp = iota
	opAppend
	opUpdate
)

// slot is the remote side of a cached entry. row is -1 while the entry has
// never been appended.
type slot struct {
	row int
	op  pendingOp
}

type Store struct {
	gw       sheets.Gateway
	ledgerID string
	logger   *log.Logger

	writeMu sync.Mutex

	mu        sync.RWMutex
	entries   []core.Entry
	slots     []slot
	sheetRows int
}

func New(gw sheets.Gateway, ledgerID string, logger *log.Logger) *Store {
	return &Store{
		gw:       gw,
		ledgerID: ledgerID,
		logger:   logger.WithComponent(log.ComponentLedger).With(log.FieldLedgerID, ledgerID),
	}
}

func (s *Store) LedgerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledgerID
}

// Refresh replaces the cache with the remote contents. Entries that were
// never confirmed are dropped.
func (s *Store) Refresh(ctx context.Context) ([]core.Entry, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	id := s.LedgerID()
	if id == "" {
		return nil, ErrNoLedger
	}
	rows, err := s.gw.ReadRange(ctx, id, sheets.DataRange)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	entries := sheets.RowsToEntries(rows)

	s.mu.Lock()
	dropped := countUnconfirmed(s.entries)
	s.entries = entries
	s.slots = make([]slot, len(entries))
	for i := range s.slots {
		s.slots[i] = slot{row: i}
	}
	s.sheetRows = len(entries)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Ledger refreshed",
		"entries", len(entries), "dropped_pending", dropped, log.FieldOperation, log.OpRefresh)
	return s.Snapshot(), nil
}

// Append adds candidate unless it duplicates an entry already cached.
func (s *Store) Append(ctx context.Context, candidate core.Entry) (AppendResult, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	id := s.LedgerID()
	if id == "" {
		return AppendResult{}, ErrNoLedger
	}
	candidate = candidate.WithDefaults()

	s.mu.Lock()
	if pos, dup := dedup.FindDuplicate(s.entries, candidate); dup {
		s.mu.Unlock()
		s.logger.InfoContext(ctx, "Duplicate entry skipped",
			log.FieldDescription, candidate.Description, "duplicate_of", pos)
		return AppendResult{Accepted: false, Reason: core.ReasonDuplicate, Position: pos}, nil
	}
	candidate.Position = len(s.entries)
	candidate.Status = core.StatusLocal
	s.entries = append(s.entries, candidate)
	s.slots = append(s.slots, slot{row: -1, op: opAppend})
	s.mu.Unlock()

	err := s.gw.AppendRow(ctx, id, sheets.AppendRange, sheets.EntryToRow(candidate))
	status := s.settle(candidate.Position, opAppend, err)

	res := AppendResult{Accepted: true, Position: candidate.Position, Status: status}
	if err != nil {
		s.logger.WarnContext(ctx, "Remote append failed",
			log.FieldPosition, candidate.Position, log.FieldError, err, log.FieldOperation, log.OpAppend)
		return res, fmt.Errorf("append entry: %w", err)
	}
	return res, nil
}

// Update merges patch into the entry at position. It returns false without
// touching anything when position is out of range. An entry that never
// reached the sheet is appended with the merged contents instead.
func (s *Store) Update(ctx context.Context, position int, patch core.Patch) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	id := s.LedgerID()
	if id == "" {
		return false, ErrNoLedger
	}

	s.mu.Lock()
	if position < 0 || position >= len(s.entries) {
		s.mu.Unlock()
		return false, nil
	}
	current := s.entries[position]
	next := patch.Apply(current)
	if patch.Date != nil && patch.PeriodLabel == nil {
		next.PeriodLabel = ""
	}
	next = next.WithDefaults()
	next.Position = position
	next.Status = core.StatusLocal
	s.entries[position] = next
	row := s.slots[position].row
	op := opUpdate
	if row < 0 {
		op = opAppend
	}
	s.slots[position].op = op
	s.mu.Unlock()

	err := s.write(ctx, id, op, row, next)
	s.settle(position, op, err)
	if err != nil {
		s.logger.WarnContext(ctx, "Remote update failed",
			log.FieldPosition, position, log.FieldError, err, log.FieldOperation, log.OpUpdate)
		return true, fmt.Errorf("update entry %d: %w", position, err)
	}
	return true, nil
}

// RetryFailed re-issues the write of every failed entry, in position
// order: failed appends are appended again and failed updates rewrite the
// entry's own row. It stops at the first error and returns how many were
// confirmed.
func (s *Store) RetryFailed(ctx context.Context) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	id := s.LedgerID()
	if id == "" {
		return 0, ErrNoLedger
	}

	type retry struct {
		entry core.Entry
		slot  slot
	}
	s.mu.RLock()
	var failed []retry
	for i, e := range s.entries {
		if e.Status == core.StatusFailed {
			failed = append(failed, retry{entry: e, slot: s.slots[i]})
		}
	}
	s.mu.RUnlock()

	done := 0
	for _, r := range failed {
		e := r.entry
		op := r.slot.op
		if r.slot.row < 0 {
			op = opAppend
		}
		err := s.write(ctx, id, op, r.slot.row, e)
		s.settle(e.Position, op, err)
		if err != nil {
			return done, fmt.Errorf("retry entry %d: %w", e.Position, err)
		}
		done++
	}
	if done > 0 {
		s.logger.InfoContext(ctx, "Failed writes retried", "confirmed", done)
	}
	return done, nil
}

// Snapshot returns a copy of the cached entries in position order.
func (s *Store) Snapshot() []core.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Pending returns entries whose remote write is not confirmed.
func (s *Store) Pending() []core.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Entry
	for _, e := range s.entries {
		if e.Status != core.StatusConfirmed {
			out = append(out, e)
		}
	}
	return out
}

// Clear empties the cache and detaches the store from its ledger. Later
// mutations fail with ErrNoLedger.
func (s *Store) Clear() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.slots = nil
	s.sheetRows = 0
	s.ledgerID = ""
}

func (s *Store) write(ctx context.Context, id string, op pendingOp, row int, e core.Entry) error {
	if op == opAppend {
		return s.gw.AppendRow(ctx, id, sheets.AppendRange, sheets.EntryToRow(e))
	}
	return s.gw.WriteRange(ctx, id, sheets.RowRange(row), [][]string{sheets.EntryToRow(e)})
}

// settle records the outcome of a write. A confirmed append takes the next
// sheet row.
func (s *Store) settle(position int, op pendingOp, err error) core.EntryStatus {
	status := core.StatusConfirmed
	if err != nil {
		status = core.StatusFailed
	}
	s.mu.Lock()
	if position < len(s.entries) {
		s.entries[position].Status = status
		if err == nil {
			if op == opAppend {
				s.slots[position].row = s.sheetRows
				s.sheetRows++
			}
			s.slots[position].op = opNone
		}
	}
	s.mu.Unlock()
	return status
}

func countUnconfirmed(entries []core.Entry) int {
	n := 0
	for _, e := range entries {
		if e.Status != core.StatusConfirmed {
			n++
		}
	}
	return n
}
