// Package memory is an in-process ledger gateway used by the memory backend
// and by tests. It understands the small subset of A1 notation the rest of
// the module produces.
package memory

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"rupee/internal/core"
	ports "rupee/internal/sheets"
)

type ledger struct {
	title    string
	modified time.Time
	tabs     map[string][][]string
}

type Store struct {
	mu      sync.Mutex
	ledgers map[string]*ledger
	seq     int
	now     func() time.Time

	calls    map[string]int
	failures map[string][]error
}

var (
	_ ports.Gateway  = (*Store)(nil)
	_ ports.TabAdder = (*Store)(nil)
)

func New() *Store {
	return &Store{
		ledgers:  make(map[string]*ledger),
		now:      time.Now,
		calls:    make(map[string]int),
		failures: make(map[string][]error),
	}
}

// Seed adds a ledger with the given data rows under a header row and
// returns its id.
func (s *Store) Seed(title string, modified time.Time, rows [][]string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID()
	values := [][]string{append([]string(nil), ports.Header...)}
	for _, r := range rows {
		values = append(values, append([]string(nil), r...))
	}
	s.ledgers[id] = &ledger{title: title, modified: modified, tabs: map[string][][]string{"": values}}
	return id
}

// SeedRaw adds a ledger whose first tab holds exactly values.
func (s *Store) SeedRaw(title string, modified time.Time, values [][]string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID()
	s.ledgers[id] = &ledger{title: title, modified: modified, tabs: map[string][][]string{"": copyRows(values)}}
	return id
}

// Delete removes a ledger, as if the user trashed it.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ledgers, id)
}

// FailNext makes the next call to op return err. op is the method name,
// e.g. "AppendRow".
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], err)
}

// Calls returns how many times op has been invoked.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Rows returns a copy of the first tab of a ledger.
func (s *Store) Rows(id string) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ledgers[id]
	if !ok {
		return nil
	}
	return copyRows(l.tabs[""])
}

func (s *Store) ReadRange(_ context.Context, ledgerID, rng string) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ReadRange"); err != nil {
		return nil, err
	}
	l, err := s.get("sheets.read", ledgerID)
	if err != nil {
		return nil, err
	}
	a, err := parseA1(rng)
	if err != nil {
		return nil, core.Rejected("sheets.read", err)
	}
	tab := l.tabs[a.tab]
	var out [][]string
	last := a.endRow
	if last == 0 || last > len(tab) {
		last = len(tab)
	}
	for r := a.startRow; r <= last; r++ {
		row := tab[r-1]
		var cells []string
		for c := a.startCol; c <= a.endCol && c < len(row); c++ {
			cells = append(cells, row[c])
		}
		out = append(out, cells)
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (s *Store) AppendRow(_ context.Context, ledgerID, rng string, row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("AppendRow"); err != nil {
		return err
	}
	l, err := s.get("sheets.append", ledgerID)
	if err != nil {
		return err
	}
	a, err := parseA1(rng)
	if err != nil {
		return core.Rejected("sheets.append", err)
	}
	l.tabs[a.tab] = append(l.tabs[a.tab], append([]string(nil), row...))
	l.modified = s.now()
	return nil
}

func (s *Store) WriteRange(_ context.Context, ledgerID, rng string, rows [][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("WriteRange"); err != nil {
		return err
	}
	l, err := s.get("sheets.write", ledgerID)
	if err != nil {
		return err
	}
	a, err := parseA1(rng)
	if err != nil {
		return core.Rejected("sheets.write", err)
	}
	tab := l.tabs[a.tab]
	for i, row := range rows {
		r := a.startRow + i
		for len(tab) < r {
			tab = append(tab, nil)
		}
		for j, v := range row {
			c := a.startCol + j
			for len(tab[r-1]) <= c {
				tab[r-1] = append(tab[r-1], "")
			}
			tab[r-1][c] = v
		}
	}
	l.tabs[a.tab] = tab
	l.modified = s.now()
	return nil
}

func (s *Store) CreateLedger(_ context.Context, title string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateLedger"); err != nil {
		return "", err
	}
	id := s.nextID()
	s.ledgers[id] = &ledger{title: title, modified: s.now(), tabs: map[string][][]string{"": nil}}
	return id, nil
}

func (s *Store) Exists(_ context.Context, ledgerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Exists"); err != nil {
		return false, err
	}
	_, ok := s.ledgers[ledgerID]
	return ok, nil
}

func (s *Store) ListCandidates(_ context.Context, namePattern string) ([]ports.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListCandidates"); err != nil {
		return nil, err
	}
	var out []ports.Candidate
	for id, l := range s.ledgers {
		if strings.Contains(l.title, namePattern) {
			out = append(out, ports.Candidate{ID: id, Title: l.title, LastModified: l.modified})
		}
	}
	return out, nil
}

func (s *Store) EnsureTab(_ context.Context, ledgerID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("EnsureTab"); err != nil {
		return err
	}
	l, err := s.get("sheets.add_tab", ledgerID)
	if err != nil {
		return err
	}
	if _, ok := l.tabs[title]; !ok {
		l.tabs[title] = nil
	}
	return nil
}

func (s *Store) enter(op string) error {
	s.calls[op]++
	if q := s.failures[op]; len(q) > 0 {
		s.failures[op] = q[1:]
		return q[0]
	}
	return nil
}

func (s *Store) get(op, id string) (*ledger, error) {
	l, ok := s.ledgers[id]
	if !ok {
		return nil, core.Rejected(op, fmt.Errorf("ledger %q not found", id))
	}
	return l, nil
}

func (s *Store) nextID() string {
	s.seq++
	return fmt.Sprintf("mem:%d", s.seq)
}

func copyRows(in [][]string) [][]string {
	out := make([][]string, len(in))
	for i, r := range in {
		out[i] = append([]string(nil), r...)
	}
	return out
}

type a1 struct {
	tab              string
	startCol, endCol int
	startRow, endRow int // endRow 0 means open-ended
}

var a1RE = regexp.MustCompile(`^(?:([^!]+)!)?([A-Z]+)(\d*):([A-Z]+)(\d*)$`)

func parseA1(rng string) (a1, error) {
	m := a1RE.FindStringSubmatch(strings.TrimSpace(rng))
	if m == nil {
		return a1{}, fmt.Errorf("unsupported range %q", rng)
	}
	out := a1{tab: m[1], startCol: colIndex(m[2]), endCol: colIndex(m[4]), startRow: 1}
	if m[3] != "" {
		out.startRow, _ = strconv.Atoi(m[3])
	}
	if m[5] != "" {
		out.endRow, _ = strconv.Atoi(m[5])
	}
	if out.startRow < 1 || (out.endRow != 0 && out.endRow < out.startRow) || out.endCol < out.startCol {
		return a1{}, fmt.Errorf("invalid range %q", rng)
	}
	return out, nil
}

func colIndex(col string) int {
	n := 0
	for _, r := range col {
		n = n*26 + int(r-'A'+1)
	}
	return n - 1
}
