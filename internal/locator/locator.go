// Package locator finds the single ledger that belongs to a principal.
//
// Resolution order is: the ledger remembered for the principal, then the
// most recently modified spreadsheet following the naming convention, then
// nothing. A ledger is never created implicitly.
package locator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"rupee/internal/core"
	"rupee/internal/log"
	"rupee/internal/sheets"
)

const DefaultAppName = "Track your Rupee"

var (
	ErrLedgerExists  = errors.New("a ledger already exists for this account")
	ErrInvalidFormat = errors.New("spreadsheet does not have the expected header")
	ErrInvalidID     = errors.New("not a spreadsheet id or url")
)

// Refs stores the ledger remembered for each principal.
type Refs interface {
	RememberLedger(ctx context.Context, principalID string, l core.Ledger) error
	RememberedLedger(ctx context.Context, principalID string) (*core.Ledger, error)
	ForgetLedger(ctx context.Context, principalID string) error
}

// Resolution is the outcome of locating a ledger. When NeedsLedger is set
// the caller must ask the user to create or connect one.
type Resolution struct {
	LedgerID    string `json:"ledger_id,omitempty"`
	Title       string `json:"title,omitempty"`
	Created     bool   `json:"created"`
	NeedsLedger bool   `json:"needs_ledger"`
}

func (r Resolution) Ledger() core.Ledger {
	return core.Ledger{ID: r.LedgerID, Title: r.Title}
}

type Locator struct {
	gw      sheets.Gateway
	refs    Refs
	appName string
	logger  *log.Logger
}

func New(gw sheets.Gateway, refs Refs, appName string, logger *log.Logger) *Locator {
	if strings.TrimSpace(appName) == "" {
		appName = DefaultAppName
	}
	return &Locator{gw: gw, refs: refs, appName: appName, logger: logger.WithComponent(log.ComponentLocator)}
}

// NamingConvention returns the title a principal's ledger is created with.
func (l *Locator) NamingConvention(p core.Principal) string {
	return l.appName + " - " + p.Email
}

// Resolve finds the principal's ledger. Transient remote failures are
// returned as errors rather than moving on to another ledger.
func (l *Locator) Resolve(ctx context.Context, p core.Principal) (Resolution, error) {
	remembered, err := l.refs.RememberedLedger(ctx, p.ID)
	if err != nil {
		return Resolution{}, fmt.Errorf("load remembered ledger: %w", err)
	}
	if remembered != nil {
		ok, err := l.checkRemembered(ctx, remembered.ID)
		if err != nil {
			return Resolution{}, err
		}
		if ok {
			l.logger.InfoContext(ctx, "Using remembered ledger",
				log.FieldPrincipalID, p.ID, log.FieldLedgerID, remembered.ID, log.FieldOperation, log.OpResolve)
			return Resolution{LedgerID: remembered.ID, Title: remembered.Title}, nil
		}
		l.logger.InfoContext(ctx, "Remembered ledger is no longer usable", log.FieldLedgerID, remembered.ID)
		if err := l.refs.ForgetLedger(ctx, p.ID); err != nil {
			return Resolution{}, fmt.Errorf("forget ledger: %w", err)
		}
	}

	found, err := l.findCandidate(ctx, p)
	if err != nil {
		return Resolution{}, err
	}
	if found == nil {
		l.logger.InfoContext(ctx, "No ledger found", log.FieldPrincipalID, p.ID, log.FieldOperation, log.OpResolve)
		return Resolution{NeedsLedger: true}, nil
	}
	if err := l.refs.RememberLedger(ctx, p.ID, found.Ledger()); err != nil {
		return Resolution{}, fmt.Errorf("remember ledger: %w", err)
	}
	return *found, nil
}

// Create makes a new ledger unless a matching one already exists, in which
// case the existing resolution is returned with ErrLedgerExists.
func (l *Locator) Create(ctx context.Context, p core.Principal) (Resolution, error) {
	found, err := l.findCandidate(ctx, p)
	if err != nil {
		return Resolution{}, err
	}
	if found != nil {
		if err := l.refs.RememberLedger(ctx, p.ID, found.Ledger()); err != nil {
			return Resolution{}, fmt.Errorf("remember ledger: %w", err)
		}
		return *found, ErrLedgerExists
	}

	title := l.NamingConvention(p)
	id, err := l.gw.CreateLedger(ctx, title)
	if err != nil {
		return Resolution{}, fmt.Errorf("create ledger: %w", err)
	}
	if err := l.writeHeader(ctx, id); err != nil {
		return Resolution{}, err
	}
	res := Resolution{LedgerID: id, Title: title, Created: true}
	if err := l.refs.RememberLedger(ctx, p.ID, res.Ledger()); err != nil {
		return Resolution{}, fmt.Errorf("remember ledger: %w", err)
	}
	l.logger.InfoContext(ctx, "Ledger created",
		log.FieldPrincipalID, p.ID, log.FieldLedgerID, id, log.FieldOperation, log.OpCreate)
	return res, nil
}

// Connect attaches an existing spreadsheet, given by id or url, as the
// principal's ledger.
func (l *Locator) Connect(ctx context.Context, p core.Principal, idOrURL string) (Resolution, error) {
	id, err := ParseLedgerID(idOrURL)
	if err != nil {
		return Resolution{}, err
	}
	exists, err := l.gw.Exists(ctx, id)
	if err != nil {
		return Resolution{}, fmt.Errorf("check ledger: %w", err)
	}
	if !exists {
		return Resolution{}, core.Rejected("locator.connect", fmt.Errorf("spreadsheet %s not found", id))
	}
	ok, err := l.ensureHeader(ctx, id)
	if err != nil {
		return Resolution{}, err
	}
	if !ok {
		return Resolution{}, ErrInvalidFormat
	}
	res := Resolution{LedgerID: id}
	if err := l.refs.RememberLedger(ctx, p.ID, res.Ledger()); err != nil {
		return Resolution{}, fmt.Errorf("remember ledger: %w", err)
	}
	l.logger.InfoContext(ctx, "Ledger connected", log.FieldPrincipalID, p.ID, log.FieldLedgerID, id)
	return res, nil
}

// Forget drops the remembered ledger of a principal.
func (l *Locator) Forget(ctx context.Context, p core.Principal) error {
	return l.refs.ForgetLedger(ctx, p.ID)
}

// checkRemembered reports whether a remembered ledger can still be used.
// Rejections mean no; anything else propagates.
func (l *Locator) checkRemembered(ctx context.Context, id string) (bool, error) {
	exists, err := l.gw.Exists(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrRemoteRejected) {
			return false, nil
		}
		return false, fmt.Errorf("check remembered ledger: %w", err)
	}
	if !exists {
		return false, nil
	}
	ok, err := l.ensureHeader(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrRemoteRejected) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

func (l *Locator) findCandidate(ctx context.Context, p core.Principal) (*Resolution, error) {
	cands, err := l.gw.ListCandidates(ctx, l.NamingConvention(p))
	if err != nil {
		return nil, fmt.Errorf("list candidate ledgers: %w", err)
	}
	sorted := append([]sheets.Candidate(nil), cands...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastModified.After(sorted[j].LastModified)
	})

	for _, c := range sorted {
		ok, err := l.ensureHeader(ctx, c.ID)
		if err != nil {
			if errors.Is(err, core.ErrRemoteRejected) {
				continue
			}
			return nil, err
		}
		if ok {
			l.logger.InfoContext(ctx, "Found ledger by name",
				log.FieldPrincipalID, p.ID, log.FieldLedgerID, c.ID, "candidates", len(cands))
			return &Resolution{LedgerID: c.ID, Title: c.Title}, nil
		}
		l.logger.DebugContext(ctx, "Skipping candidate with foreign header", log.FieldLedgerID, c.ID)
	}
	return nil, nil
}

// ensureHeader validates the header row, writing it when the sheet is
// empty.
func (l *Locator) ensureHeader(ctx context.Context, id string) (bool, error) {
	rows, err := l.gw.ReadRange(ctx, id, sheets.HeaderRange)
	if err != nil {
		return false, fmt.Errorf("read header: %w", err)
	}
	if len(rows) == 0 || isEmpty(rows[0]) {
		if err := l.writeHeader(ctx, id); err != nil {
			return false, err
		}
		return true, nil
	}
	return sheets.HeaderMatches(rows[0]), nil
}

func (l *Locator) writeHeader(ctx context.Context, id string) error {
	if err := l.gw.WriteRange(ctx, id, sheets.HeaderRange, [][]string{sheets.Header}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

func isEmpty(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

var (
	urlIDRE  = regexp.MustCompile(`/spreadsheets/d/([A-Za-z0-9_-]+)`)
	bareIDRE = regexp.MustCompile(`^[A-Za-z0-9_:-]+$`)
)

// ParseLedgerID extracts a spreadsheet id from a sheet url or accepts a
// bare id.
func ParseLedgerID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if m := urlIDRE.FindStringSubmatch(s); m != nil {
		return m[1], nil
	}
	if bareIDRE.MatchString(s) {
		return s, nil
	}
	return "", ErrInvalidID
}
