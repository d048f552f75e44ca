package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rupee/internal/amqp"
	"rupee/internal/budget"
	"rupee/internal/core"
	"rupee/internal/ledger"
	"rupee/internal/locator"
	"rupee/internal/log"
	"rupee/internal/session"
	"rupee/internal/sheets"
	"rupee/internal/stats"
)

// EventPublisher receives ledger events. The AMQP client implements it.
type EventPublisher interface {
	Publish(ctx context.Context, ev *amqp.LedgerEvent) error
}

// Deps are the collaborators of a LedgerService. Events and Extractor may
// be nil.
type Deps struct {
	Sessions  *session.Manager
	Locator   *locator.Locator
	Gateway   sheets.Gateway
	Budget    *budget.Monitor
	Events    EventPublisher
	Extractor Extractor
	Logger    *log.Logger
}

// Overview describes the session as the API reports it.
type Overview struct {
	State       session.State   `json:"state"`
	Principal   *core.Principal `json:"principal,omitempty"`
	Ledger      *core.Ledger    `json:"ledger,omitempty"`
	NeedsLedger bool            `json:"needs_ledger"`
	Entries     int             `json:"entries"`
	Pending     int             `json:"pending"`
}

// BudgetView is the budget state together with the current month's spend.
type BudgetView struct {
	Ceiling         core.Money
	LastCrossedBand int
	PeriodKey       string
	Spent           core.Money
	Percent         float64
}

// LedgerService drives one session: it authenticates, locates the ledger,
// owns the ledger store and runs the budget check after each accepted
// mutation. There is one per process and no package level state.
type LedgerService struct {
	sessions  *session.Manager
	locator   *locator.Locator
	gw        sheets.Gateway
	budget    *budget.Monitor
	mirror    *budget.Mirror
	events    EventPublisher
	extractor Extractor
	logger    *log.Logger
	now       func() time.Time

	mu          sync.RWMutex
	store       *ledger.Store
	active      *core.Ledger
	needsLedger bool

	bg sync.WaitGroup
}

func NewLedgerService(d Deps) *LedgerService {
	s := &LedgerService{
		sessions:  d.Sessions,
		locator:   d.Locator,
		gw:        d.Gateway,
		budget:    d.Budget,
		mirror:    budget.NewMirror(d.Gateway),
		events:    d.Events,
		extractor: d.Extractor,
		logger:    d.Logger.WithComponent(log.ComponentLedger),
		now:       time.Now,
	}
	d.Sessions.OnTeardown(func(ctx context.Context) { s.detach(ctx) })
	return s
}

// Start restores the previous session, if any, and attaches its ledger.
func (s *LedgerService) Start(ctx context.Context) error {
	p, err := s.sessions.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if p == nil {
		return nil
	}
	return s.resolve(ctx, *p)
}

func (s *LedgerService) Login(ctx context.Context) (Overview, error) {
	p, err := s.sessions.Login(ctx)
	if err != nil {
		return Overview{}, err
	}
	if err := s.resolve(ctx, p); err != nil {
		return s.Overview(), err
	}
	return s.Overview(), nil
}

func (s *LedgerService) Logout(ctx context.Context) error {
	return s.sessions.Logout(ctx)
}

func (s *LedgerService) Overview() Overview {
	o := Overview{State: s.sessions.State()}
	if p, ok := s.sessions.Principal(); ok {
		o.Principal = &p
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active != nil {
		l := *s.active
		o.Ledger = &l
	}
	o.NeedsLedger = s.needsLedger
	if s.store != nil {
		o.Entries = s.store.Len()
		o.Pending = len(s.store.Pending())
	}
	return o
}

// CreateLedger creates the principal's ledger. When one already exists it
// is attached and returned along with locator.ErrLedgerExists.
func (s *LedgerService) CreateLedger(ctx context.Context) (locator.Resolution, error) {
	p, err := s.principal()
	if err != nil {
		return locator.Resolution{}, err
	}
	res, err := s.locator.Create(ctx, p)
	if err != nil && !errors.Is(err, locator.ErrLedgerExists) {
		s.observe(ctx, err)
		return locator.Resolution{}, err
	}
	if aerr := s.attach(ctx, p, res); aerr != nil {
		return res, aerr
	}
	return res, err
}

// ConnectLedger attaches an existing spreadsheet by id or url.
func (s *LedgerService) ConnectLedger(ctx context.Context, idOrURL string) (locator.Resolution, error) {
	p, err := s.principal()
	if err != nil {
		return locator.Resolution{}, err
	}
	res, err := s.locator.Connect(ctx, p, idOrURL)
	if err != nil {
		s.observe(ctx, err)
		return locator.Resolution{}, err
	}
	return res, s.attach(ctx, p, res)
}

// Entries returns the cached entries.
func (s *LedgerService) Entries() ([]core.Entry, error) {
	st, err := s.current()
	if err != nil {
		return nil, err
	}
	return st.Snapshot(), nil
}

func (s *LedgerService) Refresh(ctx context.Context) ([]core.Entry, error) {
	st, err := s.current()
	if err != nil {
		return nil, err
	}
	entries, err := st.Refresh(ctx)
	if err != nil {
		s.onStoreError(ctx, err)
		return nil, err
	}
	return entries, nil
}

// AddEntry validates e and appends it. A duplicate is not an error: the
// result is returned with Accepted false.
func (s *LedgerService) AddEntry(ctx context.Context, e core.Entry) (ledger.AppendResult, error) {
	p, st, err := s.session()
	if err != nil {
		return ledger.AppendResult{}, err
	}
	if err := e.Validate(); err != nil {
		return ledger.AppendResult{}, err
	}
	return s.append(ctx, p, st, e)
}

func (s *LedgerService) append(ctx context.Context, p core.Principal, st *ledger.Store, e core.Entry) (ledger.AppendResult, error) {
	res, err := st.Append(ctx, e)
	if err != nil {
		s.onStoreError(ctx, err)
	}
	if !res.Accepted {
		return res, err
	}

	s.logger.InfoContext(ctx, "Entry appended",
		log.Fields{}.
			Ledger(st.LedgerID(), p.ID).
			Entry(e.Description, e.Amount.Cents, e.Category, e.Subcategory).
			Op(log.OpAppend)...)

	pos := res.Position
	s.publish(ctx, s.entryEvent(amqp.EventEntryAppended, p, st, pos))
	s.checkBudget(ctx, p, st)
	return res, err
}

// UpdateEntry patches the entry at position. It returns false when there
// is no such entry.
func (s *LedgerService) UpdateEntry(ctx context.Context, position int, patch core.Patch) (bool, error) {
	p, st, err := s.session()
	if err != nil {
		return false, err
	}
	if patch.IsEmpty() {
		return false, &core.ValidationError{Index: -1, Field: "patch", Reason: "nothing to update"}
	}
	snap := st.Snapshot()
	if position < 0 || position >= len(snap) {
		return false, nil
	}
	if err := patch.Apply(snap[position]).Validate(); err != nil {
		return false, err
	}

	ok, err := st.Update(ctx, position, patch)
	if err != nil {
		s.onStoreError(ctx, err)
	}
	if !ok {
		return false, err
	}
	s.publish(ctx, s.entryEvent(amqp.EventEntryUpdated, p, st, position))
	s.checkBudget(ctx, p, st)
	return true, err
}

// RetryFailed re-issues failed remote writes.
func (s *LedgerService) RetryFailed(ctx context.Context) (int, error) {
	st, err := s.current()
	if err != nil {
		return 0, err
	}
	n, err := st.RetryFailed(ctx)
	if err != nil {
		s.onStoreError(ctx, err)
	}
	return n, err
}

// Stats computes the dashboard figures over the cached entries.
func (s *LedgerService) Stats(opts stats.Options) (stats.DerivedStats, error) {
	st, err := s.current()
	if err != nil {
		return stats.DerivedStats{}, err
	}
	return stats.Compute(st.Snapshot(), opts), nil
}

func (s *LedgerService) Budget(ctx context.Context) (BudgetView, error) {
	p, err := s.principal()
	if err != nil {
		return BudgetView{}, err
	}
	state, err := s.budget.State(ctx, p.ID)
	if err != nil {
		return BudgetView{}, err
	}
	return s.budgetView(state), nil
}

// SetBudget changes the ceiling, mirrors it to the ledger's Settings tab
// and re-evaluates the current spend against it.
func (s *LedgerService) SetBudget(ctx context.Context, ceiling core.Money) (BudgetView, error) {
	p, err := s.principal()
	if err != nil {
		return BudgetView{}, err
	}
	state, err := s.budget.SetCeiling(ctx, p.ID, ceiling)
	if err != nil {
		return BudgetView{}, err
	}
	if st, err := s.current(); err == nil {
		if err := s.mirror.Save(ctx, st.LedgerID(), ceiling); err != nil {
			s.observe(ctx, err)
			s.logger.WarnContext(ctx, "Failed to mirror budget to ledger", log.FieldError, err)
		}
		s.checkBudget(ctx, p, st)
		if state, err = s.budget.State(ctx, p.ID); err != nil {
			return BudgetView{}, err
		}
	}
	return s.budgetView(state), nil
}

// ResetBudget clears the recorded band.
func (s *LedgerService) ResetBudget(ctx context.Context) (BudgetView, error) {
	p, err := s.principal()
	if err != nil {
		return BudgetView{}, err
	}
	state, err := s.budget.Reset(ctx, p.ID)
	if err != nil {
		return BudgetView{}, err
	}
	return s.budgetView(state), nil
}

// Close waits for background event publishing to finish.
func (s *LedgerService) Close() {
	s.bg.Wait()
}

func (s *LedgerService) budgetView(state core.BudgetState) BudgetView {
	v := BudgetView{Ceiling: state.Ceiling, LastCrossedBand: state.LastCrossedBand, PeriodKey: state.PeriodKey}
	if st, err := s.current(); err == nil {
		v.Spent = stats.MonthExpense(st.Snapshot(), core.PeriodOf(s.now()))
	}
	if state.Ceiling.Cents > 0 {
		v.Percent = float64(v.Spent.Cents) * 100 / float64(state.Ceiling.Cents)
	}
	return v
}

// resolve runs the locator for p and attaches whatever it finds.
func (s *LedgerService) resolve(ctx context.Context, p core.Principal) error {
	res, err := s.locator.Resolve(ctx, p)
	if err != nil {
		s.observe(ctx, err)
		return fmt.Errorf("resolve ledger: %w", err)
	}
	return s.attach(ctx, p, res)
}

// attach swaps in a store for the resolved ledger and hydrates it. When
// the ledger is the one already attached, the store is kept so entries
// whose write is unconfirmed stay retryable. Unconfirmed entries of a
// replaced store are appended to the new ledger.
func (s *LedgerService) attach(ctx context.Context, p core.Principal, res locator.Resolution) error {
	l := res.Ledger()
	s.mu.Lock()
	old := s.store
	if res.NeedsLedger {
		s.store, s.active, s.needsLedger = nil, nil, true
		s.mu.Unlock()
		s.dropUnconfirmed(ctx, old)
		return nil
	}
	if old != nil && old.LedgerID() == res.LedgerID {
		s.active, s.needsLedger = &l, false
		s.mu.Unlock()
		return s.rehydrate(ctx, p, old)
	}
	st := ledger.New(s.gw, res.LedgerID, s.logger)
	s.store, s.active, s.needsLedger = st, &l, false
	s.mu.Unlock()

	var carried []core.Entry
	if old != nil {
		carried = old.Pending()
		old.Clear()
	}
	if _, err := st.Refresh(ctx); err != nil {
		s.observe(ctx, err)
		if len(carried) > 0 {
			s.logger.WarnContext(ctx, "Unconfirmed entries dropped",
				"dropped_pending", len(carried), log.FieldLedgerID, res.LedgerID, log.FieldError, err)
		}
		return fmt.Errorf("load ledger: %w", err)
	}
	s.carryOver(ctx, st, carried)
	s.syncBudget(ctx, p, res.LedgerID)
	return nil
}

// rehydrate reloads an attached store unless that would discard entries
// still waiting for their remote write.
func (s *LedgerService) rehydrate(ctx context.Context, p core.Principal, st *ledger.Store) error {
	if pending := st.Pending(); len(pending) > 0 {
		s.logger.InfoContext(ctx, "Keeping cached ledger with unconfirmed entries",
			log.FieldLedgerID, st.LedgerID(), "pending", len(pending))
	} else if _, err := st.Refresh(ctx); err != nil {
		s.observe(ctx, err)
		return fmt.Errorf("load ledger: %w", err)
	}
	s.syncBudget(ctx, p, st.LedgerID())
	return nil
}

// carryOver appends entries left unconfirmed by a replaced store. Each one
// keeps the status its new write ends with.
func (s *LedgerService) carryOver(ctx context.Context, st *ledger.Store, entries []core.Entry) {
	for _, e := range entries {
		res, err := st.Append(ctx, e)
		if err != nil {
			s.logger.WarnContext(ctx, "Carried entry not written",
				log.FieldLedgerID, st.LedgerID(), log.FieldDescription, e.Description, log.FieldError, err)
			continue
		}
		if !res.Accepted {
			s.logger.InfoContext(ctx, "Carried entry already in ledger",
				log.FieldLedgerID, st.LedgerID(), log.FieldDescription, e.Description)
		}
	}
	if len(entries) > 0 {
		s.logger.InfoContext(ctx, "Unconfirmed entries carried to new ledger",
			log.FieldLedgerID, st.LedgerID(), "carried", len(entries))
	}
}

func (s *LedgerService) dropUnconfirmed(ctx context.Context, st *ledger.Store) {
	if st == nil {
		return
	}
	if n := len(st.Pending()); n > 0 {
		s.logger.WarnContext(ctx, "Unconfirmed entries dropped, no ledger available",
			"dropped_pending", n)
	}
	st.Clear()
}

// syncBudget adopts the ceiling stored in the ledger's Settings tab when
// it differs from the local one. Failures only cost the sync.
func (s *LedgerService) syncBudget(ctx context.Context, p core.Principal, ledgerID string) {
	ceiling, ok, err := s.mirror.Load(ctx, ledgerID)
	if err != nil {
		s.logger.DebugContext(ctx, "No budget settings in ledger", log.FieldLedgerID, ledgerID, log.FieldError, err)
		return
	}
	if !ok {
		return
	}
	state, err := s.budget.State(ctx, p.ID)
	if err != nil || state.Ceiling == ceiling {
		return
	}
	if _, err := s.budget.SetCeiling(ctx, p.ID, ceiling); err != nil {
		s.logger.WarnContext(ctx, "Failed to adopt ledger budget", log.FieldError, err)
	}
}

// detach drops the ledger on logout.
func (s *LedgerService) detach(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil {
		s.store.Clear()
	}
	s.store, s.active, s.needsLedger = nil, nil, false
	s.logger.InfoContext(ctx, "Ledger detached")
}

func (s *LedgerService) checkBudget(ctx context.Context, p core.Principal, st *ledger.Store) {
	spent := stats.MonthExpense(st.Snapshot(), core.PeriodOf(s.now()))
	if _, err := s.budget.Check(ctx, p.ID, st.LedgerID(), spent); err != nil {
		s.logger.WarnContext(ctx, "Budget check failed", log.FieldPrincipalID, p.ID, log.FieldError, err)
	}
}

func (s *LedgerService) entryEvent(t amqp.EventType, p core.Principal, st *ledger.Store, pos int) *amqp.LedgerEvent {
	ev := amqp.NewLedgerEvent(t, p.ID, st.LedgerID())
	snap := st.Snapshot()
	if pos >= 0 && pos < len(snap) {
		e := snap[pos]
		ev.Position = &pos
		ev.Date = e.Date.String()
		ev.Description = e.Description
		ev.Category = e.Category
		ev.AmountCents = e.Amount.Cents
		ev.Status = string(e.Status)
	}
	return ev
}

// publish sends ev in the background. Events are informational and never
// fail the mutation that produced them.
func (s *LedgerService) publish(ctx context.Context, ev *amqp.LedgerEvent) {
	if s.events == nil {
		return
	}
	base := context.WithoutCancel(ctx)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		if err := s.events.Publish(base, ev); err != nil {
			s.logger.WarnContext(base, "Failed to publish ledger event",
				"event_type", ev.Type, log.FieldError, err)
		}
	}()
}

// onStoreError reacts to a failed store operation. An expired credential
// expires the session; a rejected ledger sends the locator down its
// fallback chain so the next call works against whatever it finds.
func (s *LedgerService) onStoreError(ctx context.Context, err error) {
	s.observe(ctx, err)
	if !errors.Is(err, core.ErrRemoteRejected) {
		return
	}
	p, ok := s.sessions.Principal()
	if !ok {
		return
	}
	s.logger.WarnContext(ctx, "Ledger rejected the request, locating again", log.FieldError, err)
	if rerr := s.resolve(ctx, p); rerr != nil {
		s.logger.WarnContext(ctx, "Ledger relocation failed", log.FieldError, rerr)
	}
}

func (s *LedgerService) observe(ctx context.Context, err error) {
	if errors.Is(err, core.ErrAuthExpired) {
		s.sessions.Expire(ctx)
	}
}

func (s *LedgerService) principal() (core.Principal, error) {
	p, ok := s.sessions.Principal()
	if !ok {
		return core.Principal{}, session.ErrNotAuthenticated
	}
	return p, nil
}

func (s *LedgerService) current() (*ledger.Store, error) {
	if _, err := s.principal(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.store == nil {
		return nil, ledger.ErrNoLedger
	}
	return s.store, nil
}

func (s *LedgerService) session() (core.Principal, *ledger.Store, error) {
	p, err := s.principal()
	if err != nil {
		return core.Principal{}, nil, err
	}
	st, err := s.current()
	if err != nil {
		return core.Principal{}, nil, err
	}
	return p, st, nil
}
