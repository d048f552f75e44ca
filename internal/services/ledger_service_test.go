package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rupee/internal/amqp"
	"rupee/internal/budget"
	"rupee/internal/core"
	"rupee/internal/extractor"
	"rupee/internal/ledger"
	"rupee/internal/locator"
	"rupee/internal/log"
	"rupee/internal/notify"
	"rupee/internal/session"
	"rupee/internal/sheets"
	"rupee/internal/sheets/memory"
	"rupee/internal/storage"
	"rupee/internal/stats"
)

var alice = core.Principal{ID: "alice", DisplayName: "Alice", Email: "alice@example.com"}

type recordedEvents struct {
	mu     sync.Mutex
	events []*amqp.LedgerEvent
}

func (r *recordedEvents) Publish(_ context.Context, ev *amqp.LedgerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordedEvents) types() []amqp.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []amqp.EventType
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type recordedAlerts struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (r *recordedAlerts) Notify(_ context.Context, a notify.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recordedAlerts) bands() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, a := range r.alerts {
		out = append(out, a.Band)
	}
	return out
}

type fakeExtractor struct {
	parsed extractor.Parsed
	err    error
}

func (f *fakeExtractor) AnalyzeImage(context.Context, string, string, string, []byte) (extractor.Parsed, error) {
	return f.parsed, f.err
}

func (f *fakeExtractor) AnalyzeTranscript(context.Context, string, string) (extractor.Parsed, error) {
	return f.parsed, f.err
}

func (f *fakeExtractor) ParseText(text string) (extractor.Parsed, error) {
	return extractor.Parse(text, core.NewDate(2026, 10, 18))
}

type harness struct {
	svc    *LedgerService
	gw     *memory.Store
	repo   *storage.SQLiteRepository
	events *recordedEvents
	alerts *recordedAlerts
	ext    *fakeExtractor
}

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, gw *memory.Store, repo *storage.SQLiteRepository) *harness {
	t.Helper()
	if gw == nil {
		gw = memory.New()
	}
	if repo == nil {
		var err error
		repo, err = storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "state.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = repo.Close() })
	}
	logger := log.New(log.DefaultConfig())
	h := &harness{gw: gw, repo: repo, events: &recordedEvents{}, alerts: &recordedAlerts{}, ext: &fakeExtractor{}}
	sessions := session.NewManager(session.StaticAuthenticator{Principal: alice}, repo, logger)
	h.svc = NewLedgerService(Deps{
		Sessions:  sessions,
		Locator:   locator.New(gw, repo, "", logger),
		Gateway:   gw,
		Budget:    budget.NewMonitor(repo, h.alerts, budget.ManualReset{}, core.Money{Cents: 1000 * 100}, logger),
		Events:    h.events,
		Extractor: h.ext,
		Logger:    logger,
	})
	h.svc.now = func() time.Time { return now }
	t.Cleanup(h.svc.Close)
	return h
}

func expense(day int, desc string, rupees int64, category string) core.Entry {
	return core.Entry{Date: core.NewDate(2026, 10, day), Description: desc, Amount: core.Money{Cents: rupees * 100}, Category: category}
}

func TestRequiresAuthentication(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	require.NoError(t, h.svc.Start(ctx))
	assert.Equal(t, session.StateUnauthenticated, h.svc.Overview().State)

	_, err := h.svc.Entries()
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
	_, err = h.svc.AddEntry(ctx, expense(1, "Tea", 10, "Food"))
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
	_, err = h.svc.CreateLedger(ctx)
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
}

func TestLoginCreateAppendAndStats(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	ov, err := h.svc.Login(ctx)
	require.NoError(t, err)
	assert.True(t, ov.NeedsLedger)
	_, err = h.svc.Entries()
	assert.ErrorIs(t, err, ledger.ErrNoLedger)

	res, err := h.svc.CreateLedger(ctx)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "Track your Rupee - alice@example.com", res.Title)

	_, err = h.svc.CreateLedger(ctx)
	assert.ErrorIs(t, err, locator.ErrLedgerExists)

	for _, e := range []core.Entry{
		expense(1, "Groceries", 100, "Food"),
		expense(2, "Snacks", 50, "Food"),
		expense(3, "Salary", 500, core.IncomeCategory),
	} {
		r, err := h.svc.AddEntry(ctx, e)
		require.NoError(t, err)
		assert.True(t, r.Accepted)
	}

	dup, err := h.svc.AddEntry(ctx, expense(1, " groceries ", 102, "Food"))
	require.NoError(t, err)
	assert.False(t, dup.Accepted)
	assert.Equal(t, core.ReasonDuplicate, dup.Reason)

	_, err = h.svc.AddEntry(ctx, expense(1, "", 10, "Food"))
	assert.True(t, core.IsValidation(err))

	st, err := h.svc.Stats(stats.Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(50000), st.TotalIncome.Cents)
	assert.Equal(t, int64(15000), st.TotalExpense.Cents)
	assert.Equal(t, int64(35000), st.Balance.Cents)

	rows := h.gw.Rows(res.LedgerID)
	assert.Len(t, rows, 4)
	assert.Equal(t, sheets.Header, rows[0])

	h.svc.Close()
	assert.Equal(t, []amqp.EventType{amqp.EventEntryAppended, amqp.EventEntryAppended, amqp.EventEntryAppended}, h.events.types())
}

func TestBudgetAlertsFireOncePerBand(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	_, err := h.svc.Login(ctx)
	require.NoError(t, err)
	_, err = h.svc.CreateLedger(ctx)
	require.NoError(t, err)

	for _, e := range []core.Entry{
		expense(1, "Rent share", 260, "Bills & Utilities"),
		expense(2, "Salary", 5000, core.IncomeCategory),
		expense(3, "Shoes", 250, "Shopping"),
		expense(4, "Phone", 450, "Shopping"),
	} {
		_, err := h.svc.AddEntry(ctx, e)
		require.NoError(t, err)
	}
	assert.Equal(t, []int{25, 50, 90}, h.alerts.bands())

	view, err := h.svc.Budget(ctx)
	require.NoError(t, err)
	assert.Equal(t, 90, view.LastCrossedBand)
	assert.Equal(t, int64(96000), view.Spent.Cents)
	assert.InDelta(t, 96.0, view.Percent, 0.001)

	// Editing an entry upward crosses the last band.
	amount := core.Money{Cents: 500 * 100}
	ok, err := h.svc.UpdateEntry(ctx, 3, core.Patch{Amount: &amount})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int{25, 50, 90, 100}, h.alerts.bands())

	view, err = h.svc.ResetBudget(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, view.LastCrossedBand)
}

func TestSetBudgetMirrorsToLedgerAndReevaluates(t *testing.T) {
	gw := memory.New()
	h := newHarness(t, gw, nil)
	ctx := context.Background()
	_, err := h.svc.Login(ctx)
	require.NoError(t, err)
	res, err := h.svc.CreateLedger(ctx)
	require.NoError(t, err)

	_, err = h.svc.AddEntry(ctx, expense(5, "Train", 300, "Transportation"))
	require.NoError(t, err)
	assert.Equal(t, []int{25}, h.alerts.bands())

	view, err := h.svc.SetBudget(ctx, core.Money{Cents: 400 * 100})
	require.NoError(t, err)
	assert.Equal(t, 75, view.LastCrossedBand)
	assert.Equal(t, []int{25, 75}, h.alerts.bands())

	ceiling, ok, err := budget.NewMirror(gw).Load(ctx, res.LedgerID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(40000), ceiling.Cents)

	_, err = h.svc.SetBudget(ctx, core.Money{Cents: -1})
	assert.True(t, core.IsValidation(err))
}

func TestLedgerBudgetAdoptedOnAttach(t *testing.T) {
	gw := memory.New()
	id := gw.Seed("Track your Rupee - alice@example.com", now, nil)
	require.NoError(t, budget.NewMirror(gw).Save(context.Background(), id, core.Money{Cents: 2500 * 100}))

	h := newHarness(t, gw, nil)
	_, err := h.svc.Login(context.Background())
	require.NoError(t, err)

	view, err := h.svc.Budget(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(250000), view.Ceiling.Cents)
}

func TestLogoutDetachesAndRestoreReattaches(t *testing.T) {
	gw := memory.New()
	h := newHarness(t, gw, nil)
	ctx := context.Background()
	_, err := h.svc.Login(ctx)
	require.NoError(t, err)
	_, err = h.svc.CreateLedger(ctx)
	require.NoError(t, err)
	_, err = h.svc.AddEntry(ctx, expense(1, "Coffee", 80, "Food"))
	require.NoError(t, err)

	require.NoError(t, h.svc.Logout(ctx))
	ov := h.svc.Overview()
	assert.Nil(t, ov.Ledger)
	assert.Nil(t, ov.Principal)
	_, err = h.svc.Entries()
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)

	_, err = h.svc.Login(ctx)
	require.NoError(t, err)
	entries, err := h.svc.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Coffee", entries[0].Description)

	// A second process restores the stored session and the remembered
	// ledger without listing candidates.
	before := gw.Calls("ListCandidates")
	other := newHarness(t, gw, h.repo)
	require.NoError(t, other.svc.Start(ctx))
	assert.Equal(t, session.StateAuthenticated, other.svc.Overview().State)
	entries, err = other.svc.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, before, gw.Calls("ListCandidates"))
}

func TestFailedWriteAndRetry(t *testing.T) {
	gw := memory.New()
	h := newHarness(t, gw, nil)
	ctx := context.Background()
	_, err := h.svc.Login(ctx)
	require.NoError(t, err)
	_, err = h.svc.CreateLedger(ctx)
	require.NoError(t, err)

	gw.FailNext("AppendRow", core.Unavailable("sheets.append", errors.New("timeout")))
	res, err := h.svc.AddEntry(ctx, expense(2, "Auto", 60, "Transportation"))
	assert.ErrorIs(t, err, core.ErrRemoteUnavailable)
	assert.True(t, res.Accepted)
	assert.Equal(t, core.StatusFailed, res.Status)
	assert.Equal(t, 1, h.svc.Overview().Pending)

	n, err := h.svc.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, h.svc.Overview().Pending)
}

func TestAuthExpiredExpiresSession(t *testing.T) {
	gw := memory.New()
	h := newHarness(t, gw, nil)
	ctx := context.Background()
	_, err := h.svc.Login(ctx)
	require.NoError(t, err)
	_, err = h.svc.CreateLedger(ctx)
	require.NoError(t, err)

	gw.FailNext("AppendRow", core.AuthExpired("sheets.append", errors.New("401")))
	_, err = h.svc.AddEntry(ctx, expense(2, "Auto", 60, "Transportation"))
	assert.ErrorIs(t, err, core.ErrAuthExpired)
	assert.Equal(t, session.StateExpired, h.svc.Overview().State)
}

func TestRejectedLedgerTriggersRelocation(t *testing.T) {
	gw := memory.New()
	h := newHarness(t, gw, nil)
	ctx := context.Background()
	_, err := h.svc.Login(ctx)
	require.NoError(t, err)
	res, err := h.svc.CreateLedger(ctx)
	require.NoError(t, err)

	gw.Delete(res.LedgerID)
	_, err = h.svc.AddEntry(ctx, expense(2, "Auto", 60, "Transportation"))
	assert.ErrorIs(t, err, core.ErrRemoteRejected)

	ov := h.svc.Overview()
	assert.True(t, ov.NeedsLedger)
	assert.Nil(t, ov.Ledger)
}

func TestRejectedWriteOnLiveLedgerKeepsEntry(t *testing.T) {
	gw := memory.New()
	h := newHarness(t, gw, nil)
	ctx := context.Background()
	_, err := h.svc.Login(ctx)
	require.NoError(t, err)
	created, err := h.svc.CreateLedger(ctx)
	require.NoError(t, err)

	gw.FailNext("AppendRow", core.Rejected("sheets.append", errors.New("403 permission")))
	res, err := h.svc.AddEntry(ctx, expense(2, "Auto", 60, "Transportation"))
	assert.ErrorIs(t, err, core.ErrRemoteRejected)
	assert.True(t, res.Accepted)
	assert.Equal(t, core.StatusFailed, res.Status)

	entries, err := h.svc.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Auto", entries[0].Description)
	assert.Equal(t, core.StatusFailed, entries[0].Status)
	require.NotNil(t, h.svc.Overview().Ledger)
	assert.Equal(t, created.LedgerID, h.svc.Overview().Ledger.ID)

	n, err := h.svc.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	rows := gw.Rows(created.LedgerID)
	require.Len(t, rows, 2)
	assert.Equal(t, "Auto", rows[1][1])
}

func TestRelocationCarriesUnconfirmedEntries(t *testing.T) {
	gw := memory.New()
	h := newHarness(t, gw, nil)
	ctx := context.Background()
	_, err := h.svc.Login(ctx)
	require.NoError(t, err)
	created, err := h.svc.CreateLedger(ctx)
	require.NoError(t, err)
	other := gw.Seed(locator.DefaultAppName+" - "+alice.Email+" (restored)", now, nil)

	gw.Delete(created.LedgerID)
	res, err := h.svc.AddEntry(ctx, expense(2, "Auto", 60, "Transportation"))
	assert.ErrorIs(t, err, core.ErrRemoteRejected)
	assert.True(t, res.Accepted)

	require.NotNil(t, h.svc.Overview().Ledger)
	assert.Equal(t, other, h.svc.Overview().Ledger.ID)
	entries, err := h.svc.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, core.StatusConfirmed, entries[0].Status)
	rows := gw.Rows(other)
	require.Len(t, rows, 2)
	assert.Equal(t, "Auto", rows[1][1])
}

func TestExtractPreviewAndAppend(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	_, err := h.svc.Login(ctx)
	require.NoError(t, err)
	_, err = h.svc.CreateLedger(ctx)
	require.NoError(t, err)
	_, err = h.svc.AddEntry(ctx, expense(18, "Dosa", 80, "Food"))
	require.NoError(t, err)

	parsed, err := extractor.Parse(`[{"item":"Dosa","amount":80,"date":"2026-10-18"},{"item":"Filter coffee","amount":30,"date":"2026-10-18"},{"item":"","amount":5}]`, core.NewDate(2026, 10, 18))
	require.NoError(t, err)
	h.ext.parsed = parsed

	report, err := h.svc.Extract(ctx, ExtractSource{Image: []byte("img")}, true)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)
	assert.True(t, report.Outcomes[0].Duplicate)
	assert.False(t, report.Outcomes[1].Duplicate)
	assert.Nil(t, report.Outcomes[1].Result)
	require.Len(t, report.Rejected, 1)
	assert.Equal(t, 2, report.Rejected[0].Index)

	entries, _ := h.svc.Entries()
	assert.Len(t, entries, 1)

	report, err = h.svc.Extract(ctx, ExtractSource{Transcript: "dosa and coffee"}, false)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)
	assert.True(t, report.Outcomes[0].Duplicate)
	require.NotNil(t, report.Outcomes[1].Result)
	assert.True(t, report.Outcomes[1].Result.Accepted)

	entries, _ = h.svc.Entries()
	assert.Len(t, entries, 2)
}

func TestExtractErrorsLeaveStoreUntouched(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	_, err := h.svc.Login(ctx)
	require.NoError(t, err)
	_, err = h.svc.CreateLedger(ctx)
	require.NoError(t, err)

	h.ext.err = extractor.ErrUnclearInput
	_, err = h.svc.Extract(ctx, ExtractSource{Transcript: "mumble"}, false)
	assert.ErrorIs(t, err, extractor.ErrUnclearInput)

	h.ext.err = nil
	h.ext.parsed = extractor.Parsed{Candidates: []extractor.Candidate{{Description: "Tea", Amount: core.Money{Cents: 1000}, Date: core.NewDate(2026, 10, 18)}}}
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = h.svc.Extract(cctx, ExtractSource{Transcript: "tea"}, false)
	assert.ErrorIs(t, err, context.Canceled)

	entries, _ := h.svc.Entries()
	assert.Empty(t, entries)
}

func TestExtractPastedText(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	_, err := h.svc.Login(ctx)
	require.NoError(t, err)
	_, err = h.svc.CreateLedger(ctx)
	require.NoError(t, err)

	report, err := h.svc.Extract(ctx, ExtractSource{Text: `[{"item":"Lunch","amount":150,"category":"Food"}]`}, false)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, core.StatusConfirmed, report.Outcomes[0].Result.Status)
}
