package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rupee/internal/core"
	"rupee/internal/log"
	"rupee/internal/notify"
)

type (
	// StateStore persists budget state per principal. BudgetState returns
	// nil when nothing is stored yet.
	StateStore interface {
		SaveBudgetState(ctx context.Context, principalID string, s core.BudgetState) error
		BudgetState(ctx context.Context, principalID string) (*core.BudgetState, error)
	}

	Notifier interface {
		Notify(ctx context.Context, a notify.Alert)
	}
)

// Monitor runs Evaluate against persisted state and dispatches alerts.
type Monitor struct {
	store          StateStore
	notifier       Notifier
	policy         ResetPolicy
	defaultCeiling core.Money
	logger         *log.Logger
	now            func() time.Time

	mu sync.Mutex
}

func NewMonitor(store StateStore, notifier Notifier, policy ResetPolicy, defaultCeiling core.Money, logger *log.Logger) *Monitor {
	if policy == nil {
		policy = ManualReset{}
	}
	return &Monitor{
		store:          store,
		notifier:       notifier,
		policy:         policy,
		defaultCeiling: defaultCeiling,
		logger:         logger.WithComponent(log.ComponentBudget),
		now:            time.Now,
	}
}

// State returns the principal's budget state with the reset policy
// applied. A principal without stored state gets the default ceiling.
func (m *Monitor) State(ctx context.Context, principalID string) (core.BudgetState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(ctx, principalID)
}

func (m *Monitor) load(ctx context.Context, principalID string) (core.BudgetState, error) {
	stored, err := m.store.BudgetState(ctx, principalID)
	if err != nil {
		return core.BudgetState{}, fmt.Errorf("load budget state: %w", err)
	}
	now := m.now()
	if stored == nil {
		return core.BudgetState{
			Ceiling:   m.defaultCeiling,
			PeriodKey: core.PeriodOf(now).Key(),
		}, nil
	}
	s := *stored
	if m.policy.ShouldReset(s, now) {
		m.logger.InfoContext(ctx, "Budget period rolled over",
			log.FieldPrincipalID, principalID,
			log.FieldBand, s.LastCrossedBand,
			"period", s.PeriodKey)
		s.LastCrossedBand = 0
		s.PeriodKey = core.PeriodOf(now).Key()
	}
	if s.PeriodKey == "" {
		s.PeriodKey = core.PeriodOf(now).Key()
	}
	return s, nil
}

// Check evaluates spent for the principal. When a new band fires, the band
// is persisted before the alert is dispatched, so a crash between the two
// loses the alert rather than repeating it.
func (m *Monitor) Check(ctx context.Context, principalID, ledgerID string, spent core.Money) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.load(ctx, principalID)
	if err != nil {
		return Result{}, err
	}
	res := Evaluate(spent, state)
	if !res.Fired() {
		return res, nil
	}

	state.LastCrossedBand = res.NewBand
	if err := m.store.SaveBudgetState(ctx, principalID, state); err != nil {
		return Result{}, fmt.Errorf("save budget state: %w", err)
	}

	m.logger.InfoContext(ctx, "Budget band crossed",
		log.FieldPrincipalID, principalID,
		log.FieldBand, res.NewBand,
		log.FieldAmountCents, spent.Cents)

	if m.notifier != nil {
		m.notifier.Notify(ctx, notify.Alert{
			PrincipalID: principalID,
			LedgerID:    ledgerID,
			Band:        res.NewBand,
			Spent:       spent,
			Ceiling:     state.Ceiling,
			Text:        *res.Notification,
		})
	}
	return res, nil
}

// SetCeiling changes the ceiling and keeps the recorded band.
func (m *Monitor) SetCeiling(ctx context.Context, principalID string, ceiling core.Money) (core.BudgetState, error) {
	if ceiling.Cents < 0 {
		return core.BudgetState{}, &core.ValidationError{Index: -1, Field: "ceiling", Reason: "must not be negative"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.load(ctx, principalID)
	if err != nil {
		return core.BudgetState{}, err
	}
	state.Ceiling = ceiling
	if err := m.store.SaveBudgetState(ctx, principalID, state); err != nil {
		return core.BudgetState{}, fmt.Errorf("save budget state: %w", err)
	}
	return state, nil
}

// Reset clears the recorded band so every band can fire again.
func (m *Monitor) Reset(ctx context.Context, principalID string) (core.BudgetState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.load(ctx, principalID)
	if err != nil {
		return core.BudgetState{}, err
	}
	state.LastCrossedBand = 0
	state.PeriodKey = core.PeriodOf(m.now()).Key()
	if err := m.store.SaveBudgetState(ctx, principalID, state); err != nil {
		return core.BudgetState{}, fmt.Errorf("save budget state: %w", err)
	}
	m.logger.InfoContext(ctx, "Budget alerts reset", log.FieldPrincipalID, principalID)
	return state, nil
}
