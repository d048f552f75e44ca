package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType doubles as the routing key on the direct exchange.
type EventType string

const (
	EventEntryAppended EventType = "entry.appended"
	EventEntryUpdated  EventType = "entry.updated"
	EventBudgetAlert   EventType = "budget.alert"
)

// LedgerEvent is published after a ledger mutation or a budget alert.
// Entry fields are set for entry events, Band and Message for alerts.
type LedgerEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	PrincipalID string    `json:"principal_id"`
	LedgerID    string    `json:"ledger_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`

	Position    *int   `json:"position,omitempty"`
	Date        string `json:"date,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
	Status      string `json:"status,omitempty"`

	Band    int    `json:"band,omitempty"`
	Message string `json:"message,omitempty"`
}

// NewLedgerEvent creates an event with a fresh id and the current time.
func NewLedgerEvent(t EventType, principalID, ledgerID string) *LedgerEvent {
	return &LedgerEvent{
		ID:          uuid.NewString(),
		Type:        t,
		PrincipalID: principalID,
		LedgerID:    ledgerID,
		Timestamp:   time.Now(),
	}
}

func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
