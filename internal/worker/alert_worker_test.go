package worker

import (
	"context"
	"errors"
	"testing"

	"rupee/internal/amqp"
	"rupee/internal/log"
	"rupee/internal/notify"
)

type sinkFunc func(context.Context, notify.Alert) error

func (f sinkFunc) Send(ctx context.Context, a notify.Alert) error { return f(ctx, a) }

func TestHandleEvent(t *testing.T) {
	var got []notify.Alert
	var fail error
	w := NewAlertWorker(sinkFunc(func(_ context.Context, a notify.Alert) error {
		if fail != nil {
			return fail
		}
		got = append(got, a)
		return nil
	}), log.New(log.DefaultConfig()))
	ctx := context.Background()

	alert := amqp.NewLedgerEvent(amqp.EventBudgetAlert, "alice", "sheet")
	alert.Band = 75
	alert.Message = "75% used"

	tests := []struct {
		name    string
		ev      *amqp.LedgerEvent
		fail    error
		wantErr bool
		wantLen int
	}{
		{"entry events are ignored", amqp.NewLedgerEvent(amqp.EventEntryAppended, "alice", "sheet"), nil, false, 0},
		{"empty alert is dropped", amqp.NewLedgerEvent(amqp.EventBudgetAlert, "alice", "sheet"), nil, false, 0},
		{"alert is forwarded", alert, nil, false, 1},
		{"sink failure requeues", alert, errors.New("webhook down"), true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fail = tt.fail
			err := w.HandleEvent(ctx, tt.ev)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HandleEvent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.wantLen {
				t.Errorf("forwarded %d alerts, want %d", len(got), tt.wantLen)
			}
		})
	}
	if got[0].Band != 75 || got[0].Text != "75% used" {
		t.Errorf("unexpected alert %+v", got[0])
	}
}
