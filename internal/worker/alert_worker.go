package worker

import (
	"context"

	"rupee/internal/amqp"
	"rupee/internal/core"
	"rupee/internal/log"
	"rupee/internal/notify"
)

// AlertWorker forwards budget alerts read from the event bus to a sink.
type AlertWorker struct {
	sink   notify.Sink
	logger *log.Logger
}

func NewAlertWorker(sink notify.Sink, logger *log.Logger) *AlertWorker {
	return &AlertWorker{sink: sink, logger: logger.WithComponent(log.ComponentWorker)}
}

// HandleEvent is an amqp consumer handler. Events other than budget
// alerts are acknowledged and ignored. A delivery failure is returned so
// the message is requeued.
func (w *AlertWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	if ev.Type != amqp.EventBudgetAlert {
		w.logger.DebugContext(ctx, "Ignoring event", "event_type", ev.Type, "id", ev.ID)
		return nil
	}
	if ev.Message == "" {
		w.logger.WarnContext(ctx, "Dropping alert without message", "id", ev.ID)
		return nil
	}

	alert := notify.Alert{
		PrincipalID: ev.PrincipalID,
		LedgerID:    ev.LedgerID,
		Band:        ev.Band,
		Spent:       core.Money{Cents: ev.AmountCents},
		Text:        ev.Message,
	}
	if err := w.sink.Send(ctx, alert); err != nil {
		w.logger.ErrorContext(ctx, "Failed to forward budget alert",
			"id", ev.ID, log.FieldPrincipalID, ev.PrincipalID, log.FieldError, err)
		return err
	}
	w.logger.InfoContext(ctx, "Budget alert forwarded",
		"id", ev.ID, log.FieldPrincipalID, ev.PrincipalID, log.FieldBand, ev.Band)
	return nil
}
