// Package notify delivers budget alerts. Delivery is best effort: a
// failing sink is logged and never reported back to the mutation that
// raised the alert.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"rupee/internal/amqp"
	"rupee/internal/core"
	"rupee/internal/log"
)

const DefaultTimeout = 10 * time.Second

type Alert struct {
	PrincipalID string
	LedgerID    string
	Band        int
	Spent       core.Money
	Ceiling     core.Money
	Text        string
}

// Sink delivers one alert.
type Sink interface {
	Send(ctx context.Context, a Alert) error
}

// Webhook posts {"text": ...} to a URL, the payload chat webhooks accept.
type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}}
}

func (w *Webhook) Send(ctx context.Context, a Alert) error {
	return PostText(ctx, w.client, w.url, a.Text)
}

// PostText sends text to a webhook URL.
func PostText(ctx context.Context, client *http.Client, url, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Publisher is the part of the AMQP client a sink needs.
type Publisher interface {
	Publish(ctx context.Context, ev *amqp.LedgerEvent) error
}

// AMQPSink publishes alerts as budget.alert events.
type AMQPSink struct {
	pub Publisher
}

func NewAMQPSink(pub Publisher) *AMQPSink {
	return &AMQPSink{pub: pub}
}

func (s *AMQPSink) Send(ctx context.Context, a Alert) error {
	ev := amqp.NewLedgerEvent(amqp.EventBudgetAlert, a.PrincipalID, a.LedgerID)
	ev.Band = a.Band
	ev.Message = a.Text
	ev.AmountCents = a.Spent.Cents
	return s.pub.Publish(ctx, ev)
}

// LogSink writes alerts to the log. It is the sink used when nothing else
// is configured.
type LogSink struct {
	logger *log.Logger
}

func NewLogSink(logger *log.Logger) *LogSink {
	return &LogSink{logger: logger.WithComponent(log.ComponentNotify)}
}

func (s *LogSink) Send(ctx context.Context, a Alert) error {
	s.logger.InfoContext(ctx, "Budget alert",
		log.FieldPrincipalID, a.PrincipalID,
		log.FieldBand, a.Band,
		log.FieldAmountCents, a.Spent.Cents,
		"message", a.Text)
	return nil
}

// Dispatcher fans an alert out to every sink in the background.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	logger  *log.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(logger *log.Logger, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{sinks: sinks, timeout: timeout, logger: logger.WithComponent(log.ComponentNotify)}
}

// Notify returns immediately. Each sink runs in its own goroutine with its
// own timeout, detached from ctx's cancellation.
func (d *Dispatcher) Notify(ctx context.Context, a Alert) {
	base := context.WithoutCancel(ctx)
	for _, s := range d.sinks {
		d.wg.Add(1)
		go func(s Sink) {
			defer d.wg.Done()
			sctx, cancel := context.WithTimeout(base, d.timeout)
			defer cancel()
			if err := s.Send(sctx, a); err != nil {
				d.logger.WarnContext(sctx, "Notification delivery failed",
					log.FieldPrincipalID, a.PrincipalID,
					log.FieldBand, a.Band,
					"sink", fmt.Sprintf("%T", s),
					log.FieldError, err,
					log.FieldOperation, log.OpNotify)
			}
		}(s)
	}
}

// Wait blocks until every dispatched delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
