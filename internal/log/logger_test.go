package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerAddsComponentOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Component: ComponentApp, Output: &buf})
	logger.WithComponent(ComponentLedger).With(FieldLedgerID, "sheet-1").Info("hello")

	out := buf.String()
	if !strings.Contains(out, "component=ledger") || !strings.Contains(out, "ledger_id=sheet-1") {
		t.Fatalf("unexpected output %q", out)
	}
	if strings.Count(out, "component=") != 1 {
		t.Fatalf("component repeated in %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Format: "JSON", Output: &buf, Component: ComponentBudget}).Warn("band crossed", FieldBand, 50)
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"band":50`) {
		t.Fatalf("expected json record, got %q", buf.String())
	}
}

func TestFromContextFallsBack(t *testing.T) {
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatalf("expected fallback logger")
	}
	logger := New(Config{Component: ComponentHTTP, Output: &bytes.Buffer{}})
	if FromContext(NewContext(context.Background(), logger)) != logger {
		t.Fatalf("expected logger from context")
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Component: ComponentHTTP, Output: &buf})
	h := Middleware(logger)(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).Info("inside")
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), "request_id=req-1") {
		t.Fatalf("request id missing from %q", buf.String())
	}
}

func TestFields(t *testing.T) {
	f := Fields{}.Ledger("sheet-1", "").Entry("Tea", 2000, "Food", "Tea").Err(nil).Op(OpAppend)
	if len(f) != 2*6 {
		t.Fatalf("got %d values, want 12: %v", len(f), f)
	}
	if f[0] != FieldLedgerID || f[len(f)-1] != OpAppend {
		t.Fatalf("fields out of order: %v", f)
	}
	got := Fields{}.Err(errors.New("boom"))
	if got[1] != "boom" {
		t.Fatalf("Err() = %v", got)
	}
}
