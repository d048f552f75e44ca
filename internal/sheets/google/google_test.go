package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	"rupee/internal/core"
	ports "rupee/internal/sheets"
)

func newTestClient(t *testing.T, h http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := newClient(context.Background(), srv.Client(), timeout, endpoints{
		sheets: srv.URL + "/",
		drive:  srv.URL + "/drive/v3/",
	})
	if err != nil {
		t.Fatalf("newClient: %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func apiError(w http.ResponseWriter, code int) {
	writeJSON(w, code, map[string]any{"error": map[string]any{"code": code, "message": http.StatusText(code)}})
}

func TestReadRange(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v4/spreadsheets/sid/values/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeJSON(w, 200, map[string]any{
			"range":  "Sheet1!A2:H3",
			"values": [][]any{{"2026-10-01", "Tea", "Food", "", 20}, {"2026-10-02", " Bus "}},
		})
	}, time.Second)

	rows, err := c.ReadRange(context.Background(), "sid", ports.DataRange)
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if len(rows) != 2 || rows[0][4] != "20" || rows[1][1] != "Bus" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestAppendRowUsesUserEnteredInsert(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, ":append") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("valueInputOption"); got != "USER_ENTERED" {
			t.Errorf("valueInputOption = %q", got)
		}
		if got := r.URL.Query().Get("insertDataOption"); got != "INSERT_ROWS" {
			t.Errorf("insertDataOption = %q", got)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		writeJSON(w, 200, map[string]any{"spreadsheetId": "sid"})
	}, time.Second)

	if err := c.AppendRow(context.Background(), "sid", ports.AppendRange, []string{"2026-10-01", "Tea"}); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
	values, _ := body["values"].([]any)
	if len(values) != 1 {
		t.Fatalf("expected one row in body, got %v", body)
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, core.ErrAuthExpired},
		{http.StatusForbidden, core.ErrRemoteRejected},
		{http.StatusNotFound, core.ErrRemoteRejected},
		{http.StatusBadRequest, core.ErrRemoteRejected},
		{http.StatusTooManyRequests, core.ErrRemoteUnavailable},
		{http.StatusInternalServerError, core.ErrRemoteUnavailable},
		{http.StatusServiceUnavailable, core.ErrRemoteUnavailable},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				apiError(w, tt.status)
			}, time.Second)
			err := c.WriteRange(context.Background(), "sid", ports.RowRange(0), [][]string{{"x"}})
			if !errors.Is(err, tt.want) {
				t.Fatalf("status %d: got %v, want %v", tt.status, err, tt.want)
			}
			var gerr *googleapi.Error
			if !errors.As(err, &gerr) {
				t.Fatalf("underlying googleapi error should stay reachable")
			}
		})
	}
}

func TestTimeoutIsUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}, 20*time.Millisecond)

	_, err := c.ReadRange(context.Background(), "sid", ports.DataRange)
	if !errors.Is(err, core.ErrRemoteUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestExists(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/drive/v3/files/live":
			writeJSON(w, 200, map[string]any{"id": "live"})
		case "/drive/v3/files/trashed":
			writeJSON(w, 200, map[string]any{"id": "trashed", "trashed": true})
		case "/drive/v3/files/gone":
			apiError(w, http.StatusNotFound)
		case "/drive/v3/files/private":
			apiError(w, http.StatusForbidden)
		default:
			apiError(w, http.StatusBadGateway)
		}
	}, time.Second)
	ctx := context.Background()

	for id, want := range map[string]bool{"live": true, "trashed": false, "gone": false, "private": false} {
		got, err := c.Exists(ctx, id)
		if err != nil || got != want {
			t.Errorf("Exists(%q) = %v, %v; want %v", id, got, err, want)
		}
	}
	if _, err := c.Exists(ctx, "flaky"); !errors.Is(err, core.ErrRemoteUnavailable) {
		t.Fatalf("expected unavailable for 502, got %v", err)
	}
}

func TestListCandidates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if !strings.Contains(q, "name contains 'Track your Rupee - o\\'brien@x.io'") {
			t.Errorf("unexpected query %q", q)
		}
		if !strings.Contains(q, "trashed=false") || !strings.Contains(q, spreadsheetMime) {
			t.Errorf("query missing filters: %q", q)
		}
		if got := r.URL.Query().Get("orderBy"); got != "modifiedTime desc" {
			t.Errorf("orderBy = %q", got)
		}
		writeJSON(w, 200, map[string]any{"files": []map[string]any{
			{"id": "a", "name": "Track your Rupee - o'brien@x.io", "modifiedTime": "2026-10-01T10:00:00.000Z"},
		}})
	}, time.Second)

	cands, err := c.ListCandidates(context.Background(), "Track your Rupee - o'brien@x.io")
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(cands) != 1 || cands[0].ID != "a" {
		t.Fatalf("unexpected candidates %+v", cands)
	}
	if cands[0].LastModified.IsZero() {
		t.Fatalf("modified time not parsed")
	}
}
