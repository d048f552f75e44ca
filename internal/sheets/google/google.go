package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"rupee/internal/core"
	ports "rupee/internal/sheets"
)

const (
	DefaultTimeout = 30 * time.Second

	spreadsheetMime = "application/vnd.google-apps.spreadsheet"
	valueInput      = "USER_ENTERED"
)

// Client talks to Sheets for cell data and to Drive for discovery. Every
// call runs under its own timeout; a timeout is reported as unavailable.
type Client struct {
	sheets  *gsheet.Service
	drive   *gdrive.Service
	timeout time.Duration
}

// Ensure interface conformance
var (
	_ ports.Gateway  = (*Client)(nil)
	_ ports.TabAdder = (*Client)(nil)
)

// New creates a client that authorizes every request with ts.
func New(ctx context.Context, ts oauth2.TokenSource, timeout time.Duration) (*Client, error) {
	pooled := newHTTPClientWithPooling()
	hc := &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: pooled.Transport},
		Timeout:   pooled.Timeout,
	}
	return newClient(ctx, hc, timeout, endpoints{})
}

// endpoints overrides the API base URLs; empty fields keep the defaults.
type endpoints struct {
	sheets string
	drive  string
}

func newClient(ctx context.Context, hc *http.Client, timeout time.Duration, ep endpoints) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	sheetsOpts := []goption.ClientOption{goption.WithHTTPClient(hc)}
	if ep.sheets != "" {
		sheetsOpts = append(sheetsOpts, goption.WithEndpoint(ep.sheets))
	}
	driveOpts := []goption.ClientOption{goption.WithHTTPClient(hc)}
	if ep.drive != "" {
		driveOpts = append(driveOpts, goption.WithEndpoint(ep.drive))
	}

	svc, err := gsheet.NewService(ctx, sheetsOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	drv, err := gdrive.NewService(ctx, driveOpts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	slog.DebugContext(ctx, "Google Sheets and Drive services created", "timeout", timeout)
	return &Client{sheets: svc, drive: drv, timeout: timeout}, nil
}

// newHTTPClientWithPooling creates an HTTP client optimized for Google APIs
// with connection pooling, proper timeouts, and keep-alive settings
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext: dialer.DialContext,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		ForceAttemptHTTP2: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

func (c *Client) ReadRange(ctx context.Context, ledgerID, rng string) ([][]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.sheets.Spreadsheets.Values.Get(ledgerID, rng).Context(ctx).Do()
	if err != nil {
		return nil, classify(ctx, "sheets.read", err)
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		out[i] = toStrings(row)
	}
	return out, nil
}

func (c *Client) AppendRow(ctx context.Context, ledgerID, rng string, row []string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	vr := &gsheet.ValueRange{Values: [][]any{toAny(row)}}
	_, err := c.sheets.Spreadsheets.Values.Append(ledgerID, rng, vr).
		ValueInputOption(valueInput).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return classify(ctx, "sheets.append", err)
	}
	return nil
}

func (c *Client) WriteRange(ctx context.Context, ledgerID, rng string, rows [][]string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = toAny(r)
	}
	_, err := c.sheets.Spreadsheets.Values.Update(ledgerID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption(valueInput).
		Context(ctx).Do()
	if err != nil {
		return classify(ctx, "sheets.write", err)
	}
	return nil
}

func (c *Client) CreateLedger(ctx context.Context, title string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ss := &gsheet.Spreadsheet{Properties: &gsheet.SpreadsheetProperties{Title: title}}
	created, err := c.sheets.Spreadsheets.Create(ss).Context(ctx).Do()
	if err != nil {
		return "", classify(ctx, "sheets.create", err)
	}
	slog.InfoContext(ctx, "Created ledger spreadsheet", "ledger_id", created.SpreadsheetId, "title", title)
	return created.SpreadsheetId, nil
}

func (c *Client) Exists(ctx context.Context, ledgerID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	f, err := c.drive.Files.Get(ledgerID).Fields("id", "trashed").Context(ctx).Do()
	if err != nil {
		err = classify(ctx, "drive.get", err)
		if errors.Is(err, core.ErrRemoteRejected) {
			return false, nil
		}
		return false, err
	}
	return !f.Trashed, nil
}

func (c *Client) ListCandidates(ctx context.Context, namePattern string) ([]ports.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := fmt.Sprintf("mimeType='%s' and name contains '%s' and trashed=false",
		spreadsheetMime, escapeQuery(namePattern))
	list, err := c.drive.Files.List().
		Q(q).
		OrderBy("modifiedTime desc").
		PageSize(20).
		Fields("files(id, name, modifiedTime)").
		Context(ctx).Do()
	if err != nil {
		return nil, classify(ctx, "drive.list", err)
	}
	out := make([]ports.Candidate, 0, len(list.Files))
	for _, f := range list.Files {
		modified, _ := time.Parse(time.RFC3339, f.ModifiedTime)
		out = append(out, ports.Candidate{ID: f.Id, Title: f.Name, LastModified: modified})
	}
	return out, nil
}

// EnsureTab adds a tab named title unless the ledger already has one.
func (c *Client) EnsureTab(ctx context.Context, ledgerID, title string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	meta, err := c.sheets.Spreadsheets.Get(ledgerID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return classify(ctx, "sheets.meta", err)
	}
	for _, sh := range meta.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return nil
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	if _, err := c.sheets.Spreadsheets.BatchUpdate(ledgerID, req).Context(ctx).Do(); err != nil {
		return classify(ctx, "sheets.add_tab", err)
	}
	return nil
}

// classify maps a Google API failure onto the core error kinds.
func classify(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return core.Unavailable(op, err)
	}
	if errors.Is(err, context.Canceled) {
		return core.Unavailable(op, err)
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) || errors.Is(err, core.ErrAuthExpired) {
		return core.AuthExpired(op, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized:
			return core.AuthExpired(op, err)
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
			return core.Unavailable(op, err)
		case gerr.Code >= 400:
			return core.Rejected(op, err)
		}
	}
	return core.Unavailable(op, err)
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
