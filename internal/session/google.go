package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	goauth "google.golang.org/api/oauth2/v2"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"rupee/internal/core"
)

// Scopes requested at login. drive.file limits Drive access to files the
// app created or was handed by the user.
var Scopes = []string{
	gsheet.SpreadsheetsScope,
	gdrive.DriveFileScope,
	goauth.UserinfoEmailScope,
	goauth.UserinfoProfileScope,
	"openid",
}

const loginTimeout = 5 * time.Minute

// GoogleAuthenticator runs the installed-app flow with a loopback redirect
// and verifies tokens against the userinfo endpoint.
type GoogleAuthenticator struct {
	config  *oauth2.Config
	port    string
	timeout time.Duration

	// Prompt receives the consent URL. Defaults to logging it.
	Prompt func(url string)

	userinfoEndpoint string
}

// NewGoogleAuthenticator builds an authenticator from an OAuth client JSON
// document as downloaded from the Google console.
func NewGoogleAuthenticator(clientJSON []byte, redirectPort string, timeout time.Duration) (*GoogleAuthenticator, error) {
	cfg, err := google.ConfigFromJSON(clientJSON, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	if redirectPort == "" {
		redirectPort = "8085"
	}
	cfg.RedirectURL = "http://localhost:" + redirectPort + "/callback"
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GoogleAuthenticator{
		config:  cfg,
		port:    redirectPort,
		timeout: timeout,
		Prompt: func(url string) {
			slog.Info("Open this URL to authorize", "url", url)
		},
	}, nil
}

func (g *GoogleAuthenticator) Authenticate(ctx context.Context) (*oauth2.Token, error) {
	state := uuid.NewString()
	type result struct {
		code string
		err  error
	}
	done := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res result
		switch {
		case q.Get("error") != "":
			res.err = fmt.Errorf("consent denied: %s", q.Get("error"))
			http.Error(w, "Authorization failed: "+q.Get("error"), http.StatusBadRequest)
		case q.Get("state") != state:
			res.err = errors.New("state mismatch in oauth callback")
			http.Error(w, "Invalid state", http.StatusBadRequest)
		default:
			res.code = q.Get("code")
			fmt.Fprintln(w, "You may close this window and return to the app.")
		}
		select {
		case done <- res:
		default:
		}
	})

	ln, err := net.Listen("tcp", "127.0.0.1:"+g.port)
	if err != nil {
		return nil, fmt.Errorf("listen for oauth callback: %w", err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	g.Prompt(g.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		exCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		tok, err := g.config.Exchange(exCtx, res.code)
		if err != nil {
			return nil, classifyAuth("oauth.exchange", err)
		}
		return tok, nil
	case <-time.After(loginTimeout):
		return nil, errors.New("authorization timed out")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *GoogleAuthenticator) Verify(ctx context.Context, tok *oauth2.Token) (core.Principal, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	opts := []goption.ClientOption{goption.WithTokenSource(oauth2.StaticTokenSource(tok))}
	if g.userinfoEndpoint != "" {
		opts = append(opts, goption.WithEndpoint(g.userinfoEndpoint))
	}
	svc, err := goauth.NewService(ctx, opts...)
	if err != nil {
		return core.Principal{}, fmt.Errorf("create userinfo service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return core.Principal{}, classifyAuth("oauth.userinfo", err)
	}
	if info.Id == "" {
		return core.Principal{}, core.AuthExpired("oauth.userinfo", errors.New("userinfo without subject"))
	}
	return core.Principal{
		ID:          info.Id,
		DisplayName: info.Name,
		Email:       info.Email,
		AvatarURL:   info.Picture,
	}, nil
}

func (g *GoogleAuthenticator) Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	if tok.RefreshToken == "" {
		return nil, core.AuthExpired("oauth.refresh", errors.New("no refresh token"))
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	expired := *tok
	expired.Expiry = time.Unix(1, 0)
	next, err := g.config.TokenSource(ctx, &expired).Token()
	if err != nil {
		return nil, classifyAuth("oauth.refresh", err)
	}
	if next.RefreshToken == "" {
		next.RefreshToken = tok.RefreshToken
	}
	return next, nil
}

// classifyAuth separates "the provider said no" from "the provider could
// not be asked".
func classifyAuth(op string, err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.Response != nil && rerr.Response.StatusCode >= 500 {
			return core.Unavailable(op, err)
		}
		return core.AuthExpired(op, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden {
			return core.AuthExpired(op, err)
		}
		return core.Unavailable(op, err)
	}
	return core.Unavailable(op, err)
}
