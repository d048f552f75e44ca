// Package session owns the credential lifecycle of the single user a
// process serves.
//
// A stored credential is only trusted after the identity provider confirms
// who it belongs to, and only when that identity matches the principal the
// credential was stored under. Ledger references and budget state are keyed
// by the verified principal id, so data left behind by one account never
// leaks into another.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/oauth2"

	"rupee/internal/core"
	"rupee/internal/log"
	"rupee/internal/storage"
)

type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateExpired         State = "expired"
	StateLoggedOut       State = "logged_out"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrBusy             = errors.New("authentication already in progress")
)

// Authenticator is the identity provider.
type Authenticator interface {
	// Authenticate runs the interactive login flow.
	Authenticate(ctx context.Context) (*oauth2.Token, error)
	// Verify asks the provider who tok belongs to. A token the provider
	// refuses yields an error wrapping core.ErrAuthExpired.
	Verify(ctx context.Context, tok *oauth2.Token) (core.Principal, error)
}

// Refresher is implemented by authenticators that can renew an expired
// token without user interaction.
type Refresher interface {
	Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error)
}

// CredentialStore persists credentials and the display remnant.
type CredentialStore interface {
	SavePrincipal(ctx context.Context, p core.Principal) error
	SaveCredential(ctx context.Context, c storage.Credential) error
	LatestCredential(ctx context.Context) (*storage.Credential, error)
	DeleteCredential(ctx context.Context, principalID string) error
}

// Manager tracks the authenticated principal. It is safe for concurrent
// use; only one authentication attempt runs at a time.
type Manager struct {
	auth   Authenticator
	store  CredentialStore
	logger *log.Logger

	mu        sync.RWMutex
	state     State
	principal *core.Principal
	token     *oauth2.Token
	teardown  []func(context.Context)
}

func NewManager(auth Authenticator, store CredentialStore, logger *log.Logger) *Manager {
	return &Manager{
		auth:   auth,
		store:  store,
		logger: logger.WithComponent(log.ComponentSession),
		state:  StateUnauthenticated,
	}
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Principal returns the authenticated principal.
func (m *Manager) Principal() (core.Principal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.principal == nil || m.state != StateAuthenticated {
		return core.Principal{}, false
	}
	return *m.principal, true
}

// OnTeardown registers fn to run on logout, after the credential is
// deleted. Hooks run in registration order.
func (m *Manager) OnTeardown(fn func(context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardown = append(m.teardown, fn)
}

// Restore resumes the last stored session. It returns (nil, nil) when there
// is no usable credential and an error only when the answer is unknown
// because the provider or the store could not be reached.
func (m *Manager) Restore(ctx context.Context) (*core.Principal, error) {
	if err := m.begin(); err != nil {
		return nil, err
	}

	p, tok, err := m.restore(ctx)
	if err != nil || p == nil {
		m.finish(StateUnauthenticated, nil, nil)
		return nil, err
	}
	m.finish(StateAuthenticated, p, tok)
	m.logger.InfoContext(ctx, "Session restored", log.FieldPrincipalID, p.ID, log.FieldOperation, log.OpRestore)
	return p, nil
}

func (m *Manager) restore(ctx context.Context) (*core.Principal, *oauth2.Token, error) {
	cred, err := m.store.LatestCredential(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load credential: %w", err)
	}
	if cred == nil {
		return nil, nil, nil
	}

	var tok oauth2.Token
	if err := json.Unmarshal(cred.Token, &tok); err != nil || tok.AccessToken == "" {
		m.logger.WarnContext(ctx, "Discarding unreadable credential", log.FieldPrincipalID, cred.PrincipalID)
		return nil, nil, m.purge(ctx, cred.PrincipalID)
	}

	current := &tok
	refreshed := false
	if !tok.Valid() {
		r, ok := m.auth.(Refresher)
		if !ok {
			return nil, nil, m.purge(ctx, cred.PrincipalID)
		}
		next, err := r.Refresh(ctx, &tok)
		if err != nil {
			if errors.Is(err, core.ErrRemoteUnavailable) {
				return nil, nil, err
			}
			m.logger.InfoContext(ctx, "Stored credential could not be refreshed", log.FieldPrincipalID, cred.PrincipalID, log.FieldError, err)
			return nil, nil, m.purge(ctx, cred.PrincipalID)
		}
		current, refreshed = next, true
	}

	p, err := m.auth.Verify(ctx, current)
	if err != nil {
		if errors.Is(err, core.ErrRemoteUnavailable) {
			return nil, nil, err
		}
		m.logger.InfoContext(ctx, "Stored credential rejected by provider", log.FieldPrincipalID, cred.PrincipalID, log.FieldError, err)
		return nil, nil, m.purge(ctx, cred.PrincipalID)
	}
	if p.ID != cred.PrincipalID {
		m.logger.WarnContext(ctx, "Stored credential belongs to a different principal",
			log.FieldPrincipalID, cred.PrincipalID, "verified_principal_id", p.ID)
		return nil, nil, m.purge(ctx, cred.PrincipalID)
	}

	if refreshed {
		if err := m.saveToken(ctx, p.ID, current); err != nil {
			return nil, nil, err
		}
	}
	if err := m.store.SavePrincipal(ctx, p); err != nil {
		return nil, nil, err
	}
	return &p, current, nil
}

// Login runs the interactive flow and stores the resulting credential.
func (m *Manager) Login(ctx context.Context) (core.Principal, error) {
	if err := m.begin(); err != nil {
		return core.Principal{}, err
	}

	p, tok, err := m.login(ctx)
	if err != nil {
		m.finish(StateUnauthenticated, nil, nil)
		m.logger.WarnContext(ctx, "Login failed", log.FieldOperation, log.OpLogin, log.FieldError, err)
		return core.Principal{}, err
	}
	m.finish(StateAuthenticated, &p, tok)
	m.logger.InfoContext(ctx, "Logged in", log.FieldPrincipalID, p.ID, log.FieldOperation, log.OpLogin)
	return p, nil
}

func (m *Manager) login(ctx context.Context) (core.Principal, *oauth2.Token, error) {
	tok, err := m.auth.Authenticate(ctx)
	if err != nil {
		return core.Principal{}, nil, fmt.Errorf("authenticate: %w", err)
	}
	p, err := m.auth.Verify(ctx, tok)
	if err != nil {
		return core.Principal{}, nil, fmt.Errorf("verify identity: %w", err)
	}
	if err := m.saveToken(ctx, p.ID, tok); err != nil {
		return core.Principal{}, nil, err
	}
	if err := m.store.SavePrincipal(ctx, p); err != nil {
		return core.Principal{}, nil, err
	}
	return p, tok, nil
}

// Logout deletes the credential and runs the teardown hooks. The display
// remnant and the principal's ledger reference are kept.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateAuthenticated && m.state != StateExpired {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	var id string
	if m.principal != nil {
		id = m.principal.ID
	}
	m.state = StateLoggedOut
	m.principal = nil
	m.token = nil
	hooks := append([]func(context.Context){}, m.teardown...)
	m.mu.Unlock()

	var err error
	if id != "" {
		err = m.store.DeleteCredential(ctx, id)
	}
	for _, fn := range hooks {
		fn(ctx)
	}

	m.mu.Lock()
	m.state = StateUnauthenticated
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "Logged out", log.FieldPrincipalID, id, log.FieldOperation, log.OpLogout)
	return err
}

// Expire marks the session expired after a remote call reported the
// credential as no longer valid.
func (m *Manager) Expire(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateAuthenticated {
		m.state = StateExpired
		m.logger.WarnContext(ctx, "Session expired")
	}
}

// TokenSource returns a source that yields the session token, refreshing
// it when possible. Once the token can no longer be used the session moves
// to expired and the source returns core.ErrAuthExpired.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{m: m, ctx: ctx}
}

type tokenSource struct {
	m   *Manager
	ctx context.Context
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	m := ts.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAuthenticated || m.token == nil || m.principal == nil {
		return nil, core.AuthExpired("session.token", ErrNotAuthenticated)
	}
	if m.token.Valid() {
		return m.token, nil
	}
	r, ok := m.auth.(Refresher)
	if !ok {
		m.state = StateExpired
		return nil, core.AuthExpired("session.token", errors.New("token expired"))
	}
	next, err := r.Refresh(ts.ctx, m.token)
	if err != nil {
		if !errors.Is(err, core.ErrRemoteUnavailable) {
			m.state = StateExpired
		}
		return nil, err
	}
	m.token = next
	if err := m.saveTokenLocked(ts.ctx, m.principal.ID, next); err != nil {
		m.logger.WarnContext(ts.ctx, "Failed to persist refreshed token", log.FieldError, err)
	}
	return next, nil
}

func (m *Manager) begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateAuthenticating {
		return ErrBusy
	}
	m.state = StateAuthenticating
	return nil
}

func (m *Manager) finish(state State, p *core.Principal, tok *oauth2.Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.principal = p
	m.token = tok
}

func (m *Manager) purge(ctx context.Context, principalID string) error {
	if err := m.store.DeleteCredential(ctx, principalID); err != nil {
		return fmt.Errorf("purge credential: %w", err)
	}
	return nil
}

func (m *Manager) saveToken(ctx context.Context, principalID string, tok *oauth2.Token) error {
	return m.saveTokenLocked(ctx, principalID, tok)
}

// saveTokenLocked does not touch m's fields, so it may run with m.mu held.
func (m *Manager) saveTokenLocked(ctx context.Context, principalID string, tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	err = m.store.SaveCredential(ctx, storage.Credential{PrincipalID: principalID, Token: raw, ExpiresAt: tok.Expiry})
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}
