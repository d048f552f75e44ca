package session

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"rupee/internal/core"
)

// StaticAuthenticator signs in a fixed principal without any provider.
// It backs the in-memory ledger backend used for local runs and tests.
type StaticAuthenticator struct {
	Principal core.Principal
}

func (s StaticAuthenticator) Authenticate(ctx context.Context) (*oauth2.Token, error) {
	return &oauth2.Token{
		AccessToken: "static:" + s.Principal.ID,
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(24 * time.Hour),
	}, nil
}

func (s StaticAuthenticator) Verify(ctx context.Context, tok *oauth2.Token) (core.Principal, error) {
	if tok == nil || tok.AccessToken != "static:"+s.Principal.ID {
		return core.Principal{}, core.AuthExpired("static.verify", ErrNotAuthenticated)
	}
	return s.Principal, nil
}

func (s StaticAuthenticator) Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	return s.Authenticate(ctx)
}
