package backend

import (
	"context"
	"fmt"
	"strings"

	"rupee/internal/core"
	"rupee/internal/log"
	"rupee/internal/session"
	gsheet "rupee/internal/sheets/google"
	"rupee/internal/sheets/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend builds the session manager first, since the sheets gateway
// authorizes every call with the session's token.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config, store session.CredentialStore) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config, store)
	case MemoryBackend:
		return f.createMemoryBackend(config, store)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config, store session.CredentialStore) (*BackendResult, error) {
	auth, err := session.NewGoogleAuthenticator(config.ClientJSON, config.RedirectPort, config.RemoteTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google authenticator: %w", err)
	}
	sessions := session.NewManager(auth, store, f.logger)

	cli, err := gsheet.New(ctx, sessions.TokenSource(ctx), config.RemoteTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend",
		"redirect_port", config.RedirectPort,
		"timeout", config.RemoteTimeout)

	return &BackendResult{Gateway: cli, Sessions: sessions}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config, store session.CredentialStore) (*BackendResult, error) {
	sessions := session.NewManager(session.StaticAuthenticator{Principal: memoryPrincipal(config.PrincipalEmail)}, store, f.logger)

	f.logger.Info("Initialized memory backend", "principal", config.PrincipalEmail)

	return &BackendResult{Gateway: memory.New(), Sessions: sessions}, nil
}

func memoryPrincipal(email string) core.Principal {
	email = strings.ToLower(strings.TrimSpace(email))
	name, _, _ := strings.Cut(email, "@")
	return core.Principal{ID: email, DisplayName: name, Email: email}
}
