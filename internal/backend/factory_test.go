package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rupee/internal/config"
	"rupee/internal/log"
	"rupee/internal/session"
	"rupee/internal/storage"
)

func TestFromAppConfig(t *testing.T) {
	cfg := &config.Config{
		DataBackend:          "memory",
		OAuthRedirectPort:    "8085",
		RemoteTimeout:        5 * time.Second,
		MemoryPrincipalEmail: "Dev@Example.com",
	}
	bc, err := FromAppConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, MemoryBackend, bc.Type)
	assert.Empty(t, bc.ClientJSON)

	cfg.DataBackend = "sheets"
	_, err = FromAppConfig(cfg)
	assert.Error(t, err, "sheets without a client secret")

	cfg.GoogleOAuthClientJSON = `{"installed":{}}`
	bc, err = FromAppConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"installed":{}}`), bc.ClientJSON)

	cfg.DataBackend = "postgres"
	_, err = FromAppConfig(cfg)
	assert.Error(t, err)

	_, err = FromAppConfig(nil)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend, PrincipalEmail: "a@b.c"}, false},
		{"memory without principal", Config{Type: MemoryBackend}, true},
		{"sheets", Config{Type: SheetsBackend, ClientJSON: []byte("{}"), RedirectPort: "8085"}, false},
		{"sheets without secret", Config{Type: SheetsBackend, RedirectPort: "8085"}, true},
		{"unknown", Config{Type: "sqlite"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			assert.Equal(t, tt.wantErr, err != nil, "Validate() = %v", err)
		})
	}
	assert.ElementsMatch(t, []BackendType{MemoryBackend, SheetsBackend}, GetBackendTypes())
}

func TestCreateMemoryBackend(t *testing.T) {
	ctx := context.Background()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	f := NewFactory(log.New(log.DefaultConfig()))
	res, err := f.CreateBackend(ctx, Config{Type: MemoryBackend, PrincipalEmail: " Dev@Example.com "}, repo)
	require.NoError(t, err)
	require.NotNil(t, res.Gateway)
	assert.Nil(t, res.Cleanup)

	p, err := res.Sessions.Login(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", p.ID)
	assert.Equal(t, "dev", p.DisplayName)
	assert.Equal(t, session.StateAuthenticated, res.Sessions.State())

	id, err := res.Gateway.CreateLedger(ctx, "Track your Rupee - dev@example.com")
	require.NoError(t, err)
	ok, err := res.Gateway.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreateBackendRejectsInvalidConfig(t *testing.T) {
	f := NewFactory(nil)
	_, err := f.CreateBackend(context.Background(), Config{Type: SheetsBackend}, nil)
	assert.Error(t, err)
}
