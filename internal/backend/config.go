package backend

import (
	"fmt"
	"strings"
	"time"

	"rupee/internal/config"
)

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Google Sheets
	ClientJSON    []byte
	RedirectPort  string
	RemoteTimeout time.Duration

	// Memory
	PrincipalEmail string
}

// FromAppConfig converts the application config to backend config. The
// OAuth client secret is only read for the sheets backend.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	cfg := Config{
		Type:           backendType,
		RedirectPort:   appConfig.OAuthRedirectPort,
		RemoteTimeout:  appConfig.RemoteTimeout,
		PrincipalEmail: appConfig.MemoryPrincipalEmail,
	}
	if backendType == SheetsBackend {
		clientJSON, err := appConfig.ClientJSON()
		if err != nil {
			return Config{}, err
		}
		cfg.ClientJSON = clientJSON
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SheetsBackend:
		if len(c.ClientJSON) == 0 {
			return fmt.Errorf("OAuth client secret is required for sheets backend")
		}
		if c.RedirectPort == "" {
			return fmt.Errorf("OAuth redirect port is required for sheets backend")
		}
	case MemoryBackend:
		if !strings.Contains(c.PrincipalEmail, "@") {
			return fmt.Errorf("memory backend needs a principal email, got %q", c.PrincipalEmail)
		}
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SheetsBackend}
}
