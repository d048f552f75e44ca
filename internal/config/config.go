package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"rupee/internal/budget"
	"rupee/internal/core"
)

type Config struct {
	// HTTP Server
	Port string

	// Session state database
	StateDBPath string

	// Backend selection
	DataBackend string

	// Google
	GoogleOAuthClientFile string
	GoogleOAuthClientJSON string
	OAuthRedirectPort     string
	LedgerAppName         string
	RemoteTimeout         time.Duration

	// Principal used by the memory backend
	MemoryPrincipalEmail string

	// AMQP, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Alerts
	NotifyWebhookURL string
	NotifyTimeout    time.Duration

	// Bill and voice extractor, optional
	ExtractorURL           string
	ExtractorTimeout       time.Duration
	ExtractorRatePerMinute int

	// Budget
	BudgetDefaultCeiling string
	BudgetResetPolicy    string

	// Logging
	LogLevel  string
	LogFormat string
}

var (
	validBackends   = []string{"memory", "sheets"}
	validLogFormats = []string{"text", "json"}
)

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8081"),
		StateDBPath: getEnv("STATE_DB_PATH", "./data/rupee.db"),
		DataBackend: getEnv("DATA_BACKEND", "memory"),

		GoogleOAuthClientFile: getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthClientJSON: getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		OAuthRedirectPort:     getEnv("OAUTH_REDIRECT_PORT", "8085"),
		LedgerAppName:         getEnv("LEDGER_APP_NAME", "Track your Rupee"),
		RemoteTimeout:         getEnvDuration("REMOTE_TIMEOUT", 15*time.Second),

		MemoryPrincipalEmail: getEnv("MEMORY_PRINCIPAL_EMAIL", "local@rupee.invalid"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "rupee"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "rupee_alerts"),

		NotifyWebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		NotifyTimeout:    getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),

		ExtractorURL:           getEnv("EXTRACTOR_URL", ""),
		ExtractorTimeout:       getEnvDuration("EXTRACTOR_TIMEOUT", 60*time.Second),
		ExtractorRatePerMinute: getEnvInt("EXTRACTOR_RATE_PER_MINUTE", 10),

		BudgetDefaultCeiling: getEnv("BUDGET_DEFAULT_CEILING", "11000"),
		BudgetResetPolicy:    getEnv("BUDGET_RESET_POLICY", budget.PolicyManual),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.StateDBPath == "" {
		errors = append(errors, "state database path cannot be empty")
	} else if dir := filepath.Dir(c.StateDBPath); dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				errors = append(errors, fmt.Sprintf("cannot create state database directory '%s': %v", dir, err))
			}
		}
	}

	if c.DataBackend == "sheets" {
		hasClientFile := c.GoogleOAuthClientFile != ""
		if !hasClientFile && c.GoogleOAuthClientJSON == "" {
			errors = append(errors, "either GOOGLE_OAUTH_CLIENT_FILE or GOOGLE_OAUTH_CLIENT_JSON must be provided for sheets backend")
		}
		if hasClientFile {
			if _, err := os.Stat(c.GoogleOAuthClientFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google OAuth client file does not exist: %s", c.GoogleOAuthClientFile))
			}
		}
		if port, err := strconv.Atoi(c.OAuthRedirectPort); err != nil || port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("invalid OAuth redirect port '%s'", c.OAuthRedirectPort))
		} else if c.OAuthRedirectPort == c.Port {
			errors = append(errors, "OAuth redirect port must differ from the HTTP port")
		}
	}

	if c.DataBackend == "memory" && !strings.Contains(c.MemoryPrincipalEmail, "@") {
		errors = append(errors, fmt.Sprintf("invalid memory principal email '%s'", c.MemoryPrincipalEmail))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	for name, raw := range map[string]string{"notify webhook": c.NotifyWebhookURL, "extractor": c.ExtractorURL} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid %s URL '%s': must be an absolute http(s) URL", name, raw))
		}
	}

	for name, d := range map[string]time.Duration{
		"remote timeout":    c.RemoteTimeout,
		"notify timeout":    c.NotifyTimeout,
		"extractor timeout": c.ExtractorTimeout,
	} {
		if d < time.Second {
			errors = append(errors, fmt.Sprintf("invalid %s %v: must be at least 1 second", name, d))
		} else if d > 10*time.Minute {
			errors = append(errors, fmt.Sprintf("invalid %s %v: must be at most 10 minutes", name, d))
		}
	}

	if c.ExtractorRatePerMinute < 1 || c.ExtractorRatePerMinute > 600 {
		errors = append(errors, fmt.Sprintf("invalid extractor rate %d: must be between 1 and 600 per minute", c.ExtractorRatePerMinute))
	}

	if _, err := c.DefaultCeiling(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid budget ceiling '%s': must be a positive amount", c.BudgetDefaultCeiling))
	}
	if _, err := budget.GetResetPolicy(c.BudgetResetPolicy); err != nil {
		errors = append(errors, fmt.Sprintf("invalid budget reset policy '%s': must be '%s' or '%s'", c.BudgetResetPolicy, budget.PolicyManual, budget.PolicyMonthly))
	}

	if !slices.Contains(validLogFormats, strings.ToLower(c.LogFormat)) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validLogFormats))
	}

	// Return combined errors
	if len(errors) > 0 {
		// map iteration above is unordered
		slices.Sort(errors)
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// DefaultCeiling parses BudgetDefaultCeiling as rupees.
func (c *Config) DefaultCeiling() (core.Money, error) {
	cents, err := core.ParseDecimalToCents(c.BudgetDefaultCeiling)
	if err != nil {
		return core.Money{}, err
	}
	if cents <= 0 {
		return core.Money{}, core.ErrInvalidAmount
	}
	return core.Money{Cents: cents}, nil
}

// ResetPolicy returns the configured budget reset policy, falling back to
// manual reset for an unknown name.
func (c *Config) ResetPolicy() budget.ResetPolicy {
	p, err := budget.GetResetPolicy(c.BudgetResetPolicy)
	if err != nil {
		return budget.ManualReset{}
	}
	return p
}

// ClientJSON returns the OAuth client secret, read from
// GOOGLE_OAUTH_CLIENT_FILE when GOOGLE_OAUTH_CLIENT_JSON is unset.
func (c *Config) ClientJSON() ([]byte, error) {
	if c.GoogleOAuthClientJSON != "" {
		return []byte(c.GoogleOAuthClientJSON), nil
	}
	if c.GoogleOAuthClientFile == "" {
		return nil, fmt.Errorf("no OAuth client configured")
	}
	data, err := os.ReadFile(c.GoogleOAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read OAuth client file: %w", err)
	}
	return data, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
