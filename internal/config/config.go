package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Accounts []MailAccount `yaml:"accounts"`
	Pause    PauseConfig   `yaml:"pause"`
	Report   ReportConfig  `yaml:"report"`
	DKIM     DKIMConfig    `yaml:"dkim"`
	API      APIConfig     `yaml:"api"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Storage  StorageConfig `yaml:"storage"`
	Logging  LoggingConfig `yaml:"logging"`

	// AccountsFile points at a standalone accounts file merged into
	// Accounts at load time (kept for setups that share one accounts
	// list between machines).
	AccountsFile string `yaml:"accounts_file"`
}

// MailAccount is one SMTP submission account.
type MailAccount struct {
	Label  string `yaml:"label" json:"label"`
	Host   string `yaml:"host" json:"host"`
	Port   int    `yaml:"port" json:"port"`
	Secure bool   `yaml:"secure" json:"secure"` // implicit TLS instead of STARTTLS
	User   string `yaml:"user" json:"user"`
	Pass   string `yaml:"pass" json:"-"`
}

// Validate checks the fields the pipeline needs before a run.
func (a *MailAccount) Validate() error {
	if a.Host == "" {
		return fmt.Errorf("account %q: host is required", a.Label)
	}
	if a.Port <= 0 || a.Port > 65535 {
		return fmt.Errorf("account %q: invalid port %d", a.Label, a.Port)
	}
	if a.User == "" {
		return fmt.Errorf("account %q: user is required", a.Label)
	}
	return nil
}

// PauseConfig holds the default pacing bounds between sends.
type PauseConfig struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// ReportConfig contains report compiler settings.
type ReportConfig struct {
	OutputDir string `yaml:"output_dir"` // default: the user's desktop
}

// DKIMConfig contains optional DKIM signing settings.
type DKIMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Domain   string `yaml:"domain"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
}

// APIConfig contains HTTP API settings for serve mode.
type APIConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	APIKey       string        `yaml:"api_key"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	TLS          TLSConfig     `yaml:"tls"`
}

// TLSConfig enables HTTPS on the API listener, either with certificate
// files or through ACME issuance.
type TLSConfig struct {
	Enabled  bool       `yaml:"enabled"`
	CertFile string     `yaml:"cert_file"`
	KeyFile  string     `yaml:"key_file"`
	ACME     ACMEConfig `yaml:"acme"`
}

// ACMEConfig contains automatic certificate issuance settings.
type ACMEConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Email         string   `yaml:"email"`
	Domains       []string `yaml:"domains"`
	CacheDir      string   `yaml:"cache_dir"`      // default ~/.sheetmail/acme
	ChallengeAddr string   `yaml:"challenge_addr"` // default :80
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"` // default :9090
	Path       string `yaml:"path"`        // default /metrics
}

// StorageConfig contains run-history storage settings.
type StorageConfig struct {
	Path string `yaml:"path"` // bbolt database file
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.AccountsFile != "" {
		accounts, err := LoadAccounts(cfg.AccountsFile)
		if err != nil {
			return nil, err
		}
		cfg.Accounts = append(cfg.Accounts, accounts...)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadAccounts reads a standalone accounts file (YAML list of accounts).
func LoadAccounts(path string) ([]MailAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}

	var accounts []MailAccount
	if err := yaml.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file: %w", err)
	}
	return accounts, nil
}

// Account finds an account by label. An empty label selects the first
// account when exactly one is configured.
func (c *Config) Account(label string) (*MailAccount, error) {
	if label == "" {
		if len(c.Accounts) == 1 {
			return &c.Accounts[0], nil
		}
		return nil, fmt.Errorf("account label is required when %d accounts are configured", len(c.Accounts))
	}
	for i := range c.Accounts {
		if c.Accounts[i].Label == label {
			return &c.Accounts[i], nil
		}
	}
	return nil, fmt.Errorf("unknown account %q", label)
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Pause.Min == 0 && c.Pause.Max == 0 {
		c.Pause.Min = 2 * time.Second
		c.Pause.Max = 4 * time.Second
	}

	if c.Storage.Path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.Storage.Path = filepath.Join(home, ".sheetmail", "history.db")
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 30 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}
	if c.API.TLS.ACME.CacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.API.TLS.ACME.CacheDir = filepath.Join(home, ".sheetmail", "acme")
	}
	if c.API.TLS.ACME.ChallengeAddr == "" {
		c.API.TLS.ACME.ChallengeAddr = ":80"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Pause.Min < 0 {
		return fmt.Errorf("pause.min must be non-negative")
	}
	if c.Pause.Min > c.Pause.Max {
		return fmt.Errorf("pause.min (%s) must not exceed pause.max (%s)", c.Pause.Min, c.Pause.Max)
	}

	seen := make(map[string]struct{}, len(c.Accounts))
	for i := range c.Accounts {
		a := &c.Accounts[i]
		if err := a.Validate(); err != nil {
			return err
		}
		if _, dup := seen[a.Label]; dup {
			return fmt.Errorf("duplicate account label %q", a.Label)
		}
		seen[a.Label] = struct{}{}
	}

	if c.DKIM.Enabled {
		if c.DKIM.Domain == "" || c.DKIM.Selector == "" || c.DKIM.KeyFile == "" {
			return fmt.Errorf("dkim requires domain, selector and key_file")
		}
	}

	if c.API.TLS.Enabled {
		if c.API.TLS.ACME.Enabled {
			if len(c.API.TLS.ACME.Domains) == 0 {
				return fmt.Errorf("api.tls.acme requires at least one domain")
			}
		} else if c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "" {
			return fmt.Errorf("api.tls requires cert_file and key_file (or acme)")
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}

	return nil
}
