package refundd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"refundkeeper/native/lovelace"
)

const (
	lockBackendDatabase = "database"
	lockBackendMemory   = "memory"
)

// Duration wraps time.Duration to support YAML and TOML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// UnmarshalText parses human readable duration strings.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for refundd.
type Config struct {
	ListenAddress string         `yaml:"listen" toml:"listen"`
	PauseOnStart  bool           `yaml:"pause" toml:"pause"`
	Database      DatabaseConfig `yaml:"database" toml:"database"`
	Job           JobSettings    `yaml:"job" toml:"job"`
	Wallet        WalletConfig   `yaml:"wallet" toml:"wallet"`
	Ledger        LedgerConfig   `yaml:"ledger" toml:"ledger"`
	Admin         AdminConfig    `yaml:"admin" toml:"admin"`
	Logging       LoggingConfig  `yaml:"logging" toml:"logging"`
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	DSN    string `yaml:"dsn" toml:"dsn"`
}

// JobSettings holds the refund policy knobs.
type JobSettings struct {
	PageSize        int      `yaml:"page_size" toml:"page_size"`
	StaleAfter      Duration `yaml:"stale_after" toml:"stale_after"`
	RefundThreshold string   `yaml:"refund_threshold" toml:"refund_threshold"`
	LockName        string   `yaml:"lock_name" toml:"lock_name"`
	LockBackend     string   `yaml:"lock_backend" toml:"lock_backend"`
	LockTTL         Duration `yaml:"lock_ttl" toml:"lock_ttl"`
	Interval        Duration `yaml:"interval" toml:"interval"`

	// Threshold is RefundThreshold (ADA) converted to lovelace.
	Threshold lovelace.Lovelace `yaml:"-" toml:"-"`
}

// WalletConfig points at the treasury wallet server.
type WalletConfig struct {
	Endpoint       string   `yaml:"endpoint" toml:"endpoint"`
	WalletID       string   `yaml:"wallet_id" toml:"wallet_id"`
	Passphrase     string   `yaml:"passphrase" toml:"passphrase"`
	PassphraseEnv  string   `yaml:"passphrase_env" toml:"passphrase_env"`
	PassphraseFile string   `yaml:"passphrase_file" toml:"passphrase_file"`
	Timeout        Duration `yaml:"timeout" toml:"timeout"`
}

// LedgerConfig points at the chain indexer.
type LedgerConfig struct {
	Endpoint          string   `yaml:"endpoint" toml:"endpoint"`
	ProjectID         string   `yaml:"project_id" toml:"project_id"`
	ProjectIDEnv      string   `yaml:"project_id_env" toml:"project_id_env"`
	RequestsPerSecond float64  `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int      `yaml:"burst" toml:"burst"`
	Timeout           Duration `yaml:"timeout" toml:"timeout"`
}

// AdminConfig captures security settings for the admin API.
type AdminConfig struct {
	BearerToken     string         `yaml:"bearer_token" toml:"bearer_token"`
	BearerTokenFile string         `yaml:"bearer_token_file" toml:"bearer_token_file"`
	JWTSecret       string         `yaml:"jwt_secret" toml:"jwt_secret"`
	JWTSecretEnv    string         `yaml:"jwt_secret_env" toml:"jwt_secret_env"`
	JWTIssuer       string         `yaml:"jwt_issuer" toml:"jwt_issuer"`
	TLS             AdminTLSConfig `yaml:"tls" toml:"tls"`
}

// AdminTLSConfig configures TLS certificates for the admin API.
type AdminTLSConfig struct {
	CertPath string `yaml:"cert" toml:"cert"`
	KeyPath  string `yaml:"key" toml:"key"`
}

// Enabled reports whether both certificate and key were supplied.
func (c AdminTLSConfig) Enabled() bool {
	return c.CertPath != "" && c.KeyPath != ""
}

// LoggingConfig enables an optional rotated log file.
type LoggingConfig struct {
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
}

// LoadEnvFile exports the variables in a dotenv file without overriding
// values already present in the environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// LoadConfig reads configuration from the supplied path. Files ending in
// .toml are decoded as TOML, everything else as YAML.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	} else {
		file, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		dec := yaml.NewDecoder(file)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}
	applyDefaults(&cfg)
	if err := cfg.Wallet.normalise(); err != nil {
		return cfg, fmt.Errorf("wallet passphrase: %w", err)
	}
	if err := cfg.Ledger.normalise(); err != nil {
		return cfg, fmt.Errorf("ledger project id: %w", err)
	}
	if err := cfg.Admin.normalise(); err != nil {
		return cfg, fmt.Errorf("admin security: %w", err)
	}
	threshold, err := lovelace.FromADA(cfg.Job.RefundThreshold)
	if err != nil {
		return cfg, fmt.Errorf("job refund_threshold: %w", err)
	}
	cfg.Job.Threshold = threshold
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Job.PageSize <= 0 {
		cfg.Job.PageSize = defaultPageSize
	}
	if cfg.Job.StaleAfter.Duration == 0 {
		cfg.Job.StaleAfter.Duration = defaultStaleAfter
	}
	if strings.TrimSpace(cfg.Job.RefundThreshold) == "" {
		cfg.Job.RefundThreshold = "1"
	}
	if strings.TrimSpace(cfg.Job.LockName) == "" {
		cfg.Job.LockName = defaultLockName
	}
	cfg.Job.LockBackend = strings.ToLower(strings.TrimSpace(cfg.Job.LockBackend))
	if cfg.Job.LockBackend == "" {
		cfg.Job.LockBackend = lockBackendDatabase
	}
	if cfg.Job.LockTTL.Duration == 0 {
		cfg.Job.LockTTL.Duration = 15 * time.Minute
	}
	if cfg.Wallet.Timeout.Duration == 0 {
		cfg.Wallet.Timeout.Duration = 30 * time.Second
	}
	if cfg.Ledger.RequestsPerSecond <= 0 {
		cfg.Ledger.RequestsPerSecond = 10
	}
	if cfg.Ledger.Burst <= 0 {
		cfg.Ledger.Burst = 5
	}
	if cfg.Ledger.Timeout.Duration == 0 {
		cfg.Ledger.Timeout.Duration = 15 * time.Second
	}
	if cfg.Logging.File != "" {
		if cfg.Logging.MaxSizeMB <= 0 {
			cfg.Logging.MaxSizeMB = 100
		}
		if cfg.Logging.MaxBackups <= 0 {
			cfg.Logging.MaxBackups = 7
		}
		if cfg.Logging.MaxAgeDays <= 0 {
			cfg.Logging.MaxAgeDays = 30
		}
	}
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return fmt.Errorf("database dsn must be configured")
	}
	if strings.TrimSpace(cfg.Wallet.Endpoint) == "" {
		return fmt.Errorf("wallet endpoint must be configured")
	}
	if strings.TrimSpace(cfg.Wallet.WalletID) == "" {
		return fmt.Errorf("wallet wallet_id must be configured")
	}
	if strings.TrimSpace(cfg.Ledger.Endpoint) == "" {
		return fmt.Errorf("ledger endpoint must be configured")
	}
	if cfg.Job.StaleAfter.Duration < 0 {
		return fmt.Errorf("job stale_after must be non-negative")
	}
	if cfg.Job.Interval.Duration < 0 {
		return fmt.Errorf("job interval must be non-negative")
	}
	switch cfg.Job.LockBackend {
	case lockBackendDatabase, lockBackendMemory:
	default:
		return fmt.Errorf("job lock_backend %q must be %s or %s", cfg.Job.LockBackend, lockBackendDatabase, lockBackendMemory)
	}
	if cfg.Job.LockTTL.Duration < 0 {
		return fmt.Errorf("job lock_ttl must be non-negative")
	}
	if cfg.Admin.BearerToken == "" && cfg.Admin.JWTSecret == "" {
		return fmt.Errorf("configure either bearer_token or jwt_secret for admin authentication")
	}
	return nil
}

func (w *WalletConfig) normalise() error {
	if w == nil {
		return fmt.Errorf("wallet configuration missing")
	}
	w.PassphraseEnv = strings.TrimSpace(w.PassphraseEnv)
	w.PassphraseFile = strings.TrimSpace(w.PassphraseFile)
	if w.Passphrase != "" {
		return nil
	}
	switch {
	case w.PassphraseEnv != "":
		value := os.Getenv(w.PassphraseEnv)
		if value == "" {
			return fmt.Errorf("passphrase_env %s is empty", w.PassphraseEnv)
		}
		w.Passphrase = value
	case w.PassphraseFile != "":
		contents, err := os.ReadFile(w.PassphraseFile)
		if err != nil {
			return fmt.Errorf("read passphrase_file: %w", err)
		}
		w.Passphrase = strings.TrimRight(string(contents), "\r\n")
	default:
		return fmt.Errorf("passphrase is required")
	}
	return nil
}

func (l *LedgerConfig) normalise() error {
	if l == nil {
		return fmt.Errorf("ledger configuration missing")
	}
	l.ProjectID = strings.TrimSpace(l.ProjectID)
	l.ProjectIDEnv = strings.TrimSpace(l.ProjectIDEnv)
	if l.ProjectID == "" && l.ProjectIDEnv != "" {
		value := strings.TrimSpace(os.Getenv(l.ProjectIDEnv))
		if value == "" {
			return fmt.Errorf("project_id_env %s is empty", l.ProjectIDEnv)
		}
		l.ProjectID = value
	}
	return nil
}

func (a *AdminConfig) normalise() error {
	if a == nil {
		return fmt.Errorf("admin configuration missing")
	}
	token := strings.TrimSpace(a.BearerToken)
	if path := strings.TrimSpace(a.BearerTokenFile); path != "" {
		contents, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read bearer_token_file: %w", err)
		}
		token = strings.TrimSpace(string(contents))
	}
	a.BearerToken = token
	a.JWTSecret = strings.TrimSpace(a.JWTSecret)
	if a.JWTSecret == "" {
		if env := strings.TrimSpace(a.JWTSecretEnv); env != "" {
			value := strings.TrimSpace(os.Getenv(env))
			if value == "" {
				return fmt.Errorf("jwt_secret_env %s is empty", env)
			}
			a.JWTSecret = value
		}
	}
	a.TLS.CertPath = strings.TrimSpace(a.TLS.CertPath)
	a.TLS.KeyPath = strings.TrimSpace(a.TLS.KeyPath)
	if (a.TLS.CertPath == "") != (a.TLS.KeyPath == "") {
		return fmt.Errorf("tls.cert and tls.key must be configured together")
	}
	return nil
}
