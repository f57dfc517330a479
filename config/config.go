package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultThreshold   = 1000
	DefaultBudget      = 1_000_000
	DefaultDelay       = 200 * time.Millisecond
	DefaultCallTimeout = 30 * time.Second
	DefaultLedgerDir   = "data/ledger"
	DefaultDatabase    = "(default)"
	DefaultStorageAPI  = "https://storage.googleapis.com"

	MinDelay = 50 * time.Millisecond
	MaxDelay = 2 * time.Second
)

type Source struct {
	// BaseURL of the application's data API. Either this or SQLitePath.
	BaseURL string `yaml:"baseURL"`
	// TokenEnv names the environment variable holding the API bearer token.
	TokenEnv string `yaml:"tokenEnv"`
	// SQLitePath reads straight from the application's database file.
	SQLitePath string `yaml:"sqlitePath"`
}

type GCP struct {
	KeyFile string `yaml:"keyFile"`
	// KeyFileEnv is consulted when KeyFile is empty.
	KeyFileEnv string `yaml:"keyFileEnv"`
	// ProjectID defaults to the one in the key file.
	ProjectID string `yaml:"projectID"`
	Bucket    string `yaml:"bucket"`
	Database  string `yaml:"database"`

	StorageAPI    string `yaml:"storageAPI,omitempty"`
	FirestoreAPI  string `yaml:"firestoreAPI,omitempty"`
	PublicBaseURL string `yaml:"publicBaseURL,omitempty"`
	MakePublic    bool   `yaml:"makePublic"`
}

type Migration struct {
	Threshold int           `yaml:"threshold"`
	Budget    int           `yaml:"budget"`
	Delay     time.Duration `yaml:"delay"`
	Timeout   time.Duration `yaml:"timeout"`
	DryRun    bool          `yaml:"dryRun"`
	// RequestsPerSecond caps calls to each cloud API. Zero is unbounded.
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty"`
}

type Config struct {
	Source    Source    `yaml:"source"`
	GCP       GCP       `yaml:"gcp"`
	Migration Migration `yaml:"migration"`
	LedgerDir string    `yaml:"ledgerDir"`
	LogLevel  string    `yaml:"logLevel"`
}

var (
	ErrConfigFileUnreadable     = errors.New("config file is unreadable")
	ErrConfigFileUnmarshallable = errors.New("config file is unmarshallable")
	ErrSourceMissing            = errors.New("source.baseURL or source.sqlitePath is required")
	ErrSourceAmbiguous          = errors.New("source.baseURL and source.sqlitePath are mutually exclusive")
	ErrSourceTokenMissing       = errors.New("source token env var is unset or empty")
	ErrKeyFileMissing           = errors.New("gcp.keyFile is missing in config")
	ErrBucketMissing            = errors.New("gcp.bucket is missing in config")
	ErrDelayOutOfRange          = errors.New("migration.delay must be between 50ms and 2s")
	ErrThresholdInvalid         = errors.New("migration.threshold must be positive")
	ErrBudgetInvalid            = errors.New("migration.budget must be positive")
	ErrRateInvalid              = errors.New("migration.requestsPerSecond cannot be negative")
	ErrLogLevelInvalid          = errors.New("logLevel must be one of debug, info, warn, error")
)

// Load reads, defaults and validates a config file.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read reads and defaults a config file without validating it, so callers
// can apply command line overrides first.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigFileUnreadable, err)
	}
	return decode(data)
}

func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigFileUnmarshallable, err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills every zero value that has a default.
func (c *Config) ApplyDefaults() {
	if c.Migration.Threshold == 0 {
		c.Migration.Threshold = DefaultThreshold
	}
	if c.Migration.Budget == 0 {
		c.Migration.Budget = DefaultBudget
	}
	if c.Migration.Delay == 0 {
		c.Migration.Delay = DefaultDelay
	}
	if c.Migration.Timeout == 0 {
		c.Migration.Timeout = DefaultCallTimeout
	}
	if c.GCP.Database == "" {
		c.GCP.Database = DefaultDatabase
	}
	if c.GCP.StorageAPI == "" {
		c.GCP.StorageAPI = DefaultStorageAPI
	}
	if c.GCP.KeyFile == "" && c.GCP.KeyFileEnv != "" {
		c.GCP.KeyFile = os.Getenv(c.GCP.KeyFileEnv)
	}
	if c.LedgerDir == "" {
		c.LedgerDir = DefaultLedgerDir
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the settings every mode needs. Cloud credentials are
// only required outside dry-run.
func (c *Config) Validate() error {
	if c.Source.BaseURL == "" && c.Source.SQLitePath == "" {
		return ErrSourceMissing
	}
	if c.Source.BaseURL != "" && c.Source.SQLitePath != "" {
		return ErrSourceAmbiguous
	}
	if c.Migration.Delay < MinDelay || c.Migration.Delay > MaxDelay {
		return ErrDelayOutOfRange
	}
	if c.Migration.Threshold < 0 {
		return ErrThresholdInvalid
	}
	if c.Migration.Budget < 0 {
		return ErrBudgetInvalid
	}
	if c.Migration.RequestsPerSecond < 0 {
		return ErrRateInvalid
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Migration.DryRun {
		return nil
	}
	if c.GCP.KeyFile == "" {
		return ErrKeyFileMissing
	}
	if c.GCP.Bucket == "" {
		return ErrBucketMissing
	}
	return nil
}

// SourceToken returns the data API token from the environment. An empty
// TokenEnv means the API is unauthenticated.
func (c *Config) SourceToken() (string, error) {
	if c.Source.TokenEnv == "" {
		return "", nil
	}
	token := os.Getenv(c.Source.TokenEnv)
	if token == "" {
		return "", fmt.Errorf("%w: %s", ErrSourceTokenMissing, c.Source.TokenEnv)
	}
	return token, nil
}

func (c *Config) Level() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrLogLevelInvalid, c.LogLevel)
}

// Generate returns a starting config for the application's data API.
func Generate() *Config {
	cfg := Config{
		Source: Source{
			BaseURL:  "http://localhost:3000",
			TokenEnv: "BLOBFERRY_SOURCE_TOKEN",
		},
		GCP: GCP{
			KeyFileEnv: "GOOGLE_APPLICATION_CREDENTIALS",
			Bucket:     "please-set-your-bucket.appspot.com",
			MakePublic: true,
		},
	}
	cfg.ApplyDefaults()
	cfg.GCP.KeyFile = ""
	return &cfg
}
