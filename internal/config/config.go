package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

// FileName is the settings document inside a data directory.
const FileName = "settings.yaml"

// Config represents the settings.yaml document.
type Config struct {
	HomeCurrency string                    `yaml:"home_currency" env:"RECONCILE_HOME_CURRENCY"`
	Providers    map[string]ProviderConfig `yaml:"providers,omitempty"`
	Correction   CorrectionConfig          `yaml:"correction"`
	Matching     MatchingConfig            `yaml:"matching"`
	Mappings     MappingsConfig            `yaml:"mappings"`
	Git          GitConfig                 `yaml:"git"`
}

// ProviderConfig names the counter accounts used when linking transfers
// imported from a multi-currency provider.
type ProviderConfig struct {
	BankAccountName string `yaml:"bank_account_name"`
	CashAccountName string `yaml:"cash_account_name"`
	SkipTransfers   bool   `yaml:"skip_transfers,omitempty"`
}

// CorrectionConfig controls balance-correction postings.
type CorrectionConfig struct {
	Category string `yaml:"category,omitempty" env:"RECONCILE_CORRECTION_CATEGORY"` // "Group:Category"
	Payee    string `yaml:"payee"`
}

// MatchingConfig tunes duplicate detection for records without external ids.
type MatchingConfig struct {
	DateToleranceDays int  `yaml:"date_tolerance_days" env:"RECONCILE_DATE_TOLERANCE_DAYS"`
	IgnorePayee       bool `yaml:"ignore_payee,omitempty"`
}

// MappingsConfig locates the payee->category mapping document.
type MappingsConfig struct {
	Path string `yaml:"path" env:"RECONCILE_MAPPINGS_PATH"` // relative to the data directory
}

// GitConfig controls git integration of the data directory.
type GitConfig struct {
	AutoCommit  bool   `yaml:"auto_commit" env:"RECONCILE_GIT_AUTO_COMMIT"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// Load reads a settings file, overlays RECONCILE_* environment variables and
// fills anything left unset from Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return complete(&cfg)
}

// LoadOrDefault is Load, except that a missing file yields the defaults with
// the environment overlay applied.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return complete(&Config{})
	}
	return cfg, err
}

func complete(cfg *Config) (*Config, error) {
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("reading environment overrides: %w", err)
	}
	if err := mergo.Merge(cfg, Default()); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new data directory.
func Default() *Config {
	return &Config{
		HomeCurrency: "CHF",
		Providers: map[string]ProviderConfig{
			"Revolut": {
				BankAccountName: "Checking",
				CashAccountName: "Cash",
			},
		},
		Correction: CorrectionConfig{
			Payee: "Automatic Balance Correction",
		},
		Mappings: MappingsConfig{
			Path: "rules/payee-mappings.yaml",
		},
		Git: GitConfig{
			AuthorName:  "Reconcile",
			AuthorEmail: "import@cleared.dev",
		},
	}
}

// Provider returns the settings for a provider, or zero settings when the
// provider is not configured.
func (c *Config) Provider(name string) ProviderConfig {
	return c.Providers[name]
}
