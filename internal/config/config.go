package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"callfleet/internal/domain"
)

const FileName = "callfleet.yml"

// Config models callfleet.yml.
type Config struct {
	LogLevel  string                `yaml:"log_level" json:"log_level"`
	Catalog   []domain.CatalogEntry `yaml:"catalog" json:"catalog"`
	Campaigns []domain.Campaign     `yaml:"campaigns" json:"campaigns"`
	Payments  struct {
		DelayMillis int    `yaml:"delay_ms" json:"delay_ms"`
		Currency    string `yaml:"currency" json:"currency"`
	} `yaml:"payments" json:"payments"`
	Auth struct {
		LogoutURL       string `yaml:"logout_url" json:"logout_url,omitempty"`
		TokenTTLMinutes int    `yaml:"token_ttl_minutes" json:"token_ttl_minutes"`
	} `yaml:"auth" json:"auth"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	Secret         string   `yaml:"secret" json:"-"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
}

// PaymentDelay is the simulated processing time of a purchase.
func (c *Config) PaymentDelay() time.Duration {
	return time.Duration(c.Payments.DelayMillis) * time.Millisecond
}

// TokenTTL is the lifetime of tokens minted by `cf login --mint`.
func (c *Config) TokenTTL() time.Duration {
	if c.Auth.TokenTTLMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for i, entry := range c.Catalog {
		num := strings.TrimSpace(entry.Number)
		if num == "" {
			return fmt.Errorf("catalog[%d].number is required", i)
		}
		if seen[num] {
			return fmt.Errorf("catalog number %s listed twice", num)
		}
		seen[num] = true
		if entry.Price < 0 {
			return fmt.Errorf("catalog number %s has negative price", num)
		}
	}
	ids := map[string]bool{}
	for i, camp := range c.Campaigns {
		if camp.ID == "" {
			return fmt.Errorf("campaigns[%d].id is required", i)
		}
		if ids[camp.ID] {
			return fmt.Errorf("campaign id %s listed twice", camp.ID)
		}
		ids[camp.ID] = true
		if camp.Progress < 0 || camp.Progress > 100 {
			return fmt.Errorf("campaign %s progress must be within 0-100", camp.ID)
		}
	}
	if c.Payments.DelayMillis < 0 {
		return fmt.Errorf("payments.delay_ms must not be negative")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with cf config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault returns the workspace config, or the defaults when the file
// does not exist.
func LoadOrDefault(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `log_level: info

catalog:
  - number: "+1 (555) 123-4567"
    country: US
    type: local
    price: 2.99
  - number: "+1 (555) 234-5678"
    country: US
    type: local
    price: 2.99
  - number: "+1 (800) 555-0199"
    country: US
    type: toll-free
    price: 4.99
  - number: "+44 20 7946 0958"
    country: GB
    type: local
    price: 3.49
  - number: "+49 30 901820"
    country: DE
    type: local
    price: 3.49
  - number: "+33 1 70 36 39 50"
    country: FR
    type: local
    price: 3.49

campaigns:
  - id: camp-1
    name: Q4 Outreach
    status: active
    progress: 65
  - id: camp-2
    name: Product Launch
    status: active
    progress: 40
  - id: camp-3
    name: Customer Survey
    status: completed
    progress: 100

payments:
  delay_ms: 0
  currency: USD

auth:
  logout_url: ""
  token_ttl_minutes: 1440
`
