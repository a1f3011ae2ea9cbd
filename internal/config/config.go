package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models opsight.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret             string `yaml:"jwt_secret"`
		SessionTTLHours       int    `yaml:"session_ttl_hours"`
		AllowLegacyUserHeader bool   `yaml:"allow_legacy_user_header"`
	} `yaml:"auth"`
	Identity struct {
		Catalog map[string]struct {
			Description string `yaml:"description"`
		} `yaml:"catalog"`
	} `yaml:"identity"`
	Reports struct {
		MinScore     int     `yaml:"min_score"`
		MaxScore     int     `yaml:"max_score"`
		MaxWorkHours float64 `yaml:"max_work_hours"`
	} `yaml:"reports"`
	Webhooks []Webhook `yaml:"webhooks"`
}

type Webhook struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        bool     `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run opsight init to generate one", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Auth.SessionTTLHours <= 0 {
		return fmt.Errorf("config.auth.session_ttl_hours must be positive")
	}
	if c.Reports.MinScore < 0 || c.Reports.MaxScore < c.Reports.MinScore {
		return fmt.Errorf("config.reports score bounds are inverted")
	}
	if c.Reports.MaxWorkHours < 0 || c.Reports.MaxWorkHours > 24 {
		return fmt.Errorf("config.reports.max_work_hours must be within 0..24")
	}
	for class := range c.Identity.Catalog {
		if class == "" {
			return fmt.Errorf("config.identity.catalog contains empty class code")
		}
		if class != strings.ToUpper(class) {
			return fmt.Errorf("identity class %s must be upper case", class)
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d has negative timeout", i)
		}
	}
	return nil
}

// KnownIdentityClass reports whether the class is declared in the catalog.
// An empty catalog accepts any class.
func (c *Config) KnownIdentityClass(class string) bool {
	if len(c.Identity.Catalog) == 0 {
		return true
	}
	_, ok := c.Identity.Catalog[class]
	return ok
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "opsight.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
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

const defaultTemplate = `server:
  addr: 127.0.0.1:8787
  base_path: /v1

auth:
  jwt_secret: ""
  session_ttl_hours: 72
  allow_legacy_user_header: false

identity:
  catalog:
    CC:
      description: "Customer care"
    SS:
      description: "Sales support"
    LP:
      description: "Logistics and planning"
    SA:
      description: "System administration"

reports:
  min_score: 1
  max_score: 5
  max_work_hours: 24

webhooks: []
`
