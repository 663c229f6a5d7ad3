package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tootline/internal/composer"
)

const FileName = "tootline.yml"

// Storage backends.
const (
	StorageSQLite = "sqlite"
	StorageFile   = "file"
	StorageMemory = "memory"
)

// Config models tootline.yml.
type Config struct {
	App struct {
		Name            string   `yaml:"name"`
		Website         string   `yaml:"website"`
		RedirectURI     string   `yaml:"redirect_uri"`
		Scopes          []string `yaml:"scopes"`
		VerifyOnRestore bool     `yaml:"verify_on_restore"`
	} `yaml:"app"`
	HTTP struct {
		Timeout   string `yaml:"timeout"`
		UserAgent string `yaml:"user_agent"`
	} `yaml:"http"`
	Composer struct {
		CharacterLimit int   `yaml:"character_limit"`
		EnforceLimit   *bool `yaml:"enforce_limit"`
		URLWeight      int   `yaml:"url_weight"`
	} `yaml:"composer"`
	Storage struct {
		Backend       string `yaml:"backend"`
		PassphraseEnv string `yaml:"passphrase_env"`
		File          string `yaml:"file"`
	} `yaml:"storage"`
	Server struct {
		Addr         string `yaml:"addr"`
		JWTSecretEnv string `yaml:"jwt_secret_env"`
	} `yaml:"server"`
	RejectedDomains     []string        `yaml:"rejected_domains"`
	RejectedDomainsFile string          `yaml:"rejected_domains_file"`
	Webhooks            []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig receives state-machine transitions as JSON POSTs.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with tl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.App.Name) == "" {
		return fmt.Errorf("config.app.name is required")
	}
	if c.App.RedirectURI == "" {
		return fmt.Errorf("config.app.redirect_uri is required")
	}
	for _, s := range c.App.Scopes {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("config.app.scopes contains an empty scope")
		}
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if c.Composer.CharacterLimit <= 0 {
		return fmt.Errorf("config.composer.character_limit must be positive")
	}
	if c.Composer.URLWeight != 0 && c.Composer.URLWeight != composer.URLWeight {
		return fmt.Errorf("config.composer.url_weight must be %d", composer.URLWeight)
	}
	switch c.Storage.Backend {
	case StorageSQLite, StorageMemory:
	case StorageFile:
		if c.Storage.PassphraseEnv == "" {
			return fmt.Errorf("config.storage.passphrase_env is required for the file backend")
		}
	default:
		return fmt.Errorf("config.storage.backend must be one of sqlite, file, memory")
	}
	for _, d := range c.RejectedDomains {
		if strings.TrimSpace(d) == "" {
			return fmt.Errorf("config.rejected_domains contains an empty domain")
		}
	}
	for i, hook := range c.Webhooks {
		if !strings.HasPrefix(hook.URL, "http://") && !strings.HasPrefix(hook.URL, "https://") {
			return fmt.Errorf("config.webhooks[%d].url must be an http(s) url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Timeout parses http.timeout.
func (c *Config) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.HTTP.Timeout)
	if err != nil {
		return 0, fmt.Errorf("config.http.timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config.http.timeout must be positive")
	}
	return d, nil
}

// Policy is the composer character policy.
func (c *Config) Policy() composer.Policy {
	enforce := true
	if c.Composer.EnforceLimit != nil {
		enforce = *c.Composer.EnforceLimit
	}
	return composer.Policy{Limit: c.Composer.CharacterLimit, Enforce: enforce}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault(appName string) string {
	return fmt.Sprintf(defaultTemplate, appName)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(""), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default(appName string) *Config {
	if appName == "" {
		appName = "tootline"
	}
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(appName))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing
// sections take their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default("")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `app:
  name: %s
  website: ""
  redirect_uri: urn:ietf:wg:oauth:2.0:oob
  scopes: [read, write, follow]
  verify_on_restore: false

http:
  timeout: 15s
  user_agent: tootline/0.1

composer:
  character_limit: 500
  enforce_limit: true
  url_weight: 23

storage:
  backend: sqlite
  passphrase_env: TOOTLINE_PASSPHRASE
  file: .tootline/credentials.bin

server:
  addr: 127.0.0.1:7878
  jwt_secret_env: TOOTLINE_JWT_SECRET

rejected_domains: []
rejected_domains_file: ""

webhooks: []
`
