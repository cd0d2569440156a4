package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Config models dmscripts.yml.
type Config struct {
	Stages  map[string]Stage `yaml:"stages"`
	Logging struct {
		Level           string `yaml:"level"`
		ValidationLevel string `yaml:"validation_level"`
	} `yaml:"logging"`
	UserExport struct {
		Workers int `yaml:"workers"`
	} `yaml:"user_export"`
	BadWords struct {
		Keys []string `yaml:"keys"`
	} `yaml:"bad_words"`
}

// Stage points at one Data API deployment.
type Stage struct {
	APIURL     string `yaml:"api_url"`
	TokenEnv   string `yaml:"token_env"`
	Production bool   `yaml:"production"`
}

// stageOverride holds only the stage fields a file sets, so a partial stage
// keeps the built-in values for the rest.
type stageOverride struct {
	APIURL     *string `yaml:"api_url"`
	TokenEnv   *string `yaml:"token_env"`
	Production *bool   `yaml:"production"`
}

func (o stageOverride) apply(st Stage) Stage {
	if o.APIURL != nil {
		st.APIURL = *o.APIURL
	}
	if o.TokenEnv != nil {
		st.TokenEnv = *o.TokenEnv
	}
	if o.Production != nil {
		st.Production = *o.Production
	}
	return st
}

// Load reads config from the workspace, falling back to defaults when the file is absent.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Stages) == 0 {
		return fmt.Errorf("config.stages is required")
	}
	for name, st := range c.Stages {
		if name == "" {
			return fmt.Errorf("config.stages contains empty stage name")
		}
		if st.APIURL == "" {
			return fmt.Errorf("stage %s has no api_url", name)
		}
		u, err := url.Parse(st.APIURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("stage %s has invalid api_url %q", name, st.APIURL)
		}
	}
	if c.UserExport.Workers <= 0 {
		return fmt.Errorf("config.user_export.workers must be positive")
	}
	for _, k := range c.BadWords.Keys {
		if k == "" {
			return fmt.Errorf("config.bad_words.keys contains empty key")
		}
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

// StageNames lists configured stages in name order.
func (c *Config) StageNames() []string {
	names := make([]string, 0, len(c.Stages))
	for n := range c.Stages {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "dmscripts.yml")
}

// Default returns the built-in config.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing sections
// take their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	override := Config{}
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	var stages struct {
		Stages map[string]stageOverride `yaml:"stages"`
	}
	if err := yaml.Unmarshal(data, &stages); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	for name, o := range stages.Stages {
		cfg.Stages[name] = o.apply(cfg.Stages[name])
	}
	if override.Logging.Level != "" {
		cfg.Logging.Level = override.Logging.Level
	}
	if override.Logging.ValidationLevel != "" {
		cfg.Logging.ValidationLevel = override.Logging.ValidationLevel
	}
	if override.UserExport.Workers != 0 {
		cfg.UserExport.Workers = override.UserExport.Workers
	}
	if len(override.BadWords.Keys) > 0 {
		cfg.BadWords.Keys = override.BadWords.Keys
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

const defaultTemplate = `stages:
  local:
    api_url: http://localhost:5000
    token_env: DM_DATA_API_TOKEN_LOCAL
  preview:
    api_url: https://api.preview.marketplace.team
    token_env: DM_DATA_API_TOKEN_PREVIEW
  staging:
    api_url: https://api.staging.marketplace.team
    token_env: DM_DATA_API_TOKEN_STAGING
  production:
    api_url: https://api.digitalmarketplace.service.gov.uk
    token_env: DM_DATA_API_TOKEN_PRODUCTION
    production: true

logging:
  level: info
  validation_level: info

user_export:
  workers: 10

bad_words:
  keys:
    - apiType
    - deprovisioningTime
    - provisioningTime
    - serviceBenefits
    - serviceFeatures
    - serviceName
    - serviceSummary
    - supportAvailability
    - supportResponseTime
    - vendorCertifications
`
