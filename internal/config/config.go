package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models swb.yml.
type Config struct {
	Project struct {
		ID string `yaml:"id"`
	} `yaml:"project"`
	Detector DetectorConfig  `yaml:"detector"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
	Auth     struct {
		JWTSecret string `yaml:"jwt_secret,omitempty"`
	} `yaml:"auth"`
}

// DetectorConfig controls the information-request classifier.
type DetectorConfig struct {
	// Provider selects the classification strategy: "rules" or "model".
	Provider string `yaml:"provider"`
	// Model names the language model when provider=model.
	Model string `yaml:"model,omitempty"`
	// Threshold is the minimum confidence to emit a positive classification.
	Threshold float64 `yaml:"threshold"`
	// DefaultPriority is used when the classifier signal is inconclusive.
	DefaultPriority string `yaml:"default_priority"`
}

// WebhookConfig describes a notification sink for project events.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
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

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	switch c.Detector.Provider {
	case "rules", "model":
	default:
		return fmt.Errorf("config.detector.provider must be 'rules' or 'model'")
	}
	if c.Detector.Threshold < 0 || c.Detector.Threshold > 1 {
		return fmt.Errorf("config.detector.threshold must be in [0,1]")
	}
	switch c.Detector.DefaultPriority {
	case "low", "medium", "high", "critical":
	default:
		return fmt.Errorf("config.detector.default_priority must be a priority level")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "swb.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID)
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, projectID))).Decode(&cfg)
	cfg.Project.ID = projectID
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

const defaultTemplate = `project:
  id: %s

detector:
  provider: rules
  threshold: 0.8
  default_priority: medium
`
