// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Constants for default paths and limits
const (
	DefaultConfigDir      = ".klocfix"
	DefaultConfigFileName = "config.yaml"
	DefaultModel          = "gpt-4o-mini"
	DefaultKnowledgeDir   = "knowledge_base"
	DefaultOutputDir      = "outputs"
	DefaultRuleLimit      = 10
	DefaultTimeoutSeconds = 120
)

// Config holds the application configuration. It is constructed once at
// startup and passed into every component; business logic never reads the
// environment directly.
type Config struct {
	Model      string `yaml:"model"`
	APIBaseURL string `yaml:"api_base_url"`
	// APIKey is sourced from the environment only and never written to disk
	APIKey string `yaml:"-"`

	KnowledgeDir string `yaml:"kb_dir"`
	OutputDir    string `yaml:"output_dir"`

	// RuleLimit bounds how many detected rule ids are carried forward per file
	RuleLimit int `yaml:"rule_limit"`
	// RuleFilter is an optional CEL expression over `rule` and `file`
	RuleFilter string `yaml:"rule_filter,omitempty"`

	// FixTool, when set, names an external editing tool invoked per rule.
	// When empty, fixes are applied via the oracle's full-file replacement.
	FixTool     string   `yaml:"fix_tool,omitempty"`
	FixToolArgs []string `yaml:"fix_tool_args,omitempty"`

	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// NewDefaultConfig creates a default configuration
func NewDefaultConfig() *Config {
	return &Config{
		Model:          DefaultModel,
		KnowledgeDir:   DefaultKnowledgeDir,
		OutputDir:      DefaultOutputDir,
		RuleLimit:      DefaultRuleLimit,
		TimeoutSeconds: DefaultTimeoutSeconds,
	}
}

// CallTimeout returns the per-external-call timeout
func (c *Config) CallTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultTimeoutSeconds * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// HasOracle reports whether oracle-backed operations are usable
func (c *Config) HasOracle() bool {
	return c.APIKey != ""
}

// RequireKnowledgeDir verifies the knowledge base directory exists.
// A missing knowledge base is a configuration error and fatal at startup.
func (c *Config) RequireKnowledgeDir() error {
	info, err := os.Stat(c.KnowledgeDir)
	if err != nil {
		return fmt.Errorf("knowledge base directory %q not found: %w", c.KnowledgeDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("knowledge base path %q is not a directory", c.KnowledgeDir)
	}
	return nil
}

// LoadConfig loads the application configuration. It starts with defaults,
// merges the project config file if present, then applies environment
// overrides.
func LoadConfig(projectDir string) (*Config, error) {
	return LoadConfigAt(projectDir, "")
}

// LoadConfigAt is LoadConfig with an explicit config file path. An empty
// path falls back to the project's default config location.
func LoadConfigAt(projectDir, configPath string) (*Config, error) {
	cfg := NewDefaultConfig()

	if configPath == "" {
		configPath = filepath.Join(projectDir, DefaultConfigDir, DefaultConfigFileName)
	}
	fileCfg, err := LoadConfigFile(configPath)
	if err == nil {
		mergeConfigs(cfg, fileCfg)
	} else if !os.IsNotExist(err) {
		fmt.Printf("Warning: could not load config file '%s': %v\n", configPath, err)
	}

	applyEnv(cfg)

	if cfg.APIKey == "" {
		fmt.Println("[warn] API_KEY not set. Oracle-backed operations will be unavailable until provided.")
	}

	return cfg, nil
}

// LoadConfigFile loads a configuration from a specific file path
func LoadConfigFile(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path cannot be empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// mergeConfigs merges source config into target config.
// Only non-zero values from source override target.
func mergeConfigs(target, source *Config) {
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.APIBaseURL != "" {
		target.APIBaseURL = source.APIBaseURL
	}
	if source.KnowledgeDir != "" {
		target.KnowledgeDir = source.KnowledgeDir
	}
	if source.OutputDir != "" {
		target.OutputDir = source.OutputDir
	}
	if source.RuleLimit > 0 {
		target.RuleLimit = source.RuleLimit
	}
	if source.RuleFilter != "" {
		target.RuleFilter = source.RuleFilter
	}
	if source.FixTool != "" {
		target.FixTool = source.FixTool
		target.FixToolArgs = source.FixToolArgs
	}
	if source.TimeoutSeconds > 0 {
		target.TimeoutSeconds = source.TimeoutSeconds
	}
}

// applyEnv applies environment variable overrides. API_KEY takes precedence
// over OPENAI_API_KEY for compatibility with provider tooling.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MODEL_NAME"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("KB_DIR"); v != "" {
		cfg.KnowledgeDir = v
	}
	if v := os.Getenv("RULE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RuleLimit = n
		} else {
			fmt.Printf("Warning: ignoring invalid RULE_LIMIT value '%s'\n", v)
		}
	}
}

// SaveConfig saves the configuration to the project config directory
func SaveConfig(cfg *Config, dir string) error {
	configDir := filepath.Join(dir, DefaultConfigDir)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("error creating config directory '%s': %w", configDir, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	configPath := filepath.Join(configDir, DefaultConfigFileName)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file '%s': %w", configPath, err)
	}

	return nil
}
