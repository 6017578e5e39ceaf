package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	dirName    = ".skagent"
	fileName   = "skagent.json"
	envPrefix  = "SKAGENT"
	sqliteFile = "memory.db"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
	home       func() (string, error)
}

// NewLoader creates a loader. An empty path uses ~/.skagent/skagent.json.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath, home: os.UserHomeDir}
}

// Path returns the config file path
func (l *Loader) Path() (string, error) {
	if l.configPath != "" {
		return l.configPath, nil
	}
	home, err := l.home()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, dirName, fileName), nil
}

// Load reads defaults, then the config file when it exists, then SKAGENT_*
// environment variables. A missing default file is not an error; a missing
// explicit file is.
func (l *Loader) Load() (*Config, error) {
	path, err := l.Path()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults, err := toMap(DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := v.MergeConfigMap(defaults); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if _, statErr := os.Stat(path); statErr == nil {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if l.configPath != "" || !errors.Is(statErr, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file: %w", statErr)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.applyDerived(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDerived fills values that depend on other values
func (l *Loader) applyDerived(cfg *Config) error {
	if cfg.DataDir == "" {
		home, err := l.home()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, dirName)
	}
	if cfg.Memory.Backend == BackendSQLite && cfg.Memory.Path == "" {
		cfg.Memory.Path = filepath.Join(cfg.DataDir, sqliteFile)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = providerKeyFromEnv(cfg.LLM.Provider)
	}
	return nil
}

// providerKeyFromEnv reads the conventional variable of each provider SDK
func providerKeyFromEnv(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return ""
}

// Save writes cfg as indented JSON, creating the directory when needed
func (l *Loader) Save(cfg *Config) error {
	path, err := l.Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
