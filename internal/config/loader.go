package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := getConfigPath()
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			// Config file is optional, don't fail if it doesn't exist
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	loadFromEnv(cfg)

	return cfg, nil
}

// LoadFrom loads configuration from an explicit file, still applying
// environment overrides on top. Unlike Load, a missing file is an error.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := loadFromFile(cfg, path); err != nil {
		return nil, err
	}
	loadFromEnv(cfg)
	return cfg, nil
}

// getConfigPath returns the path to the config file.
func getConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "godra", "config.yaml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	// macOS installs favor Library/Application Support/godra
	if runtime.GOOS == "darwin" {
		appSupport := filepath.Join(homeDir, "Library", "Application Support", "godra", "config.yaml")
		if _, err := os.Stat(appSupport); err == nil {
			return appSupport
		}
		dotConfig := filepath.Join(homeDir, ".config", "godra", "config.yaml")
		if _, err := os.Stat(dotConfig); err == nil {
			return dotConfig
		}
		return appSupport
	}

	return filepath.Join(homeDir, ".config", "godra", "config.yaml")
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Expand environment variables in the config file
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables. The variable
// names match the ones the bridge has always honored.
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		cfg.Ollama.BaseURL = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		cfg.Ollama.Model = v
	}
	if v := os.Getenv("OLLAMA_SUMMARIZATION_MODEL"); v != "" {
		cfg.Ollama.SummarizationModel = v
	}
	if v := os.Getenv("OLLAMA_API_KEY"); v != "" {
		cfg.Ollama.APIKey = v
	}
	if v := os.Getenv("OLLAMA_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Ollama.HTTPTimeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("GHIDRA_MCP_URL"); v != "" {
		cfg.Ghidra.BaseURL = v
	}
	if v := os.Getenv("GHIDRA_MCP_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Ghidra.HTTPTimeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("GHIDRA_MOCK_MODE"); v != "" {
		if mock, err := strconv.ParseBool(v); err == nil {
			cfg.Ghidra.MockMode = mock
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("GODRA_KNOWLEDGE_DIR"); v != "" {
		cfg.Knowledge.Dir = v
	}
	if v := os.Getenv("GODRA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Error types for configuration validation.
type ConfigError string

func (e ConfigError) Error() string {
	return string(e)
}

const (
	ErrMissingOllamaURL ConfigError = "missing completion service URL: set ollama.base_url or OLLAMA_URL"
	ErrMissingGhidraURL ConfigError = "missing tool provider URL: set ghidra.base_url or GHIDRA_MCP_URL (or enable mock mode)"
)

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Ollama.BaseURL == "" {
		return ErrMissingOllamaURL
	}
	if c.Ghidra.BaseURL == "" && !c.Ghidra.MockMode {
		return ErrMissingGhidraURL
	}
	if c.Loop.MaxIterations <= 0 {
		return ConfigError("loop.max_iterations must be positive")
	}
	if c.Budget.TokenLimit <= 0 {
		return ConfigError("budget.token_limit must be positive")
	}
	if c.Budget.TopK <= 0 {
		return ConfigError("budget.top_k must be positive")
	}
	for _, share := range []float64{c.Budget.PlanningShare, c.Budget.ExecutionShare, c.Budget.AnalysisShare, c.Budget.DefaultShare} {
		if share < 0 || share > 1 {
			return ConfigError("budget phase shares must be within [0, 1]")
		}
	}
	return nil
}

// GetConfigPath returns the path to the config file (exported for external use).
func GetConfigPath() string {
	return getConfigPath()
}

// ConfigDir returns the directory holding the config file, logs, caches
// and session storage.
func ConfigDir() string {
	p := getConfigPath()
	if p == "" {
		return ""
	}
	return filepath.Dir(p)
}

// SessionDir returns the directory session logs are persisted under.
func (c *Config) SessionDir() string {
	if c.Session.Dir != "" {
		return c.Session.Dir
	}
	return filepath.Join(ConfigDir(), "sessions")
}

// Save saves the configuration to the config file.
func (c *Config) Save() error {
	configPath := getConfigPath()
	if configPath == "" {
		return fmt.Errorf("could not determine config path")
	}

	// 0700: config may hold API keys
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to temp file then rename for atomicity
	tmpPath := configPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		// Rename can fail across filesystems; fall back to direct write
		if err := os.WriteFile(configPath, data, 0600); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}
