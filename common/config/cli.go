package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// CLIConfig holds airctl settings.
type CLIConfig struct {
	Addr    string        `yaml:"addr" mapstructure:"addr"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Output  string        `yaml:"output" mapstructure:"output"`
	path    string
}

// DefaultCLI returns a CLIConfig with default values
func DefaultCLI() *CLIConfig {
	return &CLIConfig{
		Addr:    "127.0.0.1:9000",
		Timeout: 3 * time.Second,
		Output:  "table",
	}
}

// LoadCLI loads configuration for airctl.
// Uses $HOME/.airctl as the default AIRHAWK_CONFIG_DIR if not set.
func LoadCLI() (*CLIConfig, error) {
	v := viper.New()

	def := DefaultCLI()
	v.SetDefault("addr", def.Addr)
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("output", def.Output)

	configDir := os.Getenv(EnvConfigDir)
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine home directory: %w", err)
		}
		configDir = filepath.Join(home, ".airctl")
	}

	configPath := filepath.Join(configDir, "config.yaml")
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Environment variables override with AIRCTL prefix
	v.SetEnvPrefix("AIRCTL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	_ = v.ReadInConfig() // Ignore errors - file may not exist yet

	cfg := &CLIConfig{path: configPath}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// Path returns the file Save writes to.
func (c *CLIConfig) Path() string {
	return c.path
}

// Save writes the CLI config to disk
func (c *CLIConfig) Save() error {
	if c.path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		c.path = filepath.Join(home, ".airctl", "config.yaml")
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0600)
}
