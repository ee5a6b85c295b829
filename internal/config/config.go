package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// EnvPrefix prefixes environment overrides. Sections and keys are separated
// by a double underscore: RELOCSTAT_ANALYSIS__MIN_SEASONS.
const EnvPrefix = "RELOCSTAT_"

type Config struct {
	Input    Input    `yaml:"input"`
	Analysis Analysis `yaml:"analysis"`
	Output   Output   `yaml:"output"`
	Metrics  Metrics  `yaml:"metrics"`
	Logging  Logging  `yaml:"logging"`
}

type Input struct {
	Seasons  string `yaml:"seasons"`
	Lineages string `yaml:"lineages"`
}

type Analysis struct {
	ModernEraStart int    `yaml:"modern_era_start"`
	MinSeasons     int    `yaml:"min_seasons"`
	Test           string `yaml:"test"`
	Workers        int    `yaml:"workers"`
}

type Output struct {
	Dir        string `yaml:"dir"`
	DataDir    string `yaml:"data_dir"`
	HTMLReport bool   `yaml:"html_report"`
	SQLite     bool   `yaml:"sqlite"`
}

type Metrics struct {
	Textfile string `yaml:"textfile"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for relocstat.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "relocstat")
}

// DataDir returns the XDG data directory for relocstat.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "relocstat")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/relocstat/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'relocstat init' to create a default config",
		xdgConfig,
	)
}

// Load reads a config YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration with environment overrides.
func Default() (*Config, error) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Input: Input{Seasons: "Teams.csv"},
		Analysis: Analysis{
			ModernEraStart: 1901,
			MinSeasons:     10,
			Test:           "welch",
			Workers:        4,
		},
		Output: Output{
			Dir:        "relocstat-output",
			HTMLReport: true,
			SQLite:     true,
		},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// applyEnv overlays RELOCSTAT_* variables onto cfg.
func applyEnv(cfg *Config) error {
	k := koanf.New(".")
	provider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ToLower(strings.ReplaceAll(s, "__", "."))
	})
	if err := k.Load(provider, nil); err != nil {
		return fmt.Errorf("loading environment: %w", err)
	}
	if len(k.Keys()) == 0 {
		return nil
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return fmt.Errorf("applying environment overrides: %w", err)
	}
	return nil
}

// Validate rejects settings the analysis cannot run with.
func (c *Config) Validate() error {
	a := c.Analysis
	if a.MinSeasons < 2 {
		return fmt.Errorf("analysis.min_seasons must be at least 2, got %d", a.MinSeasons)
	}
	if a.ModernEraStart <= 0 {
		return fmt.Errorf("analysis.modern_era_start must be positive, got %d", a.ModernEraStart)
	}
	if a.Workers < 1 {
		return fmt.Errorf("analysis.workers must be at least 1, got %d", a.Workers)
	}
	switch strings.ToLower(a.Test) {
	case "welch", "student":
	default:
		return fmt.Errorf("analysis.test must be welch or student, got %q", a.Test)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel parses logging.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return lvl, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
