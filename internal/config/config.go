package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const appName = "dmnexplorer"

type Config struct {
	Theme          string          `yaml:"theme"`
	LogLevel       string          `yaml:"log_level"`
	Workspace      string          `yaml:"workspace"`
	DecisionSuffix string          `yaml:"decision_suffix"`
	FixtureSuffix  string          `yaml:"fixture_suffix"`
	Validator      ValidatorConfig `yaml:"validator"`
	Output         OutputConfig    `yaml:"output"`
	Watch          WatchConfig     `yaml:"watch"`
	Web            WebConfig       `yaml:"web"`
}

// ValidatorConfig addresses the local decision validation service.
type ValidatorConfig struct {
	Host                string        `yaml:"host"`
	Port                int           `yaml:"port"`
	ValidatePath        string        `yaml:"validate_path"`
	ValidateContentType string        `yaml:"validate_content_type"`
	EvaluatePath        string        `yaml:"evaluate_path"`
	EvaluateContentType string        `yaml:"evaluate_content_type"`
	Timeout             time.Duration `yaml:"timeout"` // 0 means no timeout
}

type OutputConfig struct {
	MaxSurfaces int `yaml:"max_surfaces"`
}

type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"` // 0 picks an ephemeral port
}

func DefaultConfig() Config {
	return Config{
		Theme:          "mocha",
		LogLevel:       "info",
		DecisionSuffix: ".dmn",
		FixtureSuffix:  "-tests",
		Validator: ValidatorConfig{
			Host:                "127.0.0.1",
			Port:                8080,
			ValidatePath:        "/jitdmn/validate",
			ValidateContentType: "application/xml",
			EvaluatePath:        "/jitdmn",
			EvaluateContentType: "application/json",
		},
		Output: OutputConfig{MaxSurfaces: 16},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 250 * time.Millisecond,
		},
		Web: WebConfig{
			Enabled: true,
			Bind:    "127.0.0.1",
		},
	}
}

func Load() (Config, error) {
	return LoadFrom(getConfigPath())
}

// LoadFromDir loads config.yaml from the given directory.
func LoadFromDir(dir string) (Config, error) {
	return LoadFrom(filepath.Join(dir, "config.yaml"))
}

func LoadFrom(configPath string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), err
	}

	cfg.fillDefaults()
	return cfg, nil
}

// fillDefaults restores defaults for keys a config file set to empty values.
func (c *Config) fillDefaults() {
	def := DefaultConfig()
	if c.Theme == "" {
		c.Theme = def.Theme
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.DecisionSuffix == "" {
		c.DecisionSuffix = def.DecisionSuffix
	}
	if c.FixtureSuffix == "" {
		c.FixtureSuffix = def.FixtureSuffix
	}
	if c.Validator.Host == "" {
		c.Validator.Host = def.Validator.Host
	}
	if c.Validator.Port == 0 {
		c.Validator.Port = def.Validator.Port
	}
	if c.Validator.ValidatePath == "" {
		c.Validator.ValidatePath = def.Validator.ValidatePath
	}
	if c.Validator.ValidateContentType == "" {
		c.Validator.ValidateContentType = def.Validator.ValidateContentType
	}
	if c.Validator.EvaluatePath == "" {
		c.Validator.EvaluatePath = def.Validator.EvaluatePath
	}
	if c.Validator.EvaluateContentType == "" {
		c.Validator.EvaluateContentType = def.Validator.EvaluateContentType
	}
	if c.Output.MaxSurfaces <= 0 {
		c.Output.MaxSurfaces = def.Output.MaxSurfaces
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = def.Watch.Debounce
	}
	if c.Web.Bind == "" {
		c.Web.Bind = def.Web.Bind
	}
}

// Environment variables that override file settings.
const (
	EnvValidatorHost = "DMNX_VALIDATOR_HOST"
	EnvValidatorPort = "DMNX_VALIDATOR_PORT"
	EnvLogLevel      = "DMNX_LOG_LEVEL"
	EnvWorkspace     = "DMNX_WORKSPACE"
)

// ApplyEnv loads a .env file from dir (if present) and then applies the
// DMNX_* overrides from the process environment. Variables already set in
// the environment win over the .env file.
func (c *Config) ApplyEnv(dir string) error {
	if dir != "" {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return fmt.Errorf("load %s: %w", envPath, err)
			}
		}
	}

	if v := strings.TrimSpace(os.Getenv(EnvValidatorHost)); v != "" {
		c.Validator.Host = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvValidatorPort)); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvValidatorPort, v)
		}
		c.Validator.Port = port
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvWorkspace)); v != "" {
		c.Workspace = v
	}
	return nil
}

// Validate checks settings that would otherwise fail late at request time.
func (c *Config) Validate() error {
	if c.DecisionSuffix == "" {
		return fmt.Errorf("decision_suffix must not be empty")
	}
	if c.FixtureSuffix == "" {
		return fmt.Errorf("fixture_suffix must not be empty")
	}
	if c.Validator.Port < 1 || c.Validator.Port > 65535 {
		return fmt.Errorf("validator.port %d out of range", c.Validator.Port)
	}
	if !strings.HasPrefix(c.Validator.ValidatePath, "/") {
		return fmt.Errorf("validator.validate_path %q must start with /", c.Validator.ValidatePath)
	}
	if !strings.HasPrefix(c.Validator.EvaluatePath, "/") {
		return fmt.Errorf("validator.evaluate_path %q must start with /", c.Validator.EvaluatePath)
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port %d out of range", c.Web.Port)
	}
	return nil
}

// ResolveWorkspace returns the absolute workspace root. An empty setting
// falls back to the current working directory.
func (c *Config) ResolveWorkspace() (string, error) {
	ws := c.Workspace
	if ws == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		ws = wd
	}
	if strings.HasPrefix(ws, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		ws = filepath.Join(home, ws[2:])
	}
	return filepath.Abs(ws)
}

// ConfigDir returns the default configuration directory.
func ConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, appName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", appName)
	}

	return filepath.Join(home, ".config", appName)
}

func getConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
