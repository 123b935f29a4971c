package strrefine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config drives the refinement loop.
type Config struct {
	// MaxStringLength bounds the length of every string. Quantified
	// constraints are expanded up to this length.
	MaxStringLength int64 `yaml:"max_string_length"`

	// LeftPropagate reads array update chains with the interval encoding.
	LeftPropagate bool `yaml:"left_propagate"`

	// DependencyGraphPath, when set, receives the dependency graph in the
	// dot format before constraints are generated.
	DependencyGraphPath string `yaml:"dependency_graph_path"`

	LogLevel string `yaml:"log_level"`

	Logger *slog.Logger `yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		MaxStringLength: 64,
		LogLevel:        "info",
	}
}

var ErrInvalidConfig = errors.New("invalid config")

func (c *Config) Validate() error {
	if c.MaxStringLength <= 0 {
		return fmt.Errorf("%w: max_string_length must be positive, got %d", ErrInvalidConfig, c.MaxStringLength)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("%w: log_level: %v", ErrInvalidConfig, err)
	}
	return level, nil
}

// LoadConfig reads the YAML file at path on top of the defaults. Environment
// variables take precedence over the file. An empty path only applies the
// defaults and the environment.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config, fmt.Errorf("load config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return config, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := loadConfigFromEnv(&config); err != nil {
		return config, err
	}

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

func loadConfigFromEnv(config *Config) error {
	if v := os.Getenv("STRREFINE_MAX_STRING_LENGTH"); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: STRREFINE_MAX_STRING_LENGTH: %v", ErrInvalidConfig, err)
		}
		config.MaxStringLength = i
	}
	if v := os.Getenv("STRREFINE_LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	return nil
}
