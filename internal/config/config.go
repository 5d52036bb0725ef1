// Package config loads scripthost's runtime settings from environment
// variables and an optional config file via viper, following the
// mapstructure-tagged section style used for richer services in this
// codebase, with one small section each for the server, execution and
// logging settings.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig controls the HTTP/WebSocket listener.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// ExecutionConfig controls the execution supervisor's policy knobs.
type ExecutionConfig struct {
	// CleanupDelay is how long a finished execution's record (and scratch
	// directories) are retained before automatic removal.
	CleanupDelay time.Duration `mapstructure:"cleanup_delay"`
	// ReadChunkSize bounds how many bytes are read from a child's pipe per
	// syscall before being handed to the line demultiplexer.
	ReadChunkSize int `mapstructure:"read_chunk_size"`
}

// LoggingConfig controls the process-wide logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the fully resolved set of scripthost settings. ScriptDir is not
// part of the mapstructure-bound section tree: it is always the service's
// one required positional CLI argument, plugged in by cmd/scripthost after
// Load returns.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	ScriptDir string          `mapstructure:"-"`
}

const envPrefix = "SCRIPTHOST"

// Load reads configuration from (in ascending priority) built-in defaults,
// an optional config file at configPath, and SCRIPTHOST_*-prefixed
// environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("execution.cleanup_delay", 24*time.Hour)
	v.SetDefault("execution.read_chunk_size", 4096)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}
