// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Package config loads the settings of the xdr2json command.
//
// Configuration sources (in order of precedence):
//  1. Command line flags
//  2. Environment variables (XDR2JSON_*, e.g. XDR2JSON_DECODE_MAX_DEPTH)
//  3. Configuration file (YAML)
//  4. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"go.e43.eu/xdr2json"
	"go.e43.eu/xdr2json/internal/logger"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "XDR2JSON"

// Config is the complete configuration of the command
type Config struct {
	Decode  DecodeConfig  `mapstructure:"decode" yaml:"decode"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Schema  SchemaConfig  `mapstructure:"schema" yaml:"schema"`
}

// DecodeConfig holds the decoder limits and strictness switches
type DecodeConfig struct {
	// Maximum nesting depth
	// Default: 500
	MaxDepth int `mapstructure:"max_depth" validate:"gte=1" yaml:"max_depth"`

	// Largest accepted input in bytes; negative disables the limit
	// Default: 32MiB
	MaxInputLen int `mapstructure:"max_input_len" validate:"ne=0" yaml:"max_input_len"`

	// Non-zero padding is an error rather than a warning
	StrictPadding bool `mapstructure:"strict_padding" yaml:"strict_padding"`

	// Bytes after the value are an error rather than ignored
	RejectTrailing bool `mapstructure:"reject_trailing" yaml:"reject_trailing"`

	// Conversions run at once when several inputs are given
	// Default: number of inputs (unbounded)
	Parallelism int `mapstructure:"parallelism" validate:"gte=0" yaml:"parallelism"`
}

// LoggingConfig controls log output, which always goes to stderr
type LoggingConfig struct {
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR" yaml:"level"`

	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
}

// SchemaConfig lists the YAML schema catalogs to load
type SchemaConfig struct {
	Files []string `mapstructure:"files" validate:"dive,required" yaml:"files"`
}

// Load reads the configuration from configPath (if not empty) and the
// environment, applies defaults and validates the result. A missing
// configuration file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	// Example: XDR2JSON_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only applies to keys viper already knows about
	for _, key := range []string{
		"decode.max_depth",
		"decode.max_input_len",
		"decode.strict_padding",
		"decode.reject_trailing",
		"decode.parallelism",
		"logging.level",
		"logging.format",
		"schema.files",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(configDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reports whether a configuration file was read
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDir is $XDG_CONFIG_HOME/xdr2json, or ~/.config/xdr2json
func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "xdr2json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "xdr2json")
}

// ApplyDefaults replaces zero values with defaults and normalizes the log
// level to upper case.
func ApplyDefaults(cfg *Config) {
	if cfg.Decode.MaxDepth == 0 {
		cfg.Decode.MaxDepth = xdr2json.DefaultMaxDepth
	}
	if cfg.Decode.MaxInputLen == 0 {
		cfg.Decode.MaxInputLen = xdr2json.DefaultMaxInputLen
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Default returns the configuration used when nothing is configured
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

var validate = validator.New()

// Validate checks cfg against its validation tags
func Validate(cfg *Config) error {
	return validate.Struct(cfg)
}

// Options returns the converter options selected by the configuration
func (c *Config) Options() xdr2json.Options {
	return xdr2json.Options{
		MaxDepth:       c.Decode.MaxDepth,
		MaxInputLen:    c.Decode.MaxInputLen,
		StrictPadding:  c.Decode.StrictPadding,
		RejectTrailing: c.Decode.RejectTrailing,
		Parallelism:    c.Decode.Parallelism,
	}
}

// LoggerConfig returns the settings for logger.New
func (c *Config) LoggerConfig() logger.Config {
	format := c.Logging.Format
	if format == "text" {
		format = "console"
	}
	return logger.Config{
		Level:  strings.ToLower(c.Logging.Level),
		Format: format,
	}
}
