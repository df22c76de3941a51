// Package config provides configuration management for the rqg CLI.
//
// The gating policy itself (rqg.yml) is loaded by internal/config; this
// package covers where history lives, how output is rendered and how the
// server and upload client are reached.
package config

import (
	sharedcfg "github.com/leapstack-labs/rqg/internal/config"
)

// PolicyConfig is an alias for the shared policy configuration.
type PolicyConfig = sharedcfg.PolicyConfig

// ServerConfig holds configuration for the ingest server.
type ServerConfig struct {
	Addr  string `koanf:"addr"`
	Inbox string `koanf:"inbox"`
}

// UploadConfig holds configuration for pushing bundles to a server.
type UploadConfig struct {
	APIURL string `koanf:"api_url"`
	Token  string `koanf:"token"`
}

// Config holds all CLI configuration options.
type Config struct {
	PolicyPath   string       `koanf:"policy"`
	StatePath    string       `koanf:"state_path"`
	Store        string       `koanf:"store" validate:"oneof=sqlite postgres memory"`
	DSN          string       `koanf:"dsn"`
	OutputFormat string       `koanf:"output" validate:"oneof=auto text markdown json"`
	Verbose      bool         `koanf:"verbose"`
	LogLevel     string       `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogFormat    string       `koanf:"log_format" validate:"oneof=text json"`
	Server       ServerConfig `koanf:"server"`
	Upload       UploadConfig `koanf:"upload"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// Default configuration values.
const (
	DefaultConfigDir  = ".rqg"
	DefaultConfigFile = "config.yaml"
	DefaultStateFile  = ".rqg/rqg.db"
	DefaultStore      = "sqlite"
	DefaultOutput     = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultLogLevel   = "warn"
	DefaultLogFormat  = "text"
	DefaultServerAddr = ":8080"
)

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	return &Config{
		PolicyPath:   sharedcfg.ConfigFileName,
		StatePath:    DefaultStateFile,
		Store:        DefaultStore,
		OutputFormat: DefaultOutput,
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
		Server:       ServerConfig{Addr: DefaultServerAddr},
		ProjectRoot:  ".",
	}
}
