// Package config loads the bridge configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Engine names.
const (
	EngineZeroconf  = "zeroconf"
	EngineHashicorp = "hashicorp"
)

// Config is the bridge configuration.
type Config struct {
	// Engine selects the discovery engine: "zeroconf" or "hashicorp".
	Engine string `yaml:"engine"`

	// Interface restricts multicast traffic to one network interface.
	Interface string `yaml:"interface"`

	// Domain is the browse and registration domain.
	Domain string `yaml:"domain"`

	// TTL of published records (zeroconf).
	TTL Duration `yaml:"ttl"`

	// ResolveTimeout bounds a single resolve.
	ResolveTimeout Duration `yaml:"resolve_timeout"`

	// BrowseInterval is the pause between polling rounds (hashicorp).
	BrowseInterval Duration `yaml:"browse_interval"`

	// EventBuffer is the initial capacity of the event queue.
	EventBuffer int `yaml:"event_buffer"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// ProtocolLog is the path of the protocol capture file. Empty disables it.
	ProtocolLog string `yaml:"protocol_log"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Engine:         EngineZeroconf,
		Domain:         "local",
		TTL:            Duration(120 * time.Second),
		ResolveTimeout: Duration(10 * time.Second),
		BrowseInterval: Duration(5 * time.Second),
		EventBuffer:    64,
		LogLevel:       "info",
	}
}

// Error reports a configuration problem.
type Error struct {
	// File is the configuration file, if any.
	File string

	// Field is the offending YAML field, if known.
	Field string

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteString(": ")
	}
	if e.Field != "" {
		b.WriteString(e.Field)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Parse parses YAML on top of the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, &Error{Message: "failed to parse YAML", Cause: err}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads a configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &Error{File: path, Message: "failed to read file", Cause: err}
	}

	cfg, err := Parse(data)
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			ce.File = path
			return Config{}, ce
		}
		return Config{}, &Error{File: path, Message: err.Error()}
	}
	return cfg, nil
}

// Validate checks field values.
func (c Config) Validate() error {
	switch c.Engine {
	case EngineZeroconf, EngineHashicorp:
	default:
		return &Error{Field: "engine", Message: fmt.Sprintf("unknown engine %q", c.Engine)}
	}
	if c.Domain == "" {
		return &Error{Field: "domain", Message: "must not be empty"}
	}
	if c.TTL < 0 {
		return &Error{Field: "ttl", Message: "must not be negative"}
	}
	if c.ResolveTimeout <= 0 {
		return &Error{Field: "resolve_timeout", Message: "must be positive"}
	}
	if c.BrowseInterval <= 0 {
		return &Error{Field: "browse_interval", Message: "must be positive"}
	}
	if c.EventBuffer < 0 {
		return &Error{Field: "event_buffer", Message: "must not be negative"}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return &Error{Field: "log_level", Message: err.Error()}
	}
	return nil
}

// SlogLevel returns the slog level of LogLevel. Invalid levels yield info.
func (c Config) SlogLevel() slog.Level {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLevel parses a log level name.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Duration is a time.Duration written as "10s" or "1m30s" in YAML.
type Duration time.Duration

// Std returns the duration as time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}
