// Package config loads server settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"workspace-terminal/internal/policy"
)

// PathEnv names the variable consulted when no --config flag is given.
const PathEnv = "WORKSPACE_TERMINAL_CONFIG"

// Config holds server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Exec      ExecConfig      `yaml:"exec"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Policy    policy.Config   `yaml:"policy"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Log       LogConfig       `yaml:"log"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"staticDir"`
}

type WorkspaceConfig struct {
	// Root defaults to the process working directory.
	Root string `yaml:"root"`
}

type ExecConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxOutputBytes int           `yaml:"maxOutputBytes"`
	Shell          string        `yaml:"shell"`
	Term           string        `yaml:"term"`
}

type SessionsConfig struct {
	MaxSessions   int           `yaml:"maxSessions"`
	IdleTTL       time.Duration `yaml:"idleTTL"`
	HistorySize   int           `yaml:"historySize"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

type WatcherConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
	// Output is a file path; empty writes spans to stdout.
	Output string `yaml:"output"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8420},
		Exec: ExecConfig{
			Timeout:        30 * time.Second,
			MaxOutputBytes: 10 * 1024 * 1024,
			Term:           "xterm-256color",
		},
		// Sessions live for the process lifetime unless a limit is set.
		Sessions: SessionsConfig{
			HistorySize:   100,
			SweepInterval: time.Minute,
		},
		Watcher: WatcherConfig{Enabled: true},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (if non-empty), applies environment overrides, resolves
// the workspace root and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.resolveWorkspace(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the config file to load: the flag value, else PathEnv.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(PathEnv)
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = n
	}
	if v := os.Getenv("STATIC_DIR"); v != "" {
		c.Server.StaticDir = v
	}
	if v := os.Getenv("WORKSPACE_ROOT"); v != "" {
		c.Workspace.Root = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("MAX_SESSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_SESSIONS: %w", err)
		}
		c.Sessions.MaxSessions = n
	}
	return nil
}

func (c *Config) resolveWorkspace() error {
	root := c.Workspace.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve workspace root: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve workspace root: %w", err)
	}
	c.Workspace.Root = abs
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Workspace.Root == "" {
		errs = append(errs, errors.New("workspace.root is required"))
	} else if info, err := os.Stat(c.Workspace.Root); err != nil {
		errs = append(errs, fmt.Errorf("workspace.root: %w", err))
	} else if !info.IsDir() {
		errs = append(errs, fmt.Errorf("workspace.root %s is not a directory", c.Workspace.Root))
	}
	if c.Exec.Timeout <= 0 {
		errs = append(errs, errors.New("exec.timeout must be positive"))
	}
	if c.Exec.MaxOutputBytes <= 0 {
		errs = append(errs, errors.New("exec.maxOutputBytes must be positive"))
	}
	if c.Sessions.MaxSessions < 0 {
		errs = append(errs, errors.New("sessions.maxSessions must not be negative"))
	}
	if c.Sessions.IdleTTL < 0 {
		errs = append(errs, errors.New("sessions.idleTTL must not be negative"))
	}
	if c.Sessions.HistorySize < 0 {
		errs = append(errs, errors.New("sessions.historySize must not be negative"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}

	return errors.Join(errs...)
}
