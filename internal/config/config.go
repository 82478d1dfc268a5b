// Package config provides configuration for the selfedit agent.
//
// Configuration is an explicit struct constructed once at startup and passed
// into constructors; there are no process-wide mutable settings. Precedence
// (highest to lowest): SELFEDIT_* environment variables, YAML config file,
// hardcoded defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "SELFEDIT_"

// PlannerConfig selects the external text-generation capability.
// An empty Provider disables the planner; the loop cannot run without one.
type PlannerConfig struct {
	Provider string `koanf:"provider"` // "openai" | "gemini" | ""
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
}

// EmbeddingConfig selects the optional embedding capability.
// An empty Provider disables embeddings; recall degrades to empty results.
type EmbeddingConfig struct {
	Provider string `koanf:"provider"` // "ollama" | "openai" | "gemini" | ""
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
}

// HTTPConfig configures the serve front door.
type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug | info | warn | error
	Format string `koanf:"format"` // console | json
}

// Config holds every tunable of the agent.
type Config struct {
	// DBPath is the SQLite database holding the durable message log.
	DBPath string `koanf:"db_path"`

	// WorkDir is the source tree the agent is allowed to edit. It is also
	// the working directory for test runs.
	WorkDir string `koanf:"work_dir"`

	// MaxSteps bounds loop iterations per goal.
	MaxSteps int `koanf:"max_steps"`

	// TestCommand invokes the external test oracle. The test path is
	// appended as the final argument.
	TestCommand []string      `koanf:"test_command"`
	TestPath    string        `koanf:"test_path"`
	TestTimeout time.Duration `koanf:"test_timeout"`

	// MaxPatchBytes rejects any patch whose encoded diff exceeds it.
	MaxPatchBytes int `koanf:"max_patch_bytes"`

	// ContextLines is the unified-diff context width.
	ContextLines int `koanf:"context_lines"`

	// AllowedRoots are directories the agent may modify. Empty means
	// WorkDir only.
	AllowedRoots []string `koanf:"allowed_roots"`

	// DisallowedPatterns veto paths even inside an allowed root.
	DisallowedPatterns []string `koanf:"disallowed_patterns"`

	Planner   PlannerConfig   `koanf:"planner"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	HTTP      HTTPConfig      `koanf:"http"`
	Log       LogConfig       `koanf:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MaxSteps:      20,
		TestCommand:   []string{"go", "test"},
		TestPath:      "./...",
		TestTimeout:   30 * time.Second,
		MaxPatchBytes: 10_000,
		ContextLines:  3,
		DisallowedPatterns: []string{
			"*/.git/*",
			"*/.venv/*",
			"*/node_modules/*",
			"*/__pycache__/*",
			"*/vendor/*",
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Log:  LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads configuration from the given YAML file (if it exists) and the
// environment. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// SELFEDIT_MAX_STEPS -> max_steps, SELFEDIT_PLANNER__API_KEY -> planner.api_key.
	// A double underscore separates nesting levels so field names keep
	// their single underscores.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDerived(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDerived fills values that depend on the environment.
func applyDerived(cfg *Config) {
	if cfg.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			wd = "."
		}
		cfg.WorkDir = wd
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.WorkDir, "memory.db")
	}
	if len(cfg.AllowedRoots) == 0 {
		cfg.AllowedRoots = []string{cfg.WorkDir}
	}
}

// Validate rejects configurations the loop cannot run with.
func (c *Config) Validate() error {
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive, got %d", c.MaxSteps)
	}
	if c.MaxPatchBytes <= 0 {
		return fmt.Errorf("max_patch_bytes must be positive, got %d", c.MaxPatchBytes)
	}
	if c.ContextLines < 0 {
		return fmt.Errorf("context_lines must not be negative, got %d", c.ContextLines)
	}
	if c.TestTimeout <= 0 {
		return fmt.Errorf("test_timeout must be positive, got %s", c.TestTimeout)
	}
	if len(c.TestCommand) == 0 {
		return fmt.Errorf("test_command must not be empty")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log format must be console or json, got %q", c.Log.Format)
	}
	return nil
}
