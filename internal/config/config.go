package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/fieldnodes/field-nodes/internal/typewriter"
)

const (
	// BackendLocal persists everything in a SQLite key-value file.
	BackendLocal = "local"
	// BackendMemory keeps everything in process; nothing survives exit.
	BackendMemory = "memory"
	// BackendSupabase stores nodes, fields and users in Supabase tables.
	BackendSupabase = "supabase"

	// DefaultClaudeModel is used for connection suggestions when claude.model is unset.
	DefaultClaudeModel = "claude-haiku-4-5-20251001"
)

// Config holds all configuration for field nodes.
type Config struct {
	Storage    StorageConfig    `mapstructure:"storage"`
	Supabase   SupabaseConfig   `mapstructure:"supabase"`
	Typewriter TypewriterConfig `mapstructure:"typewriter"`
	Claude     ClaudeConfig     `mapstructure:"claude"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	API        APIConfig        `mapstructure:"api"`
	MCP        MCPConfig        `mapstructure:"mcp"`
}

// StorageConfig selects the node store backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	// Path is the SQLite file used by the local backend and for UI flags
	// with every backend.
	Path string `mapstructure:"path"`
}

// SupabaseConfig holds Supabase project settings.
type SupabaseConfig struct {
	URL string `mapstructure:"url"`
	Key string `mapstructure:"key"`
	// EmailDomain turns a terminal name into a sign-in email.
	EmailDomain string `mapstructure:"email_domain"`
}

// String returns a safe representation of SupabaseConfig with the key masked.
func (c SupabaseConfig) String() string {
	return fmt.Sprintf("SupabaseConfig{URL:%s, Key:%s, EmailDomain:%s}", c.URL, maskAPIKey(c.Key), c.EmailDomain)
}

// TypewriterConfig controls the reveal animation. Delays are milliseconds.
type TypewriterConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	InitialDelayMS   int  `mapstructure:"initial_delay_ms"`
	CharDelayMS      int  `mapstructure:"char_delay_ms"`
	SpaceDelayMS     int  `mapstructure:"space_delay_ms"`
	EmptyLineDelayMS int  `mapstructure:"empty_line_delay_ms"`
	LineDelayMS      int  `mapstructure:"line_delay_ms"`
	JitterMS         int  `mapstructure:"jitter_ms"`
}

// Delays converts the configured milliseconds to a typewriter cadence.
func (c TypewriterConfig) Delays() typewriter.Delays {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	return typewriter.Delays{
		Initial:   ms(c.InitialDelayMS),
		Char:      ms(c.CharDelayMS),
		Space:     ms(c.SpaceDelayMS),
		EmptyLine: ms(c.EmptyLineDelayMS),
		Line:      ms(c.LineDelayMS),
		Jitter:    ms(c.JitterMS),
	}
}

// ClaudeConfig holds Anthropic Claude API settings.
type ClaudeConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// String returns a safe representation of ClaudeConfig with the API key masked.
func (c ClaudeConfig) String() string {
	masked := maskAPIKey(c.APIKey)
	return fmt.Sprintf("ClaudeConfig{APIKey:%s, Model:%s}", masked, c.Model)
}

// maskAPIKey shows first 4 + last 4 chars, replacing the middle with asterisks.
func maskAPIKey(key string) string {
	const visible = 4
	if len(key) <= visible*2 {
		return "***"
	}
	return key[:visible] + "****" + key[len(key)-visible:]
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File receives logs while the full-screen terminal owns stdout.
	File string `mapstructure:"file"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	ListenAddr  string   `mapstructure:"listen_addr"`
	AuthToken   string   `mapstructure:"auth_token"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// String returns a safe representation of APIConfig with the token masked.
func (c APIConfig) String() string {
	token := "<none>"
	if c.AuthToken != "" {
		token = maskAPIKey(c.AuthToken)
	}
	return fmt.Sprintf("APIConfig{ListenAddr:%s, AuthToken:%s, CORSOrigins:%v}", c.ListenAddr, token, c.CORSOrigins)
}

// MCPConfig holds MCP tool server settings.
type MCPConfig struct {
	// Author is credited on nodes created through MCP tools.
	Author string `mapstructure:"author"`
}

// String renders the whole configuration with every secret masked.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Storage:%+v, %s, Typewriter:%+v, %s, Logging:%+v, %s, MCP:%+v}",
		c.Storage, c.Supabase, c.Typewriter, c.Claude, c.Logging, c.API, c.MCP)
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.path", filepath.Join(homeDir(), ".field-nodes", "field.db"))

	v.SetDefault("supabase.url", "")
	v.SetDefault("supabase.key", "")
	v.SetDefault("supabase.email_domain", "fieldnodes.local")

	d := typewriter.DefaultDelays()
	v.SetDefault("typewriter.enabled", true)
	v.SetDefault("typewriter.initial_delay_ms", d.Initial.Milliseconds())
	v.SetDefault("typewriter.char_delay_ms", d.Char.Milliseconds())
	v.SetDefault("typewriter.space_delay_ms", d.Space.Milliseconds())
	v.SetDefault("typewriter.empty_line_delay_ms", d.EmptyLine.Milliseconds())
	v.SetDefault("typewriter.line_delay_ms", d.Line.Milliseconds())
	v.SetDefault("typewriter.jitter_ms", d.Jitter.Milliseconds())

	v.SetDefault("claude.api_key", "")
	v.SetDefault("claude.model", DefaultClaudeModel)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", filepath.Join(homeDir(), ".field-nodes", "terminal.log"))

	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.auth_token", "")
	v.SetDefault("api.cors_origins", []string{})

	v.SetDefault("mcp.author", "steward")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(homeDir(), ".field-nodes"))
	v.AddConfigPath(".")

	// Environment variables
	v.SetEnvPrefix("FIELD_NODES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map specific env vars
	_ = v.BindEnv("claude.api_key", "FIELD_NODES_CLAUDE_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("supabase.url", "FIELD_NODES_SUPABASE_URL", "SUPABASE_URL")
	_ = v.BindEnv("supabase.key", "FIELD_NODES_SUPABASE_KEY", "SUPABASE_KEY")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// No config file: defaults and env vars only.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are set and consistent.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path must not be empty for the local backend")
		}
	case BackendMemory:
	case BackendSupabase:
		if c.Supabase.URL == "" {
			return fmt.Errorf("supabase.url must not be empty for the supabase backend")
		}
		if c.Supabase.Key == "" {
			return fmt.Errorf("supabase.key must not be empty for the supabase backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of local, memory, supabase (got %q)", c.Storage.Backend)
	}

	delays := map[string]int{
		"typewriter.initial_delay_ms":    c.Typewriter.InitialDelayMS,
		"typewriter.char_delay_ms":       c.Typewriter.CharDelayMS,
		"typewriter.space_delay_ms":      c.Typewriter.SpaceDelayMS,
		"typewriter.empty_line_delay_ms": c.Typewriter.EmptyLineDelayMS,
		"typewriter.line_delay_ms":       c.Typewriter.LineDelayMS,
		"typewriter.jitter_ms":           c.Typewriter.JitterMS,
	}
	for key, ms := range delays {
		if ms < 0 {
			return fmt.Errorf("%s must be >= 0", key)
		}
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	if !slices.Contains([]string{"text", "json", "pretty"}, c.Logging.Format) {
		return fmt.Errorf("logging.format must be one of text, json, pretty (got %q)", c.Logging.Format)
	}
	if c.API.ListenAddr == "" {
		return fmt.Errorf("api.listen_addr must not be empty")
	}
	if c.Claude.APIKey != "" && c.Claude.Model == "" {
		return fmt.Errorf("claude.model must not be empty when claude.api_key is set")
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
