// ABOUTME: Configuration loading and parsing for helix-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Tool policies applied when a session carries an empty permission set.
const (
	ToolPolicyOpen   = "open"   // expose every registered tool
	ToolPolicyClosed = "closed" // expose nothing
)

// Tool gate forms for per-call VP verification.
const (
	ToolGatePresentation = "presentation" // POST {verify_url}/vps/verify {"vp": ...}
	ToolGateToken        = "token"        // POST {token_verify_url} {"vp_token": ...}
)

// Config represents the complete helix-gateway configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
	Database    DatabaseConfig    `yaml:"database" toml:"database"`
	Auth        AuthConfig        `yaml:"auth" toml:"auth"`
	Identity    IdentityConfig    `yaml:"identity" toml:"identity"`
	Credentials CredentialsConfig `yaml:"credentials" toml:"credentials"`
	Bookstore   BookstoreConfig   `yaml:"bookstore" toml:"bookstore"`
	Engine      EngineConfig      `yaml:"engine" toml:"engine"`
	Agent       AgentConfig       `yaml:"agent" toml:"agent"`
	Session     SessionConfig     `yaml:"session" toml:"session"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	// AllowedOrigins are host patterns accepted on the WebSocket upgrade.
	// Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// DatabaseConfig holds the audit ledger location. Empty path disables it.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds authentication policy
type AuthConfig struct {
	// JWTSecret protects the admin API. Empty leaves it open.
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`

	// AllowAnonymous lets an init without identity fields open a session.
	AllowAnonymous bool `yaml:"allow_anonymous" toml:"allow_anonymous"`

	// AllowInlineKeys lets the client supply its own public key, bypassing
	// the identity directory. Intended for test deployments only.
	AllowInlineKeys bool `yaml:"allow_inline_keys" toml:"allow_inline_keys"`
}

// IdentityConfig points at the trusted identity directory
type IdentityConfig struct {
	DirectoryURL string        `yaml:"directory_url" toml:"directory_url"`
	Timeout      time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw   string        `yaml:"timeout" toml:"timeout"`
}

// CredentialsConfig points at the VP verification oracle
type CredentialsConfig struct {
	VerifyURL      string        `yaml:"verify_url" toml:"verify_url"`
	TokenVerifyURL string        `yaml:"token_verify_url" toml:"token_verify_url"`
	ToolGate       string        `yaml:"tool_gate" toml:"tool_gate"`
	Timeout        time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw     string        `yaml:"timeout" toml:"timeout"`
}

// BookstoreConfig points at the bookstore REST API
type BookstoreConfig struct {
	APIURL     string        `yaml:"api_url" toml:"api_url"`
	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// EngineConfig configures the text-generation provider
type EngineConfig struct {
	Provider            string        `yaml:"provider" toml:"provider"`
	Endpoint            string        `yaml:"endpoint" toml:"endpoint"`
	APIKey              string        `yaml:"api_key" toml:"api_key"`
	APIVersion          string        `yaml:"api_version" toml:"api_version"`
	Model               string        `yaml:"model" toml:"model"`
	MaxCompletionTokens int           `yaml:"max_completion_tokens" toml:"max_completion_tokens"`
	Timeout             time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw          string        `yaml:"timeout" toml:"timeout"`
}

// AgentConfig describes the agent this gateway represents
type AgentConfig struct {
	DID                string   `yaml:"did" toml:"did"`
	Name               string   `yaml:"name" toml:"name"`
	DefaultPermissions []string `yaml:"default_permissions" toml:"default_permissions"`
	ToolPolicy         string   `yaml:"tool_policy" toml:"tool_policy"`
}

// SessionConfig holds per-session timing
type SessionConfig struct {
	ToolAuthTimeout    time.Duration `yaml:"-" toml:"-"`
	ToolAuthTimeoutRaw string        `yaml:"tool_auth_timeout" toml:"tool_auth_timeout"`
}

// DefaultPermissions is the permission set adopted when the client presents
// no agent VP, or the oracle returns none.
var DefaultPermissions = []string{"search_books", "place_order", "view_inventory", "check_order_status"}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in unset values before validation.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "0.0.0.0:8000"
	}
	if c.Identity.Timeout == 0 {
		c.Identity.Timeout = 5 * time.Second
	}
	if c.Credentials.Timeout == 0 {
		c.Credentials.Timeout = 5 * time.Second
	}
	if c.Credentials.ToolGate == "" {
		c.Credentials.ToolGate = ToolGatePresentation
	}
	if c.Bookstore.Timeout == 0 {
		c.Bookstore.Timeout = 5 * time.Second
	}
	if c.Engine.Provider == "" {
		c.Engine.Provider = "azure"
	}
	if c.Engine.APIVersion == "" {
		c.Engine.APIVersion = "2024-12-01-preview"
	}
	if c.Engine.MaxCompletionTokens == 0 {
		c.Engine.MaxCompletionTokens = 4096
	}
	if c.Engine.Timeout == 0 {
		c.Engine.Timeout = 60 * time.Second
	}
	if c.Agent.Name == "" {
		c.Agent.Name = "BookGenie AI"
	}
	if len(c.Agent.DefaultPermissions) == 0 {
		c.Agent.DefaultPermissions = append([]string(nil), DefaultPermissions...)
	}
	if c.Agent.ToolPolicy == "" {
		c.Agent.ToolPolicy = ToolPolicyOpen
	}
	if c.Session.ToolAuthTimeout == 0 {
		c.Session.ToolAuthTimeout = 5 * time.Minute
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Identity.DirectoryURL == "" {
		return fmt.Errorf("identity.directory_url is required")
	}
	if c.Credentials.VerifyURL == "" {
		return fmt.Errorf("credentials.verify_url is required")
	}
	switch c.Credentials.ToolGate {
	case ToolGatePresentation:
	case ToolGateToken:
		if c.Credentials.TokenVerifyURL == "" {
			return fmt.Errorf("credentials.token_verify_url is required when tool_gate is %q", ToolGateToken)
		}
	default:
		return fmt.Errorf("credentials.tool_gate must be %q or %q, got %q", ToolGatePresentation, ToolGateToken, c.Credentials.ToolGate)
	}
	if c.Bookstore.APIURL == "" {
		return fmt.Errorf("bookstore.api_url is required")
	}
	switch c.Engine.Provider {
	case "azure", "openai":
	default:
		return fmt.Errorf("engine.provider must be \"azure\" or \"openai\", got %q", c.Engine.Provider)
	}
	if c.Engine.Model == "" {
		return fmt.Errorf("engine.model is required")
	}
	if c.Engine.Provider == "azure" && c.Engine.Endpoint == "" {
		return fmt.Errorf("engine.endpoint is required for the azure provider")
	}
	switch c.Agent.ToolPolicy {
	case ToolPolicyOpen, ToolPolicyClosed:
	default:
		return fmt.Errorf("agent.tool_policy must be %q or %q, got %q", ToolPolicyOpen, ToolPolicyClosed, c.Agent.ToolPolicy)
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"identity.timeout", cfg.Identity.TimeoutRaw, &cfg.Identity.Timeout},
		{"credentials.timeout", cfg.Credentials.TimeoutRaw, &cfg.Credentials.Timeout},
		{"bookstore.timeout", cfg.Bookstore.TimeoutRaw, &cfg.Bookstore.Timeout},
		{"engine.timeout", cfg.Engine.TimeoutRaw, &cfg.Engine.Timeout},
		{"session.tool_auth_timeout", cfg.Session.ToolAuthTimeoutRaw, &cfg.Session.ToolAuthTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
