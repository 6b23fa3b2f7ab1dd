// ABOUTME: Configuration loading and parsing for warden
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete warden configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Tailscale    TailscaleConfig    `yaml:"tailscale"`
	Database     DatabaseConfig     `yaml:"database"`
	S2S          S2SConfig          `yaml:"s2s"`
	ControlPlane ControlPlaneConfig `yaml:"control_plane"`
	Runtime      RuntimeConfig      `yaml:"runtime"`
	Branding     BrandingConfig     `yaml:"branding"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Tools        ToolsConfig        `yaml:"tools"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthMode selects how incoming S2S requests are authenticated.
type AuthMode string

const (
	// AuthModeLegacy accepts the shared secret header or bearer token only.
	AuthModeLegacy AuthMode = "legacy"
	// AuthModeSigned requires HMAC-signed request headers.
	AuthModeSigned AuthMode = "signed"
	// AuthModeBoth accepts legacy requests but enforces signature
	// verification whenever any signed header is present.
	AuthModeBoth AuthMode = "both"
)

// S2SConfig holds inbound server-to-server authentication configuration.
type S2SConfig struct {
	SharedSecret string   `yaml:"shared_secret"`
	AuthMode     AuthMode `yaml:"auth_mode"`
	TrustedGroup string   `yaml:"trusted_group"`

	SigningTolerance time.Duration `yaml:"-"`
	NonceTTL         time.Duration `yaml:"-"`
	ProofMaxAge      time.Duration `yaml:"-"`
	IdempotencyTTL   time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	SigningToleranceRaw string `yaml:"signing_tolerance"`
	NonceTTLRaw         string `yaml:"nonce_ttl"`
	ProofMaxAgeRaw      string `yaml:"proof_max_age"`
	IdempotencyTTLRaw   string `yaml:"idempotency_ttl"`
}

// ControlPlaneConfig holds the outbound control plane endpoint configuration.
type ControlPlaneConfig struct {
	BaseURL      string `yaml:"base_url"`
	SharedSecret string `yaml:"shared_secret"`

	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// RuntimeConfig holds the outbound runtime plane endpoint configuration.
// Either Token (a static bearer) or JWTSecret (used to mint short-lived
// service tokens) must be set when a base URL is configured.
type RuntimeConfig struct {
	BaseURL   string `yaml:"base_url"`
	Token     string `yaml:"token"`
	JWTSecret string `yaml:"jwt_secret"`

	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// BrandingConfig holds the server-wide default branding values that realm
// overrides are layered on top of.
type BrandingConfig struct {
	Name         string           `yaml:"name"`
	SupportEmail string           `yaml:"support_email"`
	URLs         BrandingURLsConf `yaml:"urls"`
}

// BrandingURLsConf holds the default branding link set.
type BrandingURLsConf struct {
	Homepage string `yaml:"homepage"`
	Help     string `yaml:"help"`
	Status   string `yaml:"status"`
	Blog     string `yaml:"blog"`
	GitHub   string `yaml:"github"`
}

// ProvisioningConfig controls default project agent provisioning.
type ProvisioningConfig struct {
	ProjectChannels []string `yaml:"project_channels"`
	BotEmailDomain  string   `yaml:"bot_email_domain"`
}

// ToolsConfig holds tool registry configuration.
type ToolsConfig struct {
	// PolicyPath points to an optional TOML file with per-tool tier
	// overrides and disables, applied once at startup.
	PolicyPath string `yaml:"policy_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the corresponding config values are absent.
const (
	DefaultSigningTolerance = 5 * time.Minute
	DefaultProofMaxAge      = 10 * time.Minute
	DefaultIdempotencyTTL   = 30 * time.Minute
	DefaultControlTimeout   = 10 * time.Second
	DefaultRuntimeTimeout   = 15 * time.Second
	DefaultTrustedGroup     = "Sponsors"
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
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

// applyDefaults fills in defaults for optional fields.
func (c *Config) applyDefaults() {
	if c.S2S.AuthMode == "" {
		c.S2S.AuthMode = AuthModeLegacy
	}
	if c.S2S.TrustedGroup == "" {
		c.S2S.TrustedGroup = DefaultTrustedGroup
	}
	if c.S2S.SigningTolerance == 0 {
		c.S2S.SigningTolerance = DefaultSigningTolerance
	}
	if c.S2S.NonceTTL == 0 {
		// Nonces must outlive the timestamp window on both sides.
		c.S2S.NonceTTL = 2 * c.S2S.SigningTolerance
	}
	if c.S2S.ProofMaxAge == 0 {
		c.S2S.ProofMaxAge = DefaultProofMaxAge
	}
	if c.S2S.IdempotencyTTL == 0 {
		c.S2S.IdempotencyTTL = DefaultIdempotencyTTL
	}
	if c.ControlPlane.Timeout == 0 {
		c.ControlPlane.Timeout = DefaultControlTimeout
	}
	if c.Runtime.Timeout == 0 {
		c.Runtime.Timeout = DefaultRuntimeTimeout
	}
	if c.Provisioning.BotEmailDomain == "" {
		c.Provisioning.BotEmailDomain = "warden.internal"
	}
	if len(c.Provisioning.ProjectChannels) == 0 {
		c.Provisioning.ProjectChannels = []string{"warden-code", "warden-graph", "warden-chat"}
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.S2S.AuthMode {
	case AuthModeLegacy, AuthModeSigned, AuthModeBoth:
	default:
		return fmt.Errorf("s2s.auth_mode must be one of legacy, signed, both (got %q)", c.S2S.AuthMode)
	}

	if c.Runtime.BaseURL != "" && c.Runtime.Token == "" && c.Runtime.JWTSecret == "" {
		return fmt.Errorf("runtime.token or runtime.jwt_secret is required when runtime.base_url is set")
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
		{"s2s.signing_tolerance", cfg.S2S.SigningToleranceRaw, &cfg.S2S.SigningTolerance},
		{"s2s.nonce_ttl", cfg.S2S.NonceTTLRaw, &cfg.S2S.NonceTTL},
		{"s2s.proof_max_age", cfg.S2S.ProofMaxAgeRaw, &cfg.S2S.ProofMaxAge},
		{"s2s.idempotency_ttl", cfg.S2S.IdempotencyTTLRaw, &cfg.S2S.IdempotencyTTL},
		{"control_plane.timeout", cfg.ControlPlane.TimeoutRaw, &cfg.ControlPlane.Timeout},
		{"runtime.timeout", cfg.Runtime.TimeoutRaw, &cfg.Runtime.Timeout},
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
