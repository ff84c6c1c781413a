// Package config loads and validates the YAML configuration shared by
// the server and client commands, and adapts it to the transport
// layer's certificate path source.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deskflow/deskflow-go/pkg/cert"
	"github.com/deskflow/deskflow-go/pkg/transport"
	"github.com/deskflow/deskflow-go/pkg/version"
)

// AppID names the application in profile paths and certificate bundle
// file names.
const AppID = "deskflow"

// Configuration errors.
var (
	ErrInvalidSecurityLevel = errors.New("invalid security level")
	ErrInvalidScreenName    = errors.New("invalid screen name")
	ErrInvalidKeepAlive     = errors.New("invalid keepalive settings")
)

// Duration wraps time.Duration with YAML text syntax ("3s", "1m30s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// DiscoveryConfig controls mDNS advertisement and browsing.
type DiscoveryConfig struct {
	// Enabled turns zeroconf discovery on. Default: true.
	Enabled bool `yaml:"enabled"`

	// Interface restricts discovery to one network interface.
	// Empty means all interfaces.
	Interface string `yaml:"interface"`
}

// KeepAliveConfig controls connection liveness probing.
type KeepAliveConfig struct {
	// Interval between keepalive probes. Zero disables keepalives.
	Interval Duration `yaml:"interval"`

	// MissedLimit is the number of consecutive unanswered probes
	// after which the connection is declared dead.
	MissedLimit int `yaml:"missed_limit"`
}

// Config is the on-disk configuration for both server and client.
// Absent keys keep their defaults; see DefaultConfig.
type Config struct {
	// ScreenName identifies this machine to peers and in discovery.
	ScreenName string `yaml:"screen_name"`

	// Address is the server listen address. Default ":24800".
	Address string `yaml:"address"`

	// Server is the client's target "host:port". Empty means locate
	// the server via discovery.
	Server string `yaml:"server"`

	// SecurityLevel is one of "plaintext", "encrypted", "peer_auth".
	SecurityLevel string `yaml:"security_level"`

	// ProfileDir is the application profile directory. Empty means the
	// per-user default (see DefaultProfileDir).
	ProfileDir string `yaml:"profile_dir"`

	// Certificate is an explicit certificate bundle path. When set it
	// is used verbatim; there is no fallback to the profile bundle.
	Certificate string `yaml:"certificate"`

	// TrustStore is the trusted-fingerprints file. Empty means the
	// profile default for the command's role.
	TrustStore string `yaml:"trust_store"`

	// LogFile is the event log path. Empty disables event logging.
	LogFile string `yaml:"log_file"`

	// HandshakeTimeout bounds each TLS handshake.
	HandshakeTimeout Duration `yaml:"handshake_timeout"`

	Discovery DiscoveryConfig `yaml:"discovery"`
	KeepAlive KeepAliveConfig `yaml:"keepalive"`
}

// DefaultConfig returns the configuration used when no file or key is
// present.
func DefaultConfig() *Config {
	return &Config{
		Address:          fmt.Sprintf(":%d", transport.DefaultPort),
		SecurityLevel:    "peer_auth",
		HandshakeTimeout: Duration(transport.DefaultHandshakeTimeout),
		Discovery: DiscoveryConfig{
			Enabled: true,
		},
		KeepAlive: KeepAliveConfig{
			Interval:    Duration(transport.DefaultKeepAliveInterval),
			MissedLimit: transport.DefaultMaxMissed,
		},
	}
}

// Parse decodes YAML bytes over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

// Validate checks field values. The screen name may still be empty
// here; commands fill it from the hostname before use.
func (c *Config) Validate() error {
	if _, err := ParseSecurityLevel(c.SecurityLevel); err != nil {
		return err
	}
	if c.KeepAlive.Interval < 0 {
		return fmt.Errorf("%w: negative interval", ErrInvalidKeepAlive)
	}
	if c.KeepAlive.Interval > 0 && c.KeepAlive.MissedLimit < 1 {
		return fmt.Errorf("%w: missed_limit must be at least 1", ErrInvalidKeepAlive)
	}
	if c.HandshakeTimeout < 0 {
		return errors.New("handshake_timeout must not be negative")
	}
	return nil
}

// Level returns the parsed security level. Call Validate first.
func (c *Config) Level() transport.SecurityLevel {
	level, err := ParseSecurityLevel(c.SecurityLevel)
	if err != nil {
		return transport.SecurityPeerAuth
	}
	return level
}

// Profile returns the profile directory, defaulting to the per-user
// location.
func (c *Config) Profile() string {
	if c.ProfileDir != "" {
		return c.ProfileDir
	}
	return DefaultProfileDir()
}

// Locator returns the certificate locator for the profile.
func (c *Config) Locator() cert.Locator {
	return cert.NewLocator(c.Profile(), AppID)
}

// Version returns the protocol version this build speaks. Present so
// the advertised version and the config's view never diverge.
func (c *Config) Version() string {
	return version.Current
}

// ParseSecurityLevel maps the config spelling to a transport level.
func ParseSecurityLevel(s string) (transport.SecurityLevel, error) {
	switch s {
	case "plaintext":
		return transport.SecurityPlaintext, nil
	case "", "encrypted":
		return transport.SecurityEncrypted, nil
	case "peer_auth":
		return transport.SecurityPeerAuth, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSecurityLevel, s)
	}
}

// DefaultProfileDir returns the per-user profile directory,
// $XDG_CONFIG_HOME/deskflow or the platform equivalent.
func DefaultProfileDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, AppID)
}
