package config

import (
	"sync"

	"github.com/deskflow/deskflow-go/pkg/transport"
)

// Source holds the live configuration and feeds the certificate path
// override to the listener. The listener consults it on every accept
// attempt, so a Reload or Set takes effect for the next client without
// restarting the socket.
type Source struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewSource wraps a configuration. A nil cfg starts from defaults.
func NewSource(cfg *Config) *Source {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Source{cfg: cfg}
}

// Config returns the current configuration.
func (s *Source) Config() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Set replaces the current configuration.
func (s *Source) Set(cfg *Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// Reload re-reads the config file and swaps it in atomically. On error
// the previous configuration stays active.
func (s *Source) Reload(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	s.Set(cfg)
	return nil
}

// CertificatePath returns the current certificate override, empty when
// the profile default bundle should be used.
func (s *Source) CertificatePath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Certificate
}

// Compile-time check that Source feeds the listener.
var _ transport.CertPathSource = (*Source)(nil)
