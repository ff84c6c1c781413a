package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/deskflow/deskflow-go/pkg/cert"
)

// Advertiser provides mDNS service advertising capabilities.
type Advertiser interface {
	// Advertise starts advertising the server service. An existing
	// advertisement is replaced.
	Advertise(ctx context.Context, info *ServerInfo) error

	// Update replaces the TXT records of the running advertisement
	// without re-registering the instance.
	Update(info *ServerInfo) error

	// Stop stops advertising.
	Stop() error
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		Interface: "",
		TTL:       DefaultTTL,
	}
}

// Manager ties an advertisement to the server lifecycle. The server
// starts it alongside the listener and refreshes the fingerprint when
// the certificate is regenerated, so what the network sees always
// matches what the listener will present.
type Manager struct {
	mu sync.Mutex

	advertiser  Advertiser
	info        *ServerInfo
	advertising bool

	// Callback for advertisement state changes
	onStateChange func(advertising bool)
}

// NewManager creates a new advertisement manager.
func NewManager(advertiser Advertiser) *Manager {
	return &Manager{
		advertiser: advertiser,
	}
}

// OnStateChange sets a callback invoked when advertising starts or stops.
func (m *Manager) OnStateChange(fn func(advertising bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// SetInfo sets the service description. Must be called before Start.
func (m *Manager) SetInfo(info *ServerInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info = info
}

// Advertising reports whether the service is currently advertised.
func (m *Manager) Advertising() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.advertising
}

// Start begins advertising the service set via SetInfo.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.info == nil {
		return ErrMissingRequired
	}
	if err := m.info.Validate(); err != nil {
		return err
	}

	if err := m.advertiser.Advertise(ctx, m.info); err != nil {
		return err
	}

	if !m.advertising {
		m.advertising = true
		if m.onStateChange != nil {
			m.onStateChange(true)
		}
	}
	return nil
}

// Stop withdraws the advertisement. Stopping an idle manager is a no-op.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.advertising {
		return nil
	}

	if err := m.advertiser.Stop(); err != nil {
		return err
	}

	m.advertising = false
	if m.onStateChange != nil {
		m.onStateChange(false)
	}
	return nil
}

// UpdateFingerprint replaces the advertised certificate fingerprint,
// leaving the rest of the service description untouched. Call after
// regenerating the server certificate.
func (m *Manager) UpdateFingerprint(fp cert.Fingerprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.info == nil || !m.advertising {
		return ErrNotAdvertising
	}

	updated := *m.info
	updated.Fingerprint = fp

	if err := m.advertiser.Update(&updated); err != nil {
		return err
	}

	m.info = &updated
	return nil
}
