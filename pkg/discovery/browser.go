package discovery

import (
	"context"
	"time"
)

// Browser provides mDNS service browsing capabilities.
type Browser interface {
	// Browse searches for servers on the local network. The returned
	// channel is closed when the context is cancelled or browsing
	// stops.
	Browse(ctx context.Context) (<-chan *ServerService, error)

	// FindByName searches for the server advertising the given screen
	// name. Returns when found or when the context is cancelled.
	FindByName(ctx context.Context, screenName string) (*ServerService, error)

	// Stop stops all active browsing operations.
	Stop()
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout is the default timeout for browse operations.
	// Default: 10 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
		Interface:     "",
	}
}

// ServiceEntry is raw mDNS service entry data, decoupled from any
// particular mDNS library. Browser implementations convert their
// library's entry type into this before parsing.
type ServiceEntry struct {
	Instance string
	Service  string
	Domain   string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []string
}

// ToServerService parses the entry's TXT records and converts it to a
// ServerService.
func (e *ServiceEntry) ToServerService() (*ServerService, error) {
	txt := StringsToTXTRecords(e.Text)
	info, err := DecodeServerTXT(txt)
	if err != nil {
		return nil, err
	}

	return &ServerService{
		InstanceName: e.Instance,
		Host:         e.Host,
		Port:         e.Port,
		Addresses:    e.Addrs,
		Version:      info.Version,
		Fingerprint:  info.Fingerprint,
		Level:        info.Level,
	}, nil
}

// FilterFunc is a function that filters browse results.
type FilterFunc func(*ServerService) bool

// FilterCompatible returns a filter that matches servers a client
// running the current protocol version can talk to.
func FilterCompatible() FilterFunc {
	return func(svc *ServerService) bool {
		return svc.Compatible()
	}
}

// FilterSecure returns a filter that matches servers requiring a TLS
// upgrade.
func FilterSecure() FilterFunc {
	return func(svc *ServerService) bool {
		return svc.Level.Secure()
	}
}

// FilterBrowseResults filters a channel of discovered servers.
func FilterBrowseResults(in <-chan *ServerService, filter FilterFunc) <-chan *ServerService {
	out := make(chan *ServerService)
	go func() {
		defer close(out)
		for svc := range in {
			if filter(svc) {
				out <- svc
			}
		}
	}()
	return out
}
