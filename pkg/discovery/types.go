package discovery

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/deskflow/deskflow-go/pkg/cert"
	"github.com/deskflow/deskflow-go/pkg/transport"
	"github.com/deskflow/deskflow-go/pkg/version"
)

// Service type constants.
const (
	// ServiceType is the DNS-SD service type servers advertise.
	ServiceType = "_deskflow._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the port assumed when an advertisement does not
	// carry one. Matches the listener default.
	DefaultPort = transport.DefaultPort
)

// TXT record keys.
const (
	// TXTKeyVersion is the protocol version, e.g. "1.8".
	TXTKeyVersion = "v"

	// TXTKeyFingerprint is the server certificate fingerprint as
	// compact lowercase hex. Required when the security level is
	// not plaintext.
	TXTKeyFingerprint = "fp"

	// TXTKeySecurityLevel is the numeric security level the server
	// applies to incoming connections.
	TXTKeySecurityLevel = "sl"
)

// Timing and limits.
const (
	// BrowseTimeout is the default timeout for browse operations.
	BrowseTimeout = 10 * time.Second

	// DefaultTTL is the default DNS record TTL.
	DefaultTTL = 120 * time.Second

	// MaxInstanceNameLen is the maximum mDNS instance name length
	// (single DNS label).
	MaxInstanceNameLen = 63
)

// Discovery errors.
var (
	// ErrMissingRequired indicates a required TXT record is absent.
	ErrMissingRequired = errors.New("missing required TXT record")

	// ErrInvalidTXTRecord indicates a TXT record value could not be parsed.
	ErrInvalidTXTRecord = errors.New("invalid TXT record")

	// ErrNotFound indicates the requested service was not found.
	ErrNotFound = errors.New("service not found")

	// ErrNotAdvertising indicates an update or stop without an active
	// advertisement.
	ErrNotAdvertising = errors.New("not advertising")

	// ErrInvalidInstanceName indicates the screen name is empty or does
	// not fit in a DNS label.
	ErrInvalidInstanceName = errors.New("invalid instance name")
)

// ServerInfo describes the service a server advertises.
type ServerInfo struct {
	// ScreenName is the server's screen name, used as the mDNS
	// instance name.
	ScreenName string

	// Port is the TCP port the server listens on. Zero means
	// DefaultPort.
	Port uint16

	// Version is the protocol version string. Empty means
	// version.Current.
	Version string

	// Fingerprint is the SHA-256 fingerprint of the server
	// certificate. Must be set when Level requires TLS.
	Fingerprint cert.Fingerprint

	// Level is the security level the server applies to incoming
	// connections.
	Level transport.SecurityLevel
}

// Validate checks that the info is complete enough to advertise.
func (i *ServerInfo) Validate() error {
	if err := ValidateInstanceName(i.ScreenName); err != nil {
		return err
	}
	if i.Version != "" {
		if _, err := version.Parse(i.Version); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTXTRecord, err)
		}
	}
	if i.Level.Secure() && i.Fingerprint.IsZero() {
		return fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyFingerprint)
	}
	return nil
}

// ServerService is a server instance discovered on the network.
type ServerService struct {
	// InstanceName is the mDNS instance name, the server's screen name.
	InstanceName string

	// Host is the mDNS hostname.
	Host string

	// Port is the advertised TCP port.
	Port uint16

	// Addresses are the resolved IP addresses, IPv4 first.
	Addresses []string

	// Version is the advertised protocol version.
	Version string

	// Fingerprint is the advertised certificate fingerprint. Zero when
	// the server advertises plaintext.
	Fingerprint cert.Fingerprint

	// Level is the advertised security level.
	Level transport.SecurityLevel
}

// Addr returns a dialable "host:port" for the first resolved address, or
// "" when no address was resolved.
func (s *ServerService) Addr() string {
	if len(s.Addresses) == 0 {
		return ""
	}
	port := s.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(s.Addresses[0], strconv.Itoa(int(port)))
}

// Compatible reports whether a client running version.Current can talk
// to this server.
func (s *ServerService) Compatible() bool {
	advertised, err := version.Parse(s.Version)
	if err != nil {
		return false
	}
	return version.MustParse(version.Current).Compatible(advertised)
}
