package transport

// SecurityLevel selects the upgrade policy a listener or dialer applies
// to new connections. Fixed at construction.
type SecurityLevel uint8

const (
	// SecurityPlaintext performs no TLS upgrade.
	SecurityPlaintext SecurityLevel = 0

	// SecurityEncrypted upgrades to TLS without authenticating the peer.
	SecurityEncrypted SecurityLevel = 1

	// SecurityPeerAuth upgrades to TLS and requires the peer certificate
	// fingerprint to be present in the local trust store.
	SecurityPeerAuth SecurityLevel = 2
)

// String returns the security level name.
func (s SecurityLevel) String() string {
	switch s {
	case SecurityPlaintext:
		return "PLAINTEXT"
	case SecurityEncrypted:
		return "ENCRYPTED"
	case SecurityPeerAuth:
		return "PEER_AUTH"
	default:
		return "UNKNOWN"
	}
}

// Secure reports whether the level requires a TLS upgrade.
func (s SecurityLevel) Secure() bool {
	return s != SecurityPlaintext
}
