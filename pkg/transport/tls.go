package transport

import (
	"crypto/tls"
	"fmt"

	"github.com/deskflow/deskflow-go/pkg/cert"
)

// Peers authenticate each other by certificate fingerprint, not by CA
// chain: certificates are self-signed and trust is established by
// fingerprint comparison against a trust store. TLS below 1.2 is never
// negotiated.

// newAcceptorTLSConfig builds the server-side TLS configuration.
// With SecurityPeerAuth the client must present a certificate and its
// fingerprint must be in the trust store.
func newAcceptorTLSConfig(certificate tls.Certificate, level SecurityLevel, trust cert.TrustStore) *tls.Config {
	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{certificate},

		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},

		// No resumption: every connection does a full handshake so the
		// peer certificate is always presented.
		SessionTicketsDisabled: true,
	}

	if level == SecurityPeerAuth && trust != nil {
		cfg.ClientAuth = tls.RequireAnyClientCert
		cfg.VerifyPeerCertificate = cert.VerifyPeerCertificate(trust)
	}

	return cfg
}

// newInitiatorTLSConfig builds the client-side TLS configuration.
// clientCert is optional; servers running with peer authentication
// require one. A nil trust store accepts any server certificate.
func newInitiatorTLSConfig(clientCert *tls.Certificate, trust cert.TrustStore) *tls.Config {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,

		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},

		SessionTicketsDisabled: true,

		// Verification happens in VerifyPeerCertificate; there is no CA
		// chain to verify against.
		InsecureSkipVerify: true,
	}

	if clientCert != nil {
		cfg.Certificates = []tls.Certificate{*clientCert}
	}
	if trust != nil {
		cfg.VerifyPeerCertificate = cert.VerifyPeerCertificate(trust)
	}

	return cfg
}

// verifyTLSVersion checks that a connection negotiated at least TLS 1.2.
func verifyTLSVersion(state tls.ConnectionState) error {
	if state.Version < tls.VersionTLS12 {
		return fmt.Errorf("TLS version %x is below 1.2", state.Version)
	}
	return nil
}
