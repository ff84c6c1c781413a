package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/deskflow/deskflow-go/pkg/cert"
)

// DefaultHandshakeTimeout bounds the TLS handshake on accepted
// connections. A client that connects and then goes silent is cut off
// after this long.
const DefaultHandshakeTimeout = 30 * time.Second

// SecureSession performs the acceptor side of a security handshake on
// a raw connection. Implementations are single use: one session
// upgrades one connection.
//
// BeginHandshake returns once the handshake has been started. The done
// callback is invoked exactly once from a session-owned goroutine,
// either with the upgraded stream or with the handshake error.
type SecureSession interface {
	LoadCertificates(path string) error
	BeginHandshake(conn net.Conn, done func(net.Conn, error)) error
}

// tlsSession upgrades an accepted TCP connection to TLS using a local
// certificate bundle.
type tlsSession struct {
	level   SecurityLevel
	trust   cert.TrustStore
	timeout time.Duration

	mu     sync.Mutex
	bundle *cert.Bundle
}

func newTLSSession(level SecurityLevel, trust cert.TrustStore, timeout time.Duration) *tlsSession {
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	return &tlsSession{
		level:   level,
		trust:   trust,
		timeout: timeout,
	}
}

var _ SecureSession = (*tlsSession)(nil)

// LoadCertificates reads the combined PEM bundle at path. The path is
// resolved by the caller on every accept, so a bundle replaced on disk
// takes effect for the next client.
func (s *tlsSession) LoadCertificates(path string) error {
	bundle, err := cert.LoadBundle(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.bundle = bundle
	s.mu.Unlock()
	return nil
}

// BeginHandshake starts the server-side TLS handshake on conn.
func (s *tlsSession) BeginHandshake(conn net.Conn, done func(net.Conn, error)) error {
	s.mu.Lock()
	bundle := s.bundle
	s.mu.Unlock()
	if bundle == nil {
		return ErrCertificatesNotLoaded
	}

	cfg := newAcceptorTLSConfig(bundle.Certificate, s.level, s.trust)
	tc := tls.Server(conn, cfg)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := tc.HandshakeContext(ctx); err != nil {
			done(nil, fmt.Errorf("TLS handshake failed: %w", err))
			return
		}
		done(tc, nil)
	}()
	return nil
}
