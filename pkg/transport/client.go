package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deskflow/deskflow-go/pkg/cert"
	"github.com/deskflow/deskflow-go/pkg/log"
)

// ClientConfig configures a connecting endpoint.
type ClientConfig struct {
	// TrustStore holds trusted server fingerprints. Required unless
	// TrustAny or Plaintext is set.
	TrustStore cert.TrustStore

	// TrustAny accepts any server certificate. The caller is expected
	// to check Fingerprint after connecting; this is how trust-on-
	// first-use prompts get the fingerprint to show.
	TrustAny bool

	// Bundle optionally supplies a client certificate. Servers running
	// with peer authentication require one.
	Bundle *cert.Bundle

	// Plaintext disables TLS entirely, for connecting to a
	// PlainListenSocket. TrustStore, TrustAny and Bundle are ignored.
	Plaintext bool

	// ConnectTimeout is the connection timeout (default: 30s).
	ConnectTimeout time.Duration

	// MaxMessageSize is the maximum message size (default: 4 MiB).
	MaxMessageSize uint32

	// Logger receives transport events. Optional.
	Logger log.Logger
}

// Client connects to a listening server.
type Client struct {
	config  ClientConfig
	tlsConf *tls.Config
}

// NewClient creates a new client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 30 * time.Second
	}

	c := &Client{config: config}
	if config.Plaintext {
		return c, nil
	}

	if config.TrustStore == nil && !config.TrustAny {
		return nil, errors.New("trust store is required unless TrustAny is set")
	}

	var clientCert *tls.Certificate
	if config.Bundle != nil {
		clientCert = &config.Bundle.Certificate
	}
	trust := config.TrustStore
	if config.TrustAny {
		trust = nil
	}
	c.tlsConf = newInitiatorTLSConfig(clientCert, trust)

	return c, nil
}

// Connect establishes a connection to the specified address.
func (c *Client) Connect(ctx context.Context, address string) (*ClientConn, error) {
	// Apply timeout from config if context doesn't have one
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	// Dial TCP connection
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	stream := conn
	var tlsState *tls.ConnectionState
	var fingerprint cert.Fingerprint

	if c.tlsConf != nil {
		tlsConn := tls.Client(conn, c.tlsConf)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("TLS handshake failed: %w", err)
		}

		state := tlsConn.ConnectionState()
		if err := verifyTLSVersion(state); err != nil {
			tlsConn.Close()
			return nil, fmt.Errorf("connection verification failed: %w", err)
		}

		tlsState = &state
		if len(state.PeerCertificates) > 0 {
			fingerprint = cert.FingerprintOf(state.PeerCertificates[0])
		}
		stream = tlsConn
	}

	clientConn := &ClientConn{
		id:          uuid.New().String(),
		conn:        stream,
		framer:      NewFramerWithMaxSize(stream, c.config.MaxMessageSize),
		tlsState:    tlsState,
		fingerprint: fingerprint,
		closeCh:     make(chan struct{}),
	}

	if c.config.Logger != nil {
		clientConn.framer.SetLogger(c.config.Logger, clientConn.id)
		c.config.Logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: clientConn.id,
			Layer:        log.LayerSocket,
			Category:     log.CategoryState,
			LocalRole:    log.RoleClient,
			RemoteAddr:   stream.RemoteAddr().String(),
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityClient,
				NewState: "CONNECTED",
			},
		})
	}

	return clientConn, nil
}

// ClientConn represents a connection from client to server.
type ClientConn struct {
	id          string
	conn        net.Conn
	framer      *Framer
	tlsState    *tls.ConnectionState
	fingerprint cert.Fingerprint
	closeCh     chan struct{}

	closeOnce sync.Once
	writeMu   sync.Mutex
	readMu    sync.Mutex
}

// ID returns the unique connection identifier.
func (c *ClientConn) ID() string { return c.id }

// TLSState returns the TLS connection state. ok is false for plaintext
// connections.
func (c *ClientConn) TLSState() (tls.ConnectionState, bool) {
	if c.tlsState == nil {
		return tls.ConnectionState{}, false
	}
	return *c.tlsState, true
}

// Fingerprint returns the server certificate fingerprint. Zero for
// plaintext connections.
func (c *ClientConn) Fingerprint() cert.Fingerprint {
	return c.fingerprint
}

// LocalAddr returns the local network address.
func (c *ClientConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *ClientConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send sends a message to the server.
func (c *ClientConn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}

	return c.framer.WriteFrame(data)
}

// Receive receives a message from the server with timeout.
func (c *ClientConn) Receive(timeout time.Duration) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	select {
	case <-c.closeCh:
		return nil, ErrConnectionClosed
	default:
	}

	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}

	return c.framer.ReadFrame()
}

// Close closes the connection.
func (c *ClientConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}
