package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/deskflow/deskflow-go/pkg/cert"
	"github.com/deskflow/deskflow-go/pkg/log"
	"github.com/deskflow/deskflow-go/pkg/mux"
)

// ConnState tracks an accepted connection through its TLS upgrade.
type ConnState int32

const (
	// StateCreated indicates the raw socket was accepted.
	StateCreated ConnState = iota

	// StateCertificateLoaded indicates acceptor credentials are loaded.
	StateCertificateLoaded

	// StateHandshakeInProgress indicates the handshake was initiated
	// and is completing asynchronously.
	StateHandshakeInProgress

	// StateEstablished indicates the channel is encrypted and usable.
	// Terminal.
	StateEstablished

	// StateFailed indicates the connection was discarded before
	// establishment; all resources are released. Terminal.
	StateFailed
)

// String returns the state name.
func (s ConnState) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateCertificateLoaded:
		return "CERTIFICATE_LOADED"
	case StateHandshakeInProgress:
		return "HANDSHAKE_IN_PROGRESS"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// connCallbacks carries the upgrade completion callbacks. Both run on
// the multiplexer's dispatch goroutine.
type connCallbacks struct {
	established func(*SecureConn)
	failed      func(*SecureConn, error)
}

// connOptions wires a SecureConn to its collaborators.
type connOptions struct {
	session   SecureSession
	post      func(func())
	mx        *mux.Multiplexer
	logger    log.Logger
	cbs       connCallbacks
	onRelease func(*SecureConn)
}

// SecureConn owns one accepted socket handle and its handshake state.
// It is created per inbound client and released on handshake failure,
// close, or hand-off to the upper layer once established. Releasing
// always removes any multiplexer registration on the handle before the
// handle itself is closed.
type SecureConn struct {
	id      string
	raw     net.Conn
	session SecureSession
	post    func(func())
	mx      *mux.Multiplexer
	logger  log.Logger
	cbs     connCallbacks

	state atomic.Int32

	mu          sync.Mutex
	stream      net.Conn
	fingerprint cert.Fingerprint
	tlsState    *tls.ConnectionState

	closeOnce sync.Once
	onRelease func(*SecureConn)
}

// newSecureConn wraps a freshly accepted socket in state Created.
func newSecureConn(raw net.Conn, opts connOptions) *SecureConn {
	if opts.post == nil {
		opts.post = func(fn func()) { fn() }
	}
	if opts.logger == nil {
		opts.logger = log.NoopLogger{}
	}

	c := &SecureConn{
		id:        uuid.New().String(),
		raw:       raw,
		session:   opts.session,
		post:      opts.post,
		mx:        opts.mx,
		logger:    opts.logger,
		cbs:       opts.cbs,
		onRelease: opts.onRelease,
	}
	c.state.Store(int32(StateCreated))
	return c
}

// ID returns the unique connection identifier.
func (c *SecureConn) ID() string { return c.id }

// State returns the current upgrade state.
func (c *SecureConn) State() ConnState {
	return ConnState(c.state.Load())
}

// LocalAddr returns the local address of the accepted socket.
func (c *SecureConn) LocalAddr() net.Addr { return c.raw.LocalAddr() }

// RemoteAddr returns the peer address.
func (c *SecureConn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// loadCertificates loads the acceptor credential bundle into the
// session and advances Created to CertificateLoaded. On failure the
// connection is discarded.
func (c *SecureConn) loadCertificates(path string) error {
	if err := c.session.LoadCertificates(path); err != nil {
		c.discard("certificate load: " + err.Error())
		return err
	}

	if !c.state.CompareAndSwap(int32(StateCreated), int32(StateCertificateLoaded)) {
		return ErrConnectionClosed
	}
	c.logState(StateCreated, StateCertificateLoaded, "")
	return nil
}

// BeginHandshake initiates the acceptor-role handshake. It returns once
// the handshake has started, not once it has completed; completion is
// delivered through the connection callbacks on the dispatch goroutine.
// A second initiation is rejected with the state unchanged.
func (c *SecureConn) BeginHandshake() error {
	if !c.state.CompareAndSwap(int32(StateCertificateLoaded), int32(StateHandshakeInProgress)) {
		switch ConnState(c.state.Load()) {
		case StateCreated:
			return ErrCertificatesNotLoaded
		case StateHandshakeInProgress, StateEstablished:
			return ErrHandshakeStarted
		default:
			return ErrConnectionClosed
		}
	}
	c.logState(StateCertificateLoaded, StateHandshakeInProgress, "")

	started := time.Now()
	err := c.session.BeginHandshake(c.raw, func(stream net.Conn, hsErr error) {
		c.completeHandshake(stream, hsErr, time.Since(started))
	})
	if err != nil {
		c.discard("handshake start: " + err.Error())
		return fmt.Errorf("begin handshake: %w", err)
	}
	return nil
}

// completeHandshake is invoked by the session from its own goroutine.
// The outcome is posted to the dispatch goroutine and applied there; a
// close that happened in the meantime wins, and a connection that left
// HandshakeInProgress delivers no callbacks.
func (c *SecureConn) completeHandshake(stream net.Conn, hsErr error, elapsed time.Duration) {
	c.post(func() {
		if hsErr != nil {
			if !c.state.CompareAndSwap(int32(StateHandshakeInProgress), int32(StateFailed)) {
				return
			}
			c.logState(StateHandshakeInProgress, StateFailed, hsErr.Error())
			c.release()
			if c.cbs.failed != nil {
				c.cbs.failed(c, hsErr)
			}
			return
		}

		if !c.state.CompareAndSwap(int32(StateHandshakeInProgress), int32(StateEstablished)) {
			// Closed while handshaking; drop the upgraded stream.
			if stream != nil {
				stream.Close()
			}
			return
		}

		c.mu.Lock()
		c.stream = stream
		if tc, ok := stream.(*tls.Conn); ok {
			state := tc.ConnectionState()
			c.tlsState = &state
			if len(state.PeerCertificates) > 0 {
				c.fingerprint = cert.FingerprintOf(state.PeerCertificates[0])
			}
		}
		c.mu.Unlock()

		c.logHandshake(elapsed)
		c.logState(StateHandshakeInProgress, StateEstablished, "")

		if c.cbs.established != nil {
			c.cbs.established(c)
		}
	})
}

// Read reads from the established channel.
func (c *SecureConn) Read(p []byte) (int, error) {
	stream := c.establishedStream()
	if stream == nil {
		return 0, ErrNotEstablished
	}
	return stream.Read(p)
}

// Write writes to the established channel.
func (c *SecureConn) Write(p []byte) (int, error) {
	stream := c.establishedStream()
	if stream == nil {
		return 0, ErrNotEstablished
	}
	return stream.Write(p)
}

func (c *SecureConn) establishedStream() net.Conn {
	if ConnState(c.state.Load()) != StateEstablished {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}

// Fingerprint returns the peer certificate fingerprint once
// established. Zero when the peer presented no certificate.
func (c *SecureConn) Fingerprint() cert.Fingerprint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fingerprint
}

// TLSState returns the TLS connection state of an established channel.
func (c *SecureConn) TLSState() (tls.ConnectionState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tlsState == nil {
		return tls.ConnectionState{}, false
	}
	return *c.tlsState, true
}

// Close releases the connection. Closing before establishment moves it
// to Failed and suppresses any in-flight handshake completion; closing
// an established channel just shuts the stream down.
func (c *SecureConn) Close() error {
	for {
		prev := ConnState(c.state.Load())
		if prev == StateEstablished || prev == StateFailed {
			break
		}
		if c.state.CompareAndSwap(int32(prev), int32(StateFailed)) {
			c.logState(prev, StateFailed, "closed")
			break
		}
	}
	return c.release()
}

// discard moves a pre-handshake connection to Failed and releases it
// without invoking callbacks. Used when the upgrade fails before the
// connection was ever surfaced.
func (c *SecureConn) discard(reason string) {
	for {
		prev := ConnState(c.state.Load())
		if prev == StateEstablished || prev == StateFailed {
			break
		}
		if c.state.CompareAndSwap(int32(prev), int32(StateFailed)) {
			c.logState(prev, StateFailed, reason)
			break
		}
	}
	c.release()
}

// release tears the connection down exactly once: any multiplexer
// registration on the handle is removed first, then the sockets are
// closed. Close, discard, and the handshake failure path all funnel
// here.
func (c *SecureConn) release() error {
	var err error
	c.closeOnce.Do(func() {
		if c.mx != nil {
			if p, ok := c.raw.(mux.Pollable); ok {
				// Unregister before the handle is released so no stale
				// readiness job can fire on a reused descriptor.
				_ = c.mx.Unregister(p)
			}
		}

		c.mu.Lock()
		stream := c.stream
		c.mu.Unlock()

		if stream != nil {
			// Closing the upgraded stream closes the raw socket under it.
			err = stream.Close()
		} else {
			err = c.raw.Close()
		}

		if c.onRelease != nil {
			c.onRelease(c)
		}
	})
	return err
}

func (c *SecureConn) logState(from, to ConnState, reason string) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerSecurity,
		Category:     log.CategoryState,
		LocalRole:    log.RoleServer,
		RemoteAddr:   c.raw.RemoteAddr().String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: from.String(),
			NewState: to.String(),
			Reason:   reason,
		},
	})
}

func (c *SecureConn) logHandshake(elapsed time.Duration) {
	c.mu.Lock()
	state := c.tlsState
	fp := c.fingerprint
	c.mu.Unlock()
	if state == nil {
		return
	}

	ev := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerSecurity,
		Category:     log.CategoryHandshake,
		LocalRole:    log.RoleServer,
		RemoteAddr:   c.raw.RemoteAddr().String(),
		Handshake: &log.HandshakeEvent{
			TLSVersion:  state.Version,
			CipherSuite: state.CipherSuite,
			Duration:    &elapsed,
		},
	}
	if !fp.IsZero() {
		ev.Fingerprint = fp.String()
		ev.Handshake.PeerFingerprint = fp.String()
	}
	c.logger.Log(ev)
}
