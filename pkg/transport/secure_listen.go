package transport

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/deskflow/deskflow-go/pkg/cert"
	"github.com/deskflow/deskflow-go/pkg/log"
	"github.com/deskflow/deskflow-go/pkg/mux"
)

// SessionFactory produces one SecureSession per accepted connection.
type SessionFactory func() SecureSession

// SecureListenConfig configures a SecureListenSocket.
type SecureListenConfig struct {
	// Address is the TCP listen address. Defaults to ":24800".
	Address string

	// Mux drives readiness notification and handshake completion.
	// Required.
	Mux *mux.Multiplexer

	// Locator resolves the certificate bundle path.
	Locator cert.Locator

	// PathSource optionally supplies a certificate path override. It is
	// consulted once per accept attempt, never cached; an empty result
	// falls through to the Locator default.
	PathSource CertPathSource

	// Level selects the security posture. SecurityPlaintext is not
	// valid here; use a PlainListenSocket instead. The zero value
	// defaults to SecurityEncrypted.
	Level SecurityLevel

	// TrustStore holds trusted peer fingerprints. Required for
	// SecurityPeerAuth.
	TrustStore cert.TrustStore

	// Sessions produces the per-connection security session. Defaults
	// to TLS sessions built from Level, TrustStore and
	// HandshakeTimeout.
	Sessions SessionFactory

	// HandshakeTimeout bounds each client's TLS handshake. Defaults to
	// DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// Logger receives transport events. Defaults to a no-op logger.
	Logger log.Logger

	// OnResult is invoked with the outcome of every readiness-driven
	// accept attempt. Optional.
	OnResult func(AcceptResult, error)

	// OnEstablished is invoked on the dispatch goroutine when an
	// accepted connection completes its handshake.
	OnEstablished func(*SecureConn)

	// OnFailed is invoked on the dispatch goroutine when an accepted
	// connection fails its handshake. The connection is already
	// released.
	OnFailed func(*SecureConn, error)
}

// SecureListenSocket accepts TCP connections and upgrades each one to
// an encrypted channel. Accepting and upgrading are decoupled: the
// listener re-arms for the next client before any certificate or
// handshake work happens, so one slow client never stalls the rest.
type SecureListenSocket struct {
	cfg     SecureListenConfig
	ls      *ListenSocket
	logger  log.Logger
	pending *connTracker
}

// ListenSecure binds cfg.Address and returns a listener ready to be
// armed. Accept attempts are driven by the multiplexer once Arm is
// called.
func ListenSecure(cfg SecureListenConfig) (*SecureListenSocket, error) {
	if cfg.Mux == nil {
		return nil, errors.New("multiplexer is required")
	}
	if cfg.Level == SecurityPlaintext {
		cfg.Level = SecurityEncrypted
	}
	if cfg.Level == SecurityPeerAuth && cfg.TrustStore == nil {
		return nil, errors.New("trust store is required for peer authentication")
	}
	if cfg.Locator == (cert.Locator{}) && cfg.PathSource == nil {
		return nil, errors.New("certificate locator is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NoopLogger{}
	}
	if cfg.Sessions == nil {
		level, trust, timeout := cfg.Level, cfg.TrustStore, cfg.HandshakeTimeout
		cfg.Sessions = func() SecureSession {
			return newTLSSession(level, trust, timeout)
		}
	}

	ls, err := newListenSocket(cfg.Address, cfg.Mux, cfg.Logger)
	if err != nil {
		return nil, err
	}

	s := &SecureListenSocket{
		cfg:     cfg,
		ls:      ls,
		logger:  cfg.Logger,
		pending: newConnTracker(),
	}
	ls.setReadyHandler(s.onReady)
	return s, nil
}

// Addr returns the bound listen address.
func (s *SecureListenSocket) Addr() net.Addr { return s.ls.Addr() }

// Arm registers the listener for the next readiness notification.
// Arming an already armed listener is a no-op.
func (s *SecureListenSocket) Arm() error { return s.ls.Arm() }

// Armed reports whether a readiness registration is present.
func (s *SecureListenSocket) Armed() bool { return s.ls.Armed() }

// Pending returns the number of connections still upgrading.
func (s *SecureListenSocket) Pending() int { return s.pending.Len() }

// CloseStale closes connections that have been upgrading for longer
// than maxAge and returns how many were closed.
func (s *SecureListenSocket) CloseStale(maxAge time.Duration) int {
	return s.pending.CloseStale(maxAge)
}

// onReady runs on the dispatch goroutine when the listener becomes
// readable.
func (s *SecureListenSocket) onReady() {
	res, err := s.Accept()
	if s.cfg.OnResult != nil {
		s.cfg.OnResult(res, err)
	}
}

// Accept performs one accept attempt. It never blocks: with no client
// pending it returns an AcceptEmpty result. Transient network errors
// and certificate load failures are reported in the result and affect
// only the one attempt; the returned error is non-nil only for
// listener-level failures that accepting cannot recover from.
//
// On every return path the listener is re-armed for the next client.
// When a connection is returned its handshake is still in flight;
// completion arrives through OnEstablished or OnFailed.
func (s *SecureListenSocket) Accept() (AcceptResult, error) {
	if !s.ls.open() {
		return AcceptResult{}, ErrNotListening
	}

	// Whatever happens below, leave armed.
	defer s.rearm()

	raw, err := s.ls.accept()
	if err != nil {
		switch {
		case isWouldBlock(err):
			// Readiness raced another consumer of the backlog.
			s.logAccept(log.AcceptOutcomeEmpty)
			return AcceptResult{Kind: AcceptEmpty}, nil
		case isNetworkError(err):
			s.logAcceptError(log.AcceptOutcomeNetworkError, err, "accept")
			return AcceptResult{Kind: AcceptNetworkFailure, Err: err}, nil
		case errors.Is(err, net.ErrClosed):
			return AcceptResult{}, ErrListenerClosed
		default:
			return AcceptResult{}, fmt.Errorf("accept on %s: %w", s.ls.Addr(), err)
		}
	}

	// Re-arm before certificate and handshake work: a slow or failing
	// upgrade must not delay the next client.
	s.rearm()

	conn := newSecureConn(raw, connOptions{
		session:   s.cfg.Sessions(),
		post:      s.cfg.Mux.Post,
		mx:        s.cfg.Mux,
		logger:    s.logger,
		onRelease: s.pending.Remove,
		cbs: connCallbacks{
			established: s.connEstablished,
			failed:      s.connFailed,
		},
	})
	s.pending.Add(conn)

	if err := conn.loadCertificates(s.certPath()); err != nil {
		s.logAcceptError(log.AcceptOutcomeCertificateError, err, "load certificates")
		return AcceptResult{Kind: AcceptCertificateFailure, Err: err}, nil
	}

	if err := conn.BeginHandshake(); err != nil {
		return AcceptResult{}, err
	}

	s.logAccept(log.AcceptOutcomeConnection)
	return AcceptResult{Kind: AcceptConnection, Conn: conn}, nil
}

// certPath resolves the certificate bundle path for one accept
// attempt.
func (s *SecureListenSocket) certPath() string {
	var override string
	if s.cfg.PathSource != nil {
		override = s.cfg.PathSource.CertificatePath()
	}
	return s.cfg.Locator.Resolve(override)
}

func (s *SecureListenSocket) rearm() {
	if err := s.ls.Arm(); err != nil && !errors.Is(err, ErrListenerClosed) {
		s.logger.Log(log.Event{
			Timestamp: time.Now(),
			Layer:     log.LayerSocket,
			Category:  log.CategoryError,
			LocalRole: log.RoleServer,
			Error: &log.ErrorEventData{
				Layer:   log.LayerSocket,
				Message: err.Error(),
				Context: "re-arm listener",
			},
		})
	}
}

func (s *SecureListenSocket) connEstablished(c *SecureConn) {
	s.pending.Remove(c)
	if s.cfg.OnEstablished != nil {
		s.cfg.OnEstablished(c)
	}
}

func (s *SecureListenSocket) connFailed(c *SecureConn, err error) {
	if s.cfg.OnFailed != nil {
		s.cfg.OnFailed(c, err)
	}
}

// Close stops accepting and closes every connection still upgrading.
// Established connections that were already handed off are not
// affected.
func (s *SecureListenSocket) Close() error {
	err := s.ls.Close()
	s.pending.CloseAll()
	return err
}

func (s *SecureListenSocket) logAccept(outcome log.AcceptOutcome) {
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerSocket,
		Category:  log.CategoryAccept,
		LocalRole: log.RoleServer,
		Accept: &log.AcceptEvent{
			Outcome:    outcome,
			ListenAddr: s.ls.Addr().String(),
		},
	})
}

func (s *SecureListenSocket) logAcceptError(outcome log.AcceptOutcome, err error, context string) {
	s.logAccept(outcome)

	layer := log.LayerSocket
	if outcome == log.AcceptOutcomeCertificateError {
		layer = log.LayerSecurity
	}
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     layer,
		Category:  log.CategoryError,
		LocalRole: log.RoleServer,
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: context,
		},
	})
}
