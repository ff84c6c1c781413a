package transport

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/deskflow/deskflow-go/pkg/log"
	"github.com/deskflow/deskflow-go/pkg/mux"
)

// PlainListenConfig configures a PlainListenSocket.
type PlainListenConfig struct {
	// Address is the TCP listen address. Defaults to ":24800".
	Address string

	// Mux drives readiness notification. Required.
	Mux *mux.Multiplexer

	// Logger receives transport events. Defaults to a no-op logger.
	Logger log.Logger

	// OnResult is invoked with the outcome of every readiness-driven
	// accept attempt. Optional.
	OnResult func(AcceptResult, error)
}

// PlainListenSocket accepts TCP connections without a security
// upgrade. Accepted channels are usable immediately. It shares the
// accept behavior of SecureListenSocket: attempts never block, and the
// listener is re-armed on every return path.
type PlainListenSocket struct {
	cfg    PlainListenConfig
	ls     *ListenSocket
	logger log.Logger
}

// ListenPlain binds cfg.Address and returns a plaintext listener.
func ListenPlain(cfg PlainListenConfig) (*PlainListenSocket, error) {
	if cfg.Mux == nil {
		return nil, errors.New("multiplexer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NoopLogger{}
	}

	ls, err := newListenSocket(cfg.Address, cfg.Mux, cfg.Logger)
	if err != nil {
		return nil, err
	}

	p := &PlainListenSocket{cfg: cfg, ls: ls, logger: cfg.Logger}
	ls.setReadyHandler(p.onReady)
	return p, nil
}

// Addr returns the bound listen address.
func (p *PlainListenSocket) Addr() net.Addr { return p.ls.Addr() }

// Arm registers the listener for the next readiness notification.
func (p *PlainListenSocket) Arm() error { return p.ls.Arm() }

// Armed reports whether a readiness registration is present.
func (p *PlainListenSocket) Armed() bool { return p.ls.Armed() }

func (p *PlainListenSocket) onReady() {
	res, err := p.Accept()
	if p.cfg.OnResult != nil {
		p.cfg.OnResult(res, err)
	}
}

// Accept performs one accept attempt. The returned channel carries no
// encryption and is ready for use.
func (p *PlainListenSocket) Accept() (AcceptResult, error) {
	if !p.ls.open() {
		return AcceptResult{}, ErrNotListening
	}

	defer p.rearm()

	raw, err := p.ls.accept()
	if err != nil {
		switch {
		case isWouldBlock(err):
			p.logAccept(log.AcceptOutcomeEmpty)
			return AcceptResult{Kind: AcceptEmpty}, nil
		case isNetworkError(err):
			p.logAccept(log.AcceptOutcomeNetworkError)
			return AcceptResult{Kind: AcceptNetworkFailure, Err: err}, nil
		case errors.Is(err, net.ErrClosed):
			return AcceptResult{}, ErrListenerClosed
		default:
			return AcceptResult{}, fmt.Errorf("accept on %s: %w", p.ls.Addr(), err)
		}
	}

	p.logAccept(log.AcceptOutcomeConnection)
	return AcceptResult{
		Kind: AcceptConnection,
		Conn: &plainChannel{Conn: raw, id: uuid.New().String()},
	}, nil
}

func (p *PlainListenSocket) rearm() {
	_ = p.ls.Arm()
}

// Close stops accepting.
func (p *PlainListenSocket) Close() error { return p.ls.Close() }

func (p *PlainListenSocket) logAccept(outcome log.AcceptOutcome) {
	p.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerSocket,
		Category:  log.CategoryAccept,
		LocalRole: log.RoleServer,
		Accept: &log.AcceptEvent{
			Outcome:    outcome,
			ListenAddr: p.ls.Addr().String(),
		},
	})
}

// plainChannel is an accepted connection with no security layer.
type plainChannel struct {
	net.Conn
	id string
}

// ID returns the unique connection identifier.
func (p *plainChannel) ID() string { return p.id }
