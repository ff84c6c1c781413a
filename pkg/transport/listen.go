package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/deskflow/deskflow-go/pkg/log"
	"github.com/deskflow/deskflow-go/pkg/mux"
)

// DefaultPort is the port peers listen on.
const DefaultPort = 24800

// ListenSocket owns a bound TCP listening socket and its multiplexer
// registration. While open it holds at most one registration; the
// multiplexer rejects duplicates, so arming is idempotent and the
// armed/unarmed question has a single source of truth.
type ListenSocket struct {
	ln     *net.TCPListener
	mx     *mux.Multiplexer
	logger log.Logger

	mu      sync.Mutex
	closed  bool
	onReady func()

	// acceptRaw is swappable for fault injection in tests.
	acceptRaw func(*net.TCPListener) (net.Conn, error)
}

// newListenSocket binds addr. The socket starts unarmed.
func newListenSocket(addr string, mx *mux.Multiplexer, logger log.Logger) (*ListenSocket, error) {
	if mx == nil {
		return nil, fmt.Errorf("multiplexer is required")
	}
	if addr == "" {
		addr = fmt.Sprintf(":%d", DefaultPort)
	}
	if logger == nil {
		logger = log.NoopLogger{}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return nil, fmt.Errorf("listen on %s: not a TCP listener", addr)
	}

	l := &ListenSocket{
		ln:        tcpLn,
		mx:        mx,
		logger:    logger,
		acceptRaw: rawAccept,
	}
	l.logState("", "LISTENING")
	return l, nil
}

// setReadyHandler installs the callback run on the dispatch goroutine
// when the listener becomes readable. Must be set before the first Arm.
func (l *ListenSocket) setReadyHandler(fn func()) {
	l.mu.Lock()
	l.onReady = fn
	l.mu.Unlock()
}

// Arm registers the readiness watch. A no-op when already armed; the
// listener never holds more than one registration.
func (l *ListenSocket) Arm() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrListenerClosed
	}
	l.mu.Unlock()

	err := l.mx.Register(l.ln, l.dispatchReady)
	if err != nil && !errors.Is(err, mux.ErrAlreadyRegistered) {
		return fmt.Errorf("arm listener: %w", err)
	}
	return nil
}

// Armed reports whether the readiness watch is currently registered.
func (l *ListenSocket) Armed() bool {
	return l.mx.Registered(l.ln)
}

// dispatchReady runs on the dispatch goroutine once per readiness
// event. The registration was consumed at dispatch; the handler is
// responsible for re-arming.
func (l *ListenSocket) dispatchReady() {
	l.mu.Lock()
	handler := l.onReady
	l.mu.Unlock()

	if handler != nil {
		handler()
	}
}

// Addr returns the bound address.
func (l *ListenSocket) Addr() net.Addr {
	return l.ln.Addr()
}

// accept performs one non-blocking raw accept on the listening socket.
func (l *ListenSocket) accept() (net.Conn, error) {
	l.mu.Lock()
	acceptRaw := l.acceptRaw
	l.mu.Unlock()
	return acceptRaw(l.ln)
}

// open reports whether the listener has not been closed.
func (l *ListenSocket) open() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.closed
}

// Close unregisters the readiness watch and releases the socket. The
// watch is removed before the handle is closed so no readiness job can
// fire on a dead descriptor.
func (l *ListenSocket) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	_ = l.mx.Unregister(l.ln)
	err := l.ln.Close()
	l.logState("LISTENING", "CLOSED")
	return err
}

func (l *ListenSocket) logState(from, to string) {
	l.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerSocket,
		Category:  log.CategoryState,
		LocalRole: log.RoleServer,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityListener,
			OldState: from,
			NewState: to,
		},
	})
}
