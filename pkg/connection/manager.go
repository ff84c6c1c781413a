package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/deskflow/deskflow-go/pkg/log"
)

// Connection lifecycle errors.
var (
	ErrClosed           = errors.New("connection manager closed")
	ErrAlreadyConnected = errors.New("already connected")
	ErrConnectRequired  = errors.New("connect function is required")
)

// DefaultConnectTimeout bounds a single dial-and-handshake attempt
// made by the retry loop.
const DefaultConnectTimeout = 30 * time.Second

// State is the client connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection and no retry in
	// progress.
	StateDisconnected State = iota

	// StateConnecting indicates a caller-initiated attempt is in
	// progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateReconnecting indicates the retry loop is re-dialing after a
	// lost connection.
	StateReconnecting

	// StateClosed indicates the manager is shut down.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectFunc performs one dial-and-handshake attempt. It returns nil
// once the connection is usable.
type ConnectFunc func(ctx context.Context) error

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Connect performs one connection attempt. Required.
	Connect ConnectFunc

	// Backoff customizes retry timing.
	Backoff BackoffConfig

	// ConnectTimeout bounds each attempt made by the retry loop.
	// Defaults to DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// MaxAttempts stops the retry loop after this many consecutive
	// failures. Zero retries forever.
	MaxAttempts int

	// ServerName is the screen name of the targeted server, recorded
	// in lifecycle events.
	ServerName string

	// Logger receives lifecycle events. Defaults to a no-op logger.
	Logger log.Logger
}

// Manager tracks the client connection state and re-dials with backoff
// when the link is lost. Dialing itself is delegated to the configured
// ConnectFunc.
type Manager struct {
	cfg ManagerConfig

	mu    sync.RWMutex
	state State

	backoff       *Backoff
	autoReconnect bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// coalesces loss notifications while a retry run is active
	retryCh chan struct{}

	onStateChange  func(oldState, newState State)
	onConnected    func()
	onDisconnected func()
	onRetry        func(attempt int, delay time.Duration)
	onGiveUp       func()
}

// NewManager creates a connection manager and starts its retry loop.
// Call Close to release it.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Connect == nil {
		return nil, ErrConnectRequired
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NoopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:           cfg,
		state:         StateDisconnected,
		backoff:       NewBackoff(cfg.Backoff),
		autoReconnect: true,
		ctx:           ctx,
		cancel:        cancel,
		retryCh:       make(chan struct{}, 1),
	}

	m.wg.Add(1)
	go m.retryLoop()

	return m, nil
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Connected reports whether a connection is currently active.
func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}

// Attempts returns the number of retries since the last successful
// connect.
func (m *Manager) Attempts() int {
	return m.backoff.Attempts()
}

// SetAutoReconnect enables or disables re-dialing on connection loss.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoReconnect = enabled
}

// OnStateChange sets a callback for state transitions.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnConnected sets a callback invoked after each successful connect.
func (m *Manager) OnConnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnected = fn
}

// OnDisconnected sets a callback invoked when the connection goes away.
func (m *Manager) OnDisconnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnected = fn
}

// OnRetry sets a callback invoked before each retry wait.
func (m *Manager) OnRetry(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRetry = fn
}

// OnGiveUp sets a callback invoked when MaxAttempts is exhausted.
func (m *Manager) OnGiveUp(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onGiveUp = fn
}

// Connect performs a caller-initiated connection attempt.
func (m *Manager) Connect(ctx context.Context) error {
	if err := m.transition(StateConnecting, ""); err != nil {
		return err
	}

	if err := m.cfg.Connect(ctx); err != nil {
		m.setState(StateDisconnected, err.Error())
		return err
	}

	m.backoff.Reset()
	m.setState(StateConnected, "")
	return nil
}

// Disconnect drops to DISCONNECTED without re-dialing. Going down on
// purpose is not a loss.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.setState(StateDisconnected, "disconnect requested")
}

// ConnectionLost reports a detected link failure (read error, missed
// keepalives). Starts the retry loop when auto-reconnect is on.
func (m *Manager) ConnectionLost() {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	auto := m.autoReconnect
	m.mu.Unlock()

	if auto {
		m.setState(StateReconnecting, "connection lost")
		select {
		case m.retryCh <- struct{}{}:
		default:
		}
		return
	}

	m.setState(StateDisconnected, "connection lost")
}

// Close shuts the manager down and waits for the retry loop to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.setState(StateClosed, "")
	m.cancel()
	m.wg.Wait()
}

// transition moves to next if the current state allows starting a
// connect attempt.
func (m *Manager) transition(next State, reason string) error {
	m.mu.Lock()
	switch m.state {
	case StateClosed:
		m.mu.Unlock()
		return ErrClosed
	case StateConnected:
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.mu.Unlock()

	m.setState(next, reason)
	return nil
}

// setState records the transition, logs it, and fires callbacks.
// Callbacks run outside the lock. CLOSED is terminal.
func (m *Manager) setState(next State, reason string) {
	m.mu.Lock()
	old := m.state
	if old == next || old == StateClosed {
		m.mu.Unlock()
		return
	}
	m.state = next
	stateCb := m.onStateChange
	connectedCb := m.onConnected
	disconnectedCb := m.onDisconnected
	m.mu.Unlock()

	m.cfg.Logger.Log(log.Event{
		Timestamp:  time.Now(),
		Layer:      log.LayerSocket,
		Category:   log.CategoryState,
		LocalRole:  log.RoleClient,
		ScreenName: m.cfg.ServerName,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityClient,
			OldState: old.String(),
			NewState: next.String(),
			Reason:   reason,
		},
	})

	if stateCb != nil {
		stateCb(old, next)
	}
	if next == StateConnected && connectedCb != nil {
		connectedCb()
	}
	if old == StateConnected && disconnectedCb != nil {
		disconnectedCb()
	}
}

// retryLoop waits for loss notifications and re-dials with backoff.
func (m *Manager) retryLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.retryCh:
			m.retry()
		}
	}
}

// retry re-dials until connected, closed, or MaxAttempts is exhausted.
func (m *Manager) retry() {
	for {
		switch m.State() {
		case StateClosed, StateConnected, StateDisconnected:
			return
		}

		if m.cfg.MaxAttempts > 0 && m.backoff.Attempts() >= m.cfg.MaxAttempts {
			m.mu.RLock()
			giveUpCb := m.onGiveUp
			m.mu.RUnlock()

			m.setState(StateDisconnected, "retry limit reached")
			if giveUpCb != nil {
				giveUpCb()
			}
			return
		}

		delay := m.backoff.Next()

		m.mu.RLock()
		retryCb := m.onRetry
		m.mu.RUnlock()
		if retryCb != nil {
			retryCb(m.backoff.Attempts(), delay)
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(delay):
		}

		if s := m.State(); s != StateReconnecting {
			return
		}

		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.ConnectTimeout)
		err := m.cfg.Connect(ctx)
		cancel()

		if err == nil {
			m.backoff.Reset()
			m.setState(StateConnected, "")
			return
		}
		// Failed; loop for the next delay
	}
}
