package mux

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/deskflow/deskflow-go/pkg/log"
)

// Errors returned by the multiplexer.
var (
	// ErrAlreadyRegistered is returned when the handle already has an
	// active registration.
	ErrAlreadyRegistered = errors.New("handle already registered")

	// ErrNotRegistered is returned when unregistering a handle that has
	// no active registration.
	ErrNotRegistered = errors.New("handle not registered")

	// ErrNilHandle is returned when registering a nil handle.
	ErrNilHandle = errors.New("handle is nil")

	// ErrNilJob is returned when registering a nil job.
	ErrNilJob = errors.New("job is nil")

	// ErrAlreadyStarted is returned when starting a running multiplexer.
	ErrAlreadyStarted = errors.New("multiplexer already started")

	// ErrStopped is returned when using a stopped multiplexer.
	ErrStopped = errors.New("multiplexer stopped")
)

// Pollable is a socket-backed handle whose readability can be watched.
// *net.TCPListener and *net.TCPConn satisfy it. The handle must stay open
// while registered; the owner closes it only after Unregister.
type Pollable interface {
	SyscallConn() (syscall.RawConn, error)
	SetDeadline(t time.Time) error
}

// Job is a readiness callback. It runs on the dispatch goroutine when the
// registered handle becomes readable, exactly once per registration.
type Job func()

// Config holds multiplexer options.
type Config struct {
	// WatchInterval bounds how long a cancelled watcher can stay parked.
	// Defaults to 250ms.
	WatchInterval time.Duration

	// QueueSize is the readiness and post queue capacity. Defaults to 128.
	QueueSize int

	// EventLogger receives multiplexer events. Defaults to NoopLogger.
	EventLogger log.Logger
}

// registration ties one handle to one pending job.
type registration struct {
	handle    Pollable
	job       Job
	cancelled atomic.Bool
}

// Multiplexer watches registered socket handles for readability and runs
// their jobs serially on a single dispatch goroutine.
type Multiplexer struct {
	tick   time.Duration
	logger log.Logger

	mu      sync.Mutex
	regs    map[Pollable]*registration
	started bool
	stopped bool

	ready  chan *registration
	posts  chan func()
	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Multiplexer with the given configuration.
func New(cfg Config) *Multiplexer {
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = 250 * time.Millisecond
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	if cfg.EventLogger == nil {
		cfg.EventLogger = log.NoopLogger{}
	}

	return &Multiplexer{
		tick:   cfg.WatchInterval,
		logger: cfg.EventLogger,
		regs:   make(map[Pollable]*registration),
		ready:  make(chan *registration, cfg.QueueSize),
		posts:  make(chan func(), cfg.QueueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the dispatch goroutine.
func (m *Multiplexer) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStopped
	}
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true

	go m.run()
	return nil
}

// Stop cancels every registration and waits for the dispatch goroutine to
// exit. Safe to call more than once.
func (m *Multiplexer) Stop() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	wasStarted := m.started

	for _, reg := range m.regs {
		reg.cancelled.Store(true)
		_ = reg.handle.SetDeadline(time.Now())
	}
	m.regs = make(map[Pollable]*registration)
	m.mu.Unlock()

	close(m.stopCh)
	if wasStarted {
		<-m.doneCh
	}
	return nil
}

// Register arms a one-shot readiness watch: when the handle becomes
// readable, job runs once on the dispatch goroutine and the registration
// is consumed. A handle may hold at most one registration at a time.
func (m *Multiplexer) Register(p Pollable, job Job) error {
	if p == nil {
		return ErrNilHandle
	}
	if job == nil {
		return ErrNilJob
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	if _, exists := m.regs[p]; exists {
		m.mu.Unlock()
		return ErrAlreadyRegistered
	}
	reg := &registration{handle: p, job: job}
	m.regs[p] = reg
	m.mu.Unlock()

	go m.watch(reg)
	return nil
}

// Unregister cancels the handle's registration. After Unregister returns,
// the registration's job will not run; a readiness event already queued is
// discarded at dispatch.
func (m *Multiplexer) Unregister(p Pollable) error {
	if p == nil {
		return ErrNilHandle
	}

	m.mu.Lock()
	reg, exists := m.regs[p]
	if exists {
		delete(m.regs, p)
	}
	m.mu.Unlock()

	if !exists {
		return ErrNotRegistered
	}

	reg.cancelled.Store(true)
	// Wake a parked watcher so it exits promptly rather than at the next tick.
	_ = p.SetDeadline(time.Now())
	return nil
}

// Registered reports whether the handle currently holds a registration.
func (m *Multiplexer) Registered(p Pollable) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.regs[p]
	return exists
}

// Post schedules fn on the dispatch goroutine, serialized with readiness
// jobs. Calls after Stop are dropped. Post must not be called from the
// dispatch goroutine itself; jobs already run there.
func (m *Multiplexer) Post(fn func()) {
	if fn == nil {
		return
	}
	select {
	case m.posts <- fn:
	case <-m.stopCh:
	}
}

// run is the dispatch loop. Jobs and posted functions execute here, one at
// a time, in arrival order.
func (m *Multiplexer) run() {
	defer close(m.doneCh)

	for {
		select {
		case <-m.stopCh:
			return
		case reg := <-m.ready:
			m.dispatch(reg)
		case fn := <-m.posts:
			fn()
		}
	}
}

// dispatch consumes the registration and runs its job, unless the
// registration was cancelled or superseded while the event was queued.
func (m *Multiplexer) dispatch(reg *registration) {
	m.mu.Lock()
	current := m.regs[reg.handle] == reg && !reg.cancelled.Load()
	if current {
		delete(m.regs, reg.handle)
	}
	m.mu.Unlock()

	if current {
		reg.job()
	}
}

// watch parks until the handle is readable, then queues the registration
// for dispatch. The deadline tick bounds how long a cancelled watcher can
// linger, and exits promptly on the Unregister poke.
func (m *Multiplexer) watch(reg *registration) {
	rc, err := reg.handle.SyscallConn()
	if err != nil {
		m.dropFailed(reg, err)
		return
	}

	for {
		if reg.cancelled.Load() {
			return
		}

		_ = reg.handle.SetDeadline(time.Now().Add(m.tick))
		err := waitReadable(rc)
		if reg.cancelled.Load() {
			return
		}

		switch {
		case err == nil:
			select {
			case m.ready <- reg:
			case <-m.stopCh:
			}
			return
		case errors.Is(err, os.ErrDeadlineExceeded):
			continue
		default:
			m.dropFailed(reg, err)
			return
		}
	}
}

// dropFailed removes a registration whose handle can no longer be watched,
// typically because it was closed underneath us.
func (m *Multiplexer) dropFailed(reg *registration, err error) {
	m.mu.Lock()
	if m.regs[reg.handle] == reg {
		delete(m.regs, reg.handle)
	}
	m.mu.Unlock()

	m.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerMux,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerMux,
			Message: err.Error(),
			Context: "watch handle",
		},
	})
}

// waitReadable blocks until the raw connection's descriptor is readable.
// The callback is invoked once before parking and once after wakeup; the
// handle's pending data is left untouched.
func waitReadable(rc syscall.RawConn) error {
	attempts := 0
	return rc.Read(func(uintptr) bool {
		attempts++
		return attempts > 1
	})
}
