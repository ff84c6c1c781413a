package transport

import (
	"context"
	"sync"
	"time"

	"github.com/deskflow/deskflow-go/pkg/log"
)

// Keep-alive constants.
const (
	// DefaultKeepAliveInterval is the default interval between probes.
	DefaultKeepAliveInterval = 3 * time.Second

	// DefaultMaxMissed is the default number of missed intervals before
	// the peer is considered dead.
	DefaultMaxMissed = 3
)

// KeepAliveConfig configures keep-alive behavior.
//
// Keep-alive is symmetric: both sides send a probe every Interval and
// independently track time since the last inbound traffic. A peer that
// stays silent for MaxMissed consecutive intervals is considered dead.
type KeepAliveConfig struct {
	// Interval is the time between probes.
	Interval time.Duration

	// MaxMissed is the number of silent intervals before disconnect.
	MaxMissed int
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		Interval:  DefaultKeepAliveInterval,
		MaxMissed: DefaultMaxMissed,
	}
}

// DetectionDelay returns the worst-case time to detect a dead peer.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.Interval * time.Duration(c.MaxMissed)
}

// KeepAlive manages connection liveness monitoring for one connection.
type KeepAlive struct {
	config KeepAliveConfig

	// Callbacks
	sendProbe func() error
	onTimeout func(missed int)

	// State
	lastSent time.Time
	lastRecv time.Time
	missed   int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewKeepAlive creates a new keep-alive manager. sendProbe is invoked
// from the monitoring goroutine every interval; onTimeout is invoked
// once when the peer goes silent, after which monitoring stops.
func NewKeepAlive(config KeepAliveConfig, sendProbe func() error, onTimeout func(missed int)) *KeepAlive {
	if config.Interval <= 0 {
		config.Interval = DefaultKeepAliveInterval
	}
	if config.MaxMissed <= 0 {
		config.MaxMissed = DefaultMaxMissed
	}

	return &KeepAlive{
		config:    config,
		sendProbe: sendProbe,
		onTimeout: onTimeout,
		stopCh:    make(chan struct{}),
	}
}

// SetLogger configures logging for this monitor.
// Pass nil to disable logging.
func (ka *KeepAlive) SetLogger(logger log.Logger, connID string) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	ka.logger = logger
	ka.connID = connID
}

// Start begins the keep-alive monitoring loop.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	if ka.running {
		ka.mu.Unlock()
		return
	}
	ka.running = true
	ka.stopCh = make(chan struct{})
	ka.lastRecv = time.Now()
	ka.missed = 0
	ka.mu.Unlock()

	go ka.loop(ctx)
}

// Stop stops the keep-alive monitoring.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if !ka.running {
		return
	}

	ka.running = false
	close(ka.stopCh)
}

// ProbeReceived should be called for any inbound traffic from the
// peer. Probes and regular messages both count as liveness.
func (ka *KeepAlive) ProbeReceived() {
	ka.mu.Lock()
	ka.lastRecv = time.Now()
	ka.missed = 0
	ka.mu.Unlock()

	ka.logControl(log.ControlKeepAlive, log.DirectionIn, nil)
}

// IsRunning returns true if keep-alive monitoring is active.
func (ka *KeepAlive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running
}

// Stats returns current keep-alive statistics.
func (ka *KeepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return KeepAliveStats{
		LastSent:     ka.lastSent,
		LastReceived: ka.lastRecv,
		Missed:       ka.missed,
	}
}

// KeepAliveStats contains keep-alive statistics.
type KeepAliveStats struct {
	LastSent     time.Time
	LastReceived time.Time
	Missed       int
}

// loop is the main keep-alive monitoring loop.
func (ka *KeepAlive) loop(ctx context.Context) {
	ticker := time.NewTicker(ka.config.Interval)
	defer ticker.Stop()

	// Send initial probe
	ka.sendProbeMessage()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ka.stopCh:
			return
		case <-ticker.C:
			if !ka.handleTick() {
				return
			}
		}
	}
}

// sendProbeMessage sends a probe and records the time.
func (ka *KeepAlive) sendProbeMessage() {
	ka.mu.Lock()
	ka.lastSent = time.Now()
	ka.mu.Unlock()

	if err := ka.sendProbe(); err != nil {
		// Send failed. The silence check will declare the peer dead.
		return
	}

	ka.logControl(log.ControlKeepAlive, log.DirectionOut, nil)
}

// handleTick checks peer silence and sends the next probe. Returns
// false once the peer is declared dead.
func (ka *KeepAlive) handleTick() bool {
	ka.mu.Lock()
	if time.Since(ka.lastRecv) > ka.config.Interval {
		ka.missed++
	}
	missed := ka.missed
	dead := missed >= ka.config.MaxMissed
	if dead {
		ka.running = false
	}
	ka.mu.Unlock()

	if dead {
		ka.logControl(log.ControlKeepAliveTimeout, log.DirectionIn, &missed)
		if ka.onTimeout != nil {
			ka.onTimeout(missed)
		}
		return false
	}

	ka.sendProbeMessage()
	return true
}

func (ka *KeepAlive) logControl(typ log.ControlType, direction log.Direction, missed *int) {
	ka.mu.Lock()
	logger := ka.logger
	connID := ka.connID
	ka.mu.Unlock()
	if logger == nil {
		return
	}

	logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    direction,
		Layer:        log.LayerSocket,
		Category:     log.CategoryControl,
		Control: &log.ControlEvent{
			Type:   typ,
			Missed: missed,
		},
	})
}
