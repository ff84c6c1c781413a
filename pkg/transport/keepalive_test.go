package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deskflow/deskflow-go/pkg/log"
)

func TestKeepAliveConfig(t *testing.T) {
	config := DefaultKeepAliveConfig()

	if config.Interval != DefaultKeepAliveInterval {
		t.Errorf("Interval = %v, want %v", config.Interval, DefaultKeepAliveInterval)
	}
	if config.MaxMissed != DefaultMaxMissed {
		t.Errorf("MaxMissed = %d, want %d", config.MaxMissed, DefaultMaxMissed)
	}

	// Verify detection delay calculation
	delay := config.DetectionDelay()
	expected := 9 * time.Second
	if delay != expected {
		t.Errorf("DetectionDelay = %v, want %v", delay, expected)
	}
}

func TestKeepAliveBasic(t *testing.T) {
	var probeCount atomic.Int32

	config := KeepAliveConfig{
		Interval:  30 * time.Millisecond,
		MaxMissed: 3,
	}

	ka := NewKeepAlive(config,
		func() error {
			probeCount.Add(1)
			return nil
		},
		func(missed int) {
			t.Errorf("timeout called with %d missed", missed)
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ka.Start(ctx)

	// Keep feeding inbound traffic so the peer never goes silent
	for i := 0; i < 4; i++ {
		time.Sleep(25 * time.Millisecond)
		ka.ProbeReceived()
	}

	ka.Stop()

	if probeCount.Load() < 2 {
		t.Errorf("expected at least 2 probes, got %d", probeCount.Load())
	}
}

func TestKeepAliveTimeout(t *testing.T) {
	var timeoutMissed atomic.Int32
	done := make(chan struct{})

	config := KeepAliveConfig{
		Interval:  20 * time.Millisecond,
		MaxMissed: 2,
	}

	ka := NewKeepAlive(config,
		func() error { return nil },
		func(missed int) {
			timeoutMissed.Store(int32(missed))
			close(done)
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ka.Start(ctx)

	// Never call ProbeReceived: the peer stays silent.
	// Timeout should occur after roughly 2 * 20ms.
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected timeout to be called")
	}

	if got := timeoutMissed.Load(); got < 2 {
		t.Errorf("timeout missed count = %d, want >= 2", got)
	}

	// Monitoring stops once the peer is declared dead
	time.Sleep(10 * time.Millisecond)
	if ka.IsRunning() {
		t.Error("should not be running after timeout")
	}
}

func TestKeepAliveProbeResetsCounter(t *testing.T) {
	config := KeepAliveConfig{
		Interval:  25 * time.Millisecond,
		MaxMissed: 5,
	}

	ka := NewKeepAlive(config,
		func() error { return nil },
		func(missed int) {
			t.Errorf("timeout should not be called (missed=%d)", missed)
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ka.Start(ctx)

	// Stay silent long enough to miss at least one interval
	time.Sleep(60 * time.Millisecond)

	stats := ka.Stats()
	if stats.Missed == 0 {
		t.Error("expected missed intervals after silence")
	}

	// Inbound traffic resets the counter
	ka.ProbeReceived()

	stats = ka.Stats()
	if stats.Missed != 0 {
		t.Errorf("Missed should be 0 after inbound traffic, got %d", stats.Missed)
	}
	if stats.LastReceived.IsZero() {
		t.Error("LastReceived should be set")
	}

	ka.Stop()
}

func TestKeepAliveStats(t *testing.T) {
	config := KeepAliveConfig{
		Interval:  50 * time.Millisecond,
		MaxMissed: 3,
	}

	ka := NewKeepAlive(config,
		func() error { return nil },
		func(missed int) {},
	)

	// Initial stats
	stats := ka.Stats()
	if stats.Missed != 0 {
		t.Errorf("initial Missed = %d, want 0", stats.Missed)
	}
	if !stats.LastSent.IsZero() {
		t.Error("initial LastSent should be zero")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ka.Start(ctx)
	time.Sleep(20 * time.Millisecond)

	stats = ka.Stats()
	if stats.LastSent.IsZero() {
		t.Error("LastSent should be set after the initial probe")
	}

	ka.Stop()
}

func TestKeepAliveStartStop(t *testing.T) {
	ka := NewKeepAlive(DefaultKeepAliveConfig(),
		func() error { return nil },
		func(missed int) {},
	)

	if ka.IsRunning() {
		t.Error("should not be running initially")
	}

	ctx := context.Background()
	ka.Start(ctx)

	if !ka.IsRunning() {
		t.Error("should be running after Start")
	}

	// Start again should be no-op
	ka.Start(ctx)
	if !ka.IsRunning() {
		t.Error("should still be running")
	}

	ka.Stop()

	// Give it a moment to stop
	time.Sleep(10 * time.Millisecond)

	if ka.IsRunning() {
		t.Error("should not be running after Stop")
	}

	// Stop again should be no-op
	ka.Stop()
}

func TestKeepAliveContextCancel(t *testing.T) {
	var probeCount atomic.Int32

	config := KeepAliveConfig{
		Interval:  20 * time.Millisecond,
		MaxMissed: 100,
	}

	ka := NewKeepAlive(config,
		func() error {
			probeCount.Add(1)
			return nil
		},
		func(missed int) {},
	)

	ctx, cancel := context.WithCancel(context.Background())
	ka.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	countBefore := probeCount.Load()

	// Cancel context
	cancel()
	time.Sleep(50 * time.Millisecond)

	countAfter := probeCount.Load()

	// Should not have sent more probes after cancel
	if countAfter > countBefore+1 {
		t.Errorf("probes continued after cancel: before=%d, after=%d", countBefore, countAfter)
	}
}

func TestKeepAliveSendFailure(t *testing.T) {
	done := make(chan struct{})

	config := KeepAliveConfig{
		Interval:  20 * time.Millisecond,
		MaxMissed: 2,
	}

	ka := NewKeepAlive(config,
		func() error { return errors.New("broken pipe") },
		func(missed int) { close(done) },
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ka.Start(ctx)

	// Probe sends fail and the peer stays silent, so the silence check
	// still declares it dead.
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected timeout despite failing sends")
	}
}

func TestKeepAliveLogsControlEvents(t *testing.T) {
	logger := &capturingLogger{}
	done := make(chan struct{})

	config := KeepAliveConfig{
		Interval:  20 * time.Millisecond,
		MaxMissed: 2,
	}

	ka := NewKeepAlive(config,
		func() error { return nil },
		func(missed int) { close(done) },
	)
	ka.SetLogger(logger, "conn-ka")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ka.Start(ctx)

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected timeout")
	}

	var probes, timeouts int
	for _, e := range logger.Events() {
		if e.Category != log.CategoryControl || e.Control == nil {
			continue
		}
		if e.ConnectionID != "conn-ka" {
			t.Errorf("ConnectionID = %q, want %q", e.ConnectionID, "conn-ka")
		}
		switch e.Control.Type {
		case log.ControlKeepAlive:
			probes++
		case log.ControlKeepAliveTimeout:
			timeouts++
			if e.Control.Missed == nil || *e.Control.Missed < 2 {
				t.Error("timeout event should carry the missed count")
			}
		}
	}

	if probes == 0 {
		t.Error("expected probe events")
	}
	if timeouts != 1 {
		t.Errorf("expected exactly 1 timeout event, got %d", timeouts)
	}
}
