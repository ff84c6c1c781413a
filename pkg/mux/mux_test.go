package mux_test

import (
	"net"
	"testing"
	"time"

	"github.com/deskflow/deskflow-go/pkg/mux"
)

func newTestMux(t *testing.T) *mux.Multiplexer {
	t.Helper()
	m := mux.New(mux.Config{WatchInterval: 20 * time.Millisecond})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop() })
	return m
}

func newLoopbackListener(t *testing.T) *net.TCPListener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	return ln.(*net.TCPListener)
}

func dial(t *testing.T, addr net.Addr) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestRegisterDispatchesOnReadiness(t *testing.T) {
	m := newTestMux(t)
	ln := newLoopbackListener(t)

	fired := make(chan struct{})
	err := m.Register(ln, func() { close(fired) })
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	dial(t, ln.Addr())

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run after connection became pending")
	}
}

func TestRegistrationIsOneShot(t *testing.T) {
	m := newTestMux(t)
	ln := newLoopbackListener(t)

	fired := make(chan struct{})
	if err := m.Register(ln, func() { close(fired) }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	dial(t, ln.Addr())

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}

	// Delivery consumes the registration.
	deadline := time.Now().Add(time.Second)
	for m.Registered(ln) {
		if time.Now().After(deadline) {
			t.Fatal("registration still present after dispatch")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRegisterDuplicateHandle(t *testing.T) {
	m := newTestMux(t)
	ln := newLoopbackListener(t)

	if err := m.Register(ln, func() {}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := m.Register(ln, func() {}); err != mux.ErrAlreadyRegistered {
		t.Errorf("second Register: got %v, want ErrAlreadyRegistered", err)
	}
}

func TestRegisterNilArguments(t *testing.T) {
	m := newTestMux(t)
	ln := newLoopbackListener(t)

	if err := m.Register(nil, func() {}); err != mux.ErrNilHandle {
		t.Errorf("nil handle: got %v, want ErrNilHandle", err)
	}
	if err := m.Register(ln, nil); err != mux.ErrNilJob {
		t.Errorf("nil job: got %v, want ErrNilJob", err)
	}
}

func TestUnregisterPreventsDispatch(t *testing.T) {
	m := newTestMux(t)
	ln := newLoopbackListener(t)

	fired := make(chan struct{}, 1)
	if err := m.Register(ln, func() { fired <- struct{}{} }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := m.Unregister(ln); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}

	dial(t, ln.Addr())

	select {
	case <-fired:
		t.Fatal("job ran after Unregister")
	case <-time.After(200 * time.Millisecond):
	}

	if m.Registered(ln) {
		t.Error("handle still registered after Unregister")
	}
}

func TestUnregisterUnknownHandle(t *testing.T) {
	m := newTestMux(t)
	ln := newLoopbackListener(t)

	if err := m.Unregister(ln); err != mux.ErrNotRegistered {
		t.Errorf("got %v, want ErrNotRegistered", err)
	}
}

func TestRearmDeliversNextEvent(t *testing.T) {
	m := newTestMux(t)
	ln := newLoopbackListener(t)

	dispatched := make(chan struct{}, 8)
	var job func()
	job = func() {
		// Drain the pending connection, then re-arm for the next one. The
		// watcher leaves a short deadline on the handle; push it out so the
		// accept of the already-pending connection cannot time out.
		_ = ln.SetDeadline(time.Now().Add(time.Second))
		conn, err := ln.Accept()
		if err == nil {
			_ = conn.Close()
		}
		dispatched <- struct{}{}
		_ = m.Register(ln, job)
	}

	if err := m.Register(ln, job); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	dial(t, ln.Addr())
	select {
	case <-dispatched:
	case <-time.After(2 * time.Second):
		t.Fatal("first dispatch did not happen")
	}

	dial(t, ln.Addr())
	select {
	case <-dispatched:
	case <-time.After(2 * time.Second):
		t.Fatal("second dispatch did not happen after re-arm")
	}
}

func TestDispatchIsSerial(t *testing.T) {
	m := newTestMux(t)
	lnA := newLoopbackListener(t)
	lnB := newLoopbackListener(t)

	// Jobs mutate shared state without locks; the race detector flags any
	// overlap between dispatches.
	counter := 0
	done := make(chan struct{}, 2)
	bump := func() {
		counter++
		done <- struct{}{}
	}

	if err := m.Register(lnA, bump); err != nil {
		t.Fatalf("Register A failed: %v", err)
	}
	if err := m.Register(lnB, bump); err != nil {
		t.Fatalf("Register B failed: %v", err)
	}

	dial(t, lnA.Addr())
	dial(t, lnB.Addr())

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("dispatch missing")
		}
	}

	if counter != 2 {
		t.Errorf("counter = %d, want 2", counter)
	}
}

func TestPostRunsOnDispatchLoop(t *testing.T) {
	m := newTestMux(t)

	var order []int
	done := make(chan struct{})
	for i := 1; i <= 3; i++ {
		i := i
		m.Post(func() {
			order = append(order, i)
			if i == 3 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("posted functions did not run")
	}

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("posted functions ran out of order: %v", order)
	}
}

func TestStopCancelsRegistrations(t *testing.T) {
	m := mux.New(mux.Config{WatchInterval: 20 * time.Millisecond})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ln := newLoopbackListener(t)

	fired := make(chan struct{}, 1)
	if err := m.Register(ln, func() { fired <- struct{}{} }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	dial(t, ln.Addr())

	select {
	case <-fired:
		t.Fatal("job ran after Stop")
	case <-time.After(200 * time.Millisecond):
	}

	if err := m.Register(ln, func() {}); err != mux.ErrStopped {
		t.Errorf("Register after Stop: got %v, want ErrStopped", err)
	}
}

func TestStopIdempotent(t *testing.T) {
	m := mux.New(mux.Config{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("first Stop failed: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
}

func TestStartTwice(t *testing.T) {
	m := mux.New(mux.Config{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop() })

	if err := m.Start(); err != mux.ErrAlreadyStarted {
		t.Errorf("second Start: got %v, want ErrAlreadyStarted", err)
	}
}

func TestRegisteredReflectsLifecycle(t *testing.T) {
	m := newTestMux(t)
	ln := newLoopbackListener(t)

	if m.Registered(ln) {
		t.Error("unregistered handle reported as registered")
	}
	if err := m.Register(ln, func() {}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !m.Registered(ln) {
		t.Error("registered handle reported as unregistered")
	}
	if err := m.Unregister(ln); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}
	if m.Registered(ln) {
		t.Error("handle still reported registered after Unregister")
	}
}
