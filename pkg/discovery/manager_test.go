package discovery_test

import (
	"context"
	"errors"
	"testing"

	"github.com/deskflow/deskflow-go/pkg/cert"
	"github.com/deskflow/deskflow-go/pkg/discovery"
	"github.com/deskflow/deskflow-go/pkg/discovery/mocks"
	"github.com/deskflow/deskflow-go/pkg/transport"
	"github.com/stretchr/testify/mock"
)

func testServerInfo() *discovery.ServerInfo {
	return &discovery.ServerInfo{
		ScreenName:  "office",
		Port:        24800,
		Fingerprint: cert.NewFingerprint([]byte("test certificate")),
		Level:       transport.SecurityPeerAuth,
	}
}

func TestManagerStartStop(t *testing.T) {
	advertiser := mocks.NewMockAdvertiser(t)
	advertiser.EXPECT().Advertise(mock.Anything, mock.Anything).Return(nil).Once()
	advertiser.EXPECT().Stop().Return(nil).Once()

	m := discovery.NewManager(advertiser)
	m.SetInfo(testServerInfo())

	var transitions []bool
	m.OnStateChange(func(advertising bool) {
		transitions = append(transitions, advertising)
	})

	if m.Advertising() {
		t.Fatal("Advertising() = true before Start")
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !m.Advertising() {
		t.Error("Advertising() = false after Start")
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if m.Advertising() {
		t.Error("Advertising() = true after Stop")
	}

	if len(transitions) != 2 || !transitions[0] || transitions[1] {
		t.Errorf("state transitions = %v, want [true false]", transitions)
	}
}

func TestManagerStartWithoutInfo(t *testing.T) {
	advertiser := mocks.NewMockAdvertiser(t)

	m := discovery.NewManager(advertiser)
	if err := m.Start(context.Background()); !errors.Is(err, discovery.ErrMissingRequired) {
		t.Errorf("Start() error = %v, want ErrMissingRequired", err)
	}
}

func TestManagerStartInvalidInfo(t *testing.T) {
	advertiser := mocks.NewMockAdvertiser(t)

	m := discovery.NewManager(advertiser)
	m.SetInfo(&discovery.ServerInfo{Level: transport.SecurityPeerAuth})

	if err := m.Start(context.Background()); !errors.Is(err, discovery.ErrInvalidInstanceName) {
		t.Errorf("Start() error = %v, want ErrInvalidInstanceName", err)
	}
}

func TestManagerStartAdvertiseError(t *testing.T) {
	wantErr := errors.New("register failed")

	advertiser := mocks.NewMockAdvertiser(t)
	advertiser.EXPECT().Advertise(mock.Anything, mock.Anything).Return(wantErr).Once()

	m := discovery.NewManager(advertiser)
	m.SetInfo(testServerInfo())

	if err := m.Start(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("Start() error = %v, want %v", err, wantErr)
	}
	if m.Advertising() {
		t.Error("Advertising() = true after failed Start")
	}
}

func TestManagerRestartReplacesAdvertisement(t *testing.T) {
	advertiser := mocks.NewMockAdvertiser(t)
	advertiser.EXPECT().Advertise(mock.Anything, mock.Anything).Return(nil).Twice()

	m := discovery.NewManager(advertiser)
	m.SetInfo(testServerInfo())

	stateChanges := 0
	m.OnStateChange(func(bool) { stateChanges++ })

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	// Second Start re-registers but is not a state transition
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	if stateChanges != 1 {
		t.Errorf("state changes = %d, want 1", stateChanges)
	}
}

func TestManagerStopIdle(t *testing.T) {
	advertiser := mocks.NewMockAdvertiser(t)

	m := discovery.NewManager(advertiser)
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() on idle manager error = %v", err)
	}
}

func TestManagerUpdateFingerprint(t *testing.T) {
	newFP := cert.NewFingerprint([]byte("rotated certificate"))

	advertiser := mocks.NewMockAdvertiser(t)
	advertiser.EXPECT().Advertise(mock.Anything, mock.Anything).Return(nil).Once()
	advertiser.EXPECT().Update(mock.Anything).Run(func(info *discovery.ServerInfo) {
		if info.Fingerprint != newFP {
			t.Errorf("updated fingerprint = %v, want %v", info.Fingerprint, newFP)
		}
		if info.ScreenName != "office" {
			t.Errorf("updated screen name = %q, want \"office\"", info.ScreenName)
		}
	}).Return(nil).Once()

	m := discovery.NewManager(advertiser)
	m.SetInfo(testServerInfo())

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.UpdateFingerprint(newFP); err != nil {
		t.Fatalf("UpdateFingerprint() error = %v", err)
	}
}

func TestManagerUpdateFingerprintNotAdvertising(t *testing.T) {
	advertiser := mocks.NewMockAdvertiser(t)

	m := discovery.NewManager(advertiser)
	m.SetInfo(testServerInfo())

	err := m.UpdateFingerprint(cert.NewFingerprint([]byte("x")))
	if !errors.Is(err, discovery.ErrNotAdvertising) {
		t.Errorf("UpdateFingerprint() error = %v, want ErrNotAdvertising", err)
	}
}
