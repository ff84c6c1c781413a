package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/deskflow/deskflow-go/pkg/cert"
	"github.com/deskflow/deskflow-go/pkg/config"
	"github.com/deskflow/deskflow-go/pkg/connection"
	"github.com/deskflow/deskflow-go/pkg/discovery"
	tlog "github.com/deskflow/deskflow-go/pkg/log"
	"github.com/deskflow/deskflow-go/pkg/transport"
)

// keepAliveMessage is the liveness probe exchanged on established
// channels. Receipt marks the peer alive; probes are timer-driven and
// never sent in response to one another.
var keepAliveMessage = []byte("CALV")

// client owns the dialer, the trusted-servers store and the reconnect
// loop.
type client struct {
	cfg        *config.Config
	capture    tlog.Logger
	level      transport.SecurityLevel
	serverName string
	tofu       bool

	trust  *cert.FileStore
	dialer *transport.Client
	mgr    *connection.Manager

	ctx context.Context

	mu   sync.Mutex
	conn *transport.ClientConn
}

func newClient(cfg *config.Config, capture tlog.Logger, expected cert.Fingerprint, tofu bool, serverName string) (*client, error) {
	c := &client{
		cfg:        cfg,
		capture:    capture,
		level:      cfg.Level(),
		serverName: serverName,
		tofu:       tofu,
	}

	if c.level == transport.SecurityPlaintext {
		dialer, err := transport.NewClient(transport.ClientConfig{
			Plaintext: true,
			Logger:    capture,
		})
		if err != nil {
			return nil, err
		}
		c.dialer = dialer
		return c, nil
	}

	c.trust = cert.NewFileStore(trustStorePath(cfg))
	if err := c.trust.Load(); err != nil {
		return nil, fmt.Errorf("load trust store: %w", err)
	}

	if !expected.IsZero() {
		if err := c.pin(expected); err != nil {
			return nil, err
		}
	}

	bundle, err := ensureCertificate(cfg)
	if err != nil {
		return nil, err
	}
	log.Printf("Client fingerprint: %s", bundle.Fingerprint)

	// Trust decisions happen after the handshake, against the
	// fingerprint store; TrustAny is what gets us the fingerprint to
	// judge.
	dialer, err := transport.NewClient(transport.ClientConfig{
		TrustAny: true,
		Bundle:   bundle,
		Logger:   capture,
	})
	if err != nil {
		return nil, err
	}
	c.dialer = dialer
	return c, nil
}

// trustStorePath returns the trusted-servers store location: the
// configured path, or the profile default next to the certificate.
func trustStorePath(cfg *config.Config) string {
	if cfg.TrustStore != "" {
		return cfg.TrustStore
	}
	return filepath.Join(cfg.Profile(), cert.DefaultDirName, "trusted-servers")
}

// ensureCertificate loads the client credential, generating a
// self-signed bundle on first run. An explicit override path never
// triggers generation.
func ensureCertificate(cfg *config.Config) (*cert.Bundle, error) {
	path := cfg.Locator().Resolve(cfg.Certificate)

	bundle, err := cert.LoadBundle(path)
	if err == nil || cfg.Certificate != "" {
		return bundle, err
	}
	if !errors.Is(err, cert.ErrBundleNotFound) {
		return nil, err
	}

	log.Printf("Generating certificate bundle at %s", path)
	return cert.GenerateBundle(path, cfg.ScreenName, 0)
}

// pin trusts an operator-supplied fingerprint before the first
// connection attempt.
func (c *client) pin(fp cert.Fingerprint) error {
	entry := cert.TrustEntry{
		Fingerprint: fp,
		Name:        c.serverName,
		AddedAt:     time.Now(),
	}
	if err := c.trust.Add(entry); err != nil {
		if errors.Is(err, cert.ErrAlreadyTrusted) {
			return nil
		}
		return err
	}
	return c.trust.Save()
}

// start connects to the server and keeps reconnecting until stop.
func (c *client) start(ctx context.Context) error {
	c.ctx = ctx

	mgr, err := connection.NewManager(connection.ManagerConfig{
		Connect:    c.connect,
		Backoff:    connection.BackoffConfig{Jitter: connection.DefaultJitter},
		ServerName: c.serverName,
		Logger:     c.capture,
	})
	if err != nil {
		return err
	}
	mgr.OnStateChange(func(oldState, newState connection.State) {
		log.Printf("[EVENT] Connection state: %s -> %s", oldState, newState)
	})
	mgr.OnRetry(func(attempt int, delay time.Duration) {
		log.Printf("Reconnecting in %s (attempt %d)", delay.Round(time.Millisecond), attempt)
	})
	c.mgr = mgr

	return mgr.Connect(ctx)
}

// connect performs one locate-dial-verify attempt. It is the manager's
// ConnectFunc, so every reconnect re-resolves the server: a server that
// moved hosts is found again through discovery.
func (c *client) connect(ctx context.Context) error {
	addr, svc, err := c.resolve(ctx)
	if err != nil {
		return err
	}

	conn, err := c.dialer.Connect(ctx, addr)
	if err != nil {
		return err
	}

	if c.level.Secure() {
		if err := c.verifyServer(conn, svc); err != nil {
			conn.Close()
			return err
		}
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	log.Printf("[EVENT] Connected to %s", conn.RemoteAddr())
	go c.serve(conn)
	return nil
}

// resolve determines the server address: the configured one, or the
// one discovered via mDNS.
func (c *client) resolve(ctx context.Context) (string, *discovery.ServerService, error) {
	if c.cfg.Server != "" {
		return c.cfg.Server, nil, nil
	}
	if !c.cfg.Discovery.Enabled {
		return "", nil, errors.New("no server address configured and discovery is disabled")
	}

	svc, err := c.discover(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("discover server: %w", err)
	}

	addr := svc.Addr()
	if addr == "" {
		return "", nil, fmt.Errorf("server %q advertised no addresses", svc.InstanceName)
	}

	log.Printf("Discovered %q at %s (version %s)", svc.InstanceName, addr, svc.Version)
	return addr, svc, nil
}

// discover browses for the named server, or for the first compatible
// one when no name was given.
func (c *client) discover(ctx context.Context) (*discovery.ServerService, error) {
	browserCfg := discovery.DefaultBrowserConfig()
	browserCfg.Interface = c.cfg.Discovery.Interface

	browser, err := discovery.NewMDNSBrowser(browserCfg)
	if err != nil {
		return nil, err
	}
	defer browser.Stop()

	if c.serverName != "" {
		log.Printf("Discovering server %q via mDNS...", c.serverName)
		return browser.FindByName(ctx, c.serverName)
	}

	log.Println("Discovering servers via mDNS...")
	ctx, cancel := context.WithTimeout(ctx, browserCfg.BrowseTimeout)
	defer cancel()

	results, err := browser.Browse(ctx)
	if err != nil {
		return nil, err
	}

	for {
		select {
		case svc, ok := <-results:
			if !ok {
				return nil, discovery.ErrNotFound
			}
			if svc.Compatible() {
				return svc, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// verifyServer checks the presented certificate fingerprint against
// the trust store, trusting it on first use when enabled. A discovered
// server additionally has to present the fingerprint it advertised.
func (c *client) verifyServer(conn *transport.ClientConn, svc *discovery.ServerService) error {
	fp := conn.Fingerprint()
	if fp.IsZero() {
		return errors.New("server presented no certificate")
	}

	if svc != nil && !svc.Fingerprint.IsZero() && svc.Fingerprint != fp {
		return fmt.Errorf("server %q presented %s but advertised %s",
			svc.InstanceName, fp, svc.Fingerprint)
	}

	if c.trust.Contains(fp) {
		log.Printf("Server fingerprint verified: %s", fp)
		return nil
	}

	if !c.tofu {
		return fmt.Errorf("server fingerprint not trusted: %s (re-run with -tofu to trust it, or pass -fingerprint)", fp)
	}

	name := c.serverName
	if svc != nil {
		name = svc.InstanceName
	}
	entry := cert.TrustEntry{
		Fingerprint: fp,
		Name:        name,
		AddedAt:     time.Now(),
	}
	if err := c.trust.Add(entry); err != nil && !errors.Is(err, cert.ErrAlreadyTrusted) {
		return err
	}
	if err := c.trust.Save(); err != nil {
		return fmt.Errorf("persist trust store: %w", err)
	}

	log.Printf("[EVENT] Trusted new server fingerprint: %s", fp)
	return nil
}

// serve reads frames until the connection fails, answering keep-alive
// probes, then reports the loss to the reconnect manager.
func (c *client) serve(conn *transport.ClientConn) {
	var ka *transport.KeepAlive
	if interval := c.cfg.KeepAlive.Interval.Std(); interval > 0 {
		ka = transport.NewKeepAlive(
			transport.KeepAliveConfig{
				Interval:  interval,
				MaxMissed: c.cfg.KeepAlive.MissedLimit,
			},
			func() error { return conn.Send(keepAliveMessage) },
			func(missed int) {
				log.Printf("[EVENT] Server timed out (%d missed keep-alives)", missed)
				conn.Close()
			},
		)
		ka.SetLogger(c.capture, conn.ID())
		ka.Start(c.ctx)
		defer ka.Stop()
	}

	for {
		frame, err := conn.Receive(0)
		if err != nil {
			break
		}
		if bytes.Equal(frame, keepAliveMessage) {
			if ka != nil {
				ka.ProbeReceived()
			}
			continue
		}
		// The transport carries frames without interpreting them; the
		// capture logger has already recorded this one.
	}

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()

	select {
	case <-c.ctx.Done():
		return
	default:
	}

	log.Printf("[EVENT] Connection to server lost")
	c.mgr.ConnectionLost()
}

// stop shuts the reconnect loop down and closes the connection.
func (c *client) stop() {
	if c.mgr != nil {
		c.mgr.Close()
	}

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
