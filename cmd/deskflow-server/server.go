package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/deskflow/deskflow-go/cmd/deskflow-server/interactive"
	"github.com/deskflow/deskflow-go/pkg/cert"
	"github.com/deskflow/deskflow-go/pkg/config"
	"github.com/deskflow/deskflow-go/pkg/discovery"
	tlog "github.com/deskflow/deskflow-go/pkg/log"
	"github.com/deskflow/deskflow-go/pkg/mux"
	"github.com/deskflow/deskflow-go/pkg/transport"
)

// keepAliveMessage is the liveness probe exchanged on established
// channels. Receipt marks the peer alive; probes are timer-driven and
// never sent in response to one another.
var keepAliveMessage = []byte("CALV")

// server owns the listen socket, certificate material, trust store and
// mDNS advertising, and tracks established clients.
type server struct {
	cfg     *config.Config
	source  *config.Source
	capture tlog.Logger
	level   transport.SecurityLevel

	mx     *mux.Multiplexer
	secure *transport.SecureListenSocket
	plain  *transport.PlainListenSocket

	bundle *cert.Bundle
	trust  *cert.FileStore

	disc *discovery.Manager

	ctx context.Context

	mu    sync.Mutex
	conns map[string]*client
}

// client is one established connection.
type client struct {
	channel     transport.Channel
	fingerprint cert.Fingerprint
	connectedAt time.Time
}

func newServer(cfg *config.Config, capture tlog.Logger) (*server, error) {
	s := &server{
		cfg:     cfg,
		source:  config.NewSource(cfg),
		capture: capture,
		level:   cfg.Level(),
		mx:      mux.New(mux.Config{EventLogger: capture}),
		conns:   make(map[string]*client),
	}

	if s.level.Secure() {
		s.trust = cert.NewFileStore(trustStorePath(cfg))
		if err := s.trust.Load(); err != nil {
			return nil, fmt.Errorf("load trust store: %w", err)
		}
	}

	return s, nil
}

// trustStorePath returns the client trust store location: the
// configured path, or the profile default next to the certificate.
func trustStorePath(cfg *config.Config) string {
	if cfg.TrustStore != "" {
		return cfg.TrustStore
	}
	return filepath.Join(cfg.Profile(), cert.DefaultDirName, "trusted-clients")
}

// start binds the listener, arms it, and begins advertising.
func (s *server) start(ctx context.Context) error {
	s.ctx = ctx

	if err := s.mx.Start(); err != nil {
		return err
	}

	if s.level.Secure() {
		bundle, err := s.ensureCertificate()
		if err != nil {
			return err
		}
		s.bundle = bundle
	}

	if err := s.listen(); err != nil {
		return err
	}

	if s.cfg.Discovery.Enabled {
		if err := s.startDiscovery(ctx); err != nil {
			// Advertising is a convenience; the listener works without it.
			log.Printf("Warning: mDNS advertising unavailable: %v", err)
		}
	}

	return nil
}

// ensureCertificate loads the acceptor credential, generating a
// self-signed bundle on first run. An explicit override path never
// triggers generation; a missing override is an error the operator
// has to resolve.
func (s *server) ensureCertificate() (*cert.Bundle, error) {
	locator := s.cfg.Locator()
	path := locator.Resolve(s.cfg.Certificate)

	bundle, err := cert.LoadBundle(path)
	if err == nil || s.cfg.Certificate != "" {
		return bundle, err
	}
	if !errors.Is(err, cert.ErrBundleNotFound) {
		return nil, err
	}

	log.Printf("Generating certificate bundle at %s", path)
	return cert.GenerateBundle(path, s.cfg.ScreenName, 0)
}

func (s *server) listen() error {
	if s.level == transport.SecurityPlaintext {
		ls, err := transport.ListenPlain(transport.PlainListenConfig{
			Address:  s.cfg.Address,
			Mux:      s.mx,
			Logger:   s.capture,
			OnResult: s.handlePlainResult,
		})
		if err != nil {
			return err
		}
		s.plain = ls
		return ls.Arm()
	}

	var trust cert.TrustStore
	if s.trust != nil {
		trust = s.trust
	}

	ls, err := transport.ListenSecure(transport.SecureListenConfig{
		Address:          s.cfg.Address,
		Mux:              s.mx,
		Locator:          s.cfg.Locator(),
		PathSource:       s.source,
		Level:            s.level,
		TrustStore:       trust,
		HandshakeTimeout: s.cfg.HandshakeTimeout.Std(),
		Logger:           s.capture,
		OnResult:         s.handleSecureResult,
		OnEstablished:    s.handleEstablished,
		OnFailed:         s.handleFailed,
	})
	if err != nil {
		return err
	}
	s.secure = ls
	return ls.Arm()
}

func (s *server) startDiscovery(ctx context.Context) error {
	advCfg := discovery.DefaultAdvertiserConfig()
	advCfg.Interface = s.cfg.Discovery.Interface

	adv, err := discovery.NewMDNSAdvertiser(advCfg)
	if err != nil {
		return err
	}

	mgr := discovery.NewManager(adv)
	mgr.OnStateChange(func(advertising bool) {
		if advertising {
			log.Printf("[EVENT] mDNS advertising as %q", s.cfg.ScreenName)
		} else {
			log.Printf("[EVENT] mDNS advertising stopped")
		}
	})
	mgr.SetInfo(&discovery.ServerInfo{
		ScreenName:  s.cfg.ScreenName,
		Port:        listenPort(s.Addr()),
		Fingerprint: s.Fingerprint(),
		Level:       s.level,
	})

	if err := mgr.Start(ctx); err != nil {
		return err
	}
	s.disc = mgr
	return nil
}

func (s *server) handleSecureResult(res transport.AcceptResult, err error) {
	switch {
	case err != nil && !errors.Is(err, transport.ErrListenerClosed):
		log.Printf("Accept failed: %v", err)
	case res.Kind == transport.AcceptNetworkFailure:
		log.Printf("Accept failed: %v", res.Err)
	case res.Kind == transport.AcceptCertificateFailure:
		log.Printf("Certificate load failed: %v", res.Err)
	}
}

func (s *server) handlePlainResult(res transport.AcceptResult, err error) {
	if err != nil {
		if !errors.Is(err, transport.ErrListenerClosed) {
			log.Printf("Accept failed: %v", err)
		}
		return
	}
	switch res.Kind {
	case transport.AcceptConnection:
		s.addClient(res.Conn, cert.Fingerprint{})
	case transport.AcceptNetworkFailure:
		log.Printf("Accept failed: %v", res.Err)
	}
}

func (s *server) handleEstablished(conn *transport.SecureConn) {
	s.addClient(conn, conn.Fingerprint())
}

func (s *server) handleFailed(conn *transport.SecureConn, err error) {
	log.Printf("[EVENT] Handshake failed from %s: %v", conn.RemoteAddr(), err)
}

func (s *server) addClient(ch transport.Channel, fp cert.Fingerprint) {
	c := &client{
		channel:     ch,
		fingerprint: fp,
		connectedAt: time.Now(),
	}

	s.mu.Lock()
	s.conns[ch.ID()] = c
	s.mu.Unlock()

	log.Printf("[EVENT] Client connected: %s from %s", shortID(ch.ID()), ch.RemoteAddr())
	go s.serveClient(c)
}

func (s *server) removeClient(id string) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

// serveClient reads frames until the channel fails, answering
// keep-alive probes and letting the capture logger record the rest.
func (s *server) serveClient(c *client) {
	id := c.channel.ID()

	framer := transport.NewFramer(c.channel)
	framer.SetLogger(s.capture, id)

	var ka *transport.KeepAlive
	if interval := s.cfg.KeepAlive.Interval.Std(); interval > 0 {
		ka = transport.NewKeepAlive(
			transport.KeepAliveConfig{
				Interval:  interval,
				MaxMissed: s.cfg.KeepAlive.MissedLimit,
			},
			func() error { return framer.WriteFrame(keepAliveMessage) },
			func(missed int) {
				log.Printf("[EVENT] Client %s timed out (%d missed keep-alives)", shortID(id), missed)
				c.channel.Close()
			},
		)
		ka.SetLogger(s.capture, id)
		ka.Start(s.ctx)
		defer ka.Stop()
	}

	for {
		frame, err := framer.ReadFrame()
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

	s.removeClient(id)
	log.Printf("[EVENT] Client %s disconnected", shortID(id))
}

// stop tears everything down: advertising, the listener, established
// clients, the multiplexer, and persists the trust store.
func (s *server) stop() error {
	var firstErr error

	if s.disc != nil {
		if err := s.disc.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	var closeErr error
	switch {
	case s.secure != nil:
		closeErr = s.secure.Close()
	case s.plain != nil:
		closeErr = s.plain.Close()
	}
	if closeErr != nil && firstErr == nil {
		firstErr = closeErr
	}

	s.mu.Lock()
	conns := make([]*client, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.channel.Close()
	}

	if err := s.mx.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}

	if s.trust != nil {
		if err := s.trust.Save(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Addr returns the bound listen address.
func (s *server) Addr() net.Addr {
	switch {
	case s.secure != nil:
		return s.secure.Addr()
	case s.plain != nil:
		return s.plain.Addr()
	default:
		return nil
	}
}

// ScreenName returns the advertised screen name.
func (s *server) ScreenName() string {
	return s.cfg.ScreenName
}

// SecurityLevel returns the configured security posture.
func (s *server) SecurityLevel() transport.SecurityLevel {
	return s.level
}

// Fingerprint returns the local certificate fingerprint, zero when
// running plaintext.
func (s *server) Fingerprint() cert.Fingerprint {
	if s.bundle == nil {
		return cert.Fingerprint{}
	}
	return s.bundle.Fingerprint
}

// Connections returns the established connections, oldest first.
func (s *server) Connections() []interactive.ConnInfo {
	s.mu.Lock()
	infos := make([]interactive.ConnInfo, 0, len(s.conns))
	for _, c := range s.conns {
		infos = append(infos, interactive.ConnInfo{
			ID:          c.channel.ID(),
			RemoteAddr:  c.channel.RemoteAddr().String(),
			Fingerprint: c.fingerprint,
			ConnectedAt: c.connectedAt,
		})
	}
	s.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// Pending returns the number of connections still upgrading.
func (s *server) Pending() int {
	if s.secure == nil {
		return 0
	}
	return s.secure.Pending()
}

// TrustStore returns the client trust store, nil when running
// plaintext.
func (s *server) TrustStore() cert.TrustStore {
	if s.trust == nil {
		return nil
	}
	return s.trust
}

// Advertising reports whether mDNS advertising is active.
func (s *server) Advertising() bool {
	return s.disc != nil && s.disc.Advertising()
}

// Disconnect closes the connection whose ID matches id, exactly or as
// a prefix.
func (s *server) Disconnect(id string) error {
	s.mu.Lock()
	c, ok := s.conns[id]
	if !ok {
		for connID, cand := range s.conns {
			if strings.HasPrefix(connID, id) {
				c = cand
				ok = true
				break
			}
		}
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("no connection matching %q", id)
	}
	return c.channel.Close()
}

// listenPort extracts the TCP port from a bound address.
func listenPort(addr net.Addr) uint16 {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return uint16(tcp.Port)
	}
	return transport.DefaultPort
}

// shortID returns the first 8 characters of a connection ID.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Compile-time interface satisfaction check.
var _ interactive.Server = (*server)(nil)
