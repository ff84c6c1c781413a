package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/deskflow/deskflow-go/pkg/cert"
)

// startFrameEcho runs a TLS acceptor on a loopback port that echoes
// frames until the peer hangs up.
func startFrameEcho(t *testing.T, bundle *cert.Bundle, level SecurityLevel, trust cert.TrustStore) net.Listener {
	t.Helper()

	ln, err := tls.Listen("tcp", "127.0.0.1:0", newAcceptorTLSConfig(bundle.Certificate, level, trust))
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go echoFrames(conn)
		}
	}()
	return ln
}

func echoFrames(conn net.Conn) {
	defer conn.Close()
	framer := NewFramer(conn)
	for {
		msg, err := framer.ReadFrame()
		if err != nil {
			return
		}
		if err := framer.WriteFrame(msg); err != nil {
			return
		}
	}
}

func TestNewClientValidation(t *testing.T) {
	t.Run("TrustRequired", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{}); err == nil {
			t.Fatal("expected an error without a trust store")
		}
	})

	t.Run("TrustAny", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{TrustAny: true}); err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
	})

	t.Run("Plaintext", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{Plaintext: true}); err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
	})
}

func TestClientConnect(t *testing.T) {
	bundle := testBundle(t, "office")
	ln := startFrameEcho(t, bundle, SecurityEncrypted, nil)

	client, err := NewClient(ClientConfig{TrustAny: true})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	conn, err := client.Connect(context.Background(), ln.Addr().String())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()

	if conn.ID() == "" {
		t.Error("ID should not be empty")
	}
	if conn.Fingerprint() != bundle.Fingerprint {
		t.Error("fingerprint does not match the served certificate")
	}
	state, ok := conn.TLSState()
	if !ok {
		t.Fatal("TLS state should be available")
	}
	if state.Version < tls.VersionTLS12 {
		t.Errorf("negotiated version %x, want at least TLS 1.2", state.Version)
	}
	if conn.RemoteAddr().String() != ln.Addr().String() {
		t.Errorf("RemoteAddr = %v, want %v", conn.RemoteAddr(), ln.Addr())
	}

	payload := []byte("move 10 14")
	if err := conn.Send(payload); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	echo, err := conn.Receive(2 * time.Second)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if string(echo) != string(payload) {
		t.Errorf("echo = %q, want %q", echo, payload)
	}
}

func TestClientPinnedFingerprint(t *testing.T) {
	bundle := testBundle(t, "office")
	ln := startFrameEcho(t, bundle, SecurityEncrypted, nil)

	t.Run("PinnedServer", func(t *testing.T) {
		trust := cert.NewMemoryStore()
		if err := trust.Add(cert.TrustEntry{Fingerprint: bundle.Fingerprint, AddedAt: time.Now()}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		client, err := NewClient(ClientConfig{TrustStore: trust})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		conn, err := client.Connect(context.Background(), ln.Addr().String())
		if err != nil {
			t.Fatalf("pinned connect failed: %v", err)
		}
		conn.Close()
	})

	t.Run("UnknownServer", func(t *testing.T) {
		client, err := NewClient(ClientConfig{TrustStore: cert.NewMemoryStore()})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		if _, err := client.Connect(context.Background(), ln.Addr().String()); err == nil {
			t.Fatal("connecting to an unpinned server must fail")
		}
	})
}

func TestClientPresentsCertificate(t *testing.T) {
	serverBundle := testBundle(t, "office")
	clientBundle := testBundle(t, "laptop")

	trust := cert.NewMemoryStore()
	if err := trust.Add(cert.TrustEntry{Fingerprint: clientBundle.Fingerprint, AddedAt: time.Now()}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	ln := startFrameEcho(t, serverBundle, SecurityPeerAuth, trust)

	t.Run("Admitted", func(t *testing.T) {
		client, err := NewClient(ClientConfig{TrustAny: true, Bundle: clientBundle})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		conn, err := client.Connect(context.Background(), ln.Addr().String())
		if err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		defer conn.Close()

		// A round trip proves the acceptor admitted the certificate.
		if err := conn.Send([]byte("ping")); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		if _, err := conn.Receive(2 * time.Second); err != nil {
			t.Fatalf("Receive failed: %v", err)
		}
	})

	t.Run("Anonymous", func(t *testing.T) {
		client, err := NewClient(ClientConfig{TrustAny: true})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}

		// TLS 1.3 may complete the client side of the handshake before
		// the rejection arrives; it then surfaces on first use.
		conn, err := client.Connect(context.Background(), ln.Addr().String())
		if err == nil {
			_ = conn.Send([]byte("ping"))
			_, err = conn.Receive(2 * time.Second)
			conn.Close()
		}
		if err == nil {
			t.Fatal("a client without a certificate must be rejected")
		}
	})
}

func TestClientDialFailure(t *testing.T) {
	// Grab a port with nothing listening behind it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	client, err := NewClient(ClientConfig{TrustAny: true})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.Connect(ctx, addr); err == nil {
		t.Fatal("expected a dial error")
	}
}

func TestClientPlaintext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		echoFrames(conn)
	}()

	client, err := NewClient(ClientConfig{Plaintext: true})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	conn, err := client.Connect(context.Background(), ln.Addr().String())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()

	if !conn.Fingerprint().IsZero() {
		t.Error("plaintext connections have no fingerprint")
	}
	if _, ok := conn.TLSState(); ok {
		t.Error("plaintext connections have no TLS state")
	}

	payload := []byte("cleartext")
	if err := conn.Send(payload); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	echo, err := conn.Receive(2 * time.Second)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if string(echo) != string(payload) {
		t.Errorf("echo = %q, want %q", echo, payload)
	}
}

func TestClientConnClose(t *testing.T) {
	bundle := testBundle(t, "office")
	ln := startFrameEcho(t, bundle, SecurityEncrypted, nil)

	client, err := NewClient(ClientConfig{TrustAny: true})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	conn, err := client.Connect(context.Background(), ln.Addr().String())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := conn.Send([]byte("ping")); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Send after close: got %v, want ErrConnectionClosed", err)
	}
	if _, err := conn.Receive(time.Second); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Receive after close: got %v, want ErrConnectionClosed", err)
	}

	// Close is idempotent.
	if err := conn.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestClientReceiveTimeout(t *testing.T) {
	bundle := testBundle(t, "office")
	ln := startFrameEcho(t, bundle, SecurityEncrypted, nil)

	client, err := NewClient(ClientConfig{TrustAny: true})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	conn, err := client.Connect(context.Background(), ln.Addr().String())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()

	// The echo server volunteers nothing; the read must give up.
	_, err = conn.Receive(100 * time.Millisecond)
	if err == nil {
		t.Fatal("expected a timeout")
	}
	var nerr net.Error
	if !errors.As(err, &nerr) || !nerr.Timeout() {
		t.Errorf("got %v, want a timeout error", err)
	}
}
