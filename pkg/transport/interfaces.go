package transport

import (
	"io"
	"net"
)

// Acceptor is a listen socket driven by readiness notification.
// Implemented by SecureListenSocket and PlainListenSocket.
type Acceptor interface {
	// Accept performs one non-blocking accept attempt and re-arms the
	// listener on every return path.
	Accept() (AcceptResult, error)

	// Arm registers the listener for the next readiness notification.
	Arm() error

	// Armed reports whether a readiness registration is present.
	Armed() bool

	// Addr returns the bound listen address.
	Addr() net.Addr

	// Close stops accepting.
	Close() error
}

// Channel is an accepted connection. Secure channels become readable
// and writable once their handshake completes; plain channels are
// usable immediately.
type Channel interface {
	io.ReadWriteCloser

	// ID returns the unique connection identifier.
	ID() string

	// LocalAddr returns the local network address.
	LocalAddr() net.Addr

	// RemoteAddr returns the remote network address.
	RemoteAddr() net.Addr
}

// CertPathSource supplies the certificate bundle path override for a
// SecureListenSocket. It is consulted once per accept attempt, never
// cached, so a changed path takes effect for the next client.
type CertPathSource interface {
	CertificatePath() string
}

// CertPathFunc adapts a function to the CertPathSource interface.
type CertPathFunc func() string

// CertificatePath returns f().
func (f CertPathFunc) CertificatePath() string { return f() }

// FrameReadWriter provides length-prefixed frame I/O.
// Implemented by Framer.
type FrameReadWriter interface {
	// ReadFrame reads a length-prefixed frame.
	ReadFrame() ([]byte, error)

	// WriteFrame writes a length-prefixed frame.
	WriteFrame(data []byte) error
}

// Compile-time interface satisfaction checks.
var (
	_ Acceptor        = (*SecureListenSocket)(nil)
	_ Acceptor        = (*PlainListenSocket)(nil)
	_ Channel         = (*SecureConn)(nil)
	_ Channel         = (*plainChannel)(nil)
	_ CertPathSource  = (CertPathFunc)(nil)
	_ FrameReadWriter = (*Framer)(nil)
)
