package transport

import "errors"

// Transport errors.
var (
	// ErrNotListening is returned by Accept on a listener that is closed
	// or was never bound. Calling Accept in that state is a programming
	// error, not a transient condition.
	ErrNotListening = errors.New("listener is not accepting")

	// ErrListenerClosed is returned when arming a closed listener.
	ErrListenerClosed = errors.New("listener closed")

	// ErrCertificatesNotLoaded is returned by BeginHandshake before a
	// successful certificate load.
	ErrCertificatesNotLoaded = errors.New("certificates not loaded")

	// ErrHandshakeStarted is returned by BeginHandshake when a handshake
	// was already initiated on the connection.
	ErrHandshakeStarted = errors.New("handshake already started")

	// ErrNotEstablished is returned by Read and Write before the
	// handshake completes.
	ErrNotEstablished = errors.New("connection not established")

	// ErrConnectionClosed is returned when using a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
)
