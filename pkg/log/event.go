package log

import (
	"time"
)

// Event represents a transport log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID).
	// Empty for listener-scoped events.
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates data flow for frame and control events.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// LocalRole indicates whether this endpoint is the server or a client.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// ScreenName is the peer's configured screen name, once known.
	ScreenName string `cbor:"8,keyasint,omitempty"`

	// Fingerprint is the peer certificate fingerprint, once known.
	Fingerprint string `cbor:"9,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Accept      *AcceptEvent      `cbor:"10,keyasint,omitempty"` // Listener accept outcomes
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"` // Listener/connection state
	Handshake   *HandshakeEvent   `cbor:"12,keyasint,omitempty"` // TLS upgrade results
	Frame       *FrameEvent       `cbor:"13,keyasint,omitempty"` // Raw frames on the channel
	Control     *ControlEvent     `cbor:"14,keyasint,omitempty"` // Keep-alive traffic
	Error       *ErrorEventData   `cbor:"15,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of data flow.
type Direction uint8

const (
	// DirectionIn indicates inbound data or an inbound connection.
	DirectionIn Direction = 0
	// DirectionOut indicates outbound data or an outbound connection.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which transport layer captured the event.
type Layer uint8

const (
	// LayerMux is the readiness multiplexer (registration and dispatch).
	LayerMux Layer = 0
	// LayerSocket is the socket layer (accept, connect, framing).
	LayerSocket Layer = 1
	// LayerSecurity is the TLS upgrade layer (certificates, handshakes).
	LayerSecurity Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerMux:
		return "MUX"
	case LayerSocket:
		return "SOCKET"
	case LayerSecurity:
		return "SECURITY"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryAccept indicates an accept attempt on a listener.
	CategoryAccept Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryHandshake indicates a TLS handshake result.
	CategoryHandshake Category = 2
	// CategoryFrame indicates a data frame.
	CategoryFrame Category = 3
	// CategoryControl indicates keep-alive traffic.
	CategoryControl Category = 4
	// CategoryError indicates an error event.
	CategoryError Category = 5
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryAccept:
		return "ACCEPT"
	case CategoryState:
		return "STATE"
	case CategoryHandshake:
		return "HANDSHAKE"
	case CategoryFrame:
		return "FRAME"
	case CategoryControl:
		return "CONTROL"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role indicates whether the local endpoint is the server or a client.
type Role uint8

const (
	// RoleServer indicates the accepting endpoint.
	RoleServer Role = 0
	// RoleClient indicates the dialing endpoint.
	RoleClient Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleServer:
		return "SERVER"
	case RoleClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// AcceptEvent captures the outcome of one accept attempt.
type AcceptEvent struct {
	// Outcome classifies the attempt.
	Outcome AcceptOutcome `cbor:"1,keyasint"`

	// ListenAddr is the listener's bound address.
	ListenAddr string `cbor:"2,keyasint,omitempty"`
}

// AcceptOutcome classifies one accept attempt.
type AcceptOutcome uint8

const (
	// AcceptOutcomeConnection indicates a connection was accepted.
	AcceptOutcomeConnection AcceptOutcome = 0
	// AcceptOutcomeEmpty indicates readiness fired but nothing was pending.
	AcceptOutcomeEmpty AcceptOutcome = 1
	// AcceptOutcomeNetworkError indicates the OS rejected the accept.
	AcceptOutcomeNetworkError AcceptOutcome = 2
	// AcceptOutcomeCertificateError indicates certificate material could not be loaded.
	AcceptOutcomeCertificateError AcceptOutcome = 3
)

// String returns the outcome name.
func (o AcceptOutcome) String() string {
	switch o {
	case AcceptOutcomeConnection:
		return "CONNECTION"
	case AcceptOutcomeEmpty:
		return "EMPTY"
	case AcceptOutcomeNetworkError:
		return "NETWORK_ERROR"
	case AcceptOutcomeCertificateError:
		return "CERTIFICATE_ERROR"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures listener and connection lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityListener indicates a listen socket state change.
	StateEntityListener StateEntity = 0
	// StateEntityConnection indicates an accepted connection state change.
	StateEntityConnection StateEntity = 1
	// StateEntityClient indicates a dialed connection state change.
	StateEntityClient StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityListener:
		return "LISTENER"
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// HandshakeEvent captures the result of a completed TLS handshake.
type HandshakeEvent struct {
	// TLSVersion is the negotiated protocol version (tls.VersionTLS12 etc).
	TLSVersion uint16 `cbor:"1,keyasint"`

	// CipherSuite is the negotiated cipher suite ID.
	CipherSuite uint16 `cbor:"2,keyasint"`

	// PeerFingerprint is the peer certificate fingerprint, if a
	// certificate was presented.
	PeerFingerprint string `cbor:"3,keyasint,omitempty"`

	// Duration from handshake start to completion. Stored as nanoseconds.
	Duration *time.Duration `cbor:"4,keyasint,omitempty"`
}

// FrameEvent captures raw frame data on an established channel.
type FrameEvent struct {
	// Size is the frame size in bytes (including length prefix).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// ControlEvent captures keep-alive traffic on an established channel.
type ControlEvent struct {
	// Type of control event.
	Type ControlType `cbor:"1,keyasint"`

	// Missed is the count of consecutive missed keep-alives, for timeouts.
	Missed *int `cbor:"2,keyasint,omitempty"`
}

// ControlType indicates the type of control event.
type ControlType uint8

const (
	// ControlKeepAlive indicates a keep-alive probe.
	ControlKeepAlive ControlType = 0
	// ControlKeepAliveTimeout indicates the peer missed too many probes.
	ControlKeepAliveTimeout ControlType = 1
)

// String returns the control type name.
func (c ControlType) String() string {
	switch c {
	case ControlKeepAlive:
		return "KEEPALIVE"
	case ControlKeepAliveTimeout:
		return "KEEPALIVE_TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
