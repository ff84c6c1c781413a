package transport

// AcceptKind classifies the outcome of one accept attempt.
type AcceptKind uint8

const (
	// AcceptConnection indicates a connection was accepted and its
	// upgrade started (or, for plain listeners, completed).
	AcceptConnection AcceptKind = 0

	// AcceptEmpty indicates readiness fired but no connection was
	// actually pending. Benign race, not an error.
	AcceptEmpty AcceptKind = 1

	// AcceptNetworkFailure indicates the OS rejected the raw accept.
	// The listener keeps serving; the cause is recorded in Err.
	AcceptNetworkFailure AcceptKind = 2

	// AcceptCertificateFailure indicates the acceptor credentials could
	// not be loaded. The pending connection was discarded; the listener
	// keeps serving.
	AcceptCertificateFailure AcceptKind = 3
)

// String returns the accept kind name.
func (k AcceptKind) String() string {
	switch k {
	case AcceptConnection:
		return "CONNECTION"
	case AcceptEmpty:
		return "EMPTY"
	case AcceptNetworkFailure:
		return "NETWORK_FAILURE"
	case AcceptCertificateFailure:
		return "CERTIFICATE_FAILURE"
	default:
		return "UNKNOWN"
	}
}

// AcceptResult is the tagged outcome of one accept attempt. Callers
// branch on Kind; failures the listener absorbed are reported here, not
// as errors. Only unanticipated failures cross Accept as a Go error.
type AcceptResult struct {
	// Kind classifies the attempt.
	Kind AcceptKind

	// Conn is the accepted connection, non-nil only for
	// AcceptConnection. On a secure listener it is still handshaking
	// and becomes usable when the established callback fires; on a
	// plain listener it is usable immediately.
	Conn Channel

	// Err is the absorbed cause for AcceptNetworkFailure and
	// AcceptCertificateFailure. Informational; the listener has already
	// handled it.
	Err error
}
