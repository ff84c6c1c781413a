// Package log provides structured transport event capture.
//
// This package defines the Logger interface and Event types for recording
// transport-level activity: accept outcomes on the listen socket, TLS
// handshake results, connection state changes, frames and keep-alives on
// established channels. It is separate from operational logging (slog);
// capture produces a complete machine-readable trace for debugging
// connection problems after the fact.
//
// # Basic Usage
//
// Components accept a Logger; wire one up at construction:
//
//	// For development: events on the console via slog
//	cfg.EventLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: binary capture file
//	cfg.EventLogger, _ = log.NewFileLogger("/var/log/deskflow/server.dlog")
//
//	// Both at once
//	cfg.EventLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events carry one payload each:
//   - AcceptEvent: outcome of one accept attempt (connection, empty,
//     network error, certificate error)
//   - StateChangeEvent: listener and connection lifecycle transitions
//   - HandshakeEvent: negotiated TLS parameters and peer fingerprint
//   - FrameEvent: raw frames on an established channel
//   - ControlEvent: keep-alive probes and timeouts
//   - ErrorEventData: errors at any layer
//
// # File Format
//
// Capture files are a CBOR stream with .dlog extension. The deskflow-log
// CLI tool provides viewing, filtering, and export.
package log
