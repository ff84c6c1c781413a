package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes transport events to an slog.Logger. Useful during
// development to watch accepts and handshakes on the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter over the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	if event.ConnectionID != "" {
		attrs = append(attrs, slog.String("conn_id", event.ConnectionID))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}
	if event.ScreenName != "" {
		attrs = append(attrs, slog.String("screen", event.ScreenName))
	}
	if event.Fingerprint != "" {
		attrs = append(attrs, slog.String("fingerprint", event.Fingerprint))
	}

	switch {
	case event.Accept != nil:
		attrs = append(attrs, slog.String("outcome", event.Accept.Outcome.String()))
		if event.Accept.ListenAddr != "" {
			attrs = append(attrs, slog.String("listen_addr", event.Accept.ListenAddr))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Handshake != nil:
		attrs = append(attrs,
			slog.Int("tls_version", int(event.Handshake.TLSVersion)),
			slog.Int("cipher_suite", int(event.Handshake.CipherSuite)),
		)
		if event.Handshake.PeerFingerprint != "" {
			attrs = append(attrs, slog.String("peer_fingerprint", event.Handshake.PeerFingerprint))
		}
		if event.Handshake.Duration != nil {
			attrs = append(attrs, slog.Duration("duration", *event.Handshake.Duration))
		}
	case event.Frame != nil:
		attrs = append(attrs,
			slog.String("direction", event.Direction.String()),
			slog.Int("frame_size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
	case event.Control != nil:
		attrs = append(attrs,
			slog.String("direction", event.Direction.String()),
			slog.String("ctrl_type", event.Control.Type.String()),
		)
		if event.Control.Missed != nil {
			attrs = append(attrs, slog.Int("missed", *event.Control.Missed))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
		)
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("error_context", event.Error.Context))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "transport", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
