// Package commands implements the deskflow-log CLI commands.
package commands

import (
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/deskflow/deskflow-go/pkg/log"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Layer     *log.Layer
	Direction *log.Direction
	Category  *log.Category
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [conn:id] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	connID := shortenConnID(event.ConnectionID)
	dir := event.Direction.String()

	// Determine event type label
	var typeLabel string
	switch {
	case event.Accept != nil:
		typeLabel = "Accept"
	case event.StateChange != nil:
		typeLabel = "State"
	case event.Handshake != nil:
		typeLabel = "Handshake"
	case event.Frame != nil:
		typeLabel = "Frame"
	case event.Control != nil:
		typeLabel = event.Control.Type.String()
	case event.Error != nil:
		typeLabel = "Error"
	default:
		typeLabel = "Unknown"
	}

	// Use CTRL for keep-alive traffic in header
	layerStr := event.Layer.String()
	if event.Category == log.CategoryControl {
		layerStr = "CTRL"
	}

	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s\n", ts, connID, dir, layerStr, typeLabel)

	// Type-specific details
	switch {
	case event.Accept != nil:
		formatAcceptDetails(w, event.Accept)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Handshake != nil:
		formatHandshakeDetails(w, event.Handshake)
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Control != nil:
		formatControlDetails(w, event.Control)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

// formatAcceptDetails writes accept-attempt details.
func formatAcceptDetails(w io.Writer, accept *log.AcceptEvent) {
	fmt.Fprintf(w, "  Outcome: %s\n", accept.Outcome.String())
	if accept.ListenAddr != "" {
		fmt.Fprintf(w, "  Listener: %s\n", accept.ListenAddr)
	}
}

// formatStateChangeDetails writes state change details.
func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

// formatHandshakeDetails writes TLS upgrade details.
func formatHandshakeDetails(w io.Writer, hs *log.HandshakeEvent) {
	fmt.Fprintf(w, "  Version: %s\n", tlsVersionName(hs.TLSVersion))
	fmt.Fprintf(w, "  Cipher: %s\n", tls.CipherSuiteName(hs.CipherSuite))
	if hs.PeerFingerprint != "" {
		fmt.Fprintf(w, "  Peer: %s\n", hs.PeerFingerprint)
	}
	if hs.Duration != nil {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(*hs.Duration))
	}
}

// formatFrameDetails writes frame-specific details.
func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(frame.Data))
		if frame.Truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

// formatControlDetails writes keep-alive details.
func formatControlDetails(w io.Writer, ctrl *log.ControlEvent) {
	if ctrl.Missed != nil {
		fmt.Fprintf(w, "  Missed: %d\n", *ctrl.Missed)
	}
}

// formatErrorDetails writes error details.
func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// tlsVersionName returns a display name for a TLS version constant.
func tlsVersionName(v uint16) string {
	switch v {
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return fmt.Sprintf("0x%04x", v)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseLayerFlag parses a layer string from command-line flag (case-insensitive).
func ParseLayerFlag(s string) (log.Layer, error) {
	return parseLayer(s)
}

// parseLayer parses a layer string (case-insensitive).
func parseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "mux":
		return log.LayerMux, nil
	case "socket":
		return log.LayerSocket, nil
	case "security":
		return log.LayerSecurity, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be mux, socket, or security)", s)
	}
}

// ParseDirectionFlag parses a direction string from command-line flag (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	return parseDirection(s)
}

// parseDirection parses a direction string (case-insensitive).
func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategoryFlag parses a category string from command-line flag (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	return parseCategory(s)
}

// parseCategory parses a category string (case-insensitive).
func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "accept":
		return log.CategoryAccept, nil
	case "state":
		return log.CategoryState, nil
	case "handshake":
		return log.CategoryHandshake, nil
	case "frame":
		return log.CategoryFrame, nil
	case "control":
		return log.CategoryControl, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be accept, state, handshake, frame, control, or error)", s)
	}
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		// Apply filter
		if filter.Layer != nil && event.Layer != *filter.Layer {
			continue
		}
		if filter.Direction != nil && event.Direction != *filter.Direction {
			continue
		}
		if filter.Category != nil && event.Category != *filter.Category {
			continue
		}

		formatEvent(output, event)
	}

	return nil
}
