package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deskflow/deskflow-go/pkg/log"
)

func createTestCaptureFile(t *testing.T, events []log.Event) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.dlog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func TestExportToJSONL(t *testing.T) {
	ts := time.Date(2026, 8, 20, 10, 15, 32, 123456000, time.UTC)
	events := []log.Event{
		{
			Timestamp: ts,
			Layer:     log.LayerSocket,
			Category:  log.CategoryAccept,
			LocalRole: log.RoleServer,
			Accept: &log.AcceptEvent{
				Outcome:    log.AcceptOutcomeConnection,
				ListenAddr: "0.0.0.0:24800",
			},
		},
		{
			Timestamp:    ts.Add(time.Second),
			ConnectionID: "abc12345",
			Layer:        log.LayerSecurity,
			Category:     log.CategoryHandshake,
			Handshake:    &log.HandshakeEvent{TLSVersion: 0x0304},
		},
	}

	path := createTestCaptureFile(t, events)

	// Export to JSONL via temp file
	outPath := filepath.Join(t.TempDir(), "out.jsonl")
	err := RunExport(path, "jsonl", outPath)
	if err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	// Read and verify
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Errorf("expected 2 lines, got %d", len(lines))
	}

	// Parse second line
	var event2 map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &event2); err != nil {
		t.Errorf("failed to parse line 2: %v", err)
	}
	if event2["ConnectionID"] != "abc12345" {
		t.Errorf("expected ConnectionID abc12345, got %v", event2["ConnectionID"])
	}
}

func TestExportToCSV(t *testing.T) {
	ts := time.Date(2026, 8, 20, 10, 15, 32, 0, time.UTC)
	events := []log.Event{
		{
			Timestamp:    ts,
			ConnectionID: "abc12345",
			Direction:    log.DirectionOut,
			Layer:        log.LayerSocket,
			Category:     log.CategoryFrame,
			RemoteAddr:   "192.168.1.10:51044",
			Frame: &log.FrameEvent{
				Size: 64,
				Data: []byte{0x01, 0x02},
			},
		},
	}

	path := createTestCaptureFile(t, events)

	outPath := filepath.Join(t.TempDir(), "out.csv")
	err := RunExport(path, "csv", outPath)
	if err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}

	// Check header
	if !strings.HasPrefix(string(data), "timestamp,connection_id,direction,layer,category") {
		t.Errorf("expected CSV header, got: %s", string(data[:50]))
	}

	// Check data row exists
	lines := strings.Split(string(data), "\n")
	if len(lines) < 2 {
		t.Errorf("expected header + data row, got %d lines", len(lines))
	}
	if !strings.Contains(lines[1], "192.168.1.10:51044") {
		t.Errorf("expected remote address in row, got: %s", lines[1])
	}
}

func TestExportCSVEventTypes(t *testing.T) {
	ts := time.Date(2026, 8, 20, 10, 15, 32, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, Category: log.CategoryAccept,
			Accept: &log.AcceptEvent{Outcome: log.AcceptOutcomeCertificateError}},
		{Timestamp: ts, Category: log.CategoryState,
			StateChange: &log.StateChangeEvent{Entity: log.StateEntityConnection, NewState: "FAILED"}},
		{Timestamp: ts, Category: log.CategoryControl,
			Control: &log.ControlEvent{Type: log.ControlKeepAlive}},
	}

	path := createTestCaptureFile(t, events)

	outPath := filepath.Join(t.TempDir(), "out.csv")
	if err := RunExport(path, "csv", outPath); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}

	output := string(data)
	if !strings.Contains(output, "accept:CERTIFICATE_ERROR") {
		t.Errorf("expected accept event type, got:\n%s", output)
	}
	if !strings.Contains(output, "state:FAILED") {
		t.Errorf("expected state event type, got:\n%s", output)
	}
	if !strings.Contains(output, "KEEPALIVE") {
		t.Errorf("expected keepalive event type, got:\n%s", output)
	}
}

func TestExportWritesToStdout(t *testing.T) {
	ts := time.Date(2026, 8, 20, 10, 15, 32, 0, time.UTC)
	events := []log.Event{
		{
			Timestamp:    ts,
			ConnectionID: "abc12345",
			Direction:    log.DirectionOut,
			Layer:        log.LayerSocket,
			Category:     log.CategoryFrame,
			Frame:        &log.FrameEvent{Size: 64},
		},
	}

	path := createTestCaptureFile(t, events)

	// Capture stdout
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := RunExport(path, "jsonl", "") // empty output means stdout

	w.Close()
	os.Stdout = oldStdout

	if err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	var buf bytes.Buffer
	buf.ReadFrom(r)

	if buf.Len() == 0 {
		t.Error("expected output to stdout")
	}
}

func TestExportUnknownFormat(t *testing.T) {
	ts := time.Date(2026, 8, 20, 10, 15, 32, 0, time.UTC)
	events := []log.Event{
		{
			Timestamp:    ts,
			ConnectionID: "abc12345",
			Frame:        &log.FrameEvent{Size: 64},
		},
	}

	path := createTestCaptureFile(t, events)
	outPath := filepath.Join(t.TempDir(), "out.xml")

	err := RunExport(path, "xml", outPath)
	if err == nil {
		t.Error("expected error for unknown format")
	}
	if !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("expected 'unknown format' error, got: %v", err)
	}
}
