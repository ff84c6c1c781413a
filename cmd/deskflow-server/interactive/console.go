// Package interactive provides the interactive command-line console
// for the Deskflow server.
package interactive

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/deskflow/deskflow-go/pkg/cert"
	"github.com/deskflow/deskflow-go/pkg/transport"
)

// ConnInfo describes one established client connection.
type ConnInfo struct {
	// ID is the full connection identifier.
	ID string

	// RemoteAddr is the client's network address.
	RemoteAddr string

	// Fingerprint is the client certificate fingerprint, zero for
	// plaintext connections.
	Fingerprint cert.Fingerprint

	// ConnectedAt records when the connection was established.
	ConnectedAt time.Time
}

// Server exposes the running server to the console. This interface
// allows the console to query and control the server without depending
// on the main package's server structure.
type Server interface {
	// Addr returns the bound listen address.
	Addr() net.Addr

	// ScreenName returns the advertised screen name.
	ScreenName() string

	// SecurityLevel returns the configured security posture.
	SecurityLevel() transport.SecurityLevel

	// Fingerprint returns the local certificate fingerprint, zero when
	// running plaintext.
	Fingerprint() cert.Fingerprint

	// Connections returns the established connections, oldest first.
	Connections() []ConnInfo

	// Pending returns the number of connections still upgrading.
	Pending() int

	// TrustStore returns the client trust store, nil when running
	// plaintext.
	TrustStore() cert.TrustStore

	// Advertising reports whether mDNS advertising is active.
	Advertising() bool

	// Disconnect closes the connection whose ID matches id, exactly or
	// as a prefix.
	Disconnect(id string) error
}

// Console handles interactive mode for deskflow-server.
type Console struct {
	srv Server
	rl  *readline.Instance
}

// New creates a new interactive console.
func New(srv Server) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "server> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Console{srv: srv, rl: rl}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "status", "s":
			c.cmdStatus()

		case "connections", "conns", "c":
			c.cmdConnections()

		case "fingerprint", "fp":
			c.cmdFingerprint()

		case "trust", "t":
			c.cmdTrust(args)

		case "kick":
			c.cmdKick(args)

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
Deskflow Server Commands:
  Status:
    status             - Show server status
    connections        - List established client connections
    fingerprint        - Show the local certificate fingerprint

  Trust Management:
    trust              - List trusted client fingerprints
    trust add <fp> [name]  - Trust a client fingerprint
    trust remove <fp>      - Revoke trust for a fingerprint
    kick <conn-id>     - Disconnect a client

  General:
    help               - Show this help
    quit               - Exit server

  Fingerprints may be given with or without colons; connection IDs may
  be abbreviated to a unique prefix.`)
}

// cmdStatus shows the server status.
func (c *Console) cmdStatus() {
	fmt.Fprintln(c.rl.Stdout(), "\nServer Status")
	fmt.Fprintln(c.rl.Stdout(), "-------------------------------------------")
	fmt.Fprintf(c.rl.Stdout(), "  Screen Name:  %s\n", c.srv.ScreenName())
	fmt.Fprintf(c.rl.Stdout(), "  Listening:    %s\n", c.srv.Addr())
	fmt.Fprintf(c.rl.Stdout(), "  Security:     %s\n", c.srv.SecurityLevel())

	if fp := c.srv.Fingerprint(); !fp.IsZero() {
		fmt.Fprintf(c.rl.Stdout(), "  Fingerprint:  %s\n", shortFingerprint(fp))
	}

	fmt.Fprintf(c.rl.Stdout(), "  Connected:    %d\n", len(c.srv.Connections()))
	fmt.Fprintf(c.rl.Stdout(), "  Upgrading:    %d\n", c.srv.Pending())

	if store := c.srv.TrustStore(); store != nil {
		fmt.Fprintf(c.rl.Stdout(), "  Trusted:      %d\n", store.Count())
	}

	advStatus := "off"
	if c.srv.Advertising() {
		advStatus = "advertising"
	}
	fmt.Fprintf(c.rl.Stdout(), "  mDNS:         %s\n", advStatus)
	fmt.Fprintln(c.rl.Stdout())
}

// cmdConnections lists established connections.
func (c *Console) cmdConnections() {
	conns := c.srv.Connections()
	if len(conns) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "No connected clients")
		return
	}

	fmt.Fprintf(c.rl.Stdout(), "\nConnected Clients (%d):\n", len(conns))
	fmt.Fprintln(c.rl.Stdout(), "-------------------------------------------")
	for _, conn := range conns {
		fmt.Fprintf(c.rl.Stdout(), "  ID: %s\n", shortConnID(conn.ID))
		fmt.Fprintf(c.rl.Stdout(), "      Address: %s\n", conn.RemoteAddr)
		if !conn.Fingerprint.IsZero() {
			fmt.Fprintf(c.rl.Stdout(), "      Fingerprint: %s\n", shortFingerprint(conn.Fingerprint))
		}
		fmt.Fprintf(c.rl.Stdout(), "      Since: %s\n", conn.ConnectedAt.Format("15:04:05"))
		fmt.Fprintln(c.rl.Stdout())
	}
}

// cmdFingerprint shows the full local certificate fingerprint for
// out-of-band comparison.
func (c *Console) cmdFingerprint() {
	fp := c.srv.Fingerprint()
	if fp.IsZero() {
		fmt.Fprintln(c.rl.Stdout(), "No certificate (running plaintext)")
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "%s\n", fp)
}

// cmdTrust handles the trust command.
// Usage:
//   - trust                  - List trusted fingerprints
//   - trust add <fp> [name]  - Trust a fingerprint
//   - trust remove <fp>      - Revoke trust
func (c *Console) cmdTrust(args []string) {
	store := c.srv.TrustStore()
	if store == nil {
		fmt.Fprintln(c.rl.Stdout(), "No trust store configured (running plaintext)")
		return
	}

	if len(args) == 0 || args[0] == "list" {
		c.showTrusted(store)
		return
	}

	switch args[0] {
	case "add":
		c.trustAdd(store, args[1:])
	case "remove", "rm":
		c.trustRemove(store, args[1:])
	default:
		fmt.Fprintf(c.rl.Stdout(), "Unknown trust subcommand: %s\n", args[0])
		fmt.Fprintln(c.rl.Stdout(), "Usage: trust [list|add <fp> [name]|remove <fp>]")
	}
}

// showTrusted displays all trusted fingerprints.
func (c *Console) showTrusted(store cert.TrustStore) {
	entries := store.List()
	if len(entries) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "No trusted clients")
		return
	}

	fmt.Fprintf(c.rl.Stdout(), "\nTrusted Clients (%d):\n", len(entries))
	fmt.Fprintln(c.rl.Stdout(), "-------------------------------------------")
	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(c.rl.Stdout(), "  %s\n", name)
		fmt.Fprintf(c.rl.Stdout(), "      %s\n", e.Fingerprint)
		fmt.Fprintf(c.rl.Stdout(), "      Added: %s\n", e.AddedAt.Format("2006-01-02 15:04"))
		fmt.Fprintln(c.rl.Stdout())
	}
}

// trustAdd trusts a new client fingerprint.
func (c *Console) trustAdd(store cert.TrustStore, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: trust add <fingerprint> [name]")
		return
	}

	fp, err := cert.ParseFingerprint(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid fingerprint: %v\n", err)
		return
	}

	entry := cert.TrustEntry{
		Fingerprint: fp,
		Name:        strings.Join(args[1:], " "),
		AddedAt:     time.Now(),
	}
	if err := store.Add(entry); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Failed to trust fingerprint: %v\n", err)
		return
	}
	if err := store.Save(); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Warning: trust store not persisted: %v\n", err)
	}

	fmt.Fprintf(c.rl.Stdout(), "Trusted %s\n", shortFingerprint(fp))
}

// trustRemove revokes trust for a fingerprint.
func (c *Console) trustRemove(store cert.TrustStore, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: trust remove <fingerprint>")
		return
	}

	fp, err := cert.ParseFingerprint(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid fingerprint: %v\n", err)
		return
	}

	if err := store.Remove(fp); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Failed to revoke trust: %v\n", err)
		return
	}
	if err := store.Save(); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Warning: trust store not persisted: %v\n", err)
	}

	fmt.Fprintf(c.rl.Stdout(), "Revoked %s\n", shortFingerprint(fp))
}

// cmdKick disconnects a client.
func (c *Console) cmdKick(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: kick <conn-id>")
		fmt.Fprintln(c.rl.Stdout(), "  Use 'connections' to list connection IDs")
		return
	}

	if err := c.srv.Disconnect(args[0]); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Failed to disconnect: %v\n", err)
		return
	}

	fmt.Fprintln(c.rl.Stdout(), "Disconnected")
}

// shortConnID returns the first 8 characters of a connection ID.
func shortConnID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// shortFingerprint returns an abbreviated fingerprint for display.
func shortFingerprint(fp cert.Fingerprint) string {
	s := fp.String()
	if len(s) > 23 {
		return s[:23] + "..."
	}
	return s
}
