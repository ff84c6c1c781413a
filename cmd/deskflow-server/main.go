// Command deskflow-server is the accepting endpoint of a Deskflow
// input-sharing network.
//
// It binds a TCP listen socket, upgrades each accepted client to TLS
// according to the configured security level, and keeps established
// channels alive with keep-alive probes. The server advertises itself
// over mDNS so clients can find it by screen name.
//
// Usage:
//
//	deskflow-server [flags]
//
// Flags:
//
//	-config string       Configuration file path
//	-name string         Screen name (default: hostname)
//	-address string      Listen address (default ":24800")
//	-security string     Security level: plaintext, encrypted, peer_auth
//	-cert string         Certificate bundle path (overrides the profile default)
//	-profile-dir string  Profile directory for certificates and trust stores
//	-capture string      Transport capture file (.dlog)
//	-no-discovery        Disable mDNS advertising
//	-interactive         Enable interactive command mode
//	-log-level string    Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Start with defaults (peer authentication, mDNS on)
//	deskflow-server -name office
//
//	# Start with a config file and an interactive console
//	deskflow-server -config /etc/deskflow/server.yaml -interactive
//
//	# Encrypted without client certificates, capture transport events
//	deskflow-server -security encrypted -capture server.dlog
//
// Interactive Commands:
//
//	status       - Show listener status
//	connections  - List established connections
//	fingerprint  - Show the local certificate fingerprint
//	trust        - Manage the client trust store
//	kick <id>    - Disconnect a client
//	quit         - Exit the server
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/deskflow/deskflow-go/cmd/deskflow-server/interactive"
	"github.com/deskflow/deskflow-go/pkg/config"
	tlog "github.com/deskflow/deskflow-go/pkg/log"
)

// options holds the command-line flag values.
type options struct {
	ConfigFile  string
	Name        string
	Address     string
	Security    string
	Certificate string
	ProfileDir  string
	Capture     string
	NoDiscovery bool
	Interactive bool
	LogLevel    string
}

var opts options

func init() {
	flag.StringVar(&opts.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&opts.Name, "name", "", "Screen name (default: hostname)")
	flag.StringVar(&opts.Address, "address", "", "Listen address")
	flag.StringVar(&opts.Security, "security", "", "Security level: plaintext, encrypted, peer_auth")
	flag.StringVar(&opts.Certificate, "cert", "", "Certificate bundle path (overrides the profile default)")
	flag.StringVar(&opts.ProfileDir, "profile-dir", "", "Profile directory for certificates and trust stores")
	flag.StringVar(&opts.Capture, "capture", "", "Transport capture file (.dlog)")
	flag.BoolVar(&opts.NoDiscovery, "no-discovery", false, "Disable mDNS advertising")
	flag.BoolVar(&opts.Interactive, "interactive", false, "Enable interactive command mode")
	flag.StringVar(&opts.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func main() {
	flag.Parse()

	setupLogging(opts.LogLevel)

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.ScreenName == "" {
		host, err := os.Hostname()
		if err != nil {
			log.Fatalf("No screen name and no hostname: %v", err)
		}
		cfg.ScreenName = host
	}

	log.Println("Deskflow Server")
	log.Println("===============")
	log.Printf("Screen name: %s", cfg.ScreenName)
	log.Printf("Address: %s", cfg.Address)
	log.Printf("Security: %s", cfg.Level())

	capture := tlog.Logger(tlog.NoopLogger{})
	if cfg.LogFile != "" {
		f, err := tlog.NewFileLogger(cfg.LogFile)
		if err != nil {
			log.Fatalf("Failed to open capture file: %v", err)
		}
		defer f.Close()
		capture = f
		log.Printf("Capturing transport events to %s", cfg.LogFile)
	}

	srv, err := newServer(cfg, capture)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.start(ctx); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("Listening on %s", srv.Addr())
	if fp := srv.Fingerprint(); !fp.IsZero() {
		log.Printf("Fingerprint: %s", fp)
	}

	if opts.Interactive {
		ic, err := interactive.New(srv)
		if err != nil {
			log.Fatalf("Failed to create interactive console: %v", err)
		}
		// Redirect log output through readline to avoid interfering with input
		log.SetOutput(ic.Stdout())
		go ic.Run(ctx, cancel)
	}

	// Wait for shutdown signal or context cancellation
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
		// Context was cancelled (e.g., by interactive quit command)
	}

	log.Println("Shutting down...")
	cancel()

	if err := srv.stop(); err != nil {
		log.Printf("Error stopping server: %v", err)
	}

	log.Println("Goodbye!")
}

// loadConfig reads the config file (if given) and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.ConfigFile != "" {
		loaded, err := config.Load(opts.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if opts.Name != "" {
		cfg.ScreenName = opts.Name
	}
	if opts.Address != "" {
		cfg.Address = opts.Address
	}
	if opts.Security != "" {
		cfg.SecurityLevel = opts.Security
	}
	if opts.Certificate != "" {
		cfg.Certificate = opts.Certificate
	}
	if opts.ProfileDir != "" {
		cfg.ProfileDir = opts.ProfileDir
	}
	if opts.Capture != "" {
		cfg.LogFile = opts.Capture
	}
	if opts.NoDiscovery {
		cfg.Discovery.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(level string) {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	switch level {
	case "debug":
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
	case "warn", "error":
		log.SetFlags(log.Ltime)
	}
}
