// Command deskflow-client is the connecting endpoint of a Deskflow
// input-sharing network.
//
// The client locates a server directly or via mDNS, upgrades the
// connection to TLS, verifies the server certificate fingerprint
// against a local trust store, and keeps the link alive, re-dialing
// with backoff when it is lost.
//
// Usage:
//
//	deskflow-client [flags]
//
// Flags:
//
//	-config string       Configuration file path
//	-server string       Server address (host:port); empty discovers via mDNS
//	-server-name string  Discover the server advertising this screen name
//	-name string         Screen name for this client (default: hostname)
//	-security string     Security level: plaintext, encrypted, peer_auth
//	-cert string         Certificate bundle path
//	-profile-dir string  Profile directory for certificates and trust stores
//	-fingerprint string  Expected server fingerprint, trusted before connecting
//	-tofu                Trust the server fingerprint on first use
//	-trust-store string  Trusted-servers file path
//	-capture string      Write transport events to this capture file
//	-log-level string    Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Connect to a known server, trusting its certificate on first use
//	deskflow-client -server 192.168.1.10:24800 -tofu
//
//	# Discover the server named "office" via mDNS
//	deskflow-client -server-name office -tofu
//
//	# Pin a fingerprint read off the server console
//	deskflow-client -server 192.168.1.10:24800 -fingerprint AB:CD:EF:...
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/deskflow/deskflow-go/pkg/cert"
	"github.com/deskflow/deskflow-go/pkg/config"
	tlog "github.com/deskflow/deskflow-go/pkg/log"
)

// options holds the command-line flags.
type options struct {
	ConfigFile  string
	Server      string
	ServerName  string
	Name        string
	Security    string
	Certificate string
	ProfileDir  string
	Fingerprint string
	TOFU        bool
	TrustStore  string
	Capture     string
	LogLevel    string
}

var opts options

func init() {
	flag.StringVar(&opts.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&opts.Server, "server", "", "Server address (host:port); empty discovers via mDNS")
	flag.StringVar(&opts.ServerName, "server-name", "", "Discover the server advertising this screen name")
	flag.StringVar(&opts.Name, "name", "", "Screen name for this client (default: hostname)")
	flag.StringVar(&opts.Security, "security", "", "Security level: plaintext, encrypted, peer_auth")
	flag.StringVar(&opts.Certificate, "cert", "", "Certificate bundle path")
	flag.StringVar(&opts.ProfileDir, "profile-dir", "", "Profile directory for certificates and trust stores")
	flag.StringVar(&opts.Fingerprint, "fingerprint", "", "Expected server fingerprint, trusted before connecting")
	flag.BoolVar(&opts.TOFU, "tofu", false, "Trust the server fingerprint on first use")
	flag.StringVar(&opts.TrustStore, "trust-store", "", "Trusted-servers file path")
	flag.StringVar(&opts.Capture, "capture", "", "Write transport events to this capture file")
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
			log.Fatalf("Failed to determine hostname: %v", err)
		}
		cfg.ScreenName = host
	}

	log.Println("Deskflow Client")
	log.Println("===============")
	log.Printf("Screen name: %s", cfg.ScreenName)
	target := cfg.Server
	if target == "" {
		if opts.ServerName != "" {
			target = opts.ServerName + " (mDNS)"
		} else {
			target = "(mDNS discovery)"
		}
	}
	log.Printf("Server: %s", target)
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

	var expected cert.Fingerprint
	if opts.Fingerprint != "" {
		expected, err = cert.ParseFingerprint(opts.Fingerprint)
		if err != nil {
			log.Fatalf("Invalid fingerprint: %v", err)
		}
	}

	cl, err := newClient(cfg, capture, expected, opts.TOFU, opts.ServerName)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cl.start(ctx); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received signal: %v", sig)

	log.Println("Shutting down...")
	cancel()
	cl.stop()
	log.Println("Goodbye!")
}

// loadConfig builds the effective configuration: file values first,
// then flag overrides.
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
	if opts.Server != "" {
		cfg.Server = opts.Server
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
	if opts.TrustStore != "" {
		cfg.TrustStore = opts.TrustStore
	}
	if opts.Capture != "" {
		cfg.LogFile = opts.Capture
	}

	return cfg, cfg.Validate()
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
