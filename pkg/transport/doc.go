// Package transport provides the TCP transport layer for input
// sharing between machines.
//
// The transport layer handles:
//   - Readiness-driven accept of client connections
//   - TLS upgrade with certificate fingerprint pinning
//   - Length-prefixed message framing
//   - Keep-alive probes for connection liveness
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      Protocol Messages         │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│         TLS 1.2+               │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # Accept Pipeline
//
// A SecureListenSocket never blocks in accept. The multiplexer reports
// the listener readable, one pending connection is taken from the
// backlog, and the listener is re-armed before any certificate loading
// or handshake work begins. Each accepted connection then upgrades to
// TLS asynchronously; a client that stalls mid-handshake delays only
// itself. Transient accept errors and certificate load failures affect
// a single attempt and are reported as data, not errors.
//
// # Trust Model
//
// Certificates are self-signed. Peers authenticate each other by
// comparing the SHA-256 fingerprint of the presented certificate
// against a local trust store; there are no CA chains and no hostname
// checks. Servers may additionally require a trusted client
// certificate (SecurityPeerAuth).
//
// # Keep-Alive
//
// Connection liveness is monitored with symmetric probes:
//   - Probe interval: 3 seconds
//   - Max missed intervals: 3
//   - Maximum detection delay: 9 seconds
package transport
