// Package connection manages the client side of a connection's
// lifetime: dialing the server, noticing when the link dies, and
// re-dialing with exponential backoff until the server comes back.
//
// The Manager does not own sockets. The caller supplies a ConnectFunc
// that performs one dial-and-handshake attempt; the manager decides
// when to call it, spaces retries with jittered backoff, and reports
// lifecycle transitions through callbacks and the event log.
//
// A user-initiated Disconnect stays down. A detected link loss
// (ConnectionLost) re-dials automatically while auto-reconnect is on:
// 1s, 2s, 4s, ... capped at 60s, with up to 25% random jitter so a
// restarted server is not hit by every client in the same instant.
// The delay resets to 1s after each successful connect.
package connection
