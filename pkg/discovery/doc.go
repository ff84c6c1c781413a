// Package discovery implements mDNS/DNS-SD discovery of servers on the
// local network.
//
// A server advertises a single service instance of type _deskflow._tcp in
// the local domain. The instance name is the server's screen name, which
// is what users pick from when configuring a client. TXT records carry
// everything a client needs to decide whether and how to connect before
// opening a socket:
//
//   - v:  protocol version ("1.8")
//   - sl: security level (0 plaintext, 1 encrypted, 2 peer-authenticated)
//   - fp: SHA-256 fingerprint of the server certificate, lowercase hex;
//     present whenever sl is non-zero
//
// Publishing the fingerprint in the clear is safe: it commits the server
// to a certificate without revealing the key, and lets a client detect a
// certificate change (or an impostor) before the TLS handshake instead of
// after it fails.
//
// Advertiser publishes the service, Browser finds instances, and Manager
// ties an advertisement to the listener lifecycle so the TXT records
// follow certificate rotation.
package discovery
