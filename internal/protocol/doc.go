// Package protocol owns the subsystem wire contract and parsing primitives.
//
// Ownership boundary:
// - packet type / status code / extension name constants
// - wire buffer primitives (big-endian u8/u32, string, bytes)
// - error taxonomy shared by framing, correlation and handshake
package protocol
