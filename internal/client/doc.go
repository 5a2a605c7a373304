// Package client implements the transport engine of the file-transfer
// subsystem client: it reassembles the channel byte stream into packets,
// correlates concurrent requests with their responses by request id, runs the
// init/version handshake, and releases every blocked waiter when the channel
// goes away.
//
// Ownership boundary:
// - request id assignment and outbound frame construction
// - the id-keyed correlation table and its blocking retrieval
// - handshake state (negotiated version, extension registry)
// - open/closing lifecycle fan-out
//
// Interpreting response payloads beyond the generic header is the caller's
// job; opening and encrypting the underlying channel is the Transport's.
package client
