// Package transport moves wire messages between peers.
//
// A Hub is a websocket relay: every message one peer sends is forwarded to
// all other peers. A Link is one websocket connection, on either side,
// with an unbounded outbound Queue that implements the propagation layer's
// Outbox. Pipe connects two endpoints in-process for tests and local
// scenarios.
package transport
