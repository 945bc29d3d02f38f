// Package yellow implements a client library for the ERC-7824 state-channel
// protocol: a persistent authenticated WebSocket session with a ClearNode
// relay, on-chain channel lifecycle transactions through a custody and
// adjudicator contract pair, and a single executeIntent operation that routes
// a cross-chain intent to a solver and returns a normalized clearing result.
package yellow
