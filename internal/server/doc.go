// Package server is the connection gateway and HTTP surface of tourneychat.
//
// It authenticates WebSocket handshakes, runs a read and a write pump per
// connection, translates client events into Room Manager calls, and serves
// chat history, health, readiness and metrics endpoints.
package server
