// Package chat implements tournament-scoped chat rooms: the room table and
// membership lifecycle, the message relay, and the expiry sweeper.
//
// Every room carries its own mutex. Join, leave, send and eviction of a room
// are mutually exclusive with each other, while rooms of different
// tournaments proceed independently. Fan-out to subscribers happens under the
// room lock through non-blocking Deliver calls, so every subscriber observes a
// room's events in the order they were admitted.
//
// The package is transport agnostic: connections participate through the
// Subscriber interface and receive pre-encoded JSON frames.
package chat
