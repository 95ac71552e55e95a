// Package audit implements asynchronous delivery of security events.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, zap, no-op).
//   - [Dispatcher]: bounded async relay with drop-if-full / block-if-full semantics.
//   - [Event]: one terminal outcome of an identity operation, tagged with the
//     correlation id shared by every event of the same attempt.
//
// # Architecture boundaries
//
// This package owns buffering and sink delivery. It does NOT decide which events
// to emit; that belongs to the Engine.
//
// # What this package must NOT do
//
//   - Return errors or panics from a sink to the emitting flow.
//   - Import goIdentity or any sibling internal package.
package audit
