// Package refresh implements persisted, single-use refresh tokens and their
// rotation protocol.
//
// # Rotation
//
// A refresh token is a signed REFRESH jwt whose jti is the id of a [Record]. Using
// it consumes the record with one conditional update; only the caller that flips
// revoked from false to true receives a new pair. Presenting a record that was
// already revoked is reuse and, by default, revokes the whole session.
//
// # Architecture boundaries
//
// [Service] owns the protocol. Subject resolution (account status, session
// liveness) and access token issuance are injected through [SubjectResolver] and
// [AccessIssuer] so this package never imports the engine.
//
// # What this package must NOT do
//
//   - Import goIdentity (no upward imports).
//   - Read a record and write it back in a separate round-trip to consume it.
package refresh
