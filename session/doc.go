// Package session owns the login session lifecycle: creation under a per-user cap,
// validation with lazy expiry, extension, enumeration and revocation.
//
// # Architecture boundaries
//
// [Manager] applies policy (cap, lifetime, sliding activity) and [Store] persists
// rows. The cap check and the insert happen inside one [Store.CreateCapped] call so
// two concurrent logins cannot both observe a free slot.
//
// # What this package must NOT do
//
//   - Import goIdentity, jwt, access or refresh (no upward imports).
//   - Evict an existing session to make room for a new one.
//   - Interpret tokens; session ids arrive already extracted.
package session
