// Package user defines the account model and the storage port the identity core
// mutates during login, lockout, verification and password reset.
//
// # Architecture boundaries
//
// This package owns [User], [Status] and the [Store] contract. Lockout counters are
// changed only through the conditional primitives on [Store]; callers never read a
// counter, compute a new value and write it back.
//
// # What this package must NOT do
//
//   - Import goIdentity, session, refresh or any concrete storage driver.
//   - Hash or compare passwords.
package user
