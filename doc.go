// Package goIdentity implements credential login, brute-force lockout, server-side
// sessions, rotating refresh tokens and single-use verification tokens for a web
// application.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goIdentity is the public surface. It exposes [Engine], [Builder], [Config], the error
// taxonomy and value types (AuthResult, AccessClaims, MetricsSnapshot). Flow orchestration,
// lockout, rate limiting and audit dispatch live under internal/. Persistence is reached
// through [Store]; store/memory and store/postgres implement it.
//
// # Login
//
// [Engine.Login] runs its gates strictly in order: rate limit, user lookup, status check,
// password check, email verification check, session issue. A disabled or locked account is
// rejected before the password is compared, and an unknown email costs the same hash
// verification as a wrong password.
//
// # What this package must NOT do
//
//   - Map storage or cache failures to ErrInvalidCredentials.
//   - Hold an in-process lock across a storage call or a password hash.
//   - Fail an operation because an audit sink or the email transport failed.
package goIdentity
