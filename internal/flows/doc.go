// Package flows contains the orchestrators behind the multi-step Engine
// operations: login, refresh, password reset and email verification.
//
// Each Run* function accepts a typed dependency struct built once by the Engine
// and returns a result or an *autherr.Error. Audit emission and metric increments
// go through function fields so the engine keeps ownership of its dispatcher and
// counters.
//
// # Architecture boundaries
//
// Flow functions coordinate the session manager, token services, lockout
// manager, hasher and rate limiter. They do NOT own any of these resources.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goIdentity (to avoid import cycles).
//   - Report an infrastructure failure as a credential failure.
package flows
