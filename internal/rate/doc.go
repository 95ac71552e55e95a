// Package rate implements fixed-window rate limiters behind the
// CheckLimit(ctx, key, limit, window) contract.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. The remaining TTL
// of the window is the retry-after hint. Callers choose the key namespace, for
// example:
//   - login:ip:<ip>          login attempts per client address
//   - reset:email:<email>    password reset requests per address
//   - verify:user:<id>       verification mail requests per user
//
// # What this package must NOT do
//
//   - Decide what a denial means (the engine maps it to a domain error).
//   - Be imported outside the goIdentity module.
package rate
