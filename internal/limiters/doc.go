// Package limiters holds the brute-force lockout policy applied to user rows.
//
// [LockoutManager] never reads a counter and writes it back. Every transition is
// one conditional update delegated to an [AttemptStore] (normally the user store),
// so concurrent failures cannot both observe the pre-threshold count.
//
// # What this package must NOT do
//
//   - Import goIdentity or any storage driver.
//   - Change DISABLED accounts.
package limiters
