// Package password implements the slow adaptive hashing used for credential checks.
//
// # Algorithms
//
// [Bcrypt] is the default hasher. [Argon2] produces PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Both report [Hasher.NeedsUpgrade] when a stored hash was produced with weaker
// parameters so the caller can re-hash after the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Length limits and lockout are
// enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other goIdentity package.
//   - Log plaintext passwords.
package password
