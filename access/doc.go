// Package access issues and verifies ACCESS tokens and maintains their revocation
// set.
//
// Revocations are keyed by token id (single logout) and by session id (all tokens
// of a session). [RedisRevocationStore] shares the set across instances;
// [MemoryRevocationStore] only protects a single process.
package access
