// Package postgres implements every goIdentity storage port on PostgreSQL
// through pgx.
//
// Conditional state changes (failed attempt counting, lock clearing, refresh
// consumption) are single UPDATE statements. Session creation locks the user
// row so the active count and insert cannot interleave, and ResetPassword runs
// in one transaction. [Migrate] applies the embedded goose migrations.
package postgres
