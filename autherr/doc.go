// Package autherr defines the error taxonomy shared by every goIdentity component.
//
// # Taxonomy
//
// Domain outcomes (invalid credentials, locked account, expired token, …) are
// sentinel values compared with [errors.Is]. Infrastructure failures are reported
// as [ErrInternal] with the backend cause attached, never as a domain outcome.
//
// # What this package must NOT do
//
//   - Import any other goIdentity package.
//   - Render backend causes in Error() strings returned to callers.
package autherr
