// Package middleware adapts Engine access validation to net/http.
//
//   - [RequestContext] copies the client address, User-Agent and X-Request-ID
//     into the request context so Engine calls made by handlers pick them up.
//   - [Guard] requires a valid bearer access token and stores the verified
//     claims in the request context.
//   - [RequireRole] rejects requests whose claims carry a different role.
//
// Every accept or reject decision is delegated to Engine.ValidateAccess.
package middleware
