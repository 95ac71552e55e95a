// Package jwt signs and verifies the typed tokens used by goIdentity: access,
// refresh, email-verification and password-reset tokens.
//
// Every token carries {typ, sub, iat, exp, jti} plus type-specific claims. A parser
// always pins the expected type, so a reset token can never be replayed as an
// access token.
package jwt
