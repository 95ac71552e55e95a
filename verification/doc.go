// Package verification issues and consumes single-use EMAIL_VERIFICATION and
// PASSWORD_RESET tokens.
//
// Tokens are stateless jwts. Single use is enforced by a consumed-jti set
// ([ConsumedStore]) whose entries live until the token would have expired anyway.
// Sending the token to the user is the caller's job.
package verification
