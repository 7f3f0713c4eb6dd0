// Package stores implements the ephemeral key-value records behind the
// engine: single-use pending tokens (2FA login tickets, OAuth state,
// email verification, password reset) and the pending TOTP setup secret.
// Everything expires by Redis TTL; single-use reads are GETDEL so replay
// is impossible even across concurrent readers.
package stores
