// Package authcore is the authentication and session-security core of
// the RelayChat backend. It turns a credential — password, OAuth
// profile, or time-based one-time code — into a revocable session, and
// defends the login surface against credential guessing and session
// hijacking.
//
// The engine owns password hashing, signed token issuance and rotation,
// Redis-backed session records, dual-keyed login lockout, a from-scratch
// RFC 6238 TOTP implementation with one-time backup codes, and
// CSRF-safe OAuth linking for Google, GitHub, and Discord. The host
// application supplies the relational AccountStore, an optional Mailer,
// and the HTTP edge.
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithRedis(client).
//		WithAccountStore(store).
//		Build()
package authcore
