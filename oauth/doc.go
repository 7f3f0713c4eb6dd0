// Package oauth implements the provider side of third-party sign-in:
// building authorization URLs, exchanging callback codes, and fetching a
// normalized profile from Google, GitHub, or Discord. The anti-forgery
// state token and the account reconciliation live with the engine; this
// package only talks to providers.
package oauth
