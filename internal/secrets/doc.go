// Package secrets provides the cryptographic primitives shared by every
// credential component: constant-time comparison, secure random generation,
// and the hex/base32/base64url codecs used for stored hashes, TOTP secrets,
// and opaque tokens.
package secrets
