// Package token signs and verifies the HS256 access and refresh tokens
// issued by the engine. Access tokens are verified statelessly on every
// request; refresh tokens carry a jti that the session store uses for
// rotation and revocation. Verification never leaks parser errors — every
// failure is ErrInvalid.
package token
