// Package audit carries security-relevant events (logins, rotations,
// lockouts, 2FA changes) from the engine to a host-supplied sink through
// a buffered async dispatcher, keeping audit I/O off the auth hot path.
// The package only buffers and delivers; deciding which events exist is
// the engine's job.
package audit
