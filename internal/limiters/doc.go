// Package limiters implements the brute-force guard: dual sliding-window
// lockout counters keyed by email and by client origin, plus a small
// attempt limiter for short-code guessing. All state lives in Redis with
// TTL expiry; there is no sweep process.
package limiters
