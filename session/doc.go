// Package session stores the server-side half of every refresh-token
// lineage in Redis. Each record holds only a SHA-256 hash of the current
// refresh token; rotation deletes the old record and creates a new one so
// a used token can never be replayed. Expiry is Redis TTL plus an
// absolute expiry embedded in the record.
package session
