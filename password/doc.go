// Package password implements the password credential component: salted,
// iterated PBKDF2-SHA256 hashing with a self-describing stored form, and
// the acceptance policy applied to new passwords.
//
// The stored form is "iterations:saltHex:hashHex". Because the iteration
// count travels with the hash, verification stays correct when the
// default work factor is raised later. Verify fails closed on malformed
// input and compares digests in constant time.
package password
