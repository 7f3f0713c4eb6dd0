// Package mysql is the reference AccountStore over a MySQL accounts
// table. Hosts with their own user schema implement
// authcore.AccountStore themselves; this package is for those that
// want the table managed for them.
package mysql
