// Package postgres provides PostgreSQL implementations of the store
// interfaces, mapping database errors to the sentinel errors callers
// branch on.
package postgres
