// Package mocks provides hand-written test doubles for the interfaces the
// pipeline consumes. Each mock carries optional function fields to override
// behavior per test, backed by a simple in-memory default implementation.
package mocks
