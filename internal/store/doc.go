// Package store defines the persistence interfaces consumed by the pipeline
// along with the sentinel errors shared by all store implementations.
// Concrete implementations live under internal/platform.
package store
