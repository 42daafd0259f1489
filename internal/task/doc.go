// Package task implements the background work subsystem: the task record
// and its state machine, a queue contract with in-memory and Redis-backed
// implementations, the worker pool that executes kind-specific handlers
// with bounded retry and exponential backoff, and the supervisor that
// restarts crashed workers under a rolling restart budget.
package task
