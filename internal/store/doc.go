// Package store provides durable storage for test execution records.
//
// Every execution cycle is recorded as one row in the executions table plus
// one row per run and per assertion failure. The store backs the report
// command: artifacts on disk hold the traces themselves, the store holds
// the outcome history for a test across invocations.
//
// Uses SQLite with WAL mode; a single writer connection avoids
// SQLITE_BUSY under concurrent reporting.
package store
