// Package history keeps an append-only SQLite log of finished verifications.
//
// The record file only holds the latest outcome per dictionary; the history
// log keeps every run, including failed and cancelled ones that never touch
// the record file, so operators can see how often a volume faults.
package history
