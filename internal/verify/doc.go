// Package verify runs dictionary integrity checks in the background.
//
// A Job verifies the volumes of one dictionary in order, reporting combined
// progress, polling a cancellation token between and during volumes, and
// stopping at the first volume that faults or turns out corrupted. The
// Controller starts at most one job per dictionary, relays each job's events
// to its Handle in the order they were produced, and records the outcome of
// every completed check in the record store.
//
// Events for a job always arrive as zero or more ProgressEvent and
// ItemVerifiedEvent values followed by exactly one TerminalEvent.
package verify
