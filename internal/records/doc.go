// Package records persists the last verification outcome of every dictionary.
//
// The whole identity-to-record map lives in one JSON file that is rewritten
// on every update. Writes go to a temporary file in the same directory which
// is fsynced and renamed over the previous file, so a crash mid-write leaves
// the last successful save intact. An advisory lock file serializes readers
// and writers across processes.
package records
