// Package fileutil holds the crash-safe write and verified copy helpers shared
// by the record file, volume manifests, and the add command.
package fileutil
