// Package volume reads dictionary volumes from disk.
//
// Every volume is a data file described by a TOML manifest naming the
// dictionary it belongs to, its position in the set, and the SHA-256 digest
// of its content. Discover groups manifests into dictionaries; a Volume
// verifies itself by hashing its data file, reporting progress as it reads.
package volume
