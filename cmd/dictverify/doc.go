// Command dictverify lists installed dictionaries, verifies their volumes
// against the digests recorded in their manifests, and reports past results.
package main
