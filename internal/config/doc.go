// Package config loads, normalizes, and validates dictverify configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the DICTVERIFY_DICTIONARY_DIR
// environment fallback. Derived locations such as the verification record
// file and the history database are exposed as methods so every caller
// agrees on them.
package config
