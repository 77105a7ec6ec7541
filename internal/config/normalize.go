package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeVerify()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("DICTVERIFY_DICTIONARY_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.DictionaryDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.DictionaryDir) == "" {
		c.Paths.DictionaryDir = defaultDictionaryDir
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}

	var err error
	if c.Paths.DictionaryDir, err = expandPath(c.Paths.DictionaryDir); err != nil {
		return fmt.Errorf("paths.dictionary_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeVerify() {
	if c.Verify.ChunkSizeKiB == 0 {
		c.Verify.ChunkSizeKiB = defaultChunkSizeKiB
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
