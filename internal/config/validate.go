package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateVerify(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateVerify() error {
	if c.Verify.ItemTimeoutSeconds < 0 {
		return errors.New("verify.item_timeout_seconds must be zero or positive")
	}
	if c.Verify.SaveRetries < 0 {
		return errors.New("verify.save_retries must be zero or positive")
	}
	if c.Verify.ChunkSizeKiB < 0 {
		return errors.New("verify.chunk_size_kib must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (use console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
