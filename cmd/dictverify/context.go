package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"dictverify/internal/config"
	"dictverify/internal/history"
	"dictverify/internal/logging"
	"dictverify/internal/records"
	"dictverify/internal/verify"
	"dictverify/internal/volume"
)

const shutdownWait = 30 * time.Second

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) discover() ([]volume.Dictionary, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	return volume.Discover(cfg.Paths.DictionaryDir, volume.Options{
		ChunkSize: cfg.ChunkSize(),
		Logger:    logger,
	})
}

// openHistory returns nil when the history log is disabled.
func (c *commandContext) openHistory(ctx context.Context) (*history.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.History.Enabled {
		return nil, nil
	}
	store, err := history.Open(ctx, cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return store, nil
}

// withController builds a controller over the configured record file and
// history log, runs fn, then shuts the controller down.
func (c *commandContext) withController(ctx context.Context, fn func(*verify.Controller) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return err
	}

	opts := verify.Options{
		Logger:      logger,
		ItemTimeout: cfg.ItemTimeout(),
		LowPriority: cfg.Verify.LowPriority,
		SaveRetries: cfg.Verify.SaveRetries,
	}
	store, err := c.openHistory(ctx)
	if err != nil {
		logging.WarnWithContext(logger, "history log unavailable", "history_open_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "this run is not added to the history log"))
	} else if store != nil {
		defer store.Close()
		opts.History = store
	}

	controller := verify.NewController(records.NewFile(cfg.RecordsPath()), opts)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownWait)
		defer cancel()
		if err := controller.Shutdown(shutdownCtx); err != nil {
			logger.Warn("verification jobs still running at exit", logging.Error(err))
		}
	}()
	return fn(controller)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
