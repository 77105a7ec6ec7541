package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dictverify/internal/verify"
	"dictverify/internal/volume"
)

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [dictionary...]",
		Short: "Verify dictionary volumes against their manifests",
		Long: "Verify every volume of the named dictionaries (by ID, ID prefix, or title).\n" +
			"With no arguments every installed dictionary is verified. Interrupting the\n" +
			"command cancels the running verification without recording a result.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dicts, err := ctx.discover()
			if err != nil {
				return err
			}
			targets, err := selectDictionaries(dicts, args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(targets) == 0 {
				fmt.Fprintf(out, "No dictionaries found in %s\n", cfg.Paths.DictionaryDir)
				return nil
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reporter := newProgressReporter(out, logger)
			return ctx.withController(runCtx, func(controller *verify.Controller) error {
				return verifyAll(runCtx, controller, targets, reporter)
			})
		},
	}
}

func selectDictionaries(dicts []volume.Dictionary, queries []string) ([]volume.Dictionary, error) {
	if len(queries) == 0 {
		return dicts, nil
	}
	selected := make([]volume.Dictionary, 0, len(queries))
	seen := make(map[string]bool, len(queries))
	for _, query := range queries {
		d, ok := volume.Find(dicts, query)
		if !ok {
			return nil, noMatchError(query)
		}
		if seen[d.ID.String()] {
			continue
		}
		seen[d.ID.String()] = true
		selected = append(selected, d)
	}
	return selected, nil
}

func noMatchError(query string) error {
	return fmt.Errorf("no single dictionary matches %q", query)
}

// verifyAll runs one dictionary at a time and returns an error when any of
// them did not verify cleanly.
func verifyAll(ctx context.Context, controller *verify.Controller, dicts []volume.Dictionary, reporter *progressReporter) error {
	failures := 0
	for _, d := range dicts {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := verifyOne(ctx, controller, d, reporter)
		if err != nil {
			return err
		}
		if result.Status == verify.StatusCancelled && ctx.Err() != nil {
			return ctx.Err()
		}
		if result.Status != verify.StatusSucceeded || result.PersistErr != nil {
			failures++
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d %s did not verify", failures, len(dicts), pluralize(len(dicts), "dictionary", "dictionaries"))
	}
	return nil
}

func verifyOne(ctx context.Context, controller *verify.Controller, d volume.Dictionary, reporter *progressReporter) (verify.Result, error) {
	title := d.Title()
	handle, err := controller.Start(ctx, d.Items())
	if err != nil {
		if errors.Is(err, verify.ErrAlreadyRunning) {
			return verify.Result{}, fmt.Errorf("%s is already being verified", title)
		}
		return verify.Result{}, fmt.Errorf("start verification of %s: %w", title, err)
	}

	reporter.begin(title, len(d.Volumes))
	var result verify.Result
	for ev := range handle.Events() {
		switch ev := ev.(type) {
		case verify.ProgressEvent:
			reporter.progress(ev, len(d.Volumes))
		case verify.ItemVerifiedEvent:
			reporter.item(ev)
		case verify.TerminalEvent:
			result = ev.Result
			reporter.done(title, result)
		}
	}
	return result, nil
}
