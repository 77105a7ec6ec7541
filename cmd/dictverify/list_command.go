package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"dictverify/internal/records"
	"dictverify/internal/verify"
	"dictverify/internal/volume"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed dictionaries and their last verification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dicts, err := ctx.discover()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(dicts) == 0 {
				fmt.Fprintf(out, "No dictionaries found in %s\n", cfg.Paths.DictionaryDir)
				return nil
			}
			return ctx.withController(cmd.Context(), func(controller *verify.Controller) error {
				rows := buildListRows(dicts, controller.Lookup, time.Now())
				footer := fmt.Sprintf("%d %s", len(dicts), pluralize(len(dicts), "dictionary", "dictionaries"))
				fmt.Fprintln(out, renderTable(
					[]string{"Title", "ID", "Articles", "Volumes", "Verification"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
					footer,
				))
				return nil
			})
		},
	}
}

func buildListRows(dicts []volume.Dictionary, lookup func(uuid.UUID) (records.Record, bool), now time.Time) [][]string {
	rows := make([][]string, 0, len(dicts))
	for _, d := range dicts {
		articles := "-"
		if n := d.ArticleCount(); n > 0 {
			articles = humanize.Comma(int64(n))
		}
		rec, ok := lookup(d.ID)
		rows = append(rows, []string{
			d.Title(),
			shortID(d.ID.String()),
			articles,
			volumeSummary(len(d.Volumes), d.TotalVolumes()),
			verificationSummary(rec, ok, now),
		})
	}
	return rows
}

func volumeSummary(present, total int) string {
	if present == total {
		return strconv.Itoa(total)
	}
	return fmt.Sprintf("%d of %d", present, total)
}

func verificationSummary(rec records.Record, ok bool, now time.Time) string {
	if !ok {
		return "not verified"
	}
	return fmt.Sprintf("%s, %s", rec.Result(), humanize.RelTime(rec.CheckedAt, now, "ago", "from now"))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
