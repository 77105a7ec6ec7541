package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"dictverify/internal/history"
	"dictverify/internal/volume"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [dictionary]",
		Short: "Show past verification runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openHistory(cmd.Context())
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("history is disabled; set [history] enabled = true in the configuration")
			}
			defer store.Close()

			dicts, err := ctx.discover()
			if err != nil {
				return err
			}
			id := uuid.Nil
			if len(args) == 1 {
				if id, err = resolveDictionaryID(dicts, args[0]); err != nil {
					return err
				}
			}

			entries, err := store.Recent(cmd.Context(), id, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No verification runs recorded")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Finished", "Dictionary", "Status", "Volumes", "Duration", "Detail"},
				buildHistoryRows(entries, titlesByID(dicts), time.Now()),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				"",
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	return cmd
}

// resolveDictionaryID accepts anything volume.Find accepts, plus the full ID
// of a dictionary that is no longer installed.
func resolveDictionaryID(dicts []volume.Dictionary, query string) (uuid.UUID, error) {
	if d, ok := volume.Find(dicts, query); ok {
		return d.ID, nil
	}
	if id, err := uuid.Parse(query); err == nil {
		return id, nil
	}
	return uuid.Nil, noMatchError(query)
}

func titlesByID(dicts []volume.Dictionary) map[uuid.UUID]string {
	titles := make(map[uuid.UUID]string, len(dicts))
	for _, d := range dicts {
		titles[d.ID] = d.Title()
	}
	return titles
}

func buildHistoryRows(entries []history.Entry, titles map[uuid.UUID]string, now time.Time) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		name, ok := titles[entry.DictionaryID]
		if !ok {
			name = shortID(entry.DictionaryID.String())
		}
		rows = append(rows, []string{
			humanize.RelTime(entry.FinishedAt, now, "ago", "from now"),
			name,
			entry.Status,
			fmt.Sprintf("%d/%d", entry.Verified, entry.Total),
			entry.FinishedAt.Sub(entry.StartedAt).Round(time.Second).String(),
			historyDetail(entry),
		})
	}
	return rows
}

func historyDetail(entry history.Entry) string {
	detail := entry.Item
	if entry.Message != "" {
		if detail != "" {
			detail += ": "
		}
		detail += entry.Message
	}
	if entry.PersistError != "" {
		if detail != "" {
			detail += "; "
		}
		detail += "not saved: " + entry.PersistError
	}
	return detail
}
