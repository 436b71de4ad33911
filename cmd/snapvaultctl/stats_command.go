package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/raaihank/snapvault/internal/app"
	"github.com/raaihank/snapvault/internal/recordings"
	"github.com/spf13/cobra"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var (
		userID string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard totals for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := ctx.ensure()
			if err != nil {
				return err
			}
			if !cfg.Database.Enabled {
				return errors.New("stats needs database.enabled: recordings are only persisted in Postgres")
			}

			repo, err := app.OpenRecordings(cfg, log)
			if err != nil {
				return err
			}
			defer repo.Close()

			stats, err := repo.Stats(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			return renderStats(cmd.OutOrStdout(), stats)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "local", "User to summarize")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func renderStats(w io.Writer, stats recordings.Stats) error {
	totals := [][]string{
		{"Recordings", strconv.FormatInt(stats.Recordings, 10)},
		{"Snapshots", strconv.FormatInt(stats.Snaps, 10)},
		{"Detections", strconv.FormatInt(stats.Detections, 10)},
		{"Manual zones", strconv.FormatInt(stats.Blurred, 10)},
		{"Duration", fmt.Sprintf("%.1fs", stats.Duration)},
	}
	mix := make([][]string, 0, len(stats.PrivacyMix))
	for _, m := range stats.PrivacyMix {
		mix = append(mix, []string{m.Name, strconv.FormatInt(m.Value, 10)})
	}

	_, err := fmt.Fprintf(w, "%s\n%s\n",
		renderTable([]string{"Total", "Value"}, totals, 1),
		renderTable([]string{"Category", "Detections"}, mix, 1))
	return err
}
