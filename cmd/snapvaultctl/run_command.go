package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/raaihank/snapvault/internal/app"
	"github.com/raaihank/snapvault/internal/config"
	"github.com/raaihank/snapvault/internal/logger"
	"github.com/raaihank/snapvault/internal/pipeline"
	"github.com/raaihank/snapvault/internal/progress"
	"github.com/raaihank/snapvault/internal/recordings"
	"github.com/spf13/cobra"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		zoneFlags []string
		userID    string
		record    bool
	)

	cmd := &cobra.Command{
		Use:   "run <video>",
		Short: "Redact a recording locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := ctx.ensure()
			if err != nil {
				return err
			}
			zones, err := parseZones(zoneFlags)
			if err != nil {
				return err
			}

			engine, err := app.NewEngine(cfg, nil, log)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			sink := newTerminalSink(out)

			// terminal writes happen off the pipeline goroutine
			events := progress.NewChannel(32)
			drained := make(chan struct{})
			go func() {
				defer close(drained)
				for e := range events.Events() {
					sink.Report(e)
				}
			}()

			res, err := engine.Coordinator.Run(cmd.Context(), args[0], zones, events)
			events.Close()
			<-drained
			sink.Finish()
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Output:      %s\n", res.OutputPath)
			fmt.Fprintf(out, "Detections:  %d\n", res.DetectionCount)
			fmt.Fprintf(out, "Manual:      %d\n", res.ManualRegions)
			fmt.Fprintf(out, "Frames:      %d\n", res.Frames)
			fmt.Fprintf(out, "Elapsed:     %s\n", res.Elapsed.Round(time.Millisecond))
			for _, d := range res.Degradations {
				fmt.Fprintf(out, "Warning:     %s: %s\n", d.Kind, d.Detail)
			}

			// the in-memory store would be discarded on exit
			if !record || !cfg.Database.Enabled {
				return nil
			}
			return saveRun(cmd, cfg, log, userID, args[0], len(zones), res)
		},
	}

	cmd.Flags().StringArrayVar(&zoneFlags, "zone", nil, "Manual blur zone x,y,w,h in source pixels (repeatable)")
	cmd.Flags().StringVar(&userID, "user", "local", "User the recording is stored under")
	cmd.Flags().BoolVar(&record, "record", true, "Store the result in the recordings database when one is configured")
	return cmd
}

func saveRun(cmd *cobra.Command, cfg *config.Config, log *logger.Logger, userID, input string, zones int, res pipeline.Result) error {
	repo, err := app.OpenRecordings(cfg, log)
	if err != nil {
		return err
	}
	defer repo.Close()

	generated := filepath.Base(res.OutputPath)
	id, err := repo.Insert(cmd.Context(), recordings.Recording{
		UserID:        userID,
		OriginalName:  filepath.Base(input),
		GeneratedName: generated,
		ProcessedURL:  "/processed/" + generated,
		Detections:    res.DetectionCount,
		Blurred:       zones,
		Duration:      res.DurationSeconds,
	}, res.Findings)
	if err != nil {
		return fmt.Errorf("store recording: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recording:   #%d\n", id)
	return nil
}
