package main

import (
	"errors"
	"fmt"

	"github.com/raaihank/snapvault/internal/app"
	"github.com/raaihank/snapvault/internal/export"
	"github.com/spf13/cobra"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the recordings history to a parquet file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return errors.New("--out is required")
			}
			cfg, log, err := ctx.ensure()
			if err != nil {
				return err
			}
			if !cfg.Database.Enabled {
				return errors.New("export needs database.enabled: recordings are only persisted in Postgres")
			}

			repo, err := app.OpenRecordings(cfg, log)
			if err != nil {
				return err
			}
			defer repo.Close()

			result, err := export.NewExporter(repo, log).Export(cmd.Context(), out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d recordings to %s\n", result.Rows, result.Path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Destination parquet file")
	return cmd
}
