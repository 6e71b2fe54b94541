package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dudu/swapface/internal/config"
	"github.com/dudu/swapface/internal/store"
)

func newRunsCmd(c *cli) *cobra.Command {
	opts := config.Default()
	limit := 20

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the latest journaled runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ApplyEnv()
			if opts.DatabaseURL == "" {
				return errors.New("no database configured, set --db or " + config.EnvDatabaseURL)
			}
			if limit < 1 {
				return fmt.Errorf("limit must be at least 1, got %d", limit)
			}

			s, err := store.New(cmd.Context(), opts.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer s.Close(cmd.Context())

			runs, err := s.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().StringVar(&opts.DatabaseURL, "db", opts.DatabaseURL, "PostgreSQL connection string of the run journal")
	cmd.Flags().IntVarP(&limit, "limit", "n", limit, "Number of runs to show")
	return cmd
}

func printRuns(out io.Writer, runs []store.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(out, "No runs found in database.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tKIND\tFRAMES\tFACES\tTARGET\tSTARTED\tERROR")
	fmt.Fprintln(w, "--\t------\t----\t------\t-----\t------\t-------\t-----")
	for _, r := range runs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			r.ID, r.Status, r.TargetKind, r.Frames, r.FacesSwapped, r.TargetPath,
			r.StartedAt.Local().Format("2006-01-02 15:04"), r.Error)
	}
	return w.Flush()
}
