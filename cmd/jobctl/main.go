package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bizadmin-backend/internal/bootstrap"
	"bizadmin-backend/internal/jobs"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "jobctl",
		Short:         "Inspect and run the scheduled jobs",
		SilenceUsage: true,
	}
	root.AddCommand(newListCmd(), newRunCmd())
	return root
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the registered jobs and their schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := bootstrap.New(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			for _, name := range app.Runner.Names() {
				job, _ := app.Runner.Job(name)
				fmt.Fprintf(out, "%-30s %s\n", job.Name, job.Spec)
			}
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <job>",
		Short: "Run one job immediately under its scheduler lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := bootstrap.New(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.Runner.Run(ctx, args[0])
			if errors.Is(err, jobs.ErrUnknownJob) {
				return fmt.Errorf("%w (known: %v)", err, app.Runner.Names())
			}
			if err != nil && !errors.Is(err, jobs.ErrJobLocked) {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}
