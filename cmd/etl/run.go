package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	var noColor bool

	c := &cobra.Command{
		Use:   "run",
		Short: "Run one pipeline pass and write the data quality report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.runOnce(ctx)
			if report != nil {
				report.WriteTable(os.Stdout, !noColor && isatty.IsTerminal(os.Stdout.Fd()))
			}
			return err
		},
	}

	c.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	return c
}
