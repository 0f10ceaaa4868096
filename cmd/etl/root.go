package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "etl",
		Short:        "FlexiMart ETL: clean raw CSV exports and load them into PostgreSQL",
		SilenceUsage: true,
	}

	cmd.AddCommand(runCmd(), serveCmd(), rulesCmd())
	return cmd
}
