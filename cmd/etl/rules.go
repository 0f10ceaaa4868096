package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/fleximart-etl/internal/config"
)

func rulesCmd() *cobra.Command {
	var file string

	c := &cobra.Command{
		Use:   "rules",
		Short: "Print the effective cleansing rules as YAML",
		Long: "Print the built-in cleansing rules merged with the rules file, if any.\n" +
			"The file defaults to $ETL_RULES_FILE.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				file = os.Getenv("ETL_RULES_FILE")
			}
			rules, err := config.LoadRules(file)
			if err != nil {
				return err
			}
			out, err := rules.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	c.Flags().StringVarP(&file, "file", "f", "", "Rules YAML file")
	return c
}
