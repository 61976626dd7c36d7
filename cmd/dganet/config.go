package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config <file>",
	Short: "Write a settings file to edit and pass back with --config",
	Long: `Write the default settings to a JSON file, or YAML when the file name
ends in .yaml or .yml. Any --set overrides are applied first.

Examples:
  dganet config dga.json
  dganet config --set hiddenlayers=3 --set eta=0.05 small.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	if err := conf.Save(args[0]); err != nil {
		return err
	}
	fmt.Println(conf)
	return nil
}
