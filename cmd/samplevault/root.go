package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"samplevault/internal/config"
	"samplevault/internal/format"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var structuredOutput bool
	var outputName string
	var logLevel string

	cmd := &cobra.Command{
		Use:           "samplevault",
		Short:         "Attach, pair and concatenate sample files and report namespace usage",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			formatter, err := format.New(outputName)
			if err != nil {
				return err
			}
			outputFormatter = formatter
			if outputName != "" {
				structuredOutput = true
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&structuredOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVarP(&outputName, "output", "o", "", "structured output format (json, yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newSeedCmd(cfg, &structuredOutput),
		newUploadCmd(cfg, &structuredOutput),
		newAttachCmd(cfg, &structuredOutput),
		newDetachCmd(cfg, &structuredOutput),
		newListCmd(cfg, &structuredOutput),
		newCatCmd(cfg),
		newMetaCmd(cfg, &structuredOutput),
		newPairCmd(cfg, &structuredOutput),
		newConcatCmd(cfg, &structuredOutput),
		newMetricsCmd(cfg, &structuredOutput),
		newGCCmd(cfg, &structuredOutput),
		newInfoCmd(cfg, &structuredOutput),
		newMigrateCmd(cfg, &structuredOutput),
		newConfigCmd(cfg, &structuredOutput),
	)

	return cmd
}
