package main

import (
	"github.com/spf13/cobra"

	"samplevault/internal/config"
)

func newMetricsCmd(cfg *config.Config, structuredOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics <namespace-id>",
		Short: "Show project, sample, member and disk usage counts of a namespace",
		Args:  requireExactlyArgs(1, "namespace id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cfg, func(a *app) error {
				m, err := a.engine.Metrics.Metrics(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *structuredOutput {
					return writeStructured(m)
				}
				if err := writePlain("namespace: %s\n", m.NamespaceID); err != nil {
					return err
				}
				if m.ProjectCount != nil {
					if err := writePlain("projects: %d\n", *m.ProjectCount); err != nil {
						return err
					}
				}
				return writePlain("samples: %d\nmembers: %d\ndisk_usage: %s\n", m.SamplesCount, m.MembersCount, m.DiskUsage)
			})
		},
	}
}
