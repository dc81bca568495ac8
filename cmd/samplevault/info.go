package main

import (
	"sort"

	"github.com/spf13/cobra"

	"samplevault/internal/config"
	"samplevault/internal/format"
)

func newInfoCmd(cfg *config.Config, structuredOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show database and blob store summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cfg, func(a *app) error {
				info, err := a.store.StoreInfo(cmd.Context())
				if err != nil {
					return err
				}
				if *structuredOutput {
					return writeStructured(map[string]any{
						"store":        info,
						"blob_backend": a.blobs.Backend(),
						"db_path":      cfg.DBPath,
					})
				}

				if err := writePlain("dialect: %s\nschema_version: %d\nblob_backend: %s\n", info.Dialect, info.SchemaVersion, a.blobs.Backend()); err != nil {
					return err
				}
				tables := make([]string, 0, len(info.Counts))
				for table := range info.Counts {
					tables = append(tables, table)
				}
				sort.Strings(tables)
				for _, table := range tables {
					if err := writePlain("%s: %d\n", table, info.Counts[table]); err != nil {
						return err
					}
				}
				return writePlain("blob_bytes: %s\n", format.HumanSize(info.TotalBlobBytes))
			})
		},
	}
}
