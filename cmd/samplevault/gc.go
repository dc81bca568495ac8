package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"samplevault/internal/config"
	"samplevault/internal/format"
	"samplevault/internal/service"
)

func newGCCmd(cfg *config.Config, structuredOutput *bool) *cobra.Command {
	var apply bool
	var batchSize int
	var minAge string

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Remove blobs no attachment references",
		Long: `List blobs that no attachment references. With --apply they are deleted;
stored content is removed only when no other blob shares it. Blobs uploaded
less than --min-age ago are left alone so pending attaches still find them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			age := cfg.Attachments.GCMinAgeDuration()
			if cmd.Flags().Changed("min-age") {
				parsed, err := time.ParseDuration(minAge)
				if err != nil || parsed < 0 {
					return fmt.Errorf("invalid --min-age %q: use a non-negative duration such as 24h", minAge)
				}
				age = parsed
			}
			return withApp(cmd.Context(), cfg, func(a *app) error {
				res, err := a.engine.Attachments.GCBlobs(cmd.Context(), service.BlobGCOptions{
					BatchSize: batchSize,
					MinAge:    age,
					Apply:     apply,
				})
				if err != nil {
					return err
				}
				if *structuredOutput {
					return writeStructured(res)
				}
				if res.DryRun {
					return writePlain("%d unreferenced blobs (%s); rerun with --apply to delete\n", res.CandidateCount, format.HumanSize(res.ReclaimedBytes))
				}
				return writePlain("deleted %d of %d blobs, %d failed, reclaimed %s\n", res.DeletedCount, res.CandidateCount, res.FailedCount, format.HumanSize(res.ReclaimedBytes))
			})
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "delete the unreferenced blobs")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "blobs per batch (default: attachments.gc_batch_size)")
	cmd.Flags().StringVar(&minAge, "min-age", "", "only collect blobs older than this (default: attachments.gc_min_age)")
	return cmd
}
