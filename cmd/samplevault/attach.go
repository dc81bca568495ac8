package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"samplevault/internal/config"
	"samplevault/internal/models"
	"samplevault/internal/service"
)

func newUploadCmd(cfg *config.Config, structuredOutput *bool) *cobra.Command {
	var contentType string

	cmd := &cobra.Command{
		Use:   "upload <path>...",
		Short: "Register local files as blobs",
		Args:  requireAtLeastArgs(1, "at least one path is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cfg, func(a *app) error {
				blobs := make([]models.Blob, 0, len(args))
				for _, path := range args {
					blob, err := uploadFile(cmd, a, path, contentType)
					if err != nil {
						return fmt.Errorf("upload %s: %w", path, err)
					}
					blobs = append(blobs, blob)
				}
				if *structuredOutput {
					return writeStructured(blobs)
				}
				for _, blob := range blobs {
					if err := writeBlob(blob); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&contentType, "content-type", "", "content type (default: inferred from extension)")
	return cmd
}

func uploadFile(cmd *cobra.Command, a *app, path, contentType string) (models.Blob, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Blob{}, err
	}
	defer f.Close()
	return a.engine.Attachments.RegisterUpload(cmd.Context(), filepath.Base(path), contentType, f)
}

func newAttachCmd(cfg *config.Config, structuredOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach <type> <id> <blob-id>...",
		Short: "Attach uploaded blobs to a sample, namespace or workflow execution",
		Long: `Attach uploaded blobs to one target. Each blob is handled independently:
one failure never skips or rolls back the others. Paired-end fastq files
are linked automatically once both mates are attached.`,
		Args: requireAtLeastArgs(3, "type, id and at least one blob id are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := service.ParseTarget(args[0], args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), cfg, func(a *app) error {
				res, err := a.engine.Batch.AttachMany(cmd.Context(), target, args[2:])
				if err != nil {
					return err
				}
				return writeBatchOutcome("attach", res, *structuredOutput)
			})
		},
	}
	return cmd
}

func newDetachCmd(cfg *config.Config, structuredOutput *bool) *cobra.Command {
	var privileged bool

	cmd := &cobra.Command{
		Use:   "detach <attachment-id>...",
		Short: "Remove attachments",
		Args:  requireAtLeastOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cfg, func(a *app) error {
				res := a.engine.Batch.DetachMany(cmd.Context(), args, service.DetachOptions{Privileged: privileged})
				return writeBatchOutcome("detach", res, *structuredOutput)
			})
		},
	}

	cmd.Flags().BoolVar(&privileged, "privileged", false, "allow removing attachments produced by workflow runs")
	return cmd
}

// writeBatchOutcome prints res and fails when any item failed.
func writeBatchOutcome(op string, res service.BatchResult, structuredOutput bool) error {
	var err error
	if structuredOutput {
		err = writeStructured(res)
	} else {
		err = writeBatchResult(res)
	}
	if err != nil {
		return err
	}
	if failed := len(res.Status) - res.SuccessCount(); failed > 0 {
		return &batchFailedError{op: op, failed: failed, total: len(res.Status)}
	}
	return nil
}
