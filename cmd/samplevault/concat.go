package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"samplevault/internal/config"
	"samplevault/internal/service"
)

// concatManifest is the YAML form of a concatenation request.
type concatManifest struct {
	Target struct {
		Type string `yaml:"type"`
		ID   string `yaml:"id"`
	} `yaml:"target"`
	Basename        string   `yaml:"basename"`
	DeleteOriginals bool     `yaml:"delete_originals"`
	Attachments     []string `yaml:"attachments"`
}

func newConcatCmd(cfg *config.Config, structuredOutput *bool) *cobra.Command {
	var basename string
	var deleteOriginals bool
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "concat [<type> <id> <attachment-id>...]",
		Short: "Concatenate fastq attachments into new attachments",
		Long: `Concatenate fastq attachments of one target. Single-end selections produce
<basename>.<ext>; paired-end selections produce <basename>_1.<ext> and
<basename>_2.<ext> and must include both mates of every pair.

The request may come from flags and arguments or from --manifest.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var req service.ConcatenationRequest
			var err error
			if manifestPath != "" {
				if len(args) > 0 {
					return fmt.Errorf("--manifest cannot be combined with positional arguments")
				}
				req, err = loadConcatManifest(manifestPath)
			} else {
				req, err = concatRequestFromArgs(args, basename, deleteOriginals)
			}
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), cfg, func(a *app) error {
				outcome, err := a.engine.Concat.Concatenate(cmd.Context(), req)
				if err != nil {
					return err
				}
				if *structuredOutput {
					return writeStructured(outcome)
				}
				if err := writeAttachmentList(outcome.Outputs); err != nil {
					return err
				}
				for _, id := range outcome.Deleted {
					if err := writePlain("deleted %s\n", id); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&basename, "basename", "", "output basename (letters, digits, '_' and '-')")
	cmd.Flags().BoolVar(&deleteOriginals, "delete-originals", false, "detach the source attachments once outputs exist")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "read the request from a YAML file")
	return cmd
}

func concatRequestFromArgs(args []string, basename string, deleteOriginals bool) (service.ConcatenationRequest, error) {
	if len(args) < 3 {
		return service.ConcatenationRequest{}, fmt.Errorf("type, id and attachment ids are required")
	}
	target, err := service.ParseTarget(args[0], args[1])
	if err != nil {
		return service.ConcatenationRequest{}, err
	}
	return service.ConcatenationRequest{
		Target:          target,
		AttachmentIDs:   args[2:],
		Basename:        basename,
		DeleteOriginals: deleteOriginals,
	}, nil
}

func loadConcatManifest(path string) (service.ConcatenationRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return service.ConcatenationRequest{}, err
	}
	var m concatManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return service.ConcatenationRequest{}, fmt.Errorf("parse %s: %w", path, err)
	}
	target, err := service.ParseTarget(m.Target.Type, m.Target.ID)
	if err != nil {
		return service.ConcatenationRequest{}, err
	}
	return service.ConcatenationRequest{
		Target:          target,
		AttachmentIDs:   m.Attachments,
		Basename:        m.Basename,
		DeleteOriginals: m.DeleteOriginals,
	}, nil
}
