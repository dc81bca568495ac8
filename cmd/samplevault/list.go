package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"samplevault/internal/config"
	"samplevault/internal/service"
)

func newListCmd(cfg *config.Config, structuredOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list <type> <id>",
		Short: "List a target's attachments",
		Args:  requireExactlyArgs(2, "type and id are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := service.ParseTarget(args[0], args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), cfg, func(a *app) error {
				attachments, err := a.engine.Attachments.List(cmd.Context(), target)
				if err != nil {
					return err
				}
				if *structuredOutput {
					return writeStructured(attachments)
				}
				return writeAttachmentList(attachments)
			})
		},
	}
}

func newCatCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <attachment-id>",
		Short: "Write an attachment's content to stdout",
		Args:  requireExactlyArgs(1, "attachment id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cfg, func(a *app) error {
				content, err := a.engine.Attachments.Open(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				defer content.Reader.Close()
				_, err = io.Copy(stdout, content.Reader)
				return err
			})
		},
	}
}

func newMetaCmd(cfg *config.Config, structuredOutput *bool) *cobra.Command {
	var privileged bool

	cmd := &cobra.Command{
		Use:   "meta <attachment-id> [key=value]...",
		Short: "Show or edit an attachment's custom metadata",
		Long: `Show an attachment, or set custom metadata keys on it. Values are parsed
as YAML scalars, so "reads=42" stores a number. "key=" removes the key.`,
		Args: requireAtLeastArgs(1, "attachment id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, err := parseMetadataArgs(args[1:])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), cfg, func(a *app) error {
				attachment, err := a.engine.Attachments.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if len(extra) > 0 {
					attachment, err = a.engine.Attachments.UpdateMetadata(cmd.Context(), args[0], extra, service.DetachOptions{Privileged: privileged})
					if err != nil {
						return err
					}
				}
				if *structuredOutput {
					return writeStructured(attachment)
				}
				return writeAttachmentDetail(attachment)
			})
		},
	}

	cmd.Flags().BoolVar(&privileged, "privileged", false, "allow editing attachments produced by workflow runs")
	return cmd
}

func parseMetadataArgs(args []string) (map[string]any, error) {
	extra := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata %q: expected key=value", arg)
		}
		if strings.TrimSpace(raw) == "" {
			extra[key] = nil
			continue
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("invalid metadata value for %s: %w", key, err)
		}
		switch value.(type) {
		case map[string]any, []any, nil:
			value = raw
		}
		extra[key] = value
	}
	return extra, nil
}

type pairLink struct {
	Forward string `json:"forward"`
	Reverse string `json:"reverse"`
}

func newPairCmd(cfg *config.Config, structuredOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "pair <type> <id>",
		Short: "Re-run read pairing for a target's fastq attachments",
		Args:  requireExactlyArgs(2, "type and id are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := service.ParseTarget(args[0], args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), cfg, func(a *app) error {
				res, err := a.engine.Attachments.ResolvePairs(cmd.Context(), target)
				if err != nil {
					return err
				}
				links := make([]pairLink, 0, len(res.Linked))
				for _, p := range res.Linked {
					links = append(links, pairLink{Forward: p.ForwardID, Reverse: p.ReverseID})
				}
				if *structuredOutput {
					return writeStructured(map[string]any{"linked": links, "cleared": res.Cleared})
				}
				for _, l := range links {
					if err := writePlain("linked %s %s\n", l.Forward, l.Reverse); err != nil {
						return err
					}
				}
				for _, id := range res.Cleared {
					if err := writePlain("cleared %s\n", id); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
