package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"samplevault/internal/config"
)

// configEntry is one resolved key in `config list`.
type configEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// configPaths reports which files `config set` writes and what was loaded.
type configPaths struct {
	Global        string `json:"global"`
	Project       string `json:"project"`
	TrustedLoaded string `json:"trusted_project_loaded,omitempty"`
}

func newConfigCmd(cfg *config.Config, structuredOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or change configuration",
		Long: `Inspect the effective configuration (files plus SAMPLEVAULT_* overrides)
or write single keys. Pairing patterns are a table array and are edited in
the file directly.`,
	}

	cmd.AddCommand(
		newConfigGetCmd(cfg),
		newConfigListCmd(cfg, structuredOutput),
		newConfigPathCmd(cfg, structuredOutput),
		newConfigSetCmd(structuredOutput),
	)
	return cmd
}

func newConfigGetCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one effective config value",
		Args:  requireExactlyArgs(1, "key is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			if !config.IsAllowedKey(key) {
				return fmt.Errorf("unknown key: %s (see: samplevault config list)", key)
			}
			value, err := cfg.Get(key)
			if err != nil {
				return err
			}
			return writePlain("%s\n", value)
		},
	}
}

func newConfigListCmd(cfg *config.Config, structuredOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every effective config value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := configEntries(cfg)
			if err != nil {
				return err
			}
			if *structuredOutput {
				return writeStructured(entries)
			}
			for _, e := range entries {
				if err := writePlain("%s = %s\n", e.Key, displayConfigValue(e)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newConfigPathCmd(cfg *config.Config, structuredOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show the global and project config file locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			global, err := config.GlobalPath()
			if err != nil {
				return err
			}
			project, err := config.ProjectPath()
			if err != nil {
				return err
			}
			paths := configPaths{Global: global, Project: project, TrustedLoaded: cfg.TrustedProjectConfigPath}
			if *structuredOutput {
				return writeStructured(paths)
			}
			if err := writePlain("global: %s\nproject: %s\n", paths.Global, paths.Project); err != nil {
				return err
			}
			if paths.TrustedLoaded == "" {
				return writePlain("project config is ignored unless SAMPLEVAULT_TRUST_PROJECT_CONFIG is set\n")
			}
			return writePlain("trusted project config loaded from %s\n", paths.TrustedLoaded)
		},
	}
}

func newConfigSetCmd(structuredOutput *bool) *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write one config value",
		Args:  requireExactlyArgs(2, "key and value are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := strings.TrimSpace(args[0]), args[1]

			path, err := config.ProjectPath()
			if global {
				path, err = config.GlobalPath()
			}
			if err != nil {
				return err
			}
			if err := config.SetKey(path, key, value); err != nil {
				return err
			}

			if *structuredOutput {
				return writeStructured(map[string]string{"key": key, "value": value, "path": path})
			}
			return writePlain("set %s in %s\n", key, path)
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "write to the global config (~/.samplevault.toml)")
	return cmd
}

// configEntries resolves every settable key. Credentials in database_url are
// masked.
func configEntries(cfg *config.Config) ([]configEntry, error) {
	keys := config.AllowedKeys()
	entries := make([]configEntry, 0, len(keys))
	for _, key := range keys {
		value, err := cfg.Get(key)
		if err != nil {
			return nil, err
		}
		if key == "database_url" && value != "" {
			value = redactURLPassword(value)
		}
		entries = append(entries, configEntry{Key: key, Value: value})
	}
	return entries, nil
}

func displayConfigValue(e configEntry) string {
	if e.Value == "" {
		return `""`
	}
	return e.Value
}

func redactURLPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
