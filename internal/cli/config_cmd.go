// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/jeranaias/contractchat/internal/config"
)

func newConfigCommand(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the configuration",
		Long: `Show or change the configuration file.

Keys use dot notation:
  ` + strings.Join(config.GetAllKeys(), "\n  "),
		Args: cobra.NoArgs,
		// set must work on a file that no longer validates, so loading is
		// left to each subcommand.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			configureColor(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.AddCommand(
		newConfigShowCommand(o),
		newConfigGetCommand(o),
		newConfigSetCommand(o),
		newConfigPathCommand(o),
	)
	return cmd
}

func newConfigShowCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after file, environment and flag overrides.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.loadConfig(cmd, args); err != nil {
				return err
			}
			if o.jsonOutput {
				return o.printJSON(cmd, o.cfg)
			}
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(o.cfg)
		},
	}
}

func newConfigGetCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "get <key>",
		Short:   "Print one configuration value",
		Example: "  contractchat config get backend.url",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.loadConfig(cmd, nil); err != nil {
				return err
			}
			value, err := o.cfg.Get(args[0])
			if err != nil {
				return NewUsageError(err.Error(), "contractchat config get backend.url")
			}
			if o.jsonOutput {
				return o.printJSON(cmd, map[string]interface{}{args[0]: value})
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func newConfigSetCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one value in the configuration file",
		Long: `Change one value in the configuration file. Only the file is read and
written; environment variables and flags are not saved.`,
		Example: `  contractchat config set backend.url https://contracts.example.com
  contractchat config set upload.continue_on_error true`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := o.configFile()
			if err != nil {
				return err
			}

			cfg, err := readConfigFile(path)
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return NewUsageError(err.Error(), "contractchat config set log.level debug")
			}
			cfg.SetDefaults()
			if err := cfg.Validate(); err != nil {
				return err
			}

			if err := writeConfigFile(cfg, path); err != nil {
				return err
			}
			if o.jsonOutput {
				value, _ := cfg.Get(args[0])
				return o.printJSON(cmd, map[string]interface{}{args[0]: value, "file": path})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s\n", SuccessStyle.Render("Saved"), args[0], args[1])
			return nil
		},
	}
}

func newConfigPathCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := o.configFile()
			if err != nil {
				return err
			}
			if o.jsonOutput {
				return o.printJSON(cmd, map[string]string{"path": path})
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

// configFile is --config, or the TOML file in the config directory.
func (o *rootOptions) configFile() (string, error) {
	if o.configPath != "" {
		return o.configPath, nil
	}
	return config.ConfigPathTOML()
}

// readConfigFile loads path over the defaults without environment
// overrides. A missing file yields the defaults.
func readConfigFile(path string) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	var err error
	if isJSONPath(path) {
		err = config.LoadJSON(cfg, path)
	} else {
		err = config.LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return cfg, nil
}

func writeConfigFile(cfg *config.Config, path string) error {
	if isJSONPath(path) {
		return config.SaveJSON(cfg, path)
	}
	return config.SaveTOML(cfg, path)
}

func isJSONPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
