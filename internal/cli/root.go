// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/contractchat/internal/app"
	"github.com/jeranaias/contractchat/internal/config"
	"github.com/jeranaias/contractchat/internal/ui/tui"
	"github.com/jeranaias/contractchat/internal/upload"
)

// BuildInfo is stamped into the binary at build time.
type BuildInfo struct {
	Version string
	Commit  string
}

// rootOptions holds the persistent flags and the loaded config shared by
// every subcommand.
type rootOptions struct {
	build BuildInfo

	configPath string
	backendURL string
	logLevel   string
	jsonOutput bool

	cfg *config.Config
}

// NewRootCommand builds the command tree.
func NewRootCommand(build BuildInfo) *cobra.Command {
	o := &rootOptions{build: build}

	root := &cobra.Command{
		Use:   "contractchat",
		Short: "Chat with your PDF contracts from the terminal",
		Long: `contractchat is a terminal client for a contract chat backend.

Upload PDF contracts, browse what has been processed, and ask questions
about one contract or all of them. Run it without a subcommand for the
interactive client.`,
		Version:           build.Version,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: o.loadConfig,
		RunE:              o.runInteractive,
	}
	root.SetVersionTemplate("contractchat {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "Path to a config file (default: ~/.contractchat/config.toml)")
	pf.StringVar(&o.backendURL, "backend", "", "Backend base URL (overrides backend.url)")
	pf.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&o.jsonOutput, "json", false, "Print machine-readable JSON")

	root.AddCommand(
		newLoginCommand(o),
		newLogoutCommand(o),
		newStatusCommand(o),
		newContractsCommand(o),
		newUploadCommand(o),
		newAskCommand(o),
		newSettingsCommand(o),
		newConfigCommand(o),
		newVersionCommand(o),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(build BuildInfo) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return run(ctx, NewRootCommand(build), os.Args[1:])
}

func run(ctx context.Context, root *cobra.Command, args []string) int {
	root.SetArgs(args)
	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return ExitSuccess
	}

	jsonMode, _ := root.PersistentFlags().GetBool("json")
	if jsonMode {
		DisplayError(root.OutOrStdout(), cmd.Name(), err, true)
	} else {
		DisplayError(root.ErrOrStderr(), cmd.Name(), err, false)
	}
	return GetExitCode(err)
}

// =============================================================================
// SHARED SETUP
// =============================================================================

func (o *rootOptions) loadConfig(cmd *cobra.Command, _ []string) error {
	configureColor(cmd.OutOrStdout())

	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFromPath(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	if o.backendURL != "" {
		cfg.Backend.URL = strings.TrimRight(o.backendURL, "/")
	}
	if o.logLevel != "" {
		cfg.Log.Level = strings.ToLower(o.logLevel)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

// openApp wires the components for one command. The caller must Close it.
func (o *rootOptions) openApp(progress upload.ProgressFunc) (*app.App, error) {
	if o.cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	return app.New(app.Options{
		Config:   o.cfg,
		Version:  o.build.Version,
		Progress: progress,
	})
}

// requireSession restores the stored key and fails if it is missing or
// was rejected.
func requireSession(ctx context.Context, a *app.App) error {
	if err := a.Start(ctx, nil); err != nil {
		return err
	}
	if a.Guard.Authenticated() {
		return nil
	}
	if notice := a.Guard.Notice(); notice != "" {
		return fmt.Errorf("%s: %w", notice, ErrNotLoggedIn)
	}
	return ErrNotLoggedIn
}

func (o *rootOptions) runInteractive(cmd *cobra.Command, _ []string) error {
	if !isTerminal(cmd.InOrStdin()) || !isTerminal(cmd.OutOrStdout()) {
		return NewUsageError("the interactive client needs a terminal", `contractchat ask "What is the term length?"`)
	}

	relay := &tui.ProgressRelay{}
	a, err := o.openApp(relay.Progress)
	if err != nil {
		return err
	}
	defer a.Close()

	return tui.Run(a, relay, tui.Options{Markdown: o.cfg.UI.RenderMarkdown})
}

func (o *rootOptions) printJSON(cmd *cobra.Command, data interface{}) error {
	return NewJSONResponse(cmd.Name(), data).Write(cmd.OutOrStdout())
}
