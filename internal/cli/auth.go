// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jeranaias/contractchat/internal/api"
	"github.com/jeranaias/contractchat/internal/config"
	"github.com/jeranaias/contractchat/internal/session"
	"github.com/jeranaias/contractchat/internal/util"
)

// =============================================================================
// LOGIN
// =============================================================================

func newLoginCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Store an API key and check it against the backend",
		Long: `Prompt for an API key, store it locally and load the contract list
with it. A key the backend rejects is erased again.

The key is read without echo from a terminal, or as one line from stdin.`,
		Example: `  contractchat login
  echo "$CONTRACTCHAT_KEY" | contractchat login`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.openApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()

			p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
			key, ok, err := p.PromptCredential(cmd.Context(), session.EntryPrompt)
			if err != nil {
				return err
			}
			if !ok {
				return NewUsageError("no API key entered", "contractchat login")
			}

			if err := a.Login(cmd.Context(), key); err != nil {
				return WrapError(err, "login", "store key")
			}
			if !a.Guard.Authenticated() {
				return fmt.Errorf("%s: %w", a.Guard.Notice(), api.ErrUnauthorized)
			}

			st := a.Guard.GetStatus()
			if o.jsonOutput {
				return o.printJSON(cmd, map[string]interface{}{
					"authenticated": true,
					"fingerprint":   st.Fingerprint,
					"contracts":     a.Registry.Len(),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, SuccessStyle.Render("Logged in")+DimStyle.Render(" (key "+st.Fingerprint+")"))
			if err := a.Registry.LastError(); err != nil {
				fmt.Fprintln(out, WarningStyle.Render("Could not load contracts: "+err.Error()))
			} else {
				fmt.Fprintf(out, "%d %s available.\n", a.Registry.Len(), util.Plural(a.Registry.Len(), "contract"))
			}
			return nil
		},
	}
}

// =============================================================================
// LOGOUT
// =============================================================================

func newLogoutCommand(o *rootOptions) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Erase the stored API key",
		Example: `  contractchat logout
  contractchat logout --confirm`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
			confirmer, err := requireConfirmation(p, confirm, o.jsonOutput)
			if err != nil {
				return err
			}

			a, err := o.openApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()

			err = a.ClearSession(session.ConfirmFunc(confirmer))
			if errors.Is(err, session.ErrNotConfirmed) {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}
			if err != nil {
				return WrapError(err, "logout", "erase key")
			}

			if o.jsonOutput {
				return o.printJSON(cmd, map[string]bool{"cleared": true})
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("API key cleared."))
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Skip the confirmation prompt")
	return cmd
}

// =============================================================================
// STATUS
// =============================================================================

// statusReport is the status command's output.
type statusReport struct {
	Backend       string    `json:"backend"`
	Authenticated bool      `json:"authenticated"`
	Fingerprint   string    `json:"fingerprint"`
	Notice        string    `json:"notice,omitempty"`
	Contracts     int       `json:"contracts"`
	RefreshError  string    `json:"refresh_error,omitempty"`
	RefreshedAt   time.Time `json:"refreshed_at,omitempty"`
	ConfigFile    string    `json:"config_file"`
	Storage       string    `json:"storage"`
	Since         time.Time `json:"since"`
}

func newStatusCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Aliases: []string{"s"},
		Short:   "Show session and backend status",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.openApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Start(cmd.Context(), nil); err != nil {
				return err
			}

			st := a.Guard.GetStatus()
			report := statusReport{
				Backend:       o.cfg.Backend.URL,
				Authenticated: st.State == session.StateAuthenticated,
				Fingerprint:   st.Fingerprint,
				Notice:        st.Notice,
				Contracts:     a.Registry.Len(),
				RefreshedAt:   a.Registry.RefreshedAt(),
				Since:         st.Since,
			}
			if err := a.Registry.LastError(); err != nil {
				report.RefreshError = err.Error()
			}
			report.ConfigFile = o.configPath
			if report.ConfigFile == "" {
				report.ConfigFile, _ = config.ConfigPathTOML()
			}
			report.Storage, _ = o.cfg.StoragePath()

			if o.jsonOutput {
				return o.printJSON(cmd, report)
			}
			printStatus(cmd, report)
			return nil
		},
	}
}

func printStatus(cmd *cobra.Command, r statusReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, TitleStyle.Render("contractchat status"))
	fmt.Fprintln(out)

	state := ErrorStyle.Render("not logged in")
	if r.Authenticated {
		state = SuccessStyle.Render("logged in") + DimStyle.Render(" since "+humanize.Time(r.Since))
	}
	fmt.Fprintln(out, RenderField("Session", state))
	fmt.Fprintln(out, RenderField("Key", r.Fingerprint))
	if r.Notice != "" {
		fmt.Fprintln(out, RenderField("Notice", WarningStyle.Render(r.Notice)))
	}
	fmt.Fprintln(out, RenderField("Backend", r.Backend))
	if r.Authenticated {
		contracts := fmt.Sprintf("%d", r.Contracts)
		if !r.RefreshedAt.IsZero() {
			contracts += DimStyle.Render(" (refreshed " + humanize.Time(r.RefreshedAt) + ")")
		}
		if r.RefreshError != "" {
			contracts = WarningStyle.Render("unavailable: " + r.RefreshError)
		}
		fmt.Fprintln(out, RenderField("Contracts", contracts))
	}
	fmt.Fprintln(out, RenderField("Config", r.ConfigFile))
	fmt.Fprintln(out, RenderField("Storage", r.Storage))
}
