// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// openAIKeyPrompt is shown when reading the key interactively.
const openAIKeyPrompt = "Enter your OpenAI API Key to enable full functionality:"

func newSettingsCommand(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Change backend settings (admin key required)",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newSetOpenAIKeyCommand(o))
	return cmd
}

func newSetOpenAIKeyCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-openai-key",
		Short: "Send a new OpenAI API key to the backend",
		Long: `Send a new OpenAI API key to the backend. The logged-in key must have
admin rights; otherwise the backend's refusal is printed and the session
stays logged in.

The key is read without echo from a terminal, or as one line from stdin.`,
		Example: `  contractchat settings set-openai-key
  echo "$OPENAI_API_KEY" | contractchat settings set-openai-key`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.openApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := requireSession(cmd.Context(), a); err != nil {
				return err
			}

			p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
			key, ok, err := p.PromptCredential(cmd.Context(), openAIKeyPrompt)
			if err != nil {
				return err
			}
			if !ok {
				return NewUsageError("no OpenAI API key entered", "contractchat settings set-openai-key")
			}

			res, err := a.Settings.Update(cmd.Context(), key)
			if err != nil {
				return err
			}

			if o.jsonOutput {
				return o.printJSON(cmd, map[string]string{"message": res.Notice})
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render(res.Notice))
			return nil
		},
	}
}
