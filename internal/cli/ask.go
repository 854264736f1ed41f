// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/contractchat/internal/api"
	"github.com/jeranaias/contractchat/internal/chat"
	"github.com/jeranaias/contractchat/internal/model"
)

// askReport is the ask command's JSON output.
type askReport struct {
	Question string            `json:"question"`
	Contract *model.ContractID `json:"contract_id,omitempty"`
	Answer   string            `json:"answer"`
	Sources  []string          `json:"sources"`
	SavedTo  string            `json:"saved_to,omitempty"`
}

// maxStdinQuestion bounds a question read from stdin.
const maxStdinQuestion = 64 * 1024

func newAskCommand(o *rootOptions) *cobra.Command {
	var (
		contract string
		raw      bool
		save     bool
	)

	cmd := &cobra.Command{
		Use:   `ask "question"`,
		Short: "Ask one question about your contracts",
		Long: `Ask a single question and print the answer with its sources.

Without --contract the question searches every processed contract. With
--contract it is scoped to one contract, given by ID or filename. Use "-"
or pipe text on stdin to read the question from stdin.`,
		Example: `  contractchat ask "Which contracts renew automatically?"
  contractchat ask -c 3 "What is the term length?"
  contractchat ask -c lease.pdf --raw "Who are the parties?"
  contractchat ask --save "Summarize the indemnity terms"
  cat question.txt | contractchat ask`,
		RunE: func(cmd *cobra.Command, args []string) error {
			question, err := readQuestion(cmd, args)
			if err != nil {
				return err
			}

			a, err := o.openApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := requireSession(cmd.Context(), a); err != nil {
				return err
			}

			if contract != "" {
				c, ok := resolveContract(a.Registry, contract)
				if !ok {
					return NewUsageError(
						fmt.Sprintf("no processed contract matches %q", contract),
						"contractchat contracts",
					)
				}
				a.Selection.Select(c.ID)
			}
			scope := a.Scope()

			reply, err := a.Ask(cmd.Context(), question)
			if err != nil {
				return err
			}
			if reply.Failed {
				if !a.Guard.Authenticated() {
					return fmt.Errorf("%s: %w", a.Guard.Notice(), api.ErrUnauthorized)
				}
				if cmd.Context().Err() != nil {
					return cmd.Context().Err()
				}
				return errors.New(chat.FailureMessage)
			}

			var savedTo string
			if save {
				if savedTo, err = a.ExportTranscript(); err != nil {
					return WrapError(err, "ask", "save transcript")
				}
			}

			if o.jsonOutput {
				sources := reply.Sources
				if sources == nil {
					sources = []string{}
				}
				return o.printJSON(cmd, askReport{
					Question: question,
					Contract: scope,
					Answer:   reply.Content,
					Sources:  sources,
					SavedTo:  savedTo,
				})
			}

			out := cmd.OutOrStdout()
			answer := reply.Content
			if !raw && o.cfg.UI.RenderMarkdown && isTerminal(out) {
				answer = renderMarkdown(answer, terminalWidth(out))
			} else if !strings.HasSuffix(answer, "\n") {
				answer += "\n"
			}
			fmt.Fprint(out, answer)
			writeSources(out, reply.Sources)
			if savedTo != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), DimStyle.Render("Transcript saved to "+savedTo))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&contract, "contract", "c", "", "Scope the question to a contract ID or filename")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the answer without markdown rendering")
	cmd.Flags().BoolVar(&save, "save", false, "Save the question and answer to the export directory")
	return cmd
}

func readQuestion(cmd *cobra.Command, args []string) (string, error) {
	var question string
	switch {
	case len(args) == 1 && args[0] == "-", len(args) == 0 && !isTerminal(cmd.InOrStdin()):
		b, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxStdinQuestion))
		if err != nil {
			return "", fmt.Errorf("failed to read question: %w", err)
		}
		question = string(b)
	default:
		question = strings.Join(args, " ")
	}

	question = strings.TrimSpace(question)
	if question == "" {
		return "", NewUsageError("no question given", `contractchat ask "What is the term length?"`)
	}
	return question, nil
}

func writeSources(w io.Writer, sources []string) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, DimStyle.Render("Sources:"))
	for _, s := range sources {
		fmt.Fprintln(w, DimStyle.Render("  - "+s))
	}
}
