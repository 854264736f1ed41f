// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/contractchat/internal/model"
	"github.com/jeranaias/contractchat/internal/registry"
	"github.com/jeranaias/contractchat/internal/util"
)

// Output formats for contracts.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

var contractFormats = []string{FormatTable, FormatJSON, FormatYAML}

func newContractsCommand(o *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:     "contracts",
		Aliases: []string{"ls", "list"},
		Short:   "List processed contracts",
		Example: `  contractchat contracts
  contractchat contracts --format yaml
  contractchat contracts --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.jsonOutput {
				format = FormatJSON
			}
			if !contains(contractFormats, format) {
				return NewUsageError(
					fmt.Sprintf("unsupported format %q (want one of %s)", format, strings.Join(contractFormats, ", ")),
					"contractchat contracts --format json",
				)
			}

			a, err := o.openApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := requireSession(cmd.Context(), a); err != nil {
				return err
			}
			// The session start already refreshed; surface its failure.
			if err := a.Registry.LastError(); err != nil {
				return WrapError(err, "contracts", "list")
			}

			contracts := a.Registry.Contracts()
			out := cmd.OutOrStdout()
			switch format {
			case FormatJSON:
				return o.printJSON(cmd, contracts)
			case FormatYAML:
				return writeYAML(out, contracts)
			default:
				writeContractTable(out, contracts, terminalWidth(out))
				return nil
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", FormatTable, "Output format: table, json, yaml")
	return cmd
}

func writeYAML(w io.Writer, contracts []model.Contract) error {
	if contracts == nil {
		contracts = []model.Contract{}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(contracts); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

func writeContractTable(w io.Writer, contracts []model.Contract, width int) {
	if len(contracts) == 0 {
		fmt.Fprintln(w, DimStyle.Render(emptyRegistryText))
		return
	}

	nameWidth := max(width/4, 12)
	rows := make([][]string, 0, len(contracts))
	for _, c := range contracts {
		rows = append(rows, []string{
			c.ID.String(),
			util.Truncate(c.DisplayName(), nameWidth),
			util.Truncate(orDash(c.Title()), nameWidth),
			orDash(c.Vendor()),
			periodText(c),
		})
	}

	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(DimStyle).
		Headers("ID", "FILE", "TITLE", "VENDOR", "PERIOD").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "%d %s\n", len(contracts), util.Plural(len(contracts), "contract"))
}

// emptyRegistryText matches the sidebar's empty state.
const emptyRegistryText = "No contracts uploaded yet."

func periodText(c model.Contract) string {
	start, end := c.StartDate(), c.EndDate()
	switch {
	case start == "" && end == "":
		return "-"
	case end == "":
		return start + " -"
	case start == "":
		return "- " + end
	}
	return start + " to " + end
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// resolveContract finds a contract by ID, or by filename when no ID matches.
func resolveContract(reg *registry.Registry, ref string) (model.Contract, bool) {
	contracts := reg.Contracts()
	for _, c := range contracts {
		if c.ID.String() == ref {
			return c, true
		}
	}
	for _, c := range contracts {
		if strings.EqualFold(c.Filename, ref) {
			return c, true
		}
	}
	return model.Contract{}, false
}
