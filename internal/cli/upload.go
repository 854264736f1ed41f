// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jeranaias/contractchat/internal/upload"
)

// uploadReport is one file in the upload command's JSON output.
type uploadReport struct {
	File     string `json:"file"`
	OK       bool   `json:"ok"`
	Skipped  bool   `json:"skipped,omitempty"`
	ID       string `json:"id,omitempty"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
	Bytes    int64  `json:"bytes"`
	Duration string `json:"duration"`
}

func newUploadCommand(o *rootOptions) *cobra.Command {
	var continueOnError bool

	cmd := &cobra.Command{
		Use:   "upload <file.pdf>...",
		Short: "Upload PDF contracts for processing",
		Long: `Upload one or more PDF contracts. Files are sent one at a time and
the contract list is refreshed once at the end.

By default the batch stops at the first failure; --continue keeps going.`,
		Example: `  contractchat upload lease.pdf
  contractchat upload --continue contracts/*.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pdfs, rejected := upload.FilterPDFs(args)
			errOut := cmd.ErrOrStderr()
			for _, r := range rejected {
				fmt.Fprintln(errOut, WarningStyle.Render("Skipping non-PDF file: "+filepath.Base(r)))
			}
			if len(pdfs) == 0 {
				return NewUsageError("no PDF files given", "contractchat upload lease.pdf")
			}

			if cmd.Flags().Changed("continue") {
				o.cfg.Upload.ContinueOnError = continueOnError
			}

			var progress upload.ProgressFunc
			if !o.jsonOutput {
				progress = func(done, total int, r upload.Result) {
					printUploadResult(cmd.OutOrStdout(), done, total, r)
				}
			}
			a, err := o.openApp(progress)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := requireSession(cmd.Context(), a); err != nil {
				return err
			}

			batch, err := a.Upload(cmd.Context(), pdfs)
			if o.jsonOutput {
				if jerr := o.printJSON(cmd, uploadReports(batch)); jerr != nil {
					return jerr
				}
			} else {
				out := cmd.OutOrStdout()
				fmt.Fprintln(out)
				fmt.Fprintln(out, batch.Summary())
				if batch.RefreshErr != nil {
					fmt.Fprintln(out, WarningStyle.Render("Contract list not refreshed: "+batch.RefreshErr.Error()))
				}
			}
			if err != nil {
				return fmt.Errorf("%s %w", upload.FailureMessage, err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&continueOnError, "continue", false, "Keep uploading after a failed file")
	return cmd
}

func printUploadResult(w io.Writer, done, total int, r upload.Result) {
	prefix := DimStyle.Render(fmt.Sprintf("[%d/%d]", done, total))
	switch {
	case r.Skipped():
		fmt.Fprintf(w, "%s %s %s\n", prefix, r.Filename(), DimStyle.Render("skipped"))
	case !r.OK():
		fmt.Fprintf(w, "%s %s %s\n", prefix, r.Filename(), ErrorStyle.Render(r.Err.Error()))
	default:
		fmt.Fprintf(w, "%s %s %s\n", prefix, r.Filename(),
			SuccessStyle.Render(fmt.Sprintf("ok (%s, id %s)", humanize.Bytes(uint64(r.Size)), r.Response.ID)))
	}
}

func uploadReports(b upload.Batch) []uploadReport {
	reports := make([]uploadReport, 0, len(b.Results))
	for _, r := range b.Results {
		rep := uploadReport{
			File:     r.Filename(),
			OK:       r.OK(),
			Skipped:  r.Skipped(),
			Bytes:    r.Size,
			Duration: r.Duration.String(),
		}
		if r.Err != nil {
			rep.Error = r.Err.Error()
		}
		if r.Response != nil {
			rep.ID = r.Response.ID.String()
			rep.Message = r.Response.Message
		}
		reports = append(reports, rep)
	}
	return reports
}
