// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"
)

// prompter reads answers from the command's input. Secrets are read
// without echo when the input is a terminal.
type prompter struct {
	in  io.Reader
	out io.Writer

	reader *bufio.Reader
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: in, out: out, reader: bufio.NewReader(in)}
}

// interactive reports whether the input is a terminal.
func (p *prompter) interactive() bool {
	return isTerminal(p.in)
}

// readLine reads one line. io.EOF with no text means no answer.
func (p *prompter) readLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// PromptCredential prints message and reads a value without echo. It satisfies
// session.Prompter; an empty answer is a decline.
func (p *prompter) PromptCredential(ctx context.Context, message string) (string, bool, error) {
	value, err := p.secret(message)
	if errors.Is(err, io.EOF) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, value != "", nil
}

func (p *prompter) secret(message string) (string, error) {
	fmt.Fprint(p.out, message+" ")
	if f, ok := p.in.(fder); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return p.readLine()
}

// Confirm asks a yes/no question; only "y" or "yes" confirm.
func (p *prompter) Confirm(message string) bool {
	fmt.Fprintf(p.out, "%s [y/N]: ", message)
	answer, err := p.readLine()
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

// requireConfirmation returns a confirmer for a destructive action. With
// --confirm it always agrees. Without it, JSON mode and non-terminal input
// are errors since no one can answer.
func requireConfirmation(p *prompter, confirmFlag, jsonMode bool) (func(string) bool, error) {
	if confirmFlag {
		return func(string) bool { return true }, nil
	}
	if jsonMode {
		return nil, NewUsageError("confirmation required: use --confirm in JSON mode", "contractchat logout --confirm --json")
	}
	if !p.interactive() {
		return nil, NewUsageError("confirmation required but stdin is not a terminal; use --confirm", "contractchat logout --confirm")
	}
	return p.Confirm, nil
}
