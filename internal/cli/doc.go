// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the contractchat command line.
//
// Running contractchat with no subcommand opens the interactive client.
// The subcommands cover the same operations for scripts:
//
//	contractchat login                 store and check an API key
//	contractchat logout --confirm      erase the stored key
//	contractchat status                session and backend summary
//	contractchat contracts -f json     list processed contracts
//	contractchat upload a.pdf b.pdf    upload PDFs
//	contractchat ask -c 3 "question"   ask, optionally scoped to a contract
//	contractchat ask --save "question" ask and save the transcript
//	contractchat settings set-openai-key
//	contractchat config show|get|set|path
//	contractchat version
//
// Errors are returned, never printed by commands; Execute prints them and
// maps them to exit codes (see GetExitCode). Pass --json for
// machine-readable output.
package cli
