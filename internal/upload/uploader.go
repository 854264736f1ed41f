// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/jeranaias/contractchat/internal/api"
	"github.com/jeranaias/contractchat/internal/logging"
)

// FailureMessage is shown to the user when any file in a batch fails.
const FailureMessage = "Failed to upload file(s)."

var (
	// ErrBatchFailed is returned when at least one file failed.
	ErrBatchFailed = errors.New("upload batch failed")

	// ErrBusy is returned when a batch is already running.
	ErrBusy = errors.New("an upload is already in progress")

	// ErrNoFiles is returned for an empty batch.
	ErrNoFiles = errors.New("no files selected")

	// errSkipped marks files not attempted after an abort.
	errSkipped = errors.New("skipped after earlier failure")
)

// AllowedTypes lists the extensions the file picker offers.
var AllowedTypes = []string{".pdf"}

// IsPDF reports whether path has a .pdf extension, in any case.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// FilterPDFs splits paths into PDFs and everything else.
func FilterPDFs(paths []string) (pdfs, rejected []string) {
	for _, p := range paths {
		if IsPDF(p) {
			pdfs = append(pdfs, p)
		} else {
			rejected = append(rejected, p)
		}
	}
	return pdfs, rejected
}

// =============================================================================
// POLICY
// =============================================================================

// Policy decides what happens after a file fails.
type Policy int

const (
	// AbortOnError stops at the first failure.
	AbortOnError Policy = iota

	// ContinueOnError attempts every file regardless of failures.
	ContinueOnError
)

// String returns the policy name.
func (p Policy) String() string {
	if p == ContinueOnError {
		return "continue"
	}
	return "abort"
}

// PolicyFromConfig maps the upload.continue_on_error setting.
func PolicyFromConfig(continueOnError bool) Policy {
	if continueOnError {
		return ContinueOnError
	}
	return AbortOnError
}

// =============================================================================
// RESULTS
// =============================================================================

// Result is the outcome for one file.
type Result struct {
	Path     string
	Size     int64
	Response *api.UploadResponse
	Err      error
	Duration time.Duration
}

// Filename returns the base name of the file.
func (r Result) Filename() string {
	return filepath.Base(r.Path)
}

// OK reports whether the file was uploaded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Skipped reports whether the file was never attempted.
func (r Result) Skipped() bool {
	return errors.Is(r.Err, errSkipped)
}

// Batch summarizes one Upload call.
type Batch struct {
	Results   []Result
	Attempted int
	Succeeded int
	Failed    int
	Skipped   int
	Bytes     int64
	Duration  time.Duration

	// Refreshed reports whether the registry refresh ran; RefreshErr holds
	// its error, which does not fail the batch.
	Refreshed  bool
	RefreshErr error
}

// Summary returns a one-line description such as
// "2 of 3 files uploaded (1.2 MB) in 850ms".
func (b Batch) Summary() string {
	total := len(b.Results)
	noun := "files"
	if total == 1 {
		noun = "file"
	}
	return fmt.Sprintf("%d of %d %s uploaded (%s) in %s",
		b.Succeeded, total, noun, humanize.Bytes(uint64(b.Bytes)), b.Duration.Round(time.Millisecond))
}

// =============================================================================
// UPLOADER
// =============================================================================

// Sender uploads one file. *api.Client implements it.
type Sender interface {
	UploadFile(ctx context.Context, path string) (*api.UploadResponse, error)
}

// RefreshFunc refreshes the contract registry.
type RefreshFunc func(ctx context.Context) error

// ProgressFunc is called after each file is attempted.
type ProgressFunc func(done, total int, r Result)

// Uploader runs upload batches one at a time.
type Uploader struct {
	sender   Sender
	refresh  RefreshFunc
	policy   Policy
	logger   *log.Logger
	progress ProgressFunc
	busy     atomic.Bool
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithPolicy sets the failure policy.
func WithPolicy(p Policy) Option {
	return func(u *Uploader) { u.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(u *Uploader) {
		if l != nil {
			u.logger = l
		}
	}
}

// WithProgress sets a per-file progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(u *Uploader) { u.progress = fn }
}

// New creates an Uploader. refresh may be nil.
func New(sender Sender, refresh RefreshFunc, opts ...Option) *Uploader {
	u := &Uploader{
		sender:  sender,
		refresh: refresh,
		policy:  AbortOnError,
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Policy returns the failure policy.
func (u *Uploader) Policy() Policy {
	return u.policy
}

// Busy reports whether a batch is running.
func (u *Uploader) Busy() bool {
	return u.busy.Load()
}

// Upload sends paths sequentially and then refreshes the registry once.
// When any file fails the returned error matches ErrBatchFailed; the Batch
// is complete either way.
func (u *Uploader) Upload(ctx context.Context, paths []string) (Batch, error) {
	if len(paths) == 0 {
		return Batch{}, ErrNoFiles
	}
	if !u.busy.CompareAndSwap(false, true) {
		return Batch{}, ErrBusy
	}
	defer u.busy.Store(false)

	start := time.Now()
	batch := Batch{Results: make([]Result, 0, len(paths))}
	var firstErr error

	for i, path := range paths {
		if firstErr != nil && u.policy == AbortOnError {
			batch.Results = append(batch.Results, Result{Path: path, Err: errSkipped})
			batch.Skipped++
			continue
		}

		res := u.uploadOne(ctx, path)
		batch.Results = append(batch.Results, res)
		batch.Attempted++
		if res.OK() {
			batch.Succeeded++
			batch.Bytes += res.Size
		} else {
			batch.Failed++
			if firstErr == nil {
				firstErr = res.Err
			}
		}

		if u.progress != nil {
			u.progress(i+1, len(paths), res)
		}
	}
	batch.Duration = time.Since(start)

	// The refresh runs even when the batch context was cancelled mid-way.
	if u.refresh != nil {
		batch.Refreshed = true
		if err := u.refresh(context.WithoutCancel(ctx)); err != nil {
			batch.RefreshErr = err
			u.logger.Warn("registry refresh after upload failed", "err", err)
		}
	}

	u.logger.Info("upload batch finished",
		"files", len(paths),
		"succeeded", batch.Succeeded,
		"failed", batch.Failed,
		"skipped", batch.Skipped,
		"policy", u.policy.String(),
	)

	if firstErr != nil {
		return batch, fmt.Errorf("%w: %d of %d failed: %w", ErrBatchFailed, batch.Failed, len(paths), firstErr)
	}
	return batch, nil
}

func (u *Uploader) uploadOne(ctx context.Context, path string) (res Result) {
	res.Path = path
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	info, err := os.Stat(path)
	if err != nil {
		res.Err = fmt.Errorf("cannot read %s: %w", filepath.Base(path), err)
		return res
	}
	if info.IsDir() {
		res.Err = fmt.Errorf("%s is a directory", filepath.Base(path))
		return res
	}
	res.Size = info.Size()

	resp, err := u.sender.UploadFile(ctx, path)
	if err != nil {
		u.logger.Warn("upload failed", "file", filepath.Base(path), "err", err)
		res.Err = err
		return res
	}
	res.Response = resp
	u.logger.Debug("uploaded", "file", filepath.Base(path), "size", humanize.Bytes(uint64(res.Size)))
	return res
}
