// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package upload submits batches of PDF contracts to the backend.
//
// Files in a batch are uploaded one at a time, in order. After the batch
// finishes, whether every file succeeded or not, the contract registry is
// refreshed exactly once.
//
// # Key Types
//
//   - Uploader: runs one batch at a time
//   - Policy: abort on the first failure, or attempt every file
//   - Batch / Result: per-file outcome and totals
//
// # Usage
//
//	up := upload.New(client, reg.Refresh, upload.WithPolicy(upload.ContinueOnError))
//	batch, err := up.Upload(ctx, paths)
//	if errors.Is(err, upload.ErrBatchFailed) {
//	    fmt.Println(upload.FailureMessage)
//	}
//
// PDF filtering belongs to the file picker (IsPDF, AllowedTypes); Upload
// sends whatever it is given.
package upload
