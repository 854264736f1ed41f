// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/contractchat/internal/model"
)

// UploadFieldName is the multipart field the backend reads the file from.
const UploadFieldName = "file"

// UploadResponse is what the backend reports for an upload. Only Message is
// guaranteed; the other fields are set when the file was newly processed.
type UploadResponse struct {
	Message  string                  `json:"message"`
	ID       model.ContractID        `json:"id"`
	Filename string                  `json:"filename,omitempty"`
	Metadata *model.ContractMetadata `json:"metadata,omitempty"`
}

// UploadFile opens path and uploads it.
func (c *Client) UploadFile(ctx context.Context, path string) (*UploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", OpUpload, err)
	}
	defer f.Close()
	return c.Upload(ctx, filepath.Base(path), f)
}

// Upload sends one file as multipart field "file".
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (*UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		UploadFieldName, sanitizeFilename(filename)))
	h.Set("Content-Type", "application/pdf")

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create form part: %w", OpUpload, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("%s: failed to read file: %w", OpUpload, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%s: failed to finish form: %w", OpUpload, err)
	}

	body, err := c.do(ctx, request{
		op:          OpUpload,
		method:      http.MethodPost,
		path:        PathUpload,
		body:        &buf,
		contentType: mw.FormDataContentType(),
	})
	if err != nil {
		return nil, err
	}

	var resp UploadResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			// The upload succeeded; an unexpected body is not a failure.
			c.logger.Debug("unparsed upload response", "err", err)
		}
	}
	if resp.Filename == "" {
		resp.Filename = filename
	}
	return &resp, nil
}

// sanitizeFilename strips path parts and characters that would break the
// Content-Disposition header.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r == '"' || r == '\r' || r == '\n' {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == "/" {
		return "upload.pdf"
	}
	return name
}
