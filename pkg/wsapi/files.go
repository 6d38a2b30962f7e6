// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package wsapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"

	"github.com/kraklabs/tabsync/internal/contract"
)

// uploadPartBytes is the part size for multi-part uploads. The API
// accepts parts between 5 and 20 MiB, except the last.
const uploadPartBytes = 10 << 20

// FileUpload identifies a file stored in the workspace, ready to be
// referenced from a files property, icon or cover.
type FileUpload struct {
	ID   string
	Name string
}

// Ref renders the upload as the reference string recorded in rows.
func (u FileUpload) Ref() string {
	return fmt.Sprintf("attachment:%s:%s", u.ID, u.Name)
}

var attachmentRefRe = regexp.MustCompile(`^attachment:([a-f0-9\-]+):(.+)$`)

// ParseRef splits an attachment reference produced by FileUpload.Ref.
func ParseRef(s string) (id, name string, ok bool) {
	m := attachmentRefRe.FindStringSubmatch(s)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// FileMeta fingerprints a local file for upload deduplication.
type FileMeta struct {
	Path   string
	Size   int64
	SHA256 string
}

// HashFile computes the fingerprint of a local file.
func HashFile(path string) (FileMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileMeta{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return FileMeta{}, fmt.Errorf("read %s: %w", path, err)
	}
	return FileMeta{
		Path:   path,
		Size:   size,
		SHA256: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

type fileUploadWire struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// UploadFile pushes a local file to the workspace and returns its
// upload handle. Files up to the single-part threshold go up in one
// request; larger ones are split into parts and completed explicitly.
// The whole flow is retried as a unit on transient failures.
func (c *Client) UploadFile(ctx context.Context, path string) (*FileUpload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := contract.ValidateUploadSize(info.Size()); err != nil {
		return nil, fmt.Errorf("upload %s: %w", path, err)
	}

	filename := filepath.Base(path)
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var result *FileUpload
	err = c.withRetry(ctx, "file_uploads", func(ctx context.Context) error {
		up, err := c.uploadOnce(ctx, path, filename, contentType, info.Size())
		if err != nil {
			return err
		}
		result = up
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", path, err)
	}
	return result, nil
}

func (c *Client) uploadOnce(ctx context.Context, path, filename, contentType string, size int64) (*FileUpload, error) {
	singlePart := size <= contract.SinglePartUploadBytes

	createReq := map[string]any{
		"mode":         "single_part",
		"filename":     filename,
		"content_type": contentType,
	}
	if !singlePart {
		createReq["mode"] = "multi_part"
		createReq["number_of_parts"] = int((size + uploadPartBytes - 1) / uploadPartBytes)
	}

	var created fileUploadWire
	if err := c.call(ctx, "file_uploads.create", http.MethodPost, "/file_uploads", createReq, &created, false); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var last fileUploadWire
	if singlePart {
		last, err = c.sendPart(ctx, created.ID, filename, contentType, f, 0)
		if err != nil {
			return nil, err
		}
	} else {
		for part := 1; ; part++ {
			chunk := io.LimitReader(f, uploadPartBytes)
			sent, err := c.sendPart(ctx, created.ID, filename, contentType, chunk, part)
			if err != nil {
				return nil, err
			}
			last = sent
			if int64(part)*uploadPartBytes >= size {
				break
			}
		}
		if err := c.call(ctx, "file_uploads.complete", http.MethodPost, "/file_uploads/"+created.ID+"/complete", struct{}{}, &last, false); err != nil {
			return nil, err
		}
	}

	if last.Status != "uploaded" {
		return nil, fmt.Errorf("file upload finished with status %q", last.Status)
	}
	return &FileUpload{ID: created.ID, Name: filename}, nil
}

// sendPart posts one multipart/form-data chunk. partNumber zero means
// a single-part upload.
func (c *Client) sendPart(ctx context.Context, uploadID, filename, contentType string, r io.Reader, partNumber int) (fileUploadWire, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fileUploadWire{}, fmt.Errorf("build form: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return fileUploadWire{}, fmt.Errorf("read file: %w", err)
	}
	if partNumber > 0 {
		if err := mw.WriteField("part_number", strconv.Itoa(partNumber)); err != nil {
			return fileUploadWire{}, fmt.Errorf("build form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return fileUploadWire{}, fmt.Errorf("build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/file_uploads/"+uploadID+"/send", &buf)
	if err != nil {
		return fileUploadWire{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-API-Version", c.apiVersion)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return fileUploadWire{}, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fileUploadWire{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fileUploadWire{}, apiError(resp, respBody)
	}

	var wire fileUploadWire
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return fileUploadWire{}, fmt.Errorf("parse response: %w", err)
	}
	return wire, nil
}

// Uploader deduplicates uploads by content: a file that hashes the
// same as one already pushed in this run reuses the existing handle.
// Safe for concurrent use by upload workers.
type Uploader struct {
	client *Client

	mu    sync.Mutex
	bySum map[string]*FileUpload
}

// NewUploader wraps a client with a per-run dedup cache.
func NewUploader(client *Client) *Uploader {
	return &Uploader{
		client: client,
		bySum:  make(map[string]*FileUpload),
	}
}

// Upload pushes path to the workspace, reusing a previous upload with
// identical content.
func (u *Uploader) Upload(ctx context.Context, path string) (*FileUpload, error) {
	meta, err := HashFile(path)
	if err != nil {
		return nil, err
	}

	u.mu.Lock()
	cached, ok := u.bySum[meta.SHA256]
	u.mu.Unlock()
	if ok {
		recordUploadDedup()
		return cached, nil
	}

	up, err := u.client.UploadFile(ctx, path)
	if err != nil {
		return nil, err
	}

	u.mu.Lock()
	u.bySum[meta.SHA256] = up
	u.mu.Unlock()
	return up, nil
}
