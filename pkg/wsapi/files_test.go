// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package wsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUploadServer accepts the create/send upload flow and counts
// created uploads.
func fakeUploadServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var creates atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /file_uploads", func(w http.ResponseWriter, r *http.Request) {
		n := creates.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     uploadID(n),
			"status": "pending",
		})
	})
	mux.HandleFunc("POST /file_uploads/{id}/send", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     r.PathValue("id"),
			"status": "uploaded",
		})
	})
	return httptest.NewServer(mux), &creates
}

func uploadID(n int32) string {
	return "0000aaaa-0000-0000-0000-00000000000" + string(rune('0'+n))
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestUploadFile_SinglePart(t *testing.T) {
	srv, creates := fakeUploadServer(t)
	defer srv.Close()

	c := testClient(t, srv, 0)
	path := writeTempFile(t, "photo.png", "not really a png")

	up, err := c.UploadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int32(1), creates.Load())
	assert.Equal(t, "photo.png", up.Name)
	assert.NotEmpty(t, up.ID)

	id, name, ok := ParseRef(up.Ref())
	require.True(t, ok)
	assert.Equal(t, up.ID, id)
	assert.Equal(t, "photo.png", name)
}

func TestUploadFile_RejectsEmptyFile(t *testing.T) {
	srv, creates := fakeUploadServer(t)
	defer srv.Close()

	c := testClient(t, srv, 0)
	path := writeTempFile(t, "empty.txt", "")

	_, err := c.UploadFile(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, int32(0), creates.Load(), "size check happens before any API call")
}

func TestUploader_DeduplicatesByContent(t *testing.T) {
	srv, creates := fakeUploadServer(t)
	defer srv.Close()

	c := testClient(t, srv, 0)
	u := NewUploader(c)

	first := writeTempFile(t, "a.png", "same bytes")
	copyOf := writeTempFile(t, "b.png", "same bytes")
	other := writeTempFile(t, "c.png", "different bytes")

	up1, err := u.Upload(context.Background(), first)
	require.NoError(t, err)
	up2, err := u.Upload(context.Background(), copyOf)
	require.NoError(t, err)
	up3, err := u.Upload(context.Background(), other)
	require.NoError(t, err)

	assert.Equal(t, up1.ID, up2.ID, "identical content reuses the upload")
	assert.NotEqual(t, up1.ID, up3.ID)
	assert.Equal(t, int32(2), creates.Load())
}

func TestHashFile(t *testing.T) {
	path := writeTempFile(t, "x.bin", "payload")
	meta, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len("payload")), meta.Size)
	assert.Len(t, meta.SHA256, 64)

	again, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, meta.SHA256, again.SHA256)
}

func TestParseRef_RejectsForeignStrings(t *testing.T) {
	for _, s := range []string{"", "https://example.com/a.png", "attachment:", "attachment:ZZZ:name"} {
		if _, _, ok := ParseRef(s); ok {
			t.Errorf("ParseRef(%q) should not parse", s)
		}
	}
}
