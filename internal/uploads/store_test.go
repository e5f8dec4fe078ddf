package uploads

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func multipartFile(t *testing.T, fileName, mediaType string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	partHeader := textproto.MIMEHeader{}
	partHeader.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	partHeader.Set("Content-Type", mediaType)
	part, err := writer.CreatePart(partHeader)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	request := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	if err := request.ParseMultipartForm(1 << 20); err != nil {
		t.Fatalf("parse multipart: %v", err)
	}
	_, header, err := request.FormFile("file")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	return header
}

func TestStoreSavesFileUnderRandomName(t *testing.T) {
	directory := t.TempDir()
	store, err := NewStore(Config{Directory: directory})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	attachment, err := store.Save(multipartFile(t, "Photo.PNG", "image/png", []byte("png-bytes")))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(attachment.URL, URLPrefix) || !strings.HasSuffix(attachment.URL, ".png") {
		t.Fatalf("unexpected url %q", attachment.URL)
	}
	if attachment.FileName != "Photo.PNG" || attachment.MediaType != "image/png" || attachment.Size != 9 {
		t.Fatalf("unexpected attachment %+v", attachment)
	}
	stored, err := os.ReadFile(filepath.Join(directory, strings.TrimPrefix(attachment.URL, URLPrefix)))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(stored) != "png-bytes" {
		t.Fatalf("unexpected stored content %q", stored)
	}
}

func TestStoreRejectsOversizedFiles(t *testing.T) {
	directory := t.TempDir()
	store, err := NewStore(Config{Directory: directory, MaxBytes: 4})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Save(multipartFile(t, "big.bin", "application/octet-stream", []byte("too large"))); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected too large error, got %v", err)
	}
	entries, _ := os.ReadDir(directory)
	if len(entries) != 0 {
		t.Fatalf("rejected upload must not leave files behind")
	}
}

func TestStoreRequiresDirectoryAndFile(t *testing.T) {
	if _, err := NewStore(Config{}); !errors.Is(err, ErrMissingDirectory) {
		t.Fatalf("expected missing directory error, got %v", err)
	}
	store, err := NewStore(Config{Directory: t.TempDir()})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Save(nil); !errors.Is(err, ErrMissingFile) {
		t.Fatalf("expected missing file error, got %v", err)
	}
}

func TestStoreRemoveDeletesOnlyOwnFiles(t *testing.T) {
	directory := t.TempDir()
	store, err := NewStore(Config{Directory: directory})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	attachment, err := store.Save(multipartFile(t, "note.txt", "text/plain", []byte("hello")))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Remove(attachment.URL); err != nil {
		t.Fatalf("remove: %v", err)
	}
	entries, _ := os.ReadDir(directory)
	if len(entries) != 0 {
		t.Fatalf("expected empty directory after remove, got %d entries", len(entries))
	}
	if err := store.Remove(attachment.URL); err != nil {
		t.Fatalf("second remove should be a no-op, got %v", err)
	}
	for _, url := range []string{"/avatars/a.png", "/uploads/../helpdesk.db", URLPrefix} {
		if err := store.Remove(url); !errors.Is(err, ErrForeignURL) {
			t.Fatalf("expected foreign url error for %q, got %v", url, err)
		}
	}
}
