package uploads

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// URLPrefix is the public path under which stored files are served.
const URLPrefix = "/uploads/"

const defaultMaxBytes = 50 * 1024 * 1024

var (
	ErrMissingDirectory = errors.New("uploads: directory required")
	ErrMissingFile      = errors.New("uploads: file required")
	ErrFileTooLarge     = errors.New("uploads: file too large")
	ErrForeignURL       = errors.New("uploads: url not served by this store")
)

// Attachment describes a stored file as referenced by messages and profiles.
type Attachment struct {
	URL       string `json:"url"`
	FileName  string `json:"filename"`
	MediaType string `json:"mimetype"`
	Size      int64  `json:"size"`
}

// Config configures the disk store.
type Config struct {
	Directory string
	MaxBytes  int64
}

// Store persists uploaded files on local disk under random names.
type Store struct {
	directory string
	maxBytes  int64
}

// NewStore ensures the directory exists and returns a Store writing into it.
func NewStore(cfg Config) (*Store, error) {
	directory := strings.TrimSpace(cfg.Directory)
	if directory == "" {
		return nil, ErrMissingDirectory
	}
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("uploads: create directory: %w", err)
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Store{directory: directory, maxBytes: maxBytes}, nil
}

// Directory returns the filesystem directory served at URLPrefix.
func (s *Store) Directory() string {
	return s.directory
}

// Save copies the multipart file to disk and describes the stored result.
func (s *Store) Save(header *multipart.FileHeader) (Attachment, error) {
	if header == nil {
		return Attachment{}, ErrMissingFile
	}
	if header.Size > s.maxBytes {
		return Attachment{}, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, header.Size)
	}
	source, err := header.Open()
	if err != nil {
		return Attachment{}, fmt.Errorf("uploads: open: %w", err)
	}
	defer source.Close()

	name := uuid.NewString() + strings.ToLower(filepath.Ext(header.Filename))
	target, err := os.OpenFile(filepath.Join(s.directory, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Attachment{}, fmt.Errorf("uploads: create: %w", err)
	}
	written, copyErr := io.Copy(target, io.LimitReader(source, s.maxBytes+1))
	closeErr := target.Close()
	if copyErr == nil && written > s.maxBytes {
		copyErr = fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, s.maxBytes)
	}
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(filepath.Join(s.directory, name))
		if copyErr != nil {
			return Attachment{}, fmt.Errorf("uploads: write: %w", copyErr)
		}
		return Attachment{}, fmt.Errorf("uploads: close: %w", closeErr)
	}

	mediaType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return Attachment{
		URL:       path.Join(URLPrefix, name),
		FileName:  header.Filename,
		MediaType: mediaType,
		Size:      written,
	}, nil
}

// Remove deletes the file behind a URL returned by Save. A missing file is not an error.
func (s *Store) Remove(url string) error {
	name := strings.TrimPrefix(url, URLPrefix)
	if name == url || name == "" || name != filepath.Base(name) {
		return fmt.Errorf("%w: %q", ErrForeignURL, url)
	}
	if err := os.Remove(filepath.Join(s.directory, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("uploads: remove: %w", err)
	}
	return nil
}
