// Package media stores images attached to chat messages.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// URLPrefix is the path under which stored files are served.
const URLPrefix = "/media/"

var (
	ErrEmpty           = errors.New("image is empty")
	ErrTooLarge        = errors.New("image is too large")
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrNotFound        = errors.New("media not found")
)

// allowedTypes maps accepted MIME types to the extension used on disk.
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type Stored struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	MIME string `json:"mime"`
	Size int64  `json:"size"`
}

// DiskStore keeps uploads as files named by a random uuid. The content type
// is sniffed from the bytes, never taken from the client.
type DiskStore struct {
	dir      string
	maxBytes int64
}

func NewDiskStore(dir string, maxBytes int64) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	return &DiskStore{dir: dir, maxBytes: maxBytes}, nil
}

func (s *DiskStore) Save(ctx context.Context, r io.Reader) (Stored, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return Stored{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return Stored{}, ErrEmpty
	}
	if int64(len(data)) > s.maxBytes {
		return Stored{}, ErrTooLarge
	}

	mime := mimetype.Detect(data)
	ext, ok := allowedTypes[mime.String()]
	if !ok {
		return Stored{}, fmt.Errorf("%w: %s", ErrUnsupportedType, mime.String())
	}

	name := uuid.New().String() + ext
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return Stored{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		tmp.Close()
		return Stored{}, fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Stored{}, fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return Stored{}, fmt.Errorf("store upload: %w", err)
	}

	log.Ctx(ctx).Info().Str("name", name).Str("mime", mime.String()).Int("bytes", len(data)).Msg("Image stored")

	return Stored{
		Name: name,
		URL:  URLPrefix + name,
		MIME: mime.String(),
		Size: int64(len(data)),
	}, nil
}

// Open returns a stored file and its content type. Names that could not have
// been produced by Save are rejected.
func (s *DiskStore) Open(name string) (*os.File, string, error) {
	mime, ok := validName(name)
	if !ok {
		return nil, "", ErrNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("open media: %w", err)
	}
	return f, mime, nil
}

// Remove deletes a stored file. Removing a missing file is not an error.
func (s *DiskStore) Remove(name string) error {
	if _, ok := validName(name); !ok {
		return ErrNotFound
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove media: %w", err)
	}
	return nil
}

func validName(name string) (string, bool) {
	ext := filepath.Ext(name)
	if _, err := uuid.Parse(strings.TrimSuffix(name, ext)); err != nil {
		return "", false
	}
	for mime, allowed := range allowedTypes {
		if allowed == ext {
			return mime, true
		}
	}
	return "", false
}
