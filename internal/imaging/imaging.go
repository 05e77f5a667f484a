package imaging

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// NotFoundPayload is the sentinel served when a job references an image file
// that no longer exists on disk. A 1x1 transparent PNG.
const NotFoundPayload = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

// IsDataURI reports whether the value is an inline base64 payload rather
// than a stored file path.
func IsDataURI(v string) bool {
	return strings.Contains(v, "base64")
}

// Encode wraps raw image bytes into a data URI.
func Encode(data []byte, format string) string {
	if format == "" {
		format = "png"
	}
	return fmt.Sprintf("data:image/%s;base64,%s", format, base64.StdEncoding.EncodeToString(data))
}

// Decode extracts the raw bytes from a data URI. Bare base64 without the
// data: prefix is accepted too.
func Decode(v string) ([]byte, error) {
	payload := v
	if idx := strings.IndexByte(v, ','); idx >= 0 {
		payload = v[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("imaging: decode base64: %w", err)
	}
	return data, nil
}

// Store persists image payloads under a directory, addressing each file by
// the SHA-256 of its content so concurrent writers never collide.
type Store struct {
	dir string
}

// NewStore initializes a Store rooted at dir, creating it when missing.
// An empty dir disables offloading; Save then reports ErrDisabled.
func NewStore(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("imaging: ensure image dir: %w", err)
		}
	}
	return &Store{dir: dir}, nil
}

// ErrDisabled is returned by Save when no image directory is configured.
var ErrDisabled = errors.New("imaging: no image directory configured")

// Enabled reports whether offloading to disk is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.dir != ""
}

// Save decodes the data URI and writes it to a content-addressed file,
// returning the stored path.
func (s *Store) Save(dataURI string) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}
	data, err := Decode(dataURI)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%x.png", sha256.Sum256(data))
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err == nil {
		return path, nil // identical content already stored
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("imaging: write image: %w", err)
	}
	return path, nil
}

// Resolve returns the renderable data-URI form of an image column value.
// Inline payloads pass through; stored paths are read back, substituting the
// not-found sentinel when the backing file is gone.
func Resolve(v string) string {
	if v == "" || IsDataURI(v) {
		return v
	}
	data, err := os.ReadFile(v)
	if err != nil {
		return NotFoundPayload
	}
	return Encode(data, "png")
}
