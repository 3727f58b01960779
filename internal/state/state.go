// Package state persists the pipeline's JSON documents and markers on a billy filesystem.
package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// Document names inside the content directory.
const (
	ManifestFile     = ".asset-manifest.json"
	LayoutCacheFile  = ".layout-cache.json"
	ProjectCacheFile = ".project-cache.json"
	LastFetchFile    = ".last-fetch"
	ContentFile      = "content.json"
	DerivedFile      = "zoom-content.json"
)

// Store reads and writes documents relative to the root of fs
type Store struct {
	fs billy.Filesystem
}

// New wraps an existing filesystem
func New(fs billy.Filesystem) *Store {
	return &Store{fs: fs}
}

// NewOS roots a Store at dir on the local disk, creating it if needed
func NewOS(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create content dir: %w", err)
	}
	return New(osfs.New(dir)), nil
}

// Filesystem exposes the underlying filesystem
func (s *Store) Filesystem() billy.Filesystem {
	return s.fs
}

// ReadJSON decodes name into v. A missing file is not an error: found is false and v untouched.
func (s *Store) ReadJSON(name string, v any) (found bool, err error) {
	data, found, err := s.read(name)
	if err != nil || !found {
		return found, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

// WriteJSON encodes v with two-space indentation and replaces name atomically.
// Map keys are sorted by encoding/json, so equal values always produce equal bytes.
func (s *Store) WriteJSON(name string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return s.write(name, buf.Bytes())
}

// ReadMarker returns the trimmed contents of a small text marker file
func (s *Store) ReadMarker(name string) (string, bool, error) {
	data, found, err := s.read(name)
	if err != nil || !found {
		return "", found, err
	}
	return strings.TrimSpace(string(data)), true, nil
}

// WriteMarker replaces a marker file
func (s *Store) WriteMarker(name, value string) error {
	return s.write(name, []byte(value))
}

// ReadRaw returns the raw bytes of name
func (s *Store) ReadRaw(name string) ([]byte, bool, error) {
	return s.read(name)
}

func (s *Store) read(name string) ([]byte, bool, error) {
	f, err := s.fs.Open(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", name, err)
	}
	return data, true, nil
}

func (s *Store) write(name string, data []byte) error {
	dir := path.Dir(name)
	if dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", name, err)
		}
	}

	tmp, err := s.fs.TempFile(dir, "."+path.Base(name)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := s.fs.Rename(tmp.Name(), name); err != nil {
		s.fs.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
