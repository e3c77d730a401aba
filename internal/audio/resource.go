package audio

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

var ErrReleased = errors.New("audio resource already released")

// Resource holds one encoded answer for the lifetime of a single evaluation.
// The bytes live in memory; a temp file is written only when a path-based
// consumer asks for one, and Release removes it.
type Resource struct {
	mu       sync.Mutex
	data     []byte
	dir      string
	path     string
	released bool
}

// NewResource copies blob into a new scoped resource. dir is where a temp
// file is created if Path is called; empty means os.TempDir().
func NewResource(blob []byte, dir string) *Resource {
	data := make([]byte, len(blob))
	copy(data, blob)
	return &Resource{data: data, dir: dir}
}

// Bytes returns the staged blob. It is nil after Release.
func (r *Resource) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data
}

// Path materializes the blob as a uniquely named temp file and returns its
// path. Repeated calls return the same file.
func (r *Resource) Path() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return "", ErrReleased
	}
	if r.path != "" {
		return r.path, nil
	}

	f, err := os.CreateTemp(r.dir, "answer-*"+extensionFor(SniffFormat(r.data)))
	if err != nil {
		return "", fmt.Errorf("create audio temp file: %w", err)
	}
	if _, err := f.Write(r.data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write audio temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close audio temp file: %w", err)
	}
	r.path = f.Name()
	return r.path, nil
}

// Release drops the in-memory blob and deletes the temp file if one was
// written. It is safe to call more than once.
func (r *Resource) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil
	}
	r.released = true
	r.data = nil
	if r.path == "" {
		return nil
	}
	path := r.path
	r.path = ""
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove audio temp file: %w", err)
	}
	return nil
}

func extensionFor(f Format) string {
	switch f {
	case FormatWAV:
		return ".wav"
	case FormatMP3:
		return ".mp3"
	default:
		return ".bin"
	}
}
