// Package store is the sequential file store recordings are written to.
package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"
)

// File is an open recording: written sequentially, seeked back for the header patch
type File interface {
	io.ReadWriteSeeker
	io.Closer
}

// Entry describes a stored file
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// FileStore opens, creates and removes files for the recorder
type FileStore interface {
	Create(path string) (File, error)
	Open(path string) (File, error)
	Remove(path string) error
	MkdirAll(path string) error
	List(dir, ext string) ([]Entry, error)
}

// AferoStore implements FileStore on top of an afero filesystem
type AferoStore struct {
	fs afero.Fs
}

// New wraps fs as a FileStore
func New(fs afero.Fs) *AferoStore {
	return &AferoStore{fs: fs}
}

// NewOS returns a FileStore backed by the operating system filesystem
func NewOS() *AferoStore {
	return New(afero.NewOsFs())
}

// Fs exposes the underlying filesystem
func (s *AferoStore) Fs() afero.Fs {
	return s.fs
}

// Create truncates or creates path for reading and writing
func (s *AferoStore) Create(path string) (File, error) {
	f, err := s.fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, nil
}

// Open opens an existing file read-only
func (s *AferoStore) Open(path string) (File, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// Remove deletes path
func (s *AferoStore) Remove(path string) error {
	if err := s.fs.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// MkdirAll creates path and any missing parents
func (s *AferoStore) MkdirAll(path string) error {
	if err := s.fs.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// List returns the regular files in dir with extension ext, newest first.
// A missing directory yields an empty list.
func (s *AferoStore) List(dir, ext string) ([]Entry, error) {
	exists, err := afero.DirExists(s.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !exists {
		return []Entry{}, nil
	}

	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		if ext != "" && filepath.Ext(info.Name()) != ext {
			continue
		}
		entries = append(entries, Entry{
			Name:    info.Name(),
			Path:    filepath.Join(dir, info.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ModTime.After(entries[j].ModTime)
	})
	return entries, nil
}
