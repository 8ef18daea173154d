// Package fsutil abstracts file access behind a small interface so that
// plot rendering and data export can target a real directory in
// production and an in-memory tree in tests.
package fsutil

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileSystem is the subset of filesystem operations the renderers and
// exporters need. OSFileSystem backs it with the os package;
// MemoryFileSystem keeps everything in a map for tests.
type FileSystem interface {
	// Open opens the named file for reading.
	Open(name string) (fs.File, error)

	// Create creates or truncates the named file for writing. Parent
	// directories are created as needed.
	Create(name string) (io.WriteCloser, error)

	// ReadFile returns the contents of the named file.
	ReadFile(name string) ([]byte, error)

	// WriteFile writes data to the named file, creating it if necessary.
	WriteFile(name string, data []byte, perm os.FileMode) error

	// Stat returns a FileInfo for the named file or directory.
	Stat(name string) (fs.FileInfo, error)

	// MkdirAll creates a directory along with any missing parents.
	MkdirAll(path string, perm os.FileMode) error

	// Remove removes the named file or empty directory.
	Remove(name string) error

	// RemoveAll removes path and everything under it.
	RemoveAll(path string) error

	// Exists reports whether a file or directory exists at name.
	Exists(name string) bool

	// Glob returns the names of files matching pattern, in sorted
	// order. The pattern syntax is that of filepath.Match.
	Glob(pattern string) ([]string, error)
}

// OSFileSystem passes every operation straight through to the os package.
type OSFileSystem struct{}

func (OSFileSystem) Open(name string) (fs.File, error) {
	return os.Open(name)
}

// Create makes the parent directory before creating the file, so
// callers can write into a dated plot directory without a separate
// MkdirAll.
func (OSFileSystem) Create(name string) (io.WriteCloser, error) {
	if dir := filepath.Dir(name); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.Create(name)
}

func (OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (OSFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (OSFileSystem) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

func (OSFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (OSFileSystem) Remove(name string) error {
	return os.Remove(name)
}

func (OSFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (OSFileSystem) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func (OSFileSystem) Glob(pattern string) ([]string, error) {
	return filepath.Glob(pattern)
}

// memoryFile is one stored file in a MemoryFileSystem.
type memoryFile struct {
	data  []byte
	mtime time.Time
}

// MemoryFileSystem implements FileSystem entirely in memory. The zero
// value is not usable; construct with NewMemoryFileSystem. All methods
// are safe for concurrent use.
type MemoryFileSystem struct {
	mu    sync.RWMutex
	files map[string]*memoryFile
	dirs  map[string]bool
}

// NewMemoryFileSystem returns an empty in-memory filesystem.
func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{
		files: make(map[string]*memoryFile),
		dirs:  make(map[string]bool),
	}
}

// normalize cleans a path so that "plots//a.png" and "plots/a.png"
// address the same entry.
func normalize(name string) string {
	return filepath.Clean(name)
}

// markDirs records dir and all of its parents as existing directories.
// Must be called with mfs.mu held.
func (mfs *MemoryFileSystem) markDirs(dir string) {
	for dir != "." && dir != string(filepath.Separator) {
		mfs.dirs[dir] = true
		dir = filepath.Dir(dir)
	}
}

func (mfs *MemoryFileSystem) Open(name string) (fs.File, error) {
	name = normalize(name)

	mfs.mu.RLock()
	f, ok := mfs.files[name]
	mfs.mu.RUnlock()
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	return &memReader{
		Reader: bytes.NewReader(f.data),
		info:   memInfo{name: filepath.Base(name), size: int64(len(f.data)), mtime: f.mtime},
	}, nil
}

// Create returns a writer that buffers until Close, at which point the
// file becomes visible. A rendering that fails partway through never
// leaves a truncated entry behind.
func (mfs *MemoryFileSystem) Create(name string) (io.WriteCloser, error) {
	return &memWriter{mfs: mfs, name: normalize(name)}, nil
}

func (mfs *MemoryFileSystem) ReadFile(name string) ([]byte, error) {
	name = normalize(name)

	mfs.mu.RLock()
	defer mfs.mu.RUnlock()

	f, ok := mfs.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out, nil
}

func (mfs *MemoryFileSystem) WriteFile(name string, data []byte, _ os.FileMode) error {
	name = normalize(name)

	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	mfs.files[name] = &memoryFile{data: stored, mtime: time.Now()}
	mfs.markDirs(filepath.Dir(name))
	return nil
}

func (mfs *MemoryFileSystem) Stat(name string) (fs.FileInfo, error) {
	name = normalize(name)

	mfs.mu.RLock()
	defer mfs.mu.RUnlock()

	if f, ok := mfs.files[name]; ok {
		return memInfo{name: filepath.Base(name), size: int64(len(f.data)), mtime: f.mtime}, nil
	}
	if mfs.dirs[name] {
		return memInfo{name: filepath.Base(name), dir: true, mtime: time.Now()}, nil
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

func (mfs *MemoryFileSystem) MkdirAll(path string, _ os.FileMode) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()
	mfs.markDirs(normalize(path))
	return nil
}

func (mfs *MemoryFileSystem) Remove(name string) error {
	name = normalize(name)

	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	if _, ok := mfs.files[name]; ok {
		delete(mfs.files, name)
		return nil
	}
	if mfs.dirs[name] {
		for p := range mfs.files {
			if inside(name, p) {
				return &fs.PathError{Op: "remove", Path: name, Err: errors.New("directory not empty")}
			}
		}
		for p := range mfs.dirs {
			if inside(name, p) {
				return &fs.PathError{Op: "remove", Path: name, Err: errors.New("directory not empty")}
			}
		}
		delete(mfs.dirs, name)
		return nil
	}
	return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
}

func (mfs *MemoryFileSystem) RemoveAll(path string) error {
	path = normalize(path)

	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	delete(mfs.files, path)
	delete(mfs.dirs, path)
	for p := range mfs.files {
		if inside(path, p) {
			delete(mfs.files, p)
		}
	}
	for p := range mfs.dirs {
		if inside(path, p) {
			delete(mfs.dirs, p)
		}
	}
	return nil
}

func (mfs *MemoryFileSystem) Exists(name string) bool {
	name = normalize(name)

	mfs.mu.RLock()
	defer mfs.mu.RUnlock()

	if _, ok := mfs.files[name]; ok {
		return true
	}
	return mfs.dirs[name]
}

func (mfs *MemoryFileSystem) Glob(pattern string) ([]string, error) {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()

	var matches []string
	for p := range mfs.files {
		ok, err := filepath.Match(pattern, p)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, p)
		}
	}
	for p := range mfs.dirs {
		ok, err := filepath.Match(pattern, p)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, p)
		}
	}
	sort.Strings(matches)
	return matches, nil
}

// Files returns the paths of all stored files in sorted order. Handy
// for asserting exactly what a renderer wrote.
func (mfs *MemoryFileSystem) Files() []string {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()

	paths := make([]string, 0, len(mfs.files))
	for p := range mfs.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// inside reports whether p lies strictly below directory dir.
func inside(dir, p string) bool {
	if len(p) <= len(dir) {
		return false
	}
	return p[:len(dir)] == dir && p[len(dir)] == filepath.Separator
}

// memReader serves a stored file's bytes through the fs.File interface.
type memReader struct {
	*bytes.Reader
	info memInfo
}

func (r *memReader) Stat() (fs.FileInfo, error) { return r.info, nil }
func (r *memReader) Close() error               { return nil }

// memWriter buffers writes and commits them to the filesystem on Close.
type memWriter struct {
	mfs    *MemoryFileSystem
	name   string
	buf    bytes.Buffer
	closed bool
}

func (w *memWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, &fs.PathError{Op: "write", Path: w.name, Err: fs.ErrClosed}
	}
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	if w.closed {
		return &fs.PathError{Op: "close", Path: w.name, Err: fs.ErrClosed}
	}
	w.closed = true

	w.mfs.mu.Lock()
	defer w.mfs.mu.Unlock()
	w.mfs.files[w.name] = &memoryFile{data: w.buf.Bytes(), mtime: time.Now()}
	w.mfs.markDirs(filepath.Dir(w.name))
	return nil
}

// memInfo is the fs.FileInfo for in-memory entries.
type memInfo struct {
	name  string
	size  int64
	mtime time.Time
	dir   bool
}

func (i memInfo) Name() string { return i.name }
func (i memInfo) Size() int64  { return i.size }
func (i memInfo) Mode() fs.FileMode {
	if i.dir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}
func (i memInfo) ModTime() time.Time { return i.mtime }
func (i memInfo) IsDir() bool        { return i.dir }
func (i memInfo) Sys() any           { return nil }
