package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type fileHandle struct {
	mu   sync.Mutex
	file *os.File
}

// FileWriter writes finished files into their slot's output directory. A
// file is written as <name>.part and renamed once it is complete, so a
// directory never shows a half written result under its final name.
type FileWriter struct {
	mu      sync.RWMutex
	handles map[string]*fileHandle
}

func NewFileWriter() *FileWriter {
	return &FileWriter{
		handles: make(map[string]*fileHandle),
	}
}

// Save writes data to dir/name and returns the final path.
func (fw *FileWriter) Save(dir, name string, data []byte) (string, error) {
	name = cleanName(name)
	if name == "" {
		return "", fmt.Errorf("invalid file name")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create out_dir: %w", err)
	}

	final := filepath.Join(dir, name)
	part := final + ".part"

	if err := fw.WriteAt(part, data, 0); err != nil {
		fw.CloseFile(part, 0)
		return "", err
	}
	if err := fw.CloseFile(part, int64(len(data))); err != nil {
		return "", err
	}
	if err := os.Rename(part, final); err != nil {
		return "", fmt.Errorf("finalize %s: %w", name, err)
	}
	return final, nil
}

// WriteAt finds the handle and performs a thread-safe write
func (fw *FileWriter) WriteAt(path string, data []byte, offset int64) error {
	h, err := fw.getOrCreateFile(path)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err = h.file.WriteAt(data, offset)
	return err
}

func (fw *FileWriter) getOrCreateFile(path string) (*fileHandle, error) {
	fw.mu.RLock()
	h, ok := fw.handles[path]
	fw.mu.RUnlock()
	if ok {
		return h, nil
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if h, ok = fw.handles[path]; ok {
		return h, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open part file: %w", err)
	}

	h = &fileHandle{file: f}
	fw.handles[path] = h
	return h, nil
}

// CloseFile truncates the file to size when size is positive, syncs and
// closes it.
func (fw *FileWriter) CloseFile(path string, size int64) error {
	fw.mu.Lock()
	h, ok := fw.handles[path]
	if ok {
		delete(fw.handles, path)
	}
	fw.mu.Unlock()
	if !ok {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if size > 0 {
		if err := h.file.Truncate(size); err != nil {
			h.file.Close()
			return fmt.Errorf("failed to truncate to final size: %w", err)
		}
	}

	h.file.Sync()
	return h.file.Close()
}

func (fw *FileWriter) CloseAll() {
	fw.mu.RLock()
	paths := make([]string, 0, len(fw.handles))
	for path := range fw.handles {
		paths = append(paths, path)
	}
	fw.mu.RUnlock()

	for _, path := range paths {
		_ = fw.CloseFile(path, 0)
	}
}

// cleanName keeps a file inside its output directory.
func cleanName(name string) string {
	name = strings.TrimSpace(filepath.Base(filepath.Clean("/" + name)))
	if name == "/" || name == "." {
		return ""
	}
	return name
}
