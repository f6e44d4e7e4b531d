package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RotatingFile is an append-only log file that is rotated to path.1, path.2, ...
// once it grows past maxSize bytes.
type RotatingFile struct {
	path       string
	maxSize    int64
	maxBackups int

	mu   sync.Mutex
	file *os.File
	size int64
}

// OpenRotatingFile opens (or creates) path for appending, creating parent directories
func OpenRotatingFile(path string, maxSize int64, maxBackups int) (*RotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	rf := &RotatingFile{path: path, maxSize: maxSize, maxBackups: maxBackups}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *RotatingFile) open() error {
	f, err := os.OpenFile(rf.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	rf.file = f
	rf.size = info.Size()
	return nil
}

// Write appends p, rotating first when the file is full
func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return 0, os.ErrClosed
	}

	if rf.maxSize > 0 && rf.size > 0 && rf.size+int64(len(p)) > rf.maxSize {
		if err := rf.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := rf.file.Write(p)
	rf.size += int64(n)
	return n, err
}

// rotate shifts backups up by one and starts a fresh file (mu held)
func (rf *RotatingFile) rotate() error {
	if err := rf.file.Close(); err != nil {
		return err
	}
	rf.file = nil

	if rf.maxBackups > 0 {
		os.Remove(fmt.Sprintf("%s.%d", rf.path, rf.maxBackups))
		for i := rf.maxBackups - 1; i >= 1; i-- {
			os.Rename(fmt.Sprintf("%s.%d", rf.path, i), fmt.Sprintf("%s.%d", rf.path, i+1))
		}
		os.Rename(rf.path, rf.path+".1")
	} else {
		os.Remove(rf.path)
	}

	return rf.open()
}

// Close closes the current file
func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.file == nil {
		return nil
	}
	err := rf.file.Close()
	rf.file = nil
	return err
}
