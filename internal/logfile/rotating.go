package logfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	// DefaultMaxBytes is the size a log file may reach before it is rotated.
	DefaultMaxBytes int64 = 100_000_000
	// DefaultBackups is the number of rotated generations kept next to the live file.
	DefaultBackups = 2
)

// RotatingWriter appends to a file and rotates it once a write would take the
// file past maxBytes. Rotated generations are named path.1 (newest) through
// path.N (oldest); anything older is discarded.
type RotatingWriter struct {
	path     string
	maxBytes int64
	backups  int

	mu     sync.Mutex
	file   *os.File
	size   int64
	closed bool
}

// Open opens (or creates) the log file at path in append mode.
// A maxBytes of zero or less disables rotation.
func Open(path string, maxBytes int64, backups int) (*RotatingWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("log file path cannot be empty")
	}
	if backups < 0 {
		backups = 0
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &RotatingWriter{
		path:     path,
		maxBytes: maxBytes,
		backups:  backups,
	}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) openFile() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// Write writes p to the current segment, rotating first when p would push
// a non-empty segment past the size limit. A single write larger than the
// limit still lands whole in a fresh segment.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, os.ErrClosed
	}
	// A failed rotation may have left no segment open
	if w.file == nil {
		if err := w.openFile(); err != nil {
			return 0, err
		}
	}

	if w.maxBytes > 0 && w.size > 0 && w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// rotate shifts path.(i) to path.(i+1), moves the live file to path.1 and
// starts a new empty segment. With no backups the live file is truncated.
// When a step fails the live path is reopened for appending, so logging
// carries on in the oversized segment and the next write retries.
func (w *RotatingWriter) rotate() error {
	err := w.file.Close()
	w.file = nil
	if err != nil {
		w.openFile()
		return fmt.Errorf("failed to close log file: %w", err)
	}

	if err := w.shift(); err != nil {
		w.openFile()
		return err
	}
	return w.openFile()
}

func (w *RotatingWriter) shift() error {
	if w.backups == 0 {
		if err := os.Truncate(w.path, 0); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to truncate log file: %w", err)
		}
		return nil
	}

	os.Remove(w.backupName(w.backups))
	for i := w.backups - 1; i >= 1; i-- {
		src := w.backupName(i)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.Rename(src, w.backupName(i+1)); err != nil {
			return fmt.Errorf("failed to rotate %s: %w", src, err)
		}
	}
	if err := os.Rename(w.path, w.backupName(1)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to rotate %s: %w", w.path, err)
	}
	return nil
}

func (w *RotatingWriter) backupName(i int) string {
	return fmt.Sprintf("%s.%d", w.path, i)
}

// Path returns the path of the live segment
func (w *RotatingWriter) Path() string {
	return w.path
}

// Close closes the live segment. Later writes fail with os.ErrClosed.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
