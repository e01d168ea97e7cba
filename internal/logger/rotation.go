package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// rotatingFile is an io.WriteCloser that renames the log file aside once it
// grows past the size limit. A zero limit disables rotation. Writes are
// serialized; zerolog may write from many goroutines.
type rotatingFile struct {
	mu        sync.Mutex
	path      string
	sizeLimit int64
	maxAge    int
	compress  bool
	file      *os.File
	size      int64
}

func newRotatingFile(path string, maxSizeMB, maxAge int, compress bool) (*rotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	rf := &rotatingFile{
		path:      path,
		sizeLimit: int64(maxSizeMB) * 1024 * 1024,
		maxAge:    maxAge,
		compress:  compress,
		file:      file,
		size:      info.Size(),
	}
	go rf.pruneOld()
	return rf, nil
}

func (f *rotatingFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sizeLimit > 0 && f.size+int64(len(p)) > f.sizeLimit {
		if err := f.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := f.file.Write(p)
	f.size += int64(n)
	return n, err
}

func (f *rotatingFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}

func (f *rotatingFile) rotate() error {
	if err := f.file.Close(); err != nil {
		return err
	}

	rotated := fmt.Sprintf("%s.%s", f.path, time.Now().Format("20060102-150405"))
	if err := os.Rename(f.path, rotated); err != nil {
		return err
	}
	if f.compress {
		go compressFile(rotated)
	}

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	f.file = file
	f.size = 0
	return nil
}

func compressFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer dst.Close()

	gzw := gzip.NewWriter(dst)
	if _, err := io.Copy(gzw, src); err != nil {
		return err
	}
	if err := gzw.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

// pruneOld removes rotated files older than maxAge days.
func (f *rotatingFile) pruneOld() {
	if f.maxAge <= 0 {
		return
	}

	matches, err := filepath.Glob(f.path + ".*")
	if err != nil {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -f.maxAge)
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		os.Remove(path)
		if !strings.HasSuffix(path, ".gz") {
			os.Remove(path + ".gz")
		}
	}
}
