package utils

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// RotationConfig holds configuration for log rotation
type RotationConfig struct {
	// Filename is the active log file.
	Filename string

	// MaxSizeMB rotates the file before it grows past this size. Zero
	// disables rotation.
	MaxSizeMB int64

	// MaxBackups is how many rotated files are kept as Filename.1,
	// Filename.2 and so on, newest first.
	MaxBackups int

	// Compress gzips rotated files.
	Compress bool
}

// LogRotator is an io.WriteCloser that rotates its file by size.
type LogRotator struct {
	mu     sync.Mutex
	config RotationConfig
	file   *os.File
	size   int64

	// errOut receives rotation problems that must not fail a log write.
	errOut io.Writer
}

// NewLogRotator opens config.Filename for appending.
func NewLogRotator(config RotationConfig) (*LogRotator, error) {
	if config.Filename == "" {
		return nil, fmt.Errorf("filename is required")
	}
	if config.MaxBackups < 0 {
		return nil, fmt.Errorf("max backups cannot be negative")
	}

	lr := &LogRotator{config: config, errOut: os.Stderr}
	if err := lr.open(); err != nil {
		return nil, err
	}
	return lr, nil
}

// Write implements io.Writer
func (lr *LogRotator) Write(p []byte) (int, error) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.file == nil {
		return 0, os.ErrClosed
	}

	if limit := lr.config.MaxSizeMB * 1024 * 1024; limit > 0 && lr.size > 0 && lr.size+int64(len(p)) > limit {
		if err := lr.rotate(); err != nil {
			return 0, fmt.Errorf("failed to rotate log: %w", err)
		}
	}

	n, err := lr.file.Write(p)
	lr.size += int64(n)
	return n, err
}

// Close closes the log file
func (lr *LogRotator) Close() error {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.file == nil {
		return nil
	}
	err := lr.file.Close()
	lr.file = nil
	return err
}

// Rotate rotates the file now.
func (lr *LogRotator) Rotate() error {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.rotate()
}

// rotate must be called with the lock held.
func (lr *LogRotator) rotate() error {
	if lr.file != nil {
		if err := lr.file.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
		lr.file = nil
	}

	name := lr.config.Filename
	if lr.config.MaxBackups == 0 {
		if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
			return err
		}
		return lr.open()
	}

	// Drop the oldest backup, then shift the others up by one.
	for _, suffix := range []string{"", ".gz"} {
		_ = os.Remove(lr.backup(lr.config.MaxBackups) + suffix)
	}
	for i := lr.config.MaxBackups - 1; i >= 1; i-- {
		for _, suffix := range []string{"", ".gz"} {
			if err := os.Rename(lr.backup(i)+suffix, lr.backup(i+1)+suffix); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to shift log backup: %w", err)
			}
		}
	}

	if err := os.Rename(name, lr.backup(1)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to rename log file: %w", err)
	}
	if lr.config.Compress {
		if err := compressFile(lr.backup(1)); err != nil {
			fmt.Fprintf(lr.errOut, "failed to compress %s: %v\n", lr.backup(1), err)
		}
	}

	return lr.open()
}

func (lr *LogRotator) open() error {
	if err := os.MkdirAll(filepath.Dir(lr.config.Filename), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(lr.config.Filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	lr.file = file
	lr.size = info.Size()
	return nil
}

func (lr *LogRotator) backup(i int) string {
	return lr.config.Filename + "." + strconv.Itoa(i)
}

// compressFile replaces filename with filename.gz.
func compressFile(filename string) error {
	src, err := os.Open(filename) // #nosec G304 - rotated log file
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(filename + ".gz")
	if err != nil {
		return err
	}

	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		_ = dst.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		_ = dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(filename)
}
