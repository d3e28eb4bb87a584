package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrInvalidName is returned for names that escape the archive directory.
var ErrInvalidName = errors.New("invalid file name")

// ReportArchive keeps rendered report files in a local directory.
type ReportArchive struct {
	baseDir string
	now     func() time.Time
}

// NewReportArchive creates the directory when missing.
func NewReportArchive(baseDir string) (*ReportArchive, error) {
	if baseDir == "" {
		baseDir = "./exports"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}
	return &ReportArchive{baseDir: baseDir, now: time.Now}, nil
}

// Dir returns the archive directory.
func (a *ReportArchive) Dir() string {
	return a.baseDir
}

// Save writes data under name and returns the full path. An existing file
// with the same name is replaced.
func (a *ReportArchive) Save(name string, data []byte) (string, error) {
	path, err := a.resolve(name)
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(a.baseDir, ".report-*")
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write report file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close report file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("store report file: %w", err)
	}
	return path, nil
}

// Prune removes report files last modified before now-ttl and returns their
// names in lexical order. Hidden temp files are left alone.
func (a *ReportArchive) Prune(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		return nil, nil
	}
	cutoff := a.now().Add(-ttl)
	entries, err := os.ReadDir(a.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read report directory: %w", err)
	}

	deleted := make([]string, 0)
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return deleted, fmt.Errorf("stat report file: %w", err)
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(a.baseDir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return deleted, fmt.Errorf("delete report file: %w", err)
		}
		deleted = append(deleted, entry.Name())
	}
	sort.Strings(deleted)
	return deleted, nil
}

func (a *ReportArchive) resolve(name string) (string, error) {
	clean := filepath.Base(name)
	if name == "" || clean != name || clean == "." || clean == ".." || strings.HasPrefix(clean, ".") {
		return "", ErrInvalidName
	}
	return filepath.Join(a.baseDir, clean), nil
}
