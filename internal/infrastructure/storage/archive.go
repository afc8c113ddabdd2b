// Package storage keeps generated exports on the local filesystem.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/requisition-approval/internal/application/port"
)

// ErrOutsideArchive is returned for paths that resolve outside the archive root
var ErrOutsideArchive = errors.New("path escapes archive directory")

// ExportArchive stores export files under a root directory
type ExportArchive struct {
	root   string
	logger *zap.Logger
}

// NewExportArchive creates an archive rooted at root
func NewExportArchive(root string, logger *zap.Logger) *ExportArchive {
	return &ExportArchive{root: root, logger: logger}
}

// Save writes content atomically: a temp file in the target directory is
// renamed over the final name.
func (a *ExportArchive) Save(ctx context.Context, path string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := a.resolve(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".export-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}

	a.logger.Debug("Export archived", zap.String("path", full), zap.Int("size", len(content)))
	return nil
}

// Read returns the archived content at path
func (a *ExportArchive) Read(ctx context.Context, path string) ([]byte, error) {
	full, err := a.resolve(path)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return content, nil
}

// Exists reports whether a regular file is archived at path
func (a *ExportArchive) Exists(ctx context.Context, path string) bool {
	full, err := a.resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && info.Mode().IsRegular()
}

// Delete removes path; a missing file is not an error
func (a *ExportArchive) Delete(ctx context.Context, path string) error {
	full, err := a.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// GetFullPath joins relativePath onto the archive root
func (a *ExportArchive) GetFullPath(relativePath string) string {
	return filepath.Join(a.root, relativePath)
}

func (a *ExportArchive) resolve(path string) (string, error) {
	root, err := filepath.Abs(a.root)
	if err != nil {
		return "", fmt.Errorf("resolve archive root: %w", err)
	}
	full, err := filepath.Abs(filepath.Join(root, path))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	if full == root || !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideArchive, path)
	}
	return full, nil
}

var _ port.FileStorage = (*ExportArchive)(nil)
