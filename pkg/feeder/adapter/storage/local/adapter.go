// Package local provides a local file system implementation of the storage adapter interfaces.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	storageAdapter "github.com/tigerroll/feeder/pkg/feeder/adapter/storage"
	storageConfig "github.com/tigerroll/feeder/pkg/feeder/adapter/storage/config"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/logger"
)

const (
	// ProviderType defines the type identifier for this local storage provider.
	ProviderType = "local"
	// tempSuffix marks in-progress objects; they are hidden from listings and never downloaded.
	tempSuffix = ".partial"
)

// localAdapter implements the storage.StorageConnection interface for local file system operations.
type localAdapter struct {
	cfg  storageConfig.StorageConfig
	name string
}

// Verify that localAdapter implements the storage.StorageConnection interface.
var _ storageAdapter.StorageConnection = (*localAdapter)(nil)

// NewLocalAdapter creates a new localAdapter instance.
// It validates the BaseDir configuration and attempts to create it if it doesn't exist.
func NewLocalAdapter(cfg storageConfig.StorageConfig, name string) (storageAdapter.StorageConnection, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("local storage adapter '%s': BaseDir must be specified in configuration", name)
	}
	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("local storage adapter '%s': failed to stat BaseDir '%s': %w", name, cfg.BaseDir, err)
		}
		if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
			return nil, fmt.Errorf("local storage adapter '%s': failed to create BaseDir '%s': %w", name, cfg.BaseDir, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("local storage adapter '%s': BaseDir '%s' is not a directory", name, cfg.BaseDir)
	}

	return &localAdapter{cfg: cfg, name: name}, nil
}

// Close does nothing for the local file system adapter as it holds no special resources.
func (a *localAdapter) Close() error {
	logger.Debugf("Local storage adapter '%s' closed.", a.name)
	return nil
}

// Type returns the type of the adapter, which is "local".
func (a *localAdapter) Type() string {
	return ProviderType
}

// Name returns the name of this connection.
func (a *localAdapter) Name() string {
	return a.name
}

// Create opens a uniquely named temporary file next to the final path.
// Commit renames it into place, which is atomic on POSIX file systems.
func (a *localAdapter) Create(ctx context.Context, bucket, objectName string) (storageAdapter.ObjectWriter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path for create: %w", err)
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory '%s': %w", dir, err)
	}

	tempPath := fmt.Sprintf("%s.%s%s", fullPath, uuid.NewString(), tempSuffix)
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file '%s': %w", tempPath, err)
	}
	logger.Debugf("Started object '%s' via '%s' (local adapter '%s').", fullPath, tempPath, a.name)
	return &fileObjectWriter{file: file, tempPath: tempPath, finalPath: fullPath}, nil
}

// Upload copies data into the object through Create, so a failed copy leaves no object behind.
func (a *localAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader) error {
	w, err := a.Create(ctx, bucket, objectName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Abort()
		return fmt.Errorf("failed to write object '%s': %w", objectName, err)
	}
	return w.Commit()
}

// Download opens the object for reading. The returned io.ReadCloser must be closed by the caller.
func (a *localAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	if strings.HasSuffix(objectName, tempSuffix) {
		return nil, fmt.Errorf("object '%s' is still being written", objectName)
	}
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path for download: %w", err)
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file '%s': %w", fullPath, err)
	}
	logger.Debugf("Opened '%s' for reading (local adapter '%s').", fullPath, a.name)
	return file, nil
}

// Exists reports whether the object has been published.
func (a *localAdapter) Exists(ctx context.Context, bucket, objectName string) (bool, error) {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// ListObjects walks the bucket directory and calls fn for each published object starting with prefix.
func (a *localAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	basePath, err := a.resolvePath(bucket, "")
	if err != nil {
		return fmt.Errorf("failed to resolve base path for listing: %w", err)
	}
	if _, err := os.Stat(basePath); os.IsNotExist(err) {
		return nil
	}

	err = filepath.WalkDir(basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, tempSuffix) {
			return nil
		}
		objectName, err := filepath.Rel(basePath, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for '%s' from '%s': %w", path, basePath, err)
		}
		objectName = filepath.ToSlash(objectName)
		if !strings.HasPrefix(objectName, prefix) {
			return nil
		}
		return fn(objectName)
	})
	if err != nil {
		return fmt.Errorf("failed to list objects in '%s' with prefix '%s': %w", basePath, prefix, err)
	}
	return nil
}

// DeleteObject deletes the specified object from the bucket.
// If the object does not exist, it logs a warning and returns nil.
func (a *localAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return fmt.Errorf("failed to resolve path for delete: %w", err)
	}
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			logger.Warnf("Attempted to delete non-existent object '%s' (local adapter '%s').", fullPath, a.name)
			return nil
		}
		return fmt.Errorf("failed to delete file '%s': %w", fullPath, err)
	}
	logger.Debugf("Deleted object '%s' (local adapter '%s').", fullPath, a.name)
	return nil
}

// resolvePath resolves the full path of an object relative to BaseDir.
// The resolved path must not escape BaseDir.
func (a *localAdapter) resolvePath(bucket, objectName string) (string, error) {
	baseDir := a.cfg.BaseDir
	if bucket == "" {
		bucket = a.cfg.BucketName
	}
	fullPath := filepath.Join(baseDir, bucket, objectName)

	absBaseDir, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for BaseDir '%s': %w", baseDir, err)
	}
	absFullPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", fullPath, err)
	}
	if absFullPath != absBaseDir && !strings.HasPrefix(absFullPath, absBaseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("resolved path '%s' is outside of BaseDir '%s'", fullPath, baseDir)
	}
	return fullPath, nil
}

// fileObjectWriter writes to a temporary file and renames it on Commit.
type fileObjectWriter struct {
	file      *os.File
	tempPath  string
	finalPath string
	done      bool
	committed bool
}

func (w *fileObjectWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, errors.New("write to a finished object")
	}
	return w.file.Write(p)
}

func (w *fileObjectWriter) Commit() error {
	if w.done {
		if w.committed {
			return nil
		}
		return errors.New("commit of an aborted object")
	}
	w.done = true
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		os.Remove(w.tempPath)
		return fmt.Errorf("failed to sync '%s': %w", w.tempPath, err)
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.tempPath)
		return fmt.Errorf("failed to close '%s': %w", w.tempPath, err)
	}
	if err := os.Rename(w.tempPath, w.finalPath); err != nil {
		os.Remove(w.tempPath)
		return fmt.Errorf("failed to publish '%s': %w", w.finalPath, err)
	}
	w.committed = true
	logger.Debugf("Published object '%s'.", w.finalPath)
	return nil
}

func (w *fileObjectWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.file.Close()
	if err := os.Remove(w.tempPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove '%s': %w", w.tempPath, err)
	}
	return nil
}
