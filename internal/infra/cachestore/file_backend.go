package cachestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	valueExt = ".dat"
	blobExt  = ".bin"
	blobDir  = "blobs"
)

// FileBackend stores one file per key under root.
// Writes go to a temp file first and are renamed into place.
type FileBackend struct {
	root      string
	writeLock sync.Mutex
}

// NewFileBackend creates the backend directory layout under root.
func NewFileBackend(root string) (*FileBackend, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("file backend root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, blobDir), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &FileBackend{root: root}, nil
}

func (b *FileBackend) Name() string { return "file" }

// Path returns the file that holds key's value.
func (b *FileBackend) Path(key string) string {
	return filepath.Join(b.root, fileName(key)+valueExt)
}

// BlobPath returns the raw file that holds key's binary payload.
func (b *FileBackend) BlobPath(key string) string {
	return filepath.Join(b.root, blobDir, fileName(key)+blobExt)
}

func (b *FileBackend) Get(ctx context.Context, key string) ([]byte, error) {
	return b.readFile(ctx, b.Path(key))
}

func (b *FileBackend) Put(ctx context.Context, key string, value []byte) error {
	return b.writeFile(ctx, b.Path(key), value)
}

func (b *FileBackend) Delete(ctx context.Context, key string) error {
	return b.removeFile(ctx, b.Path(key))
}

// Keys lists value keys; blobs are listed by BlobKeys.
func (b *FileBackend) Keys(ctx context.Context) ([]string, error) {
	return b.listKeys(ctx, b.root, valueExt)
}

func (b *FileBackend) GetBlob(ctx context.Context, key string) ([]byte, error) {
	return b.readFile(ctx, b.BlobPath(key))
}

func (b *FileBackend) PutBlob(ctx context.Context, key string, data []byte) error {
	return b.writeFile(ctx, b.BlobPath(key), data)
}

func (b *FileBackend) DeleteBlob(ctx context.Context, key string) error {
	return b.removeFile(ctx, b.BlobPath(key))
}

func (b *FileBackend) BlobKeys(ctx context.Context) ([]string, error) {
	return b.listKeys(ctx, filepath.Join(b.root, blobDir), blobExt)
}

func (b *FileBackend) readFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return data, nil
}

func (b *FileBackend) writeFile(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.writeLock.Lock()
	defer b.writeLock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(tmpPath), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (b *FileBackend) removeFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.writeLock.Lock()
	defer b.writeLock.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (b *FileBackend) listKeys(ctx context.Context, dir, ext string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list cache directory: %w", err)
	}
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, ext))
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// fileName maps a key to a single path segment that every target filesystem accepts.
func fileName(key string) string {
	escaped := url.PathEscape(key)
	escaped = strings.ReplaceAll(escaped, ":", "%3A")
	if strings.HasPrefix(escaped, ".") {
		escaped = "%2E" + escaped[1:]
	}
	return escaped
}
