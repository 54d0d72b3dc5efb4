package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/afero"
)

// FileInfo is the subset of file metadata engines use.
type FileInfo struct {
	Size    int64
	ModTime time.Time
}

// Backend is the file capability a persistence engine needs.
// Paths are slash-separated and relative to the backend's root.
type Backend interface {
	Read(ctx context.Context, path string) ([]byte, error)
	// Write replaces the file contents, creating the file if needed.
	Write(ctx context.Context, path string, data []byte) error
	// Append adds data to the end of the file, creating it if needed.
	Append(ctx context.Context, path string, data []byte) error
	Exists(ctx context.Context, path string) (bool, error)
	Remove(ctx context.Context, path string) error
	// Rename moves from onto to, replacing to if it exists.
	Rename(ctx context.Context, from, to string) error
	Stat(ctx context.Context, path string) (FileInfo, error)
	// Mkdir creates path and any missing parents.
	Mkdir(ctx context.Context, path string) error
	// List returns the names of the entries in dir, sorted.
	List(ctx context.Context, dir string) ([]string, error)
}

// FS implements Backend over an afero filesystem.
type FS struct {
	fs afero.Fs
}

// NewFS wraps an afero filesystem.
func NewFS(fsys afero.Fs) *FS {
	return &FS{fs: fsys}
}

// NewOSBackend returns a backend on the local filesystem.
func NewOSBackend() *FS {
	return NewFS(afero.NewOsFs())
}

// NewSandboxBackend returns a backend confined to root. Paths that resolve
// outside root fail as not found.
func NewSandboxBackend(root string) *FS {
	return NewFS(afero.NewBasePathFs(afero.NewOsFs(), root))
}

// NewMemoryBackend returns an in-memory backend.
func NewMemoryBackend() *FS {
	return NewFS(afero.NewMemMapFs())
}

// Afero exposes the wrapped filesystem.
func (b *FS) Afero() afero.Fs {
	return b.fs
}

func (b *FS) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(b.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (b *FS) Write(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := afero.WriteFile(b.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (b *FS) Append(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := b.fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("append %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("append %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("append %s: %w", path, err)
	}
	return nil
}

func (b *FS) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := b.fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("exists %s: %w", path, err)
}

func (b *FS) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.fs.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func (b *FS) Rename(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := b.fs.Stat(from); err != nil {
		return fmt.Errorf("rename %s: %w", from, err)
	}
	if err := b.fs.Rename(from, to); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", from, to, err)
	}
	return nil
}

func (b *FS) Stat(ctx context.Context, path string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return FileInfo{}, err
	}
	info, err := b.fs.Stat(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return FileInfo{Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (b *FS) Mkdir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if path == "" || path == "." {
		return nil
	}
	if err := b.fs.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

func (b *FS) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if dir == "" {
		dir = "."
	}
	infos, err := afero.ReadDir(b.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}
