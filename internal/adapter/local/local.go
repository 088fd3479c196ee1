package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Ning0612/ferry/internal/domain"
)

// Scheme is the scheme reported by the local adapter
const Scheme = "file"

// Adapter implements adapter.Backend for the local filesystem
type Adapter struct {
	root string
}

// New creates a new local filesystem adapter restricted to root.
// root must be an existing directory; "/" allows the whole filesystem.
func New(root string) (*Adapter, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, mapError(absRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: root %s is not a directory", domain.ErrInvalidPath, absRoot)
	}

	return &Adapter{root: absRoot}, nil
}

// Scheme implements adapter.Backend
func (a *Adapter) Scheme() string {
	return Scheme
}

// Root returns the root path of this adapter
func (a *Adapter) Root() string {
	return a.root
}

// resolvePath converts a slash path to an OS path inside root
func (a *Adapter) resolvePath(p string) (string, error) {
	fullPath := filepath.FromSlash(domain.CleanPath(p))
	if vol := filepath.VolumeName(a.root); vol != "" && filepath.VolumeName(fullPath) == "" {
		fullPath = vol + fullPath
	}

	rel, err := filepath.Rel(a.root, fullPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside %s", domain.ErrInvalidPath, p, a.root)
	}
	return fullPath, nil
}

// Stat returns metadata for a single path
func (a *Adapter) Stat(ctx context.Context, p string) (domain.FileInfo, error) {
	fullPath, err := a.resolvePath(p)
	if err != nil {
		return domain.FileInfo{}, err
	}

	info, err := os.Lstat(fullPath)
	if err != nil {
		return domain.FileInfo{}, mapError(p, err)
	}

	return a.fileInfoFromOS(fullPath, info), nil
}

// List returns the direct children of a directory
func (a *Adapter) List(ctx context.Context, p string) ([]domain.FileInfo, error) {
	fullPath, err := a.resolvePath(p)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, mapError(p, err)
	}

	result := make([]domain.FileInfo, 0, len(entries))
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		info, err := entry.Info()
		if err != nil {
			continue // removed while listing
		}
		result = append(result, a.fileInfoFromOS(filepath.Join(fullPath, entry.Name()), info))
	}

	return result, nil
}

// Mkdir creates a directory and any necessary parents
func (a *Adapter) Mkdir(ctx context.Context, p string) error {
	fullPath, err := a.resolvePath(p)
	if err != nil {
		return err
	}
	return mapError(p, os.MkdirAll(fullPath, 0755))
}

// Touch creates an empty file or bumps the mtime of an existing one
func (a *Adapter) Touch(ctx context.Context, p string) error {
	fullPath, err := a.resolvePath(p)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return mapError(p, err)
	}
	if err := file.Close(); err != nil {
		return mapError(p, err)
	}

	now := time.Now()
	return mapError(p, os.Chtimes(fullPath, now, now))
}

// Truncate shrinks a file to size bytes
func (a *Adapter) Truncate(ctx context.Context, p string, size int64) error {
	fullPath, err := a.resolvePath(p)
	if err != nil {
		return err
	}
	return mapError(p, os.Truncate(fullPath, size))
}

// Delete removes a file or directory
func (a *Adapter) Delete(ctx context.Context, p string, recursive bool) error {
	fullPath, err := a.resolvePath(p)
	if err != nil {
		return err
	}
	if fullPath == a.root {
		return fmt.Errorf("%w: refusing to delete adapter root %s", domain.ErrInvalidPath, p)
	}

	if _, err := os.Lstat(fullPath); err != nil {
		return mapError(p, err)
	}

	if recursive {
		return mapError(p, os.RemoveAll(fullPath))
	}
	return mapError(p, os.Remove(fullPath))
}

// ReadRange returns up to length bytes starting at offset
func (a *Adapter) ReadRange(ctx context.Context, p string, offset, length int64) ([]byte, error) {
	fullPath, err := a.resolvePath(p)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return nil, mapError(p, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, mapError(p, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", domain.ErrIsDirectory, p)
	}
	if offset >= info.Size() || length <= 0 {
		return []byte{}, nil
	}
	if remaining := info.Size() - offset; length > remaining {
		length = remaining
	}

	buf := make([]byte, length)
	n, err := file.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, mapError(p, err)
	}
	return buf[:n], nil
}

// Append writes data at the end of an existing file
func (a *Adapter) Append(ctx context.Context, p string, data []byte) error {
	fullPath, err := a.resolvePath(p)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(fullPath, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return mapError(p, err)
	}

	_, writeErr := file.Write(data)
	closeErr := file.Close()
	if writeErr != nil {
		return mapError(p, writeErr)
	}
	return mapError(p, closeErr)
}

// Rename moves a path within the local filesystem
func (a *Adapter) Rename(ctx context.Context, src, dst string) error {
	srcPath, err := a.resolvePath(src)
	if err != nil {
		return err
	}
	dstPath, err := a.resolvePath(dst)
	if err != nil {
		return err
	}
	return mapError(src, os.Rename(srcPath, dstPath))
}

// Concat is not available on a local disk; the engine copies instead
func (a *Adapter) Concat(ctx context.Context, p string, sources []string) error {
	return fmt.Errorf("%w: concat on local filesystem", domain.ErrUnsupported)
}

// CopyWithin hard links dst to src, falling back to a byte copy when the
// two paths are on different devices
func (a *Adapter) CopyWithin(ctx context.Context, src, dst string) error {
	srcPath, err := a.resolvePath(src)
	if err != nil {
		return err
	}
	dstPath, err := a.resolvePath(dst)
	if err != nil {
		return err
	}

	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		return mapError(src, err)
	}
	// removing dst below would also remove src
	if dstInfo, err := os.Stat(dstPath); err == nil && os.SameFile(srcInfo, dstInfo) {
		if srcPath == dstPath {
			return fmt.Errorf("%w: %s and %s are the same file", domain.ErrInvalidArgument, src, dst)
		}
		return nil
	}

	if err := os.Remove(dstPath); err != nil && !os.IsNotExist(err) {
		return mapError(dst, err)
	}
	if err := os.Link(srcPath, dstPath); err == nil {
		return nil
	}

	return a.copyBytes(srcPath, dstPath)
}

func (a *Adapter) copyBytes(srcPath, dstPath string) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return mapError(srcPath, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return mapError(srcPath, err)
	}

	out, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return mapError(dstPath, err)
	}

	_, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(dstPath)
		return mapError(dstPath, copyErr)
	}
	return mapError(dstPath, closeErr)
}

// Close releases any resources (no-op for local adapter)
func (a *Adapter) Close() error {
	return nil
}

// fileInfoFromOS converts os.FileInfo to domain.FileInfo
func (a *Adapter) fileInfoFromOS(fullPath string, info os.FileInfo) domain.FileInfo {
	fileType := domain.FileTypeRegular
	size := info.Size()
	childCount := 0

	switch {
	case info.IsDir():
		fileType = domain.FileTypeDirectory
		if entries, err := os.ReadDir(fullPath); err == nil {
			childCount = len(entries)
		}
	case info.Mode()&os.ModeSymlink != 0:
		fileType = domain.FileTypeSymlink
		if target, err := os.Stat(fullPath); err == nil {
			size = target.Size()
		}
	}

	owner, group, atime := ownership(info)

	return domain.FileInfo{
		Path:       filepath.ToSlash(fullPath),
		Name:       info.Name(),
		Type:       fileType,
		Exists:     true,
		Size:       size,
		ChildCount: childCount,
		ModTime:    info.ModTime(),
		AccessTime: atime,
		Owner:      owner,
		Group:      group,
		Permission: fmt.Sprintf("%o", info.Mode().Perm()),
	}.Normalize()
}

// mapError converts OS errors to domain errors
func mapError(p string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("%w: %s", domain.ErrNotFound, p)
	case os.IsPermission(err):
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, p)
	case errors.Is(err, syscall.ENOTEMPTY), errors.Is(err, syscall.EEXIST) && isDir(p):
		return fmt.Errorf("%w: %s", domain.ErrPathNotEmpty, p)
	case errors.Is(err, syscall.EISDIR):
		return fmt.Errorf("%w: %s", domain.ErrIsDirectory, p)
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && strings.Contains(pathErr.Err.Error(), "not empty") {
		return fmt.Errorf("%w: %s", domain.ErrPathNotEmpty, p)
	}

	return fmt.Errorf("%w: %s: %v", domain.ErrBackend, p, err)
}

func isDir(p string) bool {
	info, err := os.Stat(filepath.FromSlash(p))
	return err == nil && info.IsDir()
}
