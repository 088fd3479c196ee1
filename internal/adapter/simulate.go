package adapter

import (
	"context"
	"fmt"

	"github.com/Ning0612/ferry/internal/domain"
	"github.com/Ning0612/ferry/internal/logger"
)

// Simulated wraps a backend for dry runs: reads go through, mutations are
// logged and reported as successful without touching the backend.
type Simulated struct {
	inner Backend
	log   logger.Logger
}

// Simulate returns b wrapped in dry-run mode
func Simulate(b Backend, log logger.Logger) *Simulated {
	if log == nil {
		log = logger.Get()
	}
	return &Simulated{inner: b, log: log.With("dry_run", true, "scheme", b.Scheme())}
}

// Inner returns the wrapped backend
func (s *Simulated) Inner() Backend {
	return s.inner
}

func (s *Simulated) Scheme() string {
	return s.inner.Scheme()
}

func (s *Simulated) Stat(ctx context.Context, path string) (domain.FileInfo, error) {
	return s.inner.Stat(ctx, path)
}

func (s *Simulated) List(ctx context.Context, path string) ([]domain.FileInfo, error) {
	return s.inner.List(ctx, path)
}

func (s *Simulated) ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error) {
	return s.inner.ReadRange(ctx, path, offset, length)
}

func (s *Simulated) Mkdir(ctx context.Context, path string) error {
	s.log.Info("would create directory", "path", path)
	return nil
}

func (s *Simulated) Touch(ctx context.Context, path string) error {
	s.log.Info("would touch", "path", path)
	return nil
}

func (s *Simulated) Truncate(ctx context.Context, path string, size int64) error {
	s.log.Info("would truncate", "path", path, "size", size)
	return nil
}

// Delete fails like a real delete for missing paths and for non-empty
// directories without recursive
func (s *Simulated) Delete(ctx context.Context, path string, recursive bool) error {
	info, err := s.inner.Stat(ctx, path)
	if err != nil {
		return err
	}
	if !info.Exists {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	}
	if !recursive && info.IsDir() && info.ChildCount > 0 {
		return fmt.Errorf("%w: %s", domain.ErrPathNotEmpty, path)
	}
	s.log.Info("would delete", "path", path, "recursive", recursive)
	return nil
}

func (s *Simulated) Append(ctx context.Context, path string, data []byte) error {
	s.log.Debug("would append", "path", path, "bytes", len(data))
	return nil
}

func (s *Simulated) Rename(ctx context.Context, src, dst string) error {
	s.log.Info("would rename", "src", src, "dst", dst)
	return nil
}

func (s *Simulated) Concat(ctx context.Context, path string, sources []string) error {
	s.log.Info("would concat", "path", path, "sources", len(sources))
	return nil
}

func (s *Simulated) CopyWithin(ctx context.Context, src, dst string) error {
	if !s.CanCopyWithin() {
		return fmt.Errorf("%w: copy within %s is not supported", domain.ErrUnsupported, s.Scheme())
	}
	s.log.Info("would copy", "src", src, "dst", dst)
	return nil
}

func (s *Simulated) CanCopyWithin() bool {
	return CanCopyWithin(s.inner)
}

func (s *Simulated) Close() error {
	return s.inner.Close()
}

var _ Backend = (*Simulated)(nil)
