// Package transfer moves data between backends: single file and chunked
// copies, moves, tree copies, traversal and chunked hashing. It only talks to
// adapter.Backend and never to a concrete backend type.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Ning0612/ferry/internal/adapter"
	"github.com/Ning0612/ferry/internal/domain"
	"github.com/Ning0612/ferry/internal/logger"
	"github.com/Ning0612/ferry/internal/progress"
	"github.com/Ning0612/ferry/internal/retry"
)

const (
	// DefaultChunkSize is the big file threshold and the chunk window
	DefaultChunkSize int64 = 256 * 1024 * 1024
	// DefaultReadBuffer is the size of one ReadRange/Append round trip
	DefaultReadBuffer int64 = 8 * 1024 * 1024
	// DefaultConcatFanIn is the largest source list handed to one concat call.
	// Some HDFS releases reorder sources beyond about 20.
	DefaultConcatFanIn = 20
)

// Locker serializes chunked copies to the same destination
type Locker interface {
	Acquire(target string) error
	Release(target string) error
}

// Options configures an Engine
type Options struct {
	ChunkSize   int64
	ReadBuffer  int64
	ConcatFanIn int

	DescribeRetry retry.Policy
	CopyRetry     retry.Policy
	ConcatRetry   retry.Policy

	// DryRun reports copies instead of streaming bytes
	DryRun bool

	Locker   Locker
	Reporter progress.Reporter
	Logger   logger.Logger
}

// DefaultOptions returns the tunables used when nothing is configured
func DefaultOptions() Options {
	return Options{
		ChunkSize:     DefaultChunkSize,
		ReadBuffer:    DefaultReadBuffer,
		ConcatFanIn:   DefaultConcatFanIn,
		DescribeRetry: retry.Describe,
		CopyRetry:     retry.ChunkCopy,
		ConcatRetry:   retry.Concat,
	}
}

// Endpoint is one side of a transfer
type Endpoint struct {
	Backend adapter.Backend
	Info    domain.FileInfo
}

// Result describes the outcome of a single file operation
type Result struct {
	// Dst is the final destination descriptor
	Dst domain.FileInfo
	// Skipped is set when nothing had to be done
	Skipped bool
	// Bytes is the number of bytes moved
	Bytes int64
}

// Counters are the running totals of one engine
type Counters struct {
	Files       int
	BytesCopied int64
	CopyTime    time.Duration
}

// Throughput returns bytes per second over the accumulated copy time
func (c Counters) Throughput() float64 {
	if c.CopyTime <= 0 {
		return 0
	}
	return float64(c.BytesCopied) / c.CopyTime.Seconds()
}

// Engine runs transfers between backends
type Engine struct {
	opts Options
	log  logger.Logger
	now  func() time.Time

	mu       sync.Mutex
	counters Counters
	skipped  []string
}

// New creates an engine. Zero tunables fall back to the defaults.
func New(opts Options) *Engine {
	defaults := DefaultOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaults.ChunkSize
	}
	if opts.ReadBuffer <= 0 {
		opts.ReadBuffer = defaults.ReadBuffer
	}
	if opts.ReadBuffer > opts.ChunkSize {
		opts.ReadBuffer = opts.ChunkSize
	}
	if opts.ConcatFanIn <= 0 {
		opts.ConcatFanIn = defaults.ConcatFanIn
	}
	if opts.DescribeRetry.Attempts == 0 {
		opts.DescribeRetry = defaults.DescribeRetry
	}
	if opts.CopyRetry.Attempts == 0 {
		opts.CopyRetry = defaults.CopyRetry
	}
	if opts.ConcatRetry.Attempts == 0 {
		opts.ConcatRetry = defaults.ConcatRetry
	}
	if opts.Reporter == nil {
		opts.Reporter = progress.NullReporter{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.Get()
	}

	return &Engine{
		opts: opts,
		log:  log.With("component", "transfer"),
		now:  time.Now,
	}
}

// Options returns the effective tunables
func (e *Engine) Options() Options {
	return e.opts
}

// Counters returns a snapshot of the running totals
func (e *Engine) Counters() Counters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counters
}

// Skipped returns the directories walks had to leave out
func (e *Engine) Skipped() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.skipped...)
}

func (e *Engine) record(bytes int64, elapsed time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counters.Files++
	e.counters.BytesCopied += bytes
	e.counters.CopyTime += elapsed
}

func (e *Engine) skip(p string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.skipped = append(e.skipped, p)
}

// Describe stats p. A path the backend has no record of yields a
// descriptor with Exists=false instead of an error.
func (e *Engine) Describe(ctx context.Context, b adapter.Backend, p string) (domain.FileInfo, error) {
	info, err := retry.Value(ctx, e.opts.DescribeRetry, func(ctx context.Context) (domain.FileInfo, error) {
		return b.Stat(ctx, p)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Missing(p), nil
	}
	if err != nil {
		return domain.FileInfo{}, err
	}
	return info, nil
}

// redirect resolves a directory destination to the entry named after src inside it
func (e *Engine) redirect(ctx context.Context, src domain.FileInfo, dst Endpoint) (Endpoint, error) {
	if !dst.Info.IsDir() {
		return dst, nil
	}
	target, err := Join(dst.Info.Path, src.Name)
	if err != nil {
		return dst, err
	}
	info, err := e.Describe(ctx, dst.Backend, target)
	if err != nil {
		return dst, err
	}
	return Endpoint{Backend: dst.Backend, Info: info}, nil
}

// CopyFile copies one regular file. An existing destination is left alone
// unless force is set. Copies between backends end with a size check.
func (e *Engine) CopyFile(ctx context.Context, src, dst Endpoint, force bool) (Result, error) {
	if !src.Info.Exists {
		return Result{}, fmt.Errorf("%w: %s", domain.ErrNotFound, src.Info.Path)
	}
	if src.Info.IsDir() {
		return Result{}, fmt.Errorf("%w: %s (use a tree copy)", domain.ErrIsDirectory, src.Info.Path)
	}

	dst, err := e.redirect(ctx, src.Info, dst)
	if err != nil {
		return Result{}, err
	}
	if err := checkWithin(src, dst); err != nil {
		return Result{}, err
	}
	if dst.Info.Exists && !force {
		e.log.Info("destination exists, skipping", "dst", dst.Info.Path)
		return Result{Dst: dst.Info, Skipped: true}, nil
	}
	if dst.Info.IsDir() {
		return Result{}, fmt.Errorf("%w: %s", domain.ErrIsDirectory, dst.Info.Path)
	}

	log := e.log.With("src", src.Info.Path, "dst", dst.Info.Path, "size", src.Info.Size)
	if e.opts.DryRun {
		log.Info("would copy")
		return Result{Dst: dst.Info, Bytes: src.Info.Size}, nil
	}

	start := e.now()
	e.opts.Reporter.Start(dst.Info.Path, src.Info.Size)

	if adapter.SameBackend(src.Backend, dst.Backend) {
		if err := dst.Backend.CopyWithin(ctx, src.Info.Path, dst.Info.Path); err != nil {
			e.opts.Reporter.Error(dst.Info.Path, err)
			return Result{}, err
		}
	} else {
		if err := e.remoteCopy(ctx, src, dst, log); err != nil {
			e.opts.Reporter.Error(dst.Info.Path, err)
			if retry.IsExhausted(err) {
				err = fmt.Errorf("%w: %w", domain.ErrRetryExhausted, err)
			}
			return Result{}, err
		}
	}

	final, err := e.Describe(ctx, dst.Backend, dst.Info.Path)
	if err != nil {
		e.opts.Reporter.Error(dst.Info.Path, err)
		return Result{}, err
	}
	if !final.Exists || final.Size != src.Info.Size {
		err := fmt.Errorf("%w: %s has %d bytes, source has %d", domain.ErrIntegrity, final.Path, final.Size, src.Info.Size)
		e.opts.Reporter.Error(dst.Info.Path, err)
		return Result{}, err
	}

	elapsed := e.now().Sub(start)
	e.record(src.Info.Size, elapsed)
	e.opts.Reporter.Complete(dst.Info.Path)
	log.Info("copied", "elapsed", elapsed)
	return Result{Dst: final, Bytes: src.Info.Size}, nil
}

// checkWithin refuses a same backend copy the backend cannot do, or one
// whose destination is the source itself. Runs before any dry-run return.
func checkWithin(src, dst Endpoint) error {
	if !adapter.SameBackend(src.Backend, dst.Backend) {
		return nil
	}
	if !adapter.CanCopyWithin(dst.Backend) {
		return fmt.Errorf("%w: copy within %s is not supported, use a symlink once available", domain.ErrUnsupported, dst.Backend.Scheme())
	}
	if domain.CleanPath(src.Info.Path) == domain.CleanPath(dst.Info.Path) {
		return fmt.Errorf("%w: %s and %s are the same file", domain.ErrInvalidArgument, src.Info.Path, dst.Info.Path)
	}
	return nil
}

func (e *Engine) remoteCopy(ctx context.Context, src, dst Endpoint, log logger.Logger) error {
	if src.Info.Size <= e.opts.ChunkSize {
		return e.copySmall(ctx, src, dst)
	}

	if e.opts.Locker != nil {
		key := dst.Backend.Scheme() + "://" + dst.Info.Path
		if err := e.opts.Locker.Acquire(key); err != nil {
			return err
		}
		defer func() {
			if err := e.opts.Locker.Release(key); err != nil {
				log.Warn("failed to release destination lock", "error", err)
			}
		}()
	}
	return e.copyBig(ctx, src, dst, log)
}

// copySmall streams the whole file into a fresh destination
func (e *Engine) copySmall(ctx context.Context, src, dst Endpoint) error {
	if dst.Info.Exists {
		if err := dst.Backend.Delete(ctx, dst.Info.Path, false); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	if err := retry.Do(ctx, e.opts.CopyRetry, func(ctx context.Context) error {
		return dst.Backend.Touch(ctx, dst.Info.Path)
	}); err != nil {
		return err
	}

	return e.copyRange(ctx, rangeSpec{
		src:     src.Backend,
		srcPath: src.Info.Path,
		length:  src.Info.Size,
		dst:     dst.Backend,
		dstPath: dst.Info.Path,
		report: func(n int64) {
			e.opts.Reporter.Update(dst.Info.Path, n)
		},
	})
}

// copyBig copies src window by window into chunk side files, then merges them
func (e *Engine) copyBig(ctx context.Context, src, dst Endpoint, log logger.Logger) error {
	size, chunkSize := src.Info.Size, e.opts.ChunkSize
	count := ChunkCount(size, chunkSize)
	chunks := make([]string, count)

	for i := range count {
		chunk := ChunkPath(dst.Info.Path, i)
		chunks[i] = chunk
		offset, length := window(i, size, chunkSize)

		if err := e.prepareChunk(ctx, src, dst.Backend, chunk, length, log); err != nil {
			if errors.Is(err, errChunkDone) {
				e.opts.Reporter.Update(dst.Info.Path, offset+length)
				continue
			}
			return err
		}

		err := e.copyRange(ctx, rangeSpec{
			src:       src.Backend,
			srcPath:   src.Info.Path,
			srcOffset: offset,
			length:    length,
			dst:       dst.Backend,
			dstPath:   chunk,
			report: func(n int64) {
				e.opts.Reporter.Update(dst.Info.Path, offset+n)
			},
		})
		if err != nil {
			return err
		}
		log.Debug("chunk copied", "chunk", i, "of", count)
	}

	// concat appends onto the destination, so it must start empty
	existing, err := e.Describe(ctx, dst.Backend, dst.Info.Path)
	if err != nil {
		return err
	}
	if existing.Exists {
		if err := dst.Backend.Delete(ctx, dst.Info.Path, false); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}

	merged, err := e.concatChunkFiles(ctx, dst.Backend, dst.Info.Path, chunks, chunkSize)
	if err != nil {
		return err
	}
	if merged < count {
		return fmt.Errorf("%w: merged %d of %d chunks into %s", domain.ErrConcatFailed, merged, count, dst.Info.Path)
	}
	return nil
}

var errChunkDone = errors.New("chunk already complete")

// prepareChunk makes sure the chunk side file exists and can be appended to.
// It returns errChunkDone when the chunk is complete and current.
func (e *Engine) prepareChunk(ctx context.Context, src Endpoint, b adapter.Backend, chunk string, length int64, log logger.Logger) error {
	info, err := e.Describe(ctx, b, chunk)
	if err != nil {
		return err
	}

	if info.Exists {
		if info.Size > length {
			return fmt.Errorf("%w: %s has %d bytes, window is %d; remove it and retry",
				domain.ErrChunkOversize, chunk, info.Size, length)
		}
		current := !src.Info.ModTime.After(info.ModTime)
		if current && info.Size == length {
			log.Info("chunk up to date, skipping", "chunk", chunk)
			return errChunkDone
		}
		if current {
			// partial chunk from an earlier attempt; copyRange resumes it
			return nil
		}
		log.Info("source changed since chunk was written, restarting chunk", "chunk", chunk)
		if err := b.Delete(ctx, chunk, false); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}

	return retry.Do(ctx, e.opts.CopyRetry, func(ctx context.Context) error {
		return b.Touch(ctx, chunk)
	})
}

// rangeSpec describes bytes [srcOffset, srcOffset+length) of src landing
// at dstBase onwards in dst
type rangeSpec struct {
	src       adapter.Backend
	srcPath   string
	srcOffset int64
	length    int64

	dst     adapter.Backend
	dstPath string
	dstBase int64

	report func(done int64)
}

// copyRange streams a byte range in ReadBuffer pieces under the copy retry
// policy. Each attempt starts from the current destination length, so a
// retry never duplicates bytes that already landed.
func (e *Engine) copyRange(ctx context.Context, r rangeSpec) error {
	return retry.Do(ctx, e.opts.CopyRetry, func(ctx context.Context) error {
		info, err := r.dst.Stat(ctx, r.dstPath)
		if err != nil {
			return err
		}
		done := info.Size - r.dstBase
		if done < 0 || done > r.length {
			return fmt.Errorf("%w: %s has %d bytes, expected at most %d",
				domain.ErrIntegrity, r.dstPath, info.Size, r.dstBase+r.length)
		}

		for done < r.length {
			if err := ctx.Err(); err != nil {
				return err
			}
			want := min(e.opts.ReadBuffer, r.length-done)
			data, err := r.src.ReadRange(ctx, r.srcPath, r.srcOffset+done, want)
			if err != nil {
				return err
			}
			if len(data) == 0 {
				return fmt.Errorf("%w: %s ended at %d, expected %d bytes",
					domain.ErrIntegrity, r.srcPath, r.srcOffset+done, r.srcOffset+r.length)
			}
			if err := r.dst.Append(ctx, r.dstPath, data); err != nil {
				return err
			}
			done += int64(len(data))
			if r.report != nil {
				r.report(done)
			}
		}
		return nil
	})
}

// concatChunkFiles creates dst and merges the chunks into it in order.
// Backends without a concat primitive get the chunks appended one by one.
func (e *Engine) concatChunkFiles(ctx context.Context, b adapter.Backend, dst string, chunks []string, chunkSize int64) (int, error) {
	if err := retry.Do(ctx, e.opts.ConcatRetry, func(ctx context.Context) error {
		return b.Touch(ctx, dst)
	}); err != nil {
		return 0, err
	}

	merged, err := e.TryConcat(ctx, b, dst, chunks)
	if errors.Is(err, domain.ErrUnsupported) && merged == 0 {
		return e.appendChunks(ctx, b, dst, chunks, chunkSize)
	}
	return merged, err
}

// TryConcat merges chunks onto dst in groups of ConcatFanIn, in order.
// It stops at the first group that keeps failing with a backend or
// connection error and returns how many chunks were merged before it;
// the caller compares that with len(chunks). Other errors are returned.
func (e *Engine) TryConcat(ctx context.Context, b adapter.Backend, dst string, chunks []string) (int, error) {
	merged := 0
	for start := 0; start < len(chunks); start += e.opts.ConcatFanIn {
		group := chunks[start:min(start+e.opts.ConcatFanIn, len(chunks))]

		err := retry.Do(ctx, e.opts.ConcatRetry, func(ctx context.Context) error {
			return b.Concat(ctx, dst, group)
		})
		if err != nil {
			if domain.IsTransient(err) {
				e.log.Error("concat failed, stopping", "dst", dst, "merged", merged, "total", len(chunks), "error", err)
				return merged, nil
			}
			return merged, err
		}
		merged += len(group)
	}
	return merged, nil
}

// appendChunks is the merge for backends without concat: every chunk is
// streamed onto dst, then removed
func (e *Engine) appendChunks(ctx context.Context, b adapter.Backend, dst string, chunks []string, chunkSize int64) (int, error) {
	for i, chunk := range chunks {
		info, err := e.Describe(ctx, b, chunk)
		if err != nil {
			return i, err
		}
		err = e.copyRange(ctx, rangeSpec{
			src:     b,
			srcPath: chunk,
			length:  info.Size,
			dst:     b,
			dstPath: dst,
			dstBase: int64(i) * chunkSize,
		})
		if err != nil {
			if domain.IsTransient(err) {
				e.log.Error("chunk merge failed, stopping", "dst", dst, "merged", i, "error", err)
				return i, nil
			}
			return i, err
		}
		if err := b.Delete(ctx, chunk, false); err != nil {
			e.log.Warn("failed to remove merged chunk", "chunk", chunk, "error", err)
		}
	}
	return len(chunks), nil
}

// MoveFile moves src to dst. Within one backend this is a rename; across
// backends the source is copied and only deleted once the copy is verified.
func (e *Engine) MoveFile(ctx context.Context, src, dst Endpoint) (Result, error) {
	if !src.Info.Exists {
		return Result{}, fmt.Errorf("%w: %s", domain.ErrNotFound, src.Info.Path)
	}

	dst, err := e.redirect(ctx, src.Info, dst)
	if err != nil {
		return Result{}, err
	}
	if dst.Info.Exists && dst.Info.Type == src.Info.Type && dst.Info.Name == src.Info.Name {
		e.log.Info("destination already present, treating as moved", "src", src.Info.Path, "dst", dst.Info.Path)
		return Result{Dst: dst.Info, Skipped: true}, nil
	}

	if adapter.SameBackend(src.Backend, dst.Backend) {
		if err := src.Backend.Rename(ctx, src.Info.Path, dst.Info.Path); err != nil {
			return Result{}, err
		}
		e.log.Info("renamed", "src", src.Info.Path, "dst", dst.Info.Path)
		return Result{Dst: dst.Info, Bytes: src.Info.Size}, nil
	}

	var res Result
	if src.Info.IsDir() {
		report, err := e.CopyTree(ctx, src, dst, TreeOptions{Force: true})
		if err != nil {
			return Result{}, err
		}
		res = Result{Dst: dst.Info, Bytes: report.Bytes}
	} else {
		res, err = e.CopyFile(ctx, src, dst, true)
		if err != nil {
			return Result{}, err
		}
	}

	if err := src.Backend.Delete(ctx, src.Info.Path, src.Info.IsDir()); err != nil {
		return res, fmt.Errorf("copied to %s but could not remove source: %w", dst.Info.Path, err)
	}
	return res, nil
}
