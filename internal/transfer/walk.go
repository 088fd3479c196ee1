package transfer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/Ning0612/ferry/internal/adapter"
	"github.com/Ning0612/ferry/internal/domain"
)

// WalkStep is one directory visited by Walk
type WalkStep struct {
	Dir   domain.FileInfo
	Dirs  []domain.FileInfo
	Files []domain.FileInfo
}

// Walk traverses the tree under root breadth first. The sequence is lazy and
// single use; ranging over it again walks the tree again.
//
// A failure on the root ends the walk. A subdirectory that cannot be listed
// is yielded with its error and skipped; unauthorized ones are also recorded
// in Skipped.
func (e *Engine) Walk(ctx context.Context, b adapter.Backend, root string) iter.Seq2[WalkStep, error] {
	return func(yield func(WalkStep, error) bool) {
		info, err := e.Describe(ctx, b, root)
		if err != nil {
			yield(WalkStep{Dir: domain.Missing(root)}, err)
			return
		}
		if !info.Exists {
			yield(WalkStep{Dir: info}, fmt.Errorf("%w: %s", domain.ErrNotFound, root))
			return
		}
		if !info.IsDir() {
			yield(WalkStep{Dir: info, Files: []domain.FileInfo{info}}, nil)
			return
		}

		queue := []domain.FileInfo{info}
		for len(queue) > 0 {
			if err := ctx.Err(); err != nil {
				yield(WalkStep{}, err)
				return
			}

			dir := queue[0]
			queue = queue[1:]

			entries, err := b.List(ctx, dir.Path)
			if err != nil {
				if dir.Path == info.Path {
					yield(WalkStep{Dir: dir}, err)
					return
				}
				if errors.Is(err, domain.ErrUnauthorized) {
					e.log.Warn("skipping unreadable directory", "path", dir.Path, "error", err)
					e.skip(dir.Path)
				}
				if !yield(WalkStep{Dir: dir}, err) {
					return
				}
				continue
			}

			step := WalkStep{Dir: dir}
			for _, entry := range entries {
				if entry.IsDir() {
					step.Dirs = append(step.Dirs, entry)
				} else {
					step.Files = append(step.Files, entry)
				}
			}
			if !yield(step, nil) {
				return
			}
			queue = append(queue, step.Dirs...)
		}
	}
}

// TreeOptions configures CopyTree
type TreeOptions struct {
	// Flatten copies the contents of the source directory, not the directory itself
	Flatten bool
	// Force overwrites existing destination files
	Force bool
	// Parallel is the number of files of one directory copied at once
	Parallel int
	// OnFile is called after every file, successful or not
	OnFile func(src string, res Result, err error)
	// OnError is called for every file or directory that failed, with the
	// source path it failed on
	OnError func(path string, err error)
}

// TreeReport summarizes a tree copy
type TreeReport struct {
	Dirs    int
	Files   int
	Skipped int
	Bytes   int64
}

// CopyTree copies the directory src into dst while walking it. Every
// destination directory is created before the first file inside it is
// copied, and files are copied as soon as their directory is listed.
//
// Failures on single files or subdirectories do not stop the copy; they are
// returned joined once the walk is done.
func (e *Engine) CopyTree(ctx context.Context, src, dst Endpoint, opts TreeOptions) (TreeReport, error) {
	var report TreeReport
	if !src.Info.Exists {
		return report, fmt.Errorf("%w: %s", domain.ErrNotFound, src.Info.Path)
	}
	if !src.Info.IsDir() {
		res, err := e.CopyFile(ctx, src, dst, opts.Force)
		if opts.OnFile != nil {
			opts.OnFile(src.Info.Path, res, err)
		}
		if err == nil {
			report.Files, report.Bytes = 1, res.Bytes
			if res.Skipped {
				report.Files, report.Skipped, report.Bytes = 0, 1, 0
			}
		}
		return report, err
	}

	target := dst.Info.Path
	if dst.Info.Exists && !dst.Info.IsDir() {
		return report, fmt.Errorf("%w: %s exists and is not a directory", domain.ErrInvalidArgument, target)
	}
	if dst.Info.Exists && !opts.Flatten {
		var err error
		if target, err = Join(target, src.Info.Name); err != nil {
			return report, err
		}
	}
	if adapter.SameBackend(src.Backend, dst.Backend) && within(src.Info.Path, target) {
		return report, fmt.Errorf("%w: cannot copy %s into itself", domain.ErrInvalidArgument, src.Info.Path)
	}

	var mu sync.Mutex
	var errs []error
	fail := func(p string, err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
		if opts.OnError != nil {
			opts.OnError(p, err)
		}
	}

	for step, err := range e.Walk(ctx, src.Backend, src.Info.Path) {
		if err != nil {
			if step.Dir.Path == src.Info.Path || errors.Is(err, context.Canceled) {
				return report, err
			}
			fail(step.Dir.Path, err)
			continue
		}

		dstDir, err := Join(target, relPath(src.Info.Path, step.Dir.Path))
		if err != nil {
			fail(step.Dir.Path, err)
			continue
		}
		if err := dst.Backend.Mkdir(ctx, dstDir); err != nil {
			fail(step.Dir.Path, fmt.Errorf("create %s: %w", dstDir, err))
			continue
		}
		report.Dirs++

		e.copyFiles(ctx, step.Files, dst.Backend, dstDir, src.Backend, opts, &mu, &report, fail)
	}

	return report, errors.Join(errs...)
}

// copyFiles copies the files of one directory, up to opts.Parallel at a time.
// Chunks of a single file are always copied in order by one goroutine.
func (e *Engine) copyFiles(ctx context.Context, files []domain.FileInfo, dstBackend adapter.Backend, dstDir string,
	srcBackend adapter.Backend, opts TreeOptions, mu *sync.Mutex, report *TreeReport, fail func(string, error)) {

	workers := max(opts.Parallel, 1)
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, file := range files {
		if IsChunkPath(file.Path) {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(file domain.FileInfo) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := e.copyInto(ctx, file, srcBackend, dstBackend, dstDir, opts.Force)
			if opts.OnFile != nil {
				opts.OnFile(file.Path, res, err)
			}
			if err != nil {
				fail(file.Path, err)
				return
			}

			mu.Lock()
			defer mu.Unlock()
			if res.Skipped {
				report.Skipped++
				return
			}
			report.Files++
			report.Bytes += res.Bytes
		}(file)
	}
	wg.Wait()
}

func (e *Engine) copyInto(ctx context.Context, file domain.FileInfo, srcBackend, dstBackend adapter.Backend, dstDir string, force bool) (Result, error) {
	dstPath, err := Join(dstDir, file.Name)
	if err != nil {
		return Result{}, err
	}
	dstInfo, err := e.Describe(ctx, dstBackend, dstPath)
	if err != nil {
		return Result{}, err
	}
	return e.CopyFile(ctx,
		Endpoint{Backend: srcBackend, Info: file},
		Endpoint{Backend: dstBackend, Info: dstInfo},
		force,
	)
}

// within reports whether p is root or lies below it
func within(root, p string) bool {
	root, p = domain.CleanPath(root), domain.CleanPath(p)
	return p == root || strings.HasPrefix(p, strings.TrimSuffix(root, "/")+"/")
}
