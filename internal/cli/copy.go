package cli

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/ferry/internal/domain"
	"github.com/Ning0612/ferry/internal/progress"
	"github.com/Ning0612/ferry/internal/transfer"
)

func newCpCommand(a *app) *cobra.Command {
	var recursive, force bool

	cmd := &cobra.Command{
		Use:   "cp [-r] [-f] <src> <dst>",
		Short: "Copy a file or a directory tree",
		Long: `Copy a file or, with -r, a directory tree. An existing destination file is
kept unless -f is given. A source ending in * copies the contents of the
directory without creating the directory itself at the destination.`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cp(cmd.Context(), args[0], args[1], recursive, force)
			a.printCounters()
			return nil
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "copy directories recursively")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing files")
	return cmd
}

func (a *app) cp(ctx context.Context, srcArg, dstArg string, recursive, force bool) {
	srcArg, flatten := strings.CutSuffix(srcArg, "*")
	if flatten {
		srcArg = strings.TrimSuffix(srcArg, "/")
		if srcArg == "" {
			srcArg = "/"
		}
	}

	src, err := a.resolveExisting(ctx, srcArg)
	if err != nil {
		a.fail("cp", srcArg, err)
		return
	}
	dst, err := a.resolve(ctx, dstArg)
	if err != nil {
		a.fail("cp", dstArg, err)
		return
	}

	if !src.Info.IsDir() {
		res, err := a.engine.CopyFile(ctx, src, dst, force)
		a.reportCopy(src, dst, src.Info.Path, res, err)
		return
	}

	if !recursive {
		a.fail("cp", srcArg, fmt.Errorf("%w: %s is a directory (use -r)", domain.ErrInvalidArgument, srcArg))
		return
	}

	var reported atomic.Bool
	_, err = a.engine.CopyTree(ctx, src, dst, transfer.TreeOptions{
		Flatten:  flatten,
		Force:    force,
		Parallel: a.cfg.Transfer.Parallel,
		OnFile: func(p string, res transfer.Result, err error) {
			if err == nil {
				a.reportCopy(src, dst, p, res, nil)
			}
		},
		OnError: func(p string, err error) {
			reported.Store(true)
			a.fail("cp", a.display(src, p), err)
		},
	})
	if err != nil && !reported.Load() {
		a.fail("cp", srcArg, err)
	}
}

// reportCopy prints the outcome of one file copy
func (a *app) reportCopy(src, dst transfer.Endpoint, srcPath string, res transfer.Result, err error) {
	from := a.display(src, srcPath)
	if err != nil {
		a.fail("cp", from, err)
		return
	}
	to := a.display(dst, res.Dst.Path)
	switch {
	case res.Skipped:
		a.notef("ferry cp: %s exists, use -f to overwrite", to)
	case a.flags.DryRun:
		a.dryRunf("copy %s -> %s (%s)", from, to, progress.FormatBytes(res.Bytes))
	}
}

// printCounters prints the copy epilogue
func (a *app) printCounters() {
	c := a.engine.Counters()
	if c.Files == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintf(a.opts.Err, "copied %d file(s), %s in %s (%s)\n",
		c.Files,
		progress.FormatBytes(c.BytesCopied),
		c.CopyTime.Round(time.Millisecond),
		progress.FormatSpeed(c.Throughput()),
	)
}

func newMvCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mv <src> <dst>",
		Short: "Move or rename a file or directory",
		Long: `Move src to dst. Within one backend this is a rename. Across backends the
source is copied, verified and then deleted.`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.mv(cmd.Context(), args[0], args[1])
			a.printCounters()
			return nil
		},
	}
}

func (a *app) mv(ctx context.Context, srcArg, dstArg string) {
	src, err := a.resolveExisting(ctx, srcArg)
	if err != nil {
		a.fail("mv", srcArg, err)
		return
	}
	dst, err := a.resolve(ctx, dstArg)
	if err != nil {
		a.fail("mv", dstArg, err)
		return
	}

	res, err := a.engine.MoveFile(ctx, src, dst)
	if err != nil {
		a.fail("mv", srcArg, err)
		return
	}
	to := a.display(dst, res.Dst.Path)
	switch {
	case res.Skipped:
		a.notef("ferry mv: %s already present, nothing to do", to)
	case a.flags.DryRun:
		a.dryRunf("move %s -> %s", a.display(src, src.Info.Path), to)
	}
}
