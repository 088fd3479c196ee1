package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ning0612/ferry/internal/domain"
)

func newRmCommand(a *app) *cobra.Command {
	var recursive, force bool

	cmd := &cobra.Command{
		Use:   "rm [-r] [-f] <path>...",
		Short: "Delete files and directories",
		Long: `Delete files and directories. A non-empty directory needs -r, and is only
removed after confirmation unless -f is given. With -f missing paths are
ignored.`,
		Args: minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				a.rm(cmd.Context(), arg, recursive, force)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "remove directories and their contents")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "never prompt, ignore missing paths")
	return cmd
}

func (a *app) rm(ctx context.Context, arg string, recursive, force bool) {
	ep, err := a.resolve(ctx, arg)
	if err != nil {
		a.fail("rm", arg, err)
		return
	}
	if !ep.Info.Exists {
		if !force {
			a.fail("rm", arg, fmt.Errorf("%w: %s", domain.ErrNotFound, arg))
		}
		return
	}

	dir := ep.Info.IsDir()
	if dir && recursive && !force && ep.Info.ChildCount > 0 && !a.flags.DryRun {
		question := fmt.Sprintf("remove %s and everything under it?", a.display(ep, ep.Info.Path))
		if !a.confirm(question) {
			a.notef("ferry rm: %s kept", arg)
			return
		}
	}

	if err := ep.Backend.Delete(ctx, ep.Info.Path, dir && recursive); err != nil {
		a.fail("rm", arg, err)
		return
	}
	if a.flags.DryRun {
		a.dryRunf("delete %s", a.display(ep, ep.Info.Path))
		return
	}

	after, err := a.engine.Describe(ctx, ep.Backend, ep.Info.Path)
	if err != nil {
		a.fail("rm", arg, err)
		return
	}
	if after.Exists {
		a.fail("rm", arg, fmt.Errorf("%w: %s is still listed after delete", domain.ErrIntegrity, arg))
	}
}

func newMkdirCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>...",
		Short: "Create directories, including missing parents",
		Args:  minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				a.mkdir(cmd.Context(), arg)
			}
			return nil
		},
	}
}

func (a *app) mkdir(ctx context.Context, arg string) {
	ep, err := a.resolve(ctx, arg)
	if err != nil {
		a.fail("mkdir", arg, err)
		return
	}
	if ep.Info.Exists {
		if !ep.Info.IsDir() {
			a.fail("mkdir", arg, fmt.Errorf("%w: %s exists and is not a directory", domain.ErrInvalidArgument, arg))
		}
		return
	}

	if err := ep.Backend.Mkdir(ctx, ep.Info.Path); err != nil {
		a.fail("mkdir", arg, err)
		return
	}
	if a.flags.DryRun {
		a.dryRunf("create %s", a.display(ep, ep.Info.Path))
		return
	}

	after, err := a.engine.Describe(ctx, ep.Backend, ep.Info.Path)
	if err != nil {
		a.fail("mkdir", arg, err)
		return
	}
	if !after.Exists || !after.IsDir() {
		a.fail("mkdir", arg, fmt.Errorf("%w: %s is not listed after mkdir", domain.ErrIntegrity, arg))
	}
}

func newTouchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "touch <path>...",
		Short: "Create empty files or update their modification time",
		Args:  minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				a.touch(cmd.Context(), arg)
			}
			return nil
		},
	}
}

func (a *app) touch(ctx context.Context, arg string) {
	ep, err := a.resolve(ctx, arg)
	if err != nil {
		a.fail("touch", arg, err)
		return
	}
	if ep.Info.IsDir() {
		a.fail("touch", arg, fmt.Errorf("%w: %s", domain.ErrIsDirectory, arg))
		return
	}
	if err := ep.Backend.Touch(ctx, ep.Info.Path); err != nil {
		a.fail("touch", arg, err)
		return
	}
	if a.flags.DryRun {
		a.dryRunf("touch %s", a.display(ep, ep.Info.Path))
	}
}

func newStatCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>...",
		Short: "Show everything known about a path",
		Args:  minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for i, arg := range args {
				if i > 0 {
					a.printf("\n")
				}
				ep, err := a.resolveExisting(cmd.Context(), arg)
				if err != nil {
					a.fail("stat", arg, err)
					continue
				}
				a.printf("%s", formatStat(ep.Info, a.display(ep, ep.Info.Path)))
			}
			return nil
		},
	}
}
