package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Ning0612/ferry/internal/domain"
)

func newLsCommand(a *app) *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "ls [-r] <path>...",
		Short: "List files and directories",
		Args:  minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				a.ls(cmd.Context(), arg, recursive)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "list subdirectories recursively")
	return cmd
}

func (a *app) ls(ctx context.Context, arg string, recursive bool) {
	ep, err := a.resolveExisting(ctx, arg)
	if err != nil {
		a.fail("ls", arg, err)
		return
	}
	if !ep.Info.IsDir() {
		a.printf("%s\n", formatEntry(ep.Info, a.display(ep, ep.Info.Path)))
		return
	}

	if !recursive {
		entries, err := ep.Backend.List(ctx, ep.Info.Path)
		if err != nil {
			a.fail("ls", arg, err)
			return
		}
		a.printEntries(entries)
		return
	}

	for step, err := range a.engine.Walk(ctx, ep.Backend, ep.Info.Path) {
		if err != nil {
			a.fail("ls", a.display(ep, step.Dir.Path), err)
			continue
		}
		a.printf("%s:\n", a.display(ep, step.Dir.Path))
		a.printEntries(append(step.Dirs, step.Files...))
		a.printf("\n")
	}
}

func (a *app) printEntries(entries []domain.FileInfo) {
	for _, entry := range entries {
		name := entry.Name
		if entry.IsDir() {
			name += "/"
		}
		a.printf("%s\n", formatEntry(entry, name))
	}
}
