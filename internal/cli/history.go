package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/ferry/internal/domain"
	"github.com/Ning0612/ferry/internal/history"
	"github.com/Ning0612/ferry/internal/progress"
)

// journaled lists the commands whose sessions are recorded
var journaled = map[string]bool{
	"cp": true,
	"mv": true,
	"rm": true,
}

func (a *app) historyPath() string {
	if a.cfg.History.File != "" {
		return a.cfg.History.File
	}
	return history.DefaultPath()
}

// record appends the finished session to the journal. Failures to record are
// logged and never change the exit code.
func (a *app) record() {
	if !a.ready || a.flags.DryRun || !a.cfg.History.Enabled || !journaled[a.command] {
		return
	}

	m, err := history.Open(a.historyPath())
	if err != nil {
		a.log.Warn("session not recorded", "error", err)
		return
	}
	defer m.Close()

	c := a.engine.Counters()
	session := history.Session{
		SessionID: a.sessionID,
		Command:   a.command,
		Args:      strings.Join(a.opts.Args, " "),
		StartTime: a.started,
		EndTime:   time.Now(),
		Status:    history.StatusFor(a.code, c.Files),
		ExitCode:  a.code,
		Files:     c.Files,
		Bytes:     c.BytesCopied,
		Error:     a.firstErr,
	}
	if err := m.Save(session); err != nil {
		a.log.Warn("session not recorded", "error", err)
		return
	}
	if keep := a.cfg.History.Keep; keep > 0 {
		if _, err := m.Prune(keep); err != nil {
			a.log.Warn("failed to prune history", "error", err)
		}
	}
}

func newHistoryCommand(a *app) *cobra.Command {
	var limit int
	var command string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent cp, mv and rm sessions",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("%w: --limit must be positive", domain.ErrInvalidArgument)
			}
			m, err := history.Open(a.historyPath())
			if err != nil {
				a.fail("history", a.historyPath(), err)
				return nil
			}
			defer m.Close()

			sessions, err := m.Recent(command, limit)
			if err != nil {
				a.fail("history", a.historyPath(), err)
				return nil
			}
			for _, s := range sessions {
				a.printf("%s  %-3s %-7s %3d %6d %10s  %s\n",
					s.StartTime.Local().Format("2006-01-02 15:04:05"),
					s.Command,
					s.Status,
					s.ExitCode,
					s.Files,
					progress.FormatBytes(s.Bytes),
					s.Args,
				)
				if s.Error != "" {
					a.printf("    %s\n", s.Error)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "number of sessions to show")
	cmd.Flags().StringVar(&command, "command", "", "only show sessions of this command")
	return cmd
}
