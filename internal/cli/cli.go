// Package cli implements the ferry command line. Every command processes its
// arguments one by one, reports failures per path and keeps going; the exit
// code is the worst one seen.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Ning0612/ferry/internal/adapter"
	"github.com/Ning0612/ferry/internal/adapter/local"
	"github.com/Ning0612/ferry/internal/adapter/webhdfs"
	"github.com/Ning0612/ferry/internal/config"
	"github.com/Ning0612/ferry/internal/domain"
	"github.com/Ning0612/ferry/internal/lock"
	"github.com/Ning0612/ferry/internal/logger"
	"github.com/Ning0612/ferry/internal/progress"
	"github.com/Ning0612/ferry/internal/retry"
	"github.com/Ning0612/ferry/internal/transfer"
)

// Options configures one invocation
type Options struct {
	Args []string
	In   io.Reader
	Out  io.Writer
	Err  io.Writer

	// StorePath overrides the file written by `ferry config key=value`
	StorePath string

	// LockDir overrides the directory holding chunked copy locks
	LockDir string
}

// Execute runs ferry with the process arguments and returns the exit code
func Execute() int {
	return Run(context.Background(), Options{
		Args: os.Args[1:],
		In:   os.Stdin,
		Out:  os.Stdout,
		Err:  os.Stderr,
	})
}

// Run executes one command line and returns its exit code
func Run(ctx context.Context, opts Options) int {
	if opts.In == nil {
		opts.In = strings.NewReader("")
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Err == nil {
		opts.Err = io.Discard
	}

	a := &app{
		opts:  opts,
		in:    bufio.NewReader(opts.In),
		red:   color.New(color.FgRed),
		amber: color.New(color.FgYellow),
	}
	root := newRootCommand(a)
	root.SetArgs(opts.Args)
	root.SetIn(opts.In)
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)

	err := root.ExecuteContext(ctx)
	if err != nil {
		code := domain.WorstCode(err)
		if !a.ready && code == domain.ExitFailure {
			// flag, argument and unknown command errors from cobra
			code = domain.ExitInvalid
		}
		a.red.Fprintf(opts.Err, "ferry: %v\n", err)
		a.code = domain.Worst(a.code, code)
		a.noteError(err)
	}
	a.record()
	a.close()

	return a.code
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "ferry",
		Short: "Move and verify data between local disk and HDFS",
		Long: `ferry copies, moves, lists, hashes and deletes files on the local disk
and on an HDFS cluster reached over WebHDFS. Remote paths start with the
configured prefix (hdfs:// by default); anything else is a local path.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	})

	addGlobalFlags(root, &a.flags)

	root.AddCommand(
		newLsCommand(a),
		newCpCommand(a),
		newMvCommand(a),
		newRmCommand(a),
		newMkdirCommand(a),
		newTouchCommand(a),
		newStatCommand(a),
		newHashCommand(a),
		newConfigCommand(a),
		newHistoryCommand(a),
	)
	return root
}

// app is the state shared by the commands of one invocation
type app struct {
	opts  Options
	flags GlobalFlags
	in    *bufio.Reader

	cfg    *config.Config
	store  *config.Store
	log    logger.Logger
	router *adapter.Router
	engine *transfer.Engine

	ready      bool
	loggerUp   bool
	red, amber *color.Color

	// session bookkeeping for the history journal
	sessionID string
	command   string
	started   time.Time

	mu       sync.Mutex
	code     int
	firstErr string
}

// setup loads the configuration and builds the backends and the engine
func (a *app) setup(cmd *cobra.Command) error {
	storePath := a.opts.StorePath
	if storePath == "" {
		storePath = config.DefaultStorePath()
	}
	a.store = config.NewStore(storePath)

	cfg, err := config.LoadWithStore(a.flags.ConfigFile, a.store)
	if err != nil {
		return err
	}
	if a.flags.LogLevel != "" {
		cfg.Log.Level = a.flags.LogLevel
	}
	if a.flags.LogFormat != "" {
		cfg.Log.Format = a.flags.LogFormat
	}
	if a.flags.LogFile != "" {
		cfg.Log.File = config.ExpandPath(a.flags.LogFile)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logCfg := logger.Config{
		Level:   logger.ParseLevel(cfg.Log.Level),
		Format:  logger.ParseFormat(cfg.Log.Format),
		Console: a.opts.Err,
	}
	if cfg.Log.File != "" {
		logCfg.File = logger.FileConfig{
			Enabled:    true,
			Path:       cfg.Log.File,
			MaxSizeMB:  100,
			MaxAgeDays: 30,
			MaxBackups: 5,
			Compress:   true,
		}
	}
	if err := logger.Init(logCfg); err != nil {
		return err
	}
	a.loggerUp = true
	a.sessionID = uuid.NewString()
	a.command = cmd.Name()
	a.started = time.Now()
	a.log = logger.With("session", a.sessionID, "command", a.command)

	localBackend, err := local.New("/")
	if err != nil {
		return err
	}
	var wrap func(adapter.Backend) adapter.Backend
	if a.flags.DryRun {
		wrap = func(b adapter.Backend) adapter.Backend {
			return adapter.Simulate(b, a.log)
		}
	}
	a.router = adapter.NewRouter(localBackend, cfg.Remote.Prefix, a.remoteBackend, wrap)

	t := cfg.Transfer
	opts := transfer.Options{
		ChunkSize:     t.ChunkSize,
		ReadBuffer:    t.ReadBuffer,
		ConcatFanIn:   t.ConcatFanIn,
		DescribeRetry: policy("describe", t.Retry.Describe),
		CopyRetry:     policy("chunk-copy", t.Retry.ChunkCopy),
		ConcatRetry:   policy("concat", t.Retry.Concat),
		DryRun:        a.flags.DryRun,
		Reporter:      a.reporter(),
		Logger:        a.log,
	}
	if locker, err := lock.NewFileLock(a.opts.LockDir); err != nil {
		a.log.Warn("chunked copies will run without a destination lock", "error", err)
	} else {
		opts.Locker = locker
	}
	a.engine = transfer.New(opts)

	a.log.Debug("session started", "args", a.opts.Args, "dry_run", a.flags.DryRun)
	a.ready = true
	return nil
}

// remoteBackend builds the WebHDFS backend on first use
func (a *app) remoteBackend() (adapter.Backend, error) {
	r := a.cfg.Remote
	if r.Host == "" {
		return nil, fmt.Errorf("%w: remote.host is not set (ferry config remote.host=<namenode>)", domain.ErrInvalidArgument)
	}
	user := r.User
	if user == "" {
		user = os.Getenv("USER")
	}

	client, err := webhdfs.NewClient(webhdfs.Options{
		Host:    r.Host,
		Port:    r.Port,
		User:    user,
		UseTLS:  r.TLS,
		Timeout: r.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	a.log.Debug("remote backend ready", "host", r.Host, "port", r.Port, "user", user, "root", r.Root)
	return webhdfs.New(client, r.Root)
}

// reporter returns a terminal bar when stderr is a terminal. Otherwise
// progress goes to the log.
func (a *app) reporter() progress.Reporter {
	if a.flags.NoProgress || a.flags.DryRun {
		return progress.NullReporter{}
	}
	f, ok := a.opts.Err.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return progress.NewCallbackReporter(a.logProgress)
	}
	return progress.NewBarReporter(f)
}

func (a *app) logProgress(u progress.Update) {
	switch u.Type {
	case progress.UpdateProgress:
		a.log.Debug("transfer progress",
			"path", u.CurrentFile,
			"bytes", u.CurrentBytes,
			"total", u.CurrentTotal,
			"speed", progress.FormatSpeed(u.BytesPerSecond),
		)
	case progress.UpdateComplete:
		a.log.Info("transfer complete", "path", u.CurrentFile, "bytes", u.CurrentTotal, "files_done", u.FilesCompleted)
	case progress.UpdateError:
		a.log.Warn("transfer failed", "path", u.CurrentFile, "error", u.Error)
	}
}

func (a *app) close() {
	if a.router != nil {
		if err := a.router.Close(); err != nil {
			a.log.Warn("failed to close backends", "error", err)
		}
	}
	if a.loggerUp {
		logger.Shutdown()
	}
}

func policy(name string, p config.RetryPolicy) retry.Policy {
	return retry.Policy{
		Name:     name,
		Attempts: p.Attempts,
		Delay:    p.Delay,
		Backoff:  p.Backoff,
	}
}

// fail reports one failed path and folds its exit code into the session
func (a *app) fail(cmd, target string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.code = domain.Worst(a.code, domain.WorstCode(err))
	if a.firstErr == "" {
		a.firstErr = fmt.Sprintf("%s: %v", target, err)
	}
	a.red.Fprintf(a.opts.Err, "ferry %s: %s: %v\n", cmd, target, err)
	a.log.Debug("command failed", "path", target, "error", err)
}

func (a *app) noteError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.firstErr == "" {
		a.firstErr = err.Error()
	}
}

// notef prints a warning that does not change the exit code
func (a *app) notef(format string, args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.amber.Fprintf(a.opts.Err, format+"\n", args...)
}

// printf writes command output
func (a *app) printf(format string, args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintf(a.opts.Out, format, args...)
}

// dryRunf prints the action a dry run skipped
func (a *app) dryRunf(format string, args ...any) {
	a.printf("[dry-run] "+format+"\n", args...)
}

// resolve maps an argument to its backend and descriptor
func (a *app) resolve(ctx context.Context, arg string) (transfer.Endpoint, error) {
	b, p, err := a.router.Resolve(arg)
	if err != nil {
		return transfer.Endpoint{}, err
	}
	info, err := a.engine.Describe(ctx, b, p)
	if err != nil {
		return transfer.Endpoint{}, err
	}
	return transfer.Endpoint{Backend: b, Info: info}, nil
}

// resolveExisting is resolve for arguments that must exist
func (a *app) resolveExisting(ctx context.Context, arg string) (transfer.Endpoint, error) {
	ep, err := a.resolve(ctx, arg)
	if err != nil {
		return ep, err
	}
	if !ep.Info.Exists {
		return ep, fmt.Errorf("%w: %s", domain.ErrNotFound, arg)
	}
	return ep, nil
}

func (a *app) display(ep transfer.Endpoint, p string) string {
	return a.router.Display(ep.Backend, p)
}

// confirm asks a yes/no question on stderr; anything but y or yes is no
func (a *app) confirm(question string) bool {
	a.mu.Lock()
	fmt.Fprintf(a.opts.Err, "%s [y/N] ", question)
	a.mu.Unlock()

	answer, err := a.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("%w: %s takes exactly %d arguments, got %d", domain.ErrInvalidArgument, cmd.Name(), n, len(args))
		}
		return nil
	}
}

func minArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < n {
			return fmt.Errorf("%w: %s needs at least %d argument(s)", domain.ErrInvalidArgument, cmd.Name(), n)
		}
		return nil
	}
}
