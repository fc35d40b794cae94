// Command lessonctl works through a module from the terminal: it walks the
// step plan, edits answers with local drafts and autosave, and submits.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-lesson/internal/drafts"
	"github.com/p-n-ai/pai-lesson/internal/lesson/session"
	"github.com/p-n-ai/pai-lesson/internal/lesson/stepper"
	"github.com/p-n-ai/pai-lesson/internal/lesson/submission"
	"github.com/p-n-ai/pai-lesson/internal/platform/config"
	"github.com/p-n-ai/pai-lesson/internal/platform/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// options holds the global flags.
type options struct {
	remoteURL     string
	userID        string
	draftPath     string
	logLevel      string
	autosaveDelay time.Duration
}

// app is the per-invocation wiring shared by subcommands.
type app struct {
	out     io.Writer
	cfg     *config.Config
	client  *submission.Client
	store   *drafts.SQLiteStore
	manager *session.Manager
	renders *stepper.RenderCache[string]
}

func (a *app) close() {
	if a.manager != nil {
		a.manager.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Warn("closing draft store failed", "error", err)
		}
	}
}

// moduleRun adapts fn into a RunE that opens the module named by args[0]
// and releases everything once fn returns.
func (a *app) moduleRun(fn func(cmd *cobra.Command, s *session.Session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer a.close()

		ctx := cmd.Context()
		mod, err := session.LoadModule(ctx, a.client, args[0])
		if err != nil {
			return fmt.Errorf("loading module %s: %w", args[0], err)
		}
		return fn(cmd, a.manager.Open(ctx, mod), args[1:])
	}
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	cfg, err := config.Load()
	if err != nil {
		cfg = &config.Config{}
	}

	opts := &options{
		remoteURL:     cfg.Client.RemoteURL,
		userID:        cfg.Client.UserID,
		draftPath:     cfg.Client.DraftPath,
		logLevel:      "warn",
		autosaveDelay: cfg.Lesson.AutosaveDebounce,
	}
	a := &app{out: out, cfg: cfg, renders: stepper.NewRenderCache[string]()}

	root := &cobra.Command{
		Use:           "lessonctl",
		Short:         "Work through lesson modules from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.Setup(errOut, config.LogConfig{Level: opts.logLevel, Format: "text"})
			if opts.userID == "" {
				return fmt.Errorf("no learner set: use --user or LEARN_USER_ID")
			}
			return a.connect(opts)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.remoteURL, "remote", opts.remoteURL, "lesson server URL")
	flags.StringVar(&opts.userID, "user", opts.userID, "learner ID sent as X-User-ID")
	flags.StringVar(&opts.draftPath, "drafts", opts.draftPath, "local draft database")
	flags.StringVar(&opts.logLevel, "log-level", opts.logLevel, "log level (debug, info, warn, error)")
	flags.DurationVar(&opts.autosaveDelay, "autosave-delay", opts.autosaveDelay, "quiet period before answers are sent")

	root.AddCommand(
		newPlanCmd(a),
		newShowCmd(a),
		newMoveCmd(a, "next", "Move to the next step", func(s *session.Session, _ []string) (int, error) { return s.Next(), nil }),
		newMoveCmd(a, "prev", "Move to the previous step", func(s *session.Session, _ []string) (int, error) { return s.Prev(), nil }),
		newGotoCmd(a),
		newSetCmd(a),
		newSubmitCmd(a),
		newStatusCmd(a),
	)

	if err != nil {
		root.PrintErrln("warning:", err)
	}
	return root
}

func (a *app) connect(opts *options) error {
	store, err := drafts.OpenSQLite(opts.draftPath)
	if err != nil {
		return err
	}
	a.store = store

	a.client = submission.NewClient(opts.remoteURL, submission.WithUserID(opts.userID))
	a.manager = session.NewManager(session.Config{
		Drafts:          store,
		Remote:          a.client,
		AutosaveDelay:   opts.autosaveDelay,
		AutosaveTimeout: a.cfg.Lesson.AutosaveTimeout,
		SubmitTimeout:   a.cfg.Lesson.SubmitTimeout,
		CompleteTimeout: a.cfg.Lesson.CompleteTimeout,
	})
	return nil
}
