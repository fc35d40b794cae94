package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-lesson/internal/lesson/answers"
	"github.com/p-n-ai/pai-lesson/internal/lesson/session"
	"github.com/p-n-ai/pai-lesson/internal/lesson/submission"
)

func newPlanCmd(a *app) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "plan MODULE",
		Short: "List the steps of a module with their status",
		Args:  cobra.ExactArgs(1),
		RunE: a.moduleRun(func(cmd *cobra.Command, s *session.Session, _ []string) error {
			p := s.Plan()
			doc := s.Document()
			values := s.Values()
			statuses := s.Statuses()

			fmt.Fprintf(a.out, "%s (%s)\n", doc.Title, doc.ModuleID)
			for i, st := range p.Steps {
				fmt.Fprintf(a.out, "%s %d. %s\n", statusMarks[statuses[i]], st.Index, stepTitle(p, st))
				if verbose {
					body := a.renders.Get(doc.ModuleID, st.ID(), func() string {
						return renderStep(doc, p, st, values)
					})
					fmt.Fprint(a.out, indent(body))
				}
			}
			printProgress(a, s)
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every step's content")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show MODULE",
		Short: "Show the active step",
		Args:  cobra.ExactArgs(1),
		RunE: a.moduleRun(func(cmd *cobra.Command, s *session.Session, _ []string) error {
			printActive(a, s)
			return nil
		}),
	}
}

func newMoveCmd(a *app, use, short string, move func(*session.Session, []string) (int, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " MODULE",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: a.moduleRun(func(cmd *cobra.Command, s *session.Session, args []string) error {
			if _, err := move(s, args); err != nil {
				return err
			}
			printActive(a, s)
			return nil
		}),
	}
}

func newGotoCmd(a *app) *cobra.Command {
	cmd := newMoveCmd(a, "goto", "Jump to a step by its number", func(s *session.Session, args []string) (int, error) {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return 0, fmt.Errorf("step number %q: %w", args[0], err)
		}
		return s.Goto(n - 1), nil
	})
	cmd.Use = "goto MODULE STEP"
	cmd.Args = cobra.ExactArgs(2)
	return cmd
}

func newSetCmd(a *app) *cobra.Command {
	var noWait bool
	cmd := &cobra.Command{
		Use:   "set MODULE FIELD=VALUE...",
		Short: "Update answers; they are saved locally and sent after the autosave delay",
		Long: `Update one or more answers. Lists take comma-separated values.

Answers are written to the local draft immediately. Unless --no-wait is given,
the command waits for the autosave to reach the server.`,
		Args: cobra.MinimumNArgs(2),
		RunE: a.moduleRun(func(cmd *cobra.Command, s *session.Session, args []string) error {
			fields := make(map[string]int)
			doc := s.Document()
			for i, f := range doc.Fields {
				fields[f.Name] = i
			}

			for _, arg := range args {
				name, raw, ok := strings.Cut(arg, "=")
				if !ok {
					return fmt.Errorf("expected FIELD=VALUE, got %q", arg)
				}
				i, known := fields[name]
				if !known {
					return fmt.Errorf("%w: %s", answers.ErrUnknownField, name)
				}
				if err := s.SetValue(name, parseValue(doc.Fields[i], raw)); err != nil {
					return err
				}
			}
			fmt.Fprintln(a.out, "Saved locally.")

			if !noWait {
				s.WaitAutosave()
				fmt.Fprintf(a.out, "Autosaved: %s\n", s.Status())
			}
			printProgress(a, s)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "exit without waiting for autosave")
	return cmd
}

func newSubmitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "submit MODULE",
		Short: "Submit the module assignment",
		Args:  cobra.ExactArgs(1),
		RunE: a.moduleRun(func(cmd *cobra.Command, s *session.Session, _ []string) error {
			out, err := s.Submit(cmd.Context())
			var uerr *submission.UserError
			if errors.As(err, &uerr) {
				fmt.Fprintln(a.out, uerr.Message)
				for _, label := range uerr.Missing {
					fmt.Fprintf(a.out, "  missing: %s\n", label)
				}
				return errors.New("submission not accepted")
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Submitted: %s at %s\n", out.Status, out.UpdatedAt.Format("2006-01-02 15:04"))
			if out.CompleteOnSubmit {
				fmt.Fprintln(a.out, "Module complete.")
			}
			return nil
		}),
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status MODULE",
		Short: "Show submission status and progress per section",
		Args:  cobra.ExactArgs(1),
		RunE: a.moduleRun(func(cmd *cobra.Command, s *session.Session, _ []string) error {
			fmt.Fprintf(a.out, "Status: %s\n", s.Status())
			if at := s.UpdatedAt(); !at.IsZero() {
				fmt.Fprintf(a.out, "Updated: %s\n", at.Format("2006-01-02 15:04"))
			}
			for _, sec := range s.Sections() {
				title := sec.Title
				if title == "" {
					title = sec.SectionID
				}
				fmt.Fprintf(a.out, "  %s: %d/%d\n", title, sec.Progress.Answered, sec.Progress.Total)
			}
			printProgress(a, s)
			return nil
		}),
	}
}

func printActive(a *app, s *session.Session) {
	st, ok := s.ActiveStep()
	if !ok {
		return
	}
	p := s.Plan()
	doc := s.Document()
	fmt.Fprintf(a.out, "Step %d of %d: %s\n", st.Index, p.Len(), stepTitle(p, st))
	fmt.Fprint(a.out, renderStep(doc, p, st, s.Values()))
}

func printProgress(a *app, s *session.Session) {
	pr := s.Progress()
	fmt.Fprintf(a.out, "Progress: %d/%d answered (%.0f%%)\n", pr.Answered, pr.Total, pr.Percent())
}

func indent(s string) string {
	if s == "" {
		return ""
	}
	lines := strings.SplitAfter(s, "\n")
	var b strings.Builder
	for _, l := range lines {
		if l == "" {
			continue
		}
		b.WriteString("    ")
		b.WriteString(l)
	}
	return b.String()
}
