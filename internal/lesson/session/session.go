// Package session activates one module at a time for a learner: it hydrates
// answers, derives the step plan, drives the stepper and wires the autosave
// and submit paths. Results of async work for a module that is no longer
// active are dropped.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/pai-lesson/internal/drafts"
	"github.com/p-n-ai/pai-lesson/internal/lesson/answers"
	"github.com/p-n-ai/pai-lesson/internal/lesson/autosave"
	"github.com/p-n-ai/pai-lesson/internal/lesson/plan"
	"github.com/p-n-ai/pai-lesson/internal/lesson/progress"
	"github.com/p-n-ai/pai-lesson/internal/lesson/schema"
	"github.com/p-n-ai/pai-lesson/internal/lesson/stepper"
	"github.com/p-n-ai/pai-lesson/internal/lesson/submission"
)

const storeTimeout = 2 * time.Second

// ErrClosed is returned when a session is used after another module was
// opened or the manager was closed.
var ErrClosed = errors.New("session no longer active")

// Module is everything needed to open a module.
type Module struct {
	Document schema.Document
	Record   *submission.Record // prior submission, nil if none
}

// Source fetches module definitions and prior submissions.
type Source interface {
	FetchModule(ctx context.Context, moduleID string) (schema.Document, error)
	FetchRecord(ctx context.Context, moduleID string) (*submission.Record, error)
}

// LoadModule fetches the document and the prior record concurrently. A
// missing or unreadable record is not an error.
func LoadModule(ctx context.Context, src Source, moduleID string) (Module, error) {
	var mod Module
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		doc, err := src.FetchModule(gctx, moduleID)
		if err != nil {
			return fmt.Errorf("fetching module %s: %w", moduleID, err)
		}
		mod.Document = doc
		return nil
	})
	g.Go(func() error {
		rec, err := src.FetchRecord(gctx, moduleID)
		switch {
		case errors.Is(err, submission.ErrNotFound):
		case err != nil:
			slog.Warn("fetching prior submission failed", "module_id", moduleID, "error", err)
		default:
			mod.Record = rec
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Module{}, err
	}
	if mod.Document.ModuleID == "" {
		mod.Document.ModuleID = moduleID
	}
	return mod, nil
}

// Config holds dependencies for a Manager.
type Config struct {
	Drafts          drafts.Store
	Remote          submission.Remote
	AutosaveDelay   time.Duration
	AutosaveTimeout time.Duration
	SubmitTimeout   time.Duration
	CompleteTimeout time.Duration
	Now             func() time.Time
}

// Manager owns the single active session of one learner.
type Manager struct {
	cfg     Config
	deriver plan.Deriver
	stepper *stepper.Stepper

	openMu sync.Mutex // serializes Open and Close

	mu  sync.Mutex
	gen uint64
	cur *Session
}

// NewManager creates a Manager.
func NewManager(cfg Config) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	m := &Manager{cfg: cfg}

	m.stepper = stepper.New(stepper.Config{
		Positions:       cfg.Drafts,
		Completer:       cfg.Remote,
		CompleteTimeout: cfg.CompleteTimeout,
	})
	return m
}

// Open activates mod, discarding the previous activation. Values are
// hydrated from the local draft, values resident from a previous activation
// of the same module, the prior record, then defaults.
func (m *Manager) Open(ctx context.Context, mod Module) *Session {
	m.openMu.Lock()
	defer m.openMu.Unlock()

	doc := mod.Document
	prev := m.detach()

	var resident answers.Values
	if prev != nil {
		prev.pipeline.Stop()
		if prev.doc.ModuleID == doc.ModuleID {
			resident = prev.store.Snapshot()
		} else {
			m.deriver.Reset()
		}
	}

	src := answers.Sources{Resident: resident}
	if mod.Record != nil {
		src.Server = mod.Record.Answers
	}
	if d, ok := m.loadDraft(ctx, doc.ModuleID); ok && draftWins(d, mod.Record) {
		src.Draft = d.Values
	}

	s := &Session{
		m:     m,
		doc:   doc,
		store: answers.NewStore(doc.Fields, src),
		plan:  m.deriver.Derive(doc.Fields, doc.Media()),
		life: submission.NewLifecycle(submission.LifecycleConfig{
			ModuleID: doc.ModuleID,
			Fields:   doc.Fields,
			Remote:   m.cfg.Remote,
			Prior:    mod.Record,
			Timeout:  m.cfg.SubmitTimeout,
		}),
	}
	s.pipeline = autosave.New(autosave.Config{
		ModuleID: doc.ModuleID,
		Drafts:   m.cfg.Drafts,
		Remote:   m.cfg.Remote,
		Delay:    m.cfg.AutosaveDelay,
		Timeout:  m.cfg.AutosaveTimeout,
		OnSaved:  s.autosaved,
		Now:      m.cfg.Now,
	})

	m.mu.Lock()
	m.gen++
	s.gen = m.gen
	m.cur = s
	m.mu.Unlock()

	m.stepper.Activate(ctx, doc.ModuleID, s.plan)

	slog.Info("module opened",
		"module_id", doc.ModuleID,
		"steps", s.plan.Len(),
		"fields", len(doc.InputFields()),
		"draft", src.Draft != nil,
	)
	return s
}

// Current returns the active session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// Close stops the active session and waits for its background work.
func (m *Manager) Close() {
	m.openMu.Lock()
	defer m.openMu.Unlock()

	if prev := m.detach(); prev != nil {
		prev.pipeline.Stop()
		prev.pipeline.Wait()
	}
	m.stepper.Wait()
}

func (m *Manager) detach() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.cur
	m.cur = nil
	m.gen++
	return prev
}

func (m *Manager) active(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur == s && m.gen == s.gen
}

func (m *Manager) loadDraft(ctx context.Context, moduleID string) (drafts.Draft, bool) {
	if m.cfg.Drafts == nil {
		return drafts.Draft{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	d, ok, err := m.cfg.Drafts.LoadDraft(ctx, moduleID)
	if err != nil {
		slog.Warn("loading local draft failed", "module_id", moduleID, "error", err)
		return drafts.Draft{}, false
	}
	return d, ok
}

func (m *Manager) saveDraft(moduleID string, values answers.Values) {
	if m.cfg.Drafts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	d := drafts.Draft{Values: values, SavedAt: m.cfg.Now().UTC()}
	if err := m.cfg.Drafts.SaveDraft(ctx, moduleID, d); err != nil {
		slog.Warn("saving local draft failed", "module_id", moduleID, "error", err)
	}
}

// draftWins applies last-write-wins between a local draft and the prior
// record. Drafts without a timestamp, or with no record to compare, win.
func draftWins(d drafts.Draft, rec *submission.Record) bool {
	if rec == nil || d.SavedAt.IsZero() || rec.UpdatedAt.IsZero() {
		return true
	}
	return !d.SavedAt.Before(rec.UpdatedAt)
}

// Session is one activation of a module.
type Session struct {
	m        *Manager
	gen      uint64
	doc      schema.Document
	store    *answers.Store
	life     *submission.Lifecycle
	pipeline *autosave.Pipeline

	mu             sync.Mutex
	plan           *plan.Plan
	submitComplete bool
}

// ModuleID returns the module this session is for.
func (s *Session) ModuleID() string {
	return s.doc.ModuleID
}

// Document returns the module document.
func (s *Session) Document() schema.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Active reports whether the session is still the manager's active one.
func (s *Session) Active() bool {
	return s.m.active(s)
}

// Plan returns the current step plan.
func (s *Session) Plan() *plan.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan
}

// Values returns a copy of the current answers.
func (s *Session) Values() answers.Values {
	return s.store.Snapshot()
}

// SetValue updates one field. A real change writes the local draft and
// re-arms autosave.
func (s *Session) SetValue(name string, value any) error {
	if !s.Active() {
		return ErrClosed
	}
	snapshot, changed, err := s.store.Set(name, value)
	if err != nil {
		return err
	}
	if changed {
		s.pipeline.Changed(snapshot)
	}
	return nil
}

// SetFields swaps in a new field list, re-deriving the plan and keeping the
// step index in range.
func (s *Session) SetFields(fields []schema.FieldDefinition) error {
	if !s.Active() {
		return ErrClosed
	}
	s.store.SetFields(fields)
	s.life.SetFields(fields)
	p := s.m.deriver.Derive(fields, s.doc.Media())

	s.mu.Lock()
	s.doc.Fields = fields
	s.plan = p
	s.mu.Unlock()

	s.m.stepper.SetPlan(p)
	return nil
}

// Submit runs the explicit submit. On success the returned answers replace
// the local ones and the draft is rewritten, unless the learner edited
// answers while the request was in flight: then the newer local values stay
// and only status and updatedAt are taken. A result arriving after the
// session was replaced is dropped and ErrClosed returned.
func (s *Session) Submit(ctx context.Context) (submission.Outcome, error) {
	if !s.Active() {
		return submission.Outcome{}, ErrClosed
	}
	sent := s.store.Snapshot()
	out, err := s.life.Submit(ctx, sent)
	if err != nil {
		return submission.Outcome{}, err
	}
	if !s.Active() {
		slog.Info("dropping submit result for inactive module", "module_id", s.doc.ModuleID)
		return out, ErrClosed
	}

	current, changed := s.store.ReplaceIfCurrent(sent, out.Answers)
	if current {
		s.pipeline.Settle(sent)
		if changed {
			s.m.saveDraft(s.doc.ModuleID, s.store.Snapshot())
		}
	} else {
		slog.Debug("answers edited during submit, keeping local values", "module_id", s.doc.ModuleID)
	}
	if out.CompleteOnSubmit {
		s.mu.Lock()
		s.submitComplete = true
		s.mu.Unlock()
	}
	return out, nil
}

// autosaved applies a background submit result. Only status and updatedAt
// are taken; answers stay as typed.
func (s *Session) autosaved(moduleID string, res submission.Result) {
	if moduleID != s.doc.ModuleID || !s.Active() {
		return
	}
	s.life.Apply(res)
}

// WaitAutosave blocks until the scheduled autosave, if any, has run.
func (s *Session) WaitAutosave() {
	s.pipeline.Wait()
}

// Status returns the submission review status.
func (s *Session) Status() submission.Status {
	return s.life.Status()
}

// UpdatedAt returns when the remote store last accepted answers.
func (s *Session) UpdatedAt() time.Time {
	return s.life.UpdatedAt()
}

// Progress returns module progress over assignment fields.
func (s *Session) Progress() progress.Progress {
	return progress.Module(s.Plan(), s.store.Snapshot())
}

// Sections returns per-section progress.
func (s *Session) Sections() []progress.SectionProgress {
	return progress.Sections(s.Plan(), s.store.Snapshot())
}

// Completed reports whether the module counts as complete locally: the
// learner reached the Complete step or a submit signalled completion.
func (s *Session) Completed() bool {
	s.mu.Lock()
	submitted := s.submitComplete
	s.mu.Unlock()
	return submitted || s.ViewingComplete()
}

// CourseProgress returns completed/total modules for the course progress bar.
// serverCompleted lists module IDs the server has confirmed complete.
func (s *Session) CourseProgress(serverCompleted []string, totalModules int) progress.Progress {
	confirmed := false
	for _, id := range serverCompleted {
		if id == s.doc.ModuleID {
			confirmed = true
			break
		}
	}
	return progress.Progress{
		Answered: progress.CompletedModules(len(serverCompleted), s.Completed(), confirmed),
		Total:    totalModules,
	}
}

// Next moves forward one step.
func (s *Session) Next() int {
	if !s.Active() {
		return 0
	}
	return s.m.stepper.Next()
}

// Prev moves back one step.
func (s *Session) Prev() int {
	if !s.Active() {
		return 0
	}
	return s.m.stepper.Prev()
}

// Goto jumps to step i.
func (s *Session) Goto(i int) int {
	if !s.Active() {
		return 0
	}
	return s.m.stepper.Goto(i)
}

// Navigator returns the command interface for step views.
func (s *Session) Navigator() stepper.Navigator {
	return navigator{s}
}

// ActiveIndex returns the 0-based active step.
func (s *Session) ActiveIndex() int {
	if !s.Active() {
		return 0
	}
	return s.m.stepper.Active()
}

// ActiveStep returns the active step.
func (s *Session) ActiveStep() (plan.Step, bool) {
	if !s.Active() {
		return plan.Step{}, false
	}
	return s.m.stepper.ActiveStep()
}

// Statuses returns the derived status of every step.
func (s *Session) Statuses() []stepper.Status {
	if !s.Active() {
		return nil
	}
	return s.m.stepper.Statuses()
}

// ViewingComplete reports whether the learner is on the Complete step.
func (s *Session) ViewingComplete() bool {
	return s.Active() && s.m.stepper.ViewingComplete()
}

type navigator struct{ s *Session }

func (n navigator) Advance()       { n.s.Next() }
func (n navigator) Retreat()       { n.s.Prev() }
func (n navigator) GotoStep(i int) { n.s.Goto(i) }
