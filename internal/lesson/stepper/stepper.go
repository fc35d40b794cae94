// Package stepper tracks the learner's position in a module's step plan and
// fires the one-shot completion call when the Complete step is reached.
package stepper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/p-n-ai/pai-lesson/internal/lesson/plan"
)

const defaultCompleteTimeout = 10 * time.Second

// Status is the derived state of one step.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
)

// StatusAt derives the status of step i given the active index and the
// number of steps. The last step is complete as soon as it is active.
func StatusAt(i, active, n int) Status {
	switch {
	case i < active:
		return StatusComplete
	case i == active && i == n-1:
		return StatusComplete
	case i == active:
		return StatusInProgress
	default:
		return StatusNotStarted
	}
}

// Navigator is the command interface handed to step views.
type Navigator interface {
	Advance()
	Retreat()
	GotoStep(i int)
}

// PositionStore remembers the active step per module. Implementations are
// best-effort: errors are logged, never surfaced.
type PositionStore interface {
	LoadPosition(ctx context.Context, moduleID string) (int, bool, error)
	SavePosition(ctx context.Context, moduleID string, index int) error
}

// Completer marks a module complete on the remote store. Calls must be safe
// to repeat server-side.
type Completer interface {
	MarkModuleComplete(ctx context.Context, moduleID string) error
}

// Config holds dependencies for a Stepper.
type Config struct {
	Positions       PositionStore
	Completer       Completer
	CompleteTimeout time.Duration                      // default 10s
	OnComplete      func(moduleID string, err error) // called after the completion call returns
}

// Stepper is the step state machine for the active module.
type Stepper struct {
	positions  PositionStore
	completer  Completer
	timeout    time.Duration
	onComplete func(string, error)

	mu       sync.Mutex
	moduleID string
	plan     *plan.Plan
	active   int
	guard    CompletionGuard
	inflight sync.WaitGroup
}

// New creates a Stepper.
func New(cfg Config) *Stepper {
	timeout := cfg.CompleteTimeout
	if timeout == 0 {
		timeout = defaultCompleteTimeout
	}
	return &Stepper{
		positions:  cfg.Positions,
		completer:  cfg.Completer,
		timeout:    timeout,
		onComplete: cfg.OnComplete,
	}
}

// Activate switches to moduleID with plan p and restores the remembered step,
// bounded to the plan length. The completion guard resets only when the
// module identity changes.
func (s *Stepper) Activate(ctx context.Context, moduleID string, p *plan.Plan) {
	index := 0
	if s.positions != nil {
		stored, ok, err := s.positions.LoadPosition(ctx, moduleID)
		if err != nil {
			slog.Warn("loading step position failed", "module_id", moduleID, "error", err)
		} else if ok {
			index = stored
		}
	}

	s.mu.Lock()
	s.guard.Reset(moduleID)
	s.moduleID = moduleID
	s.plan = p
	s.active = clamp(index, p.Len())
	fire := s.enteredCompleteLocked()
	s.mu.Unlock()

	if fire {
		s.markComplete(moduleID)
	}
}

// SetPlan swaps in a re-derived plan for the same module, keeping the active
// index within range.
func (s *Stepper) SetPlan(p *plan.Plan) {
	s.mu.Lock()
	s.plan = p
	s.active = clamp(s.active, p.Len())
	s.mu.Unlock()
}

// Next moves one step forward.
func (s *Stepper) Next() int {
	return s.move(func(cur int) int { return cur + 1 })
}

// Prev moves one step back.
func (s *Stepper) Prev() int {
	return s.move(func(cur int) int { return cur - 1 })
}

// Goto moves to step i (0-based). Out-of-range targets are clamped.
func (s *Stepper) Goto(i int) int {
	return s.move(func(int) int { return i })
}

// Advance implements Navigator.
func (s *Stepper) Advance() { s.Next() }

// Retreat implements Navigator.
func (s *Stepper) Retreat() { s.Prev() }

// GotoStep implements Navigator.
func (s *Stepper) GotoStep(i int) { s.Goto(i) }

func (s *Stepper) move(target func(cur int) int) int {
	s.mu.Lock()
	if s.plan == nil {
		s.mu.Unlock()
		return 0
	}
	prev := s.active
	s.active = clamp(target(s.active), s.plan.Len())
	active := s.active
	moduleID := s.moduleID
	fire := active != prev && s.enteredCompleteLocked()
	s.mu.Unlock()

	if active != prev {
		s.savePosition(moduleID, active)
	}
	if fire {
		s.markComplete(moduleID)
	}
	return active
}

// enteredCompleteLocked reports whether the active step is Complete and the
// guard allowed the completion call. Callers hold s.mu.
func (s *Stepper) enteredCompleteLocked() bool {
	if s.plan == nil || s.active != s.plan.Last() {
		return false
	}
	return s.guard.TryFire(s.moduleID)
}

func (s *Stepper) savePosition(moduleID string, index int) {
	if s.positions == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.positions.SavePosition(ctx, moduleID, index); err != nil {
		slog.Warn("saving step position failed", "module_id", moduleID, "error", err)
	}
}

func (s *Stepper) markComplete(moduleID string) {
	if s.completer == nil {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		err := s.completer.MarkModuleComplete(ctx, moduleID)
		if err != nil {
			slog.Warn("marking module complete failed", "module_id", moduleID, "error", err)
		} else {
			slog.Info("module marked complete", "module_id", moduleID)
		}
		if s.onComplete != nil {
			s.onComplete(moduleID, err)
		}
	}()
}

// Wait blocks until in-flight completion calls return.
func (s *Stepper) Wait() {
	s.inflight.Wait()
}

// ModuleID returns the active module.
func (s *Stepper) ModuleID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moduleID
}

// Active returns the 0-based active index.
func (s *Stepper) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ActiveStep returns the active step.
func (s *Stepper) ActiveStep() (plan.Step, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plan == nil {
		return plan.Step{}, false
	}
	return s.plan.At(s.active), true
}

// ViewingComplete reports whether the learner is on the Complete step.
func (s *Stepper) ViewingComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan != nil && s.active == s.plan.Last()
}

// Status returns the derived status of step i.
func (s *Stepper) Status(i int) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plan == nil {
		return StatusNotStarted
	}
	return StatusAt(i, s.active, s.plan.Len())
}

// Statuses returns the derived status of every step.
func (s *Stepper) Statuses() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plan == nil {
		return nil
	}
	n := s.plan.Len()
	out := make([]Status, n)
	for i := range out {
		out[i] = StatusAt(i, s.active, n)
	}
	return out
}

// Fired reports whether the completion call already went out for the active
// module.
func (s *Stepper) Fired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guard.State() == GuardFired
}

func clamp(i, n int) int {
	if n <= 0 || i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}
