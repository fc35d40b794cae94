// Package autosave keeps a module's local draft current on every change and
// pushes the latest snapshot to the remote store after a quiet period.
//
// The two write paths stay separate: the draft write happens synchronously
// inside Changed, the remote submit runs later on a timer goroutine and never
// gates the draft.
package autosave

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/p-n-ai/pai-lesson/internal/drafts"
	"github.com/p-n-ai/pai-lesson/internal/lesson/answers"
	"github.com/p-n-ai/pai-lesson/internal/lesson/submission"
)

const (
	defaultDelay   = 2 * time.Second
	defaultTimeout = 10 * time.Second
	draftTimeout   = 2 * time.Second
)

// DraftWriter is the local draft sink.
type DraftWriter interface {
	SaveDraft(ctx context.Context, moduleID string, d drafts.Draft) error
}

// Submitter is the remote sink.
type Submitter interface {
	Submit(ctx context.Context, moduleID string, values answers.Values) (submission.Result, error)
}

// Config holds dependencies for a Pipeline.
type Config struct {
	ModuleID string
	Drafts   DraftWriter
	Remote   Submitter
	Delay    time.Duration // debounce delay, default 2s
	Timeout  time.Duration // remote call timeout, default 10s

	// OnSaved is called from the timer goroutine after a background submit
	// succeeds. It is not called once the pipeline is stopped.
	OnSaved func(moduleID string, res submission.Result)
	Now     func() time.Time
}

// Pipeline is the autosave pipeline for one module. Stop it when the module
// is closed.
type Pipeline struct {
	moduleID string
	drafts   DraftWriter
	remote   Submitter
	delay    time.Duration
	timeout  time.Duration
	onSaved  func(string, submission.Result)
	now      func() time.Time

	mu      sync.Mutex
	timer   *time.Timer
	seq     uint64
	pending answers.Values
	stopped bool
	wg      sync.WaitGroup
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		moduleID: cfg.ModuleID,
		drafts:   cfg.Drafts,
		remote:   cfg.Remote,
		delay:    cfg.Delay,
		timeout:  cfg.Timeout,
		onSaved:  cfg.OnSaved,
		now:      cfg.Now,
	}
	if p.delay <= 0 {
		p.delay = defaultDelay
	}
	if p.timeout <= 0 {
		p.timeout = defaultTimeout
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// ModuleID returns the module this pipeline writes for.
func (p *Pipeline) ModuleID() string {
	return p.moduleID
}

// Changed records a new snapshot. The draft is written before Changed
// returns; the remote submit is (re)scheduled after the debounce delay.
func (p *Pipeline) Changed(values answers.Values) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}

	snapshot := values.Clone()
	p.writeDraft(snapshot)
	if p.remote == nil {
		return
	}

	p.pending = snapshot
	p.seq++
	seq := p.seq
	if p.timer != nil && p.timer.Stop() {
		// The stopped timer's callback will never run.
		p.wg.Done()
	}
	p.wg.Add(1)
	p.timer = time.AfterFunc(p.delay, func() {
		defer p.wg.Done()
		p.flush(seq)
	})
}

func (p *Pipeline) writeDraft(values answers.Values) {
	if p.drafts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), draftTimeout)
	defer cancel()
	d := drafts.Draft{Values: values, SavedAt: p.now().UTC()}
	if err := p.drafts.SaveDraft(ctx, p.moduleID, d); err != nil {
		slog.Warn("saving local draft failed", "module_id", p.moduleID, "error", err)
	}
}

func (p *Pipeline) flush(seq uint64) {
	p.mu.Lock()
	if p.stopped || seq != p.seq {
		p.mu.Unlock()
		return
	}
	values := p.pending
	p.pending = nil
	p.timer = nil
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	res, err := p.remote.Submit(ctx, p.moduleID, values)
	if err != nil {
		slog.Warn("autosave submit failed", "module_id", p.moduleID, "error", err)
		return
	}
	slog.Debug("autosave submitted", "module_id", p.moduleID, "status", res.Status)

	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if !stopped && p.onSaved != nil {
		p.onSaved(p.moduleID, res)
	}
}

// Pending reports whether a remote submit is scheduled.
func (p *Pipeline) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending != nil
}

// Settle drops the scheduled submit if it would send values, which the
// remote store already holds. It reports whether a submit was dropped.
func (p *Pipeline) Settle(values answers.Values) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil || !answers.Equal(p.pending, values) {
		return false
	}
	p.seq++
	p.pending = nil
	if p.timer != nil && p.timer.Stop() {
		p.wg.Done()
	}
	p.timer = nil
	return true
}

// Stop cancels any scheduled submit. In-flight submits finish but their
// results are dropped. Changed is a no-op after Stop.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	p.pending = nil
	if p.timer != nil && p.timer.Stop() {
		p.wg.Done()
	}
	p.timer = nil
}

// Wait blocks until scheduled and in-flight submits have finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}
