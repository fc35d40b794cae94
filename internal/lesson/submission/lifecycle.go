package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/p-n-ai/pai-lesson/internal/lesson/answers"
	"github.com/p-n-ai/pai-lesson/internal/lesson/schema"
)

const defaultSubmitTimeout = 15 * time.Second

// LifecycleConfig holds dependencies for a Lifecycle.
type LifecycleConfig struct {
	ModuleID string
	Fields   []schema.FieldDefinition
	Remote   Remote
	Prior    *Record       // previously fetched record, if any
	Timeout  time.Duration // default 15s
}

// Outcome is the applied result of a successful submit.
type Outcome struct {
	Answers          answers.Values
	Status           Status
	UpdatedAt        time.Time
	CompleteOnSubmit bool
}

// Lifecycle tracks the submission status of one module and runs explicit
// submits against the remote store.
type Lifecycle struct {
	moduleID string
	remote   Remote
	timeout  time.Duration

	mu        sync.Mutex
	fields    []schema.FieldDefinition
	status    Status
	updatedAt time.Time
}

// NewLifecycle creates a Lifecycle seeded from the prior record.
func NewLifecycle(cfg LifecycleConfig) *Lifecycle {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultSubmitTimeout
	}
	l := &Lifecycle{
		moduleID: cfg.ModuleID,
		fields:   cfg.Fields,
		remote:   cfg.Remote,
		timeout:  timeout,
		status:   StatusNotStarted,
	}
	if cfg.Prior != nil {
		if cfg.Prior.Status.Valid() {
			l.status = cfg.Prior.Status
		}
		l.updatedAt = cfg.Prior.UpdatedAt
	}
	return l
}

// Status returns the last known review status.
func (l *Lifecycle) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// SetFields swaps the field list used to normalize results and label
// missing fields.
func (l *Lifecycle) SetFields(fields []schema.FieldDefinition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fields = fields
}

func (l *Lifecycle) currentFields() []schema.FieldDefinition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fields
}

// UpdatedAt returns when the remote store last accepted answers.
func (l *Lifecycle) UpdatedAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.updatedAt
}

// Submit sends values to the remote store. On success the returned answers
// are renormalized and status/updatedAt are recorded. On failure nothing is
// changed and a *UserError describes the problem.
func (l *Lifecycle) Submit(ctx context.Context, values answers.Values) (Outcome, error) {
	if l.remote == nil {
		return Outcome{}, l.userError(ErrUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	res, err := l.remote.Submit(ctx, l.moduleID, values)
	if err != nil {
		return Outcome{}, l.userError(err)
	}

	out := l.Apply(res)
	slog.Info("assignment submitted",
		"module_id", l.moduleID,
		"status", out.Status,
		"complete_on_submit", out.CompleteOnSubmit,
	)
	return out, nil
}

// Apply records a successful result and returns it normalized against the
// module's fields.
func (l *Lifecycle) Apply(res Result) Outcome {
	out := Outcome{
		Answers:          answers.NormalizeAll(l.currentFields(), res.Answers),
		Status:           res.Status,
		UpdatedAt:        res.UpdatedAt,
		CompleteOnSubmit: res.CompleteOnSubmit,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if res.Status.Valid() {
		l.status = res.Status
	} else {
		out.Status = l.status
	}
	if res.UpdatedAt.After(l.updatedAt) {
		l.updatedAt = res.UpdatedAt
	}
	return out
}

func (l *Lifecycle) userError(err error) error {
	var missing *MissingFieldsError
	if errors.As(err, &missing) {
		labels := l.labels(missing.Missing)
		slog.Info("submission rejected, required fields missing",
			"module_id", l.moduleID,
			"missing", labels,
		)
		return &UserError{
			Message: fmt.Sprintf("Please complete the required fields: %s", strings.Join(labels, ", ")),
			Missing: labels,
			Err:     err,
		}
	}

	slog.Error("submission failed", "module_id", l.moduleID, "error", err)
	return &UserError{
		Message:   genericSubmitMessage,
		Retryable: true,
		Err:       err,
	}
}

// labels maps field names to labels; entries that are already labels pass
// through unchanged.
func (l *Lifecycle) labels(missing []string) []string {
	fields := l.currentFields()
	byName := make(map[string]string, len(fields))
	for _, f := range fields {
		byName[f.Name] = f.DisplayLabel()
	}
	out := make([]string, 0, len(missing))
	for _, m := range missing {
		if label, ok := byName[m]; ok {
			out = append(out, label)
			continue
		}
		out = append(out, m)
	}
	return out
}
