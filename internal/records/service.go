package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-lesson/internal/lesson/answers"
	"github.com/p-n-ai/pai-lesson/internal/lesson/progress"
	"github.com/p-n-ai/pai-lesson/internal/lesson/schema"
	"github.com/p-n-ai/pai-lesson/internal/lesson/submission"
)

// ErrUnknownModule is returned for module IDs the catalog does not know.
var ErrUnknownModule = errors.New("unknown module")

// Catalog looks up module definitions.
type Catalog interface {
	GetModule(id string) (schema.Document, bool)
	CourseModules(courseID string) []schema.Document
}

// Completion is published when a learner completes a module for the first
// time.
type Completion struct {
	UserID    string    `json:"userId"`
	CourseID  string    `json:"courseId"`
	ModuleID  string    `json:"moduleId"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	At        time.Time `json:"at"`
}

// Notifier receives first-time completions.
type Notifier interface {
	ModuleCompleted(c Completion)
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithEventLogger sets the analytics event sink.
func WithEventLogger(l EventLogger) ServiceOption {
	return func(s *Service) {
		s.events = l
	}
}

// WithNotifier sets the completion notifier.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// Service implements submission and completion against a Repository.
type Service struct {
	repo     Repository
	catalog  Catalog
	events   EventLogger
	notifier Notifier
	now      func() time.Time
}

// NewService creates a Service.
func NewService(repo Repository, catalog Catalog, opts ...ServiceOption) *Service {
	s := &Service{
		repo:    repo,
		catalog: catalog,
		events:  NopEventLogger{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Module returns the module document.
func (s *Service) Module(moduleID string) (schema.Document, error) {
	doc, ok := s.catalog.GetModule(moduleID)
	if !ok {
		return schema.Document{}, fmt.Errorf("%w: %s", ErrUnknownModule, moduleID)
	}
	return doc, nil
}

// Submit validates and stores answers. Empty required fields produce a
// *submission.MissingFieldsError listing their labels. Resubmitting equal
// answers keeps the review status; changed answers go back to submitted.
func (s *Service) Submit(ctx context.Context, userID, moduleID string, raw answers.Values) (submission.Result, error) {
	doc, err := s.Module(moduleID)
	if err != nil {
		return submission.Result{}, err
	}

	values := answers.NormalizeAll(doc.Fields, raw)
	if missing := missingRequired(doc.Fields, values); len(missing) > 0 {
		s.logEvent(Event{
			UserID:    userID,
			ModuleID:  moduleID,
			EventType: EventSubmissionRejected,
			Data:      map[string]any{"missing": missing},
		})
		return submission.Result{}, &submission.MissingFieldsError{
			Message: "missing required fields",
			Missing: missing,
		}
	}

	status := submission.StatusSubmitted
	prev, err := s.repo.GetSubmission(ctx, userID, moduleID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return submission.Result{}, err
	default:
		if answers.Equal(answers.NormalizeAll(doc.Fields, prev.Answers), values) && prev.Status.Valid() && prev.Status != submission.StatusNotStarted {
			status = prev.Status
		}
	}

	saved, err := s.repo.SaveSubmission(ctx, Submission{
		UserID:    userID,
		ModuleID:  moduleID,
		Answers:   values,
		Status:    status,
		UpdatedAt: s.now().UTC(),
	})
	if err != nil {
		return submission.Result{}, err
	}
	s.logEvent(Event{
		UserID:    userID,
		ModuleID:  moduleID,
		EventType: EventSubmissionSaved,
		Data:      map[string]any{"status": string(saved.Status)},
	})

	if doc.CompleteOnSubmit {
		if err := s.complete(ctx, userID, doc); err != nil {
			return submission.Result{}, err
		}
	}

	return submission.Result{
		Answers:          answers.NormalizeAll(doc.Fields, saved.Answers),
		Status:           saved.Status,
		UpdatedAt:        saved.UpdatedAt,
		CompleteOnSubmit: doc.CompleteOnSubmit,
	}, nil
}

// Complete marks a module complete. Repeated calls are no-ops.
func (s *Service) Complete(ctx context.Context, userID, moduleID string) error {
	doc, err := s.Module(moduleID)
	if err != nil {
		return err
	}
	return s.complete(ctx, userID, doc)
}

func (s *Service) complete(ctx context.Context, userID string, doc schema.Document) error {
	at := s.now().UTC()
	first, err := s.repo.MarkComplete(ctx, userID, doc.ModuleID, at)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	slog.Info("module completed", "user_id", userID, "module_id", doc.ModuleID)
	s.logEvent(Event{
		UserID:    userID,
		ModuleID:  doc.ModuleID,
		EventType: EventModuleCompleted,
		Data:      map[string]any{"course_id": doc.CourseID},
	})

	if s.notifier == nil || doc.CourseID == "" {
		return nil
	}
	completed, total, err := s.CourseProgress(ctx, userID, doc.CourseID)
	if err != nil {
		slog.Warn("computing course progress failed", "user_id", userID, "course_id", doc.CourseID, "error", err)
		return nil
	}
	s.notifier.ModuleCompleted(Completion{
		UserID:    userID,
		CourseID:  doc.CourseID,
		ModuleID:  doc.ModuleID,
		Completed: completed,
		Total:     total,
		At:        at,
	})
	return nil
}

// Record returns the learner's submission for a module, normalized against
// the current field list.
func (s *Service) Record(ctx context.Context, userID, moduleID string) (submission.Record, error) {
	doc, err := s.Module(moduleID)
	if err != nil {
		return submission.Record{}, err
	}
	sub, err := s.repo.GetSubmission(ctx, userID, moduleID)
	if err != nil {
		return submission.Record{}, err
	}
	rec := sub.Record()
	rec.Answers = answers.NormalizeAll(doc.Fields, sub.Answers)
	return rec, nil
}

// Submissions lists every learner's submission for a module.
func (s *Service) Submissions(ctx context.Context, moduleID string) (schema.Document, []Submission, error) {
	doc, err := s.Module(moduleID)
	if err != nil {
		return schema.Document{}, nil, err
	}
	subs, err := s.repo.ListSubmissions(ctx, moduleID)
	if err != nil {
		return schema.Document{}, nil, err
	}
	for i := range subs {
		subs[i].Answers = answers.NormalizeAll(doc.Fields, subs[i].Answers)
	}
	return doc, subs, nil
}

// CourseProgress counts the learner's completed modules in a course.
func (s *Service) CourseProgress(ctx context.Context, userID, courseID string) (completed, total int, err error) {
	modules := s.catalog.CourseModules(courseID)
	done, err := s.repo.CompletedModules(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	set := make(map[string]bool, len(done))
	for _, id := range done {
		set[id] = true
	}
	for _, m := range modules {
		if set[m.ModuleID] {
			completed++
		}
	}
	return completed, len(modules), nil
}

func (s *Service) logEvent(e Event) {
	if err := s.events.LogEvent(e); err != nil {
		slog.Warn("logging event failed", "type", e.EventType, "module_id", e.ModuleID, "error", err)
	}
}

func missingRequired(fields []schema.FieldDefinition, values answers.Values) []string {
	var missing []string
	for _, f := range fields {
		if !f.Required || !f.Type.IsInput() {
			continue
		}
		if !progress.FieldAnswered(values[f.Name]) {
			missing = append(missing, f.DisplayLabel())
		}
	}
	return missing
}
