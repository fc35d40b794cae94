// Package records is the authoritative store for assignment submissions and
// module completions. It backs the HTTP API that lesson clients submit to.
package records

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-lesson/internal/lesson/answers"
	"github.com/p-n-ai/pai-lesson/internal/lesson/submission"
)

// ErrNotFound is returned when no submission exists.
var ErrNotFound = errors.New("record not found")

// Submission is one learner's stored answers for one module.
type Submission struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	ModuleID  string            `json:"moduleId"`
	Answers   answers.Values    `json:"answers"`
	Status    submission.Status `json:"status"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Record converts s to the client-facing record shape.
func (s Submission) Record() submission.Record {
	return submission.Record{
		ModuleID:  s.ModuleID,
		Answers:   s.Answers,
		Status:    s.Status,
		UpdatedAt: s.UpdatedAt,
	}
}

// Repository persists submissions and completions.
type Repository interface {
	GetSubmission(ctx context.Context, userID, moduleID string) (*Submission, error)
	SaveSubmission(ctx context.Context, sub Submission) (Submission, error)
	ListSubmissions(ctx context.Context, moduleID string) ([]Submission, error)
	// MarkComplete records a completion and reports whether it is new.
	MarkComplete(ctx context.Context, userID, moduleID string, at time.Time) (bool, error)
	CompletedModules(ctx context.Context, userID string) ([]string, error)
}

type key struct{ userID, moduleID string }

// MemoryRepository is an in-memory Repository.
type MemoryRepository struct {
	mu          sync.RWMutex
	submissions map[key]Submission
	completions map[key]time.Time
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		submissions: make(map[key]Submission),
		completions: make(map[key]time.Time),
	}
}

func (r *MemoryRepository) GetSubmission(_ context.Context, userID, moduleID string) (*Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.submissions[key{userID, moduleID}]
	if !ok {
		return nil, ErrNotFound
	}
	sub.Answers = sub.Answers.Clone()
	return &sub, nil
}

func (r *MemoryRepository) SaveSubmission(_ context.Context, sub Submission) (Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{sub.UserID, sub.ModuleID}
	if prev, ok := r.submissions[k]; ok {
		sub.ID = prev.ID
		sub.CreatedAt = prev.CreatedAt
	} else {
		sub.ID = uuid.NewString()
		if sub.CreatedAt.IsZero() {
			sub.CreatedAt = sub.UpdatedAt
		}
	}
	sub.Answers = sub.Answers.Clone()
	r.submissions[k] = sub

	out := sub
	out.Answers = sub.Answers.Clone()
	return out, nil
}

func (r *MemoryRepository) ListSubmissions(_ context.Context, moduleID string) ([]Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Submission
	for k, sub := range r.submissions {
		if k.moduleID != moduleID {
			continue
		}
		sub.Answers = sub.Answers.Clone()
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (r *MemoryRepository) MarkComplete(_ context.Context, userID, moduleID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{userID, moduleID}
	if _, ok := r.completions[k]; ok {
		return false, nil
	}
	r.completions[k] = at
	return true, nil
}

func (r *MemoryRepository) CompletedModules(_ context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for k := range r.completions {
		if k.userID == userID {
			out = append(out, k.moduleID)
		}
	}
	sort.Strings(out)
	return out, nil
}
