// Package submission implements the explicit submit flow for a module
// assignment and the client for the remote submission store.
package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/p-n-ai/pai-lesson/internal/lesson/answers"
)

// Status is the review status of a submission.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusSubmitted  Status = "submitted"
	StatusAccepted   Status = "accepted"
	StatusRevise     Status = "revise"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusSubmitted, StatusAccepted, StatusRevise:
		return true
	default:
		return false
	}
}

// Record is the remote store's view of a learner's submission.
type Record struct {
	ModuleID  string         `json:"moduleId"`
	Answers   answers.Values `json:"answers"`
	Status    Status         `json:"status"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Result is the success payload of a submit call.
type Result struct {
	Answers          answers.Values `json:"answers"`
	Status           Status         `json:"status"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	CompleteOnSubmit bool           `json:"completeOnSubmit"`
}

// Remote is the remote submission store.
type Remote interface {
	Submit(ctx context.Context, moduleID string, values answers.Values) (Result, error)
	MarkModuleComplete(ctx context.Context, moduleID string) error
}

// ErrUnavailable marks failures that are not a validation rejection:
// network errors, timeouts, unexpected responses.
var ErrUnavailable = errors.New("submission service unavailable")

// MissingFieldsError is the structured rejection returned when required
// fields are empty. Missing holds labels (or names) as sent by the server.
type MissingFieldsError struct {
	Message string   `json:"error"`
	Missing []string `json:"missing"`
}

func (e *MissingFieldsError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "missing required fields"
	}
	return fmt.Sprintf("%s: %s", msg, strings.Join(e.Missing, ", "))
}

// UserError is what the submit flow surfaces to the learner.
type UserError struct {
	Message   string
	Missing   []string // labels of missing required fields, if any
	Retryable bool
	Err       error
}

func (e *UserError) Error() string {
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Err
}

const genericSubmitMessage = "We couldn't submit your answers right now. Your answers are saved, please try again."
