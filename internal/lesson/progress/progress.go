// Package progress computes answered/total counts for sections and modules
// and the course-wide completed-module count.
package progress

import (
	"strings"

	"github.com/p-n-ai/pai-lesson/internal/lesson/answers"
	"github.com/p-n-ai/pai-lesson/internal/lesson/plan"
)

// FieldAnswered reports whether v counts as an answer.
func FieldAnswered(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(x) != ""
	case []string:
		return len(x) > 0
	case []any:
		return len(x) > 0
	case bool:
		return x
	case float64, float32, int, int32, int64, uint:
		return true
	default:
		return false
	}
}

// Progress is an answered/total pair.
type Progress struct {
	Answered int `json:"answered"`
	Total    int `json:"total"`
}

// Percent returns completion in [0, 100]. A zero-field total counts as done.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 100
	}
	return float64(p.Answered) * 100 / float64(p.Total)
}

// Done reports whether every field is answered.
func (p Progress) Done() bool {
	return p.Answered >= p.Total
}

func (p Progress) add(o Progress) Progress {
	return Progress{Answered: p.Answered + o.Answered, Total: p.Total + o.Total}
}

// Section returns the progress of one section. Fields of an unknown type
// cannot be answered and are not counted.
func Section(sec plan.Section, values answers.Values) Progress {
	var p Progress
	for _, f := range sec.Fields {
		if !f.Type.Known() {
			continue
		}
		p.Total++
		if FieldAnswered(values[f.Name]) {
			p.Answered++
		}
	}
	return p
}

// SectionProgress pairs a section ID with its progress.
type SectionProgress struct {
	SectionID string   `json:"sectionId"`
	Title     string   `json:"title"`
	Progress  Progress `json:"progress"`
}

// Sections returns progress for every assignment section of p, in step order.
func Sections(p *plan.Plan, values answers.Values) []SectionProgress {
	secs := p.AssignmentSections()
	out := make([]SectionProgress, 0, len(secs))
	for _, sec := range secs {
		out = append(out, SectionProgress{
			SectionID: sec.ID,
			Title:     sec.Title,
			Progress:  Section(sec, values),
		})
	}
	return out
}

// Module aggregates progress over all assignment fields. Media and Complete
// steps carry no fields and do not count.
func Module(p *plan.Plan, values answers.Values) Progress {
	var total Progress
	for _, sec := range p.AssignmentSections() {
		total = total.add(Section(sec, values))
	}
	return total
}

// CompletedModules returns the count to show on course progress bars: the
// server count, plus one while the learner views this module's Complete step
// and the server has not confirmed the module yet.
func CompletedModules(serverCompleted int, viewingComplete, serverConfirmed bool) int {
	if viewingComplete && !serverConfirmed {
		return serverCompleted + 1
	}
	return serverCompleted
}
