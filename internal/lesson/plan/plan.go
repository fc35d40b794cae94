// Package plan derives assignment sections and the learner-facing step plan
// from a module's field definitions.
package plan

import (
	"fmt"

	"github.com/p-n-ai/pai-lesson/internal/lesson/schema"
)

// SentinelField is the field name that always gets a section of its own.
const SentinelField = "program_builder"

// StepKind identifies the variant of a Step.
type StepKind int

const (
	StepVideo StepKind = iota + 1
	StepNotes
	StepResources
	StepAssignment
	StepComplete
)

func (k StepKind) String() string {
	switch k {
	case StepVideo:
		return "video"
	case StepNotes:
		return "notes"
	case StepResources:
		return "resources"
	case StepAssignment:
		return "assignment"
	case StepComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Section groups the fields shown together as one assignment step.
type Section struct {
	ID          string
	Title       string
	Description string
	ExternalRef string
	Fields      []schema.FieldDefinition
}

// Step is one entry of the plan. SectionID and ExternalRef are only set for
// assignment steps. Index is 1-based.
type Step struct {
	Kind        StepKind
	Index       int
	SectionID   string
	ExternalRef string
}

// ID returns a key that is stable for the step across re-derivations.
func (s Step) ID() string {
	if s.Kind == StepAssignment {
		return "assignment:" + s.SectionID
	}
	return s.Kind.String()
}

// Plan is the ordered list of steps for one module. A Plan is never mutated
// after Build returns.
type Plan struct {
	Steps    []Step
	Sections []Section
	index    map[string]int
}

// Len returns the number of steps.
func (p *Plan) Len() int {
	return len(p.Steps)
}

// At returns the step at 0-based position i.
func (p *Plan) At(i int) Step {
	return p.Steps[i]
}

// Last returns the 0-based position of the final (Complete) step.
func (p *Plan) Last() int {
	return len(p.Steps) - 1
}

// Section returns the section with the given ID.
func (p *Plan) Section(id string) (Section, bool) {
	i, ok := p.index[id]
	if !ok {
		return Section{}, false
	}
	return p.Sections[i], true
}

// AssignmentSections returns the sections backing assignment steps, in step order.
func (p *Plan) AssignmentSections() []Section {
	var out []Section
	for _, st := range p.Steps {
		if st.Kind != StepAssignment {
			continue
		}
		if sec, ok := p.Section(st.SectionID); ok {
			out = append(out, sec)
		}
	}
	return out
}

// Build lays out the plan: media steps, one assignment step per non-empty
// section, then the single Complete step.
func Build(sections []Section, media schema.MediaFlags) *Plan {
	p := &Plan{index: make(map[string]int, len(sections))}

	add := func(st Step) {
		st.Index = len(p.Steps) + 1
		p.Steps = append(p.Steps, st)
	}

	if media.HasVideo {
		add(Step{Kind: StepVideo})
	}
	if media.HasNotes {
		add(Step{Kind: StepNotes})
	}
	if media.HasResources {
		add(Step{Kind: StepResources})
	}
	for _, sec := range sections {
		if len(sec.Fields) == 0 {
			continue
		}
		p.index[sec.ID] = len(p.Sections)
		p.Sections = append(p.Sections, sec)
		add(Step{Kind: StepAssignment, SectionID: sec.ID, ExternalRef: sec.ExternalRef})
	}
	add(Step{Kind: StepComplete})

	return p
}

// Derive groups fields into sections and builds the plan.
func Derive(fields []schema.FieldDefinition, media schema.MediaFlags) *Plan {
	return Build(DeriveSections(fields), media)
}

// DeriveSections groups fields into sections:
//   - a subtitle opens a titled section and is not itself a member,
//   - the sentinel field always gets a dedicated section,
//   - other fields join the open section, opening an untitled one if needed.
//
// A lone untitled section with several fields is split into one section per
// field so each prompt gets its own step.
func DeriveSections(fields []schema.FieldDefinition) []Section {
	var (
		sections []Section
		open     = -1
		implicit = map[int]bool{}
	)

	start := func(sec Section) int {
		sec.ID = fmt.Sprintf("section-%d", len(sections)+1)
		sections = append(sections, sec)
		return len(sections) - 1
	}

	for _, f := range fields {
		switch {
		case f.Name == SentinelField:
			i := start(Section{
				Title:       f.Label,
				Description: f.Description,
				ExternalRef: f.ExternalSectionRef,
			})
			sections[i].Fields = append(sections[i].Fields, f)
			open = -1
		case f.Type == schema.TypeSubtitle:
			open = start(Section{
				Title:       f.Label,
				Description: f.Description,
				ExternalRef: f.ExternalSectionRef,
			})
		default:
			if open < 0 {
				open = start(Section{})
				implicit[open] = true
			}
			sec := &sections[open]
			if sec.ExternalRef == "" {
				sec.ExternalRef = f.ExternalSectionRef
			}
			sec.Fields = append(sec.Fields, f)
		}
	}

	if len(sections) == 1 && implicit[0] && len(sections[0].Fields) > 1 {
		return explode(sections[0])
	}
	return sections
}

func explode(sec Section) []Section {
	out := make([]Section, 0, len(sec.Fields))
	for i, f := range sec.Fields {
		title := f.Label
		if title == "" {
			title = fmt.Sprintf("Prompt %d", i+1)
		}
		out = append(out, Section{
			ID:          fmt.Sprintf("section-%d", i+1),
			Title:       title,
			Description: f.Description,
			ExternalRef: f.ExternalSectionRef,
			Fields:      []schema.FieldDefinition{f},
		})
	}
	return out
}
