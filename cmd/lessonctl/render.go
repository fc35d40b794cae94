package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/p-n-ai/pai-lesson/internal/lesson/answers"
	"github.com/p-n-ai/pai-lesson/internal/lesson/plan"
	"github.com/p-n-ai/pai-lesson/internal/lesson/schema"
	"github.com/p-n-ai/pai-lesson/internal/lesson/stepper"
)

var statusMarks = map[stepper.Status]string{
	stepper.StatusComplete:   "[x]",
	stepper.StatusInProgress: "[>]",
	stepper.StatusNotStarted: "[ ]",
}

// fieldRenderer prints one field with its current answer.
type fieldRenderer struct {
	values answers.Values
}

var _ schema.FieldVisitor[string] = fieldRenderer{}

func (r fieldRenderer) line(f schema.FieldDefinition, kind, value string) string {
	req := ""
	if f.Required {
		req = " *"
	}
	return fmt.Sprintf("  %s%s (%s, %s): %s", f.DisplayLabel(), req, f.Name, kind, value)
}

func (r fieldRenderer) text(f schema.FieldDefinition) string {
	s, _ := r.values[f.Name].(string)
	if s == "" {
		return "-"
	}
	return strconv.Quote(s)
}

func (r fieldRenderer) ShortText(f schema.FieldDefinition) string {
	return r.line(f, "text", r.text(f))
}

func (r fieldRenderer) LongText(f schema.FieldDefinition) string {
	return r.line(f, "long text", r.text(f))
}

func (r fieldRenderer) CustomProgram(f schema.FieldDefinition) string {
	return r.line(f, "program", r.text(f))
}

func (r fieldRenderer) Select(f schema.FieldDefinition) string {
	return r.line(f, "one of "+strings.Join(f.Options, "|"), r.text(f))
}

func (r fieldRenderer) MultiSelect(f schema.FieldDefinition) string {
	list, _ := r.values[f.Name].([]string)
	value := "-"
	if len(list) > 0 {
		value = strings.Join(list, ", ")
	}
	return r.line(f, "any of "+strings.Join(f.Options, "|"), value)
}

func (r fieldRenderer) Slider(f schema.FieldDefinition) string {
	kind := "number"
	if f.Min != nil && f.Max != nil {
		kind = fmt.Sprintf("%g..%g", *f.Min, *f.Max)
	}
	n, _ := r.values[f.Name].(float64)
	return r.line(f, kind, strconv.FormatFloat(n, 'g', -1, 64))
}

func (r fieldRenderer) Subtitle(f schema.FieldDefinition) string {
	return "  -- " + f.DisplayLabel() + " --"
}

func (r fieldRenderer) Unknown(schema.FieldDefinition) string {
	return ""
}

// renderStep returns the body shown for one step.
func renderStep(doc schema.Document, p *plan.Plan, st plan.Step, values answers.Values) string {
	var b strings.Builder
	switch st.Kind {
	case plan.StepVideo:
		fmt.Fprintf(&b, "Watch: %s\n", doc.VideoURL)
	case plan.StepNotes:
		b.WriteString(strings.TrimSpace(doc.Notes))
		b.WriteString("\n")
	case plan.StepResources:
		if doc.DeckURL != "" {
			fmt.Fprintf(&b, "Slides: %s\n", doc.DeckURL)
		}
		for _, res := range doc.Resources {
			fmt.Fprintf(&b, "- %s: %s\n", res.Title, res.URL)
		}
	case plan.StepAssignment:
		sec, ok := p.Section(st.SectionID)
		if !ok {
			break
		}
		if sec.Description != "" {
			b.WriteString(sec.Description)
			b.WriteString("\n")
		}
		r := fieldRenderer{values: values}
		for _, f := range sec.Fields {
			if line := schema.Dispatch[string](f, r); line != "" {
				b.WriteString(line)
				b.WriteString("\n")
			}
		}
	case plan.StepComplete:
		b.WriteString("Module complete.\n")
	}
	return b.String()
}

// stepTitle names a step for listings.
func stepTitle(p *plan.Plan, st plan.Step) string {
	if st.Kind != plan.StepAssignment {
		return strings.ToUpper(st.Kind.String()[:1]) + st.Kind.String()[1:]
	}
	if sec, ok := p.Section(st.SectionID); ok && sec.Title != "" {
		return sec.Title
	}
	return "Assignment"
}

// parseValue turns a command-line value into the shape the field expects.
func parseValue(f schema.FieldDefinition, raw string) any {
	switch f.Type {
	case schema.TypeMultiSelect:
		if raw == "" {
			return []string{}
		}
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	case schema.TypeSlider:
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return n
		}
		return raw
	default:
		return raw
	}
}
