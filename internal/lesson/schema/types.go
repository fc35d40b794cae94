// Package schema defines assignment field definitions and the module documents
// that carry them.
package schema

// FieldType is the kind of input a field collects.
type FieldType string

const (
	TypeShortText     FieldType = "short_text"
	TypeLongText      FieldType = "long_text"
	TypeSelect        FieldType = "select"
	TypeMultiSelect   FieldType = "multi_select"
	TypeSlider        FieldType = "slider"
	TypeCustomProgram FieldType = "custom_program"
	TypeSubtitle      FieldType = "subtitle"
)

// Known reports whether t is one of the supported field types.
func (t FieldType) Known() bool {
	switch t {
	case TypeShortText, TypeLongText, TypeSelect, TypeMultiSelect,
		TypeSlider, TypeCustomProgram, TypeSubtitle:
		return true
	default:
		return false
	}
}

// IsInput reports whether fields of this type hold an answer.
// Subtitles are section separators and never carry a value.
func (t FieldType) IsInput() bool {
	return t != TypeSubtitle
}

// FieldDefinition describes one question of a module assignment.
type FieldDefinition struct {
	Name               string    `yaml:"name" json:"name"`
	Type               FieldType `yaml:"type" json:"type"`
	Label              string    `yaml:"label" json:"label"`
	Required           bool      `yaml:"required" json:"required"`
	Placeholder        string    `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	Description        string    `yaml:"description,omitempty" json:"description,omitempty"`
	Options            []string  `yaml:"options,omitempty" json:"options,omitempty"`
	Min                *float64  `yaml:"min,omitempty" json:"min,omitempty"`
	Max                *float64  `yaml:"max,omitempty" json:"max,omitempty"`
	Step               *float64  `yaml:"step,omitempty" json:"step,omitempty"`
	ExternalSectionRef string    `yaml:"external_section_ref,omitempty" json:"externalSectionRef,omitempty"`
}

// MinOrZero returns the configured minimum, or 0 when none is set.
func (f FieldDefinition) MinOrZero() float64 {
	if f.Min == nil {
		return 0
	}
	return *f.Min
}

// DisplayLabel returns the label, falling back to the field name.
func (f FieldDefinition) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

// MediaFlags reports which lesson media a module offers ahead of its assignment.
type MediaFlags struct {
	HasVideo     bool `json:"hasVideo"`
	HasNotes     bool `json:"hasNotes"`
	HasResources bool `json:"hasResources"`
}

// Resource is a downloadable or linkable lesson resource.
type Resource struct {
	Title string `yaml:"title" json:"title"`
	URL   string `yaml:"url" json:"url"`
	Kind  string `yaml:"kind,omitempty" json:"kind,omitempty"` // "file", "link" or "deck"
}

// Document is a module definition as loaded from disk.
type Document struct {
	ModuleID         string            `yaml:"module_id" json:"moduleId"`
	CourseID         string            `yaml:"course_id,omitempty" json:"courseId,omitempty"`
	Title            string            `yaml:"title,omitempty" json:"title,omitempty"`
	Position         int               `yaml:"position,omitempty" json:"position,omitempty"`
	VideoURL         string            `yaml:"video_url,omitempty" json:"videoUrl,omitempty"`
	Notes            string            `yaml:"notes,omitempty" json:"notes,omitempty"`
	DeckURL          string            `yaml:"deck_url,omitempty" json:"deckUrl,omitempty"`
	Resources        []Resource        `yaml:"resources,omitempty" json:"resources,omitempty"`
	CompleteOnSubmit bool              `yaml:"complete_on_submit,omitempty" json:"completeOnSubmit,omitempty"`
	Fields           []FieldDefinition `yaml:"fields" json:"fields"`
}

// Media derives the media availability flags for the document.
func (d Document) Media() MediaFlags {
	return MediaFlags{
		HasVideo:     d.VideoURL != "",
		HasNotes:     d.Notes != "",
		HasResources: len(d.Resources) > 0 || d.DeckURL != "",
	}
}

// InputFields returns the fields that carry answers, in order.
func (d Document) InputFields() []FieldDefinition {
	out := make([]FieldDefinition, 0, len(d.Fields))
	for _, f := range d.Fields {
		if f.Type.IsInput() {
			out = append(out, f)
		}
	}
	return out
}
