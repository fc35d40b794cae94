package schema

import "log/slog"

// FieldVisitor receives one call per field, selected by the field's type.
// Unknown is called for types this package does not recognise.
type FieldVisitor[T any] interface {
	ShortText(f FieldDefinition) T
	LongText(f FieldDefinition) T
	Select(f FieldDefinition) T
	MultiSelect(f FieldDefinition) T
	Slider(f FieldDefinition) T
	CustomProgram(f FieldDefinition) T
	Subtitle(f FieldDefinition) T
	Unknown(f FieldDefinition) T
}

// Dispatch routes f to the visitor method for its type. Unknown types are
// logged and sent to Unknown, which should render nothing.
func Dispatch[T any](f FieldDefinition, v FieldVisitor[T]) T {
	switch f.Type {
	case TypeShortText:
		return v.ShortText(f)
	case TypeLongText:
		return v.LongText(f)
	case TypeSelect:
		return v.Select(f)
	case TypeMultiSelect:
		return v.MultiSelect(f)
	case TypeSlider:
		return v.Slider(f)
	case TypeCustomProgram:
		return v.CustomProgram(f)
	case TypeSubtitle:
		return v.Subtitle(f)
	default:
		slog.Warn("no renderer for field type", "field", f.Name, "type", string(f.Type))
		return v.Unknown(f)
	}
}
