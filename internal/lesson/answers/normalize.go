// Package answers holds assignment values and keeps them type-correct for
// their field definitions.
package answers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/p-n-ai/pai-lesson/internal/lesson/schema"
)

// Values maps field name to value. A value is a string, a []string or a
// float64 depending on the field type.
type Values map[string]any

// Clone returns a deep copy of v.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for k, val := range v {
		if list, ok := val.([]string); ok {
			val = append([]string{}, list...)
		}
		out[k] = val
	}
	return out
}

// Default returns the empty value for a field.
func Default(f schema.FieldDefinition) any {
	switch f.Type {
	case schema.TypeMultiSelect:
		return []string{}
	case schema.TypeSlider:
		return f.MinOrZero()
	default:
		return ""
	}
}

// Defaults returns a value for every input field, each set to its default.
func Defaults(fields []schema.FieldDefinition) Values {
	out := make(Values, len(fields))
	for _, f := range fields {
		if f.Type.IsInput() {
			out[f.Name] = Default(f)
		}
	}
	return out
}

// Normalize coerces raw into the representation used for f's type. Coercion
// is permissive: numeric strings become numbers, lone strings become lists,
// and anything unusable falls back to the field default.
func Normalize(f schema.FieldDefinition, raw any) any {
	switch f.Type {
	case schema.TypeShortText, schema.TypeLongText, schema.TypeSelect, schema.TypeCustomProgram:
		return toText(raw)
	case schema.TypeMultiSelect:
		return toList(raw)
	case schema.TypeSlider:
		if n, ok := toNumber(raw); ok && !math.IsNaN(n) && !math.IsInf(n, 0) {
			return n
		}
		return f.MinOrZero()
	case schema.TypeSubtitle:
		return nil
	default:
		slog.Warn("normalizing value for unknown field type", "field", f.Name, "type", string(f.Type))
		return toText(raw)
	}
}

// NormalizeAll returns a complete, normalized value set for fields. Entries
// missing from raw get defaults; names not in fields are dropped.
func NormalizeAll(fields []schema.FieldDefinition, raw Values) Values {
	out := make(Values, len(fields))
	for _, f := range fields {
		if !f.Type.IsInput() {
			continue
		}
		if v, ok := raw[f.Name]; ok && v != nil {
			out[f.Name] = Normalize(f, v)
		} else {
			out[f.Name] = Default(f)
		}
	}
	return out
}

// Marshal serializes values for a draft slot or a request body.
func Marshal(v Values) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal values: %w", err)
	}
	return data, nil
}

// Unmarshal decodes serialized values. The result still needs NormalizeAll:
// lists decode as []any.
func Unmarshal(data []byte) (Values, error) {
	var v Values
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal values: %w", err)
	}
	return v, nil
}

func toText(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return norm.NFC.String(v)
	case []string:
		return norm.NFC.String(strings.Join(v, ", "))
	case []any:
		return norm.NFC.String(strings.Join(toList(v), ", "))
	case bool:
		return strconv.FormatBool(v)
	default:
		if n, ok := toNumber(v); ok {
			return strconv.FormatFloat(n, 'f', -1, 64)
		}
		return norm.NFC.String(fmt.Sprint(v))
	}
}

func toList(raw any) []string {
	switch v := raw.(type) {
	case []string:
		out := make([]string, 0, len(v))
		for _, s := range v {
			out = append(out, norm.NFC.String(s))
		}
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			out = append(out, toText(item))
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return []string{}
		}
		return []string{norm.NFC.String(v)}
	default:
		return []string{}
	}
}

func toNumber(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case json.Number:
		n, err := v.Float64()
		return n, err == nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return n, err == nil
	default:
		return 0, false
	}
}
