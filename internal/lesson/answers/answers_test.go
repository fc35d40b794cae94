package answers_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/p-n-ai/pai-lesson/internal/lesson/answers"
	"github.com/p-n-ai/pai-lesson/internal/lesson/schema"
)

func ptr(f float64) *float64 { return &f }

var testFields = []schema.FieldDefinition{
	{Name: "intro", Type: schema.TypeSubtitle, Label: "Intro"},
	{Name: "name", Type: schema.TypeShortText, Label: "Name", Required: true},
	{Name: "story", Type: schema.TypeLongText, Label: "Story"},
	{Name: "color", Type: schema.TypeSelect, Label: "Color", Options: []string{"red", "blue"}},
	{Name: "goals", Type: schema.TypeMultiSelect, Label: "Goals", Options: []string{"focus", "sleep"}},
	{Name: "energy", Type: schema.TypeSlider, Label: "Energy", Min: ptr(1), Max: ptr(10)},
	{Name: "program", Type: schema.TypeCustomProgram, Label: "Program"},
}

func TestDefaults(t *testing.T) {
	got := answers.Defaults(testFields)

	want := answers.Values{
		"name":    "",
		"story":   "",
		"color":   "",
		"goals":   []string{},
		"energy":  1.0,
		"program": "",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Defaults() mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize(t *testing.T) {
	byName := map[string]schema.FieldDefinition{}
	for _, f := range testFields {
		byName[f.Name] = f
	}

	tests := []struct {
		name  string
		field string
		raw   any
		want  any
	}{
		{"text passthrough", "name", "Ali", "Ali"},
		{"text from nil", "name", nil, ""},
		{"text from number", "story", 42, "42"},
		{"text from bool", "story", true, "true"},
		{"text nfc", "name", "Café", "Café"},
		{"select from list", "color", []any{"red", "blue"}, "red, blue"},
		{"multi keeps stale options", "goals", []string{"focus", "retired"}, []string{"focus", "retired"}},
		{"multi from any list", "goals", []any{"focus", nil, "sleep"}, []string{"focus", "sleep"}},
		{"multi from string", "goals", "focus", []string{"focus"}},
		{"multi from blank string", "goals", "  ", []string{}},
		{"multi from garbage", "goals", 12, []string{}},
		{"slider number", "energy", 7.5, 7.5},
		{"slider int", "energy", 3, 3.0},
		{"slider numeric string", "energy", " 4 ", 4.0},
		{"slider unparsable", "energy", "lots", 1.0},
		{"slider NaN", "energy", "NaN", 1.0},
		{"slider nil", "energy", nil, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := answers.Normalize(byName[tt.field], tt.raw)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalize_RoundTripStable(t *testing.T) {
	values := answers.Values{
		"name":    "Ali",
		"story":   "Once upon a time",
		"color":   "blue",
		"goals":   []string{"focus", "retired"},
		"energy":  6.5,
		"program": "Mon: run",
	}
	normalized := answers.NormalizeAll(testFields, values)

	data, err := answers.Marshal(normalized)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	decoded, err := answers.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if diff := cmp.Diff(normalized, answers.NormalizeAll(testFields, decoded)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeAll_NeverPartial(t *testing.T) {
	got := answers.NormalizeAll(testFields, answers.Values{"name": "Ali", "stray": "x"})

	if _, ok := got["stray"]; ok {
		t.Error("NormalizeAll() should drop names that are not fields")
	}
	if _, ok := got["intro"]; ok {
		t.Error("NormalizeAll() should not include subtitles")
	}
	if len(got) != 6 {
		t.Errorf("len = %d, want 6", len(got))
	}
}

func TestHydrate_Precedence(t *testing.T) {
	got := answers.Hydrate(testFields, answers.Sources{
		Draft:    answers.Values{"name": "draft"},
		Resident: answers.Values{"name": "resident", "story": "resident"},
		Server:   answers.Values{"name": "server", "story": "server", "energy": "9"},
	})

	if got["name"] != "draft" {
		t.Errorf("name = %v, want draft", got["name"])
	}
	if got["story"] != "resident" {
		t.Errorf("story = %v, want resident", got["story"])
	}
	if got["energy"] != 9.0 {
		t.Errorf("energy = %v, want 9", got["energy"])
	}
	if got["color"] != "" {
		t.Errorf("color = %v, want default", got["color"])
	}
	if len(got) != 6 {
		t.Errorf("len = %d, want 6", len(got))
	}
}

func TestEqual(t *testing.T) {
	a := answers.Values{"goals": []string{}, "name": "x"}
	b := answers.Values{"goals": []string(nil), "name": "x"}
	if !answers.Equal(a, b) {
		t.Error("empty and nil lists should compare equal")
	}
	c := answers.Values{"goals": []string{"focus"}, "name": "x"}
	if answers.Equal(a, c) {
		t.Error("different lists should not compare equal")
	}
}

func TestStore_SetProducesNewSnapshot(t *testing.T) {
	store := answers.NewStore(testFields, answers.Sources{})
	before := store.Snapshot()

	after, changed, err := store.Set("goals", []string{"sleep"})
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !changed {
		t.Error("Set() should report a change")
	}
	if diff := cmp.Diff([]string{}, before["goals"]); diff != "" {
		t.Errorf("earlier snapshot was mutated (-want +got):\n%s", diff)
	}

	after["goals"].([]string)[0] = "tampered"
	got, _ := store.Get("goals")
	if diff := cmp.Diff([]string{"sleep"}, got); diff != "" {
		t.Errorf("store leaked its snapshot (-want +got):\n%s", diff)
	}
}

func TestStore_SetSameValueIsNoop(t *testing.T) {
	store := answers.NewStore(testFields, answers.Sources{})

	if _, changed, _ := store.Set("energy", "1"); changed {
		t.Error("setting the default again should not report a change")
	}
}

func TestStore_SetUnknownField(t *testing.T) {
	store := answers.NewStore(testFields, answers.Sources{})

	_, _, err := store.Set("intro", "x")
	if !errors.Is(err, answers.ErrUnknownField) {
		t.Errorf("Set(subtitle) error = %v, want ErrUnknownField", err)
	}
	_, _, err = store.Set("nope", "x")
	if !errors.Is(err, answers.ErrUnknownField) {
		t.Errorf("Set(nope) error = %v, want ErrUnknownField", err)
	}
}

func TestStore_ReplaceSkipsEquivalent(t *testing.T) {
	store := answers.NewStore(testFields, answers.Sources{Server: answers.Values{"name": "Ali"}})

	if store.Replace(answers.Values{"name": "Ali", "goals": nil}) {
		t.Error("Replace() with equivalent values should be a no-op")
	}
	if !store.Replace(answers.Values{"name": "Abu"}) {
		t.Error("Replace() with new values should report a change")
	}
}

func TestStore_ReplaceIfCurrent(t *testing.T) {
	store := answers.NewStore(testFields, answers.Sources{})
	base, _, _ := store.Set("name", "Ali")

	current, changed := store.ReplaceIfCurrent(base, answers.Values{"name": "Ali bin Abu"})
	if !current || !changed {
		t.Errorf("ReplaceIfCurrent() = %v, %v, want true, true", current, changed)
	}

	store.Set("name", "typed later")
	current, changed = store.ReplaceIfCurrent(base, answers.Values{"name": "echo"})
	if current || changed {
		t.Errorf("ReplaceIfCurrent() on moved snapshot = %v, %v, want false, false", current, changed)
	}
	if got, _ := store.Get("name"); got != "typed later" {
		t.Errorf("name = %v, want newer local value kept", got)
	}
}

func TestStore_SetFieldsKeepsResident(t *testing.T) {
	store := answers.NewStore(testFields, answers.Sources{})
	store.Set("name", "Ali")

	fields := append([]schema.FieldDefinition{}, testFields[:2]...)
	fields = append(fields, schema.FieldDefinition{Name: "extra", Type: schema.TypeShortText})
	store.SetFields(fields)

	got := store.Snapshot()
	want := answers.Values{"name": "Ali", "extra": ""}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SetFields() mismatch (-want +got):\n%s", diff)
	}
}
