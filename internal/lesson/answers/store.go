package answers

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/p-n-ai/pai-lesson/internal/lesson/schema"
)

// ErrUnknownField is returned when a value targets a name that is not an
// input field of the module.
var ErrUnknownField = errors.New("unknown field")

// Equal reports whether a and b hold the same values. Nil and empty lists
// compare equal.
func Equal(a, b Values) bool {
	return cmp.Equal(a, b, cmpopts.EquateEmpty())
}

// Sources are the candidate origins of a module's values, highest precedence
// first.
type Sources struct {
	Draft    Values // local draft for this module
	Resident Values // values already held from a prior render
	Server   Values // answers of a previously fetched submission
}

// Hydrate builds the initial value set. Each field takes its value from the
// first source that has it (draft, resident, server) and otherwise its
// default, so the result is never partial.
func Hydrate(fields []schema.FieldDefinition, src Sources) Values {
	out := make(Values, len(fields))
	for _, f := range fields {
		if !f.Type.IsInput() {
			continue
		}
		out[f.Name] = Default(f)
		for _, s := range []Values{src.Draft, src.Resident, src.Server} {
			if v, ok := s[f.Name]; ok && v != nil {
				out[f.Name] = Normalize(f, v)
				break
			}
		}
	}
	return out
}

// Store holds the live values of one module. Every mutation swaps in a new
// snapshot; snapshots handed out are copies.
type Store struct {
	mu       sync.RWMutex
	fields   []schema.FieldDefinition
	byName   map[string]schema.FieldDefinition
	snapshot Values
}

// NewStore creates a store for fields, hydrated from src.
func NewStore(fields []schema.FieldDefinition, src Sources) *Store {
	s := &Store{}
	s.setFields(fields)
	s.snapshot = Hydrate(fields, src)
	return s
}

// Snapshot returns a copy of the current values.
func (s *Store) Snapshot() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Clone()
}

// Fields returns the field definitions the store normalizes against.
func (s *Store) Fields() []schema.FieldDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]schema.FieldDefinition(nil), s.fields...)
}

// Get returns the current value of a field.
func (s *Store) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.snapshot[name]
	if list, isList := v.([]string); isList {
		v = append([]string{}, list...)
	}
	return v, ok
}

// Set normalizes value for the named field and installs a new snapshot.
// It returns the new snapshot and whether anything changed.
func (s *Store) Set(name string, value any) (Values, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.byName[name]
	if !ok {
		return s.snapshot.Clone(), false, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}

	nv := Normalize(f, value)
	if cmp.Equal(s.snapshot[name], nv, cmpopts.EquateEmpty()) {
		return s.snapshot.Clone(), false, nil
	}

	next := make(Values, len(s.snapshot))
	for k, v := range s.snapshot {
		next[k] = v
	}
	next[name] = nv
	s.snapshot = next
	return next.Clone(), true, nil
}

// Replace installs v (normalized) unless it equals the current snapshot.
// It reports whether the snapshot changed.
func (s *Store) Replace(v Values) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := NormalizeAll(s.fields, v)
	if Equal(s.snapshot, next) {
		return false
	}
	s.snapshot = next
	return true
}

// ReplaceIfCurrent installs v like Replace, but only while the snapshot
// still equals base. current reports whether base was still the snapshot.
func (s *Store) ReplaceIfCurrent(base, v Values) (current, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !Equal(s.snapshot, base) {
		return false, false
	}
	next := NormalizeAll(s.fields, v)
	if Equal(s.snapshot, next) {
		return true, false
	}
	s.snapshot = next
	return true, true
}

// SetFields switches to a new field list, keeping resident values for fields
// that survive and defaulting new ones.
func (s *Store) SetFields(fields []schema.FieldDefinition) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setFields(fields)
	next := Hydrate(fields, Sources{Resident: s.snapshot})
	if Equal(s.snapshot, next) {
		return false
	}
	s.snapshot = next
	return true
}

func (s *Store) setFields(fields []schema.FieldDefinition) {
	s.fields = append([]schema.FieldDefinition(nil), fields...)
	s.byName = make(map[string]schema.FieldDefinition, len(fields))
	for _, f := range fields {
		if f.Type.IsInput() {
			s.byName[f.Name] = f
		}
	}
}
