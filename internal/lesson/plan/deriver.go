package plan

import (
	"sync"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/p-n-ai/pai-lesson/internal/lesson/schema"
)

// Deriver memoizes Derive: calling it again with an equal field list and the
// same media flags returns the previously built *Plan.
type Deriver struct {
	mu     sync.Mutex
	fields []schema.FieldDefinition
	media  schema.MediaFlags
	plan   *Plan
}

// Derive returns the plan for fields, reusing the last result when the input
// is unchanged.
func (d *Deriver) Derive(fields []schema.FieldDefinition, media schema.MediaFlags) *Plan {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.plan != nil && d.media == media && cmp.Equal(d.fields, fields, cmpopts.EquateEmpty()) {
		return d.plan
	}

	d.fields = append([]schema.FieldDefinition(nil), fields...)
	d.media = media
	d.plan = Derive(fields, media)
	return d.plan
}

// Reset drops the memoized plan.
func (d *Deriver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fields = nil
	d.plan = nil
}
