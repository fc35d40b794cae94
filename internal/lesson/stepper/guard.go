package stepper

// GuardState is the state of a CompletionGuard.
type GuardState int

const (
	GuardIdle GuardState = iota
	GuardFired
)

// CompletionGuard lets the completion side effect through once per module
// activation. It moves Idle -> Fired and only returns to Idle when the module
// identity changes.
type CompletionGuard struct {
	moduleID string
	state    GuardState
}

// Reset rearms the guard if moduleID differs from the guarded module.
func (g *CompletionGuard) Reset(moduleID string) {
	if g.moduleID == moduleID {
		return
	}
	g.moduleID = moduleID
	g.state = GuardIdle
}

// TryFire transitions Idle -> Fired for moduleID and reports whether the
// caller should perform the side effect.
func (g *CompletionGuard) TryFire(moduleID string) bool {
	g.Reset(moduleID)
	if g.state == GuardFired {
		return false
	}
	g.state = GuardFired
	return true
}

// State returns the current guard state.
func (g *CompletionGuard) State() GuardState {
	return g.state
}
