package pixel

// State is where an Emitter is in its per-view lifecycle.
type State int

const (
	StateAwaitingHydration State = iota
	StateAwaitingStableID
	StateReadyToFire
	StateFired
	StateSkipped
	// StateSuppressed: the order total was unusable and the policy is to not fire.
	StateSuppressed
	// StateUnavailable: the tracking channel rejected the call. Nothing is retried.
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateAwaitingHydration:
		return "awaiting_hydration"
	case StateAwaitingStableID:
		return "awaiting_stable_id"
	case StateReadyToFire:
		return "ready_to_fire"
	case StateFired:
		return "fired"
	case StateSkipped:
		return "skipped"
	case StateSuppressed:
		return "suppressed"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Terminal reports whether the emitter will never act again in this view.
func (s State) Terminal() bool {
	switch s {
	case StateFired, StateSkipped, StateSuppressed, StateUnavailable:
		return true
	default:
		return false
	}
}
