package tablet

// State is a tablet's position in its lifecycle state machine:
//
//	LOADING → READY ⇄ COMPACTING
//	READY → SPLITTING → READY (two tablets)
//	any → DESTROYED
//
// An ERRORED state is reachable from any non-terminal state on a
// structural invariant violation (ReplaceFragmentsMismatch, raised while
// COMPACTING) — terminal like DESTROYED, but
// distinguished for diagnostics.
type State int

const (
	StateLoading State = iota
	StateReady
	StateCompacting
	StateSplitting
	StateDestroyed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateCompacting:
		return "compacting"
	case StateSplitting:
		return "splitting"
	case StateDestroyed:
		return "destroyed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

var allowedTransitions = map[State]map[State]bool{
	StateLoading:    {StateReady: true, StateDestroyed: true, StateErrored: true},
	StateReady:      {StateCompacting: true, StateSplitting: true, StateDestroyed: true, StateErrored: true},
	StateCompacting: {StateReady: true, StateDestroyed: true, StateErrored: true},
	StateSplitting:  {StateReady: true, StateDestroyed: true, StateErrored: true},
}

// transition moves the tablet to 'to', rejecting illegal transitions
// and any transition out of a terminal state.
func (t *Tablet) transition(to State) error {
	t.statusMu.Lock()
	defer t.statusMu.Unlock()
	if t.state == StateDestroyed || t.state == StateErrored {
		return errTransition(t.state, to)
	}
	if !allowedTransitions[t.state][to] {
		return errTransition(t.state, to)
	}
	t.state = to
	return nil
}

// State reports the tablet's current lifecycle state.
func (t *Tablet) State() State {
	t.statusMu.Lock()
	defer t.statusMu.Unlock()
	return t.state
}

func errTransition(from, to State) error {
	return &transitionError{from: from, to: to}
}

type transitionError struct {
	from, to State
}

func (e *transitionError) Error() string {
	return "illegal tablet state transition: " + e.from.String() + " -> " + e.to.String()
}
