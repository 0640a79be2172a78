package snapshot

// State is a step of a capture run.
type State int

const (
	StateIdle State = iota
	StateBrowserLaunched
	StatePageOpened
	StateNavigated
	StateElementReady
	StateCaptured
	StateClosed
	StateError
)

var stateNames = [...]string{
	StateIdle:            "idle",
	StateBrowserLaunched: "browser-launched",
	StatePageOpened:      "page-opened",
	StateNavigated:       "navigated",
	StateElementReady:    "element-ready",
	StateCaptured:        "captured",
	StateClosed:          "closed",
	StateError:           "error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no transition can leave s.
func (s State) Terminal() bool {
	return s == StateClosed
}

// next is the only forward transition allowed from each non-terminal state.
var next = map[State]State{
	StateIdle:            StateBrowserLaunched,
	StateBrowserLaunched: StatePageOpened,
	StatePageOpened:      StateNavigated,
	StateNavigated:       StateElementReady,
	StateElementReady:    StateCaptured,
	StateCaptured:        StateClosed,
	StateError:           StateClosed,
}

// CanTransition reports whether a run may move from one state to another.
// Error is reachable from every non-terminal state and only leads to Closed.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateError {
		return from != StateError
	}
	return next[from] == to
}
