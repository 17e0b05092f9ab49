package module

// State is a module's lifecycle state.
type State string

const (
	StateUnloaded  State = "unloaded"
	StateLoading   State = "loading"
	StateLoaded    State = "loaded"
	StateUnloading State = "unloading"
	StateFailed    State = "failed"
)

var transitions = map[State][]State{
	StateUnloaded:  {StateLoading},
	StateLoading:   {StateLoaded, StateFailed},
	StateLoaded:    {StateUnloading},
	StateUnloading: {StateUnloaded},
	StateFailed:    {StateLoading},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// States lists every state in lifecycle order.
func States() []State {
	return []State{StateUnloaded, StateLoading, StateLoaded, StateUnloading, StateFailed}
}
