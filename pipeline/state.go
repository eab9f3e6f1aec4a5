package pipeline

type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateCompleted
	StateCompletedWithFailures
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateDraining:
		return "Draining"
	case StateCompleted:
		return "Completed"
	case StateCompletedWithFailures:
		return "CompletedWithFailures"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCompletedWithFailures
}
