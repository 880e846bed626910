package order

// State is the lifecycle state of a payment order.
//
// Transitions are monotonic along Open → Claiming → {Settled, Open,
// Failed}. Settled and Failed are terminal. The Claiming → Open edge
// exists for transient settlement failures and claim timeouts.
type State string

const (
	StateOpen     State = "OPEN"
	StateClaiming State = "CLAIMING"
	StateSettled  State = "SETTLED"
	StateFailed   State = "FAILED"
)

// Terminal reports whether the state has no outgoing transitions.
func (s State) Terminal() bool {
	return s == StateSettled || s == StateFailed
}
