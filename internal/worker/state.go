package worker

import "fmt"

// State is a step in the worker loop's state machine, as diagrammed in
// spec §4.4. Generalized from internal/federation.HandshakeStateMachine's
// explicit transition-table approach.
type State int

const (
	StateIdle State = iota
	StateDecoding
	StateValidating
	StateExecuting
	StatePublishing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateDecoding:
		return "DECODING"
	case StateValidating:
		return "VALIDATING"
	case StateExecuting:
		return "EXECUTING"
	case StatePublishing:
		return "PUBLISHING"
	default:
		return "UNKNOWN"
	}
}

// validTransitions encodes the diagram in spec §4.4: IDLE->DECODING on
// delivery, DECODING->VALIDATING on successful parse (or back to IDLE on a
// malformed envelope, logged+NAK'd outside the state machine),
// VALIDATING->EXECUTING on a valid, unexpired job, EXECUTING->PUBLISHING
// whether the job completed or timed out, and PUBLISHING->IDLE once the
// result is on the wire (or dropped after exhausting retries).
var validTransitions = map[State][]State{
	StateIdle:       {StateDecoding},
	StateDecoding:   {StateValidating, StateIdle},
	StateValidating: {StateExecuting, StatePublishing, StateIdle},
	StateExecuting:  {StatePublishing},
	StatePublishing: {StateIdle},
}

// machine tracks the current state for one worker's processing of a single
// job and rejects any transition outside the table above.
type machine struct {
	current State
}

func newMachine() *machine {
	return &machine{current: StateIdle}
}

func (m *machine) transition(to State) error {
	allowed := validTransitions[m.current]
	for _, s := range allowed {
		if s == to {
			m.current = to
			return nil
		}
	}
	return fmt.Errorf("worker: invalid state transition %s -> %s", m.current, to)
}
