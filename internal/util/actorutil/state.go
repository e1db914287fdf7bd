package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// ActorWithStates drives an actor.Behavior with named states and remembers
// which one is current, including across stacked becomes.
type ActorWithStates struct {
	Behavior actor.Behavior
	current  ActorState
	stacked  []ActorState
}

type ActorState interface {
	Name() string
	Receive(actor.Context)
}

func (s *ActorWithStates) Become(state ActorState) {
	s.current = state
	s.stacked = nil
	s.Behavior.Become(state.Receive)
}

func (s *ActorWithStates) BecomeStacked(state ActorState) {
	if s.current != nil {
		s.stacked = append(s.stacked, s.current)
	}
	s.current = state
	s.Behavior.BecomeStacked(state.Receive)
}

func (s *ActorWithStates) UnbecomeStacked() {
	if n := len(s.stacked); n > 0 {
		s.current = s.stacked[n-1]
		s.stacked = s.stacked[:n-1]
	}
	s.Behavior.UnbecomeStacked()
}

// StateName is the name of the current state, "" before the first Become.
func (s *ActorWithStates) StateName() string {
	if s.current == nil {
		return ""
	}
	return s.current.Name()
}
