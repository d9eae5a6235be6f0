package timestep

import "gonum.org/v1/gonum/mat"

// Transition packages together a single transition of the
// agent-environment interaction: the state the agent was in, the
// action it took, and the resulting reward and next state.
//
// Absorbing denotes whether NextState is an absorbing (terminal)
// state. Bootstrapped estimates of the value of NextState must not
// contribute to update targets when Absorbing is true.
type Transition struct {
	State      mat.Vector
	Action     mat.Vector
	Reward     float64
	Discount   float64
	NextState  mat.Vector
	NextAction mat.Vector
	Absorbing  bool
}

// NewTransition packages a transition from the timestep step, where
// action was taken, to the timestep nextStep, where nextAction will be
// taken.
func NewTransition(step TimeStep, action mat.Vector, nextStep TimeStep,
	nextAction mat.Vector) Transition {
	return Transition{
		State:      step.Observation,
		Action:     action,
		Reward:     nextStep.Reward,
		Discount:   nextStep.Discount,
		NextState:  nextStep.Observation,
		NextAction: nextAction,
		Absorbing:  nextStep.Last(),
	}
}
