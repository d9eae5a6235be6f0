// Package environment outlines the interfaces needed to interact with
// concrete environments
package environment

import (
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gosac/timestep"
)

// Environment implements an environment that an agent interacts with.
// Agents read the observation, action, and discount specifications of
// an Environment at construction; environment dynamics stay behind
// Reset and Step.
type Environment interface {
	// Reset resets the environment between episodes and returns the
	// first timestep of the new episode
	Reset() timestep.TimeStep

	// Step takes one environmental step given an action, returning the
	// next timestep and whether it is the last timestep of the episode
	Step(action mat.Vector) (timestep.TimeStep, bool)

	RewardSpec() Spec
	DiscountSpec() Spec
	ObservationSpec() Spec
	ActionSpec() Spec
}
