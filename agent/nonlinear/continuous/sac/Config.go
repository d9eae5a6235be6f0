package sac

import (
	"fmt"
	"reflect"

	"github.com/samuelfneumann/gosac/agent"
	env "github.com/samuelfneumann/gosac/environment"
	"github.com/samuelfneumann/gosac/expreplay"
	"github.com/samuelfneumann/gosac/initwfn"
	"github.com/samuelfneumann/gosac/network"
	"github.com/samuelfneumann/gosac/solver"
)

// MinPrediction is the only ensemble reduction the critic supports
const MinPrediction string = "min"

func init() {
	// Register ConfigList type so that it can be typed using
	// agent.TypedConfigList to help with serialization/deserialization.
	agent.Register(agent.GaussianSACMLP, ConfigList{})
}

// ConfigList implements a list of Config's in a more efficient manner
// than simply using a slice of Config's.
type ConfigList struct {
	ActorMeanLayers      [][]int                 // Mean net layer sizes
	ActorMeanBiases      [][]bool                // Mean net layer biases
	ActorMeanActivations [][]*network.Activation // Mean net activations

	ActorLogStdLayers      [][]int                 // Log std net layer sizes
	ActorLogStdBiases      [][]bool                // Log std net layer biases
	ActorLogStdActivations [][]*network.Activation // Log std net activations

	CriticLayers      [][]int                 // Critic layer sizes
	CriticBiases      [][]bool                // Critic layer biases
	CriticActivations [][]*network.Activation // Critic activations

	PolicySolver []*solver.Solver // Solver for the actor's weights
	CriticSolver []*solver.Solver // Solver for the critics' weights

	// Initialization algorithm for weights
	InitWFn []*initwfn.InitWFn

	// Learning rate for the entropy temperature
	AlphaLearningRate []float64

	// Experience replay parameters
	ExpReplay []expreplay.Config

	// Number of transitions the buffer must exceed before actor and
	// temperature updates begin
	WarmupTransitions []int

	Tau []float64 // Polyak averaging constant for the target critics
}

// NewConfigList returns a new ConfigList as an agent.TypedConfigList.
// Because the returned value is a TypedList, it can safely be JSON
// serialized and deserialized without specifying what the type of
// the ConfigList is.
func NewConfigList(
	ActorMeanLayers [][]int,
	ActorMeanBiases [][]bool,
	ActorMeanActivations [][]*network.Activation,
	ActorLogStdLayers [][]int,
	ActorLogStdBiases [][]bool,
	ActorLogStdActivations [][]*network.Activation,
	CriticLayers [][]int,
	CriticBiases [][]bool,
	CriticActivations [][]*network.Activation,
	PolicySolver []*solver.Solver,
	CriticSolver []*solver.Solver,
	InitWFn []*initwfn.InitWFn,
	AlphaLearningRate []float64,
	ExpReplay []expreplay.Config,
	WarmupTransitions []int,
	Tau []float64,
) agent.TypedConfigList {
	configs := ConfigList{
		ActorMeanLayers:        ActorMeanLayers,
		ActorMeanBiases:        ActorMeanBiases,
		ActorMeanActivations:   ActorMeanActivations,
		ActorLogStdLayers:      ActorLogStdLayers,
		ActorLogStdBiases:      ActorLogStdBiases,
		ActorLogStdActivations: ActorLogStdActivations,
		CriticLayers:           CriticLayers,
		CriticBiases:           CriticBiases,
		CriticActivations:      CriticActivations,
		PolicySolver:           PolicySolver,
		CriticSolver:           CriticSolver,
		InitWFn:                InitWFn,
		AlphaLearningRate:      AlphaLearningRate,
		ExpReplay:              ExpReplay,
		WarmupTransitions:      WarmupTransitions,
		Tau:                    Tau,
	}

	return agent.NewTypedConfigList(configs)
}

// Type returns the type of Config stored in the list
func (c ConfigList) Type() agent.Type {
	return c.Config().Type()
}

// NumFields returns the number of settable fields in a Config
func (c ConfigList) NumFields() int {
	rValue := reflect.ValueOf(c)
	return rValue.NumField()
}

// Config returns an empty Config of the same type as that stored
// by the ConfigList
func (c ConfigList) Config() agent.Config {
	return Config{}
}

// Len returns the number of Config's in the list
func (c ConfigList) Len() int {
	return len(c.ActorMeanLayers) * len(c.ActorMeanBiases) *
		len(c.ActorMeanActivations) * len(c.ActorLogStdLayers) *
		len(c.ActorLogStdBiases) * len(c.ActorLogStdActivations) *
		len(c.CriticLayers) * len(c.CriticBiases) *
		len(c.CriticActivations) * len(c.PolicySolver) *
		len(c.CriticSolver) * len(c.InitWFn) * len(c.AlphaLearningRate) *
		len(c.ExpReplay) * len(c.WarmupTransitions) * len(c.Tau)
}

// Config implements a configuration for a SAC agent
type Config struct {
	ActorMeanLayers      []int                 // Mean net layer sizes
	ActorMeanBiases      []bool                // Mean net layer biases
	ActorMeanActivations []*network.Activation // Mean net activations

	ActorLogStdLayers      []int                 // Log std net layer sizes
	ActorLogStdBiases      []bool                // Log std net layer biases
	ActorLogStdActivations []*network.Activation // Log std net activations

	CriticLayers      []int                 // Critic layer sizes
	CriticBiases      []bool                // Critic layer biases
	CriticActivations []*network.Activation // Critic activations

	// Critics is the number of action-value networks in the critic
	// ensemble. The only legal values are 0, which defaults to
	// EnsembleSize, and EnsembleSize itself.
	Critics int

	// CriticPrediction is the reduction applied across the ensemble
	// when predicting action values. The only legal values are the
	// empty string, which defaults to MinPrediction, and MinPrediction
	// itself.
	CriticPrediction string

	PolicySolver *solver.Solver // Solver for the actor's weights
	CriticSolver *solver.Solver // Solver for the critics' weights

	// Initialization algorithm for weights
	InitWFn *initwfn.InitWFn

	// Learning rate for the entropy temperature
	AlphaLearningRate float64

	// Experience replay parameters
	ExpReplay expreplay.Config

	// Number of transitions the buffer must exceed before actor and
	// temperature updates begin
	WarmupTransitions int

	Tau float64 // Polyak averaging constant for the target critics
}

// BatchSize returns the batch size of the agent constructed using this
// Config
func (c Config) BatchSize() int {
	return c.ExpReplay.SampleSize
}

// Type returns the type of the configuration
func (c Config) Type() agent.Type {
	return agent.GaussianSACMLP
}

// Validate checks a Config to ensure it is a valid configuration of a
// SAC agent.
func (c Config) Validate() error {
	if len(c.ActorMeanLayers) != len(c.ActorMeanBiases) {
		return fmt.Errorf("new: invalid number of actor mean biases"+
			"\n\twant(%v)\n\thave(%v)", len(c.ActorMeanLayers),
			len(c.ActorMeanBiases))
	}
	if len(c.ActorMeanLayers) != len(c.ActorMeanActivations) {
		return fmt.Errorf("new: invalid number of actor mean activations"+
			"\n\twant(%v)\n\thave(%v)", len(c.ActorMeanLayers),
			len(c.ActorMeanActivations))
	}

	if len(c.ActorLogStdLayers) != len(c.ActorLogStdBiases) {
		return fmt.Errorf("new: invalid number of actor log std biases"+
			"\n\twant(%v)\n\thave(%v)", len(c.ActorLogStdLayers),
			len(c.ActorLogStdBiases))
	}
	if len(c.ActorLogStdLayers) != len(c.ActorLogStdActivations) {
		return fmt.Errorf("new: invalid number of actor log std activations"+
			"\n\twant(%v)\n\thave(%v)", len(c.ActorLogStdLayers),
			len(c.ActorLogStdActivations))
	}

	if len(c.CriticLayers) != len(c.CriticBiases) {
		return fmt.Errorf("new: invalid number of critic biases"+
			"\n\twant(%v)\n\thave(%v)", len(c.CriticLayers),
			len(c.CriticBiases))
	}
	if len(c.CriticLayers) != len(c.CriticActivations) {
		return fmt.Errorf("new: invalid number of critic activations"+
			"\n\twant(%v)\n\thave(%v)", len(c.CriticLayers),
			len(c.CriticActivations))
	}

	if c.Critics != 0 && c.Critics != EnsembleSize {
		return fmt.Errorf("new: critic ensembles of size %v are not "+
			"supported \n\twant(%v)\n\thave(%v)", c.Critics, EnsembleSize,
			c.Critics)
	}
	if c.CriticPrediction != "" && c.CriticPrediction != MinPrediction {
		return fmt.Errorf("new: critic prediction %q is not supported"+
			"\n\twant(%q)\n\thave(%q)", c.CriticPrediction, MinPrediction,
			c.CriticPrediction)
	}

	if c.InitWFn == nil {
		return fmt.Errorf("new: no weight initialization scheme given")
	}
	if c.PolicySolver == nil {
		return fmt.Errorf("new: no policy solver given")
	}
	if c.CriticSolver == nil {
		return fmt.Errorf("new: no critic solver given")
	}

	if c.Tau <= 0 || c.Tau > 1 {
		return fmt.Errorf("new: tau must be in (0, 1] \n\twant(0 < tau <= 1)"+
			"\n\thave(%v)", c.Tau)
	}

	if c.AlphaLearningRate <= 0 {
		return fmt.Errorf("new: temperature learning rate must be positive"+
			"\n\twant(>0)\n\thave(%v)", c.AlphaLearningRate)
	}

	if c.WarmupTransitions < 0 {
		return fmt.Errorf("new: warmup transitions must be non-negative"+
			"\n\twant(>=0)\n\thave(%v)", c.WarmupTransitions)
	}

	if c.ExpReplay.SampleSize < 1 {
		return fmt.Errorf("new: batch size must be positive\n\twant(>0)"+
			"\n\thave(%v)", c.ExpReplay.SampleSize)
	}

	return nil
}

// ValidAgent returns whether the agent is valid for the configuration.
// That is, whether Agent a can be constructed with Config c.
func (c Config) ValidAgent(a agent.Agent) bool {
	_, ok := a.(*SAC)
	return ok
}

// CreateAgent creates a new SAC agent based on the configuration
func (c Config) CreateAgent(e env.Environment, s uint64) (agent.Agent,
	error) {
	return New(e, c, int64(s))
}
