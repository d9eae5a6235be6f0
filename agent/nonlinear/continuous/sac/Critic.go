package sac

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gosac/network"
	"github.com/samuelfneumann/gosac/utils/op"
)

// EnsembleSize is the number of action-value networks in the critic
// ensemble. Exactly two critics are kept so that the ensemble
// prediction is the pairwise minimum, which counteracts the
// overestimation bias of bootstrapped action-value targets.
const EnsembleSize int = 2

// qLearner is a single member of the critic ensemble together with
// its training graph. The network maps a batch of (state, action)
// pairs to a batch of action values, and the graph computes the mean
// squared error between the predictions and a batch of update targets.
type qLearner struct {
	net network.NeuralNet

	state  *G.Node
	action *G.Node
	target *G.Node

	lossVal G.Value

	vm G.VM
}

// newQLearner returns a new qLearner on its own graph. The suffix
// parameter names the member's weights and distinguishes ensemble
// members in saved models.
func newQLearner(features, actionDims, batchSize int, hiddenSizes []int,
	biases []bool, activations []*network.Activation, init G.InitWFn,
	suffix string) (*qLearner, error) {
	g := G.NewGraph()

	state := G.NewMatrix(g, tensor.Float64, G.WithShape(batchSize, features),
		G.WithName("state"), G.WithInit(G.Zeroes()))
	action := G.NewMatrix(g, tensor.Float64,
		G.WithShape(batchSize, actionDims), G.WithName("action"),
		G.WithInit(G.Zeroes()))

	net, err := network.NewMultiHeadMLPFromInputs([]*G.Node{state, action},
		1, g, hiddenSizes, biases, init, activations, "Q", suffix)
	if err != nil {
		return nil, fmt.Errorf("newqlearner: could not create network: %v",
			err)
	}

	prediction := G.Must(G.Ravel(net.Prediction()[0]))

	target := G.NewVector(g, tensor.Float64, G.WithShape(batchSize),
		G.WithName("target"), G.WithInit(G.Zeroes()))

	loss := G.Must(G.Mean(G.Must(G.Square(G.Must(G.Sub(prediction,
		target))))))

	learner := &qLearner{
		net:    net,
		state:  state,
		action: action,
		target: target,
	}
	G.Read(loss, &learner.lossVal)

	if _, err := G.Grad(loss, net.Learnables()...); err != nil {
		return nil, fmt.Errorf("newqlearner: could not compute gradient: %v",
			err)
	}

	learner.vm = G.NewTapeMachine(g,
		G.BindDualValues(net.Learnables()...))

	return learner, nil
}

// run sets the learner's inputs and runs a forward and backward pass,
// leaving the gradients bound to the network's weights. The caller
// steps a solver on the network's model afterwards.
func (q *qLearner) run(state, action, target []float64) error {
	if err := setLearnerInput(q.state, state); err != nil {
		return fmt.Errorf("run: could not set state: %v", err)
	}
	if err := setLearnerInput(q.action, action); err != nil {
		return fmt.Errorf("run: could not set action: %v", err)
	}

	targetTensor := tensor.New(
		tensor.WithBacking(target),
		tensor.WithShape(len(target)),
	)
	if err := G.Let(q.target, targetTensor); err != nil {
		return fmt.Errorf("run: could not set target: %v", err)
	}

	if err := q.vm.RunAll(); err != nil {
		return fmt.Errorf("run: could not run learner: %v", err)
	}
	q.vm.Reset()

	return nil
}

// setLearnerInput sets the value of a matrix input node from a batch
// in row major order
func setLearnerInput(node *G.Node, data []float64) error {
	return G.Let(node, tensor.New(
		tensor.WithBacking(data),
		tensor.WithShape(node.Shape()...),
	))
}

// criticEnsemble is the twin action-value critic. Both members are
// regressed toward a shared batch of targets on every fit, each on its
// own graph, with a single solver stepping the combined weights.
type criticEnsemble struct {
	learners [EnsembleSize]*qLearner
	solver   G.Solver
	model    []G.ValueGrad

	features   int
	actionDims int
	batchSize  int
}

// newCriticEnsemble returns a new criticEnsemble of EnsembleSize
// members with identical architectures and independently initialized
// weights.
func newCriticEnsemble(features, actionDims, batchSize int,
	hiddenSizes []int, biases []bool, activations []*network.Activation,
	init G.InitWFn, solver G.Solver) (*criticEnsemble, error) {
	c := &criticEnsemble{
		solver:     solver,
		features:   features,
		actionDims: actionDims,
		batchSize:  batchSize,
	}

	for i := 0; i < EnsembleSize; i++ {
		learner, err := newQLearner(features, actionDims, batchSize,
			hiddenSizes, biases, activations, init, fmt.Sprint(i))
		if err != nil {
			return nil, fmt.Errorf("newcriticensemble: could not create "+
				"member %d: %v", i, err)
		}
		c.learners[i] = learner
		c.model = append(c.model, learner.net.Model()...)
	}

	return c, nil
}

// fit performs one regression step of every ensemble member toward the
// shared update targets
func (c *criticEnsemble) fit(state, action, target []float64) error {
	for i, learner := range c.learners {
		if err := learner.run(state, action, target); err != nil {
			return fmt.Errorf("fit: could not run member %d: %v", i, err)
		}
	}

	// A single solver steps both members so that the solver's cached
	// per-weight state stays consistent
	if err := c.solver.Step(c.model); err != nil {
		return fmt.Errorf("fit: could not step solver: %v", err)
	}

	return nil
}

// targetCritic is the target network counterpart of a criticEnsemble.
// Both target members live on a single forward-only graph whose output
// is the elementwise minimum of the members' predictions.
type targetCritic struct {
	nets [EnsembleSize]network.NeuralNet

	state  *G.Node
	action *G.Node

	minVal G.Value

	vm        G.VM
	batchSize int
}

// newTargetCritic returns a new targetCritic whose members' weights
// are exact copies of the argument ensemble's weights
func newTargetCritic(c *criticEnsemble, hiddenSizes []int, biases []bool,
	activations []*network.Activation, init G.InitWFn) (*targetCritic, error) {
	g := G.NewGraph()

	state := G.NewMatrix(g, tensor.Float64,
		G.WithShape(c.batchSize, c.features), G.WithName("state"),
		G.WithInit(G.Zeroes()))
	action := G.NewMatrix(g, tensor.Float64,
		G.WithShape(c.batchSize, c.actionDims), G.WithName("action"),
		G.WithInit(G.Zeroes()))

	t := &targetCritic{
		state:     state,
		action:    action,
		batchSize: c.batchSize,
	}

	predictions := make([]*G.Node, EnsembleSize)
	for i := 0; i < EnsembleSize; i++ {
		net, err := network.NewMultiHeadMLPFromInputs(
			[]*G.Node{state, action}, 1, g, hiddenSizes, biases, init,
			activations, "TargetQ", fmt.Sprint(i))
		if err != nil {
			return nil, fmt.Errorf("newtargetcritic: could not create "+
				"member %d: %v", i, err)
		}
		t.nets[i] = net
		predictions[i] = G.Must(G.Ravel(net.Prediction()[0]))
	}

	// Ensemble prediction: the pairwise minimum of the members
	minPrediction, err := op.Min(predictions[0], predictions[1])
	if err != nil {
		return nil, fmt.Errorf("newtargetcritic: could not take minimum "+
			"prediction: %v", err)
	}
	G.Read(minPrediction, &t.minVal)

	t.vm = G.NewTapeMachine(g)

	// Target networks start as exact copies of the value networks
	if err := t.set(c); err != nil {
		return nil, fmt.Errorf("newtargetcritic: could not copy weights: %v",
			err)
	}

	return t, nil
}

// set sets the target members' weights to exactly equal the argument
// ensemble's weights
func (t *targetCritic) set(c *criticEnsemble) error {
	for i := range t.nets {
		if err := t.nets[i].Set(c.learners[i].net); err != nil {
			return fmt.Errorf("set: could not set member %d: %v", i, err)
		}
	}
	return nil
}

// track moves each target member's weights toward the corresponding
// ensemble member's weights with a Polyak average
func (t *targetCritic) track(c *criticEnsemble, tau float64) error {
	// Tau = 1 is a hard update and an exact copy is cheaper
	if tau == 1.0 {
		return t.set(c)
	}

	for i := range t.nets {
		if err := t.nets[i].Polyak(c.learners[i].net, tau); err != nil {
			return fmt.Errorf("track: could not update member %d: %v", i, err)
		}
	}
	return nil
}

// predict returns the minimum action value over the target members for
// each (state, action) pair in the batch
func (t *targetCritic) predict(state, action []float64) ([]float64, error) {
	if err := setLearnerInput(t.state, state); err != nil {
		return nil, fmt.Errorf("predict: could not set state: %v", err)
	}
	if err := setLearnerInput(t.action, action); err != nil {
		return nil, fmt.Errorf("predict: could not set action: %v", err)
	}

	if err := t.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("predict: could not run target critic: %v",
			err)
	}
	defer t.vm.Reset()

	prediction := make([]float64, t.batchSize)
	copy(prediction, t.minVal.Data().([]float64))

	return prediction, nil
}
