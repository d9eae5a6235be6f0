// Package policy implements continuous-action policies as Gorgonia
// computational graphs.
package policy

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gosac/environment"
	"github.com/samuelfneumann/gosac/network"
	ts "github.com/samuelfneumann/gosac/timestep"
	"github.com/samuelfneumann/gosac/utils/floatutils"
)

// logProbStabilizer is added inside the logarithm of the squashing
// correction so that the log probability stays finite when the
// squashed action saturates at an action bound.
const logProbStabilizer float64 = 1e-6

// SquashedGaussianMLP implements a squashed Gaussian policy on a
// Gorgonia graph. Two separate MLPs, sharing a single state input
// node, predict the mean and the log standard deviation of a diagonal
// Gaussian over unbounded actions. A raw action is sampled with the
// reparameterization trick:
//
//	a_raw = mean + exp(logStd) ⊙ eps		eps ~ N(0, I)
//
// and squashed through tanh before an affine rescaling maps it into
// the environment's action bounds [min, max]:
//
//	a = tanh(a_raw) * (max - min)/2 + (max + min)/2
//
// The graph also computes the log probability of the squashed action,
// which is the Gaussian log density of a_raw corrected by the log
// determinant of the tanh Jacobian, summed over action dimensions.
//
// The noise eps is an input node of the graph, so gradients of any
// cost built on the action or log probability nodes flow back into the
// mean and log standard deviation networks.
//
// A SquashedGaussianMLP with a batch size of 1 owns a VM for its graph
// and can select actions in an environment. Policies with larger batch
// sizes only add nodes to their graph; running the graph is left to
// the caller.
type SquashedGaussianMLP struct {
	g         *G.ExprGraph
	meanNet   network.NeuralNet
	logStdNet network.NeuralNet

	state *G.Node // Input node: batch of state observations
	eps   *G.Node // Input node: standard normal noise

	action  *G.Node // Squashed, rescaled actions
	logProb *G.Node // Log probability of each action in the batch

	actionVal  G.Value
	logProbVal G.Value
	meanVal    G.Value
	stddevVal  G.Value

	normal distmv.Rander
	seed   uint64

	vm G.VM // Non-nil only when batchSize == 1

	features   int
	actionDims int
	batchSize  int
	minAction  []float64
	maxAction  []float64

	// Data needed for cloning
	meanHiddenSizes   []int
	meanBiases        []bool
	meanActivations   []*network.Activation
	logStdHiddenSizes []int
	logStdBiases      []bool
	logStdActivations []*network.Activation
	init              G.InitWFn

	evalMode bool
}

// NewSquashedGaussianMLP returns a new SquashedGaussianMLP on the
// graph g, acting in the action space of env. The mean and log
// standard deviation networks are MLPs described by the hidden layer
// sizes, biases, and activations arguments, in the manner of
// network.NewMultiHeadMLP.
//
// The env argument must have continuous actions, and every action
// dimension must have a strictly positive bound width. An error is
// returned otherwise.
func NewSquashedGaussianMLP(env environment.Environment, batchSize int,
	g *G.ExprGraph, meanHiddenSizes []int, meanBiases []bool,
	meanActivations []*network.Activation, logStdHiddenSizes []int,
	logStdBiases []bool, logStdActivations []*network.Activation,
	init G.InitWFn, seed uint64) (*SquashedGaussianMLP, error) {
	actionSpec := env.ActionSpec()
	if actionSpec.Cardinality != environment.Continuous {
		return nil, fmt.Errorf("newsquashedgaussianmlp: action space must " +
			"be continuous")
	}

	actionDims := actionSpec.Shape.Len()
	minAction := make([]float64, actionDims)
	maxAction := make([]float64, actionDims)
	for i := 0; i < actionDims; i++ {
		minAction[i] = actionSpec.LowerBound.AtVec(i)
		maxAction[i] = actionSpec.UpperBound.AtVec(i)
	}

	features := env.ObservationSpec().Shape.Len()

	return newSquashedGaussianMLP(features, actionDims, batchSize, g,
		minAction, maxAction, meanHiddenSizes, meanBiases, meanActivations,
		logStdHiddenSizes, logStdBiases, logStdActivations, init, seed)
}

// newSquashedGaussianMLP builds the policy graph
func newSquashedGaussianMLP(features, actionDims, batchSize int,
	g *G.ExprGraph, minAction, maxAction []float64, meanHiddenSizes []int,
	meanBiases []bool, meanActivations []*network.Activation,
	logStdHiddenSizes []int, logStdBiases []bool,
	logStdActivations []*network.Activation, init G.InitWFn,
	seed uint64) (*SquashedGaussianMLP, error) {
	halfRange := make([]float64, actionDims)
	center := make([]float64, actionDims)
	for i := 0; i < actionDims; i++ {
		if maxAction[i] <= minAction[i] {
			return nil, fmt.Errorf("newsquashedgaussianmlp: action dimension "+
				"%d has no width: bounds [%v, %v]", i, minAction[i],
				maxAction[i])
		}
		halfRange[i] = (maxAction[i] - minAction[i]) / 2
		center[i] = (maxAction[i] + minAction[i]) / 2
	}

	// The mean and log standard deviation networks share the state
	// input node
	state := G.NewMatrix(g, tensor.Float64, G.WithShape(batchSize, features),
		G.WithName("state"), G.WithInit(G.Zeroes()))

	meanNet, err := network.NewMultiHeadMLPFromInputs([]*G.Node{state},
		actionDims, g, meanHiddenSizes, meanBiases, init, meanActivations,
		"Mean", "")
	if err != nil {
		return nil, fmt.Errorf("newsquashedgaussianmlp: could not create "+
			"mean network: %v", err)
	}

	logStdNet, err := network.NewMultiHeadMLPFromInputs([]*G.Node{state},
		actionDims, g, logStdHiddenSizes, logStdBiases, init,
		logStdActivations, "LogStd", "")
	if err != nil {
		return nil, fmt.Errorf("newsquashedgaussianmlp: could not create "+
			"log std network: %v", err)
	}

	mean := meanNet.Prediction()[0]
	logStd := logStdNet.Prediction()[0]
	stddev := G.Must(G.Exp(logStd))

	// Reparameterization trick: raw = mean + stddev * eps
	eps := G.NewMatrix(g, tensor.Float64, G.WithShape(batchSize, actionDims),
		G.WithName("actionNoise"), G.WithInit(G.Zeroes()))
	raw := G.Must(G.Add(mean, G.Must(G.HadamardProd(stddev, eps))))

	// Squash into (-1, 1), then rescale into the action bounds
	squashed := G.Must(G.Tanh(raw))

	halfRangeNode := G.NewVector(g, tensor.Float64, G.WithShape(actionDims),
		G.WithName("actionHalfRange"), G.WithInit(G.Zeroes()))
	err = G.Let(halfRangeNode, tensor.New(
		tensor.WithBacking(halfRange),
		tensor.WithShape(actionDims),
	))
	if err != nil {
		return nil, fmt.Errorf("newsquashedgaussianmlp: could not set "+
			"action half range: %v", err)
	}

	centerNode := G.NewVector(g, tensor.Float64, G.WithShape(actionDims),
		G.WithName("actionCenter"), G.WithInit(G.Zeroes()))
	err = G.Let(centerNode, tensor.New(
		tensor.WithBacking(center),
		tensor.WithShape(actionDims),
	))
	if err != nil {
		return nil, fmt.Errorf("newsquashedgaussianmlp: could not set "+
			"action center: %v", err)
	}

	action := G.Must(G.BroadcastHadamardProd(squashed, halfRangeNode, nil,
		[]byte{0}))
	action = G.Must(G.BroadcastAdd(action, centerNode, nil, []byte{0}))

	// Gaussian log density of the raw action, per dimension
	negativeHalf := G.NewConstant(-0.5)
	logSqrt2Pi := G.NewConstant(math.Log(math.Sqrt(2 * math.Pi)))
	zScore := G.Must(G.HadamardDiv(G.Must(G.Sub(raw, mean)), stddev))
	logPdf := G.Must(G.HadamardProd(negativeHalf, G.Must(G.Square(zScore))))
	logPdf = G.Must(G.Sub(logPdf, logStd))
	logPdf = G.Must(G.Sub(logPdf, logSqrt2Pi))

	// Log determinant of the tanh Jacobian. The stabilizer keeps the
	// logarithm finite when tanh saturates
	one := G.NewConstant(1.0)
	stabilizer := G.NewConstant(logProbStabilizer)
	correction := G.Must(G.Sub(one, G.Must(G.Square(squashed))))
	correction = G.Must(G.Log(G.Must(G.Add(correction, stabilizer))))
	logPdf = G.Must(G.Sub(logPdf, correction))

	// Joint log probability over action dimensions
	logProb := G.Must(G.Sum(logPdf, 1))

	p := &SquashedGaussianMLP{
		g:         g,
		meanNet:   meanNet,
		logStdNet: logStdNet,

		state: state,
		eps:   eps,

		action:  action,
		logProb: logProb,

		seed: seed,

		features:   features,
		actionDims: actionDims,
		batchSize:  batchSize,
		minAction:  minAction,
		maxAction:  maxAction,

		meanHiddenSizes:   meanHiddenSizes,
		meanBiases:        meanBiases,
		meanActivations:   meanActivations,
		logStdHiddenSizes: logStdHiddenSizes,
		logStdBiases:      logStdBiases,
		logStdActivations: logStdActivations,
		init:              init,
	}

	G.Read(p.action, &p.actionVal)
	G.Read(p.logProb, &p.logProbVal)
	G.Read(mean, &p.meanVal)
	G.Read(stddev, &p.stddevVal)

	// Standard normal distribution for sampling the noise input
	means := make([]float64, actionDims)
	stds := mat.NewDiagDense(actionDims, floatutils.Ones(actionDims))
	source := rand.NewSource(seed)
	normal, ok := distmv.NewNormal(means, stds, source)
	if !ok {
		return nil, fmt.Errorf("newsquashedgaussianmlp: could not create " +
			"standard normal for action noise")
	}
	p.normal = normal

	// Only policies that select actions in an environment run their
	// own graph
	if batchSize == 1 {
		p.vm = G.NewTapeMachine(g)
	}

	return p, nil
}

// Graph returns the computational graph that the policy is a part of
func (s *SquashedGaussianMLP) Graph() *G.ExprGraph {
	return s.g
}

// BatchSize returns the number of states in an input batch
func (s *SquashedGaussianMLP) BatchSize() int {
	return s.batchSize
}

// Features returns the number of features in a single state observation
func (s *SquashedGaussianMLP) Features() int {
	return s.features
}

// ActionDims returns the number of action dimensions
func (s *SquashedGaussianMLP) ActionDims() int {
	return s.actionDims
}

// StateNode returns the input node holding the batch of states
func (s *SquashedGaussianMLP) StateNode() *G.Node {
	return s.state
}

// ActionNode returns the node holding the squashed, rescaled actions
func (s *SquashedGaussianMLP) ActionNode() *G.Node {
	return s.action
}

// LogProbNode returns the node holding the log probability of each
// action in the batch
func (s *SquashedGaussianMLP) LogProbNode() *G.Node {
	return s.logProb
}

// ActionVal returns the value of the action node after the graph has
// been run
func (s *SquashedGaussianMLP) ActionVal() G.Value {
	return s.actionVal
}

// LogProbVal returns the value of the log probability node after the
// graph has been run
func (s *SquashedGaussianMLP) LogProbVal() G.Value {
	return s.logProbVal
}

// Mean returns the value of the Gaussian mean after the graph has been
// run
func (s *SquashedGaussianMLP) Mean() G.Value {
	return s.meanVal
}

// StdDev returns the value of the Gaussian standard deviation after
// the graph has been run
func (s *SquashedGaussianMLP) StdDev() G.Value {
	return s.stddevVal
}

// SetInput sets the value of the state input node. The input is
// interpreted as a batch of state observations in row major order.
func (s *SquashedGaussianMLP) SetInput(input []float64) error {
	if len(input) != s.features*s.batchSize {
		return fmt.Errorf("setinput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", s.features*s.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(s.batchSize, s.features),
	)
	return G.Let(s.state, inputTensor)
}

// SampleNoise draws fresh standard normal noise for each batch row and
// sets the noise input node, so that the next run of the graph samples
// new actions.
func (s *SquashedGaussianMLP) SampleNoise() error {
	noise := make([]float64, s.batchSize*s.actionDims)
	for i := 0; i < s.batchSize; i++ {
		s.normal.Rand(noise[i*s.actionDims : (i+1)*s.actionDims])
	}
	noiseTensor := tensor.New(
		tensor.WithBacking(noise),
		tensor.WithShape(s.batchSize, s.actionDims),
	)
	return G.Let(s.eps, noiseTensor)
}

// zeroNoise sets the noise input node to zero so that the next run of
// the graph produces the squashed mean action
func (s *SquashedGaussianMLP) zeroNoise() error {
	noiseTensor := tensor.New(
		tensor.WithBacking(make([]float64, s.batchSize*s.actionDims)),
		tensor.WithShape(s.batchSize, s.actionDims),
	)
	return G.Let(s.eps, noiseTensor)
}

// SelectAction runs the policy in the state of the argument timestep
// and returns the selected action. In training mode the action is
// sampled from the policy distribution; in evaluation mode the
// squashed mean action is returned. Only policies with a batch size of
// 1 can select actions.
func (s *SquashedGaussianMLP) SelectAction(t ts.TimeStep) *mat.VecDense {
	if s.batchSize != 1 {
		panic("selectaction: only policies with batch size 1 can select " +
			"actions")
	}

	obs := make([]float64, t.Observation.Len())
	for i := range obs {
		obs[i] = t.Observation.AtVec(i)
	}
	if err := s.SetInput(obs); err != nil {
		panic(fmt.Sprintf("selectaction: could not set input: %v", err))
	}

	var err error
	if s.IsEval() {
		err = s.zeroNoise()
	} else {
		err = s.SampleNoise()
	}
	if err != nil {
		panic(fmt.Sprintf("selectaction: could not set noise: %v", err))
	}

	if err := s.vm.RunAll(); err != nil {
		panic(fmt.Sprintf("selectaction: could not run policy: %v", err))
	}
	defer s.vm.Reset()

	action := make([]float64, s.actionDims)
	switch data := s.actionVal.Data().(type) {
	case float64:
		action[0] = data
	case []float64:
		copy(action, data)
	default:
		panic(fmt.Sprintf("selectaction: action has unexpected type %T",
			data))
	}

	return mat.NewVecDense(s.actionDims, action)
}

// Set sets the weights of the policy to be equal to the weights of
// another policy of the same architecture
func (s *SquashedGaussianMLP) Set(source *SquashedGaussianMLP) error {
	if err := s.meanNet.Set(source.meanNet); err != nil {
		return fmt.Errorf("set: could not set mean network: %v", err)
	}
	if err := s.logStdNet.Set(source.logStdNet); err != nil {
		return fmt.Errorf("set: could not set log std network: %v", err)
	}
	return nil
}

// Clone clones the policy to a new computational graph, keeping the
// batch size
func (s *SquashedGaussianMLP) Clone() (*SquashedGaussianMLP, error) {
	return s.CloneWithBatch(s.batchSize)
}

// CloneWithBatch clones the policy to a new computational graph with a
// new input batch size. The cloned policy has the same weights as the
// original.
func (s *SquashedGaussianMLP) CloneWithBatch(
	batchSize int) (*SquashedGaussianMLP, error) {
	graph := G.NewGraph()

	clone, err := newSquashedGaussianMLP(s.features, s.actionDims, batchSize,
		graph, s.minAction, s.maxAction, s.meanHiddenSizes, s.meanBiases,
		s.meanActivations, s.logStdHiddenSizes, s.logStdBiases,
		s.logStdActivations, s.init, s.seed)
	if err != nil {
		return nil, fmt.Errorf("clonewithbatch: %v", err)
	}

	if err := clone.Set(s); err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not copy weights: %v",
			err)
	}

	return clone, nil
}

// Learnables returns the learnable nodes of the mean and log standard
// deviation networks
func (s *SquashedGaussianMLP) Learnables() G.Nodes {
	learnables := s.meanNet.Learnables()
	return append(learnables, s.logStdNet.Learnables()...)
}

// Model returns the learnable nodes of the policy with their gradients
func (s *SquashedGaussianMLP) Model() []G.ValueGrad {
	model := s.meanNet.Model()
	return append(model, s.logStdNet.Model()...)
}

// MeanLearnables returns the learnable nodes of the mean network only
func (s *SquashedGaussianMLP) MeanLearnables() G.Nodes {
	return s.meanNet.Learnables()
}

// Eval sets the policy to evaluation mode, in which SelectAction
// returns the squashed mean action
func (s *SquashedGaussianMLP) Eval() {
	s.evalMode = true
}

// Train sets the policy to training mode, in which SelectAction
// samples from the policy distribution
func (s *SquashedGaussianMLP) Train() {
	s.evalMode = false
}

// IsEval returns whether the policy is in evaluation mode
func (s *SquashedGaussianMLP) IsEval() bool {
	return s.evalMode
}
