// Package sac implements the Soft Actor-Critic algorithm, an
// off-policy actor-critic algorithm for continuous action spaces that
// maximizes the expected return together with the entropy of its
// policy:
//
// https://arxiv.org/abs/1812.05905
//
// The agent holds a squashed Gaussian policy, a twin ensemble of
// action-value critics with Polyak-averaged target copies, and a
// learned entropy temperature. Transitions are stored in an experience
// replay buffer, and each call to Step() samples a batch and performs
// one update of the critics and, once warmup has passed, of the actor
// and the temperature.
package sac

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gosac/agent/nonlinear/continuous/policy"
	"github.com/samuelfneumann/gosac/environment"
	"github.com/samuelfneumann/gosac/expreplay"
	"github.com/samuelfneumann/gosac/network"
	ts "github.com/samuelfneumann/gosac/timestep"
	"github.com/samuelfneumann/gosac/utils/op"
)

// SAC implements the Soft Actor-Critic algorithm. The agent moves
// through three phases as its replay buffer fills:
//
// While the buffer holds fewer transitions than its minimum capacity,
// Step() is a no-op and the agent only collects experience. Once the
// buffer reaches its minimum capacity, every Step() fits the critic
// ensemble and soft-updates the target critics. The actor and the
// temperature stay fixed until the buffer holds more transitions than
// the warmup threshold; past that, every Step() also updates both.
type SAC struct {
	// Behaviour policy, batch size 1, used to select actions
	behaviour *policy.SquashedGaussianMLP

	// Train policy and its loss graph. The critic copies are synced
	// from the ensemble before each actor update and evaluate the
	// value of the actions the policy takes in the sampled states.
	trainPolicy  *policy.SquashedGaussianMLP
	actorCritics [EnsembleSize]network.NeuralNet
	alphaInput   *G.Node
	actorLossVal G.Value
	actorVM      G.VM
	actorSolver  G.Solver

	// Sampler policy, used to sample bootstrap actions in the next
	// states without building gradients through the critic targets
	sampler   *policy.SquashedGaussianMLP
	samplerVM G.VM

	critics *criticEnsemble
	targets *targetCritic

	alpha *temperature

	replay expreplay.ExperienceReplayer

	batchSize         int
	warmupTransitions int
	tau               float64
	gamma             float64
	actionDims        int

	prevStep ts.TimeStep
}

// New returns a new SAC agent acting in env, configured by config. The
// seed determines action sampling and replay buffer sampling.
func New(env environment.Environment, config Config,
	seed int64) (*SAC, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("new: invalid configuration: %v", err)
	}
	if env.ActionSpec().Cardinality != environment.Continuous {
		return nil, fmt.Errorf("new: sac can only be used with continuous " +
			"action spaces")
	}

	features := env.ObservationSpec().Shape.Len()
	actionDims := env.ActionSpec().Shape.Len()
	batchSize := config.BatchSize()
	gamma := env.DiscountSpec().UpperBound.AtVec(0)
	init := config.InitWFn.InitWFn()

	// Behaviour policy selects actions one state at a time
	behaviour, err := policy.NewSquashedGaussianMLP(env, 1, G.NewGraph(),
		config.ActorMeanLayers, config.ActorMeanBiases,
		config.ActorMeanActivations, config.ActorLogStdLayers,
		config.ActorLogStdBiases, config.ActorLogStdActivations, init,
		uint64(seed))
	if err != nil {
		return nil, fmt.Errorf("new: could not create behaviour policy: %v",
			err)
	}

	// Train policy shares its weights' values with the behaviour
	// policy but acts on full batches
	trainPolicy, err := behaviour.CloneWithBatch(batchSize)
	if err != nil {
		return nil, fmt.Errorf("new: could not create train policy: %v", err)
	}

	agent := &SAC{
		behaviour:   behaviour,
		trainPolicy: trainPolicy,

		batchSize:         batchSize,
		warmupTransitions: config.WarmupTransitions,
		tau:               config.Tau,
		gamma:             gamma,
		actionDims:        actionDims,
	}

	// The actor loss graph evaluates critic copies at the actions the
	// policy takes in the input states, so that the policy can ascend
	// its critics' estimate of the soft action value
	gActor := trainPolicy.Graph()
	predictions := make([]*G.Node, EnsembleSize)
	for i := 0; i < EnsembleSize; i++ {
		net, err := network.NewMultiHeadMLPFromInputs(
			[]*G.Node{trainPolicy.StateNode(), trainPolicy.ActionNode()}, 1,
			gActor, config.CriticLayers, config.CriticBiases, init,
			config.CriticActivations, "Q", fmt.Sprint(i))
		if err != nil {
			return nil, fmt.Errorf("new: could not create critic copy %d: %v",
				i, err)
		}
		agent.actorCritics[i] = net
		predictions[i] = G.Must(G.Ravel(net.Prediction()[0]))
	}
	minQ, err := op.Min(predictions[0], predictions[1])
	if err != nil {
		return nil, fmt.Errorf("new: could not take minimum action value: %v",
			err)
	}

	agent.alphaInput = G.NewScalar(gActor, tensor.Float64,
		G.WithName("alpha"), G.WithValue(1.0))
	entropyTerm := G.Must(G.HadamardProd(agent.alphaInput,
		trainPolicy.LogProbNode()))

	actorLoss := G.Must(G.Mean(G.Must(G.Sub(entropyTerm, minQ))))
	G.Read(actorLoss, &agent.actorLossVal)

	if _, err := G.Grad(actorLoss, trainPolicy.Learnables()...); err != nil {
		return nil, fmt.Errorf("new: could not compute actor gradient: %v",
			err)
	}
	agent.actorVM = G.NewTapeMachine(gActor,
		G.BindDualValues(trainPolicy.Learnables()...))
	agent.actorSolver = config.PolicySolver

	// Sampler policy produces bootstrap actions for the critic targets
	agent.sampler, err = trainPolicy.Clone()
	if err != nil {
		return nil, fmt.Errorf("new: could not create sampler policy: %v",
			err)
	}
	agent.samplerVM = G.NewTapeMachine(agent.sampler.Graph())

	agent.critics, err = newCriticEnsemble(features, actionDims, batchSize,
		config.CriticLayers, config.CriticBiases, config.CriticActivations,
		init, config.CriticSolver)
	if err != nil {
		return nil, fmt.Errorf("new: could not create critic ensemble: %v",
			err)
	}

	agent.targets, err = newTargetCritic(agent.critics, config.CriticLayers,
		config.CriticBiases, config.CriticActivations, init)
	if err != nil {
		return nil, fmt.Errorf("new: could not create target critic: %v", err)
	}

	agent.alpha, err = newTemperature(actionDims, batchSize,
		config.AlphaLearningRate)
	if err != nil {
		return nil, fmt.Errorf("new: could not create temperature "+
			"controller: %v", err)
	}

	agent.replay, err = config.ExpReplay.Create(features, actionDims, seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create replay buffer: %v", err)
	}

	return agent, nil
}

// SelectAction runs the behaviour policy in the state of the argument
// timestep and returns the selected action
func (s *SAC) SelectAction(t ts.TimeStep) *mat.VecDense {
	return s.behaviour.SelectAction(t)
}

// Eval sets the agent to evaluation mode, in which actions are the
// squashed mean of the policy distribution
func (s *SAC) Eval() {
	s.behaviour.Eval()
}

// Train sets the agent to training mode, in which actions are sampled
// from the policy distribution
func (s *SAC) Train() {
	s.behaviour.Train()
}

// IsEval returns whether the agent is in evaluation mode
func (s *SAC) IsEval() bool {
	return s.behaviour.IsEval()
}

// ObserveFirst records the first timestep of an episode
func (s *SAC) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		return fmt.Errorf("observefirst: timestep is not the first of its "+
			"episode: %v", t)
	}
	s.prevStep = t
	return nil
}

// Observe records that the argument action was taken in the previously
// observed state, leading to the argument timestep, and stores the
// resulting transition in the replay buffer
func (s *SAC) Observe(action mat.Vector, nextStep ts.TimeStep) error {
	if nextStep.First() {
		fmt.Fprintf(os.Stderr, "Warning: Observe() should not be called "+
			"on the first timestep (nothing to observe)")
		s.prevStep = nextStep
		return nil
	}

	transition := ts.NewTransition(s.prevStep, action, nextStep, nil)
	if err := s.replay.Add(transition); err != nil {
		return fmt.Errorf("observe: could not add to replay buffer: %v", err)
	}
	s.prevStep = nextStep
	return nil
}

// EndEpisode performs cleanup at the end of an episode
func (s *SAC) EndEpisode() {}

// Alpha returns the current entropy temperature
func (s *SAC) Alpha() float64 {
	return s.alpha.Alpha()
}

// Step performs a single update of the agent. While the replay buffer
// is below its minimum capacity the call is a no-op. Once the buffer
// can be sampled, the critic ensemble is fit toward the soft Bellman
// targets and the target critics are soft-updated; once the buffer
// holds more transitions than the warmup threshold, the actor and the
// entropy temperature are updated as well.
func (s *SAC) Step() error {
	state, action, reward, nextState, absorbing, err := s.replay.Sample()
	if expreplay.IsEmptyBuffer(err) || expreplay.IsInsufficientSamples(err) {
		// Still collecting the initial transitions
		return nil
	} else if err != nil {
		return fmt.Errorf("step: could not sample replay buffer: %v", err)
	}

	// The actor and the temperature stay fixed during warmup
	if s.replay.Capacity() > s.warmupTransitions {
		if err := s.updateActor(state); err != nil {
			return fmt.Errorf("step: %v", err)
		}
	}

	target, err := s.criticTargets(reward, nextState, absorbing)
	if err != nil {
		return fmt.Errorf("step: %v", err)
	}

	if err := s.critics.fit(state, action, target); err != nil {
		return fmt.Errorf("step: %v", err)
	}

	if err := s.targets.track(s.critics, s.tau); err != nil {
		return fmt.Errorf("step: %v", err)
	}

	return nil
}

// updateActor performs one ascent step of the policy on the critics'
// estimate of the soft action value in the argument states, followed
// by one update of the entropy temperature with the log probabilities
// of the sampled actions
func (s *SAC) updateActor(state []float64) error {
	// The critic copies on the actor graph lag one fit behind the
	// ensemble, so sync them before each update
	for i := range s.actorCritics {
		err := s.actorCritics[i].Set(s.critics.learners[i].net)
		if err != nil {
			return fmt.Errorf("updateactor: could not sync critic copy "+
				"%d: %v", i, err)
		}
	}

	if err := s.trainPolicy.SetInput(state); err != nil {
		return fmt.Errorf("updateactor: could not set states: %v", err)
	}
	if err := s.trainPolicy.SampleNoise(); err != nil {
		return fmt.Errorf("updateactor: could not sample noise: %v", err)
	}
	if err := G.Let(s.alphaInput, s.alpha.Alpha()); err != nil {
		return fmt.Errorf("updateactor: could not set temperature: %v", err)
	}

	if err := s.actorVM.RunAll(); err != nil {
		return fmt.Errorf("updateactor: could not run actor graph: %v", err)
	}
	if err := s.actorSolver.Step(s.trainPolicy.Model()); err != nil {
		return fmt.Errorf("updateactor: could not step solver: %v", err)
	}
	logProbs := valueFloats(s.trainPolicy.LogProbVal())
	s.actorVM.Reset()

	// The behaviour policy follows the train policy
	if err := s.behaviour.Set(s.trainPolicy); err != nil {
		return fmt.Errorf("updateactor: could not sync behaviour policy: %v",
			err)
	}

	if err := s.alpha.update(logProbs); err != nil {
		return fmt.Errorf("updateactor: could not update temperature: %v",
			err)
	}

	return nil
}

// criticTargets computes the soft Bellman target for each transition
// in the sampled batch:
//
//	y = r + gamma * (minQ'(s', a') - alpha * log pi(a'|s'))
//
// where a' is sampled from the current policy in s' and minQ' is the
// minimum prediction of the target critics. Absorbing next states
// contribute no bootstrapped value, so their target is the reward.
func (s *SAC) criticTargets(reward, nextState,
	absorbing []float64) ([]float64, error) {
	if err := s.sampler.Set(s.trainPolicy); err != nil {
		return nil, fmt.Errorf("critictargets: could not sync sampler "+
			"policy: %v", err)
	}
	if err := s.sampler.SetInput(nextState); err != nil {
		return nil, fmt.Errorf("critictargets: could not set next states: %v",
			err)
	}
	if err := s.sampler.SampleNoise(); err != nil {
		return nil, fmt.Errorf("critictargets: could not sample noise: %v",
			err)
	}
	if err := s.samplerVM.RunAll(); err != nil {
		return nil, fmt.Errorf("critictargets: could not run sampler "+
			"policy: %v", err)
	}
	nextAction := valueFloats(s.sampler.ActionVal())
	nextLogProbs := valueFloats(s.sampler.LogProbVal())
	s.samplerVM.Reset()

	nextQ, err := s.targets.predict(nextState, nextAction)
	if err != nil {
		return nil, fmt.Errorf("critictargets: could not predict next "+
			"action values: %v", err)
	}

	alpha := s.alpha.Alpha()
	target := make([]float64, s.batchSize)
	for i := range target {
		bootstrap := (nextQ[i] - alpha*nextLogProbs[i]) * (1 - absorbing[i])
		target[i] = reward[i] + s.gamma*bootstrap
	}

	return target, nil
}

// valueFloats copies the data of a Value into a new []float64
func valueFloats(v G.Value) []float64 {
	switch data := v.Data().(type) {
	case float64:
		return []float64{data}
	case []float64:
		out := make([]float64, len(data))
		copy(out, data)
		return out
	default:
		panic(fmt.Sprintf("valuefloats: value has unexpected type %T", data))
	}
}
