package sac

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"

	"github.com/samuelfneumann/gosac/environment"
	ts "github.com/samuelfneumann/gosac/timestep"
)

// continuousEnv is a stub environment with fixed observation and
// action spaces and deterministic dynamics, used to drive agents in
// tests
type continuousEnv struct {
	features   int
	actionDims int
	minAction  float64
	maxAction  float64
	discount   float64

	current int
}

func newContinuousEnv() *continuousEnv {
	return &continuousEnv{
		features:   3,
		actionDims: 1,
		minAction:  -1.0,
		maxAction:  1.0,
		discount:   0.99,
	}
}

func (c *continuousEnv) observation() *mat.VecDense {
	obs := mat.NewVecDense(c.features, nil)
	for i := 0; i < c.features; i++ {
		obs.SetVec(i, math.Sin(float64(c.current+i)))
	}
	return obs
}

func (c *continuousEnv) Reset() ts.TimeStep {
	c.current = 0
	return ts.New(ts.First, 0, c.discount, c.observation(), 0)
}

func (c *continuousEnv) Step(action mat.Vector) (ts.TimeStep, bool) {
	c.current++
	reward := 1.0 - math.Abs(action.AtVec(0))
	return ts.New(ts.Mid, reward, c.discount, c.observation(),
		c.current), false
}

func (c *continuousEnv) ObservationSpec() environment.Spec {
	bounds := mat.NewVecDense(c.features, nil)
	return environment.NewSpec(mat.NewVecDense(c.features, nil),
		environment.Observation, bounds, bounds, environment.Continuous)
}

func (c *continuousEnv) ActionSpec() environment.Spec {
	lower := mat.NewVecDense(c.actionDims, nil)
	upper := mat.NewVecDense(c.actionDims, nil)
	for i := 0; i < c.actionDims; i++ {
		lower.SetVec(i, c.minAction)
		upper.SetVec(i, c.maxAction)
	}
	return environment.NewSpec(mat.NewVecDense(c.actionDims, nil),
		environment.Action, lower, upper, environment.Continuous)
}

func (c *continuousEnv) DiscountSpec() environment.Spec {
	bounds := mat.NewVecDense(1, []float64{c.discount})
	return environment.NewSpec(mat.NewVecDense(1, nil),
		environment.Discount, bounds, bounds, environment.Continuous)
}

func (c *continuousEnv) RewardSpec() environment.Spec {
	lower := mat.NewVecDense(1, []float64{0})
	upper := mat.NewVecDense(1, []float64{1})
	return environment.NewSpec(mat.NewVecDense(1, nil),
		environment.Reward, lower, upper, environment.Continuous)
}

// interact runs the agent in env for n environmental steps, calling
// Step() after every observed transition
func interact(t *testing.T, agent *SAC, env *continuousEnv, n int) {
	step := env.Reset()
	if err := agent.ObserveFirst(step); err != nil {
		t.Fatalf("could not observe first timestep: %v", err)
	}

	for i := 0; i < n; i++ {
		action := agent.SelectAction(step)
		next, _ := env.Step(action)
		if err := agent.Observe(action, next); err != nil {
			t.Fatalf("could not observe transition %v: %v", i, err)
		}
		if err := agent.Step(); err != nil {
			t.Fatalf("could not step agent on transition %v: %v", i, err)
		}
		step = next
	}
}

// snapshot copies the values of all learnable weights of a set of
// nodes
func snapshot(t *testing.T, nodes G.Nodes) []float64 {
	var weights []float64
	for _, node := range nodes {
		weights = append(weights, learnableData(t, node)...)
	}
	return weights
}

// equalWeights returns whether two weight snapshots are identical
func equalWeights(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestStepIsNoOpWhileCollecting ensures that no parameters change
// while the replay buffer is below its minimum capacity
func TestStepIsNoOpWhileCollecting(t *testing.T) {
	env := newContinuousEnv()
	config := validConfig(t, 4, 10, 100, 0)
	agent, err := New(env, config, 42)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}

	criticBefore := snapshot(t, agent.critics.learners[0].net.Learnables())
	actorBefore := snapshot(t, agent.behaviour.Learnables())

	interact(t, agent, env, config.ExpReplay.MinReplayCapacity-1)

	criticAfter := snapshot(t, agent.critics.learners[0].net.Learnables())
	actorAfter := snapshot(t, agent.behaviour.Learnables())

	if !equalWeights(criticBefore, criticAfter) {
		t.Errorf("critic weights changed while collecting")
	}
	if !equalWeights(actorBefore, actorAfter) {
		t.Errorf("actor weights changed while collecting")
	}
	if agent.Alpha() != 1.0 {
		t.Errorf("temperature changed while collecting \n\twant(%v)"+
			"\n\thave(%v)", 1.0, agent.Alpha())
	}
}

// TestWarmupUpdatesOnlyCritic ensures that between the minimum replay
// capacity and the warmup threshold only the critic and its targets
// change, and that the actor and temperature join in once the
// threshold is passed
func TestWarmupUpdatesOnlyCritic(t *testing.T) {
	env := newContinuousEnv()
	minCapacity, warmup := 10, 20
	config := validConfig(t, 4, minCapacity, 100, warmup)
	agent, err := New(env, config, 42)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}

	criticBefore := snapshot(t, agent.critics.learners[0].net.Learnables())
	actorBefore := snapshot(t, agent.behaviour.Learnables())

	// The buffer holds exactly the warmup threshold: critic updates
	// have run, actor and temperature updates have not
	interact(t, agent, env, warmup)

	criticAfter := snapshot(t, agent.critics.learners[0].net.Learnables())
	actorAfter := snapshot(t, agent.behaviour.Learnables())

	if equalWeights(criticBefore, criticAfter) {
		t.Errorf("critic weights did not change after buffer " +
			"initialization")
	}
	if !equalWeights(actorBefore, actorAfter) {
		t.Errorf("actor weights changed during warmup")
	}
	if agent.Alpha() != 1.0 {
		t.Errorf("temperature changed during warmup \n\twant(%v)"+
			"\n\thave(%v)", 1.0, agent.Alpha())
	}

	// One more transition pushes the buffer past the threshold
	interact(t, agent, env, 1)

	actorLearning := snapshot(t, agent.behaviour.Learnables())
	if equalWeights(actorBefore, actorLearning) {
		t.Errorf("actor weights did not change after warmup")
	}
	if agent.Alpha() == 1.0 {
		t.Errorf("temperature did not change after warmup")
	}
}

// TestLearningPhases runs the learning schedule end to end: the replay
// buffer becomes sampleable at exactly its minimum capacity, the
// critic first changes on that call, and the actor changes once the
// buffer exceeds the warmup threshold
func TestLearningPhases(t *testing.T) {
	env := newContinuousEnv()
	config := validConfig(t, 32, 100, 1000, 50)
	agent, err := New(env, config, 42)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}

	criticStart := snapshot(t, agent.critics.learners[0].net.Learnables())

	interact(t, agent, env, 99)
	if agent.replay.Initialized() {
		t.Fatalf("replay buffer initialized with %v transitions, min "+
			"capacity %v", agent.replay.Capacity(),
			config.ExpReplay.MinReplayCapacity)
	}
	critic99 := snapshot(t, agent.critics.learners[0].net.Learnables())
	if !equalWeights(criticStart, critic99) {
		t.Fatalf("critic weights changed before buffer initialization")
	}

	interact(t, agent, env, 1)
	if !agent.replay.Initialized() {
		t.Fatalf("replay buffer not initialized at its minimum capacity")
	}
	critic100 := snapshot(t, agent.critics.learners[0].net.Learnables())
	if equalWeights(criticStart, critic100) {
		t.Fatalf("critic weights did not change when the buffer became " +
			"sampleable")
	}

	actorBefore := snapshot(t, agent.behaviour.MeanLearnables())
	interact(t, agent, env, 60)
	actorAfter := snapshot(t, agent.behaviour.MeanLearnables())
	if equalWeights(actorBefore, actorAfter) {
		t.Fatalf("actor mean weights did not change past the warmup " +
			"threshold")
	}
}

// TestTargetsStartEqualToCritics ensures that the target critic starts
// as an exact copy of the value networks when the agent is constructed
func TestTargetsStartEqualToCritics(t *testing.T) {
	env := newContinuousEnv()
	config := validConfig(t, 4, 10, 100, 0)
	agent, err := New(env, config, 7)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}

	for i := 0; i < EnsembleSize; i++ {
		critic := snapshot(t, agent.critics.learners[i].net.Learnables())
		target := snapshot(t, agent.targets.nets[i].Learnables())
		if !equalWeights(critic, target) {
			t.Errorf("target member %v does not equal its value network at "+
				"construction", i)
		}
	}
}

// TestAbsorbingTargetIsReward ensures that the critic update target
// for a transition into an absorbing state is exactly the reward
func TestAbsorbingTargetIsReward(t *testing.T) {
	env := newContinuousEnv()
	batchSize := 4
	config := validConfig(t, batchSize, 10, 100, 0)
	agent, err := New(env, config, 11)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}

	reward := []float64{1.0, -2.0, 3.0, 0.5}
	nextState := make([]float64, batchSize*env.features)
	for i := range nextState {
		nextState[i] = math.Cos(float64(i))
	}
	absorbing := []float64{1, 1, 1, 1}

	target, err := agent.criticTargets(reward, nextState, absorbing)
	if err != nil {
		t.Fatalf("could not compute critic targets: %v", err)
	}
	for i := range target {
		if target[i] != reward[i] {
			t.Errorf("absorbing target %v bootstrapped \n\twant(%v)"+
				"\n\thave(%v)", i, reward[i], target[i])
		}
	}

	// A non-absorbing batch should generally bootstrap
	none := []float64{0, 0, 0, 0}
	target, err = agent.criticTargets(reward, nextState, none)
	if err != nil {
		t.Fatalf("could not compute critic targets: %v", err)
	}
	bootstrapped := false
	for i := range target {
		if target[i] != reward[i] {
			bootstrapped = true
		}
	}
	if !bootstrapped {
		t.Errorf("no non-absorbing target bootstrapped")
	}
}

// TestSelectActionWithinBounds ensures that the agent's actions stay
// within the environment's action bounds before and after learning
func TestSelectActionWithinBounds(t *testing.T) {
	env := newContinuousEnv()
	config := validConfig(t, 4, 10, 100, 10)
	agent, err := New(env, config, 3)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}

	step := env.Reset()
	if err := agent.ObserveFirst(step); err != nil {
		t.Fatalf("could not observe first timestep: %v", err)
	}
	for i := 0; i < 30; i++ {
		action := agent.SelectAction(step)
		if a := action.AtVec(0); a < env.minAction || a > env.maxAction {
			t.Fatalf("action out of bounds on step %v \n\twant([%v, %v])"+
				"\n\thave(%v)", i, env.minAction, env.maxAction, a)
		}

		next, _ := env.Step(action)
		if err := agent.Observe(action, next); err != nil {
			t.Fatalf("could not observe transition %v: %v", i, err)
		}
		if err := agent.Step(); err != nil {
			t.Fatalf("could not step agent on transition %v: %v", i, err)
		}
		step = next
	}
}
