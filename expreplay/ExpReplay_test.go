package expreplay

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gosac/timestep"
)

// testTransition returns a transition whose state is filled with v,
// whose next state is filled with v+1, whose action is filled with -v,
// and whose reward is v
func testTransition(features, actionDims int, v float64,
	absorbing bool) timestep.Transition {
	state := mat.NewVecDense(features, nil)
	nextState := mat.NewVecDense(features, nil)
	for i := 0; i < features; i++ {
		state.SetVec(i, v)
		nextState.SetVec(i, v+1)
	}

	action := mat.NewVecDense(actionDims, nil)
	for i := 0; i < actionDims; i++ {
		action.SetVec(i, -v)
	}

	return timestep.Transition{
		State:     state,
		Action:    action,
		Reward:    v,
		Discount:  1.0,
		NextState: nextState,
		Absorbing: absorbing,
	}
}

// TestSampleBeforeMinCapacity ensures that a replay buffer cannot be
// sampled until it holds its minimum number of transitions
func TestSampleBeforeMinCapacity(t *testing.T) {
	features, actionDims := 3, 2
	minCapacity, maxCapacity := 5, 10
	batchSize := 2

	buffer, err := Factory(Fifo, Uniform, minCapacity, maxCapacity, features,
		actionDims, 1, batchSize, 42)
	if err != nil {
		t.Fatalf("could not create replay buffer: %v", err)
	}

	if _, _, _, _, _, err := buffer.Sample(); !IsEmptyBuffer(err) {
		t.Errorf("expected empty buffer error, got %v", err)
	}

	for i := 0; i < minCapacity-1; i++ {
		err := buffer.Add(testTransition(features, actionDims, float64(i),
			false))
		if err != nil {
			t.Fatalf("could not add transition %d: %v", i, err)
		}

		if buffer.Initialized() {
			t.Fatalf("buffer initialized with %d transitions, min capacity "+
				"%d", buffer.Capacity(), minCapacity)
		}
		if _, _, _, _, _, err := buffer.Sample(); !IsInsufficientSamples(err) {
			t.Errorf("expected insufficient samples error, got %v", err)
		}
	}

	err = buffer.Add(testTransition(features, actionDims, 100.0, false))
	if err != nil {
		t.Fatalf("could not add transition: %v", err)
	}
	if !buffer.Initialized() {
		t.Fatalf("buffer not initialized with %d transitions, min capacity "+
			"%d", buffer.Capacity(), minCapacity)
	}

	state, action, reward, nextState, absorbing, err := buffer.Sample()
	if err != nil {
		t.Fatalf("could not sample initialized buffer: %v", err)
	}
	if len(state) != batchSize*features {
		t.Errorf("wrong state batch size \n\twant(%v)\n\thave(%v)",
			batchSize*features, len(state))
	}
	if len(nextState) != batchSize*features {
		t.Errorf("wrong next state batch size \n\twant(%v)\n\thave(%v)",
			batchSize*features, len(nextState))
	}
	if len(action) != batchSize*actionDims {
		t.Errorf("wrong action batch size \n\twant(%v)\n\thave(%v)",
			batchSize*actionDims, len(action))
	}
	if len(reward) != batchSize || len(absorbing) != batchSize {
		t.Errorf("wrong reward or absorbing batch size \n\twant(%v)"+
			"\n\thave(%v, %v)", batchSize, len(reward), len(absorbing))
	}
}

// TestCircularOverwritesOldest ensures that a buffer with a FiFo
// remover of size 1 overwrites its oldest transition once full
func TestCircularOverwritesOldest(t *testing.T) {
	features, actionDims := 1, 1
	maxCapacity := 3

	buffer, err := Factory(Fifo, Fifo, 1, maxCapacity, features, actionDims,
		1, 1, 14)
	if err != nil {
		t.Fatalf("could not create replay buffer: %v", err)
	}
	if _, ok := buffer.(*circularCache); !ok {
		t.Fatalf("expected a circular cache for a size 1 FiFo remover, "+
			"got %T", buffer)
	}

	for i := 0; i <= maxCapacity; i++ {
		err := buffer.Add(testTransition(features, actionDims, float64(i),
			false))
		if err != nil {
			t.Fatalf("could not add transition %d: %v", i, err)
		}
	}

	if buffer.Capacity() != maxCapacity {
		t.Errorf("wrong capacity after overwriting \n\twant(%v)\n\thave(%v)",
			maxCapacity, buffer.Capacity())
	}

	// The FiFo sampler should now return the second transition added,
	// since the first was overwritten
	state, _, reward, nextState, _, err := buffer.Sample()
	if err != nil {
		t.Fatalf("could not sample buffer: %v", err)
	}
	if state[0] != 1.0 || reward[0] != 1.0 || nextState[0] != 2.0 {
		t.Errorf("oldest transition was not overwritten: sampled state %v, "+
			"reward %v, next state %v", state[0], reward[0], nextState[0])
	}
}

// TestAbsorbingFlag ensures that the absorbing flag of stored
// transitions survives a round trip through the buffer
func TestAbsorbingFlag(t *testing.T) {
	features, actionDims := 2, 1

	buffer, err := Factory(Fifo, Fifo, 1, 1, features, actionDims, 1, 1, 1)
	if err != nil {
		t.Fatalf("could not create replay buffer: %v", err)
	}

	err = buffer.Add(testTransition(features, actionDims, 7.0, true))
	if err != nil {
		t.Fatalf("could not add transition: %v", err)
	}
	_, _, _, _, absorbing, err := buffer.Sample()
	if err != nil {
		t.Fatalf("could not sample buffer: %v", err)
	}
	if absorbing[0] != 1.0 {
		t.Errorf("absorbing transition sampled as non-absorbing")
	}

	err = buffer.Add(testTransition(features, actionDims, 8.0, false))
	if err != nil {
		t.Fatalf("could not add transition: %v", err)
	}
	_, _, _, _, absorbing, err = buffer.Sample()
	if err != nil {
		t.Fatalf("could not sample buffer: %v", err)
	}
	if absorbing[0] != 0.0 {
		t.Errorf("non-absorbing transition sampled as absorbing")
	}
}

// TestRemovalKeepsCapacityBounded ensures that a buffer with an
// arbitrary remover never exceeds its maximum capacity
func TestRemovalKeepsCapacityBounded(t *testing.T) {
	features, actionDims := 2, 2
	maxCapacity := 4

	buffer, err := Factory(Uniform, Uniform, 1, maxCapacity, features,
		actionDims, 1, 1, 3)
	if err != nil {
		t.Fatalf("could not create replay buffer: %v", err)
	}

	for i := 0; i < 3*maxCapacity; i++ {
		err := buffer.Add(testTransition(features, actionDims, float64(i),
			false))
		if err != nil {
			t.Fatalf("could not add transition %d: %v", i, err)
		}
		if buffer.Capacity() > maxCapacity {
			t.Fatalf("buffer exceeded max capacity \n\twant(<=%v)"+
				"\n\thave(%v)", maxCapacity, buffer.Capacity())
		}
	}
}
