package expreplay

import (
	"fmt"

	"github.com/samuelfneumann/gosac/timestep"
)

// circularCache implements a concrete ExperienceReplayer where
// elements are removed from the buffer in a FiFo manner and only a
// single element is removed from the cache at a time. This is the most
// common use of experience replay.
//
// The circularCache is implemented to increase the efficiency of the
// cache struct when a FiFo Remover is used that removes only a single
// element from the cache at a time. In such cases, we can reduce the
// used RAM and increase the computational speed since we can take
// advantage of knowing the concrete type of the Remover: the buffer
// becomes a bounded circular store whose oldest element is simply
// overwritten once the buffer is full.
type circularCache struct {
	stateCache     []float64
	actionCache    []float64
	rewardCache    []float64
	nextStateCache []float64
	absorbingCache []float64

	indices         []int
	currentInUsePos int
	isFull          bool

	// Outlines how data is sampled
	sampler Selector

	minCapacity int
	maxCapacity int
	featureSize int
	actionSize  int
}

// newCircularCache returns a new circularCache. The sampler parameter
// is a Selector which determines how data is sampled from the replay
// buffer. The featureSize and actionSize parameters define the size of
// the feature and action vectors. The minCapacity parameter determines
// the minimum number of samples that should be in the buffer before
// sampling is allowed. The maxCapacity parameter determines the
// maximum number of samples allowed in the buffer at any given time.
func newCircularCache(sampler Selector, minCapacity, maxCapacity,
	featureSize, actionSize int) *circularCache {
	stateCache := make([]float64, maxCapacity*featureSize)
	nextStateCache := make([]float64, maxCapacity*featureSize)
	actionCache := make([]float64, maxCapacity*actionSize)
	rewardCache := make([]float64, maxCapacity)
	absorbingCache := make([]float64, maxCapacity)

	indices := make([]int, maxCapacity)
	for i := 0; i < maxCapacity; i++ {
		indices[i] = i
	}

	return &circularCache{
		stateCache:     stateCache,
		actionCache:    actionCache,
		rewardCache:    rewardCache,
		nextStateCache: nextStateCache,
		absorbingCache: absorbingCache,

		indices:         indices,
		currentInUsePos: 0,
		isFull:          false,

		sampler: sampler,

		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
		featureSize: featureSize,
		actionSize:  actionSize,
	}
}

// String returns the string representation of the circularCache
func (d *circularCache) String() string {
	var emptyIndices []int
	var usedIndices []int
	if !d.isFull {
		emptyIndices = d.indices[d.currentInUsePos:]
		usedIndices = d.indices[:d.currentInUsePos]
	} else {
		emptyIndices = []int{}
		usedIndices = d.indices
	}

	baseStr := "Indices Available: %v \nIndices Used: %v \nStates: %v" +
		" \nActions: %v \nRewards: %v \nNext States: %v \nAbsorbing: %v"
	return fmt.Sprintf(baseStr, emptyIndices, usedIndices, d.stateCache,
		d.actionCache, d.rewardCache, d.nextStateCache, d.absorbingCache)
}

// BatchSize returns the number of samples sampled using Sample() -
// a.k.a the batch size
func (d *circularCache) BatchSize() int {
	return d.sampler.BatchSize()
}

// insertOrder returns the insertion order of samples into the buffer
func (d *circularCache) insertOrder(n int) []int {
	if !d.isFull {
		return d.indices[:d.currentInUsePos]
	}

	currentIndices := make([]int, d.MaxCapacity())
	copy(currentIndices, d.indices[d.currentInUsePos:])
	copy(currentIndices[d.maxCapacity-d.currentInUsePos:],
		d.indices[:d.currentInUsePos])

	return currentIndices[:n]
}

// sampleFrom returns the slice of indices to sample from
func (d *circularCache) sampleFrom() []int {
	if !d.isFull {
		return d.indices[:d.currentInUsePos]
	}
	return d.indices
}

// removeFront is a no-op for a circularCache: the oldest element is
// overwritten directly by Add()
func (d *circularCache) removeFront() {}

// Sample samples and returns a batch of transitions from the replay
// buffer. The returned values are the batched states, actions,
// rewards, next states, and absorbing flags.
func (d *circularCache) Sample() ([]float64, []float64, []float64, []float64,
	[]float64, error) {
	if d.Capacity() == 0 {
		err := &ExpReplayError{
			Op:  "sample",
			Err: errEmptyCache,
		}
		return nil, nil, nil, nil, nil, err
	}
	if !d.Initialized() {
		err := &ExpReplayError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
		return nil, nil, nil, nil, nil, err
	}

	indices := d.sampler.choose(d)

	stateBatch := make([]float64, d.BatchSize()*d.featureSize)
	nextStateBatch := make([]float64, d.BatchSize()*d.featureSize)
	for i, index := range indices {
		batchStartInd := i * d.featureSize
		expStartInd := index * d.featureSize
		copy(stateBatch[batchStartInd:batchStartInd+d.featureSize],
			d.stateCache[expStartInd:expStartInd+d.featureSize],
		)
		copy(nextStateBatch[batchStartInd:batchStartInd+d.featureSize],
			d.nextStateCache[expStartInd:expStartInd+d.featureSize],
		)
	}

	actionBatch := make([]float64, d.BatchSize()*d.actionSize)
	for i, index := range indices {
		batchStartInd := i * d.actionSize
		expStartInd := index * d.actionSize
		copy(actionBatch[batchStartInd:batchStartInd+d.actionSize],
			d.actionCache[expStartInd:expStartInd+d.actionSize],
		)
	}

	rewardBatch := make([]float64, d.BatchSize())
	absorbingBatch := make([]float64, d.BatchSize())
	for i, index := range indices {
		rewardBatch[i] = d.rewardCache[index]
		absorbingBatch[i] = d.absorbingCache[index]
	}

	return stateBatch, actionBatch, rewardBatch, nextStateBatch,
		absorbingBatch, nil
}

// Capacity returns the current number of elements in the cache that
// are available for sampling
func (d *circularCache) Capacity() int {
	if d.isFull {
		return d.maxCapacity
	}
	return d.currentInUsePos
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the cache
func (d *circularCache) MaxCapacity() int {
	return d.maxCapacity
}

// MinCapacity returns the minimum number of elements required in the
// cache before sampling is allowed
func (d *circularCache) MinCapacity() int {
	return d.minCapacity
}

// Initialized returns whether the cache has reached its minimum
// capacity
func (d *circularCache) Initialized() bool {
	return d.Capacity() >= d.minCapacity
}

// Add adds a transition to the cache, overwriting the oldest
// transition if the cache is full
func (d *circularCache) Add(t timestep.Transition) error {
	if t.State.Len() != d.featureSize || t.NextState.Len() != d.featureSize {
		return fmt.Errorf("add: invalid feature size \n\twant(%v)\n\thave(%v)",
			d.featureSize, t.State.Len())
	}
	if t.Action.Len() != d.actionSize {
		return fmt.Errorf("add: invalid action size \n\twant(%v)\n\thave(%v)",
			d.actionSize, t.Action.Len())
	}

	index := d.currentInUsePos

	stateInd := index * d.featureSize
	for i := 0; i < d.featureSize; i++ {
		d.stateCache[stateInd+i] = t.State.AtVec(i)
		d.nextStateCache[stateInd+i] = t.NextState.AtVec(i)
	}

	actionInd := index * d.actionSize
	for i := 0; i < d.actionSize; i++ {
		d.actionCache[actionInd+i] = t.Action.AtVec(i)
	}

	d.rewardCache[index] = t.Reward
	if t.Absorbing {
		d.absorbingCache[index] = 1
	} else {
		d.absorbingCache[index] = 0
	}

	d.currentInUsePos++
	if d.currentInUsePos >= d.maxCapacity {
		d.currentInUsePos = 0
		d.isFull = true
	}

	return nil
}
