package sac

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// temperature is the entropy temperature controller. It holds the
// learnable log temperature and adjusts it so that the policy's
// entropy tracks a target entropy of -actionDims nats.
//
// The log of the temperature is learned, rather than the temperature
// itself, so that the temperature stays strictly positive without
// constrained optimization. Given a batch of log probabilities lp of
// actions sampled from the current policy, one update step descends
// the loss:
//
//	loss = -logAlpha * mean(lp + targetEntropy)
//
// which raises the temperature while the policy's entropy is below the
// target and lowers it otherwise.
type temperature struct {
	g        *G.ExprGraph
	logAlpha *G.Node
	logProbs *G.Node

	targetEntropy float64

	lossVal G.Value

	vm     G.VM
	solver G.Solver
	model  []G.ValueGrad
}

// newTemperature returns a new temperature controller for a policy
// with actionDims action dimensions, updated from batches of batchSize
// log probabilities with its own Adam solver. The temperature starts
// at 1.
func newTemperature(actionDims, batchSize int,
	learningRate float64) (*temperature, error) {
	if actionDims < 1 {
		return nil, fmt.Errorf("newtemperature: actionDims must be positive")
	}
	if learningRate <= 0 {
		return nil, fmt.Errorf("newtemperature: learning rate must be " +
			"positive")
	}

	g := G.NewGraph()

	// Log temperature of 0 means a starting temperature of 1
	logAlpha := G.NewVector(g, tensor.Float64, G.WithShape(1),
		G.WithName("logAlpha"), G.WithInit(G.Zeroes()))

	logProbs := G.NewVector(g, tensor.Float64, G.WithShape(batchSize),
		G.WithName("logProbs"), G.WithInit(G.Zeroes()))

	targetEntropy := -float64(actionDims)
	entropyGap := G.Must(G.Mean(G.Must(G.Add(logProbs,
		G.NewConstant(targetEntropy)))))

	loss := G.Must(G.Neg(G.Must(G.HadamardProd(entropyGap, logAlpha))))
	cost := G.Must(G.Sum(loss))

	t := &temperature{
		g:             g,
		logAlpha:      logAlpha,
		logProbs:      logProbs,
		targetEntropy: targetEntropy,
		solver:        G.NewAdamSolver(G.WithLearnRate(learningRate)),
		model:         []G.ValueGrad{logAlpha},
	}
	G.Read(loss, &t.lossVal)

	if _, err := G.Grad(cost, logAlpha); err != nil {
		return nil, fmt.Errorf("newtemperature: could not compute "+
			"gradient: %v", err)
	}

	t.vm = G.NewTapeMachine(g, G.BindDualValues(logAlpha))

	return t, nil
}

// update performs one descent step on the temperature loss. The
// logProbs argument holds the log probabilities of a batch of actions
// sampled from the current policy.
func (t *temperature) update(logProbs []float64) error {
	logProbsTensor := tensor.New(
		tensor.WithBacking(logProbs),
		tensor.WithShape(len(logProbs)),
	)
	if err := G.Let(t.logProbs, logProbsTensor); err != nil {
		return fmt.Errorf("update: could not set log probabilities: %v", err)
	}

	if err := t.vm.RunAll(); err != nil {
		return fmt.Errorf("update: could not run controller: %v", err)
	}

	if err := t.solver.Step(t.model); err != nil {
		return fmt.Errorf("update: could not step solver: %v", err)
	}
	t.vm.Reset()

	return nil
}

// Alpha returns the current entropy temperature
func (t *temperature) Alpha() float64 {
	return math.Exp(valueFloats(t.logAlpha.Value())[0])
}
