// Package network implements neural network function approximators
// using Gorgonia computational graphs.
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet implements a neural network on a Gorgonia computational
// graph. A NeuralNet only adds nodes to a graph; running the graph is
// left to the caller, who should construct a (single) VM for the graph
// that the NeuralNet is a part of.
type NeuralNet interface {
	// Graph returns the computational graph that the network is a
	// part of
	Graph() *G.ExprGraph

	// Clone clones the network to a new computational graph, keeping
	// the batch size
	Clone() (NeuralNet, error)

	// CloneWithBatch clones the network to a new computational graph
	// with a new input batch size
	CloneWithBatch(int) (NeuralNet, error)

	// BatchSize returns the number of rows in an input batch
	BatchSize() int

	// Features returns the number of features in a single input row
	Features() int

	// Outputs returns the number of values predicted per input row
	Outputs() int

	// SetInput sets the value of the network's input node. The input
	// is interpreted as a batch in row major order.
	SetInput([]float64) error

	// Set sets the weights of the network to equal those of another
	// network of the same architecture
	Set(NeuralNet) error

	// Polyak sets the weights of the network to an exponential average
	// between its current weights and those of another network:
	//
	//	w_dest = tau * w_source + (1 - tau) * w_dest
	Polyak(NeuralNet, float64) error

	// Learnables returns the nodes holding the learnable weights
	Learnables() G.Nodes

	// Model returns the learnable nodes with their gradients
	Model() []G.ValueGrad

	// Output returns the value of the network's prediction node after
	// the graph has been run
	Output() []G.Value

	// Prediction returns the node of the computational graph that
	// stores the network's prediction
	Prediction() []*G.Node
}
