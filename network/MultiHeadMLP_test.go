package network

import (
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// nodeData returns the data backing a node's value
func nodeData(t *testing.T, node *G.Node) []float64 {
	switch data := node.Value().Data().(type) {
	case float64:
		return []float64{data}
	case []float64:
		return data
	default:
		t.Fatalf("node %v has unexpected data type %T", node, data)
		return nil
	}
}

// TestSetCopiesWeights ensures that Set makes the weights of a network
// exactly equal to those of another network
func TestSetCopiesWeights(t *testing.T) {
	features, batch, outputs := 3, 2, 2
	hidden := []int{5}
	biases := []bool{true}
	activations := []*Activation{ReLU()}

	dest, err := NewMultiHeadMLP(features, batch, outputs, G.NewGraph(),
		hidden, biases, G.Zeroes(), activations)
	if err != nil {
		t.Fatalf("could not create destination network: %v", err)
	}
	source, err := NewMultiHeadMLP(features, batch, outputs, G.NewGraph(),
		hidden, biases, G.GlorotN(1.0), activations)
	if err != nil {
		t.Fatalf("could not create source network: %v", err)
	}

	if err := dest.Set(source); err != nil {
		t.Fatalf("could not set weights: %v", err)
	}

	destLearnables := dest.Learnables()
	sourceLearnables := source.Learnables()
	if len(destLearnables) != len(sourceLearnables) {
		t.Fatalf("networks have different numbers of learnables "+
			"\n\twant(%v)\n\thave(%v)", len(sourceLearnables),
			len(destLearnables))
	}

	for i := range destLearnables {
		destData := nodeData(t, destLearnables[i])
		sourceData := nodeData(t, sourceLearnables[i])
		for j := range destData {
			if destData[j] != sourceData[j] {
				t.Fatalf("weight %v of learnable %v was not copied "+
					"\n\twant(%v)\n\thave(%v)", j, i, sourceData[j],
					destData[j])
			}
		}
	}
}

// TestPolyakAveragesWeights ensures that Polyak moves the weights of a
// network toward those of another network by the correct fraction
func TestPolyakAveragesWeights(t *testing.T) {
	features, batch, outputs := 2, 1, 1
	hidden := []int{4}
	biases := []bool{true}
	activations := []*Activation{TanH()}
	tau := 0.25

	dest, err := NewMultiHeadMLP(features, batch, outputs, G.NewGraph(),
		hidden, biases, G.Zeroes(), activations)
	if err != nil {
		t.Fatalf("could not create destination network: %v", err)
	}
	source, err := NewMultiHeadMLP(features, batch, outputs, G.NewGraph(),
		hidden, biases, G.Ones(), activations)
	if err != nil {
		t.Fatalf("could not create source network: %v", err)
	}

	if err := dest.Polyak(source, tau); err != nil {
		t.Fatalf("could not average weights: %v", err)
	}

	destLearnables := dest.Learnables()
	sourceLearnables := source.Learnables()
	for i := range destLearnables {
		destData := nodeData(t, destLearnables[i])
		sourceData := nodeData(t, sourceLearnables[i])
		for j := range destData {
			// Destination weights started at 0, so the average is
			// tau times the source weight
			if destData[j] != tau*sourceData[j] {
				t.Fatalf("weight %v of learnable %v has wrong average "+
					"\n\twant(%v)\n\thave(%v)", j, i, tau*sourceData[j],
					destData[j])
			}
		}
	}
}

// TestZeroNetworkPredictsZero ensures that the forward pass of a
// network with all zero weights predicts zero for any input
func TestZeroNetworkPredictsZero(t *testing.T) {
	features, batch, outputs := 3, 2, 2
	hidden := []int{4}
	biases := []bool{true}
	activations := []*Activation{ReLU()}

	net, err := NewMultiHeadMLP(features, batch, outputs, G.NewGraph(),
		hidden, biases, G.Zeroes(), activations)
	if err != nil {
		t.Fatalf("could not create network: %v", err)
	}

	input := []float64{0.1, -2.3, 4.5, -0.6, 7.8, -9.0}
	if err := net.SetInput(input); err != nil {
		t.Fatalf("could not set input: %v", err)
	}

	vm := G.NewTapeMachine(net.Graph())
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run network: %v", err)
	}
	defer vm.Reset()

	output := net.Output()[0].Data().([]float64)
	if len(output) != batch*outputs {
		t.Fatalf("wrong number of outputs \n\twant(%v)\n\thave(%v)",
			batch*outputs, len(output))
	}
	for i := range output {
		if output[i] != 0.0 {
			t.Errorf("output %v is not zero: %v", i, output[i])
		}
	}
}

// TestFromInputsConcatenatesFeatures ensures that a network built on
// multiple input nodes treats their concatenation as its input
func TestFromInputsConcatenatesFeatures(t *testing.T) {
	g := G.NewGraph()
	batch := 4

	state := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, 3),
		G.WithName("state"), G.WithInit(G.Zeroes()))
	action := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, 2),
		G.WithName("action"), G.WithInit(G.Zeroes()))

	net, err := NewMultiHeadMLPFromInputs([]*G.Node{state, action}, 1, g,
		[]int{6}, []bool{true}, G.GlorotU(1.0), []*Activation{ReLU()},
		"Q", "0")
	if err != nil {
		t.Fatalf("could not create network: %v", err)
	}

	if net.Features() != 5 {
		t.Errorf("wrong number of input features \n\twant(%v)\n\thave(%v)",
			5, net.Features())
	}
	if net.BatchSize() != batch {
		t.Errorf("wrong batch size \n\twant(%v)\n\thave(%v)", batch,
			net.BatchSize())
	}
	if net.Outputs() != 1 {
		t.Errorf("wrong number of outputs \n\twant(%v)\n\thave(%v)", 1,
			net.Outputs())
	}
}
