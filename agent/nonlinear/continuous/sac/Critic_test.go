package sac

import (
	"testing"

	G "gorgonia.org/gorgonia"

	"github.com/samuelfneumann/gosac/network"
	"github.com/samuelfneumann/gosac/solver"
)

// testEnsemble returns a critic ensemble with a single hidden layer
func testEnsemble(t *testing.T, features, actionDims, batchSize int,
	init G.InitWFn) *criticEnsemble {
	adam, err := solver.NewDefaultAdam(0.001, batchSize)
	if err != nil {
		t.Fatalf("could not create solver: %v", err)
	}

	ensemble, err := newCriticEnsemble(features, actionDims, batchSize,
		[]int{6}, []bool{true}, []*network.Activation{network.ReLU()}, init,
		adam)
	if err != nil {
		t.Fatalf("could not create critic ensemble: %v", err)
	}
	return ensemble
}

// testTarget returns the target critic of the argument ensemble
func testTarget(t *testing.T, ensemble *criticEnsemble,
	init G.InitWFn) *targetCritic {
	target, err := newTargetCritic(ensemble, []int{6}, []bool{true},
		[]*network.Activation{network.ReLU()}, init)
	if err != nil {
		t.Fatalf("could not create target critic: %v", err)
	}
	return target
}

// learnableData returns the data backing a learnable node's value
func learnableData(t *testing.T, node *G.Node) []float64 {
	switch data := node.Value().Data().(type) {
	case float64:
		return []float64{data}
	case []float64:
		return data
	default:
		t.Fatalf("learnable %v has unexpected data type %T", node, data)
		return nil
	}
}

// requireEqualWeights fails the test when the two networks do not have
// exactly equal weights
func requireEqualWeights(t *testing.T, want, have network.NeuralNet) {
	wantLearnables := want.Learnables()
	haveLearnables := have.Learnables()
	if len(wantLearnables) != len(haveLearnables) {
		t.Fatalf("networks have different numbers of learnables "+
			"\n\twant(%v)\n\thave(%v)", len(wantLearnables),
			len(haveLearnables))
	}

	for i := range wantLearnables {
		wantData := learnableData(t, wantLearnables[i])
		haveData := learnableData(t, haveLearnables[i])
		for j := range wantData {
			if wantData[j] != haveData[j] {
				t.Fatalf("weight %v of learnable %v differs \n\twant(%v)"+
					"\n\thave(%v)", j, i, wantData[j], haveData[j])
			}
		}
	}
}

// TestTargetStartsAsExactCopy ensures that the target critic's members
// start with weights exactly equal to the value networks' weights
func TestTargetStartsAsExactCopy(t *testing.T) {
	ensemble := testEnsemble(t, 3, 2, 4, G.GlorotN(1.0))
	target := testTarget(t, ensemble, G.GlorotN(1.0))

	for i := 0; i < EnsembleSize; i++ {
		requireEqualWeights(t, ensemble.learners[i].net, target.nets[i])
	}
}

// TestTrackWithFullTauIsHardUpdate ensures that a Polyak update with
// tau of 1 copies the value networks' weights exactly
func TestTrackWithFullTauIsHardUpdate(t *testing.T) {
	ensemble := testEnsemble(t, 2, 1, 2, G.GlorotU(1.0))
	target := testTarget(t, ensemble, G.GlorotU(1.0))

	// Move the value networks away from the targets
	other := testEnsemble(t, 2, 1, 2, G.GlorotN(2.0))
	for i := 0; i < EnsembleSize; i++ {
		err := ensemble.learners[i].net.Set(other.learners[i].net)
		if err != nil {
			t.Fatalf("could not move value network %v: %v", i, err)
		}
	}

	if err := target.track(ensemble, 1.0); err != nil {
		t.Fatalf("could not update target critic: %v", err)
	}
	for i := 0; i < EnsembleSize; i++ {
		requireEqualWeights(t, ensemble.learners[i].net, target.nets[i])
	}
}

// TestTrackAveragesWeights ensures that a Polyak update moves the
// target weights toward the value networks' weights by exactly tau
func TestTrackAveragesWeights(t *testing.T) {
	tau := 0.25
	ensemble := testEnsemble(t, 2, 1, 2, G.Ones())
	target := testTarget(t, ensemble, G.Ones())

	// Zero the value networks so that after the update every target
	// weight is (1 - tau) times its previous value
	zeroed := testEnsemble(t, 2, 1, 2, G.Zeroes())
	for i := 0; i < EnsembleSize; i++ {
		before := make([][]float64, len(target.nets[i].Learnables()))
		for j, node := range target.nets[i].Learnables() {
			data := learnableData(t, node)
			before[j] = make([]float64, len(data))
			copy(before[j], data)
		}

		err := ensemble.learners[i].net.Set(zeroed.learners[i].net)
		if err != nil {
			t.Fatalf("could not zero value network %v: %v", i, err)
		}
		if err := target.track(ensemble, tau); err != nil {
			t.Fatalf("could not update target critic: %v", err)
		}

		for j, node := range target.nets[i].Learnables() {
			after := learnableData(t, node)
			for k := range after {
				if after[k] != (1-tau)*before[j][k] {
					t.Fatalf("weight %v of learnable %v of member %v has "+
						"wrong average \n\twant(%v)\n\thave(%v)", k, j, i,
						(1-tau)*before[j][k], after[k])
				}
			}
		}
	}
}

// TestPredictTakesMinimum ensures that the target critic's prediction
// is the minimum over its members
func TestPredictTakesMinimum(t *testing.T) {
	features, actionDims, batchSize := 2, 1, 3

	// Member 0 has positive weights and positive inputs, so predicts
	// strictly positive values; member 1 has zero weights and predicts
	// zero. The minimum must be zero.
	positive := testEnsemble(t, features, actionDims, batchSize,
		G.ValuesOf(0.1))
	zeroed := testEnsemble(t, features, actionDims, batchSize, G.Zeroes())

	target := testTarget(t, positive, G.Zeroes())
	if err := target.nets[1].Set(zeroed.learners[1].net); err != nil {
		t.Fatalf("could not zero target member 1: %v", err)
	}

	state := []float64{1, 1, 1, 1, 1, 1}
	action := []float64{1, 1, 1}
	prediction, err := target.predict(state, action)
	if err != nil {
		t.Fatalf("could not predict: %v", err)
	}

	if len(prediction) != batchSize {
		t.Fatalf("wrong number of predictions \n\twant(%v)\n\thave(%v)",
			batchSize, len(prediction))
	}
	for i := range prediction {
		if prediction[i] != 0.0 {
			t.Errorf("prediction %v is not the minimum over members "+
				"\n\twant(%v)\n\thave(%v)", i, 0.0, prediction[i])
		}
	}
}
