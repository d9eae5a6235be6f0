package sac

import (
	"math"
	"testing"
)

// TestTemperatureStartsAtOne ensures that the entropy temperature
// starts at 1
func TestTemperatureStartsAtOne(t *testing.T) {
	alpha, err := newTemperature(2, 4, 0.001)
	if err != nil {
		t.Fatalf("could not create temperature controller: %v", err)
	}
	if alpha.Alpha() != 1.0 {
		t.Errorf("wrong starting temperature \n\twant(%v)\n\thave(%v)", 1.0,
			alpha.Alpha())
	}
}

// TestTemperatureUpdateDirection ensures that the temperature rises
// when the policy's entropy is below the target and falls when it is
// above
func TestTemperatureUpdateDirection(t *testing.T) {
	batchSize := 4

	// Log probabilities far above the target entropy mean the policy
	// is too deterministic, so the temperature should rise
	rising, err := newTemperature(2, batchSize, 0.01)
	if err != nil {
		t.Fatalf("could not create temperature controller: %v", err)
	}
	highLogProbs := []float64{5.0, 5.0, 5.0, 5.0}
	if err := rising.update(highLogProbs); err != nil {
		t.Fatalf("could not update temperature: %v", err)
	}
	if rising.Alpha() <= 1.0 {
		t.Errorf("temperature did not rise for a low entropy policy "+
			"\n\twant(>%v)\n\thave(%v)", 1.0, rising.Alpha())
	}

	// Log probabilities far below the target entropy mean the policy
	// is too random, so the temperature should fall
	falling, err := newTemperature(2, batchSize, 0.01)
	if err != nil {
		t.Fatalf("could not create temperature controller: %v", err)
	}
	lowLogProbs := []float64{-10.0, -10.0, -10.0, -10.0}
	if err := falling.update(lowLogProbs); err != nil {
		t.Fatalf("could not update temperature: %v", err)
	}
	if falling.Alpha() >= 1.0 {
		t.Errorf("temperature did not fall for a high entropy policy "+
			"\n\twant(<%v)\n\thave(%v)", 1.0, falling.Alpha())
	}
}

// TestTemperatureStaysPositive ensures that the temperature stays
// strictly positive through repeated downward updates
func TestTemperatureStaysPositive(t *testing.T) {
	alpha, err := newTemperature(1, 2, 0.05)
	if err != nil {
		t.Fatalf("could not create temperature controller: %v", err)
	}

	for i := 0; i < 100; i++ {
		if err := alpha.update([]float64{-50.0, -50.0}); err != nil {
			t.Fatalf("could not update temperature on step %v: %v", i, err)
		}
		if a := alpha.Alpha(); a <= 0 || math.IsNaN(a) {
			t.Fatalf("temperature not strictly positive on step %v: %v", i, a)
		}
	}
}

// TestTemperatureInvalidArguments ensures that construction fails for
// invalid action dimensions and learning rates
func TestTemperatureInvalidArguments(t *testing.T) {
	if _, err := newTemperature(0, 4, 0.001); err == nil {
		t.Errorf("expected an error for zero action dimensions")
	}
	if _, err := newTemperature(1, 4, 0.0); err == nil {
		t.Errorf("expected an error for a zero learning rate")
	}
}
