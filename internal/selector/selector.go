// Package selector picks the parameter value with the lowest total energy
// from a completed sweep stage.
package selector

import (
	"errors"
	"fmt"
	"math"

	"github.com/lamim/inqsweep/pkg/models"
)

var (
	// ErrNoCandidates is returned when there is nothing to select from.
	ErrNoCandidates = errors.New("no candidates to select from")
	// ErrNonFiniteEnergy is returned when a candidate's energy is NaN or infinite.
	ErrNonFiniteEnergy = errors.New("non-finite energy")
)

// Candidate is one successful trial of a stage.
type Candidate struct {
	Label  models.TrialLabel
	Energy float64 // total energy, eV
	Value  models.Quantity
}

// Select returns the value of the candidate with the globally lowest energy.
// Every candidate is compared; ties keep the earliest one in sweep order.
func Select(candidates []Candidate) (models.Quantity, error) {
	best, err := Best(candidates)
	if err != nil {
		return models.Quantity{}, err
	}
	return best.Value, nil
}

// Best is Select but returns the whole winning candidate. A NaN or infinite
// energy anywhere in the list is an error, since it cannot be ordered.
func Best(candidates []Candidate) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, ErrNoCandidates
	}
	for _, c := range candidates {
		if math.IsNaN(c.Energy) || math.IsInf(c.Energy, 0) {
			return Candidate{}, fmt.Errorf("%s: %w (%v)", c.Label, ErrNonFiniteEnergy, c.Energy)
		}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Energy < best.Energy {
			best = c
		}
	}
	return best, nil
}
