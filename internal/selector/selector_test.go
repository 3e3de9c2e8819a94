package selector

import (
	"errors"
	"math"
	"testing"

	"github.com/lamim/inqsweep/pkg/models"
)

func q(v float64) models.Quantity {
	return models.NewQuantity(v, "")
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name       string
		candidates []Candidate
		want       float64
	}{
		{
			name: "minimum in the middle",
			candidates: []Candidate{
				{Label: "a", Energy: -5, Value: q(10)},
				{Label: "b", Energy: -12, Value: q(20)},
				{Label: "c", Energy: -3, Value: q(30)},
			},
			want: 20,
		},
		{
			name: "single candidate",
			candidates: []Candidate{
				{Label: "a", Energy: -1, Value: q(7)},
			},
			want: 7,
		},
		{
			name: "tie keeps first occurrence",
			candidates: []Candidate{
				{Label: "a", Energy: -8, Value: q(1)},
				{Label: "b", Energy: -9, Value: q(2)},
				{Label: "c", Energy: -9, Value: q(3)},
			},
			want: 2,
		},
		{
			name: "positive energies still select the minimum",
			candidates: []Candidate{
				{Label: "a", Energy: 3, Value: q(1)},
				{Label: "b", Energy: 1, Value: q(2)},
				{Label: "c", Energy: 2, Value: q(3)},
			},
			want: 2,
		},
		{
			name: "non-monotonic large negative energies",
			candidates: []Candidate{
				{Label: "a", Energy: -215.1, Value: q(8)},
				{Label: "b", Energy: -217.9, Value: q(10)},
				{Label: "c", Energy: -217.2, Value: q(12)},
				{Label: "d", Energy: -217.95, Value: q(14)},
				{Label: "e", Energy: -216.0, Value: q(16)},
			},
			want: 14,
		},
		{
			name: "minimum is last",
			candidates: []Candidate{
				{Label: "a", Energy: -1, Value: q(1)},
				{Label: "b", Energy: -2, Value: q(2)},
				{Label: "c", Energy: -3, Value: q(3)},
			},
			want: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(tt.candidates)
			if err != nil {
				t.Fatalf("Select() error = %v", err)
			}
			if got.Value != tt.want {
				t.Errorf("Select() = %v, want %v", got.Value, tt.want)
			}
		})
	}
}

func TestSelectEmpty(t *testing.T) {
	_, err := Select(nil)
	if err == nil {
		t.Fatal("Select(nil) expected error")
	}
	if !errors.Is(err, ErrNoCandidates) {
		t.Errorf("Select(nil) error = %v, want ErrNoCandidates", err)
	}
}

func TestSelectNonFiniteEnergy(t *testing.T) {
	tests := []struct {
		name       string
		candidates []Candidate
	}{
		{
			name: "NaN first",
			candidates: []Candidate{
				{Label: "cutoff_8_Ha", Energy: math.NaN(), Value: q(8)},
				{Label: "cutoff_10_Ha", Energy: -80, Value: q(10)},
			},
		},
		{
			name: "NaN after minimum",
			candidates: []Candidate{
				{Label: "cutoff_8_Ha", Energy: -80, Value: q(8)},
				{Label: "cutoff_10_Ha", Energy: math.NaN(), Value: q(10)},
			},
		},
		{
			name: "negative infinity",
			candidates: []Candidate{
				{Label: "cutoff_8_Ha", Energy: -80, Value: q(8)},
				{Label: "cutoff_10_Ha", Energy: math.Inf(-1), Value: q(10)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(tt.candidates)
			if !errors.Is(err, ErrNonFiniteEnergy) {
				t.Fatalf("Select() = %v, %v, want ErrNonFiniteEnergy", got, err)
			}
		})
	}
}

func TestBestReturnsLabel(t *testing.T) {
	best, err := Best([]Candidate{
		{Label: "cutoff_8_Ha", Energy: -50, Value: q(8)},
		{Label: "cutoff_10_Ha", Energy: -80, Value: q(10)},
	})
	if err != nil {
		t.Fatalf("Best() error = %v", err)
	}
	if best.Label != "cutoff_10_Ha" {
		t.Errorf("Best().Label = %s, want cutoff_10_Ha", best.Label)
	}
}
