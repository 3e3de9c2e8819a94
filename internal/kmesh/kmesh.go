// Package kmesh derives integer k-point meshes from a target spacing in
// reciprocal space.
package kmesh

import (
	"errors"
	"fmt"
	"math"

	"github.com/lamim/inqsweep/pkg/models"
)

var (
	// ErrSingularLattice is returned when the cell vectors are linearly dependent.
	ErrSingularLattice = errors.New("lattice is singular")
	// ErrMeshTooDense is returned when a spacing asks for more than
	// MaxDivisions points along a reciprocal vector.
	ErrMeshTooDense = errors.New("kpoint mesh too dense")
)

// MaxDivisions bounds each axis of a derived mesh.
const MaxDivisions = 10000

// determinants below this are treated as a degenerate cell
const singularTolerance = 1e-12

// Reciprocal returns the reciprocal cell (rows b1, b2, b3) including the 2π factor,
// so |b_i| is in inverse angstrom when the cell is in angstrom.
func Reciprocal(lattice models.Lattice) ([3][3]float64, error) {
	a := lattice
	det := a[0][0]*(a[1][1]*a[2][2]-a[1][2]*a[2][1]) -
		a[0][1]*(a[1][0]*a[2][2]-a[1][2]*a[2][0]) +
		a[0][2]*(a[1][0]*a[2][1]-a[1][1]*a[2][0])
	if math.Abs(det) < singularTolerance {
		return [3][3]float64{}, ErrSingularLattice
	}

	// b_i = 2π (a_j × a_k) / det, which is the row form of 2π (A⁻¹)ᵀ
	scale := 2 * math.Pi / det
	var b [3][3]float64
	for i := 0; i < 3; i++ {
		j, k := (i+1)%3, (i+2)%3
		c := cross(a[j], a[k])
		for n := 0; n < 3; n++ {
			b[i][n] = c[n] * scale
		}
	}
	return b, nil
}

// Derive maps a spacing (1/Å) to the smallest mesh whose density along every
// reciprocal vector is at least |b_i|/spacing. No parity is forced.
func Derive(lattice models.Lattice, spacing float64) (models.KMesh, error) {
	if spacing <= 0 || math.IsNaN(spacing) || math.IsInf(spacing, 0) {
		return models.KMesh{}, fmt.Errorf("kpoint spacing must be positive (got %v)", spacing)
	}

	rec, err := Reciprocal(lattice)
	if err != nil {
		return models.KMesh{}, err
	}

	var mesh models.KMesh
	for i, b := range rec {
		// round before ceil so 2.0000000001 stays 2
		n := math.Ceil(round(norm(b)/spacing, 5))
		if n > MaxDivisions {
			return models.KMesh{}, fmt.Errorf("%w: spacing %v needs %g divisions along b%d (max %d)", ErrMeshTooDense, spacing, n, i+1, MaxDivisions)
		}
		mesh[i] = int(math.Max(1, n))
	}
	return mesh, nil
}

// Entries derives the mesh for every spacing in order, keeping duplicates.
func Entries(lattice models.Lattice, spacings models.SweepSpec) ([]models.KMeshEntry, error) {
	entries := make([]models.KMeshEntry, 0, len(spacings))
	for _, s := range spacings {
		mesh, err := Derive(lattice, s.Value)
		if err != nil {
			return nil, fmt.Errorf("spacing %s: %w", s, err)
		}
		entries = append(entries, models.KMeshEntry{Spacing: s, Mesh: mesh})
	}
	return entries, nil
}

// Dedup splits entries into the first occurrence of each mesh and the later repeats.
func Dedup(entries []models.KMeshEntry) (unique, skipped []models.KMeshEntry) {
	seen := make(map[models.KMesh]bool, len(entries))
	for _, e := range entries {
		if seen[e.Mesh] {
			skipped = append(skipped, e)
			continue
		}
		seen[e.Mesh] = true
		unique = append(unique, e)
	}
	return unique, skipped
}

func cross(u, v [3]float64) [3]float64 {
	return [3]float64{
		u[1]*v[2] - u[2]*v[1],
		u[2]*v[0] - u[0]*v[2],
		u[0]*v[1] - u[1]*v[0],
	}
}

func norm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
