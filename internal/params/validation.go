package params

import (
	"errors"
	"fmt"
)

// ErrNoRunType is returned when run.type is empty.
var ErrNoRunType = errors.New("no run type specified")

var (
	energyUnits = map[string]bool{"Ha": true, "Hartree": true, "Ry": true, "Rydberg": true, "eV": true}
	tempUnits   = map[string]bool{"K": true, "Ha": true, "eV": true}
	spins       = map[string]bool{"unpolarized": true, "polarized": true, "non-collinear": true}
	functionals = map[string]bool{
		"non-interacting": true, "hartree": true, "hartree-fock": true,
		"lda": true, "pbe": true, "rpbe": true, "pbe0": true, "b3lyp": true,
	}
	mixers   = map[string]bool{"linear": true, "broyden": true, "pulay": true}
	runTypes = map[string]bool{RunGroundState: true, RunRealTime: true}
	queries  = map[string]bool{"energy": true, "forces": true}
)

// Validate checks every key against its documented constraints. It does not
// require a run type; see ValidateRun.
func (p Parameters) Validate() error {
	if p.Protocol != "" {
		if _, err := LookupProtocol(p.Protocol); err != nil {
			return err
		}
	}

	if e := p.Electrons; e != nil {
		if e.Cutoff != nil {
			if err := validateEnergy("electrons.cutoff", e.Cutoff); err != nil {
				return err
			}
		}
		if e.ExtraStates != nil && *e.ExtraStates < 0 {
			return fmt.Errorf("electrons.extra-states must be >= 0 (got %d)", *e.ExtraStates)
		}
		if e.Spin != "" && !spins[e.Spin] {
			return fmt.Errorf("electrons.spin must be one of unpolarized, polarized, non-collinear (got %q)", e.Spin)
		}
		if e.Temperature != nil {
			if e.Temperature.Value < 0 {
				return fmt.Errorf("electrons.temperature must be >= 0 (got %s)", e.Temperature)
			}
			if !tempUnits[e.Temperature.Unit] {
				return fmt.Errorf("electrons.temperature unit must be K, Ha or eV (got %q)", e.Temperature.Unit)
			}
		}
	}

	if th := p.Theory; th != nil && th.Functional != "" && !functionals[th.Functional] {
		return fmt.Errorf("theory.functional %q is not supported", th.Functional)
	}

	if k := p.KPoints; k != nil {
		if k.Gamma && k.Grid != nil {
			return fmt.Errorf("kpoints.gamma and kpoints.grid are mutually exclusive")
		}
		if k.Grid != nil {
			for i, n := range k.Grid {
				if n < 1 {
					return fmt.Errorf("kpoints.grid[%d] must be positive (got %d)", i, n)
				}
			}
		}
		if k.Shifted && k.Grid == nil {
			return fmt.Errorf("kpoints.shifted requires kpoints.grid")
		}
	}

	if pt := p.Perturbations; pt != nil && pt.None && pt.Kick != nil {
		return fmt.Errorf("perturbations.none and perturbations.kick are mutually exclusive")
	}

	if g := p.GroundState; g != nil {
		if g.Tolerance != nil && *g.Tolerance <= 0 {
			return fmt.Errorf("ground-state.tolerance must be positive (got %g)", *g.Tolerance)
		}
		if g.MaxSteps != nil && *g.MaxSteps < 1 {
			return fmt.Errorf("ground-state.max-steps must be at least 1 (got %d)", *g.MaxSteps)
		}
		if g.Mixing != nil && (*g.Mixing <= 0 || *g.Mixing > 1) {
			return fmt.Errorf("ground-state.mixing must be in (0, 1] (got %g)", *g.Mixing)
		}
		if g.Mixer != "" && !mixers[g.Mixer] {
			return fmt.Errorf("ground-state.mixer must be one of linear, broyden, pulay (got %q)", g.Mixer)
		}
	}

	if r := p.Results; r != nil {
		for _, name := range r.GroundState {
			if !queries[name] {
				return fmt.Errorf("results.ground-state entry %q is not supported", name)
			}
		}
	}

	if p.Run.Type != "" && !runTypes[p.Run.Type] {
		return fmt.Errorf("run.type must be ground-state or real-time (got %q)", p.Run.Type)
	}

	return nil
}

// ValidateRun reports ErrNoRunType when nothing would be run.
func (p Parameters) ValidateRun() error {
	if p.Run.Type == "" {
		return ErrNoRunType
	}
	return nil
}

// ValidateCutoff checks a sweep value the same way electrons.cutoff is checked.
func ValidateCutoff(q Quantity) error {
	return validateEnergy("cutoff", &q)
}

func validateEnergy(key string, q *Quantity) error {
	if q.Value <= 0 {
		return fmt.Errorf("%s must be positive (got %s)", key, q)
	}
	if !energyUnits[q.Unit] {
		return fmt.Errorf("%s unit must be one of Ha, Hartree, Ry, Rydberg, eV (got %q)", key, q.Unit)
	}
	return nil
}
