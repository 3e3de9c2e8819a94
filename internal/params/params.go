// Package params holds the typed engine parameters. Each section maps onto
// "inq <section> <key> <value>" commands; only the sections below exist.
package params

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lamim/inqsweep/pkg/models"
)

// Section names, in the order they are written to the script.
const (
	SectionSpecies       = "species"
	SectionElectrons     = "electrons"
	SectionTheory        = "theory"
	SectionKPoints       = "kpoints"
	SectionPerturbations = "perturbations"
	SectionGroundState   = "ground-state"
	SectionRun           = "run"
	SectionResults       = "results"
)

// Run types accepted by the engine.
const (
	RunGroundState = "ground-state"
	RunRealTime    = "real-time"
)

// Quantity decodes from a TOML string such as "35 Ha".
type Quantity struct {
	models.Quantity
}

// Q wraps a models.Quantity.
func Q(q models.Quantity) *Quantity {
	return &Quantity{Quantity: q}
}

func (q *Quantity) UnmarshalText(text []byte) error {
	parsed, err := models.ParseQuantity(string(text), "")
	if err != nil {
		return err
	}
	q.Quantity = parsed
	return nil
}

func (q Quantity) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// Species selects pseudopotentials.
type Species struct {
	PseudoSet string `toml:"pseudo-set,omitempty"`
}

// Electrons controls the basis and occupations.
type Electrons struct {
	Cutoff      *Quantity `toml:"cutoff,omitempty"`
	ExtraStates *int      `toml:"extra-states,omitempty"`
	Spin        string    `toml:"spin,omitempty"`
	Temperature *Quantity `toml:"temperature,omitempty"`
}

// Theory selects the exchange-correlation functional.
type Theory struct {
	Functional string `toml:"functional,omitempty"`
}

// KPoints describes Brillouin-zone sampling. Gamma and Grid are exclusive.
type KPoints struct {
	Gamma   bool     `toml:"gamma,omitempty"`
	Grid    *[3]int  `toml:"grid,omitempty"`
	Shifted bool     `toml:"shifted,omitempty"`
	Insert  []string `toml:"insert,omitempty"`
}

// Perturbations for real-time runs.
type Perturbations struct {
	Kick *[3]float64 `toml:"kick,omitempty"`
	None bool        `toml:"none,omitempty"`
}

// GroundState tunes the SCF loop.
type GroundState struct {
	Tolerance *float64 `toml:"tolerance,omitempty"`
	MaxSteps  *int     `toml:"max-steps,omitempty"`
	Mixing    *float64 `toml:"mixing,omitempty"`
	Mixer     string   `toml:"mixer,omitempty"`
}

// Results lists the quantities queried after the run.
type Results struct {
	GroundState []string `toml:"ground-state,omitempty"`
}

// Run selects what the engine computes.
type Run struct {
	Type string `toml:"type,omitempty"`
}

// Parameters is the full parameter set for one engine invocation.
// Protocol names a preset merged by ApplyProtocol; it is never written to the script.
type Parameters struct {
	Protocol      string         `toml:"protocol,omitempty"`
	Species       *Species       `toml:"species,omitempty"`
	Electrons     *Electrons     `toml:"electrons,omitempty"`
	Theory        *Theory        `toml:"theory,omitempty"`
	KPoints       *KPoints       `toml:"kpoints,omitempty"`
	Perturbations *Perturbations `toml:"perturbations,omitempty"`
	GroundState   *GroundState   `toml:"ground-state,omitempty"`
	Results       *Results       `toml:"results,omitempty"`
	Run           Run            `toml:"run"`
}

// Line is one "inq <section> <key> <value>" command. Value may be empty.
type Line struct {
	Section string
	Key     string
	Value   string
}

func (l Line) String() string {
	parts := []string{l.Section, l.Key}
	if l.Value != "" {
		parts = append(parts, l.Value)
	}
	return strings.Join(parts, " ")
}

// Lines returns the setup commands in a fixed order. Run and results are excluded.
func (p Parameters) Lines() []Line {
	var lines []Line
	add := func(section, key, value string) {
		lines = append(lines, Line{Section: section, Key: key, Value: value})
	}

	if s := p.Species; s != nil && s.PseudoSet != "" {
		add(SectionSpecies, "pseudo-set", s.PseudoSet)
	}

	if e := p.Electrons; e != nil {
		if e.Cutoff != nil {
			add(SectionElectrons, "cutoff", e.Cutoff.String())
		}
		if e.ExtraStates != nil {
			add(SectionElectrons, "extra-states", strconv.Itoa(*e.ExtraStates))
		}
		if e.Spin != "" {
			add(SectionElectrons, "spin", e.Spin)
		}
		if e.Temperature != nil {
			add(SectionElectrons, "temperature", e.Temperature.String())
		}
	}

	if th := p.Theory; th != nil && th.Functional != "" {
		add(SectionTheory, th.Functional, "")
	}

	if k := p.KPoints; k != nil {
		if k.Gamma {
			add(SectionKPoints, "gamma", "")
		}
		if k.Grid != nil {
			key := "grid"
			if k.Shifted {
				key = "shifted grid"
			}
			add(SectionKPoints, key, fmt.Sprintf("%d %d %d", k.Grid[0], k.Grid[1], k.Grid[2]))
		}
		for _, pt := range k.Insert {
			add(SectionKPoints, "insert", pt)
		}
	}

	if pt := p.Perturbations; pt != nil {
		if pt.None {
			add(SectionPerturbations, "none", "")
		}
		if pt.Kick != nil {
			add(SectionPerturbations, "kick", formatVector(*pt.Kick))
		}
	}

	if g := p.GroundState; g != nil {
		if g.Tolerance != nil {
			add(SectionGroundState, "tolerance", strconv.FormatFloat(*g.Tolerance, 'g', -1, 64))
		}
		if g.MaxSteps != nil {
			add(SectionGroundState, "max-steps", strconv.Itoa(*g.MaxSteps))
		}
		if g.Mixing != nil {
			add(SectionGroundState, "mixing", strconv.FormatFloat(*g.Mixing, 'g', -1, 64))
		}
		if g.Mixer != "" {
			add(SectionGroundState, "mixer", g.Mixer)
		}
	}

	return lines
}

// ResultQueries returns the "results" commands issued after the run.
func (p Parameters) ResultQueries() []Line {
	if p.Results == nil {
		return nil
	}
	lines := make([]Line, 0, len(p.Results.GroundState))
	for _, name := range p.Results.GroundState {
		lines = append(lines, Line{Section: SectionResults, Key: RunGroundState, Value: name})
	}
	return lines
}

// Clone returns a deep copy.
func (p Parameters) Clone() Parameters {
	out := Parameters{Protocol: p.Protocol, Run: p.Run}
	if p.Species != nil {
		s := *p.Species
		out.Species = &s
	}
	if p.Electrons != nil {
		e := *p.Electrons
		if e.Cutoff != nil {
			c := *e.Cutoff
			e.Cutoff = &c
		}
		if e.ExtraStates != nil {
			n := *e.ExtraStates
			e.ExtraStates = &n
		}
		if e.Temperature != nil {
			tq := *e.Temperature
			e.Temperature = &tq
		}
		out.Electrons = &e
	}
	if p.Theory != nil {
		th := *p.Theory
		out.Theory = &th
	}
	if p.KPoints != nil {
		k := *p.KPoints
		if k.Grid != nil {
			g := *k.Grid
			k.Grid = &g
		}
		k.Insert = append([]string(nil), k.Insert...)
		out.KPoints = &k
	}
	if p.Perturbations != nil {
		pt := *p.Perturbations
		if pt.Kick != nil {
			kick := *pt.Kick
			pt.Kick = &kick
		}
		out.Perturbations = &pt
	}
	if p.GroundState != nil {
		g := *p.GroundState
		if g.Tolerance != nil {
			v := *g.Tolerance
			g.Tolerance = &v
		}
		if g.MaxSteps != nil {
			v := *g.MaxSteps
			g.MaxSteps = &v
		}
		if g.Mixing != nil {
			v := *g.Mixing
			g.Mixing = &v
		}
		out.GroundState = &g
	}
	if p.Results != nil {
		r := Results{GroundState: append([]string(nil), p.Results.GroundState...)}
		out.Results = &r
	}
	return out
}

// WithCutoff returns a copy with electrons.cutoff replaced.
func (p Parameters) WithCutoff(cutoff models.Quantity) Parameters {
	out := p.Clone()
	if out.Electrons == nil {
		out.Electrons = &Electrons{}
	}
	out.Electrons.Cutoff = Q(cutoff)
	return out
}

// WithGrid returns a copy sampling the given mesh. Gamma-only sampling is dropped.
func (p Parameters) WithGrid(mesh models.KMesh) Parameters {
	out := p.Clone()
	if out.KPoints == nil {
		out.KPoints = &KPoints{}
	}
	grid := [3]int(mesh)
	out.KPoints.Grid = &grid
	out.KPoints.Gamma = false
	return out
}

// Cutoff returns electrons.cutoff, if set.
func (p Parameters) Cutoff() (models.Quantity, bool) {
	if p.Electrons == nil || p.Electrons.Cutoff == nil {
		return models.Quantity{}, false
	}
	return p.Electrons.Cutoff.Quantity, true
}

func formatVector(v [3]float64) string {
	return fmt.Sprintf("%s %s %s",
		strconv.FormatFloat(v[0], 'g', -1, 64),
		strconv.FormatFloat(v[1], 'g', -1, 64),
		strconv.FormatFloat(v[2], 'g', -1, 64))
}
