package params

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pelletier/go-toml/v2"

	"github.com/lamim/inqsweep/pkg/models"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func mustQ(t *testing.T, s string) *Quantity {
	t.Helper()
	q, err := models.ParseQuantity(s, "")
	if err != nil {
		t.Fatalf("ParseQuantity(%q) error = %v", s, err)
	}
	return Q(q)
}

func TestDecodeTOML(t *testing.T) {
	data := `
[electrons]
cutoff = "35.0 Ha"
extra-states = 3

[theory]
functional = "pbe"

[kpoints]
gamma = true

[ground-state]
tolerance = 1e-8

[results]
ground-state = ["energy", "forces"]

[run]
type = "ground-state"
`
	var p Parameters
	if err := toml.Unmarshal([]byte(data), &p); err != nil {
		t.Fatalf("toml.Unmarshal() error = %v", err)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	cutoff, ok := p.Cutoff()
	if !ok {
		t.Fatal("Cutoff() not set")
	}
	if cutoff.Value != 35 || cutoff.Unit != "Ha" || cutoff.Raw != "35.0 Ha" {
		t.Errorf("Cutoff() = %+v", cutoff)
	}

	want := []string{
		"electrons cutoff 35.0 Ha",
		"electrons extra-states 3",
		"theory pbe",
		"kpoints gamma",
		"ground-state tolerance 1e-08",
	}
	var got []string
	for _, l := range p.Lines() {
		got = append(got, l.String())
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Lines() mismatch (-want +got):\n%s", diff)
	}

	queries := p.ResultQueries()
	if len(queries) != 2 || queries[1].String() != "results ground-state forces" {
		t.Errorf("ResultQueries() = %v", queries)
	}
}

func TestWithCutoffDoesNotMutateBaseline(t *testing.T) {
	base := Parameters{
		Electrons: &Electrons{Cutoff: mustQ(t, "20 Ha"), ExtraStates: intPtr(2)},
		Run:       Run{Type: RunGroundState},
	}

	next := base.WithCutoff(mustQ(t, "30 Ry").Quantity)

	if got, _ := base.Cutoff(); got.Raw != "20 Ha" {
		t.Errorf("baseline cutoff changed to %s", got)
	}
	if got, _ := next.Cutoff(); got.Raw != "30 Ry" {
		t.Errorf("WithCutoff() cutoff = %s, want 30 Ry", got)
	}

	*next.Electrons.ExtraStates = 9
	if *base.Electrons.ExtraStates != 2 {
		t.Error("Clone() shares extra-states pointer with baseline")
	}
}

func TestWithCutoffOnEmptyParameters(t *testing.T) {
	var base Parameters
	next := base.WithCutoff(models.NewQuantity(10, "Ha"))
	if base.Electrons != nil {
		t.Error("baseline electrons section was created")
	}
	if _, ok := next.Cutoff(); !ok {
		t.Error("WithCutoff() did not set cutoff")
	}
}

func TestWithGrid(t *testing.T) {
	base := Parameters{KPoints: &KPoints{Gamma: true}}
	next := base.WithGrid(models.KMesh{2, 3, 4})

	if !base.KPoints.Gamma || base.KPoints.Grid != nil {
		t.Error("baseline kpoints mutated")
	}
	if next.KPoints.Gamma {
		t.Error("WithGrid() kept gamma sampling")
	}
	if *next.KPoints.Grid != [3]int{2, 3, 4} {
		t.Errorf("WithGrid() grid = %v", *next.KPoints.Grid)
	}
	if err := next.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	lines := next.Lines()
	if len(lines) != 1 || lines[0].String() != "kpoints grid 2 3 4" {
		t.Errorf("Lines() = %v", lines)
	}
}

func TestShiftedGridLine(t *testing.T) {
	p := Parameters{KPoints: &KPoints{Grid: &[3]int{4, 4, 4}, Shifted: true}}
	lines := p.Lines()
	if len(lines) != 1 || lines[0].String() != "kpoints shifted grid 4 4 4" {
		t.Errorf("Lines() = %v", lines)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		p       Parameters
		wantErr bool
	}{
		{name: "empty", p: Parameters{}, wantErr: false},
		{name: "negative cutoff", p: Parameters{Electrons: &Electrons{Cutoff: Q(models.NewQuantity(-1, "Ha"))}}, wantErr: true},
		{name: "cutoff without unit", p: Parameters{Electrons: &Electrons{Cutoff: Q(models.NewQuantity(30, ""))}}, wantErr: true},
		{name: "cutoff in Ry", p: Parameters{Electrons: &Electrons{Cutoff: Q(models.NewQuantity(30, "Ry"))}}, wantErr: false},
		{name: "negative extra states", p: Parameters{Electrons: &Electrons{ExtraStates: intPtr(-1)}}, wantErr: true},
		{name: "bad spin", p: Parameters{Electrons: &Electrons{Spin: "up"}}, wantErr: true},
		{name: "bad functional", p: Parameters{Theory: &Theory{Functional: "scan"}}, wantErr: true},
		{name: "gamma and grid", p: Parameters{KPoints: &KPoints{Gamma: true, Grid: &[3]int{1, 1, 1}}}, wantErr: true},
		{name: "zero grid", p: Parameters{KPoints: &KPoints{Grid: &[3]int{0, 1, 1}}}, wantErr: true},
		{name: "shifted without grid", p: Parameters{KPoints: &KPoints{Shifted: true}}, wantErr: true},
		{name: "zero tolerance", p: Parameters{GroundState: &GroundState{Tolerance: floatPtr(0)}}, wantErr: true},
		{name: "mixing above one", p: Parameters{GroundState: &GroundState{Mixing: floatPtr(1.5)}}, wantErr: true},
		{name: "bad mixer", p: Parameters{GroundState: &GroundState{Mixer: "anderson"}}, wantErr: true},
		{name: "bad run type", p: Parameters{Run: Run{Type: "relax"}}, wantErr: true},
		{name: "bad result query", p: Parameters{Results: &Results{GroundState: []string{"dipole"}}}, wantErr: true},
		{name: "kick and none", p: Parameters{Perturbations: &Perturbations{None: true, Kick: &[3]float64{0, 0, 0.01}}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRun(t *testing.T) {
	if err := (Parameters{}).ValidateRun(); !errors.Is(err, ErrNoRunType) {
		t.Errorf("ValidateRun() error = %v, want ErrNoRunType", err)
	}
	if err := (Parameters{Run: Run{Type: RunGroundState}}).ValidateRun(); err != nil {
		t.Errorf("ValidateRun() error = %v", err)
	}
}
