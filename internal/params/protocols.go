package params

import (
	"fmt"
	"sort"
	"strings"
)

// Protocol names accepted in [parameters] protocol.
const (
	ProtocolFast     = "fast"
	ProtocolModerate = "moderate"
	ProtocolPrecise  = "precise"
)

// Protocol is a named preset for the SCF and occupation keys. Presets only
// fill keys the configuration leaves unset.
type Protocol struct {
	ExtraStates int
	Functional  string
	Tolerance   float64
	MaxSteps    int
	Mixing      float64
	Mixer       string
}

var protocols = map[string]Protocol{
	ProtocolFast: {
		ExtraStates: 2,
		Functional:  "pbe",
		Tolerance:   1e-5,
		MaxSteps:    100,
		Mixing:      0.3,
		Mixer:       "broyden",
	},
	ProtocolModerate: {
		ExtraStates: 3,
		Functional:  "pbe",
		Tolerance:   1e-7,
		MaxSteps:    200,
		Mixing:      0.3,
		Mixer:       "broyden",
	},
	ProtocolPrecise: {
		ExtraStates: 4,
		Functional:  "pbe",
		Tolerance:   1e-9,
		MaxSteps:    400,
		Mixing:      0.2,
		Mixer:       "broyden",
	},
}

// LookupProtocol returns the preset registered under name.
func LookupProtocol(name string) (Protocol, error) {
	proto, ok := protocols[name]
	if !ok {
		return Protocol{}, fmt.Errorf("unknown protocol %q (want one of %s)", name, strings.Join(protocolNames(), ", "))
	}
	return proto, nil
}

func protocolNames() []string {
	names := make([]string, 0, len(protocols))
	for name := range protocols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyProtocol returns a copy with the named preset merged underneath the
// explicit keys. An empty Protocol returns an unchanged copy.
func (p Parameters) ApplyProtocol() (Parameters, error) {
	out := p.Clone()
	if p.Protocol == "" {
		return out, nil
	}
	proto, err := LookupProtocol(p.Protocol)
	if err != nil {
		return out, err
	}

	if out.Electrons == nil {
		out.Electrons = &Electrons{}
	}
	if out.Electrons.ExtraStates == nil {
		n := proto.ExtraStates
		out.Electrons.ExtraStates = &n
	}

	if out.Theory == nil {
		out.Theory = &Theory{}
	}
	if out.Theory.Functional == "" {
		out.Theory.Functional = proto.Functional
	}

	if out.GroundState == nil {
		out.GroundState = &GroundState{}
	}
	gs := out.GroundState
	if gs.Tolerance == nil {
		v := proto.Tolerance
		gs.Tolerance = &v
	}
	if gs.MaxSteps == nil {
		v := proto.MaxSteps
		gs.MaxSteps = &v
	}
	if gs.Mixing == nil {
		v := proto.Mixing
		gs.Mixing = &v
	}
	if gs.Mixer == "" {
		gs.Mixer = proto.Mixer
	}

	return out, nil
}
