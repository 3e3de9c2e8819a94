package engine

import "fmt"

// energy conversion factors to electronvolt (CODATA 2018)
var toElectronVolt = map[string]float64{
	"eV":       1,
	"meV":      1e-3,
	"Ha":       27.211386245988,
	"Hartree":  27.211386245988,
	"Ry":       13.605693122994,
	"Rydberg":  13.605693122994,
	"kJ/mol":   0.010364269656262175,
	"kcal/mol": 0.043364104241800934,
}

// ToElectronVolt converts value in unit to eV.
func ToElectronVolt(value float64, unit string) (float64, error) {
	f, ok := toElectronVolt[unit]
	if !ok {
		return 0, fmt.Errorf("unknown energy unit %q", unit)
	}
	return value * f, nil
}
