package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lamim/inqsweep/pkg/models"
)

const (
	energyMarker = "Energy:"
	forcesMarker = "Forces:"
)

// IsComplete reports whether the last line of output is exactly the sentinel.
// One terminating newline is allowed; a trailing blank line is not.
func IsComplete(output string) bool {
	text := strings.TrimSuffix(output, "\n")
	text = strings.TrimSuffix(text, "\r")
	last := text[strings.LastIndex(text, "\n")+1:]
	return last == Sentinel
}

// ParseOutput extracts energies (converted to eV) and forces from engine output.
func ParseOutput(output string) (*models.TrialResult, error) {
	if !IsComplete(output) {
		return nil, &CodeError{Code: OutputStdoutIncomplete, Err: fmt.Errorf("last line is not %q", Sentinel)}
	}

	result := &models.TrialResult{Quantities: map[string]map[string]float64{}}

	var section string
	for n, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")

		switch {
		case strings.Contains(line, energyMarker):
			section = "energy"
			if result.Quantities[section] == nil {
				result.Quantities[section] = map[string]float64{}
			}
			continue
		case strings.Contains(line, forcesMarker):
			section = "forces"
			continue
		case strings.TrimSpace(line) == "":
			section = ""
			continue
		}

		switch section {
		case "energy":
			name, value, err := parseEnergyLine(line)
			if err != nil {
				return nil, Errorf(OutputParsingFailed, "line %d: %w", n+1, err)
			}
			if name != "" {
				result.Quantities[section][name] = value
			}
		case "forces":
			if f, ok := parseForceLine(line); ok {
				result.Forces = append(result.Forces, f)
			}
		}
	}

	return result, nil
}

// parseEnergyLine reads "<name> ... <value> <unit>". Lines too short to hold
// all three are ignored. A nan or inf value means the SCF diverged.
func parseEnergyLine(line string) (string, float64, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return "", 0, nil
	}

	value, err := strconv.ParseFloat(fields[len(fields)-2], 64)
	if err != nil {
		return "", 0, fmt.Errorf("energy %q: %w", fields[0], err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "", 0, fmt.Errorf("energy %q is not finite (%s)", fields[0], fields[len(fields)-2])
	}
	ev, err := ToElectronVolt(value, fields[len(fields)-1])
	if err != nil {
		return "", 0, fmt.Errorf("energy %q: %w", fields[0], err)
	}
	return fields[0], ev, nil
}

// parseForceLine reads the trailing numeric triple; anything else is skipped.
func parseForceLine(line string) ([3]float64, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return [3]float64{}, false
	}

	var f [3]float64
	for i, tok := range fields[len(fields)-3:] {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return [3]float64{}, false
		}
		f[i] = v
	}
	return f, true
}
