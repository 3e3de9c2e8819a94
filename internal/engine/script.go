// Package engine speaks the INQ command-line protocol: it renders the
// input script for one trial and parses the text the engine prints back.
package engine

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lamim/inqsweep/internal/params"
	"github.com/lamim/inqsweep/pkg/models"
)

const (
	// Tool is the command prefix of every engine line.
	Tool = "inq"
	// Sentinel is echoed as the final output line of a finished run.
	Sentinel = "AiiDA DONE"

	InputFilename  = "aiida.in"
	OutputFilename = "aiida.out"
	ErrorFilename  = "aiida.err"
)

// RenderScript builds the shell script that runs one calculation.
func RenderScript(structure models.Structure, p params.Parameters) (string, error) {
	if err := p.Validate(); err != nil {
		return "", &CodeError{Code: IncorrectInputParameter, Err: err}
	}
	if err := p.ValidateRun(); err != nil {
		return "", &CodeError{Code: NoRunTypeSpecified, Err: err}
	}
	if err := validateStructure(structure); err != nil {
		return "", &CodeError{Code: IncorrectInputParameter, Err: err}
	}

	var b strings.Builder
	b.WriteString("#!/bin/bash\n\nset -e\nset -x\n\n")
	writeCommand(&b, "clear")
	writeCommand(&b, cellCommand(structure.Cell))

	for _, site := range structure.Sites {
		writeCommand(&b, fmt.Sprintf("ions insert fractional %s %s", site.Symbol, formatFloats(site.Fractional[:])))
	}

	for _, line := range p.Lines() {
		writeCommand(&b, line.String())
	}

	writeCommand(&b, "run "+p.Run.Type)

	for _, line := range p.ResultQueries() {
		writeCommand(&b, line.String())
	}

	fmt.Fprintf(&b, "\necho %q\n", Sentinel)
	return b.String(), nil
}

func writeCommand(b *strings.Builder, cmd string) {
	b.WriteString(Tool)
	b.WriteByte(' ')
	b.WriteString(cmd)
	b.WriteByte('\n')
}

// cellCommand writes the cell normalised by its largest component.
func cellCommand(cell models.Lattice) string {
	scale := cellScale(cell)
	parts := make([]string, 0, 3)
	for _, row := range cell {
		scaled := []float64{row[0] / scale, row[1] / scale, row[2] / scale}
		parts = append(parts, formatFloats(scaled))
	}
	return fmt.Sprintf("cell %s scale %s angstrom", strings.Join(parts, " "), strconv.FormatFloat(scale, 'f', -1, 64))
}

func cellScale(cell models.Lattice) float64 {
	scale := 0.0
	for _, row := range cell {
		for _, v := range row {
			scale = math.Max(scale, math.Abs(v))
		}
	}
	return scale
}

func validateStructure(s models.Structure) error {
	if cellScale(s.Cell) == 0 {
		return errors.New("structure cell is empty")
	}
	if len(s.Sites) == 0 {
		return errors.New("structure has no sites")
	}
	for i, site := range s.Sites {
		if strings.TrimSpace(site.Symbol) == "" || strings.ContainsAny(site.Symbol, " \t\n") {
			return fmt.Errorf("site %d has an invalid symbol %q", i, site.Symbol)
		}
	}
	return nil
}

func formatFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, " ")
}
