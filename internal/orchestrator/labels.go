package orchestrator

import (
	"strconv"
	"strings"

	"github.com/lamim/inqsweep/pkg/models"
)

var labelReplacer = strings.NewReplacer(" ", "_", "/", "per", "\\", "_")

// cutoffLabel gives e.g. "cutoff_10_Ha" for "10 Ha".
func cutoffLabel(cutoff models.Quantity) models.TrialLabel {
	return models.TrialLabel("cutoff_" + labelReplacer.Replace(cutoff.String()))
}

// kspacingLabel gives e.g. "kspacing_0.15"; the unit is fixed for the stage.
func kspacingLabel(spacing models.Quantity) models.TrialLabel {
	return models.TrialLabel("kspacing_" + strconv.FormatFloat(spacing.Value, 'f', -1, 64))
}
