// Modul: bounds.go
// Beschreibung: Konfidenzbaender um eine Prognose. Aus Standardfehler
// und Normalquantil entsteht ein symmetrisches Band je Variable.
package forecast

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/nehal119/merlion-testing/ts"
)

// ConfidenceBounds legt ein symmetrisches Band der Ueberdeckung level
// um die Prognose, etwa 0.95 fuer ein 95-Prozent-Band. Die Spalten von
// stderr werden der Reihenfolge nach den Prognosespalten zugeordnet.
func ConfidenceBounds(forecast, stderr *ts.TimeSeries, level float64) (lo, hi *ts.TimeSeries, err error) {
	if level <= 0 || level >= 1 {
		return nil, nil, fmt.Errorf("confidence level %v outside (0, 1)", level)
	}
	if stderr.Dim() != forecast.Dim() || stderr.Len() != forecast.Len() {
		return nil, nil, fmt.Errorf("stderr %dx%d does not match forecast %dx%d",
			stderr.Len(), stderr.Dim(), forecast.Len(), forecast.Dim())
	}

	z := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(0.5 + level/2)
	times := forecast.Times()
	base := forecast.Matrix()
	width := stderr.Matrix()

	loRows := make([][]float64, len(base))
	hiRows := make([][]float64, len(base))
	for i := range base {
		loRows[i] = make([]float64, len(base[i]))
		hiRows[i] = make([]float64, len(base[i]))
		for j := range base[i] {
			loRows[i][j] = base[i][j] - z*width[i][j]
			hiRows[i][j] = base[i][j] + z*width[i][j]
		}
	}

	if lo, err = ts.FromMatrix(forecast.Names(), times, loRows); err != nil {
		return nil, nil, err
	}
	if hi, err = ts.FromMatrix(forecast.Names(), times, hiRows); err != nil {
		return nil, nil, err
	}
	return lo, hi, nil
}
