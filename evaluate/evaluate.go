// Modul: evaluate.go
// Beschreibung: Guetemasse fuer Prognosen. Prognose und Referenz werden
// ueber gemeinsame Variablennamen und Zeitstempel gepaart, die Masse
// laufen ueber alle gepaarten Punkte.
package evaluate

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/nehal119/merlion-testing/ts"
)

// Func bildet Prognose und Referenz auf einen Skalar ab.
type Func func(forecast, actual *ts.TimeSeries) (float64, error)

// ByName loest einen Metriknamen auf.
func ByName(name string) (Func, error) {
	switch strings.ToLower(name) {
	case "mse":
		return MSE, nil
	case "rmse":
		return RMSE, nil
	case "mae":
		return MAE, nil
	case "mape":
		return MAPE, nil
	case "smape":
		return SMAPE, nil
	default:
		return nil, fmt.Errorf("unknown metric %q", name)
	}
}

// Names listet die verfuegbaren Metriken.
func Names() []string {
	return []string{"mse", "rmse", "mae", "mape", "smape"}
}

var errNoOverlap = errors.New("forecast and actual share no points")

// alignedPairs sammelt Wertepaare ueber gemeinsame Variablen und
// Zeitstempel.
func alignedPairs(forecast, actual *ts.TimeSeries) (f, a []float64, err error) {
	byName := map[string]*ts.UnivariateTimeSeries{}
	for i, name := range forecast.Names() {
		byName[name] = forecast.Column(i)
	}

	for i, name := range actual.Names() {
		fc, ok := byName[name]
		if !ok {
			continue
		}
		col := actual.Column(i)
		for _, tm := range col.Times() {
			fv, ok := fc.Get(tm)
			if !ok {
				continue
			}
			av, _ := col.Get(tm)
			f = append(f, fv)
			a = append(a, av)
		}
	}

	if len(f) == 0 {
		return nil, nil, errNoOverlap
	}
	return f, a, nil
}

// MSE ist der mittlere quadratische Fehler.
func MSE(forecast, actual *ts.TimeSeries) (float64, error) {
	f, a, err := alignedPairs(forecast, actual)
	if err != nil {
		return 0, err
	}

	var sum float64
	for i := range f {
		d := f[i] - a[i]
		sum += d * d
	}
	return sum / float64(len(f)), nil
}

// RMSE ist die Wurzel des mittleren quadratischen Fehlers.
func RMSE(forecast, actual *ts.TimeSeries) (float64, error) {
	mse, err := MSE(forecast, actual)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE ist der mittlere absolute Fehler.
func MAE(forecast, actual *ts.TimeSeries) (float64, error) {
	f, a, err := alignedPairs(forecast, actual)
	if err != nil {
		return 0, err
	}

	var sum float64
	for i := range f {
		sum += math.Abs(f[i] - a[i])
	}
	return sum / float64(len(f)), nil
}

// MAPE ist der mittlere absolute prozentuale Fehler. Punkte mit
// Referenzwert nahe null werden uebersprungen.
func MAPE(forecast, actual *ts.TimeSeries) (float64, error) {
	f, a, err := alignedPairs(forecast, actual)
	if err != nil {
		return 0, err
	}

	var sum float64
	var n int
	for i := range f {
		if math.Abs(a[i]) < 1e-8 {
			continue
		}
		sum += math.Abs((f[i] - a[i]) / a[i])
		n++
	}
	if n == 0 {
		return 0, errors.New("all reference values are zero")
	}
	return 100 * sum / float64(n), nil
}

// SMAPE ist der symmetrische MAPE mit Wertebereich [0, 200]. Punkte, an
// denen beide Reihen null sind, werden uebersprungen.
func SMAPE(forecast, actual *ts.TimeSeries) (float64, error) {
	f, a, err := alignedPairs(forecast, actual)
	if err != nil {
		return 0, err
	}

	var sum float64
	var n int
	for i := range f {
		denom := math.Abs(f[i]) + math.Abs(a[i])
		if denom < 1e-8 {
			continue
		}
		sum += math.Abs(f[i]-a[i]) / denom
		n++
	}
	if n == 0 {
		return 0, errors.New("all values are zero")
	}
	return 200 * sum / float64(n), nil
}
