// Modul: normalize.go
// Beschreibung: Spaltenweise Normalisierung von Zeitreihen vor dem Training.
// Alle Varianten sind affine Abbildungen (v - Bias) / Scale, damit Forecasts
// und Streuungen exakt zurueckgerechnet werden koennen. Der Zustand wird als
// JSON im Checkpoint abgelegt.
package transform

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/nehal119/merlion-testing/ts"
)

// Bekannte Normalisierungsarten.
const (
	KindMeanVar = "meanvar"
	KindMinMax  = "minmax"
	KindNone    = "none"
)

// Normalizer bildet jede Spalte affin auf (v - Bias[j]) / Scale[j] ab.
// Bias und Scale werden von Fit befuellt; Kind bestimmt die Statistik.
type Normalizer struct {
	Kind  string    `json:"kind"`
	Bias  []float64 `json:"bias"`
	Scale []float64 `json:"scale"`
}

// NewNormalizer creates an unfitted normalizer of the given kind.
func NewNormalizer(kind string) (*Normalizer, error) {
	switch kind {
	case KindMeanVar, KindMinMax, KindNone:
		return &Normalizer{Kind: kind}, nil
	default:
		return nil, fmt.Errorf("unknown normalizer kind %q", kind)
	}
}

// Fit estimates per-column statistics from t.
func (n *Normalizer) Fit(t *ts.TimeSeries) error {
	dim := t.Dim()
	n.Bias = make([]float64, dim)
	n.Scale = make([]float64, dim)

	for j := 0; j < dim; j++ {
		values := t.Column(j).Values()
		if len(values) == 0 {
			return ts.ErrEmpty
		}

		switch n.Kind {
		case KindMeanVar:
			mean := 0.0
			for _, v := range values {
				mean += v
			}
			mean /= float64(len(values))

			variance := 0.0
			for _, v := range values {
				variance += (v - mean) * (v - mean)
			}
			variance /= float64(len(values))

			n.Bias[j] = mean
			n.Scale[j] = math.Sqrt(variance)
		case KindMinMax:
			min, max := values[0], values[0]
			for _, v := range values {
				min = math.Min(min, v)
				max = math.Max(max, v)
			}
			n.Bias[j] = min
			n.Scale[j] = max - min
		case KindNone:
			n.Bias[j] = 0
			n.Scale[j] = 1
		}

		// konstante Spalten nicht durch 0 teilen
		if n.Scale[j] == 0 {
			n.Scale[j] = 1
		}
	}

	return nil
}

// Fitted reports whether Fit has been called.
func (n *Normalizer) Fitted() bool { return len(n.Scale) > 0 }

// Apply returns a normalized copy of t.
func (n *Normalizer) Apply(t *ts.TimeSeries) (*ts.TimeSeries, error) {
	if err := n.check(t.Dim()); err != nil {
		return nil, err
	}

	times := t.Times()
	rows := t.Matrix()
	for i := range rows {
		for j := range rows[i] {
			rows[i][j] = (rows[i][j] - n.Bias[j]) / n.Scale[j]
		}
	}
	return ts.FromMatrix(t.Names(), times, rows)
}

// Invert maps a normalized series back to the original value range. The
// series may carry fewer columns than the fitted data; cols names the fitted
// column index for each series column.
func (n *Normalizer) Invert(t *ts.TimeSeries, cols []int) (*ts.TimeSeries, error) {
	if len(cols) != t.Dim() {
		return nil, fmt.Errorf("have %d column indices for %d columns", len(cols), t.Dim())
	}
	for _, j := range cols {
		if j < 0 || j >= len(n.Scale) {
			return nil, fmt.Errorf("column index %d outside fitted dim %d", j, len(n.Scale))
		}
	}

	times := t.Times()
	rows := t.Matrix()
	for i := range rows {
		for k, j := range cols {
			rows[i][k] = rows[i][k]*n.Scale[j] + n.Bias[j]
		}
	}
	return ts.FromMatrix(t.Names(), times, rows)
}

// InvertValue rechnet einen einzelnen Wert der Spalte j zurueck.
func (n *Normalizer) InvertValue(j int, v float64) float64 {
	return v*n.Scale[j] + n.Bias[j]
}

// ScaleOf gibt den Skalenfaktor der Spalte j zurueck (fuer Streuungen).
func (n *Normalizer) ScaleOf(j int) float64 { return n.Scale[j] }

func (n *Normalizer) check(dim int) error {
	if !n.Fitted() {
		return fmt.Errorf("normalizer is not fitted")
	}
	if dim != len(n.Scale) {
		return fmt.Errorf("normalizer fitted for dim %d, series has dim %d", len(n.Scale), dim)
	}
	return nil
}

// Marshal serialisiert den Zustand fuer den Checkpoint.
func (n *Normalizer) Marshal() ([]byte, error) {
	return json.Marshal(n)
}

// Unmarshal stellt einen Normalizer aus Checkpoint-Daten her.
func Unmarshal(data []byte) (*Normalizer, error) {
	var n Normalizer
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("decode normalizer: %w", err)
	}
	switch n.Kind {
	case KindMeanVar, KindMinMax, KindNone:
	default:
		return nil, fmt.Errorf("unknown normalizer kind %q", n.Kind)
	}
	return &n, nil
}
