package transform

import (
	"math"
	"testing"
	"time"

	"github.com/nehal119/merlion-testing/ts"
)

func series(t *testing.T, rows [][]float64) *ts.TimeSeries {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	times := make([]time.Time, len(rows))
	for i := range times {
		times[i] = base.Add(time.Duration(i) * time.Hour)
	}
	names := make([]string, len(rows[0]))
	for j := range names {
		names[j] = string(rune('a' + j))
	}
	mv, err := ts.FromMatrix(names, times, rows)
	if err != nil {
		t.Fatal(err)
	}
	return mv
}

func TestMeanVarNormalize(t *testing.T) {
	mv := series(t, [][]float64{{2, 100}, {4, 200}, {6, 300}})

	n, err := NewNormalizer(KindMeanVar)
	if err != nil {
		t.Fatal(err)
	}
	if err := n.Fit(mv); err != nil {
		t.Fatal(err)
	}

	// Spalte 0: Mittel 4, Std sqrt(8/3)
	if math.Abs(n.Bias[0]-4) > 1e-12 {
		t.Errorf("Bias[0] = %v, erwartet 4", n.Bias[0])
	}
	wantStd := math.Sqrt(8.0 / 3.0)
	if math.Abs(n.Scale[0]-wantStd) > 1e-12 {
		t.Errorf("Scale[0] = %v, erwartet %v", n.Scale[0], wantStd)
	}

	normed, err := n.Apply(mv)
	if err != nil {
		t.Fatal(err)
	}

	// normalisierte Spalten haben Mittel 0
	for j := 0; j < normed.Dim(); j++ {
		sum := 0.0
		for _, v := range normed.Column(j).Values() {
			sum += v
		}
		if math.Abs(sum) > 1e-9 {
			t.Errorf("Spalte %d: Summe %v nach Normalisierung, erwartet 0", j, sum)
		}
	}

	back, err := n.Invert(normed, []int{0, 1})
	if err != nil {
		t.Fatal(err)
	}
	orig := mv.Matrix()
	for i, row := range back.Matrix() {
		for j, v := range row {
			if math.Abs(v-orig[i][j]) > 1e-9 {
				t.Errorf("Invert[%d][%d] = %v, erwartet %v", i, j, v, orig[i][j])
			}
		}
	}
}

func TestMinMaxNormalize(t *testing.T) {
	mv := series(t, [][]float64{{10}, {20}, {30}})

	n, _ := NewNormalizer(KindMinMax)
	if err := n.Fit(mv); err != nil {
		t.Fatal(err)
	}

	normed, err := n.Apply(mv)
	if err != nil {
		t.Fatal(err)
	}
	values := normed.Column(0).Values()
	if values[0] != 0 || values[2] != 1 {
		t.Errorf("MinMax ergibt [%v .. %v], erwartet [0 .. 1]", values[0], values[2])
	}
}

func TestConstantColumn(t *testing.T) {
	mv := series(t, [][]float64{{5}, {5}, {5}})

	n, _ := NewNormalizer(KindMeanVar)
	if err := n.Fit(mv); err != nil {
		t.Fatal(err)
	}
	// Scale darf nie 0 sein
	if n.Scale[0] != 1 {
		t.Errorf("Scale[0] = %v bei konstanter Spalte, erwartet 1", n.Scale[0])
	}
}

func TestInvertSingleColumn(t *testing.T) {
	mv := series(t, [][]float64{{2, 100}, {4, 200}, {6, 300}})

	n, _ := NewNormalizer(KindMeanVar)
	if err := n.Fit(mv); err != nil {
		t.Fatal(err)
	}

	// Nur die Zielspalte 1 zuruecktransformieren
	single := series(t, [][]float64{{0}, {1}, {-1}})
	back, err := n.Invert(single, []int{1})
	if err != nil {
		t.Fatal(err)
	}
	got := back.Column(0).Values()
	if math.Abs(got[0]-n.Bias[1]) > 1e-9 {
		t.Errorf("Invert(0) = %v, erwartet Bias %v", got[0], n.Bias[1])
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	mv := series(t, [][]float64{{1, 2}, {3, 4}})
	n, _ := NewNormalizer(KindMeanVar)
	if err := n.Fit(mv); err != nil {
		t.Fatal(err)
	}

	data, err := n.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	back, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if back.Kind != n.Kind || len(back.Scale) != len(n.Scale) {
		t.Errorf("Unmarshal = %+v, erwartet %+v", back, n)
	}
}

func TestUnknownKind(t *testing.T) {
	if _, err := NewNormalizer("robust"); err == nil {
		t.Error("NewNormalizer(robust) ohne Fehler, erwartet Fehler")
	}
	if _, err := Unmarshal([]byte(`{"kind":"weird"}`)); err == nil {
		t.Error("Unmarshal mit unbekanntem Kind ohne Fehler, erwartet Fehler")
	}
}
