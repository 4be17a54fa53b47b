package forecast

import (
	"testing"

	"github.com/nehal119/merlion-testing/ml"
)

// rampData liefert n Zeilen mit Wert i und Merkmal 10*i.
func rampData(n int) (values, feats [][]float32) {
	for i := 0; i < n; i++ {
		values = append(values, []float32{float32(i)})
		feats = append(feats, []float32{float32(10 * i)})
	}
	return values, feats
}

func TestDatasetWindows(t *testing.T) {
	values, feats := rampData(10)
	ds, err := NewDataset(values, feats, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	if ds.Len() != 6 {
		t.Fatalf("%d Fenster, erwartet 6", ds.Len())
	}

	batches := ds.Batches(4, nil)
	if len(batches) != 2 {
		t.Fatalf("%d Batches, erwartet 2", len(batches))
	}
	if batches[0].Size() != 4 || batches[1].Size() != 2 {
		t.Fatalf("Batchgroessen %d/%d, erwartet 4/2", batches[0].Size(), batches[1].Size())
	}

	// Fenster 0: Rueckblick auf die Zeilen 0..2, Horizont 3..4.
	first := batches[0]
	if got := first.Past.At(0, 2, 0); got != 2 {
		t.Errorf("letzter Rueckblickwert %v, erwartet 2", got)
	}
	if got := first.Future.At(0, 0, 0); got != 3 {
		t.Errorf("erster Horizontwert %v, erwartet 3", got)
	}
	if got := first.PastMarks.At(0, 1, 0); got != 10 {
		t.Errorf("Rueckblickmerkmal %v, erwartet 10", got)
	}
	if got := first.FutureMarks.At(0, 1, 0); got != 40 {
		t.Errorf("Horizontmerkmal %v, erwartet 40", got)
	}

	// Fenster 1 beginnt eine Zeile spaeter.
	if got := first.Past.At(1, 0, 0); got != 1 {
		t.Errorf("zweites Fenster beginnt bei %v, erwartet 1", got)
	}
}

func TestDatasetSplit(t *testing.T) {
	values, feats := rampData(10)
	ds, _ := NewDataset(values, feats, 3, 2)

	train, valid := ds.Split(0.5)
	if train.Len() != 3 || valid.Len() != 3 {
		t.Fatalf("Aufteilung %d/%d, erwartet 3/3", train.Len(), valid.Len())
	}

	// Die Validierung nimmt die spaeten Fenster.
	vb := valid.Batches(3, nil)[0]
	if got := vb.Past.At(0, 0, 0); got != 3 {
		t.Errorf("erstes Validierungsfenster beginnt bei %v, erwartet 3", got)
	}

	train, valid = ds.Split(0)
	if train.Len() != 6 || valid != nil {
		t.Errorf("ohne Anteil: %d Fenster und valid=%v, erwartet 6 und nil", train.Len(), valid)
	}
}

func TestDatasetShuffle(t *testing.T) {
	values, feats := rampData(30)
	ds, _ := NewDataset(values, feats, 3, 2)

	firstOf := func(batches []Batch) []float32 {
		var out []float32
		for _, b := range batches {
			for i := 0; i < b.Size(); i++ {
				out = append(out, b.Past.At(i, 0, 0))
			}
		}
		return out
	}

	a := firstOf(ds.Batches(8, ml.NewRNG(7)))
	b := firstOf(ds.Batches(8, ml.NewRNG(7)))
	near(t, "gleicher Seed", a, b, 0)

	// Jedes Fenster kommt genau einmal vor.
	seen := make(map[float32]int)
	for _, v := range a {
		seen[v]++
	}
	if len(seen) != ds.Len() {
		t.Fatalf("%d verschiedene Fenster nach dem Mischen, erwartet %d", len(seen), ds.Len())
	}

	shuffled := false
	for i, v := range a {
		if v != float32(i) {
			shuffled = true
			break
		}
	}
	if !shuffled {
		t.Error("Reihenfolge nach dem Mischen unveraendert")
	}
}

func TestDatasetTooShort(t *testing.T) {
	values, feats := rampData(4)
	if _, err := NewDataset(values, feats, 3, 2); err == nil {
		t.Fatal("4 Zeilen fuer Fensterlaenge 5 akzeptiert, erwartet Fehler")
	}
}

func TestDatasetRowMismatch(t *testing.T) {
	values, _ := rampData(10)
	_, feats := rampData(9)
	if _, err := NewDataset(values, feats, 3, 2); err == nil {
		t.Fatal("ungleiche Zeilenzahlen akzeptiert, erwartet Fehler")
	}
}
