// Modul: dataset.go
// Beschreibung: Rollierende Fenster ueber einer Zeitreihe fuer das
// Training. Jedes Fenster liefert Rueckblick und Horizont samt
// Kalendermerkmalen; Batches stapelt gemischte Fenster zu Tensoren.
package forecast

import (
	"fmt"
	"math/rand"

	"github.com/nehal119/merlion-testing/ml"
)

// Dataset haelt die vorbereiteten Zeilen und die Startindizes aller
// Fenster. values und feats teilen sich die Zeilennummerierung.
type Dataset struct {
	values [][]float32
	feats  [][]float32

	nPast   int
	horizon int
	windows []int
}

// NewDataset legt Fenster der Form [start, start+nPast+horizon) an.
func NewDataset(values, feats [][]float32, nPast, horizon int) (*Dataset, error) {
	if len(values) != len(feats) {
		return nil, fmt.Errorf("have %d value rows and %d feature rows", len(values), len(feats))
	}
	span := nPast + horizon
	if len(values) < span {
		return nil, fmt.Errorf("need at least %d rows, have %d", span, len(values))
	}

	windows := make([]int, len(values)-span+1)
	for i := range windows {
		windows[i] = i
	}
	return &Dataset{values: values, feats: feats, nPast: nPast, horizon: horizon, windows: windows}, nil
}

// Len ist die Zahl der Fenster.
func (d *Dataset) Len() int { return len(d.windows) }

// Split trennt den hinteren Anteil der Fenster als Validierungsmenge
// ab. Die Aufteilung ist zeitlich, nicht zufaellig.
func (d *Dataset) Split(validFraction float64) (train, valid *Dataset) {
	nValid := int(validFraction * float64(len(d.windows)))
	if nValid <= 0 {
		return d, nil
	}
	cut := len(d.windows) - nValid

	train = &Dataset{values: d.values, feats: d.feats, nPast: d.nPast, horizon: d.horizon, windows: d.windows[:cut]}
	valid = &Dataset{values: d.values, feats: d.feats, nPast: d.nPast, horizon: d.horizon, windows: d.windows[cut:]}
	return train, valid
}

// Batch sind die gestapelten Tensoren einer Fenstergruppe.
type Batch struct {
	Past        *ml.Tensor // [B, nPast, D]
	PastMarks   *ml.Tensor // [B, nPast, M]
	Future      *ml.Tensor // [B, horizon, D]
	FutureMarks *ml.Tensor // [B, horizon, M]
}

// Size ist die Zahl der Fenster im Batch.
func (b *Batch) Size() int { return b.Past.Dim(0) }

// Batches gruppiert die Fenster zu Tensoren. Mit rng wird die
// Fensterreihenfolge vorher gemischt, der letzte Batch darf kleiner
// ausfallen.
func (d *Dataset) Batches(batchSize int, rng *rand.Rand) []Batch {
	order := d.windows
	if rng != nil {
		order = make([]int, len(d.windows))
		copy(order, d.windows)
		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	var batches []Batch
	for start := 0; start < len(order); start += batchSize {
		end := min(start+batchSize, len(order))
		batches = append(batches, d.stack(order[start:end]))
	}
	return batches
}

func (d *Dataset) stack(starts []int) Batch {
	b := len(starts)
	dim := len(d.values[0])
	mark := len(d.feats[0])

	past := make([]float32, 0, b*d.nPast*dim)
	pastMarks := make([]float32, 0, b*d.nPast*mark)
	future := make([]float32, 0, b*d.horizon*dim)
	futureMarks := make([]float32, 0, b*d.horizon*mark)

	for _, s := range starts {
		for i := s; i < s+d.nPast; i++ {
			past = append(past, d.values[i]...)
			pastMarks = append(pastMarks, d.feats[i]...)
		}
		for i := s + d.nPast; i < s+d.nPast+d.horizon; i++ {
			future = append(future, d.values[i]...)
			futureMarks = append(futureMarks, d.feats[i]...)
		}
	}

	return Batch{
		Past:        ml.NewTensor(past, b, d.nPast, dim),
		PastMarks:   ml.NewTensor(pastMarks, b, d.nPast, mark),
		Future:      ml.NewTensor(future, b, d.horizon, dim),
		FutureMarks: ml.NewTensor(futureMarks, b, d.horizon, mark),
	}
}
