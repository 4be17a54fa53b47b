// reader.go - Lesen von PyTorch-Checkpoints ueber gopickle
//
// Dieses Modul enthaelt:
// - loadStateDict: Laden und Auspacken eines .pt State-Dicts
// - stateTensors: Flachlegen des Dicts auf Name -> Tensor
// - contiguousData: Umkopieren eines Tensors in zusammenhaengende Werte
package convert

import (
	"fmt"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
)

// wrapperKeys sind Schluessel, unter denen Trainingsskripte das
// eigentliche State-Dict ablegen.
var wrapperKeys = []string{"state_dict", "model_state_dict", "model"}

// loadStateDict liest eine PyTorch-Datei und liefert die benannten
// Tensoren in Einfuegereihenfolge.
func loadStateDict(path string) ([]namedTensor, error) {
	loaded, err := pytorch.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return stateTensors(loaded)
}

type namedTensor struct {
	name   string
	tensor *pytorch.Tensor
}

// stateTensors packt Wrapper-Dicts aus und sammelt alle Tensoreintraege.
func stateTensors(v any) ([]namedTensor, error) {
	entries, err := dictEntries(v)
	if err != nil {
		return nil, err
	}

	// Ein Wrapper-Dict traegt das State-Dict unter einem bekannten
	// Schluessel statt direkter Tensoren.
	for _, e := range entries {
		for _, wrapper := range wrapperKeys {
			if e.name != wrapper {
				continue
			}
			if inner, err := dictEntries(e.value); err == nil {
				return collectTensors(inner)
			}
		}
	}
	return collectTensors(entries)
}

type dictEntry struct {
	name  string
	value any
}

func dictEntries(v any) ([]dictEntry, error) {
	switch d := v.(type) {
	case *types.OrderedDict:
		entries := make([]dictEntry, 0, d.Len())
		for el := d.List.Front(); el != nil; el = el.Next() {
			e := el.Value.(*types.OrderedDictEntry)
			name, ok := e.Key.(string)
			if !ok {
				return nil, fmt.Errorf("dict key %v is %T, not a string", e.Key, e.Key)
			}
			entries = append(entries, dictEntry{name: name, value: e.Value})
		}
		return entries, nil
	case *types.Dict:
		entries := make([]dictEntry, 0, len(*d))
		for _, e := range *d {
			name, ok := e.Key.(string)
			if !ok {
				return nil, fmt.Errorf("dict key %v is %T, not a string", e.Key, e.Key)
			}
			entries = append(entries, dictEntry{name: name, value: e.Value})
		}
		return entries, nil
	default:
		return nil, fmt.Errorf("checkpoint root is %T, expected a dict", v)
	}
}

func collectTensors(entries []dictEntry) ([]namedTensor, error) {
	tensors := make([]namedTensor, 0, len(entries))
	for _, e := range entries {
		t, ok := e.value.(*pytorch.Tensor)
		if !ok {
			// Optimizer-Zustaende und Zaehler uebergehen.
			continue
		}
		tensors = append(tensors, namedTensor{name: e.name, tensor: t})
	}
	if len(tensors) == 0 {
		return nil, fmt.Errorf("checkpoint holds no tensors")
	}
	return tensors, nil
}

// contiguousData kopiert einen moeglicherweise gestrideten Tensor in
// zusammenhaengende float32-Werte. Halbe Genauigkeit meldet half=true.
func contiguousData(t *pytorch.Tensor) (data []float32, half bool, err error) {
	var read func(i int) float32
	switch s := t.Source.(type) {
	case *pytorch.FloatStorage:
		read = func(i int) float32 { return s.Data[i] }
	case *pytorch.HalfStorage:
		read = func(i int) float32 { return s.Data[i] }
		half = true
	case *pytorch.DoubleStorage:
		read = func(i int) float32 { return float32(s.Data[i]) }
	default:
		return nil, false, fmt.Errorf("unsupported storage type %T", t.Source)
	}

	n := 1
	for _, d := range t.Size {
		n *= d
	}
	data = make([]float32, 0, n)

	idx := make([]int, len(t.Size))
	for range n {
		flat := t.StorageOffset
		for d, i := range idx {
			flat += i * t.Stride[d]
		}
		data = append(data, read(flat))

		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < t.Size[d] {
				break
			}
			idx[d] = 0
		}
	}
	return data, half, nil
}
