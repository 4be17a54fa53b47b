// Modul: module.go
// Beschreibung: Reflection-Walker ueber Modul-Baeume. Felder mit einem
// weight-Tag liefern benannte Tensoren fuer Checkpoints und Optimizer.
// Namen verschachtelter Module werden mit Punkten verkettet, Slices
// haengen ihren Index an, genau wie die Namen in einem state_dict.
package nn

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"strconv"

	"github.com/nehal119/merlion-testing/ml"
)

// NamedTensor ist ein Tensor samt seinem Pfad im Modul-Baum.
type NamedTensor struct {
	Name   string
	Tensor *ml.Tensor
}

// TrainingAware markiert Module, die sich im Training anders verhalten
// als bei der Inferenz (Dropout, BatchNorm).
type TrainingAware interface {
	SetTraining(training bool)
}

var tensorType = reflect.TypeOf((*ml.Tensor)(nil))

// Visit ruft fn fuer jeden getaggten Tensor unterhalb von root auf.
// Nil-Zeiger, Nil-Interfaces und Felder ohne weight-Tag werden
// uebersprungen.
func Visit(root any, fn func(name string, t *ml.Tensor)) {
	visitValue(reflect.ValueOf(root), "", fn)
}

func visitValue(v reflect.Value, prefix string, fn func(string, *ml.Tensor)) {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return
		}
		if v.Type() == tensorType {
			if prefix != "" {
				fn(prefix, v.Interface().(*ml.Tensor))
			}
			return
		}
		visitValue(v.Elem(), prefix, fn)
	case reflect.Interface:
		if v.IsNil() {
			return
		}
		visitValue(v.Elem(), prefix, fn)
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			visitValue(v.Index(i), joinName(prefix, strconv.Itoa(i)), fn)
		}
	case reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			tag := t.Field(i).Tag.Get("weight")
			if tag == "" {
				continue
			}
			visitValue(v.Field(i), joinName(prefix, tag), fn)
		}
	}
}

func joinName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// NamedTensors sammelt alle getaggten Tensoren, sortiert nach Name.
func NamedTensors(root any) []NamedTensor {
	var out []NamedTensor
	Visit(root, func(name string, t *ml.Tensor) {
		out = append(out, NamedTensor{Name: name, Tensor: t})
	})
	slices.SortFunc(out, func(a, b NamedTensor) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// Parameters liefert die trainierbaren Tensoren in Besuchsreihenfolge.
// Laufende Statistiken (BatchNorm) tauchen hier nicht auf, wohl aber in
// NamedTensors.
func Parameters(root any) []*ml.Tensor {
	var out []*ml.Tensor
	Visit(root, func(_ string, t *ml.Tensor) {
		if t.RequiresGrad() {
			out = append(out, t)
		}
	})
	return out
}

// LoadState kopiert Gewichte nach Namen in den Modul-Baum. Jeder Tensor
// des Baums muss in weights vorhanden sein und dieselbe Shape haben;
// zusaetzliche Eintraege in weights werden ignoriert.
func LoadState(root any, weights map[string]*ml.Tensor) error {
	var err error
	Visit(root, func(name string, t *ml.Tensor) {
		if err != nil {
			return
		}
		src, ok := weights[name]
		if !ok {
			err = fmt.Errorf("missing tensor %q", name)
			return
		}
		if !slices.Equal(src.Shape(), t.Shape()) {
			err = fmt.Errorf("tensor %q: shape %v does not match %v", name, src.Shape(), t.Shape())
			return
		}
		copy(t.Data(), src.Data())
	})
	return err
}

// SetTraining schaltet alle TrainingAware-Module unterhalb von root um.
func SetTraining(root any, training bool) {
	applyTraining(reflect.ValueOf(root), training)
}

func applyTraining(v reflect.Value, training bool) {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return
		}
		if ta, ok := v.Interface().(TrainingAware); ok {
			ta.SetTraining(training)
		}
		applyTraining(v.Elem(), training)
	case reflect.Interface:
		if v.IsNil() {
			return
		}
		applyTraining(v.Elem(), training)
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			applyTraining(v.Index(i), training)
		}
	case reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			if !t.Field(i).IsExported() {
				continue
			}
			applyTraining(v.Field(i), training)
		}
	}
}
