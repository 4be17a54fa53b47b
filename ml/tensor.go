// Modul: tensor.go
// Beschreibung: Float32-Tensor mit Reverse-Mode-Autodiff.
// Jede Operation zeichnet eine Backward-Closure und ihre Eltern auf;
// Backward sortiert den Graphen topologisch und akkumuliert Gradienten.
// Shape-Verletzungen sind Programmierfehler und fuehren zu panic,
// Lifecycle-Fehler werden eine Ebene hoeher als error gemeldet.
package ml

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Tensor ist ein dicht gespeicherter row-major Float32-Tensor.
type Tensor struct {
	data  []float32
	shape []int

	grad         []float32
	requiresGrad bool
	backward     func()
	parents      []*Tensor
}

// gradEnabled steuert, ob Operationen den Autodiff-Graphen aufzeichnen.
// Der Schalter ist bewusst paketweit: ein Forecaster serialisiert Training
// und Inferenz ueber seinen eigenen Mutex.
var gradEnabled = true

// SetGradEnabled schaltet die Graph-Aufzeichnung um und gibt den
// vorherigen Zustand zurueck.
func SetGradEnabled(enabled bool) bool {
	prev := gradEnabled
	gradEnabled = enabled
	return prev
}

// GradEnabled reports whether operations currently record the graph.
func GradEnabled() bool { return gradEnabled }

// NewRNG liefert eine deterministische Zufallsquelle. Seed 0 bedeutet
// zufaellige Initialisierung.
func NewRNG(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		if d <= 0 {
			panic(fmt.Sprintf("ml: invalid dimension %d in shape %v", d, shape))
		}
		n *= d
	}
	return n
}

// NewTensor erstellt einen Tensor ueber vorhandenen Daten. Die Daten werden
// nicht kopiert.
func NewTensor(data []float32, shape ...int) *Tensor {
	if len(data) != numel(shape) {
		panic(fmt.Sprintf("ml: %d values for shape %v", len(data), shape))
	}
	return &Tensor{data: data, shape: append([]int(nil), shape...)}
}

// Zeros erstellt einen Null-Tensor.
func Zeros(shape ...int) *Tensor {
	return &Tensor{data: make([]float32, numel(shape)), shape: append([]int(nil), shape...)}
}

// Ones erstellt einen Eins-Tensor.
func Ones(shape ...int) *Tensor {
	return Full(1, shape...)
}

// Full erstellt einen konstant gefuellten Tensor.
func Full(value float32, shape ...int) *Tensor {
	t := Zeros(shape...)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// Randn fuellt einen Tensor mit N(0, std) Werten.
func Randn(rng *rand.Rand, std float32, shape ...int) *Tensor {
	t := Zeros(shape...)
	for i := range t.data {
		t.data[i] = float32(rng.NormFloat64()) * std
	}
	return t
}

// Uniform fuellt einen Tensor gleichverteilt aus [-bound, bound].
func Uniform(rng *rand.Rand, bound float32, shape ...int) *Tensor {
	t := Zeros(shape...)
	for i := range t.data {
		t.data[i] = (rng.Float32()*2 - 1) * bound
	}
	return t
}

// Shape returns a copy of the tensor shape.
func (t *Tensor) Shape() []int { return append([]int(nil), t.shape...) }

// Rank gibt die Anzahl der Dimensionen zurueck.
func (t *Tensor) Rank() int { return len(t.shape) }

// Dim gibt die Groesse der Dimension i zurueck, negative i zaehlen von hinten.
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.shape)
	}
	return t.shape[i]
}

// Len gibt die Anzahl der Elemente zurueck.
func (t *Tensor) Len() int { return len(t.data) }

// Data exposes the raw backing slice.
func (t *Tensor) Data() []float32 { return t.data }

// Grad exposes the accumulated gradient, nil before the first backward pass.
func (t *Tensor) Grad() []float32 { return t.grad }

// RequiresGrad reports whether gradients are tracked for this tensor.
func (t *Tensor) RequiresGrad() bool { return t.requiresGrad }

// MarkTrainable markiert den Tensor als Parameter und gibt ihn zurueck.
func (t *Tensor) MarkTrainable() *Tensor {
	t.requiresGrad = true
	return t
}

// Item gibt den Wert eines Skalartensors zurueck.
func (t *Tensor) Item() float32 {
	if len(t.data) != 1 {
		panic(fmt.Sprintf("ml: Item on tensor of shape %v", t.shape))
	}
	return t.data[0]
}

// At liest ein Element ueber Mehrfachindizes.
func (t *Tensor) At(idx ...int) float32 {
	return t.data[t.flatIndex(idx)]
}

// SetAt schreibt ein Element ueber Mehrfachindizes.
func (t *Tensor) SetAt(v float32, idx ...int) {
	t.data[t.flatIndex(idx)] = v
}

func (t *Tensor) flatIndex(idx []int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("ml: %d indices for shape %v", len(idx), t.shape))
	}
	flat := 0
	for i, ix := range idx {
		if ix < 0 || ix >= t.shape[i] {
			panic(fmt.Sprintf("ml: index %v out of range for shape %v", idx, t.shape))
		}
		flat = flat*t.shape[i] + ix
	}
	return flat
}

// Clone kopiert Daten und Shape, nicht aber die Graph-Anbindung.
func (t *Tensor) Clone() *Tensor {
	out := Zeros(t.shape...)
	copy(out.data, t.data)
	return out
}

// ZeroGrad setzt den Gradienten auf null.
func (t *Tensor) ZeroGrad() {
	for i := range t.grad {
		t.grad[i] = 0
	}
}

func (t *Tensor) mustGrad() []float32 {
	if t.grad == nil {
		t.grad = make([]float32, len(t.data))
	}
	return t.grad
}

// sameShape prueft exakte Gleichheit zweier Shapes.
func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// record verbindet out mit seinen Eltern, wenn der Graph aktiv ist.
// backward darf von einer Closure ueber out und die Eltern Gebrauch machen.
func record(out *Tensor, backward func(), parents ...*Tensor) {
	if !gradEnabled {
		return
	}
	track := false
	for _, p := range parents {
		if p.requiresGrad {
			track = true
			break
		}
	}
	if !track {
		return
	}
	out.requiresGrad = true
	out.parents = parents
	out.backward = backward
}

// Backward berechnet Gradienten aller erreichbaren Tensoren bezueglich t.
// t muss ein Skalar sein (ein Loss).
func (t *Tensor) Backward() {
	if len(t.data) != 1 {
		panic(fmt.Sprintf("ml: Backward on non-scalar tensor of shape %v", t.shape))
	}

	var topo []*Tensor
	visited := make(map[*Tensor]bool)
	var build func(*Tensor)
	build = func(n *Tensor) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, p := range n.parents {
			build(p)
		}
		topo = append(topo, n)
	}
	build(t)

	t.mustGrad()[0] = 1
	for i := len(topo) - 1; i >= 0; i-- {
		if topo[i].backward != nil {
			topo[i].backward()
		}
	}
}

// String gibt Shape und die ersten Werte fuer Debug-Logs aus.
func (t *Tensor) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tensor%v[", t.shape)
	for i, v := range t.data {
		if i == 8 {
			sb.WriteString(" ...")
			break
		}
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%.4g", v)
	}
	sb.WriteByte(']')
	return sb.String()
}
