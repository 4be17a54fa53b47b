// Modul: linear.go
// Beschreibung: Vollverbundene Schicht. Gewichte liegen im [Out, In]
// Layout und werden ueber MatMulT angewendet, damit importierte
// Checkpoints ohne Transposition uebernommen werden koennen.
package nn

import (
	"math"
	"math/rand"

	"github.com/nehal119/merlion-testing/ml"
)

type Linear struct {
	Weight *ml.Tensor `weight:"weight"`
	Bias   *ml.Tensor `weight:"bias"`
}

// NewLinear initialisiert die Gewichte gleichverteilt in
// [-1/sqrt(in), 1/sqrt(in)].
func NewLinear(rng *rand.Rand, in, out int, bias bool) *Linear {
	bound := float32(1 / math.Sqrt(float64(in)))
	l := &Linear{
		Weight: ml.Uniform(rng, bound, out, in).MarkTrainable(),
	}
	if bias {
		l.Bias = ml.Uniform(rng, bound, out).MarkTrainable()
	}
	return l
}

// Forward wendet x @ W^T + b auf die letzte Dimension an.
func (l *Linear) Forward(x *ml.Tensor) *ml.Tensor {
	out := ml.MatMulT(x, l.Weight)
	if l.Bias != nil {
		out = ml.Add(out, l.Bias)
	}
	return out
}
