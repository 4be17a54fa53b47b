// Modul: conv.go
// Beschreibung: Eindimensionale Faltung als Modul. Eingaben haben die
// Form [Batch, Kanaele, Laenge]; zirkulares Padding wickelt die Sequenz
// um den Rand statt mit Nullen aufzufuellen.
package nn

import (
	"math"
	"math/rand"

	"github.com/nehal119/merlion-testing/ml"
)

type Conv struct {
	Weight *ml.Tensor `weight:"weight"`
	Bias   *ml.Tensor `weight:"bias"`

	stride   int
	padding  int
	circular bool
}

// NewConv initialisiert die Gewichte gleichverteilt in
// [-1/sqrt(in*kernel), 1/sqrt(in*kernel)].
func NewConv(rng *rand.Rand, in, out, kernel, stride, padding int, circular, bias bool) *Conv {
	bound := float32(1 / math.Sqrt(float64(in*kernel)))
	c := &Conv{
		Weight:   ml.Uniform(rng, bound, out, in, kernel).MarkTrainable(),
		stride:   stride,
		padding:  padding,
		circular: circular,
	}
	if bias {
		c.Bias = ml.Uniform(rng, bound, out).MarkTrainable()
	}
	return c
}

func (c *Conv) Forward(x *ml.Tensor) *ml.Tensor {
	return ml.Conv1d(x, c.Weight, c.Bias, c.stride, c.padding, c.circular)
}
