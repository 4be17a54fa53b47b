// Modul: act.go
// Beschreibung: Aktivierungen, Softmax, Dropout und Embedding-Lookup.
// Jede Funktion traegt ihre analytische Ableitung als Backward-Closure.
package ml

import (
	"fmt"
	"math"
	"math/rand"
)

// Softmax normalisiert die letzte Dimension zu einer Verteilung.
// Zeilenweise wird das Maximum abgezogen, damit exp nicht ueberlaeuft.
func Softmax(a *Tensor) *Tensor {
	last := a.shape[len(a.shape)-1]
	rows := len(a.data) / last
	out := Zeros(a.shape...)

	for r := 0; r < rows; r++ {
		row := a.data[r*last : (r+1)*last]
		o := out.data[r*last : (r+1)*last]

		max := row[0]
		for _, v := range row[1:] {
			if v > max {
				max = v
			}
		}
		var sum float32
		for i, v := range row {
			e := float32(math.Exp(float64(v - max)))
			o[i] = e
			sum += e
		}
		for i := range o {
			o[i] /= sum
		}
	}

	record(out, func() {
		if !a.requiresGrad {
			return
		}
		ag := a.mustGrad()
		for r := 0; r < rows; r++ {
			y := out.data[r*last : (r+1)*last]
			g := out.grad[r*last : (r+1)*last]

			var dot float32
			for i := range y {
				dot += y[i] * g[i]
			}
			for i := range y {
				ag[r*last+i] += y[i] * (g[i] - dot)
			}
		}
	}, a)
	return out
}

const (
	geluCoef  = 0.044715
	geluScale = 0.7978845608028654 // sqrt(2/pi)
)

// GELU wendet die tanh-Naeherung der GELU-Aktivierung an.
func GELU(a *Tensor) *Tensor {
	out := Zeros(a.shape...)
	for i, x := range a.data {
		inner := geluScale * (float64(x) + geluCoef*float64(x)*float64(x)*float64(x))
		out.data[i] = 0.5 * x * float32(1+math.Tanh(inner))
	}

	record(out, func() {
		if !a.requiresGrad {
			return
		}
		ag := a.mustGrad()
		for i, gv := range out.grad {
			x := float64(a.data[i])
			inner := geluScale * (x + geluCoef*x*x*x)
			t := math.Tanh(inner)
			sech2 := 1 - t*t
			dinner := geluScale * (1 + 3*geluCoef*x*x)
			dy := 0.5*(1+t) + 0.5*x*sech2*dinner
			ag[i] += gv * float32(dy)
		}
	}, a)
	return out
}

// ReLU setzt negative Werte auf null.
func ReLU(a *Tensor) *Tensor {
	out := Zeros(a.shape...)
	for i, x := range a.data {
		if x > 0 {
			out.data[i] = x
		}
	}

	record(out, func() {
		if !a.requiresGrad {
			return
		}
		ag := a.mustGrad()
		for i, gv := range out.grad {
			if a.data[i] > 0 {
				ag[i] += gv
			}
		}
	}, a)
	return out
}

// ELU mit alpha = 1: x fuer x > 0, sonst exp(x) - 1.
func ELU(a *Tensor) *Tensor {
	out := Zeros(a.shape...)
	for i, x := range a.data {
		if x > 0 {
			out.data[i] = x
		} else {
			out.data[i] = float32(math.Exp(float64(x))) - 1
		}
	}

	record(out, func() {
		if !a.requiresGrad {
			return
		}
		ag := a.mustGrad()
		for i, gv := range out.grad {
			if a.data[i] > 0 {
				ag[i] += gv
			} else {
				ag[i] += gv * (out.data[i] + 1)
			}
		}
	}, a)
	return out
}

// Sigmoid wendet die logistische Funktion an.
func Sigmoid(a *Tensor) *Tensor {
	out := Zeros(a.shape...)
	for i, x := range a.data {
		out.data[i] = float32(1 / (1 + math.Exp(float64(-x))))
	}

	record(out, func() {
		if !a.requiresGrad {
			return
		}
		ag := a.mustGrad()
		for i, gv := range out.grad {
			y := out.data[i]
			ag[i] += gv * y * (1 - y)
		}
	}, a)
	return out
}

// Tanh wendet den Tangens hyperbolicus an.
func Tanh(a *Tensor) *Tensor {
	out := Zeros(a.shape...)
	for i, x := range a.data {
		out.data[i] = float32(math.Tanh(float64(x)))
	}

	record(out, func() {
		if !a.requiresGrad {
			return
		}
		ag := a.mustGrad()
		for i, gv := range out.grad {
			y := out.data[i]
			ag[i] += gv * (1 - y*y)
		}
	}, a)
	return out
}

// Dropout nullt Elemente mit Wahrscheinlichkeit p und skaliert den Rest
// mit 1/(1-p) (inverted dropout). Fuer p <= 0 ist es die Identitaet;
// der Trainingsmodus wird eine Ebene hoeher entschieden.
func Dropout(a *Tensor, p float32, rng *rand.Rand) *Tensor {
	if p <= 0 {
		return a
	}
	if p >= 1 {
		panic(fmt.Sprintf("ml: dropout probability %v", p))
	}

	keep := 1 / (1 - p)
	factor := make([]float32, len(a.data))
	out := Zeros(a.shape...)
	for i, x := range a.data {
		if rng.Float32() >= p {
			factor[i] = keep
			out.data[i] = x * keep
		}
	}

	record(out, func() {
		if !a.requiresGrad {
			return
		}
		ag := a.mustGrad()
		for i, gv := range out.grad {
			ag[i] += gv * factor[i]
		}
	}, a)
	return out
}

// EmbeddingLookup schlaegt Zeilen von w ueber (gerundete) Indizes in idx
// nach. w hat Shape [V, D], idx eine beliebige Shape; das Ergebnis haengt
// D als letzte Dimension an. Gradienten fliessen nur in w.
func EmbeddingLookup(w, idx *Tensor) *Tensor {
	if len(w.shape) != 2 {
		panic(fmt.Sprintf("ml: embedding table shape %v", w.shape))
	}
	vocab, dim := w.shape[0], w.shape[1]

	outShape := append(idx.Shape(), dim)
	out := Zeros(outShape...)

	rows := make([]int, len(idx.data))
	for i, f := range idx.data {
		r := int(f + 0.5)
		if r < 0 || r >= vocab {
			panic(fmt.Sprintf("ml: embedding index %d outside table of %d rows", r, vocab))
		}
		rows[i] = r
		copy(out.data[i*dim:(i+1)*dim], w.data[r*dim:(r+1)*dim])
	}

	record(out, func() {
		if !w.requiresGrad {
			return
		}
		wg := w.mustGrad()
		for i, r := range rows {
			for d := 0; d < dim; d++ {
				wg[r*dim+d] += out.grad[i*dim+d]
			}
		}
	}, w)
	return out
}
