// Modul: ops.go
// Beschreibung: Elementweise Operationen, Reduktionen und Shape-Operationen.
// Broadcasting folgt der Regel "b sendet in a": nach Entfernen fuehrender
// 1-Dimensionen muss b ein Suffix der Shape von a sein. Das deckt Bias-,
// Positions- und Masken-Addition ab, ohne einen allgemeinen Strided-Pfad
// zu benoetigen.
package ml

import "fmt"

// broadcastLen prueft die Broadcast-Regel und gibt die Elementzahl von b
// zurueck. out[i] wirkt dann mit b[i % broadcastLen].
func broadcastLen(a, b *Tensor) int {
	bs := b.shape
	for len(bs) > 0 && bs[0] == 1 {
		bs = bs[1:]
	}
	if len(bs) > len(a.shape) {
		panic(fmt.Sprintf("ml: cannot broadcast %v into %v", b.shape, a.shape))
	}
	offset := len(a.shape) - len(bs)
	for i, d := range bs {
		if a.shape[offset+i] != d {
			panic(fmt.Sprintf("ml: cannot broadcast %v into %v", b.shape, a.shape))
		}
	}
	return b.Len()
}

// Add addiert b elementweise auf a (mit Broadcast von b).
func Add(a, b *Tensor) *Tensor {
	bl := broadcastLen(a, b)
	out := Zeros(a.shape...)
	for i, v := range a.data {
		out.data[i] = v + b.data[i%bl]
	}

	record(out, func() {
		g := out.grad
		if a.requiresGrad {
			ag := a.mustGrad()
			for i, gv := range g {
				ag[i] += gv
			}
		}
		if b.requiresGrad {
			bg := b.mustGrad()
			for i, gv := range g {
				bg[i%bl] += gv
			}
		}
	}, a, b)
	return out
}

// Sub subtrahiert b elementweise von a (mit Broadcast von b).
func Sub(a, b *Tensor) *Tensor {
	bl := broadcastLen(a, b)
	out := Zeros(a.shape...)
	for i, v := range a.data {
		out.data[i] = v - b.data[i%bl]
	}

	record(out, func() {
		g := out.grad
		if a.requiresGrad {
			ag := a.mustGrad()
			for i, gv := range g {
				ag[i] += gv
			}
		}
		if b.requiresGrad {
			bg := b.mustGrad()
			for i, gv := range g {
				bg[i%bl] -= gv
			}
		}
	}, a, b)
	return out
}

// Mul multipliziert a und b elementweise (mit Broadcast von b).
func Mul(a, b *Tensor) *Tensor {
	bl := broadcastLen(a, b)
	out := Zeros(a.shape...)
	for i, v := range a.data {
		out.data[i] = v * b.data[i%bl]
	}

	record(out, func() {
		g := out.grad
		if a.requiresGrad {
			ag := a.mustGrad()
			for i, gv := range g {
				ag[i] += gv * b.data[i%bl]
			}
		}
		if b.requiresGrad {
			bg := b.mustGrad()
			for i, gv := range g {
				bg[i%bl] += gv * a.data[i]
			}
		}
	}, a, b)
	return out
}

// Scale multipliziert mit einem Skalar.
func Scale(a *Tensor, s float32) *Tensor {
	out := Zeros(a.shape...)
	for i, v := range a.data {
		out.data[i] = v * s
	}

	record(out, func() {
		if a.requiresGrad {
			ag := a.mustGrad()
			for i, gv := range out.grad {
				ag[i] += gv * s
			}
		}
	}, a)
	return out
}

// Sum reduziert alle Elemente zu einem Skalar.
func Sum(a *Tensor) *Tensor {
	var total float32
	for _, v := range a.data {
		total += v
	}
	out := NewTensor([]float32{total}, 1)

	record(out, func() {
		if a.requiresGrad {
			ag := a.mustGrad()
			g := out.grad[0]
			for i := range ag {
				ag[i] += g
			}
		}
	}, a)
	return out
}

// Mean reduziert alle Elemente zum Mittelwert.
func Mean(a *Tensor) *Tensor {
	var total float32
	for _, v := range a.data {
		total += v
	}
	n := float32(len(a.data))
	out := NewTensor([]float32{total / n}, 1)

	record(out, func() {
		if a.requiresGrad {
			ag := a.mustGrad()
			g := out.grad[0] / n
			for i := range ag {
				ag[i] += g
			}
		}
	}, a)
	return out
}

// Reshape deutet die Daten mit neuer Shape. Die Daten werden geteilt,
// nicht kopiert.
func Reshape(a *Tensor, shape ...int) *Tensor {
	if numel(shape) != len(a.data) {
		panic(fmt.Sprintf("ml: cannot reshape %v to %v", a.shape, shape))
	}
	out := &Tensor{data: a.data, shape: append([]int(nil), shape...)}

	record(out, func() {
		if a.requiresGrad {
			ag := a.mustGrad()
			for i, gv := range out.grad {
				ag[i] += gv
			}
		}
	}, a)
	return out
}

func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

// Permute ordnet die Dimensionen um und materialisiert das Ergebnis.
func Permute(a *Tensor, order ...int) *Tensor {
	rank := len(a.shape)
	if len(order) != rank {
		panic(fmt.Sprintf("ml: permute order %v for shape %v", order, a.shape))
	}
	seen := make([]bool, rank)
	outShape := make([]int, rank)
	for i, d := range order {
		if d < 0 || d >= rank || seen[d] {
			panic(fmt.Sprintf("ml: permute order %v is not a permutation", order))
		}
		seen[d] = true
		outShape[i] = a.shape[d]
	}

	inStrides := strides(a.shape)
	outStrideIn := make([]int, rank)
	for i, d := range order {
		outStrideIn[i] = inStrides[d]
	}

	// Quellindex je Zielelement einmal berechnen, Backward nutzt ihn wieder
	src := make([]int, len(a.data))
	out := Zeros(outShape...)
	idx := make([]int, rank)
	for flat := range out.data {
		inFlat := 0
		for d, ix := range idx {
			inFlat += ix * outStrideIn[d]
		}
		src[flat] = inFlat
		out.data[flat] = a.data[inFlat]

		for d := rank - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < outShape[d] {
				break
			}
			idx[d] = 0
		}
	}

	record(out, func() {
		if a.requiresGrad {
			ag := a.mustGrad()
			for flat, gv := range out.grad {
				ag[src[flat]] += gv
			}
		}
	}, a)
	return out
}

// Transpose vertauscht die letzten beiden Dimensionen.
func Transpose(a *Tensor) *Tensor {
	rank := len(a.shape)
	if rank < 2 {
		panic(fmt.Sprintf("ml: transpose on shape %v", a.shape))
	}
	order := make([]int, rank)
	for i := range order {
		order[i] = i
	}
	order[rank-2], order[rank-1] = order[rank-1], order[rank-2]
	return Permute(a, order...)
}

// Concat haengt Tensoren entlang dim aneinander. Alle anderen Dimensionen
// muessen uebereinstimmen.
func Concat(dim int, tensors ...*Tensor) *Tensor {
	if len(tensors) == 0 {
		panic("ml: concat of no tensors")
	}
	first := tensors[0]
	rank := len(first.shape)
	if dim < 0 || dim >= rank {
		panic(fmt.Sprintf("ml: concat dim %d for shape %v", dim, first.shape))
	}

	total := 0
	for _, t := range tensors {
		if len(t.shape) != rank {
			panic("ml: concat rank mismatch")
		}
		for d := 0; d < rank; d++ {
			if d != dim && t.shape[d] != first.shape[d] {
				panic(fmt.Sprintf("ml: concat shape mismatch %v vs %v", t.shape, first.shape))
			}
		}
		total += t.shape[dim]
	}

	outShape := first.Shape()
	outShape[dim] = total
	out := Zeros(outShape...)

	inner := 1
	for d := dim + 1; d < rank; d++ {
		inner *= first.shape[d]
	}
	outer := 1
	for d := 0; d < dim; d++ {
		outer *= first.shape[d]
	}
	outRow := total * inner

	for o := 0; o < outer; o++ {
		offset := o * outRow
		for _, t := range tensors {
			row := t.shape[dim] * inner
			copy(out.data[offset:offset+row], t.data[o*row:(o+1)*row])
			offset += row
		}
	}

	parents := append([]*Tensor(nil), tensors...)
	record(out, func() {
		for o := 0; o < outer; o++ {
			offset := o * outRow
			for _, t := range parents {
				row := t.shape[dim] * inner
				if t.requiresGrad {
					tg := t.mustGrad()
					for i := 0; i < row; i++ {
						tg[o*row+i] += out.grad[offset+i]
					}
				}
				offset += row
			}
		}
	}, parents...)
	return out
}

// Narrow schneidet [start, start+length) entlang dim heraus.
func Narrow(a *Tensor, dim, start, length int) *Tensor {
	rank := len(a.shape)
	if dim < 0 || dim >= rank {
		panic(fmt.Sprintf("ml: narrow dim %d for shape %v", dim, a.shape))
	}
	if start < 0 || length <= 0 || start+length > a.shape[dim] {
		panic(fmt.Sprintf("ml: narrow [%d:%d) of dim size %d", start, start+length, a.shape[dim]))
	}

	outShape := a.Shape()
	outShape[dim] = length
	out := Zeros(outShape...)

	inner := 1
	for d := dim + 1; d < rank; d++ {
		inner *= a.shape[d]
	}
	outer := 1
	for d := 0; d < dim; d++ {
		outer *= a.shape[d]
	}
	inRow := a.shape[dim] * inner
	outRow := length * inner

	for o := 0; o < outer; o++ {
		copy(out.data[o*outRow:(o+1)*outRow], a.data[o*inRow+start*inner:o*inRow+start*inner+outRow])
	}

	record(out, func() {
		if a.requiresGrad {
			ag := a.mustGrad()
			for o := 0; o < outer; o++ {
				base := o*inRow + start*inner
				for i := 0; i < outRow; i++ {
					ag[base+i] += out.grad[o*outRow+i]
				}
			}
		}
	}, a)
	return out
}
