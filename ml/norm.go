// Modul: norm.go
// Beschreibung: LayerNorm ueber die letzte Dimension und BatchNorm ueber
// die Kanalachse von [B, C, L]-Tensoren, jeweils mit analytischem Backward.
package ml

import (
	"fmt"
	"math"
)

// LayerNorm normalisiert die letzte Dimension und skaliert mit gamma/beta.
func LayerNorm(x, gamma, beta *Tensor, eps float32) *Tensor {
	dim := x.shape[len(x.shape)-1]
	if gamma.Len() != dim || beta.Len() != dim {
		panic(fmt.Sprintf("ml: layernorm dim %d with gamma %v beta %v", dim, gamma.shape, beta.shape))
	}
	rows := len(x.data) / dim

	out := Zeros(x.shape...)
	xhat := make([]float32, len(x.data))
	invStd := make([]float32, rows)

	for r := 0; r < rows; r++ {
		row := x.data[r*dim : (r+1)*dim]

		var mean float32
		for _, v := range row {
			mean += v
		}
		mean /= float32(dim)

		var variance float32
		for _, v := range row {
			variance += (v - mean) * (v - mean)
		}
		variance /= float32(dim)

		is := float32(1 / math.Sqrt(float64(variance)+float64(eps)))
		invStd[r] = is
		for i, v := range row {
			h := (v - mean) * is
			xhat[r*dim+i] = h
			out.data[r*dim+i] = gamma.data[i]*h + beta.data[i]
		}
	}

	record(out, func() {
		var xg []float32
		if x.requiresGrad {
			xg = x.mustGrad()
		}
		var gg, bg []float32
		if gamma.requiresGrad {
			gg = gamma.mustGrad()
		}
		if beta.requiresGrad {
			bg = beta.mustGrad()
		}

		dxhat := make([]float32, dim)
		for r := 0; r < rows; r++ {
			g := out.grad[r*dim : (r+1)*dim]
			h := xhat[r*dim : (r+1)*dim]

			var sum1, sum2 float32
			for i := 0; i < dim; i++ {
				dxhat[i] = g[i] * gamma.data[i]
				sum1 += dxhat[i]
				sum2 += dxhat[i] * h[i]
				if gg != nil {
					gg[i] += g[i] * h[i]
				}
				if bg != nil {
					bg[i] += g[i]
				}
			}
			if xg != nil {
				n := float32(dim)
				for i := 0; i < dim; i++ {
					xg[r*dim+i] += (n*dxhat[i] - sum1 - h[i]*sum2) * invStd[r] / n
				}
			}
		}
	}, x, gamma, beta)
	return out
}

// BatchNorm normalisiert jeden Kanal von x [B, C, L] ueber Batch und Laenge.
// Im Training werden Batch-Statistiken verwendet und die Running-Werte
// aktualisiert, sonst die Running-Statistiken. runningMean/runningVar sind
// Zustand, keine Parameter.
func BatchNorm(x, gamma, beta, runningMean, runningVar *Tensor, momentum, eps float32, training bool) *Tensor {
	if len(x.shape) != 3 {
		panic(fmt.Sprintf("ml: batchnorm on shape %v", x.shape))
	}
	b, c, l := x.shape[0], x.shape[1], x.shape[2]
	if gamma.Len() != c || beta.Len() != c || runningMean.Len() != c || runningVar.Len() != c {
		panic(fmt.Sprintf("ml: batchnorm channel mismatch for shape %v", x.shape))
	}

	n := float32(b * l)
	out := Zeros(x.shape...)

	mean := make([]float32, c)
	variance := make([]float32, c)
	if training {
		for ci := 0; ci < c; ci++ {
			var m float32
			for bi := 0; bi < b; bi++ {
				base := (bi*c + ci) * l
				for li := 0; li < l; li++ {
					m += x.data[base+li]
				}
			}
			m /= n
			mean[ci] = m

			var v float32
			for bi := 0; bi < b; bi++ {
				base := (bi*c + ci) * l
				for li := 0; li < l; li++ {
					d := x.data[base+li] - m
					v += d * d
				}
			}
			variance[ci] = v / n

			// Running-Statistiken mit unverzerrter Varianz fortschreiben
			unbiased := variance[ci]
			if n > 1 {
				unbiased = variance[ci] * n / (n - 1)
			}
			runningMean.data[ci] = (1-momentum)*runningMean.data[ci] + momentum*mean[ci]
			runningVar.data[ci] = (1-momentum)*runningVar.data[ci] + momentum*unbiased
		}
	} else {
		copy(mean, runningMean.data)
		copy(variance, runningVar.data)
	}

	invStd := make([]float32, c)
	xhat := make([]float32, len(x.data))
	for ci := 0; ci < c; ci++ {
		invStd[ci] = float32(1 / math.Sqrt(float64(variance[ci])+float64(eps)))
	}
	for bi := 0; bi < b; bi++ {
		for ci := 0; ci < c; ci++ {
			base := (bi*c + ci) * l
			for li := 0; li < l; li++ {
				h := (x.data[base+li] - mean[ci]) * invStd[ci]
				xhat[base+li] = h
				out.data[base+li] = gamma.data[ci]*h + beta.data[ci]
			}
		}
	}

	record(out, func() {
		var xg []float32
		if x.requiresGrad {
			xg = x.mustGrad()
		}
		var gg, bg []float32
		if gamma.requiresGrad {
			gg = gamma.mustGrad()
		}
		if beta.requiresGrad {
			bg = beta.mustGrad()
		}

		for ci := 0; ci < c; ci++ {
			var sumG, sumGH float32
			for bi := 0; bi < b; bi++ {
				base := (bi*c + ci) * l
				for li := 0; li < l; li++ {
					g := out.grad[base+li]
					sumG += g
					sumGH += g * xhat[base+li]
				}
			}
			if gg != nil {
				gg[ci] += sumGH
			}
			if bg != nil {
				bg[ci] += sumG
			}
			if xg == nil {
				continue
			}

			scale := gamma.data[ci] * invStd[ci]
			for bi := 0; bi < b; bi++ {
				base := (bi*c + ci) * l
				for li := 0; li < l; li++ {
					g := out.grad[base+li]
					if training {
						xg[base+li] += scale * (g - sumG/n - xhat[base+li]*sumGH/n)
					} else {
						xg[base+li] += scale * g
					}
				}
			}
		}
	}, x, gamma, beta)
	return out
}
