// Modul: conv.go
// Beschreibung: 1D-Faltung und Max-Pooling auf [B, C, L]-Tensoren.
// Kernel 1 ohne Stride/Padding wird als GEMM ueber blas32 ausgefuehrt,
// der allgemeine Fall (Kernel 3, zirkulaeres Padding) als direkte Schleife.
package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Conv1d faltet x [B, Cin, L] mit w [Cout, Cin, K] zu [B, Cout, Lout].
// Bei circular wird das Padding aus dem Signal heraus fortgesetzt, sonst
// mit Nullen aufgefuellt. bias darf nil sein.
func Conv1d(x, w, bias *Tensor, stride, padding int, circular bool) *Tensor {
	if len(x.shape) != 3 || len(w.shape) != 3 {
		panic(fmt.Sprintf("ml: conv1d on shapes %v, %v", x.shape, w.shape))
	}
	b, cin, l := x.shape[0], x.shape[1], x.shape[2]
	cout, wcin, k := w.shape[0], w.shape[1], w.shape[2]
	if cin != wcin {
		panic(fmt.Sprintf("ml: conv1d channels %d vs kernel %d", cin, wcin))
	}
	if bias != nil && bias.Len() != cout {
		panic(fmt.Sprintf("ml: conv1d bias %v for %d output channels", bias.shape, cout))
	}
	if stride < 1 || padding < 0 {
		panic(fmt.Sprintf("ml: conv1d stride %d padding %d", stride, padding))
	}

	lout := (l+2*padding-k)/stride + 1
	if lout < 1 {
		panic(fmt.Sprintf("ml: conv1d output length %d", lout))
	}

	if k == 1 && stride == 1 && padding == 0 {
		return conv1x1(x, w, bias, b, cin, cout, l)
	}

	out := Zeros(b, cout, lout)
	for bi := 0; bi < b; bi++ {
		for co := 0; co < cout; co++ {
			var base float32
			if bias != nil {
				base = bias.data[co]
			}
			for o := 0; o < lout; o++ {
				acc := base
				for ci := 0; ci < cin; ci++ {
					xoff := (bi*cin + ci) * l
					woff := (co*cin + ci) * k
					for ki := 0; ki < k; ki++ {
						j := o*stride + ki - padding
						if circular {
							j = ((j % l) + l) % l
						} else if j < 0 || j >= l {
							continue
						}
						acc += x.data[xoff+j] * w.data[woff+ki]
					}
				}
				out.data[(bi*cout+co)*lout+o] = acc
			}
		}
	}

	parents := []*Tensor{x, w}
	if bias != nil {
		parents = append(parents, bias)
	}
	record(out, func() {
		var xg, wg, bg []float32
		if x.requiresGrad {
			xg = x.mustGrad()
		}
		if w.requiresGrad {
			wg = w.mustGrad()
		}
		if bias != nil && bias.requiresGrad {
			bg = bias.mustGrad()
		}

		for bi := 0; bi < b; bi++ {
			for co := 0; co < cout; co++ {
				for o := 0; o < lout; o++ {
					g := out.grad[(bi*cout+co)*lout+o]
					if g == 0 {
						continue
					}
					if bg != nil {
						bg[co] += g
					}
					for ci := 0; ci < cin; ci++ {
						xoff := (bi*cin + ci) * l
						woff := (co*cin + ci) * k
						for ki := 0; ki < k; ki++ {
							j := o*stride + ki - padding
							if circular {
								j = ((j % l) + l) % l
							} else if j < 0 || j >= l {
								continue
							}
							if xg != nil {
								xg[xoff+j] += g * w.data[woff+ki]
							}
							if wg != nil {
								wg[woff+ki] += g * x.data[xoff+j]
							}
						}
					}
				}
			}
		}
	}, parents...)
	return out
}

// conv1x1 ist der GEMM-Pfad fuer punktweise Faltung: out_b = W @ x_b.
func conv1x1(x, w, bias *Tensor, b, cin, cout, l int) *Tensor {
	out := Zeros(b, cout, l)
	wm := general(w.data, cout, cin)

	for bi := 0; bi < b; bi++ {
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
			wm, general(x.data[bi*cin*l:(bi+1)*cin*l], cin, l),
			0, general(out.data[bi*cout*l:(bi+1)*cout*l], cout, l))
		if bias != nil {
			for co := 0; co < cout; co++ {
				base := (bi*cout + co) * l
				for o := 0; o < l; o++ {
					out.data[base+o] += bias.data[co]
				}
			}
		}
	}

	parents := []*Tensor{x, w}
	if bias != nil {
		parents = append(parents, bias)
	}
	record(out, func() {
		for bi := 0; bi < b; bi++ {
			gOut := general(out.grad[bi*cout*l:(bi+1)*cout*l], cout, l)
			if x.requiresGrad {
				// gradX += W^T @ gradOut
				blas32.Gemm(blas.Trans, blas.NoTrans, 1,
					wm, gOut,
					1, general(x.mustGrad()[bi*cin*l:(bi+1)*cin*l], cin, l))
			}
			if w.requiresGrad {
				// gradW += gradOut @ x_b^T
				blas32.Gemm(blas.NoTrans, blas.Trans, 1,
					gOut, general(x.data[bi*cin*l:(bi+1)*cin*l], cin, l),
					1, general(w.mustGrad(), cout, cin))
			}
			if bias != nil && bias.requiresGrad {
				bg := bias.mustGrad()
				for co := 0; co < cout; co++ {
					base := (bi*cout + co) * l
					for o := 0; o < l; o++ {
						bg[co] += out.grad[base+o]
					}
				}
			}
		}
	}, parents...)
	return out
}

// MaxPool1d nimmt das Fenstermaximum ueber die Laengenachse von [B, C, L].
// Gepolsterte Positionen zaehlen als -Inf.
func MaxPool1d(x *Tensor, kernel, stride, padding int) *Tensor {
	if len(x.shape) != 3 {
		panic(fmt.Sprintf("ml: maxpool1d on shape %v", x.shape))
	}
	b, c, l := x.shape[0], x.shape[1], x.shape[2]
	if kernel < 1 || stride < 1 || padding < 0 || padding >= kernel {
		panic(fmt.Sprintf("ml: maxpool1d kernel %d stride %d padding %d", kernel, stride, padding))
	}

	lout := (l+2*padding-kernel)/stride + 1
	if lout < 1 {
		panic(fmt.Sprintf("ml: maxpool1d output length %d", lout))
	}

	out := Zeros(b, c, lout)
	src := make([]int, len(out.data))

	for bi := 0; bi < b; bi++ {
		for ci := 0; ci < c; ci++ {
			xoff := (bi*c + ci) * l
			ooff := (bi*c + ci) * lout
			for o := 0; o < lout; o++ {
				best := float32(math.Inf(-1))
				bestIdx := -1
				for ki := 0; ki < kernel; ki++ {
					j := o*stride + ki - padding
					if j < 0 || j >= l {
						continue
					}
					if v := x.data[xoff+j]; v > best {
						best = v
						bestIdx = xoff + j
					}
				}
				out.data[ooff+o] = best
				src[ooff+o] = bestIdx
			}
		}
	}

	record(out, func() {
		if !x.requiresGrad {
			return
		}
		xg := x.mustGrad()
		for i, gv := range out.grad {
			if src[i] >= 0 {
				xg[src[i]] += gv
			}
		}
	}, x)
	return out
}
