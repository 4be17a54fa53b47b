// Modul: matmul.go
// Beschreibung: Batched Matrixmultiplikation. Die innere GEMM laeuft ueber
// gonum/blas32, Batching flacht fuehrende Dimensionen ab. Ein Operand mit
// Rang 2 wird ueber alle Batches geteilt (gemeinsame Gewichtsmatrix).
package ml

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

func general(data []float32, rows, cols int) blas32.General {
	return blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}

// matmulDims prueft die Batch-Regeln und liefert (batch, bShared).
func matmulDims(a, b *Tensor) (int, bool) {
	if len(a.shape) < 2 || len(b.shape) < 2 {
		panic(fmt.Sprintf("ml: matmul on shapes %v x %v", a.shape, b.shape))
	}

	batch := 1
	for _, d := range a.shape[:len(a.shape)-2] {
		batch *= d
	}

	if len(b.shape) == 2 {
		return batch, true
	}
	if len(b.shape) != len(a.shape) {
		panic(fmt.Sprintf("ml: matmul rank mismatch %v x %v", a.shape, b.shape))
	}
	for i := range a.shape[:len(a.shape)-2] {
		if a.shape[i] != b.shape[i] {
			panic(fmt.Sprintf("ml: matmul batch mismatch %v x %v", a.shape, b.shape))
		}
	}
	return batch, false
}

// MatMul berechnet C = A @ B. A hat Shape [..., M, K], B [K, N] oder
// [..., K, N] mit identischen Batch-Dimensionen.
func MatMul(a, b *Tensor) *Tensor {
	batch, shared := matmulDims(a, b)
	m, k := a.shape[len(a.shape)-2], a.shape[len(a.shape)-1]
	bk, n := b.shape[len(b.shape)-2], b.shape[len(b.shape)-1]
	if k != bk {
		panic(fmt.Sprintf("ml: matmul inner dims %v x %v", a.shape, b.shape))
	}

	outShape := append(a.shape[:len(a.shape)-2:len(a.shape)-2], m, n)
	out := Zeros(outShape...)

	for i := 0; i < batch; i++ {
		bi := i
		if shared {
			bi = 0
		}
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
			general(a.data[i*m*k:(i+1)*m*k], m, k),
			general(b.data[bi*k*n:(bi+1)*k*n], k, n),
			0, general(out.data[i*m*n:(i+1)*m*n], m, n))
	}

	record(out, func() {
		for i := 0; i < batch; i++ {
			bi := i
			if shared {
				bi = 0
			}
			gc := general(out.grad[i*m*n:(i+1)*m*n], m, n)
			if a.requiresGrad {
				// gradA += gradC @ B^T
				blas32.Gemm(blas.NoTrans, blas.Trans, 1,
					gc, general(b.data[bi*k*n:(bi+1)*k*n], k, n),
					1, general(a.mustGrad()[i*m*k:(i+1)*m*k], m, k))
			}
			if b.requiresGrad {
				// gradB += A^T @ gradC
				blas32.Gemm(blas.Trans, blas.NoTrans, 1,
					general(a.data[i*m*k:(i+1)*m*k], m, k), gc,
					1, general(b.mustGrad()[bi*k*n:(bi+1)*k*n], k, n))
			}
		}
	}, a, b)
	return out
}

// MatMulT berechnet C = A @ B^T, ohne B zu materialisieren. A hat Shape
// [..., M, K], B [N, K] oder [..., N, K]. Lineare Layer nutzen das fuer
// Gewichte im [Out, In]-Layout.
func MatMulT(a, b *Tensor) *Tensor {
	batch, shared := matmulDims(a, b)
	m, k := a.shape[len(a.shape)-2], a.shape[len(a.shape)-1]
	n, bk := b.shape[len(b.shape)-2], b.shape[len(b.shape)-1]
	if k != bk {
		panic(fmt.Sprintf("ml: matmulT inner dims %v x %v", a.shape, b.shape))
	}

	outShape := append(a.shape[:len(a.shape)-2:len(a.shape)-2], m, n)
	out := Zeros(outShape...)

	for i := 0; i < batch; i++ {
		bi := i
		if shared {
			bi = 0
		}
		blas32.Gemm(blas.NoTrans, blas.Trans, 1,
			general(a.data[i*m*k:(i+1)*m*k], m, k),
			general(b.data[bi*n*k:(bi+1)*n*k], n, k),
			0, general(out.data[i*m*n:(i+1)*m*n], m, n))
	}

	record(out, func() {
		for i := 0; i < batch; i++ {
			bi := i
			if shared {
				bi = 0
			}
			gc := general(out.grad[i*m*n:(i+1)*m*n], m, n)
			if a.requiresGrad {
				// gradA += gradC @ B
				blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
					gc, general(b.data[bi*n*k:(bi+1)*n*k], n, k),
					1, general(a.mustGrad()[i*m*k:(i+1)*m*k], m, k))
			}
			if b.requiresGrad {
				// gradB += gradC^T @ A
				blas32.Gemm(blas.Trans, blas.NoTrans, 1,
					gc, general(a.data[i*m*k:(i+1)*m*k], m, k),
					1, general(b.mustGrad()[bi*n*k:(bi+1)*n*k], n, k))
			}
		}
	}, a, b)
	return out
}
