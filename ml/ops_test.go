package ml

import (
	"math"
	"testing"
)

// backwardWith treibt Backward mit einem gewaehlten Upstream-Gradienten an,
// indem es sum(out * upstream) als Loss verwendet.
func backwardWith(out *Tensor, upstream []float32) {
	w := NewTensor(upstream, out.Shape()...)
	Sum(Mul(out, w)).Backward()
}

func TestAddBroadcastBias(t *testing.T) {
	a := NewTensor([]float32{1, 2, 3, 4}, 2, 2).MarkTrainable()
	bias := NewTensor([]float32{10, 20}, 2).MarkTrainable()

	out := Add(a, bias)
	near(t, "Add", out.Data(), []float32{11, 22, 13, 24}, 0)

	backwardWith(out, []float32{1, 2, 3, 4})
	near(t, "gradA", a.Grad(), []float32{1, 2, 3, 4}, 0)
	// Bias-Gradient summiert ueber die Batch-Achse
	near(t, "gradBias", bias.Grad(), []float32{1 + 3, 2 + 4}, 0)
}

func TestAddBroadcastLeadingOne(t *testing.T) {
	a := Zeros(2, 3, 2).MarkTrainable()
	pos := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 1, 3, 2)

	out := Add(a, pos)
	near(t, "Add pos", out.Data(), []float32{1, 2, 3, 4, 5, 6, 1, 2, 3, 4, 5, 6}, 0)
}

func TestBroadcastRejectsMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Add ohne panic bei inkompatiblen Shapes")
		}
	}()
	Add(Zeros(2, 3), Zeros(2))
}

func TestSubMul(t *testing.T) {
	a := NewTensor([]float32{5, 7}, 2).MarkTrainable()
	b := NewTensor([]float32{2, 3}, 2).MarkTrainable()

	near(t, "Sub", Sub(a, b).Data(), []float32{3, 4}, 0)

	out := Mul(a, b)
	near(t, "Mul", out.Data(), []float32{10, 21}, 0)

	backwardWith(out, []float32{1, 1})
	near(t, "gradA", a.Grad(), []float32{2, 3}, 0)
	near(t, "gradB", b.Grad(), []float32{5, 7}, 0)
}

func TestMatMulKnown(t *testing.T) {
	a := NewTensor([]float32{1, 2, 3, 4}, 2, 2).MarkTrainable()
	b := NewTensor([]float32{5, 6, 7, 8}, 2, 2).MarkTrainable()

	c := MatMul(a, b)
	near(t, "MatMul", c.Data(), []float32{19, 22, 43, 50}, 1e-5)

	backwardWith(c, []float32{1, 1, 1, 1})
	near(t, "gradA", a.Grad(), []float32{11, 15, 11, 15}, 1e-5)
	near(t, "gradB", b.Grad(), []float32{4, 4, 6, 6}, 1e-5)
}

func TestMatMulBatchedShared(t *testing.T) {
	// zwei Batches gegen eine geteilte Gewichtsmatrix
	a := NewTensor([]float32{
		1, 0,
		0, 1,

		2, 0,
		0, 2,
	}, 2, 2, 2)
	w := NewTensor([]float32{1, 2, 3, 4}, 2, 2).MarkTrainable()

	c := MatMul(a, w)
	near(t, "batched", c.Data(), []float32{1, 2, 3, 4, 2, 4, 6, 8}, 1e-5)

	backwardWith(c, []float32{1, 1, 1, 1, 1, 1, 1, 1})
	// gradW = sum_b a_b^T @ 1 = [[3,3],[3,3]]
	near(t, "gradW", w.Grad(), []float32{3, 3, 3, 3}, 1e-5)
}

func TestMatMulTMatchesExplicitTranspose(t *testing.T) {
	a := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	b := NewTensor([]float32{1, 0, 1, 2, 1, 0}, 2, 3) // [N=2, K=3]

	got := MatMulT(a, b)
	want := MatMul(a, Transpose(b))
	near(t, "MatMulT", got.Data(), want.Data(), 1e-5)
}

func TestSoftmaxForwardBackward(t *testing.T) {
	x := NewTensor([]float32{1, 2}, 1, 2).MarkTrainable()
	y := Softmax(x)
	near(t, "Softmax", y.Data(), []float32{0.26894142, 0.73105858}, 1e-5)

	var sum float32
	for _, v := range y.Data() {
		sum += v
	}
	if math.Abs(float64(sum-1)) > 1e-6 {
		t.Errorf("Softmax-Summe %v, erwartet 1", sum)
	}

	backwardWith(y, []float32{1, 0})
	// dx_i = y_i*(g_i - sum_j g_j*y_j)
	near(t, "gradX", x.Grad(), []float32{0.19661193, -0.19661193}, 1e-5)
}

func TestSoftmaxStability(t *testing.T) {
	// grosse Logits duerfen nicht zu NaN fuehren
	y := Softmax(NewTensor([]float32{1000, 1000}, 1, 2))
	near(t, "Softmax gross", y.Data(), []float32{0.5, 0.5}, 1e-6)
}

func TestPermuteTranspose(t *testing.T) {
	a := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3).MarkTrainable()

	tr := Transpose(a)
	if tr.Dim(0) != 3 || tr.Dim(1) != 2 {
		t.Fatalf("Transpose-Shape %v, erwartet [3 2]", tr.Shape())
	}
	near(t, "Transpose", tr.Data(), []float32{1, 4, 2, 5, 3, 6}, 0)

	// Backward mappt den Upstream-Gradienten exakt zurueck
	backwardWith(tr, []float32{10, 40, 20, 50, 30, 60})
	near(t, "gradA", a.Grad(), []float32{10, 20, 30, 40, 50, 60}, 0)
}

func TestPermute3D(t *testing.T) {
	a := Zeros(2, 3, 4)
	for i := range a.Data() {
		a.Data()[i] = float32(i)
	}

	p := Permute(a, 0, 2, 1) // [2,4,3]
	if p.Dim(1) != 4 || p.Dim(2) != 3 {
		t.Fatalf("Permute-Shape %v, erwartet [2 4 3]", p.Shape())
	}
	if p.At(1, 2, 1) != a.At(1, 1, 2) {
		t.Errorf("Permute At = %v, erwartet %v", p.At(1, 2, 1), a.At(1, 1, 2))
	}
}

func TestConcatNarrow(t *testing.T) {
	a := NewTensor([]float32{1, 2, 3, 4}, 1, 2, 2).MarkTrainable()
	b := NewTensor([]float32{5, 6}, 1, 1, 2).MarkTrainable()

	cat := Concat(1, a, b)
	near(t, "Concat", cat.Data(), []float32{1, 2, 3, 4, 5, 6}, 0)

	tail := Narrow(cat, 1, 2, 1)
	near(t, "Narrow", tail.Data(), []float32{5, 6}, 0)

	backwardWith(tail, []float32{7, 9})
	near(t, "gradA", a.Grad(), []float32{0, 0, 0, 0}, 0)
	near(t, "gradB", b.Grad(), []float32{7, 9}, 0)
}

func TestNarrowNegativeStyleSlice(t *testing.T) {
	// letzte zwei Zeitschritte entsprechen dec_out[:, -2:, :]
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 1, 3, 2)
	out := Narrow(x, 1, x.Dim(1)-2, 2)
	near(t, "Narrow tail", out.Data(), []float32{3, 4, 5, 6}, 0)
}

func TestReshapeSharesData(t *testing.T) {
	a := NewTensor([]float32{1, 2, 3, 4}, 2, 2)
	r := Reshape(a, 4)
	r.Data()[0] = 9
	if a.Data()[0] != 9 {
		t.Error("Reshape kopiert Daten, erwartet geteilten Speicher")
	}
}

func TestActivations(t *testing.T) {
	x := NewTensor([]float32{-1, 0, 1}, 3)

	near(t, "ReLU", ReLU(x).Data(), []float32{0, 0, 1}, 0)
	near(t, "ELU", ELU(x).Data(), []float32{float32(math.Exp(-1)) - 1, 0, 1}, 1e-6)
	near(t, "Sigmoid", Sigmoid(x).Data(), []float32{0.26894142, 0.5, 0.73105858}, 1e-5)
	near(t, "Tanh", Tanh(x).Data(), []float32{-0.76159416, 0, 0.76159416}, 1e-5)
	near(t, "GELU", GELU(x).Data(), []float32{-0.15880801, 0, 0.84119199}, 1e-4)
}

func TestGELUGradient(t *testing.T) {
	x := NewTensor([]float32{1}, 1).MarkTrainable()
	GELU(x).Backward()
	near(t, "GELU'", x.Grad(), []float32{1.0829640}, 1e-3)
}

func TestReLUGradient(t *testing.T) {
	x := NewTensor([]float32{-2, 3}, 2).MarkTrainable()
	backwardWith(ReLU(x), []float32{5, 5})
	near(t, "ReLU'", x.Grad(), []float32{0, 5}, 0)
}

func TestDropout(t *testing.T) {
	x := Ones(1, 1000)

	// p = 0 ist Identitaet
	if Dropout(x, 0, nil) != x {
		t.Error("Dropout(p=0) soll den Eingang unveraendert zurueckgeben")
	}

	out := Dropout(x, 0.5, NewRNG(3))
	var zeros, kept int
	for _, v := range out.Data() {
		switch v {
		case 0:
			zeros++
		case 2: // 1/(1-p)
			kept++
		default:
			t.Fatalf("Dropout-Wert %v, erwartet 0 oder 2", v)
		}
	}
	if zeros+kept != 1000 {
		t.Fatal("Dropout erzeugt unerwartete Werte")
	}
	if zeros < 400 || zeros > 600 {
		t.Errorf("Dropout nullt %d von 1000, erwartet etwa 500", zeros)
	}
}

func TestEmbeddingLookup(t *testing.T) {
	table := NewTensor([]float32{
		0, 1,
		10, 11,
		20, 21,
	}, 3, 2).MarkTrainable()
	idx := NewTensor([]float32{2, 0}, 1, 2)

	out := EmbeddingLookup(table, idx)
	if out.Dim(0) != 1 || out.Dim(1) != 2 || out.Dim(2) != 2 {
		t.Fatalf("Lookup-Shape %v, erwartet [1 2 2]", out.Shape())
	}
	near(t, "Lookup", out.Data(), []float32{20, 21, 0, 1}, 0)

	backwardWith(out, []float32{1, 2, 3, 4})
	near(t, "gradTable", table.Grad(), []float32{3, 4, 0, 0, 1, 2}, 0)
}

func TestMeanSumGradients(t *testing.T) {
	a := NewTensor([]float32{1, 2, 3, 4}, 4).MarkTrainable()
	Mean(a).Backward()
	near(t, "Mean grad", a.Grad(), []float32{0.25, 0.25, 0.25, 0.25}, 1e-6)
}
