// Modul: attention.go
// Beschreibung: Skaliertes Skalarprodukt ueber alle Positionen samt der
// Projektionsschicht, die Ein- und Ausgaben auf die Koepfe verteilt.
package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/nehal119/merlion-testing/ml"
)

// maskValue drueckt maskierte Scores vor der Softmax praktisch auf null.
const maskValue = -1e9

// CausalMask liefert eine additive [1, 1, l, l] Maske, die Positionen
// oberhalb der Diagonale ausblendet.
func CausalMask(l int) *ml.Tensor {
	mask := ml.Zeros(1, 1, l, l)
	data := mask.Data()
	for i := 0; i < l; i++ {
		for j := i + 1; j < l; j++ {
			data[i*l+j] = maskValue
		}
	}
	return mask
}

// FullAttention gewichtet jede Abfrageposition gegen alle
// Schluesselpositionen. Mit maskFlag wird kausal maskiert, sofern der
// Aufrufer keine eigene additive Maske mitgibt.
type FullAttention struct {
	Dropout *Dropout

	maskFlag        bool
	scale           float32
	outputAttention bool
}

// NewFullAttention nimmt scale 0 als 1/sqrt(Kopfbreite).
func NewFullAttention(maskFlag bool, scale, attentionDropout float32, outputAttention bool, rng *rand.Rand) *FullAttention {
	return &FullAttention{
		Dropout:         NewDropout(attentionDropout, rng),
		maskFlag:        maskFlag,
		scale:           scale,
		outputAttention: outputAttention,
	}
}

// Forward erwartet Abfragen, Schluessel und Werte der Form
// [Batch, Zeit, Koepfe, Kopfbreite]. Das zweite Ergebnis sind die
// Attention-Gewichte, oder nil wenn sie nicht angefordert wurden.
func (a *FullAttention) Forward(queries, keys, values, attnMask *ml.Tensor) (*ml.Tensor, *ml.Tensor) {
	l, e := queries.Dim(1), queries.Dim(3)

	scale := a.scale
	if scale == 0 {
		scale = float32(1 / math.Sqrt(float64(e)))
	}

	q := ml.Permute(queries, 0, 2, 1, 3)
	k := ml.Permute(keys, 0, 2, 1, 3)
	v := ml.Permute(values, 0, 2, 1, 3)

	scores := ml.MatMulT(q, k)
	if a.maskFlag {
		if attnMask == nil {
			attnMask = CausalMask(l)
		}
		scores = ml.Add(scores, attnMask)
	}

	attn := a.Dropout.Forward(ml.Softmax(ml.Scale(scores, scale)))
	out := ml.Permute(ml.MatMul(attn, v), 0, 2, 1, 3)

	if a.outputAttention {
		return out, attn
	}
	return out, nil
}

// AttentionLayer projiziert auf Koepfe, laesst die innere Attention
// laufen und fuehrt die Koepfe wieder zusammen.
type AttentionLayer struct {
	Inner            *FullAttention `weight:"inner_attention"`
	QueryProjection  *Linear        `weight:"query_projection"`
	KeyProjection    *Linear        `weight:"key_projection"`
	ValueProjection  *Linear        `weight:"value_projection"`
	OutProjection    *Linear        `weight:"out_projection"`

	nHeads int
}

func NewAttentionLayer(rng *rand.Rand, inner *FullAttention, dModel, nHeads int) *AttentionLayer {
	if dModel%nHeads != 0 {
		panic(fmt.Sprintf("nn: model width %d not divisible by %d heads", dModel, nHeads))
	}
	dKeys := dModel / nHeads

	return &AttentionLayer{
		Inner:           inner,
		QueryProjection: NewLinear(rng, dModel, dKeys*nHeads, true),
		KeyProjection:   NewLinear(rng, dModel, dKeys*nHeads, true),
		ValueProjection: NewLinear(rng, dModel, dKeys*nHeads, true),
		OutProjection:   NewLinear(rng, dKeys*nHeads, dModel, true),
		nHeads:          nHeads,
	}
}

func (al *AttentionLayer) Forward(queries, keys, values, attnMask *ml.Tensor) (*ml.Tensor, *ml.Tensor) {
	b, l := queries.Dim(0), queries.Dim(1)
	s := keys.Dim(1)
	h := al.nHeads

	q := al.QueryProjection.Forward(queries)
	k := al.KeyProjection.Forward(keys)
	v := al.ValueProjection.Forward(values)

	dk := q.Dim(2) / h
	out, attn := al.Inner.Forward(
		ml.Reshape(q, b, l, h, dk),
		ml.Reshape(k, b, s, h, dk),
		ml.Reshape(v, b, s, h, dk),
		attnMask,
	)

	return al.OutProjection.Forward(ml.Reshape(out, b, l, h*dk)), attn
}
