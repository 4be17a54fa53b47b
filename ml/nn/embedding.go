// Modul: embedding.go
// Beschreibung: Einbettungen fuer Werte, Positionen und Zeitstempel.
// Die Summe aus Wert-, Zeit- und Positionsanteil bildet die Eingabe von
// Encoder und Decoder.
package nn

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/nehal119/merlion-testing/ml"
)

// Embedder bildet Indizes oder Zeitmerkmale auf Vektoren der Modellbreite ab.
type Embedder interface {
	Forward(x *ml.Tensor) *ml.Tensor
}

// sinusoidTable fuellt gerade Spalten mit sin und ungerade mit cos, mit
// geometrisch fallenden Frequenzen ueber die Spaltenpaare.
func sinusoidTable(rows, d int) []float32 {
	data := make([]float32, rows*d)
	for pos := 0; pos < rows; pos++ {
		for i := 0; i < d; i += 2 {
			angle := float64(pos) * math.Exp(float64(i)*(-math.Log(10000)/float64(d)))
			data[pos*d+i] = float32(math.Sin(angle))
			if i+1 < d {
				data[pos*d+i+1] = float32(math.Cos(angle))
			}
		}
	}
	return data
}

// TokenEmbedding hebt die Eingangskanaele mit einer zirkularen Faltung
// (Kernel 3, ohne Bias) auf die Modellbreite.
type TokenEmbedding struct {
	TokenConv *Conv `weight:"tokenConv"`
}

func NewTokenEmbedding(rng *rand.Rand, cIn, dModel int) *TokenEmbedding {
	std := float32(math.Sqrt(2 / float64(cIn*3)))
	return &TokenEmbedding{
		TokenConv: &Conv{
			Weight:   ml.Randn(rng, std, dModel, cIn, 3).MarkTrainable(),
			stride:   1,
			padding:  1,
			circular: true,
		},
	}
}

// Forward erwartet [Batch, Zeit, Kanaele] und liefert [Batch, Zeit, Modell].
func (t *TokenEmbedding) Forward(x *ml.Tensor) *ml.Tensor {
	y := t.TokenConv.Forward(ml.Permute(x, 0, 2, 1))
	return ml.Permute(y, 0, 2, 1)
}

const maxPositions = 5000

// PositionalEmbedding haelt eine feste Sinustabelle fuer bis zu 5000
// Positionen vor. Die Tabelle ist nicht trainierbar.
type PositionalEmbedding struct {
	PE *ml.Tensor `weight:"pe"`
}

func NewPositionalEmbedding(dModel int) *PositionalEmbedding {
	return &PositionalEmbedding{
		PE: ml.NewTensor(sinusoidTable(maxPositions, dModel), 1, maxPositions, dModel),
	}
}

func (p *PositionalEmbedding) Forward(seqLen int) *ml.Tensor {
	if seqLen > p.PE.Dim(1) {
		panic(fmt.Sprintf("nn: sequence length %d exceeds positional table of %d", seqLen, p.PE.Dim(1)))
	}
	return ml.Narrow(p.PE, 1, 0, seqLen)
}

// Embedding ist eine trainierbare Nachschlagetabelle, initialisiert mit
// Standardnormalverteilung.
type Embedding struct {
	Weight *ml.Tensor `weight:"weight"`
}

func NewEmbedding(rng *rand.Rand, rows, dModel int) *Embedding {
	return &Embedding{Weight: ml.Randn(rng, 1, rows, dModel).MarkTrainable()}
}

func (e *Embedding) Forward(idx *ml.Tensor) *ml.Tensor {
	return ml.EmbeddingLookup(e.Weight, idx)
}

// FixedEmbedding ist eine eingefrorene Nachschlagetabelle mit
// Sinuswerten statt trainierter Gewichte.
type FixedEmbedding struct {
	Emb *Embedding `weight:"emb"`
}

func NewFixedEmbedding(rows, dModel int) *FixedEmbedding {
	return &FixedEmbedding{
		Emb: &Embedding{Weight: ml.NewTensor(sinusoidTable(rows, dModel), rows, dModel)},
	}
}

func (f *FixedEmbedding) Forward(idx *ml.Tensor) *ml.Tensor {
	return f.Emb.Forward(idx)
}

// Kalenderkomponenten werden als Indizes eingebettet. Tag und Monat sind
// eins-basiert, daher die um eins groesseren Tabellen.
const (
	minuteSize  = 4
	hourSize    = 24
	weekdaySize = 7
	daySize     = 32
	monthSize   = 13
)

// TemporalEmbedding summiert die Einbettungen der Kalenderkomponenten
// eines Zeitstempels. Die Markierungen liegen spaltenweise als
// [Monat, Tag, Wochentag, Stunde, Minute] vor; die Minutenspalte wird
// nur bei Minutenfrequenz eingebettet.
type TemporalEmbedding struct {
	MinuteEmbed  Embedder `weight:"minute_embed"`
	HourEmbed    Embedder `weight:"hour_embed"`
	WeekdayEmbed Embedder `weight:"weekday_embed"`
	DayEmbed     Embedder `weight:"day_embed"`
	MonthEmbed   Embedder `weight:"month_embed"`
}

func NewTemporalEmbedding(rng *rand.Rand, dModel int, embedType, freq string) (*TemporalEmbedding, error) {
	var embed func(rows int) Embedder
	switch embedType {
	case "fixed":
		embed = func(rows int) Embedder { return NewFixedEmbedding(rows, dModel) }
	case "learned":
		embed = func(rows int) Embedder { return NewEmbedding(rng, rows, dModel) }
	default:
		return nil, fmt.Errorf("unknown embedding type %q", embedType)
	}

	te := &TemporalEmbedding{
		HourEmbed:    embed(hourSize),
		WeekdayEmbed: embed(weekdaySize),
		DayEmbed:     embed(daySize),
		MonthEmbed:   embed(monthSize),
	}
	if strings.ToLower(freq) == "t" {
		te.MinuteEmbed = embed(minuteSize)
	}
	return te, nil
}

func (t *TemporalEmbedding) Forward(marks *ml.Tensor) *ml.Tensor {
	out := ml.Add(t.HourEmbed.Forward(markColumn(marks, 3)), t.WeekdayEmbed.Forward(markColumn(marks, 2)))
	out = ml.Add(out, t.DayEmbed.Forward(markColumn(marks, 1)))
	out = ml.Add(out, t.MonthEmbed.Forward(markColumn(marks, 0)))
	if t.MinuteEmbed != nil {
		out = ml.Add(out, t.MinuteEmbed.Forward(markColumn(marks, 4)))
	}
	return out
}

func markColumn(marks *ml.Tensor, col int) *ml.Tensor {
	return ml.Reshape(ml.Narrow(marks, 2, col, 1), marks.Dim(0), marks.Dim(1))
}

// timeFeatureDims nennt je Frequenz die Zahl der reellwertigen
// Zeitmerkmale eines Zeitstempels.
var timeFeatureDims = map[string]int{
	"h": 4, "t": 5, "s": 6, "m": 1, "a": 1, "w": 2, "d": 3, "b": 3,
}

// TimeFeatureDim liefert die Merkmalsbreite fuer eine Frequenz.
func TimeFeatureDim(freq string) (int, error) {
	d, ok := timeFeatureDims[strings.ToLower(freq)]
	if !ok {
		return 0, fmt.Errorf("unknown frequency %q", freq)
	}
	return d, nil
}

// TimeFeatureEmbedding projiziert reellwertige Zeitmerkmale linear und
// ohne Bias auf die Modellbreite.
type TimeFeatureEmbedding struct {
	Embed *Linear `weight:"embed"`
}

func NewTimeFeatureEmbedding(rng *rand.Rand, dModel int, freq string) (*TimeFeatureEmbedding, error) {
	d, err := TimeFeatureDim(freq)
	if err != nil {
		return nil, err
	}
	return &TimeFeatureEmbedding{Embed: NewLinear(rng, d, dModel, false)}, nil
}

func (t *TimeFeatureEmbedding) Forward(marks *ml.Tensor) *ml.Tensor {
	return t.Embed.Forward(marks)
}

// DataEmbedding buendelt Wert-, Zeit- und Positionsanteil und wendet
// Dropout auf die Summe an.
type DataEmbedding struct {
	ValueEmbedding    *TokenEmbedding      `weight:"value_embedding"`
	PositionEmbedding *PositionalEmbedding `weight:"position_embedding"`
	TemporalEmbedding Embedder             `weight:"temporal_embedding"`
	Dropout           *Dropout
}

func NewDataEmbedding(rng *rand.Rand, cIn, dModel int, embedType, freq string, dropout float32) (*DataEmbedding, error) {
	var temporal Embedder
	var err error
	if embedType == "timeF" {
		temporal, err = NewTimeFeatureEmbedding(rng, dModel, freq)
	} else {
		temporal, err = NewTemporalEmbedding(rng, dModel, embedType, freq)
	}
	if err != nil {
		return nil, err
	}

	return &DataEmbedding{
		ValueEmbedding:    NewTokenEmbedding(rng, cIn, dModel),
		PositionEmbedding: NewPositionalEmbedding(dModel),
		TemporalEmbedding: temporal,
		Dropout:           NewDropout(dropout, rng),
	}, nil
}

func (d *DataEmbedding) Forward(x, marks *ml.Tensor) *ml.Tensor {
	out := ml.Add(d.ValueEmbedding.Forward(x), d.TemporalEmbedding.Forward(marks))
	out = ml.Add(out, d.PositionEmbedding.Forward(x.Dim(1)))
	return d.Dropout.Forward(out)
}
