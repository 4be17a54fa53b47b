// Modul: norm.go
// Beschreibung: Normalisierungsschichten. LayerNorm normiert ueber die
// letzte Dimension, BatchNorm1d ueber Batch und Sequenz je Kanal und
// pflegt dafuer laufende Statistiken.
package nn

import "github.com/nehal119/merlion-testing/ml"

type LayerNorm struct {
	Weight *ml.Tensor `weight:"weight"`
	Bias   *ml.Tensor `weight:"bias"`
	eps    float32
}

func NewLayerNorm(d int) *LayerNorm {
	return &LayerNorm{
		Weight: ml.Ones(d).MarkTrainable(),
		Bias:   ml.Zeros(d).MarkTrainable(),
		eps:    1e-5,
	}
}

func (l *LayerNorm) Forward(x *ml.Tensor) *ml.Tensor {
	return ml.LayerNorm(x, l.Weight, l.Bias, l.eps)
}

// BatchNorm1d erwartet Eingaben der Form [Batch, Kanaele, Laenge]. Die
// laufenden Statistiken sind nicht trainierbar, landen aber ueber ihre
// weight-Tags mit im Checkpoint.
type BatchNorm1d struct {
	Weight      *ml.Tensor `weight:"weight"`
	Bias        *ml.Tensor `weight:"bias"`
	RunningMean *ml.Tensor `weight:"running_mean"`
	RunningVar  *ml.Tensor `weight:"running_var"`

	momentum float32
	eps      float32
	training bool
}

func NewBatchNorm1d(channels int) *BatchNorm1d {
	return &BatchNorm1d{
		Weight:      ml.Ones(channels).MarkTrainable(),
		Bias:        ml.Zeros(channels).MarkTrainable(),
		RunningMean: ml.Zeros(channels),
		RunningVar:  ml.Ones(channels),
		momentum:    0.1,
		eps:         1e-5,
	}
}

func (b *BatchNorm1d) SetTraining(training bool) { b.training = training }

func (b *BatchNorm1d) Forward(x *ml.Tensor) *ml.Tensor {
	return ml.BatchNorm(x, b.Weight, b.Bias, b.RunningMean, b.RunningVar,
		b.momentum, b.eps, b.training)
}
