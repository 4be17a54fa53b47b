// Modul: encdec.go
// Beschreibung: Encoder- und Decoder-Stapel. Jede Schicht kombiniert
// Attention mit einem Feedforward-Block aus zwei Kernel-1 Faltungen,
// jeweils mit Residualverbindung und LayerNorm. Zwischen Encoder-
// Schichten kann eine Faltung mit MaxPool die Sequenz halbieren.
package nn

import (
	"math/rand"

	"github.com/nehal119/merlion-testing/ml"
)

type EncoderLayer struct {
	Attention *AttentionLayer `weight:"attention"`
	Conv1     *Conv           `weight:"conv1"`
	Conv2     *Conv           `weight:"conv2"`
	Norm1     *LayerNorm      `weight:"norm1"`
	Norm2     *LayerNorm      `weight:"norm2"`
	Dropout   *Dropout

	act Activation
}

func NewEncoderLayer(rng *rand.Rand, attention *AttentionLayer, dModel, dff int, dropout float32, act Activation) *EncoderLayer {
	return &EncoderLayer{
		Attention: attention,
		Conv1:     NewConv(rng, dModel, dff, 1, 1, 0, false, true),
		Conv2:     NewConv(rng, dff, dModel, 1, 1, 0, false, true),
		Norm1:     NewLayerNorm(dModel),
		Norm2:     NewLayerNorm(dModel),
		Dropout:   NewDropout(dropout, rng),
		act:       act,
	}
}

func (e *EncoderLayer) Forward(x, attnMask *ml.Tensor) (*ml.Tensor, *ml.Tensor) {
	newX, attn := e.Attention.Forward(x, x, x, attnMask)
	x = ml.Add(x, e.Dropout.Forward(newX))
	x = e.Norm1.Forward(x)

	y := ml.Permute(x, 0, 2, 1)
	y = e.Dropout.Forward(e.act(e.Conv1.Forward(y)))
	y = e.Dropout.Forward(ml.Permute(e.Conv2.Forward(y), 0, 2, 1))

	return e.Norm2.Forward(ml.Add(x, y)), attn
}

// ConvLayer halbiert die Sequenzlaenge zwischen zwei Encoder-Schichten:
// zirkulare Faltung, BatchNorm, ELU, dann MaxPool mit Schrittweite 2.
type ConvLayer struct {
	DownConv *Conv        `weight:"downConv"`
	Norm     *BatchNorm1d `weight:"norm"`
}

func NewConvLayer(rng *rand.Rand, channels int) *ConvLayer {
	return &ConvLayer{
		DownConv: NewConv(rng, channels, channels, 3, 1, 1, true, true),
		Norm:     NewBatchNorm1d(channels),
	}
}

func (c *ConvLayer) Forward(x *ml.Tensor) *ml.Tensor {
	y := c.DownConv.Forward(ml.Permute(x, 0, 2, 1))
	y = ml.ELU(c.Norm.Forward(y))
	y = ml.MaxPool1d(y, 3, 2, 1)
	return ml.Permute(y, 0, 2, 1)
}

// Encoder fuehrt die Attention-Schichten aus, mit Distillation optional
// eine ConvLayer nach jeder Schicht ausser der letzten.
type Encoder struct {
	AttnLayers []*EncoderLayer `weight:"attn_layers"`
	ConvLayers []*ConvLayer    `weight:"conv_layers"`
	Norm       *LayerNorm      `weight:"norm"`
}

func NewEncoder(attnLayers []*EncoderLayer, convLayers []*ConvLayer, norm *LayerNorm) *Encoder {
	return &Encoder{AttnLayers: attnLayers, ConvLayers: convLayers, Norm: norm}
}

func (e *Encoder) Forward(x, attnMask *ml.Tensor) (*ml.Tensor, []*ml.Tensor) {
	var attns []*ml.Tensor

	if len(e.ConvLayers) > 0 {
		for i, conv := range e.ConvLayers {
			var attn *ml.Tensor
			x, attn = e.AttnLayers[i].Forward(x, attnMask)
			x = conv.Forward(x)
			attns = append(attns, attn)
		}
		var attn *ml.Tensor
		x, attn = e.AttnLayers[len(e.AttnLayers)-1].Forward(x, nil)
		attns = append(attns, attn)
	} else {
		for _, layer := range e.AttnLayers {
			var attn *ml.Tensor
			x, attn = layer.Forward(x, attnMask)
			attns = append(attns, attn)
		}
	}

	if e.Norm != nil {
		x = e.Norm.Forward(x)
	}
	return x, attns
}

type DecoderLayer struct {
	SelfAttention  *AttentionLayer `weight:"self_attention"`
	CrossAttention *AttentionLayer `weight:"cross_attention"`
	Conv1          *Conv           `weight:"conv1"`
	Conv2          *Conv           `weight:"conv2"`
	Norm1          *LayerNorm      `weight:"norm1"`
	Norm2          *LayerNorm      `weight:"norm2"`
	Norm3          *LayerNorm      `weight:"norm3"`
	Dropout        *Dropout

	act Activation
}

func NewDecoderLayer(rng *rand.Rand, selfAttention, crossAttention *AttentionLayer, dModel, dff int, dropout float32, act Activation) *DecoderLayer {
	return &DecoderLayer{
		SelfAttention:  selfAttention,
		CrossAttention: crossAttention,
		Conv1:          NewConv(rng, dModel, dff, 1, 1, 0, false, true),
		Conv2:          NewConv(rng, dff, dModel, 1, 1, 0, false, true),
		Norm1:          NewLayerNorm(dModel),
		Norm2:          NewLayerNorm(dModel),
		Norm3:          NewLayerNorm(dModel),
		Dropout:        NewDropout(dropout, rng),
		act:            act,
	}
}

func (d *DecoderLayer) Forward(x, cross, xMask, crossMask *ml.Tensor) *ml.Tensor {
	selfOut, _ := d.SelfAttention.Forward(x, x, x, xMask)
	x = ml.Add(x, d.Dropout.Forward(selfOut))
	x = d.Norm1.Forward(x)

	crossOut, _ := d.CrossAttention.Forward(x, cross, cross, crossMask)
	x = ml.Add(x, d.Dropout.Forward(crossOut))
	x = d.Norm2.Forward(x)

	y := ml.Permute(x, 0, 2, 1)
	y = d.Dropout.Forward(d.act(d.Conv1.Forward(y)))
	y = d.Dropout.Forward(ml.Permute(d.Conv2.Forward(y), 0, 2, 1))

	return d.Norm3.Forward(ml.Add(x, y))
}

// Decoder stapelt die Schichten und projiziert am Ende auf die
// Zielkanaele.
type Decoder struct {
	Layers     []*DecoderLayer `weight:"layers"`
	Norm       *LayerNorm      `weight:"norm"`
	Projection *Linear         `weight:"projection"`
}

func NewDecoder(layers []*DecoderLayer, norm *LayerNorm, projection *Linear) *Decoder {
	return &Decoder{Layers: layers, Norm: norm, Projection: projection}
}

func (d *Decoder) Forward(x, cross, xMask, crossMask *ml.Tensor) *ml.Tensor {
	for _, layer := range d.Layers {
		x = layer.Forward(x, cross, xMask, crossMask)
	}
	if d.Norm != nil {
		x = d.Norm.Forward(x)
	}
	if d.Projection != nil {
		x = d.Projection.Forward(x)
	}
	return x
}
