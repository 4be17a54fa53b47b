// Modul: transformer.go
// Beschreibung: Sequenz-zu-Sequenz-Transformer fuer die Prognose
// multivariater Zeitreihen. Der Encoder verarbeitet das
// Rueckblickfenster, der Decoder erhaelt einen optionalen Start-Token
// plus Nullen ueber dem Horizont und projiziert auf die Zielbreite.
package forecast

import (
	"math/rand"

	"github.com/nehal119/merlion-testing/ml"
	"github.com/nehal119/merlion-testing/ml/nn"
	"github.com/nehal119/merlion-testing/models"
)

func init() {
	models.Register("transformer", func(config []byte) (models.Forecaster, error) {
		return NewTransformer(config)
	})
}

// TransformerModel ist das neuronale Netz hinter dem Prognosemodell.
// Die weight-Tags spiegeln die Namen im Checkpoint.
type TransformerModel struct {
	EncEmbedding *nn.DataEmbedding `weight:"enc_embedding"`
	DecEmbedding *nn.DataEmbedding `weight:"dec_embedding"`
	Encoder      *nn.Encoder       `weight:"encoder"`
	Decoder      *nn.Decoder       `weight:"decoder"`

	horizon       int
	startTokenLen int
	decoderInput  int
	targetOnly    bool
}

// newTransformerModel baut das Netz aus einer Konfiguration mit
// aufgeloesten Eingangsgroessen.
func newTransformerModel(cfg *TransformerConfig, rng *rand.Rand) (*TransformerModel, error) {
	act, err := nn.ActivationByName(cfg.Activation)
	if err != nil {
		return nil, err
	}
	dropout := float32(cfg.Dropout)

	encEmbedding, err := nn.NewDataEmbedding(rng, cfg.EncoderInputSize, cfg.ModelDim, cfg.Embed, cfg.TSEncoding, dropout)
	if err != nil {
		return nil, err
	}
	decEmbedding, err := nn.NewDataEmbedding(rng, cfg.DecoderInputSize, cfg.ModelDim, cfg.Embed, cfg.TSEncoding, dropout)
	if err != nil {
		return nil, err
	}

	attnLayers := make([]*nn.EncoderLayer, cfg.NumEncoderLayers)
	for i := range attnLayers {
		attn := nn.NewAttentionLayer(rng, nn.NewFullAttention(false, 0, dropout, false, rng), cfg.ModelDim, cfg.NHeads)
		attnLayers[i] = nn.NewEncoderLayer(rng, attn, cfg.ModelDim, cfg.FCNDim, dropout, act)
	}
	// Distillation halbiert die Sequenz zwischen den Encoder-Lagen.
	var convLayers []*nn.ConvLayer
	if cfg.Distil {
		convLayers = make([]*nn.ConvLayer, cfg.NumEncoderLayers-1)
		for i := range convLayers {
			convLayers[i] = nn.NewConvLayer(rng, cfg.ModelDim)
		}
	}
	encoder := nn.NewEncoder(attnLayers, convLayers, nn.NewLayerNorm(cfg.ModelDim))

	decLayers := make([]*nn.DecoderLayer, cfg.NumDecoderLayers)
	for i := range decLayers {
		self := nn.NewAttentionLayer(rng, nn.NewFullAttention(true, 0, dropout, false, rng), cfg.ModelDim, cfg.NHeads)
		cross := nn.NewAttentionLayer(rng, nn.NewFullAttention(false, 0, dropout, false, rng), cfg.ModelDim, cfg.NHeads)
		decLayers[i] = nn.NewDecoderLayer(rng, self, cross, cfg.ModelDim, cfg.FCNDim, dropout, act)
	}
	projection := nn.NewLinear(rng, cfg.ModelDim, cfg.EncoderInputSize, true)
	decoder := nn.NewDecoder(decLayers, nn.NewLayerNorm(cfg.ModelDim), projection)

	return &TransformerModel{
		EncEmbedding:  encEmbedding,
		DecEmbedding:  decEmbedding,
		Encoder:       encoder,
		Decoder:       decoder,
		horizon:       cfg.MaxForecastSteps,
		startTokenLen: cfg.StartTokenLen,
		decoderInput:  cfg.DecoderInputSize,
		targetOnly:    cfg.TargetSeqIndex != nil,
	}, nil
}

// Forward prognostiziert den Horizont hinter dem Rueckblickfenster.
// past hat die Form [B, nPast, D], die Marken tragen die
// Kalendermerkmale der jeweiligen Zeitschritte. Mit Zielvariable ist
// die Ausgabe [B, horizon, 1], sonst [B, horizon, D].
func (m *TransformerModel) Forward(past, pastMarks, futureMarks *ml.Tensor) *ml.Tensor {
	b, nPast := past.Dim(0), past.Dim(1)

	// Decoder-Eingabe: Start-Token aus dem Ende des Rueckblicks,
	// danach Nullen ueber dem Horizont.
	decInp := ml.Zeros(b, m.horizon, m.decoderInput)
	decMarks := futureMarks
	if m.startTokenLen > 0 {
		token := ml.Narrow(past, 1, nPast-m.startTokenLen, m.startTokenLen)
		decInp = ml.Concat(1, token, decInp)
		decMarks = ml.Concat(1, ml.Narrow(pastMarks, 1, nPast-m.startTokenLen, m.startTokenLen), futureMarks)
	}

	encOut, _ := m.Encoder.Forward(m.EncEmbedding.Forward(past, pastMarks), nil)
	decOut := m.Decoder.Forward(m.DecEmbedding.Forward(decInp, decMarks), encOut, nil, nil)

	out := ml.Narrow(decOut, 1, decOut.Dim(1)-m.horizon, m.horizon)
	if m.targetOnly {
		out = ml.Narrow(out, 2, 0, 1)
	}
	return out
}
