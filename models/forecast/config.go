// Modul: config.go
// Beschreibung: Konfiguration der tiefen Prognosemodelle. Defaults
// werden vorab gefuellt, eine JSON-Konfiguration ueberschreibt nur die
// gesetzten Felder. Validate prueft alle Namen und Wertebereiche vor
// dem Modellbau.
package forecast

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nehal119/merlion-testing/envconfig"
	"github.com/nehal119/merlion-testing/ml/nn"
	"github.com/nehal119/merlion-testing/transform"
)

// DeepConfig sind die architekturunabhaengigen Trainingsparameter.
type DeepConfig struct {
	// NPast ist die Laenge des Rueckblickfensters in Zeitschritten.
	NPast int `json:"n_past"`
	// MaxForecastSteps ist der weiteste Prognosehorizont.
	MaxForecastSteps int `json:"max_forecast_steps"`
	// TargetSeqIndex waehlt eine Zielvariable; ohne Angabe werden alle
	// Variablen prognostiziert.
	TargetSeqIndex *int `json:"target_seq_index,omitempty"`

	BatchSize         int     `json:"batch_size"`
	NumEpochs         int     `json:"num_epochs"`
	Optimizer         string  `json:"optimizer"`
	Loss              string  `json:"loss"`
	LR                float64 `json:"lr"`
	WeightDecay       float64 `json:"weight_decay"`
	ClipGradient      float64 `json:"clip_gradient"`
	ValidFraction     float64 `json:"valid_fraction"`
	EarlyStopPatience int     `json:"early_stop_patience"`
	Seed              int64   `json:"seed"`

	// Normalize waehlt die Skalierung der Eingangsdaten.
	Normalize string `json:"normalize"`
	// TSEncoding ist die Abtastfrequenz der Zeitmerkmale (h, t, s, ...).
	TSEncoding string `json:"ts_encoding"`
}

// DefaultDeepConfig liefert die Trainingsdefaults.
func DefaultDeepConfig() DeepConfig {
	return DeepConfig{
		NPast:            24,
		MaxForecastSteps: 8,
		BatchSize:        32,
		NumEpochs:        10,
		Optimizer:        "adam",
		Loss:             "mse",
		LR:               1e-4,
		ValidFraction:    0.1,
		Normalize:        "meanvar",
		TSEncoding:       "h",
	}
}

func (c *DeepConfig) validate() error {
	if c.NPast <= 0 {
		return errors.New("n_past must be positive")
	}
	if c.MaxForecastSteps <= 0 {
		return errors.New("max_forecast_steps must be positive")
	}
	if c.TargetSeqIndex != nil && *c.TargetSeqIndex < 0 {
		return fmt.Errorf("target_seq_index %d must not be negative", *c.TargetSeqIndex)
	}
	if c.BatchSize <= 0 {
		return errors.New("batch_size must be positive")
	}
	if c.NumEpochs <= 0 {
		return errors.New("num_epochs must be positive")
	}
	if c.LR <= 0 {
		return errors.New("lr must be positive")
	}
	if c.ValidFraction < 0 || c.ValidFraction >= 1 {
		return fmt.Errorf("valid_fraction %v outside [0, 1)", c.ValidFraction)
	}
	if c.EarlyStopPatience > 0 && c.ValidFraction == 0 {
		return errors.New("early stopping needs valid_fraction > 0")
	}
	if _, err := nn.LossByName(c.Loss); err != nil {
		return err
	}
	if _, err := transform.NewNormalizer(c.Normalize); err != nil {
		return err
	}
	if _, err := TimeFeatures(nil, c.TSEncoding); err != nil {
		return err
	}
	return nil
}

// TransformerConfig ergaenzt die Architekturparameter des
// Transformer-Prognosemodells.
type TransformerConfig struct {
	DeepConfig

	ModelDim         int     `json:"model_dim"`
	NHeads           int     `json:"n_heads"`
	NumEncoderLayers int     `json:"num_encoder_layers"`
	NumDecoderLayers int     `json:"num_decoder_layers"`
	FCNDim           int     `json:"fcn_dim"`
	Dropout          float64 `json:"dropout"`
	Activation       string  `json:"activation"`
	Embed            string  `json:"embed"`
	Factor           int     `json:"factor"`
	Distil           bool    `json:"distil"`
	StartTokenLen    int     `json:"start_token_len"`

	// EncoderInputSize 0 uebernimmt die Dimension der Trainingsdaten,
	// DecoderInputSize 0 uebernimmt EncoderInputSize.
	EncoderInputSize int `json:"encoder_input_size"`
	DecoderInputSize int `json:"decoder_input_size"`
}

// DefaultTransformerConfig liefert die Architekturdefaults.
func DefaultTransformerConfig() TransformerConfig {
	return TransformerConfig{
		DeepConfig:       DefaultDeepConfig(),
		ModelDim:         512,
		NHeads:           8,
		NumEncoderLayers: 2,
		NumDecoderLayers: 1,
		FCNDim:           2048,
		Dropout:          0.05,
		Activation:       "gelu",
		Embed:            "timeF",
		Factor:           3,
		Distil:           true,
	}
}

// ParseTransformerConfig legt eine JSON-Konfiguration ueber die
// Defaults und validiert das Ergebnis.
func ParseTransformerConfig(data []byte) (TransformerConfig, error) {
	cfg := DefaultTransformerConfig()
	// MERLION_SEED ist der Default, ein Seed in der Konfiguration geht vor
	cfg.Seed = envconfig.Seed()
	if len(data) > 0 {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	return cfg, cfg.Validate()
}

func (c *TransformerConfig) Validate() error {
	if err := c.validate(); err != nil {
		return err
	}
	if c.ModelDim <= 0 {
		return errors.New("model_dim must be positive")
	}
	if c.NHeads <= 0 || c.ModelDim%c.NHeads != 0 {
		return fmt.Errorf("model_dim %d not divisible by n_heads %d", c.ModelDim, c.NHeads)
	}
	if c.NumEncoderLayers <= 0 || c.NumDecoderLayers <= 0 {
		return errors.New("encoder and decoder need at least one layer")
	}
	if c.FCNDim <= 0 {
		return errors.New("fcn_dim must be positive")
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("dropout %v outside [0, 1)", c.Dropout)
	}
	if c.StartTokenLen < 0 || c.StartTokenLen > c.NPast {
		return fmt.Errorf("start_token_len %d outside [0, n_past]", c.StartTokenLen)
	}
	if c.StartTokenLen > 0 && c.DecoderInputSize != 0 && c.DecoderInputSize != c.EncoderInputSize {
		return errors.New("start token requires matching encoder and decoder input sizes")
	}
	if _, err := nn.ActivationByName(c.Activation); err != nil {
		return err
	}
	switch c.Embed {
	case "timeF", "fixed", "learned":
	default:
		return fmt.Errorf("unknown embedding type %q", c.Embed)
	}
	return nil
}

// marshalConfig serialisiert die Konfiguration fuer den Checkpoint.
func (c *TransformerConfig) marshal() ([]byte, error) {
	return json.Marshal(c)
}
