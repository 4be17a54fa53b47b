// convert.go - Import von PyTorch-Checkpoints in das MCF-Format
//
// Dieses Modul enthaelt:
// - Convert: Einstieg vom .pt Checkpoint zur MCF-Datei
// - inferConfig: Architekturparameter aus den Tensorformen ableiten
// - buildTensors: Namensfilter und Typabbildung der Gewichte
//
// Der Import uebernimmt nur Gewichte. Normalisierung und
// Prognosezustand entstehen erst durch ein Training; eine importierte
// Datei laesst sich laden und weitertrainieren.
package convert

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nehal119/merlion-testing/fs/mcf"
	"github.com/nehal119/merlion-testing/ml/nn"
	"github.com/nehal119/merlion-testing/models"
	"github.com/nehal119/merlion-testing/models/forecast"
)

// Tensornamen, deren Formen die Architektur festlegen.
const (
	encTokenConv  = "enc_embedding.value_embedding.tokenConv.weight"
	decTokenConv  = "dec_embedding.value_embedding.tokenConv.weight"
	projectionKey = "decoder.projection.weight"
	fcnKey        = "encoder.attn_layers.0.conv1.weight"
	temporalKey   = "enc_embedding.temporal_embedding.embed.weight"
)

// Convert liest einen PyTorch-Checkpoint und schreibt ihn als
// MCF-Datei. configJSON ueberlagert die Architekturdefaults; aus den
// Tensorformen ableitbare Groessen ersetzen die Konfigurationswerte.
func Convert(modelPath, outPath string, configJSON []byte) error {
	state, err := loadStateDict(modelPath)
	if err != nil {
		return err
	}

	cfg, err := forecast.ParseTransformerConfig(configJSON)
	if err != nil {
		return err
	}
	if err := inferConfig(&cfg, state); err != nil {
		return err
	}

	tensors, err := buildTensors(state)
	if err != nil {
		return err
	}

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	kv := mcf.KV{
		models.KeyArchitecture: "transformer",
		models.KeyConfig:       string(cfgJSON),
		"convert.source":       modelPath,
	}

	slog.Info("converting checkpoint", "source", modelPath, "tensors", len(tensors),
		"model_dim", cfg.ModelDim, "encoder_input", cfg.EncoderInputSize)
	return mcf.WriteFile(outPath, kv, tensors)
}

// inferConfig liest Breiten und Lagenzahlen aus den Tensorformen und
// prueft sie gegen die uebergebene Konfiguration.
func inferConfig(cfg *forecast.TransformerConfig, state []namedTensor) error {
	shapes := make(map[string][]int, len(state))
	for _, nt := range state {
		shapes[nt.name] = nt.tensor.Size
	}

	enc, ok := shapes[encTokenConv]
	if !ok || len(enc) != 3 {
		return fmt.Errorf("checkpoint is not a forecast transformer: missing %s", encTokenConv)
	}
	cfg.ModelDim = enc[0]
	cfg.EncoderInputSize = enc[1]
	cfg.DecoderInputSize = cfg.EncoderInputSize
	if dec, ok := shapes[decTokenConv]; ok && len(dec) == 3 {
		cfg.DecoderInputSize = dec[1]
	}

	if proj, ok := shapes[projectionKey]; ok && len(proj) == 2 {
		if proj[0] != cfg.EncoderInputSize {
			return fmt.Errorf("projection width %d does not match encoder input %d", proj[0], cfg.EncoderInputSize)
		}
	}
	if fcn, ok := shapes[fcnKey]; ok && len(fcn) == 3 {
		cfg.FCNDim = fcn[0]
	}

	cfg.NumEncoderLayers = countLayers(shapes, "encoder.attn_layers.")
	cfg.NumDecoderLayers = countLayers(shapes, "decoder.layers.")
	if cfg.NumEncoderLayers == 0 || cfg.NumDecoderLayers == 0 {
		return fmt.Errorf("checkpoint has %d encoder and %d decoder layers", cfg.NumEncoderLayers, cfg.NumDecoderLayers)
	}
	cfg.Distil = countLayers(shapes, "encoder.conv_layers.") > 0

	// Einbettungstyp und Frequenzbreite muessen zu den Marken passen.
	if temporal, ok := shapes[temporalKey]; ok && len(temporal) == 2 {
		cfg.Embed = "timeF"
		if err := checkMarkWidth(cfg, temporal[1]); err != nil {
			return err
		}
	} else if _, ok := shapes["enc_embedding.temporal_embedding.hour_embed.emb.weight"]; ok {
		cfg.Embed = "fixed"
	} else if _, ok := shapes["enc_embedding.temporal_embedding.hour_embed.weight"]; ok {
		cfg.Embed = "learned"
	} else {
		return fmt.Errorf("checkpoint carries no temporal embedding")
	}

	if cfg.ModelDim%cfg.NHeads != 0 {
		return fmt.Errorf("model_dim %d not divisible by n_heads %d, pass a config", cfg.ModelDim, cfg.NHeads)
	}
	return nil
}

func checkMarkWidth(cfg *forecast.TransformerConfig, width int) error {
	want, err := nn.TimeFeatureDim(cfg.TSEncoding)
	if err != nil {
		return err
	}
	if want != width {
		return fmt.Errorf("time embedding width %d does not match frequency %q, pass a config", width, cfg.TSEncoding)
	}
	return nil
}

// countLayers bestimmt die hoechste Lagennummer unter einem Praefix.
func countLayers(shapes map[string][]int, prefix string) int {
	layers := 0
	for name := range shapes {
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok {
			continue
		}
		idx, _, ok := strings.Cut(rest, ".")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(idx); err == nil && n+1 > layers {
			layers = n + 1
		}
	}
	return layers
}

// buildTensors bildet die Eintraege des State-Dicts auf MCF-Tensoren
// ab. BatchNorm-Zaehler werden verworfen, halbe Genauigkeit bleibt F16.
func buildTensors(state []namedTensor) ([]*mcf.Tensor, error) {
	tensors := make([]*mcf.Tensor, 0, len(state))
	for _, nt := range state {
		if strings.HasSuffix(nt.name, "num_batches_tracked") {
			continue
		}

		data, half, err := contiguousData(nt.tensor)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", nt.name, err)
		}
		kind := mcf.TypeF32
		if half {
			kind = mcf.TypeF16
		}

		shape := make([]uint64, len(nt.tensor.Size))
		for i, d := range nt.tensor.Size {
			shape[i] = uint64(d)
		}
		if len(shape) == 0 {
			shape = []uint64{1}
		}
		tensors = append(tensors, &mcf.Tensor{Name: nt.name, Kind: kind, Shape: shape, Data: data})
	}
	return tensors, nil
}
