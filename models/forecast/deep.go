// Modul: deep.go
// Beschreibung: Trainings- und Prognoseablauf des tiefen
// Prognosemodells. Train passt Normalisierung und Gewichte an den
// Daten an, Forecast rechnet ueber dem letzten Fenster und macht die
// Normalisierung rueckgaengig. Save und LoadCheckpoint serialisieren
// Gewichte und Zustand als Checkpoint-Datei.
package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"slices"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/nehal119/merlion-testing/fs/mcf"
	"github.com/nehal119/merlion-testing/logutil"
	"github.com/nehal119/merlion-testing/ml"
	"github.com/nehal119/merlion-testing/ml/nn"
	"github.com/nehal119/merlion-testing/ml/optim"
	"github.com/nehal119/merlion-testing/models"
	"github.com/nehal119/merlion-testing/transform"
	"github.com/nehal119/merlion-testing/ts"
)

// ErrNotTrained meldet Zugriffe auf ein Modell ohne Training.
var ErrNotTrained = errors.New("model is not trained")

// Checkpoint-Schluessel und Zustandstensoren neben den Gewichten.
const (
	keyNormalizer = "train.normalizer"
	keyNames      = models.KeyVariables
	keyLastTimes  = "train.last_times"
	keyStep       = "train.step_ns"

	tensorLastWindow = models.TensorStatePrefix + "last_window"
	tensorSigma      = models.TensorStatePrefix + "sigma"
)

// TransformerForecaster implementiert models.Forecaster. Alle
// exportierten Methoden sind durch mu serialisiert.
type TransformerForecaster struct {
	mu     sync.Mutex
	config TransformerConfig

	model *TransformerModel
	norm  *transform.Normalizer
	rng   *rand.Rand

	// Zustand des letzten Trainings fuer die Prognose.
	names      []string
	lastWindow *ml.Tensor // [nPast, D] normalisiert
	lastTimes  []time.Time
	step       time.Duration
	sigma      []float64 // Residualstreuung je Ausgabespalte
	trained    bool
}

var _ models.Forecaster = (*TransformerForecaster)(nil)

// NewTransformer legt ein untrainiertes Modell mit der gegebenen
// JSON-Konfiguration ueber den Defaults an.
func NewTransformer(config []byte) (*TransformerForecaster, error) {
	cfg, err := ParseTransformerConfig(config)
	if err != nil {
		return nil, err
	}
	return &TransformerForecaster{config: cfg}, nil
}

// Config liefert eine Kopie der aktiven Konfiguration.
func (f *TransformerForecaster) Config() TransformerConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.config
}

// Train passt das Modell an die Zeitreihe an. Die Daten werden
// normalisiert, in rollierende Fenster zerlegt und ueber die
// konfigurierte Epochenzahl optimiert. Mit Validierungsanteil wird
// nach jeder Epoche gemessen und der beste Stand behalten.
func (f *TransformerForecaster) Train(ctx context.Context, data *ts.TimeSeries) (*models.TrainStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cfg := &f.config
	dim := data.Dim()
	if cfg.TargetSeqIndex != nil && *cfg.TargetSeqIndex >= dim {
		return nil, fmt.Errorf("target_seq_index %d outside data dim %d", *cfg.TargetSeqIndex, dim)
	}
	if cfg.EncoderInputSize == 0 {
		cfg.EncoderInputSize = dim
	}
	if cfg.EncoderInputSize != dim {
		return nil, fmt.Errorf("encoder_input_size %d does not match data dim %d", cfg.EncoderInputSize, dim)
	}
	if cfg.DecoderInputSize == 0 {
		cfg.DecoderInputSize = cfg.EncoderInputSize
	}

	norm, err := transform.NewNormalizer(cfg.Normalize)
	if err != nil {
		return nil, err
	}
	if err := norm.Fit(data); err != nil {
		return nil, err
	}
	scaled, err := norm.Apply(data)
	if err != nil {
		return nil, err
	}

	times := scaled.Times()
	feats, err := f.marks(times)
	if err != nil {
		return nil, err
	}
	values := toFloat32Rows(scaled.Matrix())

	ds, err := NewDataset(values, feats, cfg.NPast, cfg.MaxForecastSteps)
	if err != nil {
		return nil, err
	}
	trainSet, validSet := ds.Split(cfg.ValidFraction)

	f.rng = ml.NewRNG(cfg.Seed)
	// Ein bereits geladenes Modell wird weitertrainiert, etwa nach
	// einem Import; sonst starten die Gewichte frisch.
	model := f.model
	if model == nil {
		built, err := newTransformerModel(cfg, f.rng)
		if err != nil {
			return nil, err
		}
		model = built
	}
	params := nn.Parameters(model)
	opt, err := optim.New(cfg.Optimizer, params, float32(cfg.LR), float32(cfg.WeightDecay))
	if err != nil {
		return nil, err
	}
	lossFn, err := nn.LossByName(cfg.Loss)
	if err != nil {
		return nil, err
	}

	slog.Info("training", "windows", trainSet.Len(), "valid_windows", validLen(validSet),
		"parameters", countValues(params), "epochs", cfg.NumEpochs)

	stats := &models.TrainStats{}
	best := math.Inf(1)
	var bestState [][]float32
	patience := 0
	start := time.Now()

	for epoch := 1; epoch <= cfg.NumEpochs; epoch++ {
		nn.SetTraining(model, true)

		var sum float64
		var n int
		for _, batch := range trainSet.Batches(cfg.BatchSize, f.rng) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out := model.Forward(batch.Past, batch.PastMarks, batch.FutureMarks)
			loss := lossFn(out, f.targetSlice(batch.Future))

			opt.ZeroGrad()
			loss.Backward()
			if cfg.ClipGradient > 0 {
				optim.ClipGradNorm(params, float32(cfg.ClipGradient))
			}
			opt.Step()

			sum += float64(loss.Item())
			n++
			logutil.Trace("batch", "epoch", epoch, "batch", n, "size", batch.Size(), "loss", loss.Item())
		}
		trainLoss := sum / float64(max(n, 1))
		stats.TrainLoss = append(stats.TrainLoss, trainLoss)

		if validSet == nil {
			stats.BestEpoch = epoch
			slog.Debug("epoch", "epoch", epoch, "train_loss", trainLoss)
			continue
		}

		validLoss, err := f.evalLoss(ctx, model, validSet, lossFn)
		if err != nil {
			return nil, err
		}
		stats.ValidLoss = append(stats.ValidLoss, validLoss)
		slog.Debug("epoch", "epoch", epoch, "train_loss", trainLoss, "valid_loss", validLoss)

		if validLoss < best {
			best = validLoss
			stats.BestEpoch = epoch
			bestState = snapshot(params)
			patience = 0
		} else if cfg.EarlyStopPatience > 0 {
			patience++
			if patience >= cfg.EarlyStopPatience {
				slog.Debug("early stop", "epoch", epoch, "best_epoch", stats.BestEpoch)
				break
			}
		}
	}
	if bestState != nil {
		restore(params, bestState)
	}
	stats.Epochs = len(stats.TrainLoss)

	// Residualstreuung auf der Validierungsmenge, sonst auf dem
	// Trainingsanteil, als Basis der Standardfehler.
	sigmaSet := validSet
	if sigmaSet == nil {
		sigmaSet = trainSet
	}
	sigma, err := f.residualSigma(ctx, model, sigmaSet)
	if err != nil {
		return nil, err
	}

	nn.SetTraining(model, false)
	f.model = model
	f.norm = norm
	f.names = data.Names()
	f.lastTimes = slices.Clone(times[len(times)-cfg.NPast:])
	f.lastWindow = stackRows(values[len(values)-cfg.NPast:])
	f.step = inferStep(times)
	f.sigma = sigma
	f.trained = true

	slog.Info("training complete", "epochs", stats.Epochs, "best_epoch", stats.BestEpoch,
		"loss", stats.FinalLoss(), "duration", time.Since(start).Round(time.Millisecond))
	return stats, nil
}

// Forecast prognostiziert horizon Schritte hinter dem Ende der
// Trainingsdaten. Die zweite Reihe traegt den Standardfehler je
// Variable, abgeleitet aus der Residualstreuung des Trainings.
func (f *TransformerForecaster) Forecast(ctx context.Context, horizon int) (*ts.TimeSeries, *ts.TimeSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.trained {
		return nil, nil, ErrNotTrained
	}
	if horizon <= 0 {
		return nil, nil, fmt.Errorf("horizon %d must be positive", horizon)
	}
	if horizon > f.config.MaxForecastSteps {
		return nil, nil, fmt.Errorf("horizon %d exceeds max_forecast_steps %d", horizon, f.config.MaxForecastSteps)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	// Zukuenftige Zeitstempel aus der inferierten Abtastung.
	futureTimes := make([]time.Time, f.config.MaxForecastSteps)
	last := f.lastTimes[len(f.lastTimes)-1]
	for i := range futureTimes {
		last = last.Add(f.step)
		futureTimes[i] = last
	}

	pastMarks, err := f.marks(f.lastTimes)
	if err != nil {
		return nil, nil, err
	}
	futureMarks, err := f.marks(futureTimes)
	if err != nil {
		return nil, nil, err
	}

	prev := ml.SetGradEnabled(false)
	out := f.model.Forward(
		ml.Reshape(f.lastWindow, 1, f.lastWindow.Dim(0), f.lastWindow.Dim(1)),
		stackBatch(pastMarks), stackBatch(futureMarks))
	ml.SetGradEnabled(prev)

	names, cols := f.outputColumns()
	rows := make([][]float64, horizon)
	errRows := make([][]float64, horizon)
	for i := range rows {
		row := make([]float64, len(cols))
		errRow := make([]float64, len(cols))
		for k, j := range cols {
			row[k] = float64(out.At(0, i, k))
			errRow[k] = f.sigma[k] * f.norm.ScaleOf(j)
		}
		rows[i] = row
		errRows[i] = errRow
	}

	forecast, err := ts.FromMatrix(names, futureTimes[:horizon], rows)
	if err != nil {
		return nil, nil, err
	}
	forecast, err = f.norm.Invert(forecast, cols)
	if err != nil {
		return nil, nil, err
	}

	errNames := make([]string, len(names))
	for i, name := range names {
		errNames[i] = name + "_err"
	}
	stderr, err := ts.FromMatrix(errNames, futureTimes[:horizon], errRows)
	if err != nil {
		return nil, nil, err
	}
	return forecast, stderr, nil
}

// Save schreibt Gewichte, Konfiguration und Prognosezustand in eine
// Checkpoint-Datei.
func (f *TransformerForecaster) Save(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.trained {
		return ErrNotTrained
	}

	cfgJSON, err := f.config.marshal()
	if err != nil {
		return err
	}
	normJSON, err := f.norm.Marshal()
	if err != nil {
		return err
	}
	namesJSON, err := json.Marshal(f.names)
	if err != nil {
		return err
	}
	unix := make([]int64, len(f.lastTimes))
	for i, tm := range f.lastTimes {
		unix[i] = tm.UnixNano()
	}
	timesJSON, err := json.Marshal(unix)
	if err != nil {
		return err
	}

	kv := mcf.KV{
		models.KeyArchitecture: "transformer",
		models.KeyConfig:       string(cfgJSON),
		keyNormalizer:          string(normJSON),
		keyNames:               string(namesJSON),
		keyLastTimes:           string(timesJSON),
		keyStep:                uint64(f.step),
	}

	var tensors []*mcf.Tensor
	for _, nt := range nn.NamedTensors(f.model) {
		tensors = append(tensors, &mcf.Tensor{
			Name:  nt.Name,
			Kind:  mcf.TypeF32,
			Shape: shapeU64(nt.Tensor.Shape()),
			Data:  slices.Clone(nt.Tensor.Data()),
		})
	}
	tensors = append(tensors, &mcf.Tensor{
		Name:  tensorLastWindow,
		Kind:  mcf.TypeF32,
		Shape: shapeU64(f.lastWindow.Shape()),
		Data:  slices.Clone(f.lastWindow.Data()),
	})
	tensors = append(tensors, &mcf.Tensor{
		Name:  tensorSigma,
		Kind:  mcf.TypeF32,
		Shape: []uint64{uint64(len(f.sigma))},
		Data:  toFloat32(f.sigma),
	})

	return mcf.WriteFile(path, kv, tensors)
}

// LoadCheckpoint stellt Modell und Prognosezustand aus einer gelesenen
// Checkpoint-Datei wieder her.
func (f *TransformerForecaster) LoadCheckpoint(file *mcf.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cfg, err := ParseTransformerConfig([]byte(file.KV.String(models.KeyConfig)))
	if err != nil {
		return err
	}
	if cfg.EncoderInputSize == 0 || cfg.DecoderInputSize == 0 {
		return errors.New("checkpoint carries unresolved input sizes")
	}

	model, err := newTransformerModel(&cfg, ml.NewRNG(cfg.Seed))
	if err != nil {
		return err
	}
	weights := make(map[string]*ml.Tensor, len(file.Tensors))
	for _, t := range file.Tensors {
		weights[t.Name] = ml.NewTensor(t.Data, intShape(t.Shape)...)
	}
	if err := nn.LoadState(model, weights); err != nil {
		return err
	}

	window := file.Tensor(tensorLastWindow)
	if window == nil {
		// Importierte Checkpoints tragen nur Gewichte. Das Modell ist
		// geladen, aber erst nach einem Training prognosefaehig.
		norm, err := transform.NewNormalizer(cfg.Normalize)
		if err != nil {
			return err
		}
		nn.SetTraining(model, false)
		f.config = cfg
		f.model = model
		f.norm = norm
		f.rng = ml.NewRNG(cfg.Seed)
		f.names = nil
		f.lastWindow = nil
		f.lastTimes = nil
		f.step = 0
		f.sigma = nil
		f.trained = false
		return nil
	}

	norm, err := transform.Unmarshal([]byte(file.KV.String(keyNormalizer)))
	if err != nil {
		return err
	}
	var names []string
	if err := json.Unmarshal([]byte(file.KV.String(keyNames)), &names); err != nil {
		return fmt.Errorf("checkpoint names: %w", err)
	}
	var unix []int64
	if err := json.Unmarshal([]byte(file.KV.String(keyLastTimes)), &unix); err != nil {
		return fmt.Errorf("checkpoint times: %w", err)
	}
	lastTimes := make([]time.Time, len(unix))
	for i, ns := range unix {
		lastTimes[i] = time.Unix(0, ns).UTC()
	}
	if len(lastTimes) != cfg.NPast {
		return fmt.Errorf("checkpoint has %d past times for n_past %d", len(lastTimes), cfg.NPast)
	}

	sigma := file.Tensor(tensorSigma)
	if sigma == nil {
		return fmt.Errorf("checkpoint missing tensor %q", tensorSigma)
	}

	nn.SetTraining(model, false)
	f.config = cfg
	f.model = model
	f.norm = norm
	f.rng = ml.NewRNG(cfg.Seed)
	f.names = names
	f.lastWindow = ml.NewTensor(window.Data, intShape(window.Shape)...)
	f.lastTimes = lastTimes
	f.step = time.Duration(file.KV.Uint64(keyStep))
	f.sigma = toFloat64(sigma.Data)
	f.trained = true
	return nil
}

// marks berechnet die Kalendermerkmale passend zum Einbettungstyp.
func (f *TransformerForecaster) marks(times []time.Time) ([][]float32, error) {
	if f.config.Embed == "timeF" {
		return TimeFeatures(times, f.config.TSEncoding)
	}
	return CalendarMarks(times), nil
}

// targetSlice reduziert das Ziel auf die konfigurierte Zielvariable.
func (f *TransformerForecaster) targetSlice(future *ml.Tensor) *ml.Tensor {
	if f.config.TargetSeqIndex == nil {
		return future
	}
	return ml.Narrow(future, 2, *f.config.TargetSeqIndex, 1)
}

// outputColumns nennt Namen und angepasste Spaltenindizes der
// Modellausgabe.
func (f *TransformerForecaster) outputColumns() ([]string, []int) {
	if f.config.TargetSeqIndex != nil {
		j := *f.config.TargetSeqIndex
		return []string{f.names[j]}, []int{j}
	}
	cols := make([]int, len(f.names))
	for j := range cols {
		cols[j] = j
	}
	return slices.Clone(f.names), cols
}

// evalLoss misst den mittleren Batch-Loss ohne Gradienten.
func (f *TransformerForecaster) evalLoss(ctx context.Context, model *TransformerModel, ds *Dataset, lossFn nn.Loss) (float64, error) {
	prev := ml.SetGradEnabled(false)
	defer ml.SetGradEnabled(prev)
	nn.SetTraining(model, false)

	var sum float64
	var n int
	for _, batch := range ds.Batches(f.config.BatchSize, nil) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		out := model.Forward(batch.Past, batch.PastMarks, batch.FutureMarks)
		sum += float64(lossFn(out, f.targetSlice(batch.Future)).Item())
		n++
	}
	return sum / float64(max(n, 1)), nil
}

// residualSigma schaetzt die Streuung der Residuen je Ausgabespalte im
// normalisierten Raum.
func (f *TransformerForecaster) residualSigma(ctx context.Context, model *TransformerModel, ds *Dataset) ([]float64, error) {
	prev := ml.SetGradEnabled(false)
	defer ml.SetGradEnabled(prev)
	nn.SetTraining(model, false)

	var residuals [][]float64
	for _, batch := range ds.Batches(f.config.BatchSize, nil) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out := model.Forward(batch.Past, batch.PastMarks, batch.FutureMarks)
		target := f.targetSlice(batch.Future)

		cols := out.Dim(2)
		if residuals == nil {
			residuals = make([][]float64, cols)
		}
		outData, targetData := out.Data(), target.Data()
		for i, v := range outData {
			residuals[i%cols] = append(residuals[i%cols], float64(v)-float64(targetData[i]))
		}
	}

	sigma := make([]float64, len(residuals))
	for j, r := range residuals {
		if len(r) > 1 {
			sigma[j] = stat.StdDev(r, nil)
		}
	}
	return sigma, nil
}

// snapshot kopiert die Parameterwerte fuer die Bestwahl.
func snapshot(params []*ml.Tensor) [][]float32 {
	state := make([][]float32, len(params))
	for i, p := range params {
		state[i] = slices.Clone(p.Data())
	}
	return state
}

func restore(params []*ml.Tensor, state [][]float32) {
	for i, p := range params {
		copy(p.Data(), state[i])
	}
}

// inferStep bestimmt die Abtastung als Median der Zeitabstaende.
func inferStep(times []time.Time) time.Duration {
	diffs := make([]time.Duration, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		diffs = append(diffs, times[i].Sub(times[i-1]))
	}
	slices.Sort(diffs)
	return diffs[len(diffs)/2]
}

func validLen(ds *Dataset) int {
	if ds == nil {
		return 0
	}
	return ds.Len()
}

func countValues(params []*ml.Tensor) int {
	var n int
	for _, p := range params {
		n += p.Len()
	}
	return n
}

func toFloat32Rows(rows [][]float64) [][]float32 {
	out := make([][]float32, len(rows))
	for i, row := range rows {
		out[i] = toFloat32(row)
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// stackRows legt Zeilen gleicher Breite in einen Tensor [N, D].
func stackRows(rows [][]float32) *ml.Tensor {
	flat := make([]float32, 0, len(rows)*len(rows[0]))
	for _, row := range rows {
		flat = append(flat, row...)
	}
	return ml.NewTensor(flat, len(rows), len(rows[0]))
}

// stackBatch legt Zeilen als Batch der Groesse eins in einen Tensor.
func stackBatch(rows [][]float32) *ml.Tensor {
	t := stackRows(rows)
	return ml.Reshape(t, 1, t.Dim(0), t.Dim(1))
}

func shapeU64(shape []int) []uint64 {
	out := make([]uint64, len(shape))
	for i, d := range shape {
		out[i] = uint64(d)
	}
	return out
}

func intShape(shape []uint64) []int {
	out := make([]int, len(shape))
	for i, d := range shape {
		out[i] = int(d)
	}
	return out
}
