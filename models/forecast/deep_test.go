package forecast

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/nehal119/merlion-testing/models"
	"github.com/nehal119/merlion-testing/ts"
)

// hourlySeries liefert eine glatte zweidimensionale Testreihe.
func hourlySeries(n int) *ts.TimeSeries {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	times := make([]time.Time, n)
	rows := make([][]float64, n)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * time.Hour)
		rows[i] = []float64{
			10 + 3*math.Sin(2*math.Pi*float64(i)/24),
			50 + 0.1*float64(i),
		}
	}
	series, err := ts.FromMatrix([]string{"load", "drift"}, times, rows)
	if err != nil {
		panic(err)
	}
	return series
}

func trainedForecaster(t *testing.T, mutate func(*TransformerConfig)) (*TransformerForecaster, *models.TrainStats) {
	t.Helper()

	cfg := smallConfig()
	cfg.EncoderInputSize = 0
	cfg.DecoderInputSize = 0
	cfg.ValidFraction = 0.2
	if mutate != nil {
		mutate(&cfg)
	}

	f := &TransformerForecaster{config: cfg}
	stats, err := f.Train(context.Background(), hourlySeries(60))
	if err != nil {
		t.Fatal(err)
	}
	return f, stats
}

func TestTrainAndForecast(t *testing.T) {
	f, stats := trainedForecaster(t, nil)

	if stats.Epochs != 2 || len(stats.TrainLoss) != 2 || len(stats.ValidLoss) != 2 {
		t.Fatalf("Statistik %d/%d/%d, erwartet 2 Epochen mit Train- und Validloss",
			stats.Epochs, len(stats.TrainLoss), len(stats.ValidLoss))
	}
	if stats.BestEpoch < 1 || stats.BestEpoch > 2 {
		t.Errorf("BestEpoch %d ausserhalb der gelaufenen Epochen", stats.BestEpoch)
	}
	if math.IsNaN(stats.FinalLoss()) || math.IsInf(stats.FinalLoss(), 0) {
		t.Fatalf("Loss %v, erwartet endlich", stats.FinalLoss())
	}

	forecast, stderr, err := f.Forecast(context.Background(), 4)
	if err != nil {
		t.Fatal(err)
	}
	if forecast.Len() != 4 || forecast.Dim() != 2 {
		t.Fatalf("Prognose %dx%d, erwartet 4x2", forecast.Len(), forecast.Dim())
	}

	// Die Zeitstempel setzen die stuendliche Abtastung fort.
	last := time.Date(2024, 1, 3, 11, 0, 0, 0, time.UTC)
	for i, tm := range forecast.Times() {
		want := last.Add(time.Duration(i+1) * time.Hour)
		if !tm.Equal(want) {
			t.Errorf("Zeitstempel %d ist %v, erwartet %v", i, tm, want)
		}
	}

	names := forecast.Names()
	if names[0] != "load" || names[1] != "drift" {
		t.Errorf("Prognosenamen %v, erwartet [load drift]", names)
	}
	errNames := stderr.Names()
	if errNames[0] != "load_err" || errNames[1] != "drift_err" {
		t.Errorf("Fehlernamen %v, erwartet [load_err drift_err]", errNames)
	}
	for _, row := range stderr.Matrix() {
		for _, v := range row {
			if v < 0 || math.IsNaN(v) {
				t.Fatalf("Standardfehler %v, erwartet nichtnegativ", v)
			}
		}
	}

	// Ein kuerzerer Horizont ist nur ein Praefix.
	short, _, err := f.Forecast(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if short.Len() != 1 {
		t.Fatalf("Kurzprognose mit %d Punkten, erwartet 1", short.Len())
	}
	_, fullFirst, _ := forecast.Column(0).First()
	_, shortFirst, _ := short.Column(0).First()
	if fullFirst != shortFirst {
		t.Errorf("Kurzprognose beginnt bei %v, erwartet %v", shortFirst, fullFirst)
	}
}

func TestForecastLimits(t *testing.T) {
	f, _ := trainedForecaster(t, nil)

	if _, _, err := f.Forecast(context.Background(), 5); err == nil {
		t.Error("Horizont 5 ueber max_forecast_steps akzeptiert, erwartet Fehler")
	}
	if _, _, err := f.Forecast(context.Background(), 0); err == nil {
		t.Error("Horizont 0 akzeptiert, erwartet Fehler")
	}

	untrained := &TransformerForecaster{config: smallConfig()}
	if _, _, err := untrained.Forecast(context.Background(), 1); !errors.Is(err, ErrNotTrained) {
		t.Errorf("Fehler %v, erwartet ErrNotTrained", err)
	}
}

func TestTrainTargetColumn(t *testing.T) {
	f, _ := trainedForecaster(t, func(cfg *TransformerConfig) {
		idx := 1
		cfg.TargetSeqIndex = &idx
	})

	forecast, stderr, err := f.Forecast(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if forecast.Dim() != 1 || forecast.Names()[0] != "drift" {
		t.Fatalf("Zielprognose %v, erwartet nur drift", forecast.Names())
	}
	if stderr.Dim() != 1 {
		t.Fatalf("Standardfehler mit %d Spalten, erwartet 1", stderr.Dim())
	}
}

func TestTrainRejectsBadTarget(t *testing.T) {
	cfg := smallConfig()
	cfg.EncoderInputSize = 0
	cfg.DecoderInputSize = 0
	idx := 5
	cfg.TargetSeqIndex = &idx

	f := &TransformerForecaster{config: cfg}
	if _, err := f.Train(context.Background(), hourlySeries(60)); err == nil {
		t.Fatal("target_seq_index 5 bei zwei Variablen akzeptiert, erwartet Fehler")
	}
}

func TestTrainHonorsContext(t *testing.T) {
	cfg := smallConfig()
	cfg.EncoderInputSize = 0
	cfg.DecoderInputSize = 0

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &TransformerForecaster{config: cfg}
	if _, err := f.Train(ctx, hourlySeries(60)); !errors.Is(err, context.Canceled) {
		t.Fatalf("Fehler %v, erwartet context.Canceled", err)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	f, _ := trainedForecaster(t, nil)

	before, beforeErr, err := f.Forecast(context.Background(), 4)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "model.mcf")
	if err := f.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := models.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	tf, ok := loaded.(*TransformerForecaster)
	if !ok {
		t.Fatalf("Typ %T, erwartet *TransformerForecaster", loaded)
	}
	if got := tf.Config().EncoderInputSize; got != 2 {
		t.Errorf("geladene Eingangsgroesse %d, erwartet 2", got)
	}

	after, afterErr, err := tf.Forecast(context.Background(), 4)
	if err != nil {
		t.Fatal(err)
	}
	for j := 0; j < before.Dim(); j++ {
		b, a := before.Column(j).Values(), after.Column(j).Values()
		for i := range b {
			if math.Abs(b[i]-a[i]) > 1e-5 {
				t.Fatalf("Spalte %d Punkt %d: %v nach Laden %v", j, i, b[i], a[i])
			}
		}
		be, ae := beforeErr.Column(j).Values(), afterErr.Column(j).Values()
		for i := range be {
			if math.Abs(be[i]-ae[i]) > 1e-5 {
				t.Fatalf("Standardfehler Spalte %d Punkt %d: %v nach Laden %v", j, i, be[i], ae[i])
			}
		}
	}
}

func TestSaveRequiresTraining(t *testing.T) {
	f := &TransformerForecaster{config: smallConfig()}
	if err := f.Save(filepath.Join(t.TempDir(), "model.mcf")); !errors.Is(err, ErrNotTrained) {
		t.Errorf("Fehler %v, erwartet ErrNotTrained", err)
	}
}

func TestConfidenceBounds(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{start, start.Add(time.Hour)}
	forecast, _ := ts.FromMatrix([]string{"x"}, times, [][]float64{{10}, {20}})
	stderr, _ := ts.FromMatrix([]string{"x_err"}, times, [][]float64{{2}, {4}})

	lo, hi, err := ConfidenceBounds(forecast, stderr, 0.95)
	if err != nil {
		t.Fatal(err)
	}

	// z(0.975) = 1.95996
	loVals := lo.Column(0).Values()
	hiVals := hi.Column(0).Values()
	if math.Abs(loVals[0]-(10-1.959964*2)) > 1e-3 || math.Abs(hiVals[0]-(10+1.959964*2)) > 1e-3 {
		t.Errorf("Band [%v, %v] um 10, erwartet +-3.92", loVals[0], hiVals[0])
	}
	if math.Abs(loVals[1]-(20-1.959964*4)) > 1e-3 {
		t.Errorf("unteres Band %v, erwartet 12.16", loVals[1])
	}

	if _, _, err := ConfidenceBounds(forecast, stderr, 1.5); err == nil {
		t.Error("Ueberdeckung 1.5 akzeptiert, erwartet Fehler")
	}
}
