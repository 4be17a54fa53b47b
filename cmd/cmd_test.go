// cmd_test.go - Tests fuer die CLI-Commands
// Die Commands laufen gegen einen echten HTTP-Server auf einem
// httptest-Listener, MERLION_HOST zeigt auf ihn.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nehal119/merlion-testing/models"
	"github.com/nehal119/merlion-testing/server"
	"github.com/nehal119/merlion-testing/store"
	"github.com/nehal119/merlion-testing/ts"
)

func startTestServer(t *testing.T) {
	t.Helper()

	dir := t.TempDir()
	s, err := server.NewServer(nil, filepath.Join(dir, "models"), filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	h, err := s.GenerateRoutes()
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	t.Setenv("MERLION_HOST", srv.URL)
}

func writeSeriesCSV(t *testing.T, path string, start, n int) {
	t.Helper()

	var sb strings.Builder
	sb.WriteString("time,load,drift\n")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := start; i < start+n; i++ {
		stamp := base.Add(time.Duration(i) * time.Hour)
		fmt.Fprintf(&sb, "%s,%.6f,%.6f\n", stamp.Format(time.RFC3339),
			10+3*math.Sin(2*math.Pi*float64(i)/24),
			50+0.1*float64(i))
	}
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
}

func runCLI(t *testing.T, args ...string) error {
	t.Helper()

	cli := NewCLI()
	cli.SetArgs(args)
	return cli.ExecuteContext(context.Background())
}

func TestCLITrainForecastFlow(t *testing.T) {
	startTestServer(t)
	dir := t.TempDir()

	dataPath := filepath.Join(dir, "train.csv")
	writeSeriesCSV(t, dataPath, 0, 60)

	cfgPath := filepath.Join(dir, "config.json")
	cfg := []byte(`{
		"n_past": 8, "max_forecast_steps": 4,
		"model_dim": 8, "n_heads": 2, "fcn_dim": 16,
		"num_epochs": 2, "batch_size": 8, "valid_fraction": 0.2,
		"seed": 1
	}`)
	require.NoError(t, os.WriteFile(cfgPath, cfg, 0o644))

	require.NoError(t, runCLI(t, "train", "demo", "--data", dataPath, "--config", cfgPath))

	outPath := filepath.Join(dir, "forecast.csv")
	require.NoError(t, runCLI(t, "forecast", "demo", "--horizon", "3", "--level", "0.9", "-o", outPath))

	out, err := ts.ReadCSVFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Len())
	// Prognose, Standardfehler und Baender fuer beide Variablen
	assert.Len(t, out.Names(), 8)
	assert.Contains(t, out.Names(), "load")
	assert.Contains(t, out.Names(), "load_err")
	assert.Contains(t, out.Names(), "load_lower")
	assert.Contains(t, out.Names(), "load_upper")

	holdoutPath := filepath.Join(dir, "holdout.csv")
	writeSeriesCSV(t, holdoutPath, 60, 4)
	require.NoError(t, runCLI(t, "eval", "demo", "--data", holdoutPath, "--metric", "all"))

	require.NoError(t, runCLI(t, "list"))
	require.NoError(t, runCLI(t, "show", "demo"))
	require.NoError(t, runCLI(t, "rm", "demo"))

	// Nach dem Loeschen ist das Modell weg
	err = runCLI(t, "show", "demo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestCLITrainRequiresData(t *testing.T) {
	startTestServer(t)

	err := runCLI(t, "train", "demo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data")
}

func TestCLIRuns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	t.Setenv("MERLION_DB", dbPath)

	db, err := store.Open(dbPath)
	require.NoError(t, err)
	id, err := db.RecordRun("demo", &models.TrainStats{
		Epochs:    2,
		TrainLoss: []float64{1, 0.5},
		BestEpoch: 2,
	}, time.Now(), time.Minute)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	require.NoError(t, runCLI(t, "runs"))
	require.NoError(t, runCLI(t, "runs", "demo", "--limit", "5"))
	require.NoError(t, runCLI(t, "runs", "--id", id))

	err = runCLI(t, "runs", "--id", "missing")
	require.Error(t, err)
}

func TestLoadConfigTarget(t *testing.T) {
	times := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC),
	}
	series, err := ts.FromMatrix([]string{"a", "b"}, times, [][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)

	cfgPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"n_past": 4}`), 0o644))

	raw, err := loadConfig(cfgPath, "b", series)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.EqualValues(t, 4, decoded["n_past"])
	assert.EqualValues(t, 1, decoded["target_seq_index"])

	// Unbekannte Zielspalte
	_, err = loadConfig("", "ghost", series)
	require.Error(t, err)

	// Ohne Datei und Ziel bleibt die Konfiguration leer
	raw, err = loadConfig("", "", series)
	require.NoError(t, err)
	assert.Nil(t, raw)
}
