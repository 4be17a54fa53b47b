package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nehal119/merlion-testing/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runs.db")

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PutModel("m", "/tmp/m.mcf", "{}"); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// Wiederoeffnen laesst Schema und Daten unveraendert.
	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.GetModel("m"); err != nil {
		t.Fatalf("Modell nach Wiederoeffnen verloren: %v", err)
	}
}

func TestModelCRUD(t *testing.T) {
	s := openTestStore(t)

	if err := s.PutModel("demand", "/models/demand.mcf", `{"model_dim":512}`); err != nil {
		t.Fatal(err)
	}

	m, err := s.GetModel("demand")
	if err != nil {
		t.Fatal(err)
	}
	if m.Path != "/models/demand.mcf" || m.Config != `{"model_dim":512}` {
		t.Errorf("Modell %+v, erwartet Pfad und Konfiguration", m)
	}
	if m.CreatedAt.IsZero() {
		t.Error("CreatedAt leer, erwartet Zeitstempel")
	}

	// Upsert ueberschreibt den Pfad, nicht den Namen.
	if err := s.PutModel("demand", "/models/demand-v2.mcf", "{}"); err != nil {
		t.Fatal(err)
	}
	m, _ = s.GetModel("demand")
	if m.Path != "/models/demand-v2.mcf" {
		t.Errorf("Pfad %s nach Upsert, erwartet demand-v2", m.Path)
	}

	list, err := s.ListModels()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != "demand" {
		t.Errorf("Liste %+v, erwartet genau demand", list)
	}

	if err := s.DeleteModel("demand"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetModel("demand"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Fehler %v nach Loeschen, erwartet ErrNotFound", err)
	}
	if err := s.DeleteModel("demand"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Fehler %v beim Doppel-Loeschen, erwartet ErrNotFound", err)
	}
}

func TestRecordRunAndMetrics(t *testing.T) {
	s := openTestStore(t)

	valid := []float64{0.9, 0.7, 0.8}
	stats := &models.TrainStats{
		Epochs:    3,
		TrainLoss: []float64{1.0, 0.8, 0.6},
		ValidLoss: valid,
		BestEpoch: 2,
	}
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	id, err := s.RecordRun("demand", stats, started, 90*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("leere Lauf-ID")
	}

	runs, err := s.ListRuns("demand", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("%d Laeufe, erwartet 1", len(runs))
	}
	r := runs[0]
	if r.ID != id || r.Epochs != 3 || r.TrainLoss != 0.6 {
		t.Errorf("Lauf %+v, erwartet Epochen 3 und Trainloss 0.6", r)
	}
	if r.ValidLoss == nil || *r.ValidLoss != 0.8 {
		t.Errorf("Validloss %v, erwartet 0.8", r.ValidLoss)
	}
	if r.Duration != 90*time.Second {
		t.Errorf("Dauer %v, erwartet 90s", r.Duration)
	}
	if !r.StartedAt.Equal(started) {
		t.Errorf("Start %v, erwartet %v", r.StartedAt, started)
	}

	metrics, err := s.RunMetrics(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 3 {
		t.Fatalf("%d Epochen, erwartet 3", len(metrics))
	}
	if metrics[1].Epoch != 2 || metrics[1].TrainLoss != 0.8 || *metrics[1].ValidLoss != 0.7 {
		t.Errorf("Epoche 2: %+v", metrics[1])
	}
}

func TestListRunsFilterAndLimit(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, model := range []string{"a", "b", "a"} {
		stats := &models.TrainStats{Epochs: 1, TrainLoss: []float64{float64(i)}}
		if _, err := s.RecordRun(model, stats, base.Add(time.Duration(i)*time.Hour), time.Second); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListRuns("", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].TrainLoss != 2 {
		t.Fatalf("alle Laeufe %+v, erwartet 3 mit dem neuesten zuerst", all)
	}

	onlyA, err := s.ListRuns("a", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(onlyA) != 2 {
		t.Fatalf("%d Laeufe fuer a, erwartet 2", len(onlyA))
	}

	limited, err := s.ListRuns("", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Fatalf("%d Laeufe mit Limit 2", len(limited))
	}
}

func TestRunWithoutValidation(t *testing.T) {
	s := openTestStore(t)

	stats := &models.TrainStats{Epochs: 1, TrainLoss: []float64{0.5}}
	id, err := s.RecordRun("m", stats, time.Now(), time.Second)
	if err != nil {
		t.Fatal(err)
	}

	runs, _ := s.ListRuns("m", 0)
	if runs[0].ValidLoss != nil {
		t.Errorf("Validloss %v ohne Validierung, erwartet nil", *runs[0].ValidLoss)
	}
	metrics, _ := s.RunMetrics(id)
	if metrics[0].ValidLoss != nil {
		t.Errorf("Epochen-Validloss %v, erwartet nil", *metrics[0].ValidLoss)
	}
}

func TestRunMetricsMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.RunMetrics("no-such-run"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Fehler %v, erwartet ErrNotFound", err)
	}
}
