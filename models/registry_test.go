package models

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nehal119/merlion-testing/fs/mcf"
	"github.com/nehal119/merlion-testing/ts"
)

// stubForecaster haelt nur das fest, was das Laden durchreicht.
type stubForecaster struct {
	config []byte
	loaded *mcf.File
}

func (s *stubForecaster) Train(context.Context, *ts.TimeSeries) (*TrainStats, error) {
	return &TrainStats{}, nil
}

func (s *stubForecaster) Forecast(context.Context, int) (*ts.TimeSeries, *ts.TimeSeries, error) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out, err := ts.NewTimeSeries(ts.UnivariateFromPairs("y", []time.Time{start}, []float64{1}))
	return out, nil, err
}

func (s *stubForecaster) Save(string) error { return nil }

func (s *stubForecaster) LoadCheckpoint(f *mcf.File) error {
	s.loaded = f
	return nil
}

func init() {
	Register("stub", func(config []byte) (Forecaster, error) {
		return &stubForecaster{config: config}, nil
	})
}

func TestRegistryNew(t *testing.T) {
	m, err := New("stub", []byte(`{"x":1}`))
	if err != nil {
		t.Fatal(err)
	}
	if string(m.(*stubForecaster).config) != `{"x":1}` {
		t.Error("Konfiguration nicht an den Builder durchgereicht")
	}
}

func TestRegistryUnknownSuggests(t *testing.T) {
	_, err := New("stup", nil)
	if err == nil {
		t.Fatal("unbekannte Architektur ohne Fehler")
	}
	if !strings.Contains(err.Error(), `"stub"`) {
		t.Errorf("Fehler %q ohne Vorschlag fuer stub", err)
	}
}

func TestRegistryUnknownFarAway(t *testing.T) {
	_, err := New("xylophon", nil)
	if err == nil {
		t.Fatal("unbekannte Architektur ohne Fehler")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("Fehler %q schlaegt trotz grosser Distanz vor", err)
	}
}

func TestRegisterTwicePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("doppelte Registrierung ohne panic")
		}
	}()
	Register("stub", func([]byte) (Forecaster, error) { return nil, nil })
}

func TestArchitecturesSorted(t *testing.T) {
	names := Architectures()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("Architectures %v nicht sortiert", names)
		}
	}
}

func TestLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stub.mcf")
	kv := mcf.KV{
		KeyArchitecture: "stub",
		KeyConfig:       `{"dim":2}`,
	}
	if err := mcf.WriteFile(path, kv, nil); err != nil {
		t.Fatal(err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	sf := m.(*stubForecaster)
	if string(sf.config) != `{"dim":2}` {
		t.Errorf("Konfiguration %q, erwartet {\"dim\":2}", sf.config)
	}
	if sf.loaded == nil {
		t.Error("LoadCheckpoint nicht aufgerufen")
	}
}

func TestLoadMissingArchitecture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.mcf")
	if err := mcf.WriteFile(path, mcf.KV{}, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Checkpoint ohne Architektur ohne Fehler")
	}
}
