// Modul: forecaster.go
// Beschreibung: Gemeinsame Schnittstelle aller Prognosemodelle sowie
// das Laden gespeicherter Checkpoints. Die Architektur eines
// Checkpoints steht in seinen Metadaten, der Registry-Eintrag baut
// daraus das passende Modell.
package models

import (
	"context"
	"fmt"

	"github.com/nehal119/merlion-testing/fs/mcf"
	"github.com/nehal119/merlion-testing/ts"
)

// Forecaster trainiert auf einer Zeitreihe und prognostiziert ueber
// ihren letzten Zeitstempel hinaus.
type Forecaster interface {
	// Train passt das Modell an die Zeitreihe an.
	Train(ctx context.Context, data *ts.TimeSeries) (*TrainStats, error)

	// Forecast liefert die Prognose fuer die naechsten horizon Schritte
	// und deren Standardfehler.
	Forecast(ctx context.Context, horizon int) (forecast, stderr *ts.TimeSeries, err error)

	// Save schreibt Konfiguration, Gewichte und Trainingszustand als
	// Checkpoint.
	Save(path string) error

	// LoadCheckpoint stellt den Zustand aus einem gelesenen Checkpoint
	// wieder her.
	LoadCheckpoint(f *mcf.File) error
}

// TrainStats fasst einen Trainingslauf zusammen.
type TrainStats struct {
	Epochs    int       `json:"epochs"`
	TrainLoss []float64 `json:"train_loss"`
	ValidLoss []float64 `json:"valid_loss,omitempty"`
	BestEpoch int       `json:"best_epoch"`
}

// FinalLoss ist der Trainingsverlust der letzten Epoche.
func (s *TrainStats) FinalLoss() float64 {
	if len(s.TrainLoss) == 0 {
		return 0
	}
	return s.TrainLoss[len(s.TrainLoss)-1]
}

// Metadaten-Schluessel, die jeder Checkpoint traegt.
const (
	KeyArchitecture = "general.architecture"
	KeyConfig       = "model.config"

	// KeyVariables listet die trainierten Spaltennamen als JSON-Array.
	// Nur in Checkpoints mit Trainingszustand vorhanden.
	KeyVariables = "train.names"
)

// TensorStatePrefix kennzeichnet Tensoren mit Trainingszustand statt
// Gewichten. Ein Checkpoint ohne solche Tensoren traegt nur Gewichte.
const TensorStatePrefix = "state."

// Load liest einen Checkpoint und baut das Modell der darin benannten
// Architektur wieder auf.
func Load(path string) (Forecaster, error) {
	f, err := mcf.Open(path)
	if err != nil {
		return nil, err
	}

	arch := f.KV.String(KeyArchitecture)
	if arch == "" {
		return nil, fmt.Errorf("checkpoint %s has no architecture", path)
	}

	m, err := New(arch, []byte(f.KV.String(KeyConfig)))
	if err != nil {
		return nil, err
	}
	if err := m.LoadCheckpoint(f); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return m, nil
}
