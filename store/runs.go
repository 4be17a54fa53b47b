// runs.go - Modelle und Trainingslaeufe lesen und schreiben
// Enthaelt: Model/Run/Metric-Structs, Upsert und Abfragen
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nehal119/merlion-testing/models"
)

// Model ist ein gespeicherter Checkpoint mit Konfiguration.
type Model struct {
	Name      string
	Path      string
	Config    string
	CreatedAt time.Time
}

// Run ist ein abgeschlossener Trainingslauf.
type Run struct {
	ID        string
	Model     string
	StartedAt time.Time
	Duration  time.Duration
	Epochs    int
	TrainLoss float64
	ValidLoss *float64
}

// Metric ist der Verlauf einer Epoche innerhalb eines Laufs.
type Metric struct {
	Epoch     int
	TrainLoss float64
	ValidLoss *float64
}

// PutModel legt ein Modell an oder ueberschreibt Pfad und Konfiguration.
func (s *Store) PutModel(name, path, config string) error {
	_, err := s.conn.Exec(`
		INSERT INTO models (name, path, config) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET path = excluded.path, config = excluded.config`,
		name, path, config)
	if err != nil {
		return fmt.Errorf("put model %s: %w", name, err)
	}
	return nil
}

// GetModel liefert ein Modell oder ErrNotFound.
func (s *Store) GetModel(name string) (*Model, error) {
	m := Model{Name: name}
	err := s.conn.QueryRow(
		"SELECT path, config, created_at FROM models WHERE name = ?", name).
		Scan(&m.Path, &m.Config, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("model %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get model %s: %w", name, err)
	}
	return &m, nil
}

// ListModels liefert alle Modelle, neueste zuerst.
func (s *Store) ListModels() ([]Model, error) {
	rows, err := s.conn.Query("SELECT name, path, config, created_at FROM models ORDER BY created_at DESC, name")
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var out []Model
	for rows.Next() {
		var m Model
		if err := rows.Scan(&m.Name, &m.Path, &m.Config, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteModel entfernt den Eintrag; die Laufhistorie bleibt erhalten.
func (s *Store) DeleteModel(name string) error {
	res, err := s.conn.Exec("DELETE FROM models WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete model %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("model %s: %w", name, ErrNotFound)
	}
	return nil
}

// RecordRun speichert Lauf und Epochenverlauf in einer Transaktion und
// gibt die Lauf-ID zurueck.
func (s *Store) RecordRun(model string, stats *models.TrainStats, started time.Time, duration time.Duration) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	defer tx.Rollback()

	var validLoss any
	if len(stats.ValidLoss) > 0 {
		validLoss = stats.ValidLoss[len(stats.ValidLoss)-1]
	}
	if _, err := tx.Exec(`
		INSERT INTO runs (id, model, started_at, duration_ns, epochs, train_loss, valid_loss)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(), model, started.UTC(), int64(duration), stats.Epochs, stats.FinalLoss(), validLoss); err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}

	for i, trainLoss := range stats.TrainLoss {
		var validLoss any
		if i < len(stats.ValidLoss) {
			validLoss = stats.ValidLoss[i]
		}
		if _, err := tx.Exec(
			"INSERT INTO metrics (run_id, epoch, train_loss, valid_loss) VALUES (?, ?, ?, ?)",
			id.String(), i+1, trainLoss, validLoss); err != nil {
			return "", fmt.Errorf("record metric: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	return id.String(), nil
}

// ListRuns liefert Laeufe, neueste zuerst. Ein leerer Modellname
// liefert alle, limit 0 liefert unbegrenzt.
func (s *Store) ListRuns(model string, limit int) ([]Run, error) {
	query := `SELECT id, model, started_at, duration_ns, epochs, train_loss, valid_loss FROM runs`
	args := []any{}
	if model != "" {
		query += " WHERE model = ?"
		args = append(args, model)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var duration int64
		var validLoss sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.Model, &r.StartedAt, &duration, &r.Epochs, &r.TrainLoss, &validLoss); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(duration)
		if validLoss.Valid {
			r.ValidLoss = &validLoss.Float64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunMetrics liefert den Epochenverlauf eines Laufs.
func (s *Store) RunMetrics(runID string) ([]Metric, error) {
	rows, err := s.conn.Query(
		"SELECT epoch, train_loss, valid_loss FROM metrics WHERE run_id = ? ORDER BY epoch", runID)
	if err != nil {
		return nil, fmt.Errorf("run metrics: %w", err)
	}
	defer rows.Close()

	var out []Metric
	for rows.Next() {
		var m Metric
		var validLoss sql.NullFloat64
		if err := rows.Scan(&m.Epoch, &m.TrainLoss, &validLoss); err != nil {
			return nil, err
		}
		if validLoss.Valid {
			m.ValidLoss = &validLoss.Float64
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return out, rows.Err()
}
