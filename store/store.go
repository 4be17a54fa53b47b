// store.go - SQLite-Ablage fuer Modelle und Trainingslaeufe
// Enthaelt: Store-Struct, Open, Schema-Initialisierung, Close
//
// SQLite verwaltet sein eigenes Locking fuer konkurrierende Zugriffe,
// der WAL-Modus laesst Leser und Schreiber nebeneinander laufen.
// Application-Level-Locks sind deshalb nicht noetig.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite-Treiber registrieren

	"github.com/nehal119/merlion-testing/envconfig"
)

// currentSchemaVersion wird bei Schema-Aenderungen erhoeht.
const currentSchemaVersion = 1

// ErrNotFound kennzeichnet fehlende Modelle oder Laeufe.
var ErrNotFound = errors.New("not found")

// Store haelt die Verbindung zur Laufdatenbank.
type Store struct {
	conn *sql.DB
}

// Open oeffnet die Datenbank unter path. Ein leerer Pfad verwendet
// die Konfiguration aus der Umgebung.
func Open(path string) (*Store, error) {
	if path == "" {
		path = envconfig.Database()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	return s, nil
}

// Close setzt einen WAL-Checkpoint und schliesst die Verbindung.
func (s *Store) Close() error {
	_, _ = s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE);")
	return s.conn.Close()
}

func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS models (
		name       TEXT PRIMARY KEY,
		path       TEXT NOT NULL,
		config     TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		model       TEXT NOT NULL,
		started_at  TIMESTAMP NOT NULL,
		duration_ns INTEGER NOT NULL DEFAULT 0,
		epochs      INTEGER NOT NULL DEFAULT 0,
		train_loss  REAL,
		valid_loss  REAL
	);

	CREATE TABLE IF NOT EXISTS metrics (
		run_id     TEXT NOT NULL,
		epoch      INTEGER NOT NULL,
		train_loss REAL,
		valid_loss REAL,
		PRIMARY KEY (run_id, epoch),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_model ON runs(model, started_at);
	`
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var version int
	if err := s.conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, currentSchemaVersion)
	}
	if version < currentSchemaVersion {
		// Platz fuer kuenftige Migrationen; bisher nur Versionsstempel.
		if _, err := s.conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
	}
	return nil
}
