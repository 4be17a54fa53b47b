// Package model - Kernmodul fuer Model-Namen und Validierung
// Enthaelt: Name-Typ, Parsing- und Validierungsfunktionen
package model

import (
	"errors"
	"fmt"
	"strings"
)

// Errors
var (
	// ErrInvalidName kennzeichnet einen Namen, der nicht als Datei- und
	// API-Bezeichner verwendet werden kann.
	ErrInvalidName = errors.New("invalid model name")
)

// MaxNameLength begrenzt Namen auf eine dateisystemfreundliche Laenge.
const MaxNameLength = 128

// Name is a validated forecaster name. Names double as file stems in the
// models directory and as path elements in the HTTP API, so the character
// set is restricted accordingly.
type Name struct {
	Model string
}

// ParseName parses and validates s. The zero Name is returned together
// with ErrInvalidName when s cannot be used as a model name.
func ParseName(s string) (Name, error) {
	s = strings.TrimSpace(s)
	n := Name{Model: s}
	if !n.IsValid() {
		return Name{}, fmt.Errorf("%w: %q", ErrInvalidName, s)
	}
	return n, nil
}

// IsValid reports whether the name is non-empty, within length limits and
// restricted to [a-zA-Z0-9._-], not starting with a dot or dash.
func (n Name) IsValid() bool {
	if n.Model == "" || len(n.Model) > MaxNameLength {
		return false
	}
	if n.Model[0] == '.' || n.Model[0] == '-' {
		return false
	}
	for _, r := range n.Model {
		if !isValidNameRune(r) {
			return false
		}
	}
	return true
}

func (n Name) String() string {
	return n.Model
}

// Filename gibt den Dateinamen des Checkpoints im Model-Verzeichnis zurueck.
func (n Name) Filename() string {
	return n.Model + ".mcf"
}

func isValidNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '.' || r == '_' || r == '-':
		return true
	}
	return false
}
