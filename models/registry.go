// Modul: registry.go
// Beschreibung: Registry der Modellarchitekturen. Implementierungen
// registrieren sich in ihrem init, Aufrufer bauen Modelle ueber den
// Architekturnamen. Bei Tippfehlern wird die naechstgelegene bekannte
// Architektur vorgeschlagen.
package models

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/agnivade/levenshtein"
)

// Builder baut ein untrainiertes Modell aus einer JSON-Konfiguration.
// Eine leere Konfiguration ergibt die Standardwerte der Architektur.
type Builder func(config []byte) (Forecaster, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Builder{}
)

// Register traegt eine Architektur ein. Doppelte Namen sind ein
// Programmierfehler.
func Register(name string, b Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("models: architecture %q registered twice", name))
	}
	registry[name] = b
}

// New baut ein Modell der benannten Architektur.
func New(name string, config []byte) (Forecaster, error) {
	registryMu.RLock()
	b, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		if near := closest(name); near != "" {
			return nil, fmt.Errorf("unknown architecture %q (did you mean %q?)", name, near)
		}
		return nil, fmt.Errorf("unknown architecture %q", name)
	}
	return b(config)
}

// Architectures listet die registrierten Namen sortiert.
func Architectures() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	return slices.Sorted(maps.Keys(registry))
}

// closest sucht den Namen mit der kleinsten Editierdistanz, sofern sie
// klein genug ist, um ein Tippfehler zu sein.
func closest(name string) string {
	best, bestDist := "", 4
	for _, candidate := range Architectures() {
		if d := levenshtein.ComputeDistance(name, candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}
