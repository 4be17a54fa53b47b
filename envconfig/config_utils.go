// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - Bool/BoolWithDefault: Boolean-Getter
// - String: String-Getter
// - Uint/Int64: Integer-Getter mit Default-Wert
// - Seed/NumThreads: numerische Trainings-Defaults
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap/Values: Export aller Konfigurationen
package envconfig

import (
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
)

// BoolWithDefault gibt eine Funktion zurueck, die einen Bool mit Default-Wert liest
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// String gibt eine Funktion zurueck, die einen String liest
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Int64 gibt eine Funktion zurueck, die einen int64 mit Default-Wert liest
func Int64(key string, defaultValue int64) func() int64 {
	return func() int64 {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseInt(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return n
			}
		}
		return defaultValue
	}
}

// Seed gibt den globalen Trainings-Seed zurueck (0 = zufaellig)
var Seed = Int64("MERLION_SEED", 0)

// NumThreads begrenzt die CPU-Threads des Servers (GOMAXPROCS)
var NumThreads = Uint("MERLION_NUM_THREADS", uint(runtime.NumCPU()))

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	ret := map[string]EnvVar{
		"MERLION_DEBUG":       {"MERLION_DEBUG", LogLevel(), "Show additional debug information (e.g. MERLION_DEBUG=1)"},
		"MERLION_HOST":        {"MERLION_HOST", Host(), "IP Address for the merlion server (default 127.0.0.1:11534)"},
		"MERLION_KEEP_ALIVE":  {"MERLION_KEEP_ALIVE", KeepAlive(), "The duration that models stay loaded in memory (default \"5m\")"},
		"MERLION_MODELS":      {"MERLION_MODELS", Models(), "The path to the models directory"},
		"MERLION_DB":          {"MERLION_DB", Database(), "The path to the training run database"},
		"MERLION_ORIGINS":     {"MERLION_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
		"MERLION_SEED":        {"MERLION_SEED", Seed(), "Seed for weight init and batch shuffling (0 = random)"},
		"MERLION_NUM_THREADS": {"MERLION_NUM_THREADS", NumThreads(), "Maximum number of CPU threads the server may use"},

		// Proxy-Einstellungen
		"HTTP_PROXY":  {"HTTP_PROXY", String("HTTP_PROXY")(), "HTTP proxy"},
		"HTTPS_PROXY": {"HTTPS_PROXY", String("HTTPS_PROXY")(), "HTTPS proxy"},
		"NO_PROXY":    {"NO_PROXY", String("NO_PROXY")(), "No proxy"},
	}

	// Nicht-Windows: Case-sensitive Proxy-Variablen
	if runtime.GOOS != "windows" {
		ret["http_proxy"] = EnvVar{"http_proxy", String("http_proxy")(), "HTTP proxy"}
		ret["https_proxy"] = EnvVar{"https_proxy", String("https_proxy")(), "HTTPS proxy"}
		ret["no_proxy"] = EnvVar{"no_proxy", String("no_proxy")(), "No proxy"}
	}

	return ret
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
