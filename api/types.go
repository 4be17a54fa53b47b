// Package api - Wire-Typen und Client fuer den Prognose-Service.
// Dieses Modul enthaelt die Request- und Response-Strukturen,
// der Client selbst liegt in client.go.
package api

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/nehal119/merlion-testing/ts"
)

// StatusError wird fuer HTTP-Fehlerantworten des Servers verwendet.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		return "something went wrong, please see the server logs for details"
	}
}

// Series ist eine multivariate Zeitreihe auf dem Draht: eine
// Wertezeile je Zeitstempel, Spalten in der Reihenfolge von Names.
type Series struct {
	Names  []string    `json:"names"`
	Times  []time.Time `json:"times"`
	Values [][]float64 `json:"values"`
}

// FromTimeSeries verpackt eine Zeitreihe fuer den Transport.
func FromTimeSeries(t *ts.TimeSeries) *Series {
	return &Series{Names: t.Names(), Times: t.Times(), Values: t.Matrix()}
}

// TimeSeries packt die Draht-Form wieder in eine Zeitreihe aus.
func (s *Series) TimeSeries() (*ts.TimeSeries, error) {
	if s == nil || len(s.Times) == 0 {
		return nil, ts.ErrEmpty
	}
	if len(s.Times) != len(s.Values) {
		return nil, fmt.Errorf("series has %d times for %d rows", len(s.Times), len(s.Values))
	}
	return ts.FromMatrix(s.Names, s.Times, s.Values)
}

// TrainRequest startet ein Training. Series traegt die Daten inline.
type TrainRequest struct {
	Model  string          `json:"model"`
	Config json.RawMessage `json:"config,omitempty"`
	Series *Series         `json:"series"`
}

// TrainResponse fasst einen abgeschlossenen Lauf zusammen.
type TrainResponse struct {
	Model         string        `json:"model"`
	RunID         string        `json:"run_id"`
	Epochs        int           `json:"epochs"`
	BestEpoch     int           `json:"best_epoch"`
	TrainLoss     []float64     `json:"train_loss"`
	ValidLoss     []float64     `json:"valid_loss,omitempty"`
	TotalDuration time.Duration `json:"total_duration"`
}

// ForecastRequest fragt eine Prognose ueber horizon Schritte an.
// Level > 0 fuegt Konfidenzbaender hinzu, etwa 0.95.
type ForecastRequest struct {
	Model     string    `json:"model"`
	Horizon   int       `json:"horizon"`
	Level     float64   `json:"level,omitempty"`
	KeepAlive *Duration `json:"keep_alive,omitempty"`
}

// ForecastResponse traegt Prognose, Standardfehler und optional die
// Konfidenzbaender.
type ForecastResponse struct {
	Model    string  `json:"model"`
	Forecast *Series `json:"forecast"`
	Stderr   *Series `json:"stderr,omitempty"`
	Lower    *Series `json:"lower,omitempty"`
	Upper    *Series `json:"upper,omitempty"`
}

// ModelInfo beschreibt ein gespeichertes Modell in Listen.
type ModelInfo struct {
	Name         string    `json:"name"`
	Architecture string    `json:"architecture,omitempty"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListResponse listet alle gespeicherten Modelle.
type ListResponse struct {
	Models []ModelInfo `json:"models"`
}

// ShowRequest fragt Details eines Modells an.
type ShowRequest struct {
	Model string `json:"model"`
}

// ShowResponse beschreibt einen Checkpoint samt Trainingszustand.
type ShowResponse struct {
	Name         string          `json:"name"`
	Architecture string          `json:"architecture"`
	Config       json.RawMessage `json:"config,omitempty"`
	Variables    []string        `json:"variables,omitempty"`
	Tensors      int             `json:"tensors"`
	Parameters   int64           `json:"parameters"`
	Trained      bool            `json:"trained"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Duration ist ein JSON-serialisierbarer time.Duration Wrapper.
// Zahlen werden als Sekunden gelesen, Strings als Go-Dauern ("10m").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	if d.Duration < 0 {
		return []byte("-1"), nil
	}
	return []byte("\"" + d.Duration.String() + "\""), nil
}

func (d *Duration) UnmarshalJSON(b []byte) (err error) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	d.Duration = 5 * time.Minute

	switch t := v.(type) {
	case float64:
		if t < 0 {
			d.Duration = time.Duration(math.MaxInt64)
		} else {
			d.Duration = time.Duration(t * float64(time.Second))
		}
	case string:
		d.Duration, err = time.ParseDuration(t)
		if err != nil {
			return err
		}
		if d.Duration < 0 {
			d.Duration = time.Duration(math.MaxInt64)
		}
	default:
		return fmt.Errorf("Unsupported type: '%s'", reflect.TypeOf(v))
	}

	return nil
}
