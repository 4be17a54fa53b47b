// Modul: timeseries.go
// Beschreibung: Multivariate Zeitreihe als Buendel zeitlich ausgerichteter
// Einzelreihen. Alle Operationen setzen identische Zeitstempel ueber die
// Variablen voraus; NewTimeSeries prueft das beim Konstruieren.
package ts

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMisaligned kennzeichnet Einzelreihen mit abweichenden Zeitstempeln.
	ErrMisaligned = errors.New("univariates are not aligned")

	// ErrEmpty kennzeichnet eine leere Zeitreihe.
	ErrEmpty = errors.New("empty time series")
)

// TimeSeries ist eine multivariate Zeitreihe.
type TimeSeries struct {
	univariates []*UnivariateTimeSeries
}

// NewTimeSeries bundles univariates into a multivariate series. All
// univariates must share the exact same timestamps.
func NewTimeSeries(univariates ...*UnivariateTimeSeries) (*TimeSeries, error) {
	if len(univariates) == 0 {
		return nil, ErrEmpty
	}

	base := univariates[0].points.Keys()
	for _, u := range univariates[1:] {
		keys := u.points.Keys()
		if len(keys) != len(base) {
			return nil, fmt.Errorf("%w: %q has %d points, %q has %d",
				ErrMisaligned, univariates[0].name, len(base), u.name, len(keys))
		}
		for i, k := range keys {
			if k != base[i] {
				return nil, fmt.Errorf("%w: timestamp mismatch between %q and %q",
					ErrMisaligned, univariates[0].name, u.name)
			}
		}
	}

	return &TimeSeries{univariates: univariates}, nil
}

// FromMatrix creates a series from row-major data: rows[i][j] is the value
// of variable j at times[i].
func FromMatrix(names []string, times []time.Time, rows [][]float64) (*TimeSeries, error) {
	if len(times) == 0 || len(names) == 0 {
		return nil, ErrEmpty
	}
	if len(rows) != len(times) {
		return nil, fmt.Errorf("have %d rows for %d timestamps", len(rows), len(times))
	}

	univariates := make([]*UnivariateTimeSeries, len(names))
	for j, name := range names {
		univariates[j] = NewUnivariate(name)
	}
	for i, row := range rows {
		if len(row) != len(names) {
			return nil, fmt.Errorf("row %d has %d values for %d variables", i, len(row), len(names))
		}
		for j := range names {
			univariates[j].Put(times[i], row[j])
		}
	}

	return NewTimeSeries(univariates...)
}

// Dim gibt die Anzahl der Variablen zurueck.
func (t *TimeSeries) Dim() int { return len(t.univariates) }

// Len gibt die Anzahl der Zeitpunkte zurueck.
func (t *TimeSeries) Len() int { return t.univariates[0].Len() }

// Names returns the variable names in column order.
func (t *TimeSeries) Names() []string {
	names := make([]string, len(t.univariates))
	for i, u := range t.univariates {
		names[i] = u.name
	}
	return names
}

// Times returns the shared timestamps in ascending order.
func (t *TimeSeries) Times() []time.Time {
	return t.univariates[0].Times()
}

// Column returns the univariate at index j.
func (t *TimeSeries) Column(j int) *UnivariateTimeSeries {
	return t.univariates[j]
}

// Matrix returns row-major values: out[i][j] is variable j at timestamp i.
func (t *TimeSeries) Matrix() [][]float64 {
	cols := make([][]float64, t.Dim())
	for j, u := range t.univariates {
		cols[j] = u.Values()
	}

	rows := make([][]float64, t.Len())
	for i := range rows {
		row := make([]float64, t.Dim())
		for j := range row {
			row[j] = cols[j][i]
		}
		rows[i] = row
	}
	return rows
}

// Window returns a copy restricted to [start, end).
func (t *TimeSeries) Window(start, end time.Time) *TimeSeries {
	univariates := make([]*UnivariateTimeSeries, len(t.univariates))
	for i, u := range t.univariates {
		univariates[i] = u.Window(start, end)
	}
	return &TimeSeries{univariates: univariates}
}

// Bisect splits the series at ts: the left part holds all points before ts,
// the right part all points at or after ts.
func (t *TimeSeries) Bisect(ts time.Time) (left, right *TimeSeries) {
	var max time.Time
	if last, _, ok := t.univariates[0].Last(); ok {
		max = last.Add(time.Second)
	}
	var min time.Time
	if first, _, ok := t.univariates[0].First(); ok {
		min = first
	}
	return t.Window(min, ts), t.Window(ts, max)
}

// TailRows returns the last n timestamps as a copy. If fewer rows exist the
// whole series is returned.
func (t *TimeSeries) TailRows(n int) *TimeSeries {
	times := t.Times()
	if n >= len(times) {
		return t
	}
	start := times[len(times)-n]
	end := times[len(times)-1].Add(time.Second)
	return t.Window(start, end)
}
