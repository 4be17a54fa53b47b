// Modul: univariate.go
// Beschreibung: Einzelne Zeitreihe als geordnete Zeit->Wert-Abbildung.
// Ein Treemap haelt die Beobachtungen nach Zeitstempel sortiert und
// dedupliziert doppelte Zeitstempel beim Einfuegen (letzter Wert gewinnt).
package ts

import (
	"time"

	"github.com/emirpasic/gods/v2/maps/treemap"
)

// UnivariateTimeSeries ist eine benannte Folge von (Zeit, Wert)-Paaren.
type UnivariateTimeSeries struct {
	name   string
	points *treemap.Map[int64, float64]
}

// NewUnivariate creates an empty series with the given variable name.
func NewUnivariate(name string) *UnivariateTimeSeries {
	return &UnivariateTimeSeries{
		name:   name,
		points: treemap.New[int64, float64](),
	}
}

// UnivariateFromPairs creates a series from parallel time and value slices.
// Inputs need not be sorted; duplicate timestamps keep the last value.
func UnivariateFromPairs(name string, times []time.Time, values []float64) *UnivariateTimeSeries {
	u := NewUnivariate(name)
	for i, t := range times {
		u.Put(t, values[i])
	}
	return u
}

func (u *UnivariateTimeSeries) Name() string { return u.name }

func (u *UnivariateTimeSeries) Len() int { return u.points.Size() }

// Put fuegt eine Beobachtung ein oder ueberschreibt sie.
func (u *UnivariateTimeSeries) Put(t time.Time, v float64) {
	u.points.Put(t.Unix(), v)
}

// Get liefert den Wert zum exakten Zeitstempel.
func (u *UnivariateTimeSeries) Get(t time.Time) (float64, bool) {
	return u.points.Get(t.Unix())
}

// Times returns all timestamps in ascending order.
func (u *UnivariateTimeSeries) Times() []time.Time {
	keys := u.points.Keys()
	times := make([]time.Time, len(keys))
	for i, k := range keys {
		times[i] = time.Unix(k, 0).UTC()
	}
	return times
}

// Values returns all values ordered by timestamp.
func (u *UnivariateTimeSeries) Values() []float64 {
	return u.points.Values()
}

// First returns the earliest observation.
func (u *UnivariateTimeSeries) First() (time.Time, float64, bool) {
	if u.points.Empty() {
		return time.Time{}, 0, false
	}
	k, v, _ := u.points.Min()
	return time.Unix(k, 0).UTC(), v, true
}

// Last returns the latest observation.
func (u *UnivariateTimeSeries) Last() (time.Time, float64, bool) {
	if u.points.Empty() {
		return time.Time{}, 0, false
	}
	k, v, _ := u.points.Max()
	return time.Unix(k, 0).UTC(), v, true
}

// Window returns a copy restricted to [start, end).
func (u *UnivariateTimeSeries) Window(start, end time.Time) *UnivariateTimeSeries {
	out := NewUnivariate(u.name)
	s, e := start.Unix(), end.Unix()
	it := u.points.Iterator()
	for it.Next() {
		k := it.Key()
		if k < s {
			continue
		}
		if k >= e {
			break
		}
		out.points.Put(k, it.Value())
	}
	return out
}
