// Modul: timefeatures.go
// Beschreibung: Kalendermerkmale fuer die Zeitstempel-Einbettung.
// TimeFeatures liefert reellwertige, auf [-0.5, 0.5] skalierte
// Merkmale je Abtastfrequenz, CalendarMarks die ganzzahligen Indizes
// fuer Tabellen-Einbettungen.
package forecast

import (
	"fmt"
	"strings"
	"time"
)

type timeFeature func(t time.Time) float32

func hourOfDay(t time.Time) float32 {
	return float32(t.Hour())/23.0 - 0.5
}

func minuteOfHour(t time.Time) float32 {
	return float32(t.Minute())/59.0 - 0.5
}

func secondOfMinute(t time.Time) float32 {
	return float32(t.Second())/59.0 - 0.5
}

// dayOfWeek zaehlt ab Montag, wie die Einbettungstabellen es erwarten.
func dayOfWeek(t time.Time) float32 {
	return float32((int(t.Weekday())+6)%7)/6.0 - 0.5
}

func dayOfMonth(t time.Time) float32 {
	return float32(t.Day()-1)/30.0 - 0.5
}

func dayOfYear(t time.Time) float32 {
	return float32(t.YearDay()-1)/365.0 - 0.5
}

func monthOfYear(t time.Time) float32 {
	return float32(int(t.Month())-1)/11.0 - 0.5
}

func weekOfYear(t time.Time) float32 {
	_, week := t.ISOWeek()
	return float32(week-1)/52.0 - 0.5
}

// featuresByFreq ordnet jeder Abtastfrequenz ihre Merkmalsliste zu,
// vom groebsten zum feinsten Raster.
var featuresByFreq = map[string][]timeFeature{
	"a": {monthOfYear},
	"m": {monthOfYear},
	"w": {dayOfMonth, weekOfYear},
	"d": {dayOfWeek, dayOfMonth, dayOfYear},
	"b": {dayOfWeek, dayOfMonth, dayOfYear},
	"h": {hourOfDay, dayOfWeek, dayOfMonth, dayOfYear},
	"t": {minuteOfHour, hourOfDay, dayOfWeek, dayOfMonth, dayOfYear},
	"s": {secondOfMinute, minuteOfHour, hourOfDay, dayOfWeek, dayOfMonth, dayOfYear},
}

// TimeFeatures berechnet die skalierten Kalendermerkmale fuer jede
// Zeit. Das Ergebnis hat eine Zeile je Zeitstempel.
func TimeFeatures(times []time.Time, freq string) ([][]float32, error) {
	feats, ok := featuresByFreq[strings.ToLower(freq)]
	if !ok {
		return nil, fmt.Errorf("unknown frequency %q", freq)
	}
	rows := make([][]float32, len(times))
	for i, tm := range times {
		row := make([]float32, len(feats))
		for j, f := range feats {
			row[j] = f(tm)
		}
		rows[i] = row
	}
	return rows, nil
}

// CalendarMarks liefert die ganzzahligen Kalenderindizes in der
// Spaltenreihenfolge Monat, Tag, Wochentag, Stunde, Viertelstunde.
func CalendarMarks(times []time.Time) [][]float32 {
	rows := make([][]float32, len(times))
	for i, tm := range times {
		rows[i] = []float32{
			float32(tm.Month()),
			float32(tm.Day()),
			float32((int(tm.Weekday()) + 6) % 7),
			float32(tm.Hour()),
			float32(tm.Minute() / 15),
		}
	}
	return rows
}
