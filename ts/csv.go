// Modul: csv.go
// Beschreibung: CSV-Import und -Export fuer Zeitreihen.
// Erste Spalte ist der Zeitstempel, jede weitere Spalte eine Variable.
// Zeitstempel werden als RFC3339, "2006-01-02 15:04:05", "2006-01-02"
// oder Unix-Sekunden akzeptiert.
package ts

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parst einen einzelnen Zeitstempel in den bekannten Formaten.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(epoch, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// ReadCSV liest eine multivariate Zeitreihe aus r.
func ReadCSV(r io.Reader) (*TimeSeries, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("csv needs a timestamp column and at least one value column")
	}

	names := header[1:]
	var times []time.Time
	var rows [][]float64

	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("csv line %d has %d fields, expected %d", line, len(record), len(header))
		}

		t, err := ParseTime(record[0])
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}

		row := make([]float64, len(names))
		for j, field := range record[1:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("csv line %d column %q: %w", line, names[j], err)
			}
			row[j] = v
		}

		times = append(times, t)
		rows = append(rows, row)
	}

	return FromMatrix(names, times, rows)
}

// ReadCSVFile liest eine Zeitreihe aus einer Datei.
func ReadCSVFile(path string) (*TimeSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// WriteCSVFile schreibt die Zeitreihe in eine Datei.
func WriteCSVFile(path string, t *TimeSeries) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := WriteCSV(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteCSV schreibt die Zeitreihe im Importformat nach w.
func WriteCSV(w io.Writer, t *TimeSeries) error {
	cw := csv.NewWriter(w)

	header := append([]string{"timestamp"}, t.Names()...)
	if err := cw.Write(header); err != nil {
		return err
	}

	times := t.Times()
	for i, row := range t.Matrix() {
		record := make([]string, 0, len(row)+1)
		record = append(record, times[i].UTC().Format(time.RFC3339))
		for _, v := range row {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
