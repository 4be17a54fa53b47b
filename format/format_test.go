package format

import (
	"testing"
	"time"
)

func TestHumanBytes(t *testing.T) {
	// Tabelle: Eingabe in Bytes, erwartete Ausgabe
	cases := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{999, "999 B"},
		{1000, "1.0 kB"},
		{1234567, "1.2 MB"},
		{7_600_000_000, "7.6 GB"},
	}

	for _, tt := range cases {
		if got := HumanBytes(tt.input); got != tt.expected {
			t.Errorf("HumanBytes(%d) = %q, erwartet %q", tt.input, got, tt.expected)
		}
	}
}

func TestHumanNumber(t *testing.T) {
	cases := []struct {
		input    uint64
		expected string
	}{
		{25, "25"},
		{1000, "1K"},
		{12_400_000, "12.4M"},
		{7_000_000_000, "7B"},
	}

	for _, tt := range cases {
		if got := HumanNumber(tt.input); got != tt.expected {
			t.Errorf("HumanNumber(%d) = %q, erwartet %q", tt.input, got, tt.expected)
		}
	}
}

func TestHumanDuration(t *testing.T) {
	cases := []struct {
		input    time.Duration
		expected string
	}{
		{500 * time.Millisecond, "Less than a second"},
		{42 * time.Second, "42 seconds"},
		{90 * time.Second, "About a minute"},
		{30 * time.Minute, "30 minutes"},
		{5 * time.Hour, "5 hours"},
		{72 * time.Hour, "3 days"},
	}

	for _, tt := range cases {
		if got := HumanDuration(tt.input); got != tt.expected {
			t.Errorf("HumanDuration(%v) = %q, erwartet %q", tt.input, got, tt.expected)
		}
	}
}

func TestHumanTime(t *testing.T) {
	var zero time.Time
	if got := HumanTime(zero, "Never"); got != "Never" {
		t.Errorf("HumanTime(zero) = %q, erwartet %q", got, "Never")
	}

	past := time.Now().Add(-2 * time.Hour)
	if got := HumanTime(past, ""); got != "2 hours ago" {
		t.Errorf("HumanTime(-2h) = %q, erwartet %q", got, "2 hours ago")
	}
}
