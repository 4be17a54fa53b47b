package envconfig

import (
	"math"
	"testing"
	"time"
)

func TestHost(t *testing.T) {
	// Tabelle: MERLION_HOST-Wert und erwartetes Parse-Ergebnis
	cases := map[string]struct {
		value  string
		expect string
	}{
		"empty":               {"", "http://127.0.0.1:11534"},
		"only address":        {"1.2.3.4", "http://1.2.3.4:11534"},
		"only port":           {":1234", "http://:1234"},
		"address and port":    {"1.2.3.4:1234", "http://1.2.3.4:1234"},
		"hostname":            {"example.com", "http://example.com:11534"},
		"hostname and port":   {"example.com:1234", "http://example.com:1234"},
		"zero port":           {":0", "http://:0"},
		"too large port":      {":66000", "http://:11534"},
		"too small port":      {":-1", "http://:11534"},
		"https":               {"https://example.com", "https://example.com:443"},
		"http with port":      {"http://example.com:1234", "http://example.com:1234"},
		"trailing slash":      {"example.com/", "http://example.com:11534"},
		"trailing slash port": {"example.com:1234/", "http://example.com:1234"},
		"ipv6 localhost":      {"[::1]", "http://[::1]:11534"},
		"extra quotes":        {"\"1.2.3.4\"", "http://1.2.3.4:11534"},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("MERLION_HOST", tt.value)
			if got := Host().String(); got != tt.expect {
				t.Errorf("Host() = %q, erwartet %q", got, tt.expect)
			}
		})
	}
}

func TestKeepAlive(t *testing.T) {
	cases := map[string]time.Duration{
		"":    5 * time.Minute,
		"1m":  time.Minute,
		"10":  10 * time.Second,
		"0":   0,
		"-1":  time.Duration(math.MaxInt64),
		"-1m": time.Duration(math.MaxInt64),
		"bad": 5 * time.Minute,
	}

	for value, expect := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("MERLION_KEEP_ALIVE", value)
			if got := KeepAlive(); got != expect {
				t.Errorf("KeepAlive() = %v, erwartet %v", got, expect)
			}
		})
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]int{
		"":      0,  // INFO
		"true":  -4, // DEBUG
		"1":     -4, // DEBUG
		"2":     -8, // TRACE
		"false": 0,
	}

	for value, expect := range cases {
		t.Run("value "+value, func(t *testing.T) {
			t.Setenv("MERLION_DEBUG", value)
			if got := int(LogLevel()); got != expect {
				t.Errorf("LogLevel() = %d, erwartet %d", got, expect)
			}
		})
	}
}

func TestVar(t *testing.T) {
	cases := map[string]string{
		"value":       "value",
		" value ":     "value",
		"\"value\"":   "value",
		"'value'":     "value",
		" \"value\" ": "value",
	}

	for input, expect := range cases {
		t.Run(input, func(t *testing.T) {
			t.Setenv("MERLION_TEST", input)
			if got := Var("MERLION_TEST"); got != expect {
				t.Errorf("Var() = %q, erwartet %q", got, expect)
			}
		})
	}
}

func TestSeed(t *testing.T) {
	t.Setenv("MERLION_SEED", "42")
	if got := Seed(); got != 42 {
		t.Errorf("Seed() = %d, erwartet 42", got)
	}

	t.Setenv("MERLION_SEED", "not-a-number")
	if got := Seed(); got != 0 {
		t.Errorf("Seed() = %d, erwartet Default 0", got)
	}
}
