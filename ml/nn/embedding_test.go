package nn

import (
	"testing"

	"github.com/nehal119/merlion-testing/ml"
)

func TestSinusoidTable(t *testing.T) {
	table := sinusoidTable(2, 4)

	// Position 0: sin(0) und cos(0) im Wechsel
	near(t, "Zeile 0", table[:4], []float32{0, 1, 0, 1}, 1e-6)
	// Position 1: Frequenz 1 fuer das erste Paar, 10000^(-2/4) fuer das zweite
	near(t, "Zeile 1", table[4:], []float32{0.84147098, 0.54030231, 0.00999983, 0.99995000}, 1e-5)
}

func TestPositionalEmbedding(t *testing.T) {
	pe := NewPositionalEmbedding(4)

	out := pe.Forward(3)
	if out.Dim(0) != 1 || out.Dim(1) != 3 || out.Dim(2) != 4 {
		t.Fatalf("PositionalEmbedding-Shape %v, erwartet [1 3 4]", out.Shape())
	}
	near(t, "Position 0", out.Data()[:4], []float32{0, 1, 0, 1}, 1e-6)

	if pe.PE.RequiresGrad() {
		t.Error("Positionstabelle ist trainierbar, erwartet eingefroren")
	}
}

func TestTokenEmbedding(t *testing.T) {
	rng := ml.NewRNG(1)
	emb := NewTokenEmbedding(rng, 3, 8)

	x := ml.Randn(rng, 1, 2, 5, 3)
	out := emb.Forward(x)
	if out.Dim(0) != 2 || out.Dim(1) != 5 || out.Dim(2) != 8 {
		t.Fatalf("TokenEmbedding-Shape %v, erwartet [2 5 8]", out.Shape())
	}

	if emb.TokenConv.Bias != nil {
		t.Error("TokenEmbedding mit Bias, erwartet keinen")
	}

	ml.Sum(out).Backward()
	var nonzero bool
	for _, g := range emb.TokenConv.Weight.Grad() {
		if g != 0 {
			nonzero = true
		}
	}
	if !nonzero {
		t.Error("kein Gradient am Faltungsgewicht")
	}
}

func TestTemporalEmbeddingFixedRouting(t *testing.T) {
	te, err := NewTemporalEmbedding(nil, 4, "fixed", "h")
	if err != nil {
		t.Fatal(err)
	}
	if te.MinuteEmbed != nil {
		t.Fatal("Minuten-Einbettung bei Stundenfrequenz, erwartet keine")
	}

	// Markierung [Monat=1, Tag=2, Wochentag=3, Stunde=4, Minute=0]
	marks := ml.NewTensor([]float32{1, 2, 3, 4, 0}, 1, 1, 5)
	out := te.Forward(marks)

	month := te.MonthEmbed.(*FixedEmbedding).Emb.Weight.Data()[1*4 : 2*4]
	day := te.DayEmbed.(*FixedEmbedding).Emb.Weight.Data()[2*4 : 3*4]
	weekday := te.WeekdayEmbed.(*FixedEmbedding).Emb.Weight.Data()[3*4 : 4*4]
	hour := te.HourEmbed.(*FixedEmbedding).Emb.Weight.Data()[4*4 : 5*4]

	want := make([]float32, 4)
	for i := range want {
		want[i] = month[i] + day[i] + weekday[i] + hour[i]
	}
	near(t, "Temporal", out.Data(), want, 1e-6)
}

func TestTemporalEmbeddingMinute(t *testing.T) {
	te, err := NewTemporalEmbedding(ml.NewRNG(1), 4, "learned", "t")
	if err != nil {
		t.Fatal(err)
	}
	if te.MinuteEmbed == nil {
		t.Fatal("keine Minuten-Einbettung bei Minutenfrequenz")
	}

	// learned: fuenf trainierbare Tabellen
	if got := len(Parameters(te)); got != 5 {
		t.Errorf("Parameters = %d, erwartet 5", got)
	}

	marks := ml.NewTensor([]float32{1, 2, 3, 4, 2}, 1, 1, 5)
	out := te.Forward(marks)
	if out.Dim(2) != 4 {
		t.Errorf("Temporal-Shape %v, erwartet Breite 4", out.Shape())
	}
}

func TestTemporalEmbeddingUnknownType(t *testing.T) {
	if _, err := NewTemporalEmbedding(nil, 4, "wavelet", "h"); err == nil {
		t.Error("unbekannter Einbettungstyp ohne Fehler")
	}
}

func TestTimeFeatureEmbedding(t *testing.T) {
	tf, err := NewTimeFeatureEmbedding(ml.NewRNG(1), 8, "h")
	if err != nil {
		t.Fatal(err)
	}

	// Stundenfrequenz traegt vier Merkmale
	if got := tf.Embed.Weight.Dim(1); got != 4 {
		t.Errorf("Eingangsbreite %d, erwartet 4", got)
	}
	if tf.Embed.Bias != nil {
		t.Error("TimeFeatureEmbedding mit Bias, erwartet keinen")
	}

	marks := ml.Randn(ml.NewRNG(2), 1, 2, 6, 4)
	out := tf.Forward(marks)
	if out.Dim(0) != 2 || out.Dim(1) != 6 || out.Dim(2) != 8 {
		t.Errorf("TimeFeature-Shape %v, erwartet [2 6 8]", out.Shape())
	}
}

func TestTimeFeatureDim(t *testing.T) {
	cases := map[string]int{"h": 4, "t": 5, "s": 6, "m": 1, "a": 1, "w": 2, "d": 3, "b": 3}
	for freq, want := range cases {
		got, err := TimeFeatureDim(freq)
		if err != nil {
			t.Errorf("TimeFeatureDim(%q): %v", freq, err)
		}
		if got != want {
			t.Errorf("TimeFeatureDim(%q) = %d, erwartet %d", freq, got, want)
		}
	}

	if _, err := TimeFeatureDim("x"); err == nil {
		t.Error("unbekannte Frequenz ohne Fehler")
	}
}

func TestDataEmbedding(t *testing.T) {
	rng := ml.NewRNG(1)
	de, err := NewDataEmbedding(rng, 2, 8, "timeF", "h", 0.1)
	if err != nil {
		t.Fatal(err)
	}

	x := ml.Randn(rng, 1, 2, 4, 2)
	marks := ml.Randn(rng, 1, 2, 4, 4)
	out := de.Forward(x, marks)
	if out.Dim(0) != 2 || out.Dim(1) != 4 || out.Dim(2) != 8 {
		t.Fatalf("DataEmbedding-Shape %v, erwartet [2 4 8]", out.Shape())
	}

	// ausserhalb des Trainings ist Dropout inaktiv und Forward deterministisch
	near(t, "deterministisch", de.Forward(x, marks).Data(), out.Data(), 0)
}

func TestDataEmbeddingFixed(t *testing.T) {
	de, err := NewDataEmbedding(ml.NewRNG(1), 2, 8, "fixed", "h", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := de.TemporalEmbedding.(*TemporalEmbedding); !ok {
		t.Fatalf("TemporalEmbedding ist %T, erwartet Kalender-Einbettung", de.TemporalEmbedding)
	}

	x := ml.Randn(ml.NewRNG(2), 1, 1, 4, 2)
	marks := ml.NewTensor([]float32{
		1, 5, 2, 10, 0,
		1, 6, 3, 11, 0,
		1, 7, 4, 12, 0,
		1, 8, 5, 13, 0,
	}, 1, 4, 5)

	out := de.Forward(x, marks)
	if out.Dim(2) != 8 {
		t.Errorf("DataEmbedding-Shape %v, erwartet Breite 8", out.Shape())
	}
}
