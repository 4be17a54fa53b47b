// Modul: dropout.go
// Beschreibung: Dropout als Modul mit Trainingsschalter. Ausserhalb des
// Trainings ist Forward die Identitaet.
package nn

import (
	"math/rand"

	"github.com/nehal119/merlion-testing/ml"
)

type Dropout struct {
	p        float32
	rng      *rand.Rand
	training bool
}

func NewDropout(p float32, rng *rand.Rand) *Dropout {
	return &Dropout{p: p, rng: rng}
}

func (d *Dropout) SetTraining(training bool) { d.training = training }

func (d *Dropout) Forward(x *ml.Tensor) *ml.Tensor {
	if !d.training || d.p <= 0 {
		return x
	}
	return ml.Dropout(x, d.p, d.rng)
}
