// Modul: act.go
// Beschreibung: Aufloesung von Aktivierungs- und Loss-Namen aus der
// Konfiguration auf die entsprechenden Operationen.
package nn

import (
	"fmt"
	"strings"

	"github.com/nehal119/merlion-testing/ml"
)

// Activation ist eine elementweise Aktivierungsfunktion.
type Activation func(*ml.Tensor) *ml.Tensor

// ActivationByName loest einen Konfigurationswert auf. Ein leerer Name
// faellt auf GELU zurueck.
func ActivationByName(name string) (Activation, error) {
	switch strings.ToLower(name) {
	case "", "gelu":
		return ml.GELU, nil
	case "relu":
		return ml.ReLU, nil
	case "elu":
		return ml.ELU, nil
	case "sigmoid":
		return ml.Sigmoid, nil
	case "tanh":
		return ml.Tanh, nil
	default:
		return nil, fmt.Errorf("unknown activation %q", name)
	}
}

// Loss bildet Vorhersage und Ziel auf einen Skalar ab.
type Loss func(pred, target *ml.Tensor) *ml.Tensor

// LossByName loest einen Konfigurationswert auf. Ein leerer Name faellt
// auf den mittleren quadratischen Fehler zurueck.
func LossByName(name string) (Loss, error) {
	switch strings.ToLower(name) {
	case "", "mse":
		return ml.MSELoss, nil
	case "l1", "mae":
		return ml.L1Loss, nil
	case "huber":
		return func(pred, target *ml.Tensor) *ml.Tensor {
			return ml.HuberLoss(pred, target, 1)
		}, nil
	default:
		return nil, fmt.Errorf("unknown loss %q", name)
	}
}
