// Modul: loss.go
// Beschreibung: Skalare Verlustfunktionen fuer das Training.
package ml

import (
	"fmt"
	"math"
)

func lossCheck(pred, target *Tensor) {
	if !sameShape(pred.shape, target.shape) {
		panic(fmt.Sprintf("ml: loss shapes %v vs %v", pred.shape, target.shape))
	}
}

// MSELoss ist der mittlere quadratische Fehler.
func MSELoss(pred, target *Tensor) *Tensor {
	lossCheck(pred, target)
	n := float32(len(pred.data))

	var sum float32
	for i, p := range pred.data {
		d := p - target.data[i]
		sum += d * d
	}
	out := NewTensor([]float32{sum / n}, 1)

	record(out, func() {
		g := out.grad[0]
		if pred.requiresGrad {
			pg := pred.mustGrad()
			for i, p := range pred.data {
				pg[i] += g * 2 * (p - target.data[i]) / n
			}
		}
		if target.requiresGrad {
			tg := target.mustGrad()
			for i, p := range pred.data {
				tg[i] -= g * 2 * (p - target.data[i]) / n
			}
		}
	}, pred, target)
	return out
}

// L1Loss ist der mittlere absolute Fehler.
func L1Loss(pred, target *Tensor) *Tensor {
	lossCheck(pred, target)
	n := float32(len(pred.data))

	var sum float32
	for i, p := range pred.data {
		sum += float32(math.Abs(float64(p - target.data[i])))
	}
	out := NewTensor([]float32{sum / n}, 1)

	record(out, func() {
		g := out.grad[0]
		if pred.requiresGrad {
			pg := pred.mustGrad()
			for i, p := range pred.data {
				switch d := p - target.data[i]; {
				case d > 0:
					pg[i] += g / n
				case d < 0:
					pg[i] -= g / n
				}
			}
		}
	}, pred, target)
	return out
}

// HuberLoss ist quadratisch fuer |d| < delta und linear darueber.
func HuberLoss(pred, target *Tensor, delta float32) *Tensor {
	lossCheck(pred, target)
	if delta <= 0 {
		panic(fmt.Sprintf("ml: huber delta %v", delta))
	}
	n := float32(len(pred.data))

	var sum float32
	for i, p := range pred.data {
		d := p - target.data[i]
		abs := float32(math.Abs(float64(d)))
		if abs < delta {
			sum += 0.5 * d * d
		} else {
			sum += delta * (abs - 0.5*delta)
		}
	}
	out := NewTensor([]float32{sum / n}, 1)

	record(out, func() {
		g := out.grad[0]
		if !pred.requiresGrad {
			return
		}
		pg := pred.mustGrad()
		for i, p := range pred.data {
			d := p - target.data[i]
			switch {
			case d >= delta:
				pg[i] += g * delta / n
			case d <= -delta:
				pg[i] -= g * delta / n
			default:
				pg[i] += g * d / n
			}
		}
	}, pred, target)
	return out
}
