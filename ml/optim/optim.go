// Modul: optim.go
// Beschreibung: Gradientenbasierte Optimierer ueber flachen
// Parameterlisten. Zustand (Momente, Akkumulatoren) liegt parallel zu
// den Parametern; Step wendet die Updates direkt auf die Daten an.
package optim

import (
	"fmt"
	"math"
	"strings"

	"github.com/nehal119/merlion-testing/ml"
)

// Optimizer fuehrt einen Update-Schritt ueber alle Parameter aus.
type Optimizer interface {
	Step()
	ZeroGrad()
}

// New loest einen Konfigurationsnamen auf. Ein leerer Name faellt auf
// Adam zurueck; SGD laeuft mit Momentum 0.9.
func New(name string, params []*ml.Tensor, lr, weightDecay float32) (Optimizer, error) {
	switch strings.ToLower(name) {
	case "", "adam":
		return NewAdam(params, lr, weightDecay), nil
	case "adamw":
		return NewAdamW(params, lr, weightDecay), nil
	case "sgd":
		return NewSGD(params, lr, 0.9, weightDecay), nil
	case "adagrad":
		return NewAdagrad(params, lr, weightDecay), nil
	case "rmsprop":
		return NewRMSprop(params, lr, weightDecay), nil
	default:
		return nil, fmt.Errorf("unknown optimizer %q", name)
	}
}

func zeroGrads(params []*ml.Tensor) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

// SGD mit optionalem Momentum und L2-Regularisierung.
type SGD struct {
	params      []*ml.Tensor
	lr          float32
	momentum    float32
	weightDecay float32
	velocity    [][]float32
}

func NewSGD(params []*ml.Tensor, lr, momentum, weightDecay float32) *SGD {
	return &SGD{
		params:      params,
		lr:          lr,
		momentum:    momentum,
		weightDecay: weightDecay,
		velocity:    make([][]float32, len(params)),
	}
}

func (s *SGD) ZeroGrad() { zeroGrads(s.params) }

func (s *SGD) Step() {
	for i, p := range s.params {
		g := p.Grad()
		if g == nil {
			continue
		}
		data := p.Data()

		if s.momentum != 0 && s.velocity[i] == nil {
			s.velocity[i] = make([]float32, len(data))
		}
		for j := range data {
			gj := g[j]
			if s.weightDecay != 0 {
				gj += s.weightDecay * data[j]
			}
			if s.momentum != 0 {
				s.velocity[i][j] = s.momentum*s.velocity[i][j] + gj
				gj = s.velocity[i][j]
			}
			data[j] -= s.lr * gj
		}
	}
}

// Adam haelt erste und zweite Momente mit Bias-Korrektur. Mit decoupled
// wird der Weight Decay nicht in den Gradienten gemischt, sondern
// direkt von den Parametern abgezogen (AdamW).
type Adam struct {
	params      []*ml.Tensor
	lr          float32
	beta1       float32
	beta2       float32
	eps         float32
	weightDecay float32
	decoupled   bool

	step int
	m    [][]float32
	v    [][]float32
}

func NewAdam(params []*ml.Tensor, lr, weightDecay float32) *Adam {
	return newAdam(params, lr, weightDecay, false)
}

func NewAdamW(params []*ml.Tensor, lr, weightDecay float32) *Adam {
	return newAdam(params, lr, weightDecay, true)
}

func newAdam(params []*ml.Tensor, lr, weightDecay float32, decoupled bool) *Adam {
	return &Adam{
		params:      params,
		lr:          lr,
		beta1:       0.9,
		beta2:       0.999,
		eps:         1e-8,
		weightDecay: weightDecay,
		decoupled:   decoupled,
		m:           make([][]float32, len(params)),
		v:           make([][]float32, len(params)),
	}
}

func (a *Adam) ZeroGrad() { zeroGrads(a.params) }

func (a *Adam) Step() {
	a.step++
	bc1 := 1 - float32(math.Pow(float64(a.beta1), float64(a.step)))
	bc2 := 1 - float32(math.Pow(float64(a.beta2), float64(a.step)))

	for i, p := range a.params {
		g := p.Grad()
		if g == nil {
			continue
		}
		data := p.Data()

		if a.m[i] == nil {
			a.m[i] = make([]float32, len(data))
			a.v[i] = make([]float32, len(data))
		}
		for j := range data {
			gj := g[j]
			if a.weightDecay != 0 && !a.decoupled {
				gj += a.weightDecay * data[j]
			}

			a.m[i][j] = a.beta1*a.m[i][j] + (1-a.beta1)*gj
			a.v[i][j] = a.beta2*a.v[i][j] + (1-a.beta2)*gj*gj

			mhat := a.m[i][j] / bc1
			vhat := a.v[i][j] / bc2

			if a.weightDecay != 0 && a.decoupled {
				data[j] -= a.lr * a.weightDecay * data[j]
			}
			data[j] -= a.lr * mhat / (float32(math.Sqrt(float64(vhat))) + a.eps)
		}
	}
}

// Adagrad akkumuliert quadrierte Gradienten ueber die gesamte Laufzeit.
type Adagrad struct {
	params      []*ml.Tensor
	lr          float32
	eps         float32
	weightDecay float32
	acc         [][]float32
}

func NewAdagrad(params []*ml.Tensor, lr, weightDecay float32) *Adagrad {
	return &Adagrad{
		params:      params,
		lr:          lr,
		eps:         1e-10,
		weightDecay: weightDecay,
		acc:         make([][]float32, len(params)),
	}
}

func (a *Adagrad) ZeroGrad() { zeroGrads(a.params) }

func (a *Adagrad) Step() {
	for i, p := range a.params {
		g := p.Grad()
		if g == nil {
			continue
		}
		data := p.Data()

		if a.acc[i] == nil {
			a.acc[i] = make([]float32, len(data))
		}
		for j := range data {
			gj := g[j]
			if a.weightDecay != 0 {
				gj += a.weightDecay * data[j]
			}
			a.acc[i][j] += gj * gj
			data[j] -= a.lr * gj / (float32(math.Sqrt(float64(a.acc[i][j]))) + a.eps)
		}
	}
}

// RMSprop haelt einen exponentiell gleitenden Mittelwert der
// quadrierten Gradienten mit Glaettung 0.99.
type RMSprop struct {
	params      []*ml.Tensor
	lr          float32
	alpha       float32
	eps         float32
	weightDecay float32
	acc         [][]float32
}

func NewRMSprop(params []*ml.Tensor, lr, weightDecay float32) *RMSprop {
	return &RMSprop{
		params:      params,
		lr:          lr,
		alpha:       0.99,
		eps:         1e-8,
		weightDecay: weightDecay,
		acc:         make([][]float32, len(params)),
	}
}

func (r *RMSprop) ZeroGrad() { zeroGrads(r.params) }

func (r *RMSprop) Step() {
	for i, p := range r.params {
		g := p.Grad()
		if g == nil {
			continue
		}
		data := p.Data()

		if r.acc[i] == nil {
			r.acc[i] = make([]float32, len(data))
		}
		for j := range data {
			gj := g[j]
			if r.weightDecay != 0 {
				gj += r.weightDecay * data[j]
			}
			r.acc[i][j] = r.alpha*r.acc[i][j] + (1-r.alpha)*gj*gj
			data[j] -= r.lr * gj / (float32(math.Sqrt(float64(r.acc[i][j]))) + r.eps)
		}
	}
}

// ClipGradNorm skaliert alle Gradienten, wenn ihre gemeinsame L2-Norm
// maxNorm uebersteigt, und liefert die Norm vor dem Clipping.
func ClipGradNorm(params []*ml.Tensor, maxNorm float32) float32 {
	var total float64
	for _, p := range params {
		for _, g := range p.Grad() {
			total += float64(g) * float64(g)
		}
	}
	norm := float32(math.Sqrt(total))

	if maxNorm > 0 && norm > maxNorm {
		scale := maxNorm / (norm + 1e-6)
		for _, p := range params {
			g := p.Grad()
			for j := range g {
				g[j] *= scale
			}
		}
	}
	return norm
}
