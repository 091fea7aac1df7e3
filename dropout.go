package fusionnet

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Dropout2D zeroes whole channels with probability Rate and scales the
// surviving ones by 1/(1-Rate). It is the identity outside training.
type Dropout2D struct {
	Rate float64
}

func (d Dropout2D) Forward(x *Tensor, mode Mode) *Tensor {
	if !mode.Training || d.Rate <= 0 {
		return x
	}
	out := NewTensor(x.N, x.C, x.H, x.W)
	if d.Rate >= 1 {
		return out
	}
	keep := distuv.Bernoulli{P: 1 - d.Rate, Src: mode.Src}
	scale := 1 / (1 - d.Rate)
	for n := range x.N {
		for c := range x.C {
			if keep.Rand() == 0 {
				continue
			}
			floats.ScaleTo(out.Plane(n, c), scale, x.Plane(n, c))
		}
	}
	return out
}
