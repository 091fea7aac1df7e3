package fusionnet

import (
	"fmt"
	"math/rand/v2"
)

const (
	filterCount  = 8
	filterKernel = 11
)

// FilterUnit is a bank of eight 11×11 linear filters applied to a
// single-channel image. One instance serves the red, green and blue planes.
type FilterUnit struct {
	conv *Conv2D
}

func newFilterUnit(src rand.Source) *FilterUnit {
	return &FilterUnit{
		conv: newConv2D("filter.conv", 1, filterCount, filterKernel, false, src),
	}
}

// Forward maps [N,1,H,W] to [N,8,H,W]. There is no bias and no activation,
// so a zero input yields a zero response.
func (f *FilterUnit) Forward(x *Tensor) (*Tensor, error) {
	if x.C != 1 {
		return nil, fmt.Errorf("filter unit: want 1 channel, got %v: %w", x.Shape(), ErrChannelMismatch)
	}
	return f.conv.Forward(x)
}

func (f *FilterUnit) Parameters() []*Parameter {
	return f.conv.Parameters()
}
