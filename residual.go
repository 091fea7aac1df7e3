package fusionnet

import (
	"fmt"
	"math/rand/v2"
)

const (
	imageChannels   = 3
	featureChannels = 32
)

// ResidualBlock is a two-convolution residual unit.
//
// The block is called with first=true on the 3-channel image and with
// first=false on its own 32-channel output. In first mode the main path
// starts with the 3→32 convolution and the shortcut goes through a 1×1
// projection; otherwise the main path starts with the 32→32 convolution and
// the shortcut is the identity. The 32→32 convolution is also the second
// transform in both modes, so a non-first call applies the same weights
// twice.
type ResidualBlock struct {
	first   *Conv2D // 3→32, 3×3
	second  *Conv2D // 32→32, 3×3
	project *Conv2D // 3→32, 1×1 shortcut
	dropout Dropout2D
	name    string
}

func newResidualBlock(name string, dropout float64, src rand.Source) *ResidualBlock {
	return &ResidualBlock{
		first:   newConv2D(name+".first", imageChannels, featureChannels, 3, true, src),
		second:  newConv2D(name+".second", featureChannels, featureChannels, 3, true, src),
		project: newConv2D(name+".project", imageChannels, featureChannels, 1, true, src),
		dropout: Dropout2D{Rate: dropout},
		name:    name,
	}
}

// Forward returns a [N,32,H,W] tensor. x must have 3 channels when first is
// set and 32 channels otherwise.
func (b *ResidualBlock) Forward(x *Tensor, first bool, mode Mode) (*Tensor, error) {
	want := featureChannels
	in := b.second
	if first {
		want = imageChannels
		in = b.first
	}
	if x.C != want {
		return nil, fmt.Errorf("%s (first=%t): want %d channels, got %v: %w",
			b.name, first, want, x.Shape(), ErrChannelMismatch)
	}

	y, err := in.Forward(x)
	if err != nil {
		return nil, err
	}
	y = ReLU(b.dropout.Forward(y, mode))
	y, err = b.second.Forward(y)
	if err != nil {
		return nil, err
	}
	y = b.dropout.Forward(y, mode)

	shortcut := x
	if first {
		if shortcut, err = b.project.Forward(x); err != nil {
			return nil, err
		}
	}
	sum, err := Add(y, shortcut)
	if err != nil {
		return nil, fmt.Errorf("%s shortcut: %w", b.name, err)
	}
	return ReLU(sum), nil
}

func (b *ResidualBlock) Parameters() []*Parameter {
	var out []*Parameter
	out = append(out, b.first.Parameters()...)
	out = append(out, b.second.Parameters()...)
	out = append(out, b.project.Parameters()...)
	return out
}
