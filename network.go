// Package fusionnet implements a small image-to-image convolutional network.
//
// Three single-channel planes (red, green, blue) each pass through one shared
// bank of eight 11×11 filters. Independently, the RGB image passes through a
// residual mask branch that produces an 8-channel softmax mask. Each filter
// response is weighted by the mask, summed over the eight channels, and the
// three results are stacked into a 3-channel output.
//
// All tensors are NCHW and every operator keeps height and width unchanged.
package fusionnet

import (
	"fmt"
	"math/rand/v2"
)

type Network struct {
	filter *FilterUnit
	mask   *MaskBranch
}

// NewNetwork builds a randomly initialized network with DefaultOptions.
func NewNetwork() *Network {
	return NewNetworkWithOptions(DefaultOptions())
}

// NewNetworkWithOptions builds a network whose weights are derived from
// opt.Seed. The topology is fixed. It panics if opt.DropoutRate is outside
// [0,1).
func NewNetworkWithOptions(opt Options) *Network {
	if !(opt.DropoutRate >= 0 && opt.DropoutRate < 1) {
		panic(fmt.Sprintf("fusionnet: dropout rate %v outside [0,1)", opt.DropoutRate))
	}
	src := rand.NewPCG(opt.Seed, opt.Seed^0x9e3779b97f4a7c15)
	return &Network{
		filter: newFilterUnit(src),
		mask:   newMaskBranch(opt.DropoutRate, src),
	}
}

// Forward computes the fused [N,3,H,W] output. x is [N,3,H,W]; r, g and b
// are [N,1,H,W] with the same N, H and W.
func (nw *Network) Forward(x, r, g, b *Tensor, mode Mode) (*Tensor, error) {
	out, _, err := nw.ForwardWithMask(x, r, g, b, mode)
	return out, err
}

// ForwardWithMask is Forward that also returns the [N,8,H,W] mask.
func (nw *Network) ForwardWithMask(x, r, g, b *Tensor, mode Mode) (out, mask *Tensor, err error) {
	if err := checkInputs(x, r, g, b); err != nil {
		return nil, nil, err
	}
	mask, err = nw.mask.Forward(x, mode)
	if err != nil {
		return nil, nil, err
	}
	fused := make([]*Tensor, 0, 3)
	for _, plane := range []*Tensor{r, g, b} {
		resp, err := nw.filter.Forward(plane)
		if err != nil {
			return nil, nil, err
		}
		weighted, err := Mul(mask, resp)
		if err != nil {
			return nil, nil, err
		}
		fused = append(fused, SumChannels(weighted))
	}
	out, err = ConcatChannels(fused...)
	if err != nil {
		return nil, nil, err
	}
	return out, mask, nil
}

func checkInputs(x, r, g, b *Tensor) error {
	for i, t := range []*Tensor{x, r, g, b} {
		if err := t.check(); err != nil {
			return fmt.Errorf("%s: %w", [...]string{"x", "r", "g", "b"}[i], err)
		}
	}
	if x.C != imageChannels {
		return fmt.Errorf("x: want %d channels, got %v: %w", imageChannels, x.Shape(), ErrChannelMismatch)
	}
	for i, t := range []*Tensor{r, g, b} {
		name := [...]string{"r", "g", "b"}[i]
		if t.C != 1 {
			return fmt.Errorf("%s: want 1 channel, got %v: %w", name, t.Shape(), ErrChannelMismatch)
		}
		if t.N != x.N || t.H != x.H || t.W != x.W {
			return fmt.Errorf("%s %v does not match x %v: %w", name, t.Shape(), x.Shape(), ErrShapeMismatch)
		}
	}
	return nil
}

// Parameters lists every learnable tensor once, filter unit first.
func (nw *Network) Parameters() []*Parameter {
	return append(nw.filter.Parameters(), nw.mask.Parameters()...)
}

func (nw *Network) NumParameters() int {
	return countParameters(nw.Parameters())
}
