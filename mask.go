package fusionnet

import (
	"fmt"
	"math/rand/v2"
)

// blockCalls is how many times the shared residual block runs. Only the
// first call projects the image channels.
const blockCalls = 3

// MaskBranch computes an 8-channel soft mask from an RGB tensor. At every
// pixel the eight values are non-negative and sum to one.
type MaskBranch struct {
	block *ResidualBlock
	head  *Conv2D // 32→8, 1×1
}

func newMaskBranch(dropout float64, src rand.Source) *MaskBranch {
	return &MaskBranch{
		block: newResidualBlock("mask.block", dropout, src),
		head:  newConv2D("mask.head", featureChannels, filterCount, 1, true, src),
	}
}

// Forward maps [N,3,H,W] to [N,8,H,W].
func (m *MaskBranch) Forward(x *Tensor, mode Mode) (*Tensor, error) {
	if x.C != imageChannels {
		return nil, fmt.Errorf("mask branch: want %d channels, got %v: %w", imageChannels, x.Shape(), ErrChannelMismatch)
	}
	y := x
	for i := range blockCalls {
		var err error
		if y, err = m.block.Forward(y, i == 0, mode); err != nil {
			return nil, err
		}
	}
	logits, err := m.head.Forward(y)
	if err != nil {
		return nil, err
	}
	return SoftmaxChannels(logits), nil
}

func (m *MaskBranch) Parameters() []*Parameter {
	return append(m.block.Parameters(), m.head.Parameters()...)
}
