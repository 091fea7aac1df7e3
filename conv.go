package fusionnet

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Conv2D is a stride-1 convolution with "same" zero padding, so the output
// keeps the input height and width. Kernel must be odd.
type Conv2D struct {
	InChannels  int
	OutChannels int
	Kernel      int

	Weight *Parameter // [OutChannels, InChannels, Kernel, Kernel]
	Bias   *Parameter // [OutChannels], nil when the layer has no bias
}

func newConv2D(name string, in, out, kernel int, bias bool, src rand.Source) *Conv2D {
	c := &Conv2D{
		InChannels:  in,
		OutChannels: out,
		Kernel:      kernel,
		Weight:      newParameter(name+".weight", out, in, kernel, kernel),
	}
	fanIn := in * kernel * kernel
	c.Weight.initUniform(fanIn, src)
	if bias {
		c.Bias = newParameter(name+".bias", out)
		c.Bias.initUniform(fanIn, src)
	}
	return c
}

func (c *Conv2D) Parameters() []*Parameter {
	if c.Bias == nil {
		return []*Parameter{c.Weight}
	}
	return []*Parameter{c.Weight, c.Bias}
}

// Forward convolves every sample of x. Each sample is lowered to a
// (Cin*K*K)×(H*W) column matrix and multiplied by the Cout×(Cin*K*K) weight
// matrix.
func (c *Conv2D) Forward(x *Tensor) (*Tensor, error) {
	if err := x.check(); err != nil {
		return nil, fmt.Errorf("conv %s: %w", c.Weight.Name, err)
	}
	if x.C != c.InChannels {
		return nil, fmt.Errorf("conv %s: want %d input channels, got %v: %w",
			c.Weight.Name, c.InChannels, x.Shape(), ErrChannelMismatch)
	}
	out := NewTensor(x.N, c.OutChannels, x.H, x.W)
	plane := x.H * x.W
	if plane == 0 || x.N == 0 {
		return out, nil
	}
	rows := c.InChannels * c.Kernel * c.Kernel
	weights := mat.NewDense(c.OutChannels, rows, c.Weight.Data)
	cols := mat.NewDense(rows, plane, nil)
	for n := range x.N {
		c.im2col(x, n, cols)
		res := mat.NewDense(c.OutChannels, plane, out.Data[n*c.OutChannels*plane:(n+1)*c.OutChannels*plane])
		res.Mul(weights, cols)
		if c.Bias != nil {
			for o := range c.OutChannels {
				b := c.Bias.Data[o]
				dst := out.Plane(n, o)
				for i := range dst {
					dst[i] += b
				}
			}
		}
	}
	return out, nil
}

// im2col writes the receptive field of every output pixel of sample n into
// the columns of cols. Out-of-bounds taps read as zero.
func (c *Conv2D) im2col(x *Tensor, n int, cols *mat.Dense) {
	raw := cols.RawMatrix()
	data, stride := raw.Data, raw.Stride
	k := c.Kernel
	pad := k / 2
	h, w := x.H, x.W
	for ch := range c.InChannels {
		src := x.Plane(n, ch)
		for ky := range k {
			for kx := range k {
				row := (ch*k+ky)*k + kx
				dst := data[row*stride : row*stride+h*w]
				for y := range h {
					sy := y + ky - pad
					line := dst[y*w : (y+1)*w]
					if sy < 0 || sy >= h {
						clear(line)
						continue
					}
					srcLine := src[sy*w : (sy+1)*w]
					for xx := range w {
						sx := xx + kx - pad
						if sx < 0 || sx >= w {
							line[xx] = 0
							continue
						}
						line[xx] = srcLine[sx]
					}
				}
			}
		}
	}
}
