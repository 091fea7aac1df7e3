package fusionnet

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Errors reported by tensor operations. Callers can match them with errors.Is.
var (
	ErrShapeMismatch   = errors.New("shape mismatch")
	ErrChannelMismatch = errors.New("channel mismatch")
)

// Shape is a tensor shape in [batch, channels, height, width] order.
type Shape [4]int

func (s Shape) String() string {
	return fmt.Sprintf("[%d,%d,%d,%d]", s[0], s[1], s[2], s[3])
}

// Tensor is a dense NCHW float64 tensor.
type Tensor struct {
	N, C, H, W int
	Data       []float64 // row-major, len = N*C*H*W
}

func NewTensor(n, c, h, w int) *Tensor {
	return &Tensor{N: n, C: c, H: h, W: w, Data: make([]float64, n*c*h*w)}
}

// FromSlice wraps data without copying.
func FromSlice(n, c, h, w int, data []float64) (*Tensor, error) {
	if n < 0 || c < 0 || h < 0 || w < 0 {
		return nil, fmt.Errorf("negative dimension in %v: %w", Shape{n, c, h, w}, ErrShapeMismatch)
	}
	if len(data) != n*c*h*w {
		return nil, fmt.Errorf("%d values for shape %v: %w", len(data), Shape{n, c, h, w}, ErrShapeMismatch)
	}
	return &Tensor{N: n, C: c, H: h, W: w, Data: data}, nil
}

func (t *Tensor) Shape() Shape {
	return Shape{t.N, t.C, t.H, t.W}
}

func (t *Tensor) offset(n, c, y, x int) int {
	return ((n*t.C+c)*t.H+y)*t.W + x
}

func (t *Tensor) At(n, c, y, x int) float64 {
	return t.Data[t.offset(n, c, y, x)]
}

func (t *Tensor) Set(n, c, y, x int, v float64) {
	t.Data[t.offset(n, c, y, x)] = v
}

// Plane returns the H*W values of channel c in sample n. The slice aliases t.
func (t *Tensor) Plane(n, c int) []float64 {
	off := t.offset(n, c, 0, 0)
	return t.Data[off : off+t.H*t.W]
}

func (t *Tensor) Clone() *Tensor {
	out := NewTensor(t.N, t.C, t.H, t.W)
	copy(out.Data, t.Data)
	return out
}

// Equal reports whether t and o have the same shape and bit-identical values.
func (t *Tensor) Equal(o *Tensor) bool {
	if t.Shape() != o.Shape() {
		return false
	}
	for i, v := range t.Data {
		if math.Float64bits(v) != math.Float64bits(o.Data[i]) {
			return false
		}
	}
	return true
}

// check rejects tensors whose fields were filled in by hand and whose
// Data does not cover N*C*H*W values.
func (t *Tensor) check() error {
	if t == nil {
		return fmt.Errorf("nil tensor: %w", ErrShapeMismatch)
	}
	if t.N < 0 || t.C < 0 || t.H < 0 || t.W < 0 {
		return fmt.Errorf("negative dimension in %v: %w", t.Shape(), ErrShapeMismatch)
	}
	if want := t.N * t.C * t.H * t.W; len(t.Data) != want {
		return fmt.Errorf("%v needs %d values, has %d: %w", t.Shape(), want, len(t.Data), ErrShapeMismatch)
	}
	return nil
}

func sameShape(op string, a, b *Tensor) error {
	if a.Shape() != b.Shape() {
		return fmt.Errorf("%s: %v vs %v: %w", op, a.Shape(), b.Shape(), ErrShapeMismatch)
	}
	return nil
}

// ============ ELEMENTWISE ============

func Add(a, b *Tensor) (*Tensor, error) {
	if err := sameShape("add", a, b); err != nil {
		return nil, err
	}
	out := NewTensor(a.N, a.C, a.H, a.W)
	floats.AddTo(out.Data, a.Data, b.Data)
	return out, nil
}

// Mul is the Hadamard product of a and b.
func Mul(a, b *Tensor) (*Tensor, error) {
	if err := sameShape("mul", a, b); err != nil {
		return nil, err
	}
	out := NewTensor(a.N, a.C, a.H, a.W)
	floats.MulTo(out.Data, a.Data, b.Data)
	return out, nil
}

func ReLU(t *Tensor) *Tensor {
	out := NewTensor(t.N, t.C, t.H, t.W)
	for i, v := range t.Data {
		if v > 0 {
			out.Data[i] = v
		}
	}
	return out
}

// ============ CHANNEL AXIS ============

// SumChannels reduces over the channel axis and keeps it as a singleton:
// [N,C,H,W] -> [N,1,H,W].
func SumChannels(t *Tensor) *Tensor {
	out := NewTensor(t.N, 1, t.H, t.W)
	for n := range t.N {
		dst := out.Plane(n, 0)
		for c := range t.C {
			floats.Add(dst, t.Plane(n, c))
		}
	}
	return out
}

// ConcatChannels stacks tensors along the channel axis in argument order.
func ConcatChannels(ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("concat: no tensors: %w", ErrShapeMismatch)
	}
	first := ts[0]
	channels := 0
	for _, t := range ts {
		if t.N != first.N || t.H != first.H || t.W != first.W {
			return nil, fmt.Errorf("concat: %v vs %v: %w", first.Shape(), t.Shape(), ErrShapeMismatch)
		}
		channels += t.C
	}
	out := NewTensor(first.N, channels, first.H, first.W)
	plane := first.H * first.W
	for n := range first.N {
		dst := out.Data[n*channels*plane:]
		for _, t := range ts {
			src := t.Data[n*t.C*plane : (n+1)*t.C*plane]
			dst = dst[copy(dst, src):]
		}
	}
	return out, nil
}

// SoftmaxChannels normalizes every (n, y, x) fiber along the channel axis into
// a probability distribution.
func SoftmaxChannels(t *Tensor) *Tensor {
	out := NewTensor(t.N, t.C, t.H, t.W)
	if t.C == 0 {
		return out
	}
	plane := t.H * t.W
	fiber := make([]float64, t.C)
	for n := range t.N {
		base := n * t.C * plane
		for p := range plane {
			for c := range t.C {
				fiber[c] = t.Data[base+c*plane+p]
			}
			lse := floats.LogSumExp(fiber)
			for c := range t.C {
				out.Data[base+c*plane+p] = math.Exp(fiber[c] - lse)
			}
		}
	}
	return out
}
