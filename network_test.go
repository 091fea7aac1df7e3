package fusionnet

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func testNetwork(seed uint64) *Network {
	return NewNetworkWithOptions(Options{Seed: seed, DropoutRate: 0.5})
}

func randInputs(seed uint64, n, h, w int) (x, r, g, b *Tensor) {
	src := rand.NewPCG(seed, seed+1)
	return randTensor(src, n, 3, h, w), randTensor(src, n, 1, h, w),
		randTensor(src, n, 1, h, w), randTensor(src, n, 1, h, w)
}

func TestNetworkOutputShape(t *testing.T) {
	nw := testNetwork(1)
	for _, s := range []Shape{{1, 3, 1, 1}, {2, 3, 5, 7}, {1, 3, 16, 12}, {3, 3, 2, 9}} {
		x, r, g, b := randInputs(2, s[0], s[2], s[3])
		out, err := nw.Forward(x, r, g, b, Inference)
		if err != nil {
			t.Fatal(err)
		}
		if out.Shape() != s {
			t.Errorf("expected %v but got %v", s, out.Shape())
		}
	}
}

func TestNetworkZeroChannels(t *testing.T) {
	nw := testNetwork(3)
	x := randTensor(rand.NewPCG(4, 5), 1, 3, 32, 32)
	zero := NewTensor(1, 1, 32, 32)

	resp, err := nw.filter.Forward(zero)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range resp.Data {
		if v != 0 {
			t.Fatalf("filter response of zero input is %v", v)
		}
	}

	out, err := nw.Forward(x, zero, zero, zero, Inference)
	if err != nil {
		t.Fatal(err)
	}
	if out.Shape() != (Shape{1, 3, 32, 32}) {
		t.Fatalf("shape %v", out.Shape())
	}
	for i, v := range out.Data {
		if v != 0 {
			t.Fatalf("output %d is %v, want 0", i, v)
		}
	}
}

func TestNetworkDeterministicInference(t *testing.T) {
	nw := testNetwork(6)
	x, r, g, b := randInputs(7, 2, 6, 6)
	first, err := nw.Forward(x, r, g, b, Inference)
	if err != nil {
		t.Fatal(err)
	}
	second, err := nw.Forward(x, r, g, b, Inference)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Equal(second) {
		t.Error("inference passes differ")
	}

	other, err := testNetwork(6).Forward(x, r, g, b, Inference)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Equal(other) {
		t.Error("networks with the same seed differ")
	}
}

func TestFilterUnitDeterministic(t *testing.T) {
	nw := testNetwork(8)
	in := randTensor(rand.NewPCG(1, 1), 2, 1, 9, 9)
	a, err := nw.filter.Forward(in)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := nw.filter.Forward(in)
	if !a.Equal(b) || a.Shape() != (Shape{2, 8, 9, 9}) {
		t.Error("filter unit is not deterministic")
	}
	if _, err := nw.filter.Forward(NewTensor(1, 3, 9, 9)); !errors.Is(err, ErrChannelMismatch) {
		t.Errorf("expected ErrChannelMismatch, got %v", err)
	}
}

func TestNetworkSwapChannels(t *testing.T) {
	nw := testNetwork(9)
	x, r, g, b := randInputs(10, 1, 8, 8)
	out, err := nw.Forward(x, r, g, b, Inference)
	if err != nil {
		t.Fatal(err)
	}
	swapped, err := nw.Forward(x, g, r, b, Inference)
	if err != nil {
		t.Fatal(err)
	}
	for _, pair := range [][2]int{{0, 1}, {1, 0}, {2, 2}} {
		if !floats.Equal(out.Plane(0, pair[0]), swapped.Plane(0, pair[1])) {
			t.Errorf("channel %d of the output should be channel %d of the swapped output", pair[0], pair[1])
		}
	}
}

func TestNetworkFusion(t *testing.T) {
	nw := testNetwork(11)
	x, r, g, b := randInputs(12, 2, 5, 6)
	out, mask, err := nw.ForwardWithMask(x, r, g, b, Inference)
	if err != nil {
		t.Fatal(err)
	}
	assertSimplex(t, mask, 1e-12)
	for c, plane := range []*Tensor{r, g, b} {
		resp, err := nw.filter.Forward(plane)
		if err != nil {
			t.Fatal(err)
		}
		for n := range out.N {
			expected := make([]float64, out.H*out.W)
			for k := range mask.C {
				for i, m := range mask.Plane(n, k) {
					expected[i] += m * resp.Plane(n, k)[i]
				}
			}
			if !floats.EqualApprox(out.Plane(n, c), expected, 1e-12) {
				t.Errorf("sample %d channel %d is not the mask-weighted sum of responses", n, c)
			}
		}
	}
}

func TestNetworkTraining(t *testing.T) {
	nw := testNetwork(13)
	x, r, g, b := randInputs(14, 1, 6, 6)
	a, err := nw.Forward(x, r, g, b, Train(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatal(err)
	}
	again, _ := nw.Forward(x, r, g, b, Train(rand.NewPCG(1, 2)))
	if !a.Equal(again) {
		t.Error("training passes with the same source differ")
	}
	inf, _ := nw.Forward(x, r, g, b, Inference)
	if a.Equal(inf) {
		t.Error("training pass should differ from inference")
	}
}

func TestNetworkInputErrors(t *testing.T) {
	nw := testNetwork(15)
	x, r, g, b := randInputs(16, 1, 4, 4)
	cases := []struct {
		name       string
		x, r, g, b *Tensor
		want       error
	}{
		{"x channels", NewTensor(1, 1, 4, 4), r, g, b, ErrChannelMismatch},
		{"r channels", x, NewTensor(1, 3, 4, 4), g, b, ErrChannelMismatch},
		{"g height", x, r, NewTensor(1, 1, 5, 4), b, ErrShapeMismatch},
		{"b width", x, r, g, NewTensor(1, 1, 4, 3), ErrShapeMismatch},
		{"batch", x, r, g, NewTensor(2, 1, 4, 4), ErrShapeMismatch},
		{"short x data", &Tensor{N: 1, C: 3, H: 4, W: 4, Data: make([]float64, 10)}, r, g, b, ErrShapeMismatch},
		{"long g data", x, r, &Tensor{N: 1, C: 1, H: 4, W: 4, Data: make([]float64, 17)}, b, ErrShapeMismatch},
		{"nil r", x, nil, g, b, ErrShapeMismatch},
		{"nil x", nil, r, g, b, ErrShapeMismatch},
		{"negative height", x, r, g, &Tensor{N: 1, C: 1, H: -4, W: -4, Data: make([]float64, 16)}, ErrShapeMismatch},
	}
	for _, tc := range cases {
		out, err := nw.Forward(tc.x, tc.r, tc.g, tc.b, Inference)
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
		if out != nil {
			t.Errorf("%s: partial output returned", tc.name)
		}
	}
}

func TestNetworkDropoutRateRange(t *testing.T) {
	constructs := func(rate float64) (ok bool) {
		defer func() {
			if recover() != nil {
				ok = false
			}
		}()
		NewNetworkWithOptions(Options{Seed: 1, DropoutRate: rate})
		return true
	}
	for _, rate := range []float64{0, 0.5, 0.99} {
		if !constructs(rate) {
			t.Errorf("rate %v: expected a network, got a panic", rate)
		}
	}
	for _, rate := range []float64{-1, 1, 2, math.NaN(), math.Inf(1)} {
		if constructs(rate) {
			t.Errorf("rate %v: expected a panic", rate)
		}
	}
}

func TestNetworkParameters(t *testing.T) {
	nw := testNetwork(17)
	expected := map[string]int{
		"filter.conv.weight":        8 * 1 * 11 * 11,
		"mask.block.first.weight":   32 * 3 * 3 * 3,
		"mask.block.first.bias":     32,
		"mask.block.second.weight":  32 * 32 * 3 * 3,
		"mask.block.second.bias":    32,
		"mask.block.project.weight": 32 * 3,
		"mask.block.project.bias":   32,
		"mask.head.weight":          8 * 32,
		"mask.head.bias":            8,
	}
	params := nw.Parameters()
	if len(params) != len(expected) {
		t.Fatalf("expected %d parameters, got %d", len(expected), len(params))
	}
	for _, p := range params {
		size, ok := expected[p.Name]
		if !ok {
			t.Errorf("unexpected parameter %s", p.Name)
			continue
		}
		if p.Len() != size {
			t.Errorf("%s: expected %d values, got %d", p.Name, size, p.Len())
		}
		delete(expected, p.Name)
	}
	if nw.NumParameters() != 11504 {
		t.Errorf("expected 11504 scalars, got %d", nw.NumParameters())
	}

	// Parameters are shared, not copied: editing one changes the output.
	x, r, g, b := randInputs(18, 1, 4, 4)
	before, _ := nw.Forward(x, r, g, b, Inference)
	saved := params[0].Clone()
	floats.Scale(2, params[0].Data)
	after, _ := nw.Forward(x, r, g, b, Inference)
	if !floats.EqualApprox(after.Data, scaled(before.Data, 2), 1e-12) {
		t.Error("doubling the filter weights should double the output")
	}
	copy(params[0].Data, saved.Data)
	restored, _ := nw.Forward(x, r, g, b, Inference)
	if !restored.Equal(before) {
		t.Error("restoring weights should restore the output")
	}
}

func scaled(s []float64, c float64) []float64 {
	out := make([]float64, len(s))
	floats.ScaleTo(out, c, s)
	return out
}

func TestNewNetwork(t *testing.T) {
	nw := NewNetwork()
	x, r, g, b := randInputs(19, 1, 3, 3)
	out, err := nw.Forward(x, r, g, b, Inference)
	if err != nil {
		t.Fatal(err)
	}
	if out.Shape() != (Shape{1, 3, 3, 3}) {
		t.Errorf("shape %v", out.Shape())
	}
}
