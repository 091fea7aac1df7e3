package fusionnet

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Parameter is a named, learnable weight buffer owned by exactly one layer.
// Layers that are invoked several times share a single Parameter; it is never
// copied per call site.
type Parameter struct {
	Name  string
	Shape []int
	Data  []float64
}

func newParameter(name string, shape ...int) *Parameter {
	size := 1
	for _, d := range shape {
		size *= d
	}
	return &Parameter{
		Name:  name,
		Shape: shape,
		Data:  make([]float64, size),
	}
}

func (p *Parameter) Len() int {
	return len(p.Data)
}

func (p *Parameter) Clone() *Parameter {
	out := &Parameter{
		Name:  p.Name,
		Shape: append([]int(nil), p.Shape...),
		Data:  make([]float64, len(p.Data)),
	}
	copy(out.Data, p.Data)
	return out
}

// initUniform fills p with U(-1/sqrt(fanIn), 1/sqrt(fanIn)).
func (p *Parameter) initUniform(fanIn int, src rand.Source) {
	bound := 1.0
	if fanIn > 0 {
		bound = 1.0 / math.Sqrt(float64(fanIn))
	}
	dist := distuv.Uniform{Min: -bound, Max: bound, Src: src}
	for i := range p.Data {
		p.Data[i] = dist.Rand()
	}
}

func countParameters(params []*Parameter) int {
	total := 0
	for _, p := range params {
		total += p.Len()
	}
	return total
}
