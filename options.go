package fusionnet

import (
	"math/rand/v2"
)

type Options struct {
	// Seed for parameter initialization.
	// Two networks built with the same seed have identical weights.
	Seed uint64
	// Probability of zeroing a whole channel in training passes.
	// Must be in [0,1); NewNetworkWithOptions panics otherwise.
	// Ideal start: 0.5.
	DropoutRate float64
}

// DefaultOptions returns options with a random seed and a dropout rate of 0.5.
func DefaultOptions() Options {
	return Options{
		Seed:        rand.Uint64(),
		DropoutRate: 0.5,
	}
}

// Mode selects inference or training behaviour for one forward pass.
// The zero value is inference.
type Mode struct {
	Training bool
	// Src draws dropout masks in training passes. A nil Src uses the
	// global generator, which makes the pass non-reproducible.
	Src rand.Source
}

// Inference disables dropout. Forward passes in this mode are deterministic.
var Inference = Mode{}

// Train enables dropout with masks drawn from src.
func Train(src rand.Source) Mode {
	return Mode{Training: true, Src: src}
}
