// Package network defines the Network abstraction the search consumes and
// the multiplexer that batches concurrent search workers onto it.
//
// The neural-network arithmetic itself (convolutions, batch norm, SGEMM) is
// out of scope here: Network is a capability interface, and the concrete
// math lives behind whichever backend is registered at init time.
package network

import "context"

// Planes is one input sample: 112 feature planes, each a flattened 8x8
// board (64 floats), matching the layout in weights.Shape.
type Planes []float32

// Computation accumulates input samples and evaluates them together.
//
// AddInput returns the index the sample will occupy in the result once
// ComputeBlocking has run; GetQ/GetP read results back by that index.
type Computation interface {
	AddInput(planes Planes) int
	ComputeBlocking(ctx context.Context) error
	Len() int
	GetQ(i int) float32
	GetP(i int, moveID int) float32
}

// Network produces Computations. A single Network may be shared by many
// concurrent callers; implementations that cannot evaluate concurrently
// must serialize internally (see Multiplexer).
type Network interface {
	NewComputation() Computation
}

// ValuePolicy is a complete evaluation: an NN value estimate, plus the full
// policy vector over the action space, one non-negative probability per
// move index.
type ValuePolicy struct {
	Value  float32
	Policy []float32
}
