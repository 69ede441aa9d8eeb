// Package weights loads and validates the network weights file: a
// gzip-compressed text file, one format-version line followed by one line
// per weight tensor in a fixed order.
package weights

import "fmt"

// Shape describes the fixed-topology parameters inferred from (or
// validated against) a weights file.
type Shape struct {
	InputPlanes   int // fixed at game.NumPlanes (112)
	BoardSize     int // fixed at 8
	Channels      int // "square" hidden channel count, e.g. 64/128/256
	ResidualBlocks int // inferred from file length, not declared
	PolicySize    int // action space size, e.g. 1858
}

// DefaultShape returns a Shape with the fixed input-plane count and board
// size and the given channel, block and policy sizes, for use when no
// weights file is loaded yet.
func DefaultShape(channels, residualBlocks, policySize int) Shape {
	return Shape{
		InputPlanes:    InputPlanes,
		BoardSize:      BoardSize,
		Channels:       channels,
		ResidualBlocks: residualBlocks,
		PolicySize:     policySize,
	}
}

const (
	// InputPlanes is the fixed NN input plane count (game.NumPlanes).
	InputPlanes = 112
	// BoardSize is the fixed board edge length.
	BoardSize = 8
	// ConvKernel is the fixed convolution kernel size.
	ConvKernel = 3
)

// IsValid reports whether s is a usable shape.
func (s Shape) IsValid() bool {
	return s.Channels >= 1 &&
		s.ResidualBlocks >= 0 &&
		s.PolicySize >= 3 &&
		s.InputPlanes == InputPlanes &&
		s.BoardSize == BoardSize
}

// tensorsPerBlock is the number of weight lines a single conv+bn block
// contributes: weights, biases, bn_means, bn_vars.
const tensorsPerBlock = 4

// residualBlocksFromLineCount infers the residual block count from the
// total number of weight-tensor lines in the file:
//
//	1 input conv block (tensorsPerBlock lines)
//	+ n residual blocks x 2 conv blocks (2*tensorsPerBlock lines each)
//	+ policy head: 1 conv block + dense weights + dense biases (tensorsPerBlock+2)
//	+ value head: 1 conv block + 2 dense layers (tensorsPerBlock+4)
func residualBlocksFromLineCount(lines int) (int, error) {
	fixed := tensorsPerBlock + (tensorsPerBlock + 2) + (tensorsPerBlock + 4)
	remaining := lines - fixed
	if remaining < 0 || remaining%(2*tensorsPerBlock) != 0 {
		return 0, fmt.Errorf("weights: %d tensor lines do not correspond to a whole number of residual blocks", lines)
	}
	return remaining / (2 * tensorsPerBlock), nil
}
