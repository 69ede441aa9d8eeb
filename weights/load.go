package weights

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Weights is a fully parsed weights file: the format version, the raw
// tensor lines in file order, and the Shape inferred from them.
type Weights struct {
	Version int
	Shape   Shape
	Tensors [][]float32
}

// Load reads and validates a gzip-compressed weights file from path.
// policySize is the caller's action-space size (the size of the move-index
// table, e.g. from len(game.Chess's action space)) since the file itself
// does not declare it.
func Load(path string, channels, policySize int) (*Weights, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "weights: open")
	}
	defer f.Close()
	w, err := LoadReader(f, channels, policySize)
	if err != nil {
		return nil, errors.Wrapf(err, "weights: loading %s", path)
	}
	return w, nil
}

// LoadReader is Load, reading from an already-open gzip stream.
func LoadReader(r io.Reader, channels, policySize int) (*Weights, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "weights: gzip")
	}
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024*1024)

	if !scanner.Scan() {
		return nil, errors.New("weights: empty file")
	}
	version, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return nil, errors.Wrap(err, "weights: parsing format version")
	}

	var tensors [][]float32
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		tensor := make([]float32, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return nil, errors.Wrapf(err, "weights: parsing tensor %d, value %d", len(tensors), i)
			}
			tensor[i] = float32(v)
		}
		tensors = append(tensors, tensor)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "weights: reading tensors")
	}
	if len(tensors) == 0 {
		return nil, errors.New("weights: no tensor lines after version header")
	}

	blocks, err := residualBlocksFromLineCount(len(tensors))
	if err != nil {
		return nil, errors.WithStack(err)
	}

	shape := Shape{
		InputPlanes:    InputPlanes,
		BoardSize:      BoardSize,
		Channels:       channels,
		ResidualBlocks: blocks,
		PolicySize:     policySize,
	}
	if !shape.IsValid() {
		return nil, fmt.Errorf("weights: inferred shape is invalid: %+v", shape)
	}

	return &Weights{Version: version, Shape: shape, Tensors: tensors}, nil
}
