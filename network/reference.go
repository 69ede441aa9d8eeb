package network

import (
	"context"
	"hash/fnv"
	"math"
)

// referenceBackend is a deterministic, pure-Go stand-in for the real
// convolutional policy/value network (the NN arithmetic itself -
// convolution, batch-norm, Winograd, SGEMM - stays out of scope; the core
// only ever consumes it through the Network interface). It gives tests,
// corvid-bench, and self-play dry runs something to evaluate against
// without a trained weights file, and is fully deterministic given the
// same input planes.
type referenceBackend struct {
	policySize int
}

func init() {
	Register("reference", 0, func(opts map[string]string) (Network, error) {
		size := 1858
		if v, ok := opts["policy_size"]; ok {
			if n, err := parsePositiveInt(v); err == nil {
				size = n
			}
		}
		return &referenceBackend{policySize: size}, nil
	})
}

func (b *referenceBackend) NewComputation() Computation {
	return &referenceComputation{backend: b}
}

type referenceComputation struct {
	backend *referenceBackend
	inputs  []Planes
	results []ValuePolicy
}

func (c *referenceComputation) AddInput(planes Planes) int {
	i := len(c.inputs)
	c.inputs = append(c.inputs, planes)
	return i
}

func (c *referenceComputation) Len() int { return len(c.inputs) }

func (c *referenceComputation) ComputeBlocking(ctx context.Context) error {
	c.results = make([]ValuePolicy, len(c.inputs))
	for i, planes := range c.inputs {
		c.results[i] = evaluate(planes, c.backend.policySize)
	}
	return nil
}

func (c *referenceComputation) GetQ(i int) float32 { return c.results[i].Value }

func (c *referenceComputation) GetP(i int, moveID int) float32 {
	p := c.results[i].Policy
	if moveID < 0 || moveID >= len(p) {
		return 0
	}
	return p[moveID]
}

// evaluate computes a deterministic, bounded (value, policy) pair from
// planes alone: the value is a material-balance proxy read straight from
// the input (sum of the "own piece" planes minus the "opponent piece"
// planes, squashed through tanh), and the policy is a softmax over a hash
// of the plane contents seeded per move slot - giving a reproducible but
// otherwise uninformative prior, exactly standing in for "a real network
// would say something smarter here."
func evaluate(planes Planes, policySize int) ValuePolicy {
	var ownSum, oppSum float32
	const piecePlanesPerPly = 12
	for p := 0; p < piecePlanesPerPly && (p+1)*64 <= len(planes); p++ {
		base := p * 64
		var s float32
		for sq := 0; sq < 64; sq++ {
			s += planes[base+sq]
		}
		if p < 6 {
			ownSum += s
		} else {
			oppSum += s
		}
	}
	value := float32(math.Tanh(float64(ownSum-oppSum) / 8))

	h := fnv.New64a()
	buf := make([]byte, 4)
	for i, v := range planes {
		if i%97 != 0 { // subsample for speed; still deterministic
			continue
		}
		bits := math.Float32bits(v)
		buf[0] = byte(bits)
		buf[1] = byte(bits >> 8)
		buf[2] = byte(bits >> 16)
		buf[3] = byte(bits >> 24)
		h.Write(buf)
	}
	seed := h.Sum64()

	policy := make([]float32, policySize)
	var total float32
	state := seed
	for i := range policy {
		state = splitmix64(state)
		// map to [0,1)
		v := float32(state>>11) / float32(1<<53)
		logit := v*2 - 1
		policy[i] = float32(math.Exp(float64(logit)))
		total += policy[i]
	}
	if total > 0 {
		for i := range policy {
			policy[i] /= total
		}
	}
	return ValuePolicy{Value: value, Policy: policy}
}

func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	z := x
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

func parsePositiveInt(s string) (int, error) {
	var n int
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errInvalidInt
		}
		n = n*10 + int(r-'0')
	}
	if n <= 0 {
		return 0, errInvalidInt
	}
	return n, nil
}

var errInvalidInt = &invalidIntError{}

type invalidIntError struct{}

func (*invalidIntError) Error() string { return "network: invalid positive integer option" }
