package network

import (
	"context"
	"sync"
)

// Multiplexer implements Network by fronting N underlying backends with T
// worker goroutines per backend. Every NewComputation call returns a
// forwardingComputation that simply accumulates inputs; calling
// ComputeBlocking enqueues it on one shared FIFO and blocks the caller on a
// condition variable. A backend worker drains the FIFO, packs as many
// waiting computations as fit into one batch of at most MaxBatch samples
// (a single computation larger than MaxBatch is still passed through
// whole, never split), runs the backend's own ComputeBlocking, and wakes
// every contributor. This amortizes backend launch overhead across many
// concurrent search workers without serializing them.
type Multiplexer struct {
	backends []Network
	maxBatch int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*forwardingComputation
	closed bool
	wg     sync.WaitGroup
}

// NewMultiplexer starts threadsPerBackend worker goroutines for each of
// backends, all draining one shared FIFO of pending computations.
func NewMultiplexer(backends []Network, threadsPerBackend, maxBatch int) *Multiplexer {
	m := &Multiplexer{backends: backends, maxBatch: maxBatch}
	m.cond = sync.NewCond(&m.mu)
	for _, b := range backends {
		for t := 0; t < threadsPerBackend; t++ {
			m.wg.Add(1)
			go m.worker(b)
		}
	}
	return m
}

// Close stops all worker goroutines once their current batch finishes, and
// waits for them to exit.
func (m *Multiplexer) Close() {
	m.mu.Lock()
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()
	m.wg.Wait()
}

// NewComputation returns a forwarding Computation that batches onto the
// multiplexer's shared queue when ComputeBlocking is called.
func (m *Multiplexer) NewComputation() Computation {
	fc := &forwardingComputation{mux: m}
	fc.cond = sync.NewCond(&fc.mu)
	return fc
}

func (m *Multiplexer) worker(backend Network) {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		for len(m.queue) == 0 && !m.closed {
			m.cond.Wait()
		}
		if len(m.queue) == 0 && m.closed {
			m.mu.Unlock()
			return
		}

		var batch []*forwardingComputation
		total := 0
		for len(m.queue) > 0 {
			next := m.queue[0]
			n := len(next.planes)
			if total > 0 && total+n > m.maxBatch {
				break
			}
			batch = append(batch, next)
			m.queue = m.queue[1:]
			total += n
			if total >= m.maxBatch {
				break
			}
		}
		m.mu.Unlock()

		if len(batch) == 0 {
			continue
		}

		composite := backend.NewComputation()
		offsets := make([]int, len(batch))
		idx := 0
		for i, fc := range batch {
			offsets[i] = idx
			for _, p := range fc.planes {
				composite.AddInput(p)
				idx++
			}
		}
		err := composite.ComputeBlocking(context.Background())

		for i, fc := range batch {
			fc.mu.Lock()
			fc.composite = composite
			fc.offset = offsets[i]
			fc.err = err
			fc.done = true
			fc.cond.Broadcast()
			fc.mu.Unlock()
		}
	}
}

func (m *Multiplexer) enqueue(fc *forwardingComputation) {
	m.mu.Lock()
	m.queue = append(m.queue, fc)
	m.cond.Signal()
	m.mu.Unlock()
}

// forwardingComputation accumulates AddInput calls locally and, on
// ComputeBlocking, hands itself to the owning Multiplexer and waits for a
// backend worker to service it.
type forwardingComputation struct {
	mux    *Multiplexer
	planes []Planes

	mu        sync.Mutex
	cond      *sync.Cond
	done      bool
	err       error
	composite Computation
	offset    int
}

func (fc *forwardingComputation) AddInput(planes Planes) int {
	i := len(fc.planes)
	fc.planes = append(fc.planes, planes)
	return i
}

func (fc *forwardingComputation) Len() int { return len(fc.planes) }

func (fc *forwardingComputation) ComputeBlocking(ctx context.Context) error {
	if len(fc.planes) == 0 {
		return nil
	}
	fc.mux.enqueue(fc)

	fc.mu.Lock()
	defer fc.mu.Unlock()
	for !fc.done {
		fc.cond.Wait()
	}
	return fc.err
}

func (fc *forwardingComputation) GetQ(i int) float32 {
	return fc.composite.GetQ(fc.offset + i)
}

func (fc *forwardingComputation) GetP(i int, moveID int) float32 {
	return fc.composite.GetP(fc.offset+i, moveID)
}
