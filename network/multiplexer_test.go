package network

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMultiplexerBatchesConcurrentCallers(t *testing.T) {
	backend, err := Build("reference", map[string]string{"policy_size": "8"})
	require.NoError(t, err)
	mux := NewMultiplexer([]Network{backend}, 2, 4)
	defer mux.Close()

	const callers = 6
	var wg sync.WaitGroup
	errs := make([]error, callers)
	values := make([]float32, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			comp := mux.NewComputation()
			planes := make(Planes, 112*64)
			comp.AddInput(planes)
			errs[i] = comp.ComputeBlocking(context.Background())
			values[i] = comp.GetQ(0)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
	}
	for i := 1; i < callers; i++ {
		require.Equal(t, values[0], values[i], "reference backend must be deterministic across callers")
	}
}

func TestMultiplexerNeverSplitsAnOversizedComputation(t *testing.T) {
	backend, err := Build("reference", nil)
	require.NoError(t, err)
	mux := NewMultiplexer([]Network{backend}, 1, 2)
	defer mux.Close()

	comp := mux.NewComputation()
	for i := 0; i < 5; i++ {
		comp.AddInput(make(Planes, 112*64))
	}
	require.NoError(t, comp.ComputeBlocking(context.Background()))
	require.Equal(t, 5, comp.Len())
	for i := 0; i < 5; i++ {
		_ = comp.GetQ(i)
	}
}
