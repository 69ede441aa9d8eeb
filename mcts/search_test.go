package mcts

import (
	"context"
	"testing"

	"github.com/corvidchess/corvid/nncache"
	"github.com/corvidchess/corvid/network"
)

func TestConfigValidateRejectsDualBudgets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PlayoutLimit = 100
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate() = nil, want error when both NodeLimit and PlayoutLimit are set")
	}
}

func TestConfigValidateRequiresABudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NodeLimit = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate() = nil, want error when no search budget is configured")
	}
}

func newTestSearch(t *testing.T, state *fakeState, nodeLimit int64) *Search {
	t.Helper()
	backend, err := network.Build("reference", map[string]string{"policy_size": "2"})
	if err != nil {
		t.Fatalf("network.Build: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Threads = 2
	cfg.NodeLimit = nodeLimit
	cfg.Seed = 42
	cache := nncache.New(1024)
	return NewSearch(cfg, backend, cache, state, nil)
}

func TestSearchRunReturnsALegalMove(t *testing.T) {
	state := newFakeState(3)
	s := newTestSearch(t, state, 200)

	move, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if move != 0 && move != 1 {
		t.Fatalf("BestMove = %d, want 0 or 1", move)
	}
	if s.Tree().RootNode().Visits() == 0 {
		t.Fatalf("root was never visited")
	}
}

func TestSearchRunIsDeterministicGivenSameSeed(t *testing.T) {
	state1 := newFakeState(3)
	s1 := newTestSearch(t, state1, 300)
	s1.cfg.Threads = 1
	move1, err := s1.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	state2 := newFakeState(3)
	s2 := newTestSearch(t, state2, 300)
	s2.cfg.Threads = 1
	move2, err := s2.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if move1 != move2 {
		t.Fatalf("single-threaded search with identical seed/config diverged: %d vs %d", move1, move2)
	}
}

func TestPrefetchPopulatesCacheWithoutExpanding(t *testing.T) {
	state := newFakeState(4)
	s := newTestSearch(t, state, 50)
	s.cfg.Threads = 1
	s.cfg.MaxPrefetch = 4
	s.cfg.MinibatchSize = 8
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	before := s.tree.Len()
	comp := nncache.NewComputation(s.cache, s.net.NewComputation(), true)
	added := s.prefetch(comp, ^uint64(0), s.prefetchBudget())
	if added == 0 {
		t.Fatalf("prefetch added 0 speculative leaves from a tree with visited children")
	}
	if err := comp.ComputeBlocking(context.Background()); err != nil {
		t.Fatalf("ComputeBlocking: %v", err)
	}
	comp.Release()

	if got := s.tree.Len(); got != before {
		t.Fatalf("prefetch expanded nodes: tree grew from %d to %d", before, got)
	}
}

func TestPrefetchBudgetBoundedByBatchRoom(t *testing.T) {
	state := newFakeState(4)
	s := newTestSearch(t, state, 10)
	s.cfg.MaxPrefetch = 10
	s.cfg.MinibatchSize = 3
	if got, want := s.prefetchBudget(), 2; got != want {
		t.Fatalf("prefetchBudget() = %d, want %d (MinibatchSize-1)", got, want)
	}
}

func TestSearchPromoteToRootCarriesTreeForward(t *testing.T) {
	state := newFakeState(4)
	s := newTestSearch(t, state, 100)
	move, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	next := state.Apply(state.NNToMove(move)).(*fakeState)
	if !s.Tree().PromoteToRoot(move) {
		t.Fatalf("PromoteToRoot(%d) failed even though Run just visited it", move)
	}

	cfg := s.cfg
	cfg.Seed = 7
	s2 := NewSearch(cfg, s.net, s.cache, next, s.Tree())
	if _, err := s2.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
}
