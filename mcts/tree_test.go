package mcts

import (
	"math/rand"
	"testing"
)

func TestExpandNormalizesPriorsOverLegalMoves(t *testing.T) {
	tree := NewNodeTree(4)
	state := newFakeState(2)
	policy := []float32{0.1, 0.3, 0.2, 0.4}

	tree.Expand(tree.Root(), state, policy, 0, false, rand.New(rand.NewSource(1)))

	children := tree.Children(tree.Root())
	if len(children) != 2 {
		t.Fatalf("got %d children, want 2 (only moves 0 and 1 are legal)", len(children))
	}
	var sum float32
	for _, kid := range children {
		sum += tree.nodeFromNaughty(kid).Prior()
	}
	if sum < 0.999 || sum > 1.001 {
		t.Fatalf("priors sum to %v, want ~1", sum)
	}
}

func TestExpandIsIdempotent(t *testing.T) {
	tree := NewNodeTree(2)
	state := newFakeState(2)
	rng := rand.New(rand.NewSource(1))

	tree.Expand(tree.Root(), state, []float32{0.5, 0.5}, 0, false, rng)
	first := len(tree.Children(tree.Root()))
	tree.Expand(tree.Root(), state, []float32{0.9, 0.1}, 0, false, rng)
	second := len(tree.Children(tree.Root()))
	if first != second {
		t.Fatalf("second Expand call changed child count: %d -> %d", first, second)
	}
}

func TestPromoteToRootFreesSiblingsAndKeepsChosenSubtree(t *testing.T) {
	tree := NewNodeTree(2)
	state := newFakeState(2)
	rng := rand.New(rand.NewSource(1))
	tree.Expand(tree.Root(), state, []float32{0.5, 0.5}, 0, false, rng)

	root := tree.Root()
	children := tree.Children(root)
	keep := children[0]
	keepMove := tree.nodeFromNaughty(keep).Move()
	tree.nodeFromNaughty(keep).backup(0.7)

	before := tree.Len()
	if !tree.PromoteToRoot(keepMove) {
		t.Fatalf("PromoteToRoot(%d) = false, want true", keepMove)
	}
	if tree.Root() == root {
		t.Fatalf("root did not change")
	}
	if got := tree.RootNode().Visits(); got != 1 {
		t.Fatalf("promoted root lost its accumulated visit, Visits = %d", got)
	}
	// the node count shouldn't grow - the discarded sibling becomes freelist,
	// not garbage, and the old root is freed too.
	if after := tree.Len(); after != before {
		t.Fatalf("tree grew across PromoteToRoot: %d -> %d", before, after)
	}

	if tree.PromoteToRoot(keepMove) {
		t.Fatalf("PromoteToRoot on an unexpanded root should fail (no children yet)")
	}
}

func TestCollectMovesReportsVisitsAndQ(t *testing.T) {
	tree := NewNodeTree(2)
	state := newFakeState(2)
	tree.Expand(tree.Root(), state, []float32{0.5, 0.5}, 0, false, rand.New(rand.NewSource(1)))

	children := tree.Children(tree.Root())
	tree.nodeFromNaughty(children[0]).backup(1)
	tree.nodeFromNaughty(children[0]).backup(1)
	tree.nodeFromNaughty(children[1]).backup(-1)

	moves := tree.CollectMoves()
	if len(moves) != 2 {
		t.Fatalf("got %d moves, want 2", len(moves))
	}
	for _, m := range moves {
		if m.Move == 0 && (m.Visits != 2 || m.Q != 1) {
			t.Fatalf("move 0 stats = %+v, want Visits=2 Q=1", m)
		}
		if m.Move == 1 && (m.Visits != 1 || m.Q != -1) {
			t.Fatalf("move 1 stats = %+v, want Visits=1 Q=-1", m)
		}
	}
}
