package mcts

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/corvidchess/corvid/game"
	distrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distmv"
)

// dirichletEpsilon and dirichletAlpha are the AlphaZero root-noise
// parameters: the root prior is blended (1-epsilon)*p + epsilon*noise so
// self-play exploration doesn't collapse onto the network's raw policy at
// the very first ply of every game.
const (
	dirichletEpsilon = 0.25
	dirichletAlpha   = 0.3
)

// NodeTree is the arena that owns every Node in a search. Nodes are never
// freed individually with Go's allocator - PromoteToRoot recycles whole
// discarded subtrees onto a freelist instead, to dodge GC pressure from a
// tree that can legitimately hold millions of nodes mid-search.
type NodeTree struct {
	mu sync.RWMutex // guards nodes/children/freelist against concurrent Expand/PromoteToRoot

	actionSpace int
	nodes       []*Node     // each Node is heap-allocated once and never moved; only the index slice grows
	children    [][]naughty // children[i] is node i's children, ordered by move index once expanded
	freelist    []naughty

	root naughty
}

// NewNodeTree allocates an empty tree sized for a game with the given
// move-index space, and creates its synthetic root node.
func NewNodeTree(actionSpace int) *NodeTree {
	t := &NodeTree{
		actionSpace: actionSpace,
		nodes:       make([]*Node, 0, 4096),
		children:    make([][]naughty, 0, 4096),
	}
	t.root = t.alloc()
	root := t.nodeFromNaughty(t.root)
	root.parent = nilNode
	root.move = -1
	return t
}

// Root returns the current root's arena index.
func (t *NodeTree) Root() naughty { return t.root }

// RootNode returns the current root node.
func (t *NodeTree) RootNode() *Node { return t.nodeFromNaughty(t.root) }

// nodeFromNaughty returns the node at index n. The returned pointer is
// stable for the node's lifetime: each Node is heap-allocated individually
// by alloc, so growing the index slice never relocates a live Node, only
// the slice of pointers to them.
func (t *NodeTree) nodeFromNaughty(n naughty) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[n]
}

// Children returns node n's children in move-index order. The slice must
// not be mutated by the caller; it is only ever replaced wholesale, under
// t.mu, by Expand or PromoteToRoot.
func (t *NodeTree) Children(n naughty) []naughty {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.children[n]
}

// alloc returns a fresh or recycled node index with everything but id/tree
// zeroed.
func (t *NodeTree) alloc() naughty {
	t.mu.Lock()
	defer t.mu.Unlock()

	if l := len(t.freelist); l > 0 {
		id := t.freelist[l-1]
		t.freelist = t.freelist[:l-1]
		return id
	}

	id := naughty(len(t.nodes))
	t.nodes = append(t.nodes, &Node{tree: t, id: id, parent: nilNode, move: -1})
	t.children = append(t.children, nil)
	return id
}

// free puts n back on the freelist for reuse. Callers must have already
// detached n from its parent's children slice.
func (t *NodeTree) free(n naughty) {
	node := t.nodeFromNaughty(n)
	node.reset()
	t.mu.Lock()
	t.children[n] = t.children[n][:0]
	t.freelist = append(t.freelist, n)
	t.mu.Unlock()
}

// freeSubtree recursively frees n and everything below it.
func (t *NodeTree) freeSubtree(n naughty) {
	for _, kid := range t.Children(n) {
		t.freeSubtree(kid)
	}
	t.free(n)
}

// Expand populates node n's children from policy (indexed by NN move index)
// restricted to legalMoves, normalizing their priors to sum to 1 over the
// legal subset. When addNoise is true (Search passes it only for the
// root), the prior distribution is blended with Dirichlet(alpha)
// noise per AlphaZero's self-play exploration scheme. value is the
// network's value estimate for the position n represents, from the side to
// move's perspective; it is folded into n's own statistics as its first
// backup.
func (t *NodeTree) Expand(n naughty, state game.State, policy []float32, value float32, addNoise bool, rng *rand.Rand) {
	node := t.nodeFromNaughty(n)
	if node.IsExpanded() {
		return
	}

	legal := state.LegalMoveIndices()
	priors := make([]float32, len(legal))
	var sum float32
	for i, m := range legal {
		p := float32(0)
		if int(m) < len(policy) {
			p = policy[m]
		}
		if p < 0 {
			p = 0
		}
		priors[i] = p
		sum += p
	}
	if sum > 1e-8 {
		for i := range priors {
			priors[i] /= sum
		}
	} else if len(priors) > 0 {
		uniform := float32(1) / float32(len(priors))
		for i := range priors {
			priors[i] = uniform
		}
	}

	if addNoise && len(priors) > 0 {
		noise := dirichletSample(len(priors), rng)
		for i := range priors {
			priors[i] = (1-dirichletEpsilon)*priors[i] + dirichletEpsilon*noise[i]
		}
	}

	children := make([]naughty, len(legal))
	for i, m := range legal {
		child := t.alloc()
		cn := t.nodeFromNaughty(child)
		cn.parent = n
		cn.move = m
		cn.prior = priors[i]
		children[i] = child
	}
	sort.Slice(children, func(i, j int) bool {
		return t.nodeFromNaughty(children[i]).move < t.nodeFromNaughty(children[j]).move
	})

	t.mu.Lock()
	t.children[n] = children
	t.mu.Unlock()

	node.mu.Lock()
	node.expanded = true
	node.hash = state.Hash()
	node.mu.Unlock()
	node.backup(value)
}

// dirichletSample draws one sample from a symmetric Dirichlet(alpha) over
// size categories, using gonum's distmv.Dirichlet seeded from rng so the
// whole search stays reproducible under a fixed seed.
func dirichletSample(size int, rng *rand.Rand) []float32 {
	alpha := make([]float64, size)
	for i := range alpha {
		alpha[i] = dirichletAlpha
	}
	seed := rng.Uint64()
	dist := distmv.NewDirichlet(alpha, distrand.NewSource(seed))
	sample := dist.Rand(nil)
	out := make([]float32, size)
	for i, v := range sample {
		out[i] = float32(v)
	}
	return out
}

// FindChild returns the child of n reached by move, or nilNode.
func (t *NodeTree) FindChild(n naughty, move int32) naughty {
	for _, kid := range t.Children(n) {
		if t.nodeFromNaughty(kid).move == move {
			return kid
		}
	}
	return nilNode
}

// PromoteToRoot makes the child of the current root reached by move the new
// root, freeing every sibling subtree - this is how a tree is reused across
// moves instead of rebuilt from scratch. It reports false, leaving the tree
// untouched, if no such child exists - the caller should then discard the
// tree and start a fresh one.
func (t *NodeTree) PromoteToRoot(move int32) bool {
	newRoot := t.FindChild(t.root, move)
	if newRoot == nilNode {
		return false
	}

	for _, kid := range t.Children(t.root) {
		if kid != newRoot {
			t.freeSubtree(kid)
		}
	}
	oldRoot := t.root
	t.root = newRoot
	t.nodeFromNaughty(newRoot).parent = nilNode
	t.free(oldRoot)
	return true
}

// MoveVisit is one root child's move index and visit count, as reported by
// CollectMoves.
type MoveVisit struct {
	Move   int32
	Visits uint32
	Q      float32
}

// CollectMoves returns the root's children's (move, visits, Q) triples in
// move-index order - the raw material for both best-move selection and
// training-record policy targets.
func (t *NodeTree) CollectMoves() []MoveVisit {
	children := t.Children(t.root)
	out := make([]MoveVisit, len(children))
	for i, kid := range children {
		n := t.nodeFromNaughty(kid)
		st := n.Stats()
		out[i] = MoveVisit{Move: n.move, Visits: st.Visits, Q: st.Q}
	}
	return out
}

// Len returns the total number of nodes currently allocated in the tree
// (including freed-but-not-yet-reused slots).
func (t *NodeTree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}
