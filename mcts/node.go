package mcts

import (
	"fmt"
	"sync"

	"github.com/corvidchess/corvid/game"
)

// naughty is an arena index into a NodeTree's node slice, used instead of a
// pointer so the parent/child graph never forms a cycle of Go pointers.
type naughty int32

const nilNode naughty = -1

func (n naughty) isValid() bool { return n >= 0 }

// Node is one position in the search tree. Its statistics (n, nif, w, pi)
// are mutated concurrently by many search workers and are guarded by mu;
// everything else is written once, at Expand time, and read freely after.
type Node struct {
	tree *NodeTree
	id   naughty

	parent naughty
	move   int32 // NN move index, or -1 for the synthetic root

	mu  sync.Mutex
	n   uint32  // visit count N(s,a)
	nif uint32  // in-flight visit count (virtual loss)
	w   float32 // accumulated value sum from this node's own perspective
	pi  float32 // improved policy target, set once search on the parent concludes

	prior float32 // P(s,a) from the network

	expanded       bool
	terminal       bool
	terminalResult game.Result

	hash uint64 // position hash this node represents
}

// Format implements fmt.Formatter so %v on a *Node produces a compact,
// human-readable summary - handy in log lines and verbose-move-stats output.
func (n *Node) Format(s fmt.State, c rune) {
	st := n.Stats()
	fmt.Fprintf(s, "{id:%d move:%d N:%d Nif:%d Q:%v P:%v expanded:%v terminal:%v}",
		n.id, n.move, st.Visits, st.InFlight, st.Q, n.prior, n.expanded, n.terminal)
}

// Stats is a consistent snapshot of a node's mutable statistics.
type Stats struct {
	Visits   uint32
	InFlight uint32
	Q        float32
}

// Stats returns a consistent snapshot taken under the node's lock.
func (n *Node) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Stats{Visits: n.n, InFlight: n.nif, Q: n.q()}
}

// q computes Q(s,a) from the accumulated value sum. Callers must hold n.mu.
func (n *Node) q() float32 {
	if n.n == 0 {
		return 0
	}
	return n.w / float32(n.n)
}

// Visits returns N(s,a).
func (n *Node) Visits() uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.n
}

// InFlight returns the number of searches currently in-flight through this
// node (virtual loss count).
func (n *Node) InFlight() uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nif
}

// Q returns the current value estimate Q(s,a) from this node's own
// perspective (the side to move in the position this node represents).
func (n *Node) Q() float32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.q()
}

// Prior returns P(s,a) as set by Expand.
func (n *Node) Prior() float32 { return n.prior }

// Move returns the NN move index this node was reached by.
func (n *Node) Move() int32 { return n.move }

// Hash returns the hash of the position at this node.
func (n *Node) Hash() uint64 { return n.hash }

// IsExpanded reports whether Expand has populated this node's children.
func (n *Node) IsExpanded() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.expanded
}

// IsTerminal reports whether this node is a terminal game state, and if so
// its result from the perspective of the side to move in this position.
func (n *Node) IsTerminal() (bool, game.Result) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.terminal, n.terminalResult
}

// setTerminal marks the node as terminal with the given result, expressed
// from the perspective of the side to move in this position (the same
// perspective as the node's Q).
func (n *Node) setTerminal(result game.Result) {
	n.mu.Lock()
	n.terminal = true
	n.terminalResult = result
	n.expanded = true
	n.mu.Unlock()
}

// addVirtualLoss records that one search worker is currently descending
// through this node, so concurrent workers see a temporarily pessimistic Q
// and are steered toward other branches.
func (n *Node) addVirtualLoss() {
	n.mu.Lock()
	n.nif++
	n.mu.Unlock()
}

// undoVirtualLoss reverses addVirtualLoss once the worker's backup pass
// reaches this node with a real result.
func (n *Node) undoVirtualLoss() {
	n.mu.Lock()
	if n.nif > 0 {
		n.nif--
	}
	n.mu.Unlock()
}

// backup folds one playout's result (from this node's own perspective) into
// the running visit count and value sum.
func (n *Node) backup(v float32) {
	n.mu.Lock()
	n.n++
	n.w += v
	n.mu.Unlock()
}

// setPi records the improved policy target derived from this node's share
// of its parent's visit distribution, used when emitting training records.
func (n *Node) setPi(p float32) {
	n.mu.Lock()
	n.pi = p
	n.mu.Unlock()
}

// Pi returns the improved policy target set by setPi.
func (n *Node) Pi() float32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pi
}

// reset clears a node for reuse from the freelist, under the node's own
// lock; NodeTree.free calls it before taking the tree's structural lock.
func (n *Node) reset() {
	n.mu.Lock()
	n.parent = nilNode
	n.move = -1
	n.n = 0
	n.nif = 0
	n.w = 0
	n.pi = 0
	n.prior = 0
	n.expanded = false
	n.terminal = false
	n.terminalResult = game.Unknown
	n.hash = 0
	n.mu.Unlock()
}
