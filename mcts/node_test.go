package mcts

import (
	"testing"

	"github.com/corvidchess/corvid/game"
)

func TestNodeBackupAndVirtualLoss(t *testing.T) {
	tree := NewNodeTree(2)
	n := tree.nodeFromNaughty(tree.Root())

	n.addVirtualLoss()
	if got := n.InFlight(); got != 1 {
		t.Fatalf("InFlight = %d, want 1", got)
	}
	n.backup(1)
	n.undoVirtualLoss()
	if got := n.InFlight(); got != 0 {
		t.Fatalf("InFlight after undo = %d, want 0", got)
	}
	if got := n.Visits(); got != 1 {
		t.Fatalf("Visits = %d, want 1", got)
	}
	if got := n.Q(); got != 1 {
		t.Fatalf("Q = %v, want 1", got)
	}

	n.backup(-1)
	if got := n.Q(); got != 0 {
		t.Fatalf("Q after second backup = %v, want 0", got)
	}
}

func TestNodeTerminal(t *testing.T) {
	tree := NewNodeTree(2)
	n := tree.nodeFromNaughty(tree.Root())

	if terminal, _ := n.IsTerminal(); terminal {
		t.Fatalf("fresh node reported terminal")
	}
	n.setTerminal(game.Win)
	terminal, _ := n.IsTerminal()
	if !terminal {
		t.Fatalf("node did not report terminal after setTerminal")
	}
	if !n.IsExpanded() {
		t.Fatalf("setTerminal should mark the node expanded")
	}
}
