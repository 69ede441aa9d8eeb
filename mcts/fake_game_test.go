package mcts

import (
	"fmt"
	"strconv"

	"github.com/corvidchess/corvid/game"
	"github.com/notnil/chess"
)

// fakeState is a minimal two-move-per-ply toy game used to exercise the
// tree/search machinery without pulling in a real chess position: from any
// non-terminal node there are exactly two legal moves (0 and 1), and the
// game ends in a win for whichever side is to move once depth reaches
// maxDepth, with the winner decided by the parity of how many times move 1
// was chosen along the path - just enough structure to make PUCT's
// preference observable in a test.
type fakeState struct {
	path     []int32
	maxDepth int
}

func newFakeState(maxDepth int) *fakeState {
	return &fakeState{maxDepth: maxDepth}
}

func (f *fakeState) ActionSpace() int { return 2 }

func (f *fakeState) Hash() uint64 {
	var h uint64 = 14695981039346656037
	for _, m := range f.path {
		h ^= uint64(m)
		h *= 1099511628211
	}
	return h
}

func (f *fakeState) Turn() chess.Color { return chess.White }
func (f *fakeState) MoveNumber() int   { return len(f.path) }
func (f *fakeState) LastMove() int32 {
	if len(f.path) == 0 {
		return -1
	}
	return f.path[len(f.path)-1]
}

func (f *fakeState) NNToMove(idx int32) game.Move { return game.Move(strconv.Itoa(int(idx))) }
func (f *fakeState) MoveToNN(m game.Move) (int32, bool) {
	n, err := strconv.Atoi(string(m))
	if err != nil {
		return 0, false
	}
	return int32(n), true
}

func (f *fakeState) LegalMoveIndices() []int32 {
	if len(f.path) >= f.maxDepth {
		return nil
	}
	return []int32{0, 1}
}

func (f *fakeState) ended() (bool, game.Result) {
	if len(f.path) < f.maxDepth {
		return false, game.Unknown
	}
	var ones int
	for _, m := range f.path {
		if m == 1 {
			ones++
		}
	}
	if ones%2 == 0 {
		return true, game.Win
	}
	return true, game.Loss
}

func (f *fakeState) Ended() (bool, game.Result)         { return f.ended() }
func (f *fakeState) EndedSelfPlay() (bool, game.Result) { return f.ended() }

func (f *fakeState) Check(m game.Move) bool {
	idx, ok := f.MoveToNN(m)
	if !ok || len(f.path) >= f.maxDepth {
		return false
	}
	return idx == 0 || idx == 1
}

func (f *fakeState) Apply(m game.Move) game.State {
	idx, _ := f.MoveToNN(m)
	next := &fakeState{path: append(append([]int32{}, f.path...), idx), maxDepth: f.maxDepth}
	return next
}

func (f *fakeState) Reset()         { f.path = nil }
func (f *fakeState) UndoLastMove()  {}
func (f *fakeState) Fwd()           {}

func (f *fakeState) Eq(other game.State) bool {
	o, ok := other.(*fakeState)
	if !ok {
		return false
	}
	return fmt.Sprint(o.path) == fmt.Sprint(f.path)
}

func (f *fakeState) Clone() game.State {
	return &fakeState{path: append([]int32{}, f.path...), maxDepth: f.maxDepth}
}

func (f *fakeState) EncodePlanes() []float32 { return make([]float32, 112*64) }

func (f *fakeState) HistoryBitboards() [game.HistoryPlanes]uint64 {
	var out [game.HistoryPlanes]uint64
	return out
}
