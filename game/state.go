package game

import "github.com/notnil/chess"

// Move encodes a chess move in UCI notation ("e2e4", "e7e8q", ...).
type Move string

// ResignMove is a sentinel Move, distinct from any legal UCI string, for
// "no move to offer". The search itself reports that case as move index -1
// rather than through this value.
const ResignMove Move = ""

// Result is the outcome of a position from the perspective of the side to
// move at that position, using the WIN/DRAW/LOSS/UNKNOWN alphabet terminal
// nodes carry.
type Result int8

// Result values.
const (
	Unknown Result = iota
	Win
	Draw
	Loss
)

func (r Result) String() string {
	switch r {
	case Win:
		return "WIN"
	case Draw:
		return "DRAW"
	case Loss:
		return "LOSS"
	default:
		return "UNKNOWN"
	}
}

// Value returns the numeric value a terminal Result contributes to a
// backup: +1/0/-1 from the perspective it was computed for.
func (r Result) Value() float32 {
	switch r {
	case Win:
		return 1
	case Loss:
		return -1
	default:
		return 0
	}
}

// State is a game position plus enough history to support MCTS tree reuse,
// repetition detection, and training-record encoding. It is the boundary
// between the search core and the external rules engine (here,
// github.com/notnil/chess) - the core only ever calls through this
// interface.
type State interface {
	// ActionSpace returns the size of the fixed move-index space.
	ActionSpace() int
	// Hash returns a 64-bit position hash, stable across equivalent
	// positions (same board, side to move, castling rights, ep square,
	// and repetition count).
	Hash() uint64
	// Turn returns the color to move next.
	Turn() chess.Color
	// MoveNumber returns the ply count leading to this position.
	MoveNumber() int
	// LastMove returns the move-index of the move that produced this
	// position, or -1 at the start of the game.
	LastMove() int32

	// NNToMove decodes a move-index into a UCI move string.
	NNToMove(idx int32) Move
	// MoveToNN encodes a legal UCI move string into its move-index.
	MoveToNN(m Move) (int32, bool)
	// LegalMoveIndices returns the move-index of every legal move from
	// this position, in ascending order.
	LegalMoveIndices() []int32

	// Ended reports whether the game is over and, if so, the Result from
	// the perspective of the side to move at this position.
	Ended() (ended bool, result Result)
	// EndedSelfPlay is Ended, but additionally treats a position that has
	// occurred for the third time, or 50 full moves without a capture or
	// pawn push, as an immediate draw. Match mode should use Ended and let
	// the external rules engine own repetition/50-move adjudication.
	EndedSelfPlay() (ended bool, result Result)

	// Check reports whether m is legal from this position.
	Check(m Move) bool
	// Apply returns the State reached by playing m.
	Apply(m Move) State
	// Reset returns the state to the start of the game.
	Reset()

	// UndoLastMove and Fwd move the history pointer backward/forward
	// without mutating the underlying move list - used by NodeTree to
	// test whether a new root state descends from the current tree.
	UndoLastMove()
	Fwd()

	Eq(other State) bool
	Clone() State

	// EncodePlanes returns the NumPlanes x 64 float input the Network
	// consumes for the current position.
	EncodePlanes() []float32
	// HistoryBitboards returns the HistoryPlanes 64-bit occupancy
	// bitboards a training record stores for the current position.
	HistoryBitboards() [HistoryPlanes]uint64
}
