package game

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/notnil/chess"
)

// Chess is a game.State backed by github.com/notnil/chess. It keeps the
// full move history so the MCTS tree can be promoted/rewound as the game
// progresses, and so EncodePlanes can look back HistoryPlies.
type Chess struct {
	sync.Mutex
	history            []chess.Game
	actionSpace        map[int32]Move
	reverseActionSpace map[Move]int32
	histPtr            int
}

// ChessGame returns a new Chess game state at the start position. movesFile
// is a file containing the fixed UCI move-index space, one move per line
// (see cmd/corvid-genactions).
func ChessGame(movesFile string) *Chess {
	g, err := ChessGameFromFEN(movesFile, "")
	if err != nil {
		log.Fatal(err)
	}
	return g
}

// ChessGameFromFEN is ChessGame, starting from fen instead of the initial
// position (used by corvid-bench to run a search against an arbitrary
// position, and by tests exercising boundary positions like mate-in-one or
// stalemate). An empty fen behaves exactly like ChessGame.
func ChessGameFromFEN(movesFile, fen string) (*Chess, error) {
	f, err := os.Open(movesFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	actionSpace := make(map[int32]Move)
	reverseActionSpace := make(map[Move]int32)
	scanner := bufio.NewScanner(f)
	var idx int32
	for scanner.Scan() {
		m := Move(scanner.Text())
		actionSpace[idx] = m
		reverseActionSpace[m] = idx
		idx++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	opts := []func(*chess.Game){chess.UseNotation(chess.UCINotation{})}
	if fen != "" {
		fenOpt, err := chess.FEN(fen)
		if err != nil {
			return nil, fmt.Errorf("game: parsing FEN %q: %w", fen, err)
		}
		opts = append(opts, fenOpt)
	}

	g := chess.NewGame(opts...)
	return &Chess{
		history:            []chess.Game{*g},
		actionSpace:        actionSpace,
		reverseActionSpace: reverseActionSpace,
		histPtr:            0,
	}, nil
}

// ActionSpace returns the number of permissible actions.
func (g *Chess) ActionSpace() int {
	return len(g.actionSpace)
}

// Board returns the current board.
func (g *Chess) Board() *chess.Board {
	return g.history[g.histPtr].Position().Board()
}

// position returns the current chess.Position.
func (g *Chess) position() *chess.Position {
	return g.history[g.histPtr].Position()
}

// Turn returns the color to move next.
func (g *Chess) Turn() chess.Color {
	return g.position().Turn()
}

// MoveNumber returns count of moves so far that led to this point.
func (g *Chess) MoveNumber() int {
	return g.histPtr
}

// Hash returns a 64-bit position hash derived from the rules engine's own
// position hash.
func (g *Chess) Hash() uint64 {
	h := g.position().Hash()
	return binary.LittleEndian.Uint64(h[:8])
}

// LastMove returns the move-index of the last move played, or -1 if none.
func (g *Chess) LastMove() int32 {
	if g.histPtr == 0 {
		return -1
	}
	moves := g.history[g.histPtr].Moves()
	m := Move(moves[len(moves)-1].String())
	idx, ok := g.reverseActionSpace[m]
	if !ok {
		log.Panicf("game: move out of action space: %s", m)
	}
	return idx
}

// NNToMove decodes a move-index into a UCI move string.
func (g *Chess) NNToMove(idx int32) Move {
	m, ok := g.actionSpace[idx]
	if !ok {
		log.Panicf("game: invalid move index: %d", idx)
	}
	return m
}

// MoveToNN encodes a legal UCI move string into its move-index.
func (g *Chess) MoveToNN(m Move) (int32, bool) {
	idx, ok := g.reverseActionSpace[m]
	return idx, ok
}

// LegalMoveIndices returns the move-index of every legal move from this
// position, in ascending order of move index - the stable order tree
// expansion relies on.
func (g *Chess) LegalMoveIndices() []int32 {
	moves := g.history[g.histPtr].ValidMoves()
	out := make([]int32, 0, len(moves))
	for _, m := range moves {
		idx, ok := g.reverseActionSpace[Move(m.String())]
		if !ok {
			log.Panicf("game: legal move missing from action space: %s", m.String())
		}
		out = append(out, idx)
	}
	sortInt32s(out)
	return out
}

// Ended returns whether the game has a decided outcome under the rules
// engine's own adjudication (checkmate, stalemate, explicit draw), and the
// Result from the perspective of the side to move.
func (g *Chess) Ended() (bool, Result) {
	outcome := g.history[g.histPtr].Outcome()
	if outcome == chess.NoOutcome {
		return false, Unknown
	}
	if outcome == chess.Draw {
		return true, Draw
	}
	toMove := g.Turn()
	if (outcome == chess.WhiteWon && toMove == chess.Black) ||
		(outcome == chess.BlackWon && toMove == chess.White) {
		// The side now to move is the side who got mated.
		return true, Loss
	}
	return true, Win
}

// EndedSelfPlay is Ended, extended to treat threefold repetition and the
// fifty-move rule as an immediate draw.
func (g *Chess) EndedSelfPlay() (bool, Result) {
	if ended, result := g.Ended(); ended {
		return ended, result
	}
	for _, method := range g.history[g.histPtr].EligibleDraws() {
		if method == chess.ThreefoldRepetition || method == chess.FiftyMoveRule {
			return true, Draw
		}
	}
	return false, Unknown
}

// Resign resigns the game for color, marking it ended.
func (g *Chess) Resign(color chess.Color) {
	g.history[g.histPtr].Resign(color)
}

// Check checks if m is legal from this position.
func (g *Chess) Check(m Move) bool {
	for _, move := range g.history[g.histPtr].ValidMoves() {
		if Move(move.String()) == m {
			return true
		}
	}
	return false
}

// Apply applies m and returns the resulting state. Panics if m is illegal -
// callers are expected to have checked Check(m) or used LegalMoveIndices.
func (g *Chess) Apply(m Move) State {
	newG := g.history[g.histPtr].Clone()
	if err := newG.MoveStr(string(m)); err != nil {
		panic(fmt.Sprintf("game: illegal move %q: %v", m, err))
	}
	g.histPtr++
	if g.histPtr > len(g.history) {
		panic(fmt.Sprintf("game: history pointer %d exceeds history length %d", g.histPtr, len(g.history)))
	}
	if g.histPtr == len(g.history) {
		g.history = append(g.history, *newG)
	} else {
		g.history[g.histPtr] = *newG
	}
	return g
}

// Reset resets state to the start of the game.
func (g *Chess) Reset() {
	g.history = g.history[:1]
	g.histPtr = 0
}

// UndoLastMove moves the history pointer back by one ply.
func (g *Chess) UndoLastMove() {
	if g.histPtr > 0 {
		g.histPtr--
	}
}

// Fwd moves the history pointer forward by one ply.
func (g *Chess) Fwd() {
	if g.histPtr < len(g.history)-1 {
		g.histPtr++
	}
}

// Eq reports whether two states are at the same position.
func (g *Chess) Eq(other State) bool {
	ot, ok := other.(*Chess)
	if !ok {
		return false
	}
	return ot.position().Hash() == g.position().Hash()
}

// Clone deep-copies the state.
func (g *Chess) Clone() State {
	g.Lock()
	defer g.Unlock()
	n := &Chess{
		history:            make([]chess.Game, len(g.history)),
		actionSpace:        g.actionSpace,
		reverseActionSpace: g.reverseActionSpace,
		histPtr:            g.histPtr,
	}
	copy(n.history, g.history)
	return n
}

// ShowBoard prints the current board to stdout.
func (g *Chess) ShowBoard() {
	fmt.Println(g.history[g.histPtr].Position().Board().Draw())
}

// Moves returns the legal moves from this position as UCI strings.
func (g *Chess) Moves() []Move {
	moves := g.history[g.histPtr].ValidMoves()
	out := make([]Move, len(moves))
	for i, m := range moves {
		out[i] = Move(m.String())
	}
	return out
}

func sortInt32s(a []int32) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j-1] > a[j]; j-- {
			a[j-1], a[j] = a[j], a[j-1]
		}
	}
}
