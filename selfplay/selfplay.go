// Package selfplay drives two alternating MCTS searches against one
// another to completion, sampling a training record per move and emitting
// a gzip chunk once the game ends.
package selfplay

import (
	"context"
	"io"
	"math"

	"github.com/notnil/chess"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/corvidchess/corvid/game"
	"github.com/corvidchess/corvid/mcts"
	"github.com/corvidchess/corvid/network"
	"github.com/corvidchess/corvid/nncache"
	"github.com/corvidchess/corvid/training"
)

// Config bundles per-search MCTS parameters with the self-play-specific
// adjudication and length knobs, exposed as tunable rather than hardcoded.
type Config struct {
	Search mcts.Config

	// ResignThreshold is the root Q below which a side to move is
	// considered lost; ResignPlies is how many consecutive own-moves it
	// must sustain that before the game is adjudicated a resignation.
	ResignThreshold float32
	ResignPlies     int

	// DrawScoreThreshold bounds |Q| for a position to count toward a draw
	// adjudication; DrawPlies is how many consecutive plies it must hold.
	DrawScoreThreshold float32
	DrawPlies          int

	MaxPlies int // hard cap so a misconfigured game can't run forever
}

// DefaultConfig mirrors common AlphaZero-descended self-play settings.
func DefaultConfig() Config {
	cfg := Config{
		Search:             mcts.DefaultConfig(),
		ResignThreshold:    -0.9,
		ResignPlies:        5,
		DrawScoreThreshold: 0.05,
		DrawPlies:          40,
		MaxPlies:           400,
	}
	cfg.Search.Noise = true
	cfg.Search.SelfPlay = true
	return cfg
}

// Result is the final outcome of one self-play game.
type Result struct {
	Winner       *chess.Color // nil for a draw
	Plies        int
	Adjudication string // "", "resign", "draw-adjudicated", "max-plies"
}

// Player is one side's evaluation backend: the Network it searches with
// and the NNCache it dedups against. Self-play pits a player against
// itself; Tournament's match mode can instead give White and Black
// distinct players to compare two networks.
type Player struct {
	Net   network.Network
	Cache *nncache.Cache
}

// PlayerSet assigns a Player to each color.
type PlayerSet struct {
	White, Black Player
}

// For returns the Player assigned to color c.
func (ps PlayerSet) For(c chess.Color) Player {
	if c == chess.White {
		return ps.White
	}
	return ps.Black
}

// SelfPlayer returns a PlayerSet where both colors share one network and
// cache - ordinary self-play, as opposed to a two-engine match.
func SelfPlayer(net network.Network, cache *nncache.Cache) PlayerSet {
	p := Player{Net: net, Cache: cache}
	return PlayerSet{White: p, Black: p}
}

// PlayGame runs one game from start to completion using players, writing a
// gzip training chunk to w. It returns the game's outcome.
func PlayGame(ctx context.Context, cfg Config, players PlayerSet, start game.State, seed int64, w io.Writer) (Result, error) {
	state := start.Clone()
	chunk := training.NewChunkWriter(w)

	trees := map[chess.Color]*mcts.NodeTree{}
	var sampleColors []chess.Color

	resignStreak := map[chess.Color]int{}
	drawStreak := 0

	for ply := 0; ; ply++ {
		if cfg.MaxPlies > 0 && ply >= cfg.MaxPlies {
			return finish(chunk, sampleColors, nil, ply, "max-plies")
		}
		if ended, result := state.EndedSelfPlay(); ended {
			winner := winnerFromResult(state.Turn(), result)
			return finish(chunk, sampleColors, winner, ply, "")
		}

		turn := state.Turn()
		player := players.For(turn)
		searchCfg := cfg.Search
		searchCfg.Seed = seed ^ int64(ply)*0x9E3779B97F4A7C15
		s := mcts.NewSearch(searchCfg, player.Net, player.Cache, state, trees[turn])

		move, err := s.Run(ctx)
		if err != nil {
			return Result{}, errors.Wrap(err, "selfplay: search failed")
		}
		if move < 0 {
			// no legal moves and the rules engine didn't already call it
			// ended - treat as a loss for the side to move.
			winner := opponent(turn)
			return finish(chunk, sampleColors, &winner, ply, "")
		}

		root := s.Tree().RootNode()
		chunk.Append(sampleRecord(state, s.Tree()))
		sampleColors = append(sampleColors, turn)
		klog.V(2).Infof("selfplay: ply %d %v played move=%d Q=%v visits=%d", ply, turn, move, root.Q(), root.Visits())

		if adjudicated, winner := adjudicate(&cfg, turn, root.Q(), resignStreak, &drawStreak); adjudicated {
			return finish(chunk, sampleColors, winner, ply+1, adjudicationLabel(winner))
		}

		nextState := state.Apply(state.NNToMove(move))
		s.Tree().PromoteToRoot(move)
		trees[turn] = s.Tree()
		if other := trees[opponent(turn)]; other != nil {
			other.PromoteToRoot(move)
		}
		state = nextState
	}
}

func opponent(c chess.Color) chess.Color {
	if c == chess.White {
		return chess.Black
	}
	return chess.White
}

// winnerFromResult converts a Result expressed from mover's perspective
// into an absolute winner color (or nil for a draw).
func winnerFromResult(mover chess.Color, result game.Result) *chess.Color {
	switch result {
	case game.Win:
		return &mover
	case game.Loss:
		o := opponent(mover)
		return &o
	default:
		return nil
	}
}

// adjudicate applies the resign/draw rules from a just-searched root's Q,
// mutating the streak trackers in place.
func adjudicate(cfg *Config, turn chess.Color, q float32, resignStreak map[chess.Color]int, drawStreak *int) (bool, *chess.Color) {
	if q < cfg.ResignThreshold {
		resignStreak[turn]++
	} else {
		resignStreak[turn] = 0
	}
	if cfg.ResignPlies > 0 && resignStreak[turn] >= cfg.ResignPlies {
		w := opponent(turn)
		return true, &w
	}

	if float32(math.Abs(float64(q))) < cfg.DrawScoreThreshold {
		*drawStreak++
	} else {
		*drawStreak = 0
	}
	if cfg.DrawPlies > 0 && *drawStreak >= cfg.DrawPlies {
		return true, nil
	}
	return false, nil
}

func adjudicationLabel(winner *chess.Color) string {
	if winner == nil {
		return "draw-adjudicated"
	}
	return "resign"
}

// sampleRecord builds a training.Record for the position that was just
// searched, with its improved policy target taken from the root's visit
// distribution (normalized visit counts) - the Result field is left zero
// and stamped once the game concludes.
func sampleRecord(state game.State, tree *mcts.NodeTree) training.Record {
	moves := tree.CollectMoves()
	var total uint32
	for _, m := range moves {
		total += m.Visits
	}
	policy := make(map[int32]float32, len(moves))
	if total > 0 {
		for _, m := range moves {
			policy[m.Move] = float32(m.Visits) / float32(total)
		}
	}

	planes := state.EncodePlanes()
	castling := [4]uint8{
		boolPlane(planes, game.CastlingPlaneWhiteKing),
		boolPlane(planes, game.CastlingPlaneWhiteQueen),
		boolPlane(planes, game.CastlingPlaneBlackKing),
		boolPlane(planes, game.CastlingPlaneBlackQueen),
	}
	stm := boolPlane(planes, game.SideToMovePlane)
	rule50 := uint8(planes[game.Rule50Plane*game.PlaneSquares]*100 + 0.5)

	return training.NewRecord(policy, state.HistoryBitboards(), castling, stm, rule50)
}

func boolPlane(planes []float32, plane int) uint8 {
	if planes[plane*game.PlaneSquares] != 0 {
		return 1
	}
	return 0
}

// finish stamps every buffered record with its result from that record's
// own side-to-move perspective, closes the chunk, and returns the game's
// Result.
func finish(chunk *training.ChunkWriter, sampleColors []chess.Color, winner *chess.Color, plies int, adjudication string) (Result, error) {
	results := make([]int8, len(sampleColors))
	for i, c := range sampleColors {
		switch {
		case winner == nil:
			results[i] = 0
		case *winner == c:
			results[i] = 1
		default:
			results[i] = -1
		}
	}
	if err := chunk.StampAll(results); err != nil {
		return Result{}, errors.Wrap(err, "selfplay: stamp chunk")
	}
	if err := chunk.Close(); err != nil {
		return Result{}, errors.Wrap(err, "selfplay: finalize chunk")
	}
	return Result{Winner: winner, Plies: plies, Adjudication: adjudication}, nil
}
