// Package tournament coordinates many games in parallel - self-play
// production at scale, or a match between two distinct networks - and
// aggregates their outcomes. Games run concurrently up to a configurable
// limit, with graceful cancellation and a progress callback fired as each
// game finishes.
package tournament

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/notnil/chess"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/corvidchess/corvid/game"
	"github.com/corvidchess/corvid/selfplay"
)

// Config controls how a tournament's games are scheduled.
type Config struct {
	// Games is the total number of games to play.
	Games int
	// Parallelism bounds how many games run at once. Zero means
	// unlimited (errgroup.Group's default, no SetLimit call).
	Parallelism int

	SelfPlay selfplay.Config
}

// GameResult is one completed game's outcome, reported to Progress.
type GameResult struct {
	ID     int
	Result selfplay.Result
	// Swapped reports whether color balancing gave White to player B for
	// this game (odd game IDs); otherwise player A is White.
	Swapped bool
	Err     error
	// Completed is the number of games recorded so far, including this
	// one. It is computed under the Tournament's own lock before Progress
	// is called, so callers never need to synchronize their own counter
	// across concurrently-running games.
	Completed int
}

// Summary aggregates every completed game in a tournament.
type Summary struct {
	Games      int
	AWins      int
	BWins      int
	Draws      int
	Incomplete int // games that errored or were cancelled before finishing
}

// ChunkFactory returns a fresh writer to receive game ID's training chunk.
// The caller owns closing anything it allocates beyond what PlayGame
// itself closes.
type ChunkFactory func(gameID int) (io.WriteCloser, error)

// Tournament runs Config.Games games between two players (A and B),
// color-balancing by game-ID parity, starting a new game whenever a slot
// frees up, up to Parallelism at a time.
type Tournament struct {
	cfg     Config
	a, b    selfplay.Player
	start   game.State
	seed    int64
	chunks  ChunkFactory
	Progress func(GameResult)

	mu      sync.Mutex
	summary Summary
}

// New builds a Tournament pitting player a against player b (b == a for
// ordinary self-play production) from the given start position.
func New(cfg Config, a, b selfplay.Player, start game.State, seed int64, chunks ChunkFactory) *Tournament {
	return &Tournament{cfg: cfg, a: a, b: b, start: start, seed: seed, chunks: chunks}
}

// Run plays every game, returning the aggregate Summary. Cancelling ctx
// stops new games from starting; games already in flight are allowed to
// finish. Per-game errors are aggregated via multierror rather than
// aborting the whole tournament, so one game's failure doesn't cancel the
// rest.
func (t *Tournament) Run(ctx context.Context) (Summary, error) {
	var wg errgroup.Group
	if t.cfg.Parallelism > 0 {
		wg.SetLimit(t.cfg.Parallelism)
	}

	start := time.Now()
	var errMu sync.Mutex
	var runErr error
	for gameID := 0; gameID < t.cfg.Games; gameID++ {
		gameID := gameID
		wg.Go(func() error {
			if err := ctx.Err(); err != nil {
				t.record(gameID, GameResult{ID: gameID, Err: err}, err)
				return nil
			}
			res, err := t.runOne(ctx, gameID)
			t.record(gameID, res, err)
			if err != nil {
				errMu.Lock()
				runErr = multierror.Append(runErr, err)
				errMu.Unlock()
			}
			return nil
		})
	}
	wg.Wait()

	t.mu.Lock()
	summary := t.summary
	t.mu.Unlock()
	klog.Infof("tournament: %d games (%d A-wins, %d B-wins, %d draws, %d incomplete) in %s",
		summary.Games, summary.AWins, summary.BWins, summary.Draws, summary.Incomplete, time.Since(start))
	return summary, runErr
}

// runOne plays a single game, swapping which player is White when gameID
// is odd so both players see both colors over the course of the
// tournament.
func (t *Tournament) runOne(ctx context.Context, gameID int) (GameResult, error) {
	swapped := gameID%2 == 1
	players := selfplay.PlayerSet{White: t.a, Black: t.b}
	if swapped {
		players = selfplay.PlayerSet{White: t.b, Black: t.a}
	}

	var w io.WriteCloser
	if t.chunks != nil {
		var err error
		w, err = t.chunks(gameID)
		if err != nil {
			return GameResult{ID: gameID, Swapped: swapped}, err
		}
		defer w.Close()
	} else {
		w = nopWriteCloser{io.Discard}
	}

	gameSeed := t.seed ^ int64(gameID)*0x9E3779B97F4A7C15
	result, err := selfplay.PlayGame(ctx, t.cfg.SelfPlay, players, t.start, gameSeed, w)
	gr := GameResult{ID: gameID, Result: result, Swapped: swapped, Err: err}
	return gr, err
}

// record folds one game's outcome into the running Summary from A's
// perspective, undoing the color swap first, and fires Progress. The
// Summary mutation and the Completed count Progress receives are both
// computed under t.mu, so concurrent games calling record never race on
// either.
func (t *Tournament) record(gameID int, gr GameResult, err error) {
	t.mu.Lock()
	t.summary.Games++
	switch {
	case err != nil:
		t.summary.Incomplete++
	case gr.Result.Winner == nil:
		t.summary.Draws++
	default:
		winnerIsA := (*gr.Result.Winner == chess.White) != gr.Swapped
		if winnerIsA {
			t.summary.AWins++
		} else {
			t.summary.BWins++
		}
	}
	completed := t.summary.Games
	t.mu.Unlock()

	gr.ID = gameID
	gr.Completed = completed
	if t.Progress != nil {
		t.Progress(gr)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
