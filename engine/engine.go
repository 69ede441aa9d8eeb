package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/notnil/chess"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/corvidchess/corvid/game"
	"github.com/corvidchess/corvid/mcts"
	"github.com/corvidchess/corvid/network"
	"github.com/corvidchess/corvid/nncache"
	"github.com/corvidchess/corvid/selfplay"
	"github.com/corvidchess/corvid/tournament"
)

// ThinkingInfo mirrors mcts.Info (which already carries score_cp as CP)
// plus the hashfull field OnThinkingInfo additionally reports.
type ThinkingInfo struct {
	mcts.Info
	HashFull int // cache occupancy, permille
}

// GameInfo is reported once a self-play or tournament game concludes.
type GameInfo struct {
	Result           string
	TrainingFilename string
	Moves            int
	GameID           int
	Side             string
}

// TournamentInfo is reported as a tournament progresses.
type TournamentInfo struct {
	// Results[i][j]: wins for player i against outcome j, j in
	// {win, draw, loss} order.
	Results  [2][3]int
	Finished bool
}

// Engine wires a Config's weights/backend/cache/search stack together and
// exposes the operations a CLI front end needs: think on a single
// position, or drive self-play/tournament games to completion.
type Engine struct {
	cfg   Config
	net   network.Network
	cache *nncache.Cache
	mux   *network.Multiplexer

	OnBestMove       func(bestmove, ponder string)
	OnThinkingInfo   func(ThinkingInfo)
	OnGameInfo       func(GameInfo)
	OnTournamentInfo func(TournamentInfo)
}

// New validates cfg, resolves its backend, and builds the cache and
// multiplexer every subsequent operation shares.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "engine: invalid config")
	}

	opts := cfg.BackendOpts
	if opts == nil {
		opts = map[string]string{}
	}
	if cfg.Weights != "" {
		opts["weights"] = cfg.Weights
	}
	backend, err := network.Build(cfg.Backend, opts)
	if err != nil {
		return nil, errors.Wrap(err, "engine: resolving backend")
	}

	mux := network.NewMultiplexer([]network.Network{backend}, 1, cfg.MinibatchSize)
	cache := nncache.New(cfg.CacheSize)

	return &Engine{cfg: cfg, net: mux, cache: cache, mux: mux}, nil
}

// Close stops the backend multiplexer's worker goroutines.
func (e *Engine) Close() {
	e.mux.Close()
}

// NewGame constructs a fresh game.State using the engine's configured
// move-index table.
func (e *Engine) NewGame() game.State {
	return game.ChessGame(e.cfg.MovesFile)
}

// Think runs one search on state and returns the chosen move's index (-1
// if there is none) and the searched tree, firing OnThinkingInfo
// periodically and OnBestMove (with the move's UCI string) once done.
// tree, if non-nil, is searched from its current root instead of a fresh
// tree; Think does not call PromoteToRoot on it.
func (e *Engine) Think(ctx context.Context, state game.State, tree *mcts.NodeTree) (move int32, usedTree *mcts.NodeTree, err error) {
	searchCfg := e.cfg.searchConfig()
	s := mcts.NewSearch(searchCfg, e.net, e.cache, state, tree)

	if e.OnThinkingInfo != nil {
		s.OnInfo = func(info mcts.Info) {
			e.OnThinkingInfo(ThinkingInfo{Info: info, HashFull: e.hashFullPermille()})
		}
	}

	best, err := s.Run(ctx)
	if err != nil {
		return -1, s.Tree(), errors.Wrap(err, "engine: search failed")
	}

	if e.OnBestMove != nil {
		bestmove := ""
		if best >= 0 {
			bestmove = string(state.NNToMove(best))
		}
		e.OnBestMove(bestmove, "")
	}
	return best, s.Tree(), nil
}

func (e *Engine) hashFullPermille() int {
	if e.cfg.CacheSize <= 0 {
		return 0
	}
	return e.cache.Len() * 1000 / e.cfg.CacheSize
}

// SelfPlayGames drives a tournament.Tournament of pure self-play games
// (one network, both colors) to completion, writing one gzip chunk file
// per game into outDir and firing OnGameInfo/OnTournamentInfo as the
// engine's own callbacks report progress.
func (e *Engine) SelfPlayGames(ctx context.Context, games, parallelism int, outDir string, seed int64) (tournament.Summary, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return tournament.Summary{}, errors.Wrap(err, "engine: creating output directory")
	}

	spCfg := selfplay.DefaultConfig()
	spCfg.Search = e.cfg.searchConfig()
	spCfg.Search.SelfPlay = true

	player := selfplay.Player{Net: e.net, Cache: e.cache}
	players := selfplay.SelfPlayer(player.Net, player.Cache)

	tCfg := tournament.Config{Games: games, Parallelism: parallelism, SelfPlay: spCfg}
	chunkErrs := &multierror.Error{}
	chunks := func(gameID int) (io.WriteCloser, error) {
		path := filepath.Join(outDir, fmt.Sprintf("game-%06d.chunk.gz", gameID))
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		return f, nil
	}

	tr := tournament.New(tCfg, players.White, players.Black, e.NewGame(), seed, chunks)
	var chunkErrsMu sync.Mutex
	tr.Progress = func(gr tournament.GameResult) {
		// Progress runs on each game's own goroutine, so gr.Completed
		// (computed under Tournament's lock) stands in for a shared
		// counter, and chunkErrs gets its own mutex.
		if gr.Err != nil {
			chunkErrsMu.Lock()
			chunkErrs = multierror.Append(chunkErrs, gr.Err)
			chunkErrsMu.Unlock()
		}
		if e.OnGameInfo != nil {
			e.OnGameInfo(GameInfo{
				Result:           gr.Result.Adjudication,
				TrainingFilename: fmt.Sprintf("game-%06d.chunk.gz", gr.ID),
				Moves:            gr.Result.Plies,
				GameID:           gr.ID,
				Side:             winnerSide(gr.Result.Winner),
			})
		}
		if e.OnTournamentInfo != nil {
			e.OnTournamentInfo(TournamentInfo{Finished: gr.Completed == games})
		}
		klog.V(1).Infof("engine: game %d finished (%d/%d)", gr.ID, gr.Completed, games)
	}

	summary, err := tr.Run(ctx)
	if err != nil {
		return summary, errors.Wrap(err, "engine: tournament run")
	}
	return summary, chunkErrs.ErrorOrNil()
}

func winnerSide(winner *chess.Color) string {
	if winner == nil {
		return "draw"
	}
	if *winner == chess.White {
		return "white"
	}
	return "black"
}
