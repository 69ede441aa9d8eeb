// Package engine wires the search core, NN backend, cache, self-play, and
// tournament packages together behind a CLI-style Config and callback
// surface.
package engine

import (
	"flag"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/corvidchess/corvid/mcts"
)

// Config is the full set of recognized CLI/config keys. Zero value is not
// valid; use DefaultConfig and override.
type Config struct {
	// Weights is the path to a gzip-compressed weights file. Only
	// backends that know how to consume one will use it; the bundled
	// "reference" backend ignores it.
	Weights string
	// MovesFile is the fixed UCI move-index table game.ChessGame loads -
	// required to construct any Chess state at all, so it rides along in
	// the same Config.
	MovesFile string

	Threads int

	// Nodes and Playouts are mutually exclusive per-move search budgets:
	// nodes counts leaves evaluated including cache hits, playouts
	// counts network calls. Leaving both zero means no node/playout
	// budget - a time control must be set instead.
	Nodes    int64
	Playouts int64

	MoveTime time.Duration
	WTime    time.Duration
	BTime    time.Duration
	WInc     time.Duration
	BInc     time.Duration

	CPuct             float32
	FpuReduction      float32
	PolicySoftmaxTemp float32

	Noise           bool
	Temperature     float32
	TempDecayMoves  int

	Backend     string
	BackendOpts map[string]string

	CacheSize int

	MinibatchSize int
	MaxPrefetch   int

	VerboseMoveStats bool
	MultiPV          int

	// Seed seeds every per-search RNG stream deterministically.
	Seed int64
}

// DefaultConfig mirrors mcts.DefaultConfig's settings, translated into
// CLI-shaped fields.
func DefaultConfig() Config {
	d := mcts.DefaultConfig()
	return Config{
		Threads:           d.Threads,
		Nodes:             d.NodeLimit,
		CPuct:             d.CPuct,
		FpuReduction:      d.FpuReduction,
		PolicySoftmaxTemp: d.PolicySoftmaxTemp,
		Temperature:       d.Temperature,
		TempDecayMoves:    d.TemperatureMoves,
		Backend:           "reference",
		BackendOpts:       map[string]string{},
		CacheSize:         1 << 20,
		MinibatchSize:     d.MinibatchSize,
		MaxPrefetch:       d.MaxPrefetch,
		MultiPV:           1,
	}
}

// RegisterFlags binds Config's fields onto fs, one flag per option.
// Config stores its PUCT tuning knobs as float32 (matching mcts.Config
// and the network's float32 surface) but flag only binds float64, so
// those four flags (and -backend-opts) land in temporaries; call the returned closure after
// fs.Parse to copy them back into c.
func (c *Config) RegisterFlags(fs *flag.FlagSet) func() {
	fs.StringVar(&c.Weights, "weights", c.Weights, "path to a weights file")
	fs.StringVar(&c.MovesFile, "moves-file", c.MovesFile, "path to the UCI move-index table")
	fs.IntVar(&c.Threads, "threads", c.Threads, "number of search worker goroutines")
	fs.Int64Var(&c.Nodes, "nodes", c.Nodes, "per-move node budget (leaves evaluated, including cache hits)")
	fs.Int64Var(&c.Playouts, "playouts", c.Playouts, "per-move playout budget (network calls); mutually exclusive with -nodes")
	fs.DurationVar(&c.MoveTime, "movetime", c.MoveTime, "fixed time to spend per move")
	fs.DurationVar(&c.WTime, "wtime", c.WTime, "white's remaining clock time")
	fs.DurationVar(&c.BTime, "btime", c.BTime, "black's remaining clock time")
	fs.DurationVar(&c.WInc, "winc", c.WInc, "white's per-move increment")
	fs.DurationVar(&c.BInc, "binc", c.BInc, "black's per-move increment")

	cpuct := fs.Float64("cpuct", float64(c.CPuct), "PUCT exploration constant")
	fpuReduction := fs.Float64("fpu-reduction", float64(c.FpuReduction), "first-play-urgency reduction")
	policySoftmaxTemp := fs.Float64("policy-softmax-temp", float64(c.PolicySoftmaxTemp), "policy softmax temperature")
	temperature := fs.Float64("temperature", float64(c.Temperature), "move-selection temperature")

	fs.BoolVar(&c.Noise, "noise", c.Noise, "add Dirichlet noise to the root prior")
	fs.IntVar(&c.TempDecayMoves, "tempdecay-moves", c.TempDecayMoves, "ply count after which temperature drops to 0")
	fs.StringVar(&c.Backend, "backend", c.Backend, "NN backend name")
	backendOpts := fs.String("backend-opts", encodeBackendOpts(c.BackendOpts), "comma-separated key=value backend options")
	fs.IntVar(&c.CacheSize, "cache-size", c.CacheSize, "NN cache capacity, in entries")
	fs.IntVar(&c.MinibatchSize, "minibatch-size", c.MinibatchSize, "max samples per NN batch")
	fs.IntVar(&c.MaxPrefetch, "max-prefetch", c.MaxPrefetch, "speculative prefetch depth")
	fs.BoolVar(&c.VerboseMoveStats, "verbose-move-stats", c.VerboseMoveStats, "log per-candidate-move search stats")
	fs.IntVar(&c.MultiPV, "multipv", c.MultiPV, "number of principal variations to report")
	fs.Int64Var(&c.Seed, "seed", c.Seed, "RNG seed")

	return func() {
		c.CPuct = float32(*cpuct)
		c.FpuReduction = float32(*fpuReduction)
		c.PolicySoftmaxTemp = float32(*policySoftmaxTemp)
		c.Temperature = float32(*temperature)
		c.BackendOpts = parseBackendOpts(*backendOpts)
	}
}

// encodeBackendOpts and parseBackendOpts round-trip BackendOpts through a
// single "-backend-opts" flag value, since flag has no native map type.
func encodeBackendOpts(opts map[string]string) string {
	pairs := make([]string, 0, len(opts))
	for k, v := range opts {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func parseBackendOpts(s string) map[string]string {
	opts := map[string]string{}
	if s == "" {
		return opts
	}
	for _, kv := range strings.Split(s, ",") {
		if k, v, ok := strings.Cut(kv, "="); ok {
			opts[k] = v
		}
	}
	return opts
}

// Validate rejects configurations the search core or its surrounding
// wiring cannot run, including the nodes+playouts-both-set case.
func (c Config) Validate() error {
	if c.MovesFile == "" {
		return errors.New("engine: moves-file is required")
	}
	if c.Threads <= 0 {
		return errors.New("engine: threads must be positive")
	}
	if c.Nodes > 0 && c.Playouts > 0 {
		return errors.New("engine: nodes and playouts are mutually exclusive")
	}
	if c.Nodes <= 0 && c.Playouts <= 0 && c.MoveTime <= 0 && c.WTime <= 0 && c.BTime <= 0 {
		return errors.New("engine: no search budget configured (set nodes, playouts, movetime, or a clock)")
	}
	if c.CPuct <= 0 {
		return errors.New("engine: cpuct must be positive")
	}
	if c.CacheSize < 0 {
		return errors.New("engine: cache-size must be non-negative")
	}
	if c.MinibatchSize <= 0 {
		return errors.New("engine: minibatch-size must be positive")
	}
	return nil
}

// searchConfig translates Config into the mcts.Config the search core
// actually runs with.
func (c Config) searchConfig() mcts.Config {
	return mcts.Config{
		CPuct:             c.CPuct,
		FpuReduction:      c.FpuReduction,
		PolicySoftmaxTemp: c.PolicySoftmaxTemp,
		Threads:           c.Threads,
		MinibatchSize:     c.MinibatchSize,
		MaxPrefetch:       c.MaxPrefetch,
		NodeLimit:         c.Nodes,
		PlayoutLimit:      c.Playouts,
		MoveTime:          c.MoveTime,
		WTime:             c.WTime,
		BTime:             c.BTime,
		WInc:              c.WInc,
		BInc:              c.BInc,
		Noise:             c.Noise,
		Temperature:       c.Temperature,
		TemperatureMoves:  c.TempDecayMoves,
		Seed:              c.Seed,
	}
}
