// corvid-selfplay drives N self-play games through tournament.Tournament,
// writing one gzip training chunk per game.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"k8s.io/klog/v2"

	"github.com/corvidchess/corvid/engine"
)

var (
	games       = flag.Int("games", 100, "total number of self-play games to run")
	parallelism = flag.Int("parallelism", 4, "number of games to run concurrently")
	outDir      = flag.String("out", "chunks", "directory to write per-game training chunks to")
	seed        = flag.Int64("seed", 1, "base RNG seed; each game derives its own seed from this and its game ID")
)

func main() {
	cfg := engine.DefaultConfig()
	restoreFlags := cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()
	restoreFlags()

	if cfg.MovesFile == "" {
		fmt.Fprintln(os.Stderr, "corvid-selfplay: -moves-file is required")
		os.Exit(2)
	}
	cfg.Noise = true

	e, err := engine.New(cfg)
	if err != nil {
		klog.Fatalf("corvid-selfplay: %v", err)
	}
	defer e.Close()

	e.OnGameInfo = func(gi engine.GameInfo) {
		klog.Infof("corvid-selfplay: game %d done (%d plies, %s, %s) -> %s",
			gi.GameID, gi.Moves, gi.Side, gi.Result, gi.TrainingFilename)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		klog.Infof("corvid-selfplay: stop requested, finishing in-flight games")
		cancel()
	}()

	summary, err := e.SelfPlayGames(ctx, *games, *parallelism, *outDir, *seed)
	if err != nil {
		klog.Errorf("corvid-selfplay: %v", err)
	}
	klog.Infof("corvid-selfplay: %d games, %d decisive, %d draws, %d incomplete",
		summary.Games, summary.AWins+summary.BWins, summary.Draws, summary.Incomplete)
}
