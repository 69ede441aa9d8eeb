// corvid-bench runs a single search against a FEN position and prints its
// info lines and chosen move, against a fixed position instead of an
// interactive game loop - useful for sanity-checking a weights file or
// backend without standing up a full UCI front end.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/corvidchess/corvid/engine"
	"github.com/corvidchess/corvid/game"
)

var fen = flag.String("fen", "", "FEN of the position to search; empty means the start position")

func main() {
	cfg := engine.DefaultConfig()
	restoreFlags := cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()
	restoreFlags()

	if cfg.MovesFile == "" {
		fmt.Fprintln(os.Stderr, "corvid-bench: -moves-file is required")
		os.Exit(2)
	}

	e, err := engine.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "corvid-bench:", err)
		os.Exit(1)
	}
	defer e.Close()

	state, err := game.ChessGameFromFEN(cfg.MovesFile, *fen)
	if err != nil {
		fmt.Fprintln(os.Stderr, "corvid-bench:", err)
		os.Exit(1)
	}

	label := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	e.OnThinkingInfo = func(info engine.ThinkingInfo) {
		fmt.Printf("%s depth=%d seldepth=%d nodes=%d nps=%.0f cp=%.1f hashfull=%d\n",
			label.Render("info"), info.Depth, info.SelDepth, info.Nodes, info.NPS, info.CP, info.HashFull)
	}
	e.OnBestMove = func(bestmove, ponder string) {
		fmt.Printf("%s %s\n", label.Render("bestmove"), bestmove)
	}

	if ended, result := state.Ended(); ended {
		fmt.Printf("position already decided: %s\n", result)
		return
	}

	if _, _, err := e.Think(context.Background(), state, nil); err != nil {
		fmt.Fprintln(os.Stderr, "corvid-bench:", err)
		os.Exit(1)
	}
}
