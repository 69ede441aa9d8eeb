// corvid-genactions plays random games until it has collected enough
// distinct legal moves to populate the fixed 1858-slot UCI move-index
// space that game.ChessGame loads from disk.
package main

import (
	"bufio"
	"flag"
	"log"
	"math/rand"
	"os"

	"github.com/notnil/chess"
)

var (
	targetSize = flag.Int("size", 1858, "stop once this many distinct moves have been collected")
	maxGames   = flag.Int("max-games", 200000, "give up after this many random games even if -size hasn't been reached")
	out        = flag.String("out", "chess_moves.txt", "path to write the move-index table to")
	seed       = flag.Int64("seed", 1, "RNG seed for move selection")
)

func main() {
	flag.Parse()

	f, err := os.Create(*out)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()

	rng := rand.New(rand.NewSource(*seed))
	seen := make(map[string]struct{}, *targetSize)
	var count int

	for i := 0; i < *maxGames && count < *targetSize; i++ {
		g := chess.NewGame(chess.UseNotation(chess.UCINotation{}))
		for g.Outcome() == chess.NoOutcome && count < *targetSize {
			moves := g.ValidMoves()
			if len(moves) == 0 {
				break
			}
			for _, m := range moves {
				s := m.String()
				if _, ok := seen[s]; ok {
					continue
				}
				seen[s] = struct{}{}
				count++
				if _, err := w.WriteString(s + "\n"); err != nil {
					log.Fatal(err)
				}
				if count >= *targetSize {
					break
				}
			}
			move := moves[rng.Intn(len(moves))]
			if err := g.Move(move); err != nil {
				log.Fatal(err)
			}
		}
	}

	if count < *targetSize {
		log.Printf("corvid-genactions: collected only %d/%d moves after %d games", count, *targetSize, *maxGames)
	} else {
		log.Printf("corvid-genactions: wrote %d moves to %s", count, *out)
	}
}
