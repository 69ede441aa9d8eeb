package selfplay

import (
	"bytes"
	"context"
	"testing"

	"github.com/notnil/chess"
	"github.com/stretchr/testify/require"

	"github.com/corvidchess/corvid/network"
	"github.com/corvidchess/corvid/nncache"
	"github.com/corvidchess/corvid/training"
)

func newTestPlayer(t *testing.T) Player {
	t.Helper()
	backend, err := network.Build("reference", map[string]string{"policy_size": "2"})
	require.NoError(t, err)
	return Player{Net: backend, Cache: nncache.New(1024)}
}

func TestPlayGameProducesAChunkWithOneRecordPerSampledPly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Search.NodeLimit = 50
	cfg.Search.Threads = 1
	cfg.MaxPlies = 6

	p := newTestPlayer(t)
	players := SelfPlayer(p.Net, p.Cache)

	var buf bytes.Buffer
	result, err := PlayGame(context.Background(), cfg, players, newFakeState(4), 11, &buf)
	require.NoError(t, err)
	require.LessOrEqual(t, result.Plies, 4)

	r, err := training.NewChunkReader(&buf)
	require.NoError(t, err)
	defer r.Close()
	records, err := r.ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	require.Len(t, records, result.Plies)

	if result.Winner == nil {
		for _, rec := range records {
			require.Equal(t, int8(0), rec.Result)
		}
	} else {
		var sawWin, sawLoss bool
		for _, rec := range records {
			switch rec.Result {
			case 1:
				sawWin = true
			case -1:
				sawLoss = true
			}
		}
		require.True(t, sawWin || sawLoss)
	}
}

func TestPlayGameHonorsMaxPlies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Search.NodeLimit = 20
	cfg.Search.Threads = 1
	cfg.MaxPlies = 2

	p := newTestPlayer(t)
	players := SelfPlayer(p.Net, p.Cache)

	var buf bytes.Buffer
	result, err := PlayGame(context.Background(), cfg, players, newFakeState(100), 5, &buf)
	require.NoError(t, err)
	require.Equal(t, "max-plies", result.Adjudication)
	require.Nil(t, result.Winner)
}

func TestPlayerSetForReturnsAssignedColor(t *testing.T) {
	white := newTestPlayer(t)
	black := newTestPlayer(t)
	ps := PlayerSet{White: white, Black: black}
	require.Equal(t, white, ps.For(chess.White))
	require.Equal(t, black, ps.For(chess.Black))
}

func TestAdjudicateResignsAfterSustainedLowQ(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ResignThreshold = -0.5
	cfg.ResignPlies = 2
	turn := chess.White
	streak := map[chess.Color]int{}
	draw := 0

	done, _ := adjudicate(&cfg, turn, -0.9, streak, &draw)
	require.False(t, done)
	done, winner := adjudicate(&cfg, turn, -0.9, streak, &draw)
	require.True(t, done)
	require.NotNil(t, winner)
	require.Equal(t, chess.Black, *winner)
}

func TestAdjudicateDrawsAfterSustainedLowQ(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DrawScoreThreshold = 0.1
	cfg.DrawPlies = 2
	turn := chess.White
	streak := map[chess.Color]int{}
	draw := 0

	adjudicate(&cfg, turn, 0.02, streak, &draw)
	done, winner := adjudicate(&cfg, turn, 0.02, streak, &draw)
	require.True(t, done)
	require.Nil(t, winner)
}
