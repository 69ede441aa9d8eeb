package tournament

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvidchess/corvid/network"
	"github.com/corvidchess/corvid/nncache"
	"github.com/corvidchess/corvid/selfplay"
)

func newTestPlayer(t *testing.T) selfplay.Player {
	t.Helper()
	backend, err := network.Build("reference", map[string]string{"policy_size": "2"})
	require.NoError(t, err)
	return selfplay.Player{Net: backend, Cache: nncache.New(1024)}
}

func TestRunPlaysEveryGameAndAggregatesASummary(t *testing.T) {
	selfCfg := selfplay.DefaultConfig()
	selfCfg.Search.NodeLimit = 30
	selfCfg.Search.Threads = 1
	selfCfg.MaxPlies = 4

	cfg := Config{Games: 6, Parallelism: 3, SelfPlay: selfCfg}
	p := newTestPlayer(t)

	var mu sync.Mutex
	seen := map[int]bool{}
	tr := New(cfg, p, p, newFakeState(4), 99, nil)
	tr.Progress = func(gr GameResult) {
		mu.Lock()
		defer mu.Unlock()
		seen[gr.ID] = true
	}

	summary, err := tr.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, cfg.Games, summary.Games)
	require.Equal(t, cfg.Games, summary.AWins+summary.BWins+summary.Draws+summary.Incomplete)
	require.Len(t, seen, cfg.Games)
}

func TestRunWritesAChunkPerGameViaChunkFactory(t *testing.T) {
	selfCfg := selfplay.DefaultConfig()
	selfCfg.Search.NodeLimit = 20
	selfCfg.Search.Threads = 1
	selfCfg.MaxPlies = 4

	cfg := Config{Games: 3, Parallelism: 2, SelfPlay: selfCfg}
	p := newTestPlayer(t)

	var mu sync.Mutex
	chunks := map[int]*bytes.Buffer{}
	factory := func(gameID int) (io.WriteCloser, error) {
		mu.Lock()
		defer mu.Unlock()
		buf := &bytes.Buffer{}
		chunks[gameID] = buf
		return nopWriteCloser{buf}, nil
	}

	tr := New(cfg, p, p, newFakeState(4), 7, factory)
	_, err := tr.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, chunks, cfg.Games)
	for id, buf := range chunks {
		require.NotZero(t, buf.Len(), "game %d wrote an empty chunk", id)
	}
}

func TestRunStopsStartingNewGamesWhenContextCancelled(t *testing.T) {
	selfCfg := selfplay.DefaultConfig()
	selfCfg.Search.NodeLimit = 10
	selfCfg.Search.Threads = 1
	selfCfg.MaxPlies = 4

	cfg := Config{Games: 20, Parallelism: 1, SelfPlay: selfCfg}
	p := newTestPlayer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := New(cfg, p, p, newFakeState(4), 1, nil)
	summary, err := tr.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, cfg.Games, summary.Games)
	require.Equal(t, cfg.Games, summary.Incomplete)
}
