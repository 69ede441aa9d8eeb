package mcts

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chewxy/math32"
	"github.com/notnil/chess"
	"github.com/pkg/errors"

	"github.com/corvidchess/corvid/game"
	"github.com/corvidchess/corvid/network"
	"github.com/corvidchess/corvid/nncache"
)

// Config holds every search-time parameter. At most one of
// NodeLimit/PlayoutLimit may be nonzero (Validate enforces this); a zero
// MoveTime/WTime/BTime leaves the search bound purely by node/playout count
// and explicit Stop calls.
type Config struct {
	CPuct             float32 // PUCT exploration constant
	FpuReduction      float32 // Q_fpu = Q(parent) - FpuReduction*sqrt(sum of visited priors)
	PolicySoftmaxTemp float32 // temperature applied to the network's raw policy before use as priors

	Threads       int
	MinibatchSize int
	MaxPrefetch   int

	NodeLimit    int64
	PlayoutLimit int64

	MoveTime time.Duration
	WTime    time.Duration
	BTime    time.Duration
	WInc     time.Duration
	BInc     time.Duration

	Noise            bool // apply Dirichlet root noise (self-play training mode)
	Temperature      float32
	TemperatureMoves int // sample by visits^(1/T) below this move number; argmax at/after it

	// SelfPlay selects which of game.State's two termination checks the
	// search itself uses while descending the tree: set for self-play, so
	// 3-fold repetition and the 50-move rule are immediate draws inside
	// the tree and not just at the per-move game loop; left false for
	// match mode, which defers that adjudication to the external rules
	// engine via Ended.
	SelfPlay bool

	Seed int64
}

// DefaultConfig returns the parameter set the original AlphaZero paper and
// its open-source descendants converged on.
func DefaultConfig() Config {
	return Config{
		CPuct:             1.5,
		FpuReduction:      0.2,
		PolicySoftmaxTemp: 1.0,
		Threads:           1,
		MinibatchSize:     8,
		MaxPrefetch:       2,
		NodeLimit:         800,
		Temperature:       1.0,
		TemperatureMoves:  30,
	}
}

// Validate checks the invariants Config must satisfy before a Search can
// run: at most one of NodeLimit/PlayoutLimit set, at least one search
// budget (node, playout or time) configured, and the numeric parameters it
// checks in their sane range.
func (c Config) Validate() error {
	if c.NodeLimit != 0 && c.PlayoutLimit != 0 {
		return errors.New("mcts: NodeLimit and PlayoutLimit are mutually exclusive")
	}
	if c.NodeLimit == 0 && c.PlayoutLimit == 0 && c.MoveTime == 0 && c.WTime == 0 && c.BTime == 0 {
		return errors.New("mcts: no search budget configured (set NodeLimit, PlayoutLimit, MoveTime, or WTime/BTime)")
	}
	if c.Threads <= 0 {
		return errors.New("mcts: Threads must be positive")
	}
	if c.CPuct <= 0 {
		return errors.New("mcts: CPuct must be positive")
	}
	if c.TemperatureMoves < 0 {
		return errors.New("mcts: TemperatureMoves must be non-negative")
	}
	return nil
}

// Info is a periodic progress snapshot, analogous to a UCI "info" line.
type Info struct {
	Depth    int
	SelDepth int
	Nodes    int64
	Playouts int64
	NPS      float64
	Elapsed  time.Duration
	Q        float32 // root Q from the side-to-move's perspective
	CP       float32 // Q rescaled to a centipawn-like display value
	PV       []int32 // move indices, root-first
}

// qToCP rescales a [-1,1] Q value onto a centipawn-like display scale using
// the same inverse-sigmoid-ish mapping most AlphaZero-descended engines
// report with: cp = 290*tan(1.56*q).
func qToCP(q float32) float32 {
	return 290 * math32.Tan(1.56*q)
}

// Search runs PUCT-guided playouts against one position, backed by a
// network.Network for leaf evaluation and an nncache.Cache for
// deduplication across playouts and across moves (tree reuse keeps cache
// entries live for positions visited more than once).
type Search struct {
	cfg   Config
	tree  *NodeTree
	state game.State
	net   network.Network
	cache *nncache.Cache

	rng *rand.Rand

	running  int32
	nodes    int64
	playouts int64
	start    time.Time

	stopCh chan struct{}
	stopOn sync.Once

	errMu sync.Mutex
	err   error

	OnInfo func(Info)
}

// NewSearch builds a Search rooted at state, reusing tree if non-nil
// (reusing results across moves) or allocating a fresh one otherwise.
func NewSearch(cfg Config, net network.Network, cache *nncache.Cache, state game.State, tree *NodeTree) *Search {
	if tree == nil {
		tree = NewNodeTree(state.ActionSpace())
	}
	return &Search{
		cfg:    cfg,
		tree:   tree,
		state:  state,
		net:    net,
		cache:  cache,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		stopCh: make(chan struct{}),
	}
}

// Tree exposes the underlying arena so callers can PromoteToRoot it for the
// next move.
func (s *Search) Tree() *NodeTree { return s.tree }

// Stop requests an early, graceful stop; in-flight playouts finish their
// current backup before threads exit.
func (s *Search) Stop() {
	s.stopOn.Do(func() { close(s.stopCh) })
}

// ended reports game termination using whichever of game.State's two checks
// cfg.SelfPlay selects.
func (s *Search) ended(state game.State) (bool, game.Result) {
	if s.cfg.SelfPlay {
		return state.EndedSelfPlay()
	}
	return state.Ended()
}

func (s *Search) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *Search) fail(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
	s.Stop()
}

// Err returns the first error any worker observed, if any.
func (s *Search) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Run drives the search to completion: it launches cfg.Threads workers,
// arms whichever time/node/playout budget is configured, waits for them
// all to stop, and returns the selected move index (-1 if the root has no
// legal moves at all).
func (s *Search) Run(ctx context.Context) (int32, error) {
	if err := s.cfg.Validate(); err != nil {
		return -1, err
	}
	s.start = time.Now()
	atomic.StoreInt32(&s.running, 1)

	root := s.tree.RootNode()
	if !root.IsExpanded() {
		if ended, result := s.ended(s.state); ended {
			root.setTerminal(result)
			root.backup(result.Value())
			return -1, nil
		}
		if err := s.evaluateAndExpand(s.tree.Root(), s.state.Clone(), s.cfg.Noise); err != nil {
			return -1, err
		}
	}
	if len(s.tree.Children(s.tree.Root())) == 0 {
		return -1, nil
	}

	budgetCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if d := s.timeBudget(); d > 0 {
		go func() {
			select {
			case <-time.After(d):
				s.Stop()
			case <-budgetCtx.Done():
			}
		}()
	}

	var infoWG sync.WaitGroup
	infoDone := make(chan struct{})
	if s.OnInfo != nil {
		infoWG.Add(1)
		go func() {
			defer infoWG.Done()
			t := time.NewTicker(time.Second)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					s.reportInfo()
				case <-infoDone:
					return
				}
			}
		}()
	}

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Threads; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			s.worker(budgetCtx, rand.New(rand.NewSource(seed)))
		}(s.cfg.Seed ^ int64(i)*0x9E3779B97F4A7C15)
	}
	wg.Wait()
	close(infoDone)
	infoWG.Wait()
	atomic.StoreInt32(&s.running, 0)

	if err := s.Err(); err != nil {
		return -1, err
	}
	if s.OnInfo != nil {
		s.reportInfo()
	}
	return s.BestMove(), nil
}

func (s *Search) timeBudget() time.Duration {
	if s.cfg.MoveTime > 0 {
		return s.cfg.MoveTime
	}
	var my, inc time.Duration
	if s.state.Turn() == chess.White {
		my, inc = s.cfg.WTime, s.cfg.WInc
	} else {
		my, inc = s.cfg.BTime, s.cfg.BInc
	}
	if my == 0 {
		return 0
	}
	// simple fixed-fraction allocation: 1/25th of remaining time plus the increment
	return my/25 + inc
}

func (s *Search) budgetExhausted() bool {
	if s.cfg.NodeLimit > 0 {
		return atomic.LoadInt64(&s.nodes) >= s.cfg.NodeLimit
	}
	if s.cfg.PlayoutLimit > 0 {
		return atomic.LoadInt64(&s.playouts) >= s.cfg.PlayoutLimit
	}
	return false
}

func (s *Search) worker(ctx context.Context, rng *rand.Rand) {
	for {
		if s.stopped() || s.budgetExhausted() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := s.playout(ctx, rng); err != nil {
			s.fail(err)
			return
		}
	}
}

// pathStep is one edge walked during selection, recorded so backup can
// flip perspective and undo virtual loss in reverse.
type pathStep struct {
	node naughty
}

// playout runs one SELECT/EXPAND/EVALUATE/BACKUP cycle from the root.
func (s *Search) playout(ctx context.Context, rng *rand.Rand) error {
	state := s.state.Clone()
	cur := s.tree.Root()
	var path []pathStep
	path = append(path, pathStep{node: cur})

	for {
		node := s.tree.nodeFromNaughty(cur)
		if terminal, result := node.IsTerminal(); terminal {
			s.backup(path, result.Value())
			atomic.AddInt64(&s.nodes, 1)
			return nil
		}
		if !node.IsExpanded() {
			value, err := s.evaluate(cur, state)
			if err != nil {
				s.undoVirtualLossPath(path[1:])
				return err
			}
			s.backup(path, value)
			atomic.AddInt64(&s.nodes, 1)
			atomic.AddInt64(&s.playouts, 1)
			return nil
		}

		children := s.tree.Children(cur)
		if len(children) == 0 {
			// expanded with no legal moves: a checkmate/stalemate leaf.
			ended, result := s.ended(state)
			if !ended {
				result = game.Draw
			}
			node.setTerminal(result)
			s.backup(path, result.Value())
			atomic.AddInt64(&s.nodes, 1)
			return nil
		}

		next := s.selectChild(cur, children)
		child := s.tree.nodeFromNaughty(next)
		child.addVirtualLoss()
		move := state.NNToMove(child.move)
		if !state.Check(move) {
			// the tree disagrees with the rules engine about legality -
			// treat as a dead branch rather than corrupt the position.
			child.undoVirtualLoss()
			child.setTerminal(game.Loss)
			continue
		}
		state = state.Apply(move)
		cur = next
		path = append(path, pathStep{node: cur})
	}
}

func (s *Search) undoVirtualLossPath(path []pathStep) {
	for _, step := range path {
		s.tree.nodeFromNaughty(step.node).undoVirtualLoss()
	}
}

// selectChild applies PUCT with FPU reduction: unvisited children
// use Q_fpu = Q(parent) - FpuReduction*sqrt(sum of visited priors) instead
// of an optimistic Q=0, which would otherwise force a full visit to every
// sibling before the search can concentrate.
func (s *Search) selectChild(parent naughty, children []naughty) naughty {
	parentNode := s.tree.nodeFromNaughty(parent)
	parentStats := parentNode.Stats()
	parentVisits := float32(parentStats.Visits + parentStats.InFlight)
	numerator := math32.Sqrt(math32.Max(parentVisits, 1))

	var visitedPriorSum float32
	for _, kid := range children {
		c := s.tree.nodeFromNaughty(kid)
		if c.Visits() > 0 {
			visitedPriorSum += c.Prior()
		}
	}
	fpu := parentStats.Q - s.cfg.FpuReduction*math32.Sqrt(visitedPriorSum)

	best := nilNode
	bestScore := math32.Inf(-1)
	for _, kid := range children {
		c := s.tree.nodeFromNaughty(kid)
		st := c.Stats()
		q := fpu
		if st.Visits > 0 {
			// a child's Q is from its own side to move's perspective;
			// negate it to score the move from the parent's.
			q = -st.Q
		}
		if st.InFlight > 0 {
			// virtual loss: each in-flight visit counts as a loss for the
			// side choosing here.
			n := float32(st.Visits)
			q = (q*n - float32(st.InFlight)) / (n + float32(st.InFlight))
		}
		denom := 1 + float32(st.Visits) + float32(st.InFlight)
		u := s.cfg.CPuct * c.Prior() * numerator / denom
		score := q + u
		if score > bestScore {
			bestScore = score
			best = kid
		}
	}
	return best
}

// backup walks path in reverse, flipping the perspective of v at every
// step (a position good for the side to move at depth d is bad for the
// side to move at depth d-1), and undoes the virtual loss each step's
// selection added.
func (s *Search) backup(path []pathStep, v float32) {
	for i := len(path) - 1; i >= 0; i-- {
		node := s.tree.nodeFromNaughty(path[i].node)
		node.backup(v)
		if i > 0 {
			node.undoVirtualLoss()
		}
		v = -v
	}
}

// evaluate runs the leaf position through the network (via the dedup
// cache) and expands it, folding the value into the leaf's own statistics.
// Terminal leaves are detected before ever reaching the network.
func (s *Search) evaluate(n naughty, state game.State) (float32, error) {
	if ended, result := s.ended(state); ended {
		s.tree.nodeFromNaughty(n).setTerminal(result)
		return result.Value(), nil
	}
	if err := s.evaluateAndExpand(n, state, false); err != nil {
		return 0, err
	}
	return s.tree.nodeFromNaughty(n).Q(), nil
}

func (s *Search) evaluateAndExpand(n naughty, state game.State, addNoise bool) error {
	comp := nncache.NewComputation(s.cache, s.net.NewComputation(), true)
	legal := state.LegalMoveIndices()
	relevant := make([]int, len(legal))
	for i, m := range legal {
		relevant[i] = int(m)
	}
	slot := comp.AddInput(state.Hash(), network.Planes(state.EncodePlanes()), relevant)
	s.prefetch(comp, state.Hash(), s.prefetchBudget())
	if err := comp.ComputeBlocking(context.Background()); err != nil {
		return errors.Wrap(err, "mcts: leaf evaluation failed")
	}
	defer comp.Release()

	value := comp.GetQ(slot)
	policy := make([]float32, state.ActionSpace())
	for _, m := range legal {
		policy[m] = comp.GetP(slot, int(m))
	}
	s.tree.Expand(n, state, policy, value, addNoise, s.rng)
	return nil
}

// prefetchBudget returns how many additional speculative leaves a worker
// should pack alongside the real leaf it just selected: whichever is
// smaller of the configured prefetch depth and the batch capacity the real
// leaf hasn't already used.
func (s *Search) prefetchBudget() int {
	budget := s.cfg.MaxPrefetch
	if room := s.cfg.MinibatchSize - 1; room < budget {
		budget = room
	}
	if budget < 0 {
		budget = 0
	}
	return budget
}

// prefetch descends from the tree root, following the most-visited
// (virtual-loss-adjusted) child at every already-expanded level, and adds
// the unexpanded, non-terminal leaf that single path ends at to comp as an
// additional network input. One call therefore adds at most one leaf,
// however large budget is (budget <= 0 adds none); it returns how many it
// added. The speculative evaluation populates NNCache so a later real
// selection reaching the same leaf is a cache hit; it never itself expands
// a node. realHash is skipped so the real leaf isn't submitted to the batch
// twice.
func (s *Search) prefetch(comp *nncache.Computation, realHash uint64, budget int) int {
	if budget <= 0 {
		return 0
	}
	added := 0
	var descend func(n naughty, st game.State)
	descend = func(n naughty, st game.State) {
		if added >= budget {
			return
		}
		node := s.tree.nodeFromNaughty(n)
		if terminal, _ := node.IsTerminal(); terminal {
			return
		}
		if !node.IsExpanded() {
			if st.Hash() == realHash {
				return
			}
			legal := st.LegalMoveIndices()
			if len(legal) == 0 {
				return
			}
			relevant := make([]int, len(legal))
			for i, m := range legal {
				relevant[i] = int(m)
			}
			comp.AddInput(st.Hash(), network.Planes(st.EncodePlanes()), relevant)
			added++
			return
		}

		children := s.tree.Children(n)
		if len(children) == 0 {
			return
		}
		best := children[0]
		bestEff := prefetchVisits(s.tree.nodeFromNaughty(best))
		for _, kid := range children[1:] {
			if e := prefetchVisits(s.tree.nodeFromNaughty(kid)); e > bestEff {
				best, bestEff = kid, e
			}
		}
		move := st.NNToMove(s.tree.nodeFromNaughty(best).Move())
		if !st.Check(move) {
			return
		}
		descend(best, st.Apply(move))
	}
	descend(s.tree.Root(), s.state.Clone())
	return added
}

// prefetchVisits is the "most visited" ranking prefetch descends by,
// counting in-flight virtual-loss visits alongside real ones so prefetch
// naturally spreads across the same paths concurrent real playouts are
// already exploring rather than piling onto one.
func prefetchVisits(n *Node) uint32 {
	st := n.Stats()
	return st.Visits + st.InFlight
}

// BestMove selects the root's move: below cfg.TemperatureMoves it samples
// proportionally to visits^(1/Temperature) (self-play exploration), at or
// above it (and always at Temperature<=0) it picks the most-visited child,
// breaking ties by Q from the root's side to move (the lower child Q).
// Returns -1 if the root has no children.
func (s *Search) BestMove() int32 {
	moves := s.tree.CollectMoves()
	if len(moves) == 0 {
		return -1
	}
	if s.cfg.Temperature > 0 && s.state.MoveNumber() < s.cfg.TemperatureMoves {
		return s.sampleByVisits(moves)
	}

	best := moves[0]
	for _, m := range moves[1:] {
		if m.Visits > best.Visits || (m.Visits == best.Visits && m.Q < best.Q) {
			best = m
		}
	}
	return best.Move
}

func (s *Search) sampleByVisits(moves []MoveVisit) int32 {
	weights := make([]float32, len(moves))
	var total float32
	invT := 1 / s.cfg.Temperature
	for i, m := range moves {
		w := math32.Pow(float32(m.Visits), invT)
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return moves[argmax(weightsOf(moves))].Move
	}
	r := s.rng.Float32() * total
	var accum float32
	for i, w := range weights {
		accum += w
		if r <= accum {
			return moves[i].Move
		}
	}
	return moves[len(moves)-1].Move
}

func weightsOf(moves []MoveVisit) []float32 {
	out := make([]float32, len(moves))
	for i, m := range moves {
		out[i] = float32(m.Visits)
	}
	return out
}

func (s *Search) reportInfo() {
	nodes := atomic.LoadInt64(&s.nodes)
	playouts := atomic.LoadInt64(&s.playouts)
	elapsed := time.Since(s.start)
	root := s.tree.RootNode()
	info := Info{
		Nodes:    nodes,
		Playouts: playouts,
		Elapsed:  elapsed,
		Q:        root.Q(),
		CP:       qToCP(root.Q()),
		PV:       s.principalVariation(),
	}
	if elapsed > 0 {
		info.NPS = float64(nodes) / elapsed.Seconds()
	}
	info.Depth, info.SelDepth = len(info.PV), len(info.PV)
	s.OnInfo(info)
}

// principalVariation walks the most-visited child at every level from the
// root, up to a sane depth bound so a never-terminating loop in a
// malformed tree can't hang info reporting.
func (s *Search) principalVariation() []int32 {
	var pv []int32
	cur := s.tree.Root()
	for depth := 0; depth < 64; depth++ {
		children := s.tree.Children(cur)
		if len(children) == 0 {
			break
		}
		var best naughty = children[0]
		bestVisits := s.tree.nodeFromNaughty(best).Visits()
		for _, kid := range children[1:] {
			if v := s.tree.nodeFromNaughty(kid).Visits(); v > bestVisits {
				best, bestVisits = kid, v
			}
		}
		if bestVisits == 0 {
			break
		}
		node := s.tree.nodeFromNaughty(best)
		pv = append(pv, node.Move())
		cur = best
	}
	return pv
}

// String renders a Search for debugging.
func (s *Search) String() string {
	return fmt.Sprintf("Search{nodes:%d playouts:%d root:%v}",
		atomic.LoadInt64(&s.nodes), atomic.LoadInt64(&s.playouts), s.tree.RootNode())
}
