package game

import "github.com/notnil/chess"

// Plane layout constants:
//   - HistoryPlies history plies, each PiecePlanesPerPly own/opponent
//     piece-type occupancy planes plus RepetitionPlanesPerPly repetition
//     plane, giving HistoryPlanes 64-bit bitboards - exactly the
//     planes[104] field of a training record.
//   - AuxPlanes additional float planes (castling x4, side-to-move,
//     fifty-move counter, an all-ones plane, and one reserved plane) round
//     the Network's input out to NumPlanes.
const (
	HistoryPlies            = 8
	PiecePlanesPerPly       = 12
	RepetitionPlanesPerPly  = 1
	PlanesPerPly            = PiecePlanesPerPly + RepetitionPlanesPerPly
	HistoryPlanes           = HistoryPlies * PlanesPerPly // 104
	AuxPlanes               = 8                           // castling x4, stm, rule50, all-ones, reserved
	NumPlanes               = HistoryPlanes + AuxPlanes   // 112
	PlaneSquares            = 64
	CastlingPlaneWhiteKing  = HistoryPlanes + 0
	CastlingPlaneWhiteQueen = HistoryPlanes + 1
	CastlingPlaneBlackKing  = HistoryPlanes + 2
	CastlingPlaneBlackQueen = HistoryPlanes + 3
	SideToMovePlane         = HistoryPlanes + 4
	Rule50Plane             = HistoryPlanes + 5
	AllOnesPlane            = HistoryPlanes + 6
	ReservedPlane           = HistoryPlanes + 7
)

// pieceTypeIndex orders the 6 piece types within a single color's 6 planes.
func pieceTypeIndex(t chess.PieceType) int {
	switch t {
	case chess.King:
		return 0
	case chess.Queen:
		return 1
	case chess.Rook:
		return 2
	case chess.Bishop:
		return 3
	case chess.Knight:
		return 4
	case chess.Pawn:
		return 5
	default:
		return -1
	}
}

// plyBitboards returns the PiecePlanesPerPly+RepetitionPlanesPerPly
// bitboards for one historical ply, from the perspective of perspective
// (the side to move at the *current*, not historical, position - bit order
// is flipped on alternate plies so the network always reads the position
// from the side-to-move's point of view).
func plyBitboards(pos *chess.Position, perspective chess.Color, flip bool) [PlanesPerPly]uint64 {
	var planes [PlanesPerPly]uint64
	if pos == nil {
		return planes
	}
	board := pos.Board()
	for sq, piece := range board.SquareMap() {
		if piece == chess.NoPiece {
			continue
		}
		idx := pieceTypeIndex(piece.Type())
		if idx < 0 {
			continue
		}
		ownPiece := piece.Color() == perspective
		plane := idx
		if !ownPiece {
			plane += 6
		}
		bit := uint(sq)
		if flip {
			bit = 63 - bit
		}
		planes[plane] |= 1 << bit
	}
	return planes
}

// HistoryBitboards implements game.State.HistoryBitboards: the most recent
// ply first, each ply contributing PlanesPerPly bitboards.
func (g *Chess) HistoryBitboards() [HistoryPlanes]uint64 {
	var out [HistoryPlanes]uint64
	perspective := g.Turn()
	for ply := 0; ply < HistoryPlies; ply++ {
		histPtr := g.histPtr - ply
		var pos *chess.Position
		if histPtr >= 0 {
			pos = g.history[histPtr].Position()
		}
		flip := ply%2 == 1
		planes := plyBitboards(pos, perspective, flip)

		var repetitionCount uint64
		if histPtr >= 0 && isRepeated(g.history, histPtr) {
			repetitionCount = ^uint64(0)
		}

		base := ply * PlanesPerPly
		for i := 0; i < PiecePlanesPerPly; i++ {
			out[base+i] = planes[i]
		}
		out[base+PiecePlanesPerPly] = repetitionCount
	}
	return out
}

// isRepeated reports whether the position at history[idx] has occurred at
// least once earlier in the game - a cheap proxy for the "repetition bit"
// plane; exact 3-fold adjudication is EndedSelfPlay's job, not the plane
// encoding's.
func isRepeated(history []chess.Game, idx int) bool {
	target := history[idx].Position().Hash()
	for i := 0; i < idx; i++ {
		if history[i].Position().Hash() == target {
			return true
		}
	}
	return false
}

// EncodePlanes implements game.State.EncodePlanes.
func (g *Chess) EncodePlanes() []float32 {
	out := make([]float32, NumPlanes*PlaneSquares)
	bitboards := g.HistoryBitboards()
	for plane, bb := range bitboards {
		base := plane * PlaneSquares
		for sq := 0; sq < PlaneSquares; sq++ {
			if bb&(1<<uint(sq)) != 0 {
				out[base+sq] = 1
			}
		}
	}

	pos := g.position()
	rights := pos.CastleRights()
	setPlane := func(plane int, v float32) {
		base := plane * PlaneSquares
		for sq := 0; sq < PlaneSquares; sq++ {
			out[base+sq] = v
		}
	}
	if rights.CanCastle(chess.White, chess.KingSide) {
		setPlane(CastlingPlaneWhiteKing, 1)
	}
	if rights.CanCastle(chess.White, chess.QueenSide) {
		setPlane(CastlingPlaneWhiteQueen, 1)
	}
	if rights.CanCastle(chess.Black, chess.KingSide) {
		setPlane(CastlingPlaneBlackKing, 1)
	}
	if rights.CanCastle(chess.Black, chess.QueenSide) {
		setPlane(CastlingPlaneBlackQueen, 1)
	}
	if g.Turn() == chess.Black {
		setPlane(SideToMovePlane, 1)
	}
	setPlane(Rule50Plane, float32(pos.HalfMoveClock())/100.0)
	setPlane(AllOnesPlane, 1)
	return out
}
