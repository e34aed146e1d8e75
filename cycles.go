package ngc

import (
	"math"
)

// maxPecks limits the pecks of one G73 or G83 hole.
const maxPecks = 10000

// Canned cycles run in the XY plane. Each hole is a traverse over the hole
// at the clearance height, a traverse down to R and the cycle's own moves,
// ending with a retract to the clear level: the initial Z with G98 or R with
// G99.

// peckClearance returns how far above the previous depth a peck drill
// returns to before feeding again.
func (s *Setup) peckClearance() float64 {
	if s.Units == Metric {
		return 0.254
	}
	return 0.010
}

type cycleMoves struct {
	moves []Move
	pos   Position
}

func (cm *cycleMoves) traverse(x, y, z float64) {
	cm.pos.X, cm.pos.Y, cm.pos.Z = x, y, z
	cm.moves = append(cm.moves, Move{Kind: MoveTraverse, End: cm.pos})
}

func (cm *cycleMoves) feed(z float64) {
	cm.pos.Z = z
	cm.moves = append(cm.moves, Move{Kind: MoveFeed, End: cm.pos})
}

func (cm *cycleMoves) dwell(seconds float64) {
	cm.moves = append(cm.moves, Move{Kind: MoveDwell, End: cm.pos, Seconds: seconds})
}

// cannedCycle runs one block of G73, G81, G82, G83, G85 or G89. changed is
// true when the block starts a new cycle, in which case Z and R must be
// given; otherwise they carry over from the previous block.
func (s *Setup) cannedCycle(b *Block, motion Code, changed bool) ([]Move, error) {
	if s.Plane != PlaneXY {
		return nil, errorf(SemanticError, "canned cycles are only supported in the XY plane")
	}
	if s.Comp != CompOff {
		return nil, errorf(SemanticError, "cannot use canned cycles with cutter compensation on")
	}
	if s.FeedMode == InverseTime {
		return nil, errorf(SemanticError, "cannot use canned cycles with inverse time feed")
	}
	if s.Feed == 0 {
		return nil, errorf(SemanticError, "cannot do G%s with zero feed rate", motion)
	}

	if changed {
		if !b.Has(WordZ) {
			return nil, errorf(SemanticError, "Z missing for G%s", motion)
		}
		if !b.Has(WordR) {
			return nil, errorf(SemanticError, "R clearance plane missing for G%s", motion)
		}
	}
	if b.Has(WordZ) {
		s.cycle.z = b.Value(WordZ)
	}
	if b.Has(WordR) {
		s.cycle.r = b.Value(WordR)
	}
	if b.Has(WordP) {
		if b.Value(WordP) < 0 {
			return nil, errorf(SemanticError, "negative dwell time: P%s",
				formatNumber(b.Value(WordP)))
		}
		s.cycle.p = b.Value(WordP)
	} else if changed && (motion == gDrillDwell || motion == gBoreDwell) {
		return nil, errorf(SemanticError, "P dwell missing for G%s", motion)
	}
	if motion == gPeckDrill || motion == gPeckChipBreak {
		if b.Has(WordQ) {
			s.cycle.q = b.Value(WordQ)
		} else if changed {
			return nil, errorf(SemanticError, "Q peck missing for G%s", motion)
		}
		if s.cycle.q <= 0 {
			return nil, errorf(SemanticError, "Q peck must be positive: Q%s",
				formatNumber(s.cycle.q))
		}
	}

	if !s.cycle.initSet {
		s.cycle.initZ = s.Position.Z
		s.cycle.initSet = true
	}

	repeats := 1
	if b.Has(WordL) {
		repeats = b.intValue(WordL)
	}

	x, y := s.Position.X, s.Position.Y
	var dx, dy, r, bottom float64
	if s.Distance == Incremental {
		dx, dy = b.Value(WordX), b.Value(WordY)
		r = s.cycle.r + s.cycle.initZ
		bottom = r + s.cycle.z
	} else {
		if b.Has(WordX) {
			x = b.Value(WordX)
		}
		if b.Has(WordY) {
			y = b.Value(WordY)
		}
		r = s.cycle.r
		bottom = s.cycle.z
	}
	if r < bottom {
		return nil, errorf(SemanticError, "R less than Z in canned cycle: R%s Z%s",
			formatNumber(r), formatNumber(bottom))
	}

	if motion == gPeckDrill || motion == gPeckChipBreak {
		if pecks := math.Ceil((r - bottom) / s.cycle.q); pecks > maxPecks {
			return nil, errorf(SemanticError, "too many pecks: Q%s for a depth of %s",
				formatNumber(s.cycle.q), formatNumber(r-bottom))
		}
	}

	clear := r
	if s.Retract == RetractOldZ && s.cycle.initZ > r {
		clear = s.cycle.initZ
	}

	cm := cycleMoves{pos: s.Position}
	level := cm.pos.Z
	if level < r {
		cm.traverse(cm.pos.X, cm.pos.Y, r)
		level = r
	}
	for n := 0; n < repeats; n++ {
		x += dx
		y += dy
		cm.traverse(x, y, level)
		if level != r {
			cm.traverse(x, y, r)
		}

		switch motion {
		case gDrill:
			cm.feed(bottom)
			cm.traverse(x, y, clear)
		case gDrillDwell:
			cm.feed(bottom)
			cm.dwell(s.cycle.p)
			cm.traverse(x, y, clear)
		case gPeckDrill:
			for depth := r - s.cycle.q; depth > bottom; depth -= s.cycle.q {
				cm.feed(depth)
				cm.traverse(x, y, r)
				cm.traverse(x, y, depth+s.peckClearance())
			}
			cm.feed(bottom)
			cm.traverse(x, y, clear)
		case gPeckChipBreak:
			for depth := r - s.cycle.q; depth > bottom; depth -= s.cycle.q {
				cm.feed(depth)
				cm.traverse(x, y, depth+s.peckClearance())
			}
			cm.feed(bottom)
			cm.traverse(x, y, clear)
		case gBore:
			cm.feed(bottom)
			cm.feed(r)
			if clear != r {
				cm.traverse(x, y, clear)
			}
		case gBoreDwell:
			cm.feed(bottom)
			cm.dwell(s.cycle.p)
			cm.feed(clear)
		}
		level = clear
	}

	s.Position = cm.pos
	return cm.moves, nil
}
