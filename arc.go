package ngc

import (
	"fmt"
	"math"
)

const (
	// Relative amount the chord of an R arc may exceed its diameter.
	chordTolerance = 1e-12
)

// Arc is a helical arc in the active plane. First and second are the plane's
// coordinates: X and Y for XY, Z and X for XZ, and Y and Z for YZ. Rotation
// is negative for clockwise and positive for counter-clockwise; its magnitude
// is the number of turns.
type Arc struct {
	Plane        Plane
	FirstEnd     float64
	SecondEnd    float64
	FirstCenter  float64
	SecondCenter float64
	Rotation     int
	AxisEnd      float64
	A, B, C      float64
}

func (p Plane) toPlane(pos Position) Position {
	switch p {
	case PlaneXY:
		return pos
	case PlaneXZ:
		return Position{X: pos.Z, Y: pos.X, Z: pos.Y, A: pos.A, B: pos.B, C: pos.C}
	case PlaneYZ:
		return Position{X: pos.Y, Y: pos.Z, Z: pos.X, A: pos.A, B: pos.B, C: pos.C}
	default:
		panic(fmt.Sprintf("unexpected plane: %d", p))
	}
}

func (p Plane) fromPlane(pos Position) Position {
	switch p {
	case PlaneXY:
		return pos
	case PlaneXZ:
		return Position{X: pos.Y, Y: pos.Z, Z: pos.X, A: pos.A, B: pos.B, C: pos.C}
	case PlaneYZ:
		return Position{X: pos.Z, Y: pos.X, Z: pos.Y, A: pos.A, B: pos.B, C: pos.C}
	default:
		panic(fmt.Sprintf("unexpected plane: %d", p))
	}
}

// offsetWords returns the words giving the center offset along the first and
// second axes of the plane, and the word which must not be used.
func (p Plane) offsetWords() (Word, Word, Word) {
	switch p {
	case PlaneXZ:
		return WordK, WordI, WordJ
	case PlaneYZ:
		return WordJ, WordK, WordI
	}
	return WordI, WordJ, WordK
}

func hypot(pos1, pos2 Position) float64 {
	return math.Hypot(pos1.X-pos2.X, pos1.Y-pos2.Y)
}

// radiusCenter expects the positions to be mapped to the XY plane. A
// negative radius selects the center giving an arc of more than 180 degrees.
func radiusCenter(curPos, endPos Position, radius float64, clockwise bool) (Position, error) {
	if curPos.X == endPos.X && curPos.Y == endPos.Y {
		return Position{}, errorf(SemanticError,
			"arc with radius requires an endpoint different than the current point")
	}
	if radius == 0 {
		return Position{}, errorf(SemanticError, "zero radius arc")
	}

	dist := hypot(curPos, endPos)
	delta := dist - math.Abs(radius)*2
	if delta > math.Abs(radius)*2*chordTolerance {
		return Position{}, errorf(SemanticError, "radius too small to reach end point: R%s",
			formatNumber(radius))
	} else if delta > 0.0 {
		dist = math.Abs(radius) * 2
	}

	theta := math.Atan2(endPos.Y-curPos.Y, endPos.X-curPos.X)
	if (clockwise && radius > 0.0) || (!clockwise && radius < 0.0) {
		theta -= (math.Pi / 2.0)
	} else {
		theta += (math.Pi / 2.0)
	}

	offset := math.Sqrt(math.Max(radius*radius-(dist/2)*(dist/2), 0))
	return Position{
		X: ((curPos.X + endPos.X) / 2) + offset*math.Cos(theta),
		Y: ((curPos.Y + endPos.Y) / 2) + offset*math.Sin(theta),
	}, nil
}

// arc resolves a G2 or G3 block into an arc move from the current position.
func (s *Setup) arc(b *Block, clockwise bool) (Move, error) {
	first, second, _ := s.Plane.offsetWords()
	endFirst, endSecond := axisWords[0], axisWords[1]
	switch s.Plane {
	case PlaneXZ:
		endFirst, endSecond = WordZ, WordX
	case PlaneYZ:
		endFirst, endSecond = WordY, WordZ
	}
	if !b.Has(endFirst) && !b.Has(endSecond) {
		return Move{}, errorf(SemanticError, "arc requires %s or %s in the %s plane", endFirst,
			endSecond, s.Plane)
	}

	end := s.target(b, false)
	curPos := s.Plane.toPlane(s.Position)
	endPos := s.Plane.toPlane(end)

	turns := 1
	if b.Has(WordP) {
		p := b.Value(WordP)
		if !integerValue(p) || p < 1 {
			return Move{}, errorf(SemanticError, "expected a positive number of turns: P%s",
				formatNumber(p))
		}
		turns = b.intValue(WordP)
	}

	var centerPos Position
	if b.Has(WordR) {
		var err error
		centerPos, err = radiusCenter(curPos, endPos, b.Value(WordR), clockwise)
		if err != nil {
			return Move{}, err
		}
	} else {
		_, _, other := s.Plane.offsetWords()
		if b.Has(other) {
			return Move{}, errorf(SemanticError, "unexpected %s for arc in %s plane", other,
				s.Plane)
		}
		if !b.Has(first) && !b.Has(second) {
			return Move{}, errorf(SemanticError, "arc requires R or %s and %s", first, second)
		}

		if s.ArcDistance == Absolute {
			centerPos = Position{X: b.Value(first), Y: b.Value(second)}
		} else {
			centerPos = Position{X: curPos.X + b.Value(first), Y: curPos.Y + b.Value(second)}
		}

		radius := hypot(curPos, centerPos)
		if radius == 0 {
			return Move{}, errorf(SemanticError, "zero radius arc")
		}
		if math.Abs(hypot(endPos, centerPos)-radius) > s.arcTolerance() {
			return Move{}, errorf(SemanticError,
				"radius to end of arc differs from radius to start: %s != %s",
				formatNumber(hypot(endPos, centerPos)), formatNumber(radius))
		}
	}

	rotation := turns
	if clockwise {
		rotation = -turns
	}
	return Move{
		Kind: MoveArc,
		End:  end,
		Arc: Arc{
			Plane:        s.Plane,
			FirstEnd:     endPos.X,
			SecondEnd:    endPos.Y,
			FirstCenter:  centerPos.X,
			SecondCenter: centerPos.Y,
			Rotation:     rotation,
			AxisEnd:      endPos.Z,
			A:            end.A,
			B:            end.B,
			C:            end.C,
		},
	}, nil
}

// End returns the end point of the arc.
func (a Arc) End() Position {
	return a.Plane.fromPlane(Position{X: a.FirstEnd, Y: a.SecondEnd, Z: a.AxisEnd, A: a.A,
		B: a.B, C: a.C})
}

// Segments breaks the arc, starting from curPos, into points no more than
// step apart along the path. The last point is the end of the arc.
func (a Arc) Segments(curPos Position, step float64) []Position {
	start := a.Plane.toPlane(curPos)
	endPos := a.Plane.toPlane(a.End())
	centerPos := Position{X: a.FirstCenter, Y: a.SecondCenter}
	radius := hypot(start, centerPos)

	turns := a.Rotation
	clockwise := turns < 0
	if clockwise {
		turns = -turns
	}

	normal := endPos.Z - start.Z
	angle := math.Atan2(start.Y-centerPos.Y, start.X-centerPos.X)
	if angle < 0.0 {
		angle += math.Pi * 2
	}
	endAngle := math.Atan2(endPos.Y-centerPos.Y, endPos.X-centerPos.X)
	if endAngle < 0.0 {
		endAngle += math.Pi * 2
	}

	angleDir := 1.0
	if clockwise {
		angleDir = -1.0
	}

	angleTotal := float64(turns-1) * math.Pi * 2
	if math.Abs(angle-endAngle) < 1e-12 {
		angleTotal += math.Pi * 2
	} else if angle < endAngle {
		if clockwise {
			angleTotal += math.Pi*2 - (endAngle - angle)
		} else {
			angleTotal += endAngle - angle
		}
	} else {
		if clockwise {
			angleTotal += angle - endAngle
		} else {
			angleTotal += math.Pi*2 - (angle - endAngle)
		}
	}

	travelTotal := math.Hypot(angleTotal*radius, math.Abs(normal))
	numSteps := math.Max(math.Ceil(travelTotal/step), 1)
	stepAngle := angleTotal / numSteps
	stepNormal := normal / numSteps

	var points []Position
	for n := 1.0; n < numSteps; n += 1.0 {
		points = append(points, a.Plane.fromPlane(Position{
			X: centerPos.X + radius*math.Cos(angle+n*stepAngle*angleDir),
			Y: centerPos.Y + radius*math.Sin(angle+n*stepAngle*angleDir),
			Z: start.Z + n*stepNormal,
			A: endPos.A,
			B: endPos.B,
			C: endPos.C,
		}))
	}
	return append(points, a.End())
}
