package ngc

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRadiusCenter(t *testing.T) {
	cases := []struct {
		cur, end  Position
		radius    float64
		clockwise bool
		right     bool
	}{
		{cur: Position{X: 10}, end: Position{X: 20}, radius: 5, clockwise: true},
		{cur: Position{}, end: Position{X: 10}, radius: 10, clockwise: true, right: true},
		{cur: Position{}, end: Position{X: 10}, radius: 10, clockwise: false},
		{cur: Position{}, end: Position{X: 10}, radius: -10, clockwise: true},
		{cur: Position{}, end: Position{X: 10}, radius: -10, clockwise: false, right: true},
		{cur: Position{X: 1, Y: 2}, end: Position{X: -3, Y: 7}, radius: 4, clockwise: true,
			right: true},
		{cur: Position{X: 1.5, Y: -2.25}, end: Position{X: 1.5, Y: 2.25}, radius: 2.25,
			clockwise: false},
		{cur: Position{X: 100}, end: Position{X: 100.001, Y: 0.001}, radius: 0.001,
			clockwise: true, right: true},
	}

	for _, c := range cases {
		center, err := radiusCenter(c.cur, c.end, c.radius, c.clockwise)
		if err != nil {
			t.Errorf("radiusCenter(%s, %s, %v) failed with %s", c.cur, c.end, c.radius, err)
			continue
		}
		r := math.Abs(c.radius)
		if math.Abs(hypot(center, c.cur)-r) > 1e-9 || math.Abs(hypot(center, c.end)-r) > 1e-9 {
			t.Errorf("radiusCenter(%s, %s, %v) got %s: not %v from both points", c.cur, c.end,
				c.radius, center, r)
		}

		cross := (c.end.X-c.cur.X)*(center.Y-c.cur.Y) - (c.end.Y-c.cur.Y)*(center.X-c.cur.X)
		if cross > 1e-9 && c.right {
			t.Errorf("radiusCenter(%s, %s, %v) got %s: center on the left", c.cur, c.end,
				c.radius, center)
		} else if cross < -1e-9 && !c.right {
			t.Errorf("radiusCenter(%s, %s, %v) got %s: center on the right", c.cur, c.end,
				c.radius, center)
		}
	}

	center, _ := radiusCenter(Position{X: 10}, Position{X: 20}, 5, true)
	if center.X != 15 || center.Y != 0 {
		t.Errorf("radiusCenter() got %s want {15, 0}", center)
	}
}

func TestRadiusCenterErrors(t *testing.T) {
	cases := []struct {
		cur, end Position
		radius   float64
	}{
		{cur: Position{X: 1}, end: Position{X: 1}, radius: 1},
		{cur: Position{}, end: Position{X: 1}, radius: 0},
		{cur: Position{}, end: Position{X: 10}, radius: 4.9},
		{cur: Position{}, end: Position{X: 10}, radius: -4.99999},
	}

	for _, c := range cases {
		_, err := radiusCenter(c.cur, c.end, c.radius, true)
		if !IsKind(err, SemanticError) {
			t.Errorf("radiusCenter(%s, %s, %v) got %v; want semantic error", c.cur, c.end,
				c.radius, err)
		}
	}
}

func TestSetupArc(t *testing.T) {
	cases := []struct {
		lines []string
		s     string
		want  Arc
		end   Position
	}{
		{
			s:    "G2 X10 Y0 I5 J0 F100",
			want: Arc{Plane: PlaneXY, FirstEnd: 10, FirstCenter: 5, Rotation: -1},
			end:  Position{X: 10},
		},
		{
			s:    "G3 X10 Y0 R5 Z-2 F100",
			want: Arc{Plane: PlaneXY, FirstEnd: 10, FirstCenter: 5, Rotation: 1, AxisEnd: -2},
			end:  Position{X: 10, Z: -2},
		},
		{
			s:    "G3 X0 Y0 I5 P3 F100",
			want: Arc{Plane: PlaneXY, FirstCenter: 5, Rotation: 3},
			end:  Position{},
		},
		{
			lines: []string{"G0 X1 Y1"},
			s:     "G90.1 G2 X3 Y1 I2 J1 F100",
			want: Arc{Plane: PlaneXY, FirstEnd: 3, SecondEnd: 1, FirstCenter: 2, SecondCenter: 1,
				Rotation: -1},
			end: Position{X: 3, Y: 1},
		},
		{
			s: "G18 G2 X10 Z0 I5 K0 F100",
			want: Arc{Plane: PlaneXZ, FirstEnd: 0, SecondEnd: 10, FirstCenter: 0,
				SecondCenter: 5, Rotation: -1},
			end: Position{X: 10},
		},
		{
			s: "G19 G3 Y4 Z0 J2 F100 A90",
			want: Arc{Plane: PlaneYZ, FirstEnd: 4, FirstCenter: 2, Rotation: 1,
				A: 90},
			end: Position{Y: 4, A: 90},
		},
	}

	for _, c := range cases {
		s, _ := applyLines(t, NewSetup(Metric, nil), c.lines...)
		next, cmd, err := applyText(t, s, c.s)
		if err != nil {
			t.Errorf("Apply(%s) failed with %s", c.s, err)
			continue
		}
		if len(cmd.Moves) != 1 || cmd.Moves[0].Kind != MoveArc {
			t.Errorf("Apply(%s) got moves %+v", c.s, cmd.Moves)
			continue
		}
		if diff := cmp.Diff(c.want, cmd.Moves[0].Arc); diff != "" {
			t.Errorf("Apply(%s) arc (-want +got):\n%s", c.s, diff)
		}
		if diff := cmp.Diff(c.end, cmd.Moves[0].Arc.End()); diff != "" {
			t.Errorf("Apply(%s) arc end (-want +got):\n%s", c.s, diff)
		}
		if next.Position != c.end {
			t.Errorf("Apply(%s) got position %s want %s", c.s, next.Position, c.end)
		}
	}
}

func TestSetupArcErrors(t *testing.T) {
	cases := []string{
		"G2 X10 Y0 I4 F100",
		"G2 X10 Y0 F100",
		"G2 Z1 I1 F100",
		"G2 X10 Y0 I5 K1 F100",
		"G18 G2 X10 I5 J1 F100",
		"G19 G2 Y10 I5 J5 F100",
		"G2 X10 R4 F100",
		"G2 X10 I5 P0 F100",
		"G2 X10 I5 P1.5 F100",
		"G2 X0 Y0 I0 J0 F100",
	}

	for _, s := range cases {
		_, _, err := applyText(t, NewSetup(Metric, nil), s)
		if !IsKind(err, SemanticError) {
			t.Errorf("Apply(%s) got %v; want semantic error", s, err)
		}
	}
}

func TestArcSegments(t *testing.T) {
	cases := []struct {
		s     string
		step  float64
		count int
	}{
		{s: "G2 X10 Y0 I5 F100", step: 1, count: 16},
		{s: "G3 X10 Y0 I5 F100", step: 1, count: 16},
		{s: "G2 X0 Y0 I5 F100", step: 1, count: 32},
		{s: "G2 X0 Y0 I5 P2 F100", step: 1, count: 63},
		{s: "G2 X10 Y0 I5 F100", step: 100, count: 1},
		{s: "G3 X0 Y0 I5 Z-10 F100", step: 1, count: 33},
	}

	for _, c := range cases {
		_, cmd, err := applyText(t, NewSetup(Metric, nil), c.s)
		if err != nil {
			t.Errorf("Apply(%s) failed with %s", c.s, err)
			continue
		}
		arc := cmd.Moves[0].Arc
		points := arc.Segments(Position{}, c.step)
		if len(points) != c.count {
			t.Errorf("Segments(%s) got %d points want %d", c.s, len(points), c.count)
		}
		if len(points) == 0 {
			continue
		}
		if diff := cmp.Diff(arc.End(), points[len(points)-1]); diff != "" {
			t.Errorf("Segments(%s) last point (-want +got):\n%s", c.s, diff)
		}

		prev := Position{}
		for _, pt := range points {
			if r := math.Hypot(pt.X-5, pt.Y); math.Abs(r-5) > 1e-9 {
				t.Errorf("Segments(%s) point %s is %v from the center", c.s, pt, r)
			}
			if d := math.Sqrt((pt.X-prev.X)*(pt.X-prev.X) + (pt.Y-prev.Y)*(pt.Y-prev.Y) +
				(pt.Z-prev.Z)*(pt.Z-prev.Z)); d > c.step+1e-9 {

				t.Errorf("Segments(%s) step %v longer than %v", c.s, d, c.step)
			}
			prev = pt
		}
	}
}

func TestArcSegmentsPlane(t *testing.T) {
	_, cmd, err := applyText(t, NewSetup(Metric, nil), "G18 G3 X10 Z0 K0 I5 F100")
	if err != nil {
		t.Fatalf("Apply() failed with %s", err)
	}
	for _, pt := range cmd.Moves[0].Arc.Segments(Position{}, 0.5) {
		if pt.Y != 0 {
			t.Errorf("Segments() in XZ plane got %s", pt)
		}
		if r := math.Hypot(pt.X-5, pt.Z); math.Abs(r-5) > 1e-9 {
			t.Errorf("Segments() point %s is %v from the center", pt, r)
		}
	}
}
