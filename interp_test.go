package ngc

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func runText(t *testing.T, cfg Config, text string) (*Recorder, *Interp, error) {
	t.Helper()

	var rec Recorder
	in, err := NewInterp(&rec, cfg)
	if err != nil {
		t.Fatalf("NewInterp() failed with %s", err)
	}
	if err := in.Load(strings.NewReader(text), "test"); err != nil {
		return &rec, in, err
	}
	return &rec, in, in.Run(context.Background())
}

// motion returns only the calls which move the machine.
func motion(rec *Recorder) []string {
	var strs []string
	for _, c := range rec.Calls {
		switch c.Op {
		case OpStraightTraverse, OpStraightFeed, OpArcFeed:
			strs = append(strs, c.String())
		}
	}
	return strs
}

func TestRunProgram(t *testing.T) {
	rec, _, err := runText(t, Config{}, "G21 G90\nG1 X10 Y0 F100\nG2 X20 Y0 R5\n")
	if err != nil {
		t.Fatalf("Run() failed with %s", err)
	}

	want := []string{
		"set_length_units(METRIC)",
		"set_distance_mode(ABSOLUTE)",
		"set_feed_rate(100)",
		"straight_feed(10, 0, 0, 0, 0, 0)",
		"arc_feed(20, 0, 15, 0, -1, 0, 0, 0, 0)",
	}
	if diff := cmp.Diff(want, rec.Strings()); diff != "" {
		t.Errorf("Run() calls (-want +got):\n%s", diff)
	}

	var lines []int
	for _, c := range rec.Calls {
		lines = append(lines, c.Line)
	}
	if diff := cmp.Diff([]int{1, 1, 2, 2, 3}, lines); diff != "" {
		t.Errorf("Run() call lines (-want +got):\n%s", diff)
	}
}

func TestRunControlFlow(t *testing.T) {
	cases := []struct {
		name string
		s    string
		want []string
	}{
		{
			name: "subroutine",
			s: `#1 = 5
o100 sub
  #<x> = [#1 * 2]
  G0 X#<x>
  #1 = 99
o100 endsub [#1 + 1]
o100 call [3]
G0 Y#1 Z#<_value>
`,
			want: []string{
				"straight_traverse(6, 0, 0, 0, 0, 0)",
				"straight_traverse(6, 5, 100, 0, 0, 0)",
			},
		},
		{
			name: "while",
			s: `#1 = 0
o1 while [#1 LT 3]
  G0 X#1
  #1 = [#1 + 1]
o1 endwhile
G0 Y1
`,
			want: []string{
				"straight_traverse(0, 0, 0, 0, 0, 0)",
				"straight_traverse(1, 0, 0, 0, 0, 0)",
				"straight_traverse(2, 0, 0, 0, 0, 0)",
				"straight_traverse(2, 1, 0, 0, 0, 0)",
			},
		},
		{
			name: "while false",
			s: `o1 while [0]
  G0 X1
o1 endwhile
G0 Y1
`,
			want: []string{"straight_traverse(0, 1, 0, 0, 0, 0)"},
		},
		{
			name: "do while",
			s: `#1 = 5
o1 do
  G0 X#1
  #1 = [#1 + 1]
o1 while [#1 LT 3]
`,
			want: []string{"straight_traverse(5, 0, 0, 0, 0, 0)"},
		},
		{
			name: "do while repeats",
			s: `o1 do
  #1 = [#1 + 1]
  G0 X#1
o1 while [#1 LT 3]
`,
			want: []string{
				"straight_traverse(1, 0, 0, 0, 0, 0)",
				"straight_traverse(2, 0, 0, 0, 0, 0)",
				"straight_traverse(3, 0, 0, 0, 0, 0)",
			},
		},
		{
			name: "repeat",
			s: `G91
o1 repeat [3]
  G0 X1
o1 endrepeat
o2 repeat [0]
  G0 Y1
o2 endrepeat
`,
			want: []string{
				"straight_traverse(1, 0, 0, 0, 0, 0)",
				"straight_traverse(2, 0, 0, 0, 0, 0)",
				"straight_traverse(3, 0, 0, 0, 0, 0)",
			},
		},
		{
			name: "break and continue",
			s: `#1 = 0
o1 while [#1 LT 10]
  #1 = [#1 + 1]
  o2 if [#1 EQ 2]
    o1 continue
  o2 endif
  o3 if [#1 EQ 4]
    o1 break
  o3 endif
  G0 X#1
o1 endwhile
G0 Y1
`,
			want: []string{
				"straight_traverse(1, 0, 0, 0, 0, 0)",
				"straight_traverse(3, 0, 0, 0, 0, 0)",
				"straight_traverse(3, 1, 0, 0, 0, 0)",
			},
		},
		{
			name: "repeat continue",
			s: `o1 repeat [3]
  #2 = [#2 + 1]
  o2 if [#2 EQ 2]
    o1 continue
  o2 endif
  G0 X#2
o1 endrepeat
`,
			want: []string{
				"straight_traverse(1, 0, 0, 0, 0, 0)",
				"straight_traverse(3, 0, 0, 0, 0, 0)",
			},
		},
		{
			name: "do break",
			s: `o1 do
  #1 = [#1 + 1]
  o2 if [#1 GT 2]
    o1 break
  o2 endif
  G0 X#1
o1 while [1]
G0 Y1
`,
			want: []string{
				"straight_traverse(1, 0, 0, 0, 0, 0)",
				"straight_traverse(2, 0, 0, 0, 0, 0)",
				"straight_traverse(2, 1, 0, 0, 0, 0)",
			},
		},
		{
			name: "recursion",
			s: `o<fact> sub
  o1 if [#1 LE 1]
    o<fact> return [1]
  o1 endif
  o<fact> call [#1 - 1]
o<fact> endsub [#1 * #<_value>]
o<fact> call [5]
G0 X#<_value> Y#<_value_returned>
`,
			want: []string{"straight_traverse(120, 1, 0, 0, 0, 0)"},
		},
		{
			name: "return without value",
			s: `o1 sub
  o1 return
o1 endsub
#<_value> = 7
o1 call
G0 X#<_value> Y#<_value_returned>
`,
			want: []string{"straight_traverse(0, 0, 0, 0, 0, 0)"},
		},
		{
			name: "named parameters",
			s: `#<_g> = 1
#<local> = 2
o1 sub
  #<local> = 40
  #<_g> = [#<_g> + 10]
o1 endsub
o1 call
G0 X[#<_g> + #<local>]
`,
			want: []string{"straight_traverse(13, 0, 0, 0, 0, 0)"},
		},
		{
			name: "block delete off",
			s:    "/G0 X1\nG0 Y1\n",
			want: []string{
				"straight_traverse(1, 0, 0, 0, 0, 0)",
				"straight_traverse(1, 1, 0, 0, 0, 0)",
			},
		},
	}

	for _, c := range cases {
		rec, _, err := runText(t, Config{}, c.s)
		if err != nil {
			t.Errorf("Run(%s) failed with %s", c.name, err)
			continue
		}
		if diff := cmp.Diff(c.want, motion(rec)); diff != "" {
			t.Errorf("Run(%s) moves (-want +got):\n%s", c.name, diff)
		}
	}
}

func TestRunIf(t *testing.T) {
	prog := `o1 if [#1 EQ 1]
  G0 X1
o1 elseif [#1 EQ 2]
  G0 X2
o1 elseif [#1 EQ 3]
  G0 X3
o1 else
  G0 X4
o1 endif
G0 Y1
`
	cases := []struct {
		n    string
		want string
	}{
		{n: "1", want: "straight_traverse(1, 0, 0, 0, 0, 0)"},
		{n: "2", want: "straight_traverse(2, 0, 0, 0, 0, 0)"},
		{n: "3", want: "straight_traverse(3, 0, 0, 0, 0, 0)"},
		{n: "7", want: "straight_traverse(4, 0, 0, 0, 0, 0)"},
	}

	for _, c := range cases {
		rec, in, err := runText(t, Config{}, "#1 = "+c.n+"\n"+prog)
		if err != nil {
			t.Errorf("Run(#1=%s) failed with %s", c.n, err)
			continue
		}
		moves := motion(rec)
		if len(moves) != 2 || moves[0] != c.want {
			t.Errorf("Run(#1=%s) got %v want %s", c.n, moves, c.want)
		}
		if in.State() != StateNormal {
			t.Errorf("Run(#1=%s) left state %s", c.n, in.State())
		}
	}
}

func TestRunBlockDelete(t *testing.T) {
	rec, _, err := runText(t, Config{BlockDelete: true}, "/G0 X1\nG0 Y1\n")
	if err != nil {
		t.Fatalf("Run() failed with %s", err)
	}
	want := []string{"straight_traverse(0, 1, 0, 0, 0, 0)"}
	if diff := cmp.Diff(want, motion(rec)); diff != "" {
		t.Errorf("Run() moves (-want +got):\n%s", diff)
	}
}

func TestRunErrors(t *testing.T) {
	cases := []struct {
		s    string
		kind Kind
		line int
		n    int
	}{
		{s: "G0 X1\nG1 X2\nG0 X3\n", kind: SemanticError, line: 2, n: 1},
		{s: "G0 X1\nG0 X(\nG0 X3\n", kind: SyntaxError, line: 2, n: 1},
		{s: "G0 X[1/0]\n", kind: ArithmeticError, line: 1},
		{s: "G0 X#<nope>\n", kind: ParameterError, line: 1},
		{s: "G0 X1\no1 call\n", kind: ControlFlowError, line: 2, n: 1},
		{s: "o1 while [1/0]\no1 endwhile\nG0 X1\n", kind: ArithmeticError, line: 1},
		{s: "o1 sub\no1 endsub\no1 call [1] [2] [3] [4] [5] [6] [7] [8] [9] [10] [11] [12] " +
			"[13] [14] [15] [16] [17] [18] [19] [20] [21] [22] [23] [24] [25] [26] [27] " +
			"[28] [29] [30] [31]\n", kind: ParameterError, line: 3},
	}

	for _, c := range cases {
		rec, _, err := runText(t, Config{}, c.s)
		var e *Error
		if !errors.As(err, &e) {
			t.Errorf("Run(%q) got %v; want *Error", c.s, err)
			continue
		}
		if e.Kind != c.kind {
			t.Errorf("Run(%q) failed with %s; want %s", c.s, err, c.kind)
		}
		if e.Line != c.line {
			t.Errorf("Run(%q) failed at line %d want %d", c.s, e.Line, c.line)
		}
		if len(motion(rec)) != c.n {
			t.Errorf("Run(%q) got %d moves want %d", c.s, len(motion(rec)), c.n)
		}
	}
}

func TestRunSkip(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{OnError: OnErrorSkip, Logger: log.New(&buf, "", 0)}

	rec, _, err := runText(t, cfg, "#1 = 5\n#1 = 7 G1 X1\nG0 X#1\nG0 Y(\nG0 Y2\n")
	if err != nil {
		t.Fatalf("Run() failed with %s", err)
	}
	want := []string{
		"straight_traverse(5, 0, 0, 0, 0, 0)",
		"straight_traverse(5, 2, 0, 0, 0, 0)",
	}
	if diff := cmp.Diff(want, motion(rec)); diff != "" {
		t.Errorf("Run() moves (-want +got):\n%s", diff)
	}
	if n := strings.Count(buf.String(), "skipping"); n != 2 {
		t.Errorf("Run() logged %d skipped blocks want 2:\n%s", n, buf.String())
	}

	_, _, err = runText(t, cfg, "o1 call\nG0 X1\n")
	if !IsKind(err, ControlFlowError) {
		t.Errorf("Run() with skip got %v; want control flow error", err)
	}
}

func TestRunProgramEnd(t *testing.T) {
	rec, in, err := runText(t, Config{},
		"G55 G91 M3 M7\nG41\nM2\nG0 X100\n")
	if err != nil {
		t.Fatalf("Run() failed with %s", err)
	}

	want := []string{
		"set_distance_mode(INCREMENTAL)",
		"set_origin_offsets(0, 0, 0, 0, 0, 0)",
		"start_spindle_clockwise()",
		"mist_on()",
		"start_cutter_radius_compensation(0, LEFT)",
		"set_origin_offsets(0, 0, 0, 0, 0, 0)",
		"select_plane(XY)",
		"set_distance_mode(ABSOLUTE)",
		"set_feed_mode(UNITS_PER_MINUTE)",
		"set_overrides(ENABLED)",
		"stop_cutter_radius_compensation()",
		"stop_spindle_turning()",
		"mist_off()",
		"flood_off()",
		"program_end()",
	}
	if diff := cmp.Diff(want, rec.Strings()); diff != "" {
		t.Errorf("Run() calls (-want +got):\n%s", diff)
	}

	done, err := in.Step()
	if !done || err != nil {
		t.Errorf("Step() after M2 got %v, %v", done, err)
	}
}

func TestRunPalletShuttle(t *testing.T) {
	rec, _, err := runText(t, Config{}, "M60\nM30\n")
	if err != nil {
		t.Fatalf("Run() failed with %s", err)
	}
	got := rec.Strings()
	want := []string{"pallet_shuttle()", "program_stop()"}
	if diff := cmp.Diff(want, got[:2]); diff != "" {
		t.Errorf("M60 calls (-want +got):\n%s", diff)
	}
	want = []string{"flood_off()", "pallet_shuttle()", "program_end()"}
	if diff := cmp.Diff(want, got[len(got)-3:]); diff != "" {
		t.Errorf("M30 calls (-want +got):\n%s", diff)
	}
}

func TestRunMessages(t *testing.T) {
	rec, _, err := runText(t, Config{}, "(MSG, Change to the 3mm end mill)\nG0 X1 (rapid)\n")
	if err != nil {
		t.Fatalf("Run() failed with %s", err)
	}
	want := []string{
		`message("Change to the 3mm end mill")`,
		`comment("rapid")`,
		"straight_traverse(1, 0, 0, 0, 0, 0)",
	}
	if diff := cmp.Diff(want, rec.Strings()); diff != "" {
		t.Errorf("Run() calls (-want +got):\n%s", diff)
	}
}

func TestRunState(t *testing.T) {
	var in *Interp
	var states []State
	sink := SinkFunc(func(c Call) error {
		states = append(states, in.State())
		return nil
	})

	var err error
	in, err = NewInterp(sink, Config{})
	if err != nil {
		t.Fatalf("NewInterp() failed with %s", err)
	}
	err = in.Load(strings.NewReader(`o1 sub
  G0 X1
o1 endsub
o1 call
o2 repeat [1]
  G0 X2
o2 endrepeat
G0 X3
`), "state")
	if err != nil {
		t.Fatalf("Load() failed with %s", err)
	}
	if err := in.Run(context.Background()); err != nil {
		t.Fatalf("Run() failed with %s", err)
	}

	want := []State{StateInSubroutine, StateInLoop, StateNormal}
	if diff := cmp.Diff(want, states); diff != "" {
		t.Errorf("State() (-want +got):\n%s", diff)
	}
}

func TestStepSkipping(t *testing.T) {
	var rec Recorder
	in, err := NewInterp(&rec, Config{})
	if err != nil {
		t.Fatalf("NewInterp() failed with %s", err)
	}
	err = in.Load(strings.NewReader("o1 sub\nG0 X1\nG0 X2\no1 endsub\nG0 X3\n"), "skip")
	if err != nil {
		t.Fatalf("Load() failed with %s", err)
	}

	var states []State
	for {
		done, err := in.Step()
		if err != nil {
			t.Fatalf("Step() failed with %s", err)
		}
		if done {
			break
		}
		states = append(states, in.State())
	}
	want := []State{StateSkipping, StateSkipping, StateSkipping, StateNormal, StateNormal}
	if diff := cmp.Diff(want, states); diff != "" {
		t.Errorf("State() (-want +got):\n%s", diff)
	}
}

func TestAbort(t *testing.T) {
	var in *Interp
	var rec Recorder
	sink := SinkFunc(func(c Call) error {
		in.Abort()
		return rec.Emit(c)
	})

	var err error
	in, err = NewInterp(sink, Config{})
	if err != nil {
		t.Fatalf("NewInterp() failed with %s", err)
	}
	if err := in.Load(strings.NewReader("o1 sub\nG0 X1\nG0 X2\no1 endsub\no1 call\n"),
		"abort"); err != nil {

		t.Fatalf("Load() failed with %s", err)
	}
	if err := in.Run(context.Background()); !errors.Is(err, ErrAborted) {
		t.Errorf("Run() got %v want %v", err, ErrAborted)
	}
	if len(rec.Calls) != 1 {
		t.Errorf("Run() got %d calls want 1", len(rec.Calls))
	}
	if in.State() != StateNormal || in.Params().Depth() != 0 {
		t.Errorf("Run() left state %s depth %d", in.State(), in.Params().Depth())
	}

	in.Reset()
	if err := in.Execute("G0 Y1"); err != nil {
		t.Errorf("Execute() after Reset() failed with %s", err)
	}
}

func TestRunCanceled(t *testing.T) {
	var rec Recorder
	in, err := NewInterp(&rec, Config{})
	if err != nil {
		t.Fatalf("NewInterp() failed with %s", err)
	}
	if err := in.Load(strings.NewReader("G0 X1\n"), "canceled"); err != nil {
		t.Fatalf("Load() failed with %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := in.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() got %v want %v", err, context.Canceled)
	}
	if len(rec.Calls) != 0 {
		t.Errorf("Run() got %d calls want 0", len(rec.Calls))
	}
}

func TestExecute(t *testing.T) {
	var rec Recorder
	in, err := NewInterp(&rec, Config{Units: "inch"})
	if err != nil {
		t.Fatalf("NewInterp() failed with %s", err)
	}

	if err := in.Execute("G0 X1 F[2*3]"); err != nil {
		t.Fatalf("Execute() failed with %s", err)
	}
	if err := in.Execute("o1 sub"); !IsKind(err, ControlFlowError) {
		t.Errorf("Execute(o1 sub) got %v; want control flow error", err)
	}
	if err := in.Execute("G1 X$"); !IsKind(err, SyntaxError) {
		t.Errorf("Execute(G1 X$) got %v; want syntax error", err)
	}
	if err := in.Execute("G1 X5 G80"); !IsKind(err, SemanticError) {
		t.Errorf("Execute(G1 X5 G80) got %v; want semantic error", err)
	}

	s := in.Setup()
	if s.Position.X != 1 || s.Feed != 6 || s.Units != Imperial {
		t.Errorf("Setup() got X%v F%v %s", s.Position.X, s.Feed, s.Units)
	}
	want := []string{"set_feed_rate(6)", "straight_traverse(1, 0, 0, 0, 0, 0)"}
	if diff := cmp.Diff(want, rec.Strings()); diff != "" {
		t.Errorf("Execute() calls (-want +got):\n%s", diff)
	}

	in.Execute("G20 G91 G18")
	in.Reset()
	s = in.Setup()
	if s.Distance != Absolute || s.Plane != PlaneXY || s.Units != Imperial {
		t.Errorf("Reset() got %s %s %s", s.Distance, s.Plane, s.Units)
	}
}

func TestParameterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ngc.var")
	cfg := Config{ParameterFile: path}

	_, _, err := runText(t, cfg, "#5221=10\n#100=3\n#10=4\nM2\n")
	if err != nil {
		t.Fatalf("Run() failed with %s", err)
	}

	vals, err := FileStore{Path: path}.Load()
	if err != nil {
		t.Fatalf("Load() failed with %s", err)
	}
	for num, want := range map[int]float64{5221: 10, 100: 3, 5161: 0} {
		if val, ok := vals[num]; !ok || val != want {
			t.Errorf("saved #%d got %v, %v want %v", num, val, ok, want)
		}
	}
	if _, ok := vals[10]; ok {
		t.Errorf("saved #10")
	}

	rec, in, err := runText(t, cfg, "G0 X0\n")
	if err != nil {
		t.Fatalf("Run() failed with %s", err)
	}
	if val, _ := in.Params().Num(100); val != 3 {
		t.Errorf("loaded #100 got %v want 3", val)
	}
	if in.Setup().Origin.X != 10 {
		t.Errorf("loaded origin got %s want X10", in.Setup().Origin)
	}
	want := []string{"straight_traverse(0, 0, 0, 0, 0, 0)"}
	if diff := cmp.Diff(want, rec.Strings()); diff != "" {
		t.Errorf("Run() calls (-want +got):\n%s", diff)
	}
}

func TestParameterFileUnits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ngc.var")
	cfg := Config{ParameterFile: path}

	_, _, err := runText(t, cfg, "G10 L2 P1 X25.4\nG20\nG10 L2 P2 Y1\nM2\n")
	if err != nil {
		t.Fatalf("Run() failed with %s", err)
	}

	vals, err := FileStore{Path: path}.Load()
	if err != nil {
		t.Fatalf("Load() failed with %s", err)
	}
	for num, want := range map[int]float64{5221: 25.4, 5242: 25.4} {
		if math.Abs(vals[num]-want) > 1e-9 {
			t.Errorf("saved #%d got %v want %v", num, vals[num], want)
		}
	}

	_, in, err := runText(t, cfg, "G0 X0\n")
	if err != nil {
		t.Fatalf("Run() failed with %s", err)
	}
	s := in.Setup()
	if s.Units != Metric || math.Abs(s.Origin.X-25.4) > 1e-9 {
		t.Errorf("reloaded %s origin %s want METRIC X25.4", s.Units, s.Origin)
	}
	if math.Abs(s.CoordSystems[1].Y-25.4) > 1e-9 {
		t.Errorf("reloaded G55 origin %s want Y25.4", s.CoordSystems[1])
	}
}

type failingStore struct{}

func (failingStore) Load() (map[int]float64, error) {
	return nil, errors.New("unreadable")
}

func (failingStore) Save(vals map[int]float64) error {
	return nil
}

func TestNewInterpErrors(t *testing.T) {
	cases := []Config{
		{Units: "furlongs"},
		{OnError: "ignore"},
		{Tools: []Tool{{Number: 0}}},
		{Tools: []Tool{{Number: 1}, {Number: 1}}},
		{ParameterDB: "params.db"},
		{Store: failingStore{}},
		{Store: readOnlyStore{6000: 1}},
	}

	for _, cfg := range cases {
		if _, err := NewInterp(&Recorder{}, cfg); err == nil {
			t.Errorf("NewInterp(%+v) did not fail", cfg)
		}
	}
}

type readOnlyStore map[int]float64

func (ros readOnlyStore) Load() (map[int]float64, error) {
	return ros, nil
}

func (ros readOnlyStore) Save(vals map[int]float64) error {
	return errors.New("read only")
}
