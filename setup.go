package ngc

import (
	"fmt"
	"math"
)

const (
	mmPerInch = 25.4
)

// Position is a point in program coordinates: X, Y and Z in the current
// length units and A, B and C in degrees.
type Position struct {
	X, Y, Z, A, B, C float64
}

func (pos Position) String() string {
	return fmt.Sprintf("{x: %s, y: %s, z: %s, a: %s, b: %s, c: %s}", formatNumber(pos.X),
		formatNumber(pos.Y), formatNumber(pos.Z), formatNumber(pos.A), formatNumber(pos.B),
		formatNumber(pos.C))
}

func (pos Position) add(o Position) Position {
	return Position{pos.X + o.X, pos.Y + o.Y, pos.Z + o.Z, pos.A + o.A, pos.B + o.B, pos.C + o.C}
}

func (pos Position) sub(o Position) Position {
	return Position{pos.X - o.X, pos.Y - o.Y, pos.Z - o.Z, pos.A - o.A, pos.B - o.B, pos.C - o.C}
}

// scale converts the linear axes.
func (pos Position) scale(f float64) Position {
	return Position{pos.X * f, pos.Y * f, pos.Z * f, pos.A, pos.B, pos.C}
}

type Units int

const (
	Imperial Units = iota // G20
	Metric                // G21
)

func (u Units) String() string {
	if u == Imperial {
		return "IMPERIAL"
	}
	return "METRIC"
}

type Plane int

const (
	PlaneXY Plane = iota // G17
	PlaneXZ              // G18
	PlaneYZ              // G19
)

var planeCodes = map[Plane]Code{PlaneXY: gPlaneXY, PlaneXZ: gPlaneXZ, PlaneYZ: gPlaneYZ}

func (p Plane) String() string {
	switch p {
	case PlaneXY:
		return "XY"
	case PlaneXZ:
		return "XZ"
	case PlaneYZ:
		return "YZ"
	}
	return fmt.Sprintf("Plane(%d)", int(p))
}

type DistanceMode int

const (
	Absolute DistanceMode = iota
	Incremental
)

func (m DistanceMode) String() string {
	if m == Absolute {
		return "ABSOLUTE"
	}
	return "INCREMENTAL"
}

type FeedMode int

const (
	UnitsPerMinute FeedMode = iota // G94
	InverseTime                    // G93
)

func (m FeedMode) String() string {
	if m == UnitsPerMinute {
		return "UNITS_PER_MINUTE"
	}
	return "INVERSE_TIME"
}

type SpindleState int

const (
	SpindleStopped SpindleState = iota
	SpindleClockwise
	SpindleCounterClockwise
)

type CompSide int

const (
	CompOff CompSide = iota
	CompLeft
	CompRight
)

func (c CompSide) String() string {
	switch c {
	case CompLeft:
		return "LEFT"
	case CompRight:
		return "RIGHT"
	}
	return "OFF"
}

type RetractMode int

const (
	RetractOldZ RetractMode = iota // G98
	RetractR                       // G99
)

type PathMode int

const (
	Continuous PathMode = iota // G64
	ExactStop                  // G61
	ExactPath                  // G61.1
)

func (m PathMode) String() string {
	switch m {
	case ExactStop:
		return "EXACT_STOP"
	case ExactPath:
		return "EXACT_PATH"
	}
	return "CONTINUOUS"
}

// Tool is one entry of the tool table; lengths are in the units the table
// was configured with.
type Tool struct {
	Number   int     `toml:"number" yaml:"number"`
	Length   float64 `toml:"length" yaml:"length"`
	Diameter float64 `toml:"diameter" yaml:"diameter"`
}

type cycleState struct {
	initZ   float64
	initSet bool
	r, z    float64
	p, q    float64
}

// Setup is the modal state of the interpreter. It is a value: Apply works
// on a copy, so a failed block leaves the caller's Setup untouched.
type Setup struct {
	Position     Position
	Motion       Code
	Plane        Plane
	Units        Units
	Distance     DistanceMode
	ArcDistance  DistanceMode
	FeedMode     FeedMode
	Feed         float64
	Speed        float64
	Spindle      SpindleState
	Mist         bool
	Flood        bool
	Overrides    bool
	PathMode     PathMode
	Tolerance    float64
	Retract      RetractMode
	CoordSystem  int // 1 to 9
	CoordSystems [coordSysCount]Position
	Origin       Position // origin of the active coordinate system
	G92          Position
	G92Enabled   bool
	AxisOffset   Position // active G92 offset
	Home         Position // G28, machine coordinates
	Home2        Position // G30, machine coordinates
	Comp         CompSide
	CompRadius   float64
	Tool         int // in the spindle
	Selected     int
	LengthOffset float64

	cycle     cycleState
	tools     map[int]Tool
	toolUnits Units
	line      int
}

// NewSetup returns the startup state: XY plane, absolute distance mode,
// units per minute, G80, G54, no offsets.
func NewSetup(units Units, tools []Tool) Setup {
	s := Setup{
		Units:       units,
		ArcDistance: Incremental,
		Motion:      gCycleOff,
		Overrides:   true,
		CoordSystem: 1,
		tools:       map[int]Tool{},
		toolUnits:   units,
	}
	for _, t := range tools {
		s.tools[t.Number] = t
	}
	return s
}

// resetModes returns the modal groups to their startup values; position,
// offsets and tools are kept.
func (s *Setup) resetModes(units Units) {
	if s.Units != units {
		s.setUnits(units)
	}
	s.Motion = gCycleOff
	s.Plane = PlaneXY
	s.Distance = Absolute
	s.ArcDistance = Incremental
	s.FeedMode = UnitsPerMinute
	s.Overrides = true
	s.PathMode = Continuous
	s.Retract = RetractOldZ
	s.Comp = CompOff
	s.cycle = cycleState{}
}

// syncOffsets makes the active offsets agree with the coordinate system
// and G92 parameters.
func (s *Setup) syncOffsets() {
	origin := s.CoordSystems[s.CoordSystem-1]
	var axis Position
	if s.G92Enabled {
		axis = s.G92
	}
	s.moveOrigin(origin, axis)
}

// moveOrigin changes the offsets while keeping the machine position fixed.
func (s *Setup) moveOrigin(origin, axis Position) {
	s.Position = s.Position.add(s.Origin).add(s.AxisOffset).sub(origin).sub(axis)
	s.Origin = origin
	s.AxisOffset = axis
}

func (s *Setup) toMachine(pos Position) Position {
	m := pos.add(s.Origin).add(s.AxisOffset)
	m.Z += s.LengthOffset
	return m
}

func (s *Setup) fromMachine(m Position) Position {
	pos := m.sub(s.Origin).sub(s.AxisOffset)
	pos.Z -= s.LengthOffset
	return pos
}

func (s *Setup) toolScale() float64 {
	if s.toolUnits == s.Units {
		return 1.0
	} else if s.Units == Metric {
		return mmPerInch
	}
	return 1.0 / mmPerInch
}

func (s *Setup) tool(num int) Tool {
	return s.tools[num]
}

func (s *Setup) lookupTool(num int) (Tool, error) {
	if num == 0 || len(s.tools) == 0 {
		return Tool{Number: num}, nil
	}
	t, ok := s.tools[num]
	if !ok {
		return Tool{}, errorf(SemanticError, "tool %d not in tool table", num)
	}
	return t, nil
}

func (s *Setup) setUnits(units Units) {
	f := mmPerInch
	if units == Imperial {
		f = 1.0 / mmPerInch
	}
	s.Units = units
	s.Position = s.Position.scale(f)
	s.Origin = s.Origin.scale(f)
	s.AxisOffset = s.AxisOffset.scale(f)
	s.G92 = s.G92.scale(f)
	s.Home = s.Home.scale(f)
	s.Home2 = s.Home2.scale(f)
	for i := range s.CoordSystems {
		s.CoordSystems[i] = s.CoordSystems[i].scale(f)
	}
	s.LengthOffset *= f
	s.CompRadius *= f
	s.cycle.initZ *= f
	s.cycle.r *= f
	s.cycle.z *= f
	s.cycle.q *= f
}

func (s *Setup) arcTolerance() float64 {
	if s.Units == Imperial {
		return 0.0002
	}
	return 0.002
}

type MoveKind int

const (
	MoveTraverse MoveKind = iota + 1
	MoveFeed
	MoveArc
	MoveDwell
)

// Move is one motion of a block; End is in program coordinates.
type Move struct {
	Kind    MoveKind
	End     Position
	Arc     Arc
	Seconds float64
}

// Command is the effect of one block: which modes it programmed, its
// resolved motions and whether it ended the program.
type Command struct {
	Block    *Block
	Motion   Code // motion mode which moved, or NoCode
	Moves    []Move
	Origin   bool // origin offsets changed
	CompStop bool // compensation was on when the program ended
	End      bool // M2 or M30
}

func cannedCycle(c Code) bool {
	switch c {
	case gPeckChipBreak, gDrill, gDrillDwell, gPeckDrill, gBore, gBoreDwell:
		return true
	}
	return false
}

// axesOwner reports whether a group 0 code in b uses the axis words.
func axesOwner(c Code) bool {
	switch c {
	case gSetCoordSys, gHome, gHome2, gAxisOffset:
		return true
	}
	return false
}

// checkWords rejects words which nothing in the block uses.
func (s *Setup) checkWords(b *Block, motion Code) error {
	arc := motion == gArcCW || motion == gArcCCW
	nonModal := b.GModes[GroupNonModal]

	if (b.Has(WordI) || b.Has(WordJ) || b.Has(WordK)) && !arc {
		return errorf(SemanticError, "I, J, or K word with no G2 or G3 to use it")
	}
	if b.Has(WordR) && !arc && !cannedCycle(motion) {
		return errorf(SemanticError, "R word with no G2, G3, or canned cycle to use it")
	}
	if arc && b.Has(WordR) && (b.Has(WordI) || b.Has(WordJ) || b.Has(WordK)) {
		return errorf(SemanticError, "arc with both R and I, J, or K words")
	}
	if b.Has(WordQ) && motion != gPeckDrill && motion != gPeckChipBreak {
		return errorf(SemanticError, "Q word with no G73 or G83 to use it")
	}
	if b.Has(WordP) && nonModal != gDwell && nonModal != gSetCoordSys &&
		b.GModes[GroupPathControl] != gContinuous && !arc &&
		motion != gDrillDwell && motion != gBoreDwell {

		return errorf(SemanticError, "P word with nothing to use it")
	}
	if b.Has(WordL) && nonModal != gSetCoordSys && !cannedCycle(motion) {
		return errorf(SemanticError, "L word with no G10 or canned cycle to use it")
	}
	if b.Has(WordD) && b.GModes[GroupCutterComp] != gCompLeft &&
		b.GModes[GroupCutterComp] != gCompRight {

		return errorf(SemanticError, "D word with no G41 or G42")
	}
	if b.Has(WordH) && b.GModes[GroupToolLength] != gLengthOffset {
		return errorf(SemanticError, "H word with no G43")
	}
	return nil
}

// Apply merges a block into the modal state and returns the new state with
// the block's effective command. Modes change in the order a machine would
// carry them out: feed mode, feed, speed, tool, spindle, coolant,
// overrides, plane, units, compensation, tool length, coordinate system,
// path control, distance mode, retract mode, group 0, motion, stop.
func (s Setup) Apply(b *Block) (Setup, Command, error) {
	cmd := Command{Block: b, Motion: NoCode}

	nonModal := b.GModes[GroupNonModal]
	group0Axes := axesOwner(nonModal) && b.hasAxes()
	motion := b.GModes[GroupMotion]
	moving := motion != NoCode || (b.hasAxes() && !group0Axes)
	motionToBe := NoCode
	if moving {
		motionToBe = motion
		if motionToBe == NoCode {
			motionToBe = s.Motion
		}
	}
	if group0Axes && motion != NoCode && motion != gCycleOff {
		return s, cmd, errorf(SemanticError, "axis words used by G%s and G%s", nonModal, motion)
	}
	if err := s.checkWords(b, motionToBe); err != nil {
		return s, cmd, err
	}

	switch b.GModes[GroupFeedMode] {
	case gInverseTime:
		s.FeedMode = InverseTime
	case gUnitsPerMinute:
		s.FeedMode = UnitsPerMinute
	}
	if b.Has(WordF) {
		s.Feed = b.Value(WordF)
	}
	if b.Has(WordS) {
		s.Speed = b.Value(WordS)
	}
	if b.Has(WordT) {
		t := b.intValue(WordT)
		if _, err := s.lookupTool(t); err != nil {
			return s, cmd, err
		}
		s.Selected = t
	}
	if b.MModes[MGroupToolChange] == mToolChange {
		if s.Comp != CompOff {
			return s, cmd, errorf(SemanticError, "cannot change tools with cutter compensation on")
		}
		s.Tool = s.Selected
	}
	switch b.MModes[MGroupSpindle] {
	case mSpindleCW:
		s.Spindle = SpindleClockwise
	case mSpindleCCW:
		s.Spindle = SpindleCounterClockwise
	case mSpindleStop:
		s.Spindle = SpindleStopped
	}
	switch b.MModes[MGroupCoolant] {
	case mMist:
		s.Mist = true
	case mFlood:
		s.Flood = true
	case mCoolantOff:
		s.Mist = false
		s.Flood = false
	}
	switch b.MModes[MGroupOverride] {
	case mOverridesOn:
		s.Overrides = true
	case mOverridesOff:
		s.Overrides = false
	}

	if c := b.GModes[GroupPlane]; c != NoCode {
		plane := PlaneXY
		if c == gPlaneXZ {
			plane = PlaneXZ
		} else if c == gPlaneYZ {
			plane = PlaneYZ
		}
		if plane != s.Plane && s.Comp != CompOff {
			return s, cmd, errorf(SemanticError, "cannot change planes with cutter compensation on")
		}
		s.Plane = plane
	}

	if c := b.GModes[GroupUnits]; c != NoCode {
		if s.Comp != CompOff {
			return s, cmd, errorf(SemanticError,
				"cannot change units with cutter compensation on")
		}
		units := Metric
		if c == gInches {
			units = Imperial
		}
		if units != s.Units {
			s.setUnits(units)
			cmd.Origin = true
		}
	}

	switch b.GModes[GroupCutterComp] {
	case gCompOff:
		s.Comp = CompOff
	case gCompLeft, gCompRight:
		if s.Comp != CompOff {
			return s, cmd, errorf(SemanticError,
				"cannot turn cutter compensation on when already on")
		}
		if s.Plane != PlaneXY {
			return s, cmd, errorf(SemanticError,
				"cutter compensation is only supported in the XY plane")
		}
		num := s.Tool
		if b.Has(WordD) {
			num = b.intValue(WordD)
		}
		t, err := s.lookupTool(num)
		if err != nil {
			return s, cmd, err
		}
		s.CompRadius = t.Diameter / 2 * s.toolScale()
		s.Comp = CompLeft
		if b.GModes[GroupCutterComp] == gCompRight {
			s.Comp = CompRight
		}
	}

	switch b.GModes[GroupToolLength] {
	case gLengthOffset:
		num := s.Tool
		if b.Has(WordH) {
			num = b.intValue(WordH)
		}
		t, err := s.lookupTool(num)
		if err != nil {
			return s, cmd, err
		}
		offset := t.Length * s.toolScale()
		s.Position.Z += s.LengthOffset - offset
		s.LengthOffset = offset
	case gLengthOffsetOff:
		s.Position.Z += s.LengthOffset
		s.LengthOffset = 0
	}

	if c := b.GModes[GroupCoordSystem]; c != NoCode {
		if s.Comp != CompOff {
			return s, cmd, errorf(SemanticError,
				"cannot change coordinate systems with cutter compensation on")
		}
		for i, csc := range coordSystemCodes {
			if csc == c {
				s.CoordSystem = i + 1
			}
		}
		s.moveOrigin(s.CoordSystems[s.CoordSystem-1], s.AxisOffset)
		cmd.Origin = true
	}

	switch b.GModes[GroupPathControl] {
	case gExactStop:
		s.PathMode = ExactStop
		s.Tolerance = 0
	case gExactPath:
		s.PathMode = ExactPath
		s.Tolerance = 0
	case gContinuous:
		s.PathMode = Continuous
		s.Tolerance = 0
		if b.Has(WordP) {
			s.Tolerance = b.Value(WordP)
		}
	}

	switch b.GModes[GroupDistance] {
	case gAbsolute:
		s.Distance = Absolute
	case gIncremental:
		s.Distance = Incremental
	}
	switch b.GModes[GroupArcDistance] {
	case gArcAbsolute:
		s.ArcDistance = Absolute
	case gArcIncremental:
		s.ArcDistance = Incremental
	}
	switch b.GModes[GroupRetract] {
	case gRetractOldZ:
		s.Retract = RetractOldZ
	case gRetractR:
		s.Retract = RetractR
	}

	if err := s.applyNonModal(b, &cmd); err != nil {
		return s, cmd, err
	}

	prevMotion := s.Motion
	if motion != NoCode {
		s.Motion = motion
		if !cannedCycle(motion) {
			s.cycle.initSet = false
		}
	}
	if nonModal == gMachineCoords && (!moving || (motionToBe != gRapid && motionToBe != gLinear)) {
		return s, cmd, errorf(SemanticError, "G53 requires G0 or G1 motion")
	}
	if moving {
		if err := s.applyMotion(b, &cmd, motionToBe, prevMotion); err != nil {
			return s, cmd, err
		}
	}

	switch b.MModes[MGroupStop] {
	case mEnd, mEndRewind:
		cmd.CompStop = s.Comp != CompOff
		s.endProgram()
		cmd.End = true
	}

	return s, cmd, nil
}

// target resolves the axis words of b into an end point in program
// coordinates.
func (s *Setup) target(b *Block, machine bool) Position {
	end := s.Position
	for axis, w := range axisWords {
		if !b.Has(w) {
			continue
		}
		val := b.Value(w)
		if machine {
			val -= axisValue(s.Origin, axis) + axisValue(s.AxisOffset, axis)
			if axis == 2 {
				val -= s.LengthOffset
			}
		} else if s.Distance == Incremental {
			val += axisValue(s.Position, axis)
		}
		setAxisValue(&end, axis, val)
	}
	return end
}

func (s *Setup) applyNonModal(b *Block, cmd *Command) error {
	switch b.GModes[GroupNonModal] {
	case gDwell:
		if !b.Has(WordP) {
			return errorf(SemanticError, "G4 requires a P word")
		}
		if b.Value(WordP) < 0 {
			return errorf(SemanticError, "negative dwell time: P%s", formatNumber(b.Value(WordP)))
		}
		cmd.Moves = append(cmd.Moves, Move{Kind: MoveDwell, End: s.Position,
			Seconds: b.Value(WordP)})
	case gSetCoordSys:
		return s.setCoordinateSystem(b, cmd)
	case gHome:
		return s.moveToPredefined(b, cmd, s.Home)
	case gHome2:
		return s.moveToPredefined(b, cmd, s.Home2)
	case gSetHome:
		s.Home = s.toMachine(s.Position)
	case gSetHome2:
		s.Home2 = s.toMachine(s.Position)
	case gMachineCoords:
		if s.Distance == Incremental {
			return errorf(SemanticError, "cannot use G53 in incremental distance mode")
		}
		if s.Comp != CompOff {
			return errorf(SemanticError, "cannot use G53 with cutter compensation on")
		}
	case gAxisOffset:
		if !b.hasAxes() {
			return errorf(SemanticError, "G92 requires at least one axis word")
		}
		axis := s.AxisOffset
		for i, w := range axisWords {
			if b.Has(w) {
				setAxisValue(&axis, i,
					axisValue(s.Position, i)+axisValue(s.AxisOffset, i)-b.Value(w))
			}
		}
		s.moveOrigin(s.Origin, axis)
		s.G92 = axis
		s.G92Enabled = true
		cmd.Origin = true
	case gAxisOffsetClear:
		s.moveOrigin(s.Origin, Position{})
		s.G92 = Position{}
		s.G92Enabled = false
		cmd.Origin = true
	case gAxisOffsetSuspend:
		s.moveOrigin(s.Origin, Position{})
		s.G92Enabled = false
		cmd.Origin = true
	case gAxisOffsetRestore:
		s.moveOrigin(s.Origin, s.G92)
		s.G92Enabled = true
		cmd.Origin = true
	}
	return nil
}

// setCoordinateSystem handles G10 L2 (set origin) and G10 L20 (set origin so
// the current point has the given coordinates).
func (s *Setup) setCoordinateSystem(b *Block, cmd *Command) error {
	if !b.Has(WordL) {
		return errorf(SemanticError, "G10 requires an L word")
	}
	l := b.intValue(WordL)
	if l != 2 && l != 20 {
		return errorf(SemanticError, "unsupported G10 L%d", l)
	}
	if !b.Has(WordP) {
		return errorf(SemanticError, "G10 requires a P word")
	}
	p := b.Value(WordP)
	if !integerValue(p) || p < 0 || p > coordSysCount {
		return errorf(SemanticError, "expected a coordinate system: P%s", formatNumber(p))
	}
	n := int(math.Round(p))
	if n == 0 {
		n = s.CoordSystem
	}

	origin := s.CoordSystems[n-1]
	for i, w := range axisWords {
		if !b.Has(w) {
			continue
		}
		if l == 2 {
			setAxisValue(&origin, i, b.Value(w))
		} else {
			setAxisValue(&origin, i, axisValue(s.Position, i)+axisValue(s.Origin, i)-b.Value(w))
		}
	}
	s.CoordSystems[n-1] = origin
	if n == s.CoordSystem {
		s.moveOrigin(origin, s.AxisOffset)
		cmd.Origin = true
	}
	return nil
}

// moveToPredefined handles G28 and G30: traverse through the optional
// intermediate point, then to home. With axis words only those axes go home.
func (s *Setup) moveToPredefined(b *Block, cmd *Command, home Position) error {
	if s.Comp != CompOff {
		return errorf(SemanticError, "cannot use G28 or G30 with cutter compensation on")
	}

	final := s.fromMachine(home)
	if b.hasAxes() {
		way := s.target(b, false)
		cmd.Moves = append(cmd.Moves, Move{Kind: MoveTraverse, End: way})
		end := way
		for i, w := range axisWords {
			if b.Has(w) {
				setAxisValue(&end, i, axisValue(final, i))
			}
		}
		final = end
	}
	cmd.Moves = append(cmd.Moves, Move{Kind: MoveTraverse, End: final})
	s.Position = final
	return nil
}

func (s *Setup) checkFeed(b *Block, motion Code) error {
	if s.FeedMode == InverseTime {
		if !b.Has(WordF) {
			return errorf(SemanticError, "F word missing with inverse time G%s motion", motion)
		}
	} else if s.Feed == 0 {
		return errorf(SemanticError, "cannot do G%s with zero feed rate", motion)
	}
	return nil
}

func (s *Setup) applyMotion(b *Block, cmd *Command, motion, prevMotion Code) error {
	switch motion {
	case gCycleOff:
		if b.hasAxes() {
			return errorf(SemanticError, "cannot use axis words with G80")
		}
		return nil
	case gRapid, gLinear:
		if !b.hasAxes() {
			return nil
		}
		kind := MoveTraverse
		if motion == gLinear {
			if err := s.checkFeed(b, motion); err != nil {
				return err
			}
			kind = MoveFeed
		}
		end := s.target(b, b.GModes[GroupNonModal] == gMachineCoords)
		cmd.Moves = append(cmd.Moves, Move{Kind: kind, End: end})
		s.Position = end
	case gArcCW, gArcCCW:
		if err := s.checkFeed(b, motion); err != nil {
			return err
		}
		mv, err := s.arc(b, motion == gArcCW)
		if err != nil {
			return err
		}
		cmd.Moves = append(cmd.Moves, mv)
		s.Position = mv.End
	default:
		moves, err := s.cannedCycle(b, motion, prevMotion != motion)
		if err != nil {
			return err
		}
		cmd.Moves = append(cmd.Moves, moves...)
	}
	cmd.Motion = motion
	return nil
}

// endProgram resets the modes M2 and M30 reset: G54 origin, G92 offsets
// suspended, XY plane, G90, G94, overrides on, compensation off, spindle
// stopped, G1, coolant off.
func (s *Setup) endProgram() {
	s.CoordSystem = 1
	s.moveOrigin(s.CoordSystems[0], Position{})
	s.G92Enabled = false
	s.Plane = PlaneXY
	s.Distance = Absolute
	s.FeedMode = UnitsPerMinute
	s.Overrides = true
	s.Comp = CompOff
	s.Spindle = SpindleStopped
	s.Motion = gLinear
	s.Mist = false
	s.Flood = false
	s.cycle.initSet = false
}
