package ngc

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Op names a canonical machining call.
type Op int

const (
	OpComment Op = iota + 1
	OpMessage
	OpSetLengthUnits
	OpSelectPlane
	OpSetDistanceMode
	OpSetFeedMode
	OpSetFeedRate
	OpSetSpindleSpeed
	OpSelectTool
	OpStartCutterRadiusCompensation
	OpStopCutterRadiusCompensation
	OpUseToolLengthOffset
	OpSetOriginOffsets
	OpSetMotionControlMode
	OpDwell
	OpStraightTraverse
	OpStraightFeed
	OpArcFeed
	OpStartSpindleClockwise
	OpStartSpindleCounterclockwise
	OpStopSpindleTurning
	OpChangeTool
	OpMistOn
	OpFloodOn
	OpMistOff
	OpFloodOff
	OpSetOverrides
	OpProgramStop
	OpOptionalProgramStop
	OpPalletShuttle
	OpProgramEnd
)

var opNames = map[Op]string{
	OpComment:                       "comment",
	OpMessage:                       "message",
	OpSetLengthUnits:                "set_length_units",
	OpSelectPlane:                   "select_plane",
	OpSetDistanceMode:               "set_distance_mode",
	OpSetFeedMode:                   "set_feed_mode",
	OpSetFeedRate:                   "set_feed_rate",
	OpSetSpindleSpeed:               "set_spindle_speed",
	OpSelectTool:                    "select_tool",
	OpStartCutterRadiusCompensation: "start_cutter_radius_compensation",
	OpStopCutterRadiusCompensation:  "stop_cutter_radius_compensation",
	OpUseToolLengthOffset:           "use_tool_length_offset",
	OpSetOriginOffsets:              "set_origin_offsets",
	OpSetMotionControlMode:          "set_motion_control_mode",
	OpDwell:                         "dwell",
	OpStraightTraverse:              "straight_traverse",
	OpStraightFeed:                  "straight_feed",
	OpArcFeed:                       "arc_feed",
	OpStartSpindleClockwise:         "start_spindle_clockwise",
	OpStartSpindleCounterclockwise:  "start_spindle_counterclockwise",
	OpStopSpindleTurning:            "stop_spindle_turning",
	OpChangeTool:                    "change_tool",
	OpMistOn:                        "mist_on",
	OpFloodOn:                       "flood_on",
	OpMistOff:                       "mist_off",
	OpFloodOff:                      "flood_off",
	OpSetOverrides:                  "set_overrides",
	OpProgramStop:                   "program_stop",
	OpOptionalProgramStop:           "optional_program_stop",
	OpPalletShuttle:                 "pallet_shuttle",
	OpProgramEnd:                    "program_end",
}

func (op Op) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// Call is one canonical machining call. Only the fields used by Op are set;
// positions are in program coordinates and current units.
type Call struct {
	Op       Op
	Line     int
	Text     string
	Units    Units
	Plane    Plane
	Distance DistanceMode
	FeedMode FeedMode
	Path     PathMode
	Side     CompSide
	Value    float64 // rate, speed, seconds, radius, offset or tolerance
	Tool     int
	Enabled  bool
	Pos      Position
	Arc      Arc
}

func formatPosition(pos Position) string {
	return fmt.Sprintf("%s, %s, %s, %s, %s, %s", formatNumber(pos.X), formatNumber(pos.Y),
		formatNumber(pos.Z), formatNumber(pos.A), formatNumber(pos.B), formatNumber(pos.C))
}

func (c Call) args() string {
	switch c.Op {
	case OpComment, OpMessage:
		return fmt.Sprintf("%q", c.Text)
	case OpSetLengthUnits:
		return c.Units.String()
	case OpSelectPlane:
		return c.Plane.String()
	case OpSetDistanceMode:
		return c.Distance.String()
	case OpSetFeedMode:
		return c.FeedMode.String()
	case OpSetFeedRate, OpSetSpindleSpeed, OpDwell, OpUseToolLengthOffset:
		return formatNumber(c.Value)
	case OpSelectTool, OpChangeTool:
		return fmt.Sprintf("%d", c.Tool)
	case OpStartCutterRadiusCompensation:
		return fmt.Sprintf("%s, %s", formatNumber(c.Value), c.Side)
	case OpSetOriginOffsets, OpStraightTraverse, OpStraightFeed:
		return formatPosition(c.Pos)
	case OpSetMotionControlMode:
		return fmt.Sprintf("%s, %s", c.Path, formatNumber(c.Value))
	case OpArcFeed:
		a := c.Arc
		return fmt.Sprintf("%s, %s, %s, %s, %d, %s, %s, %s, %s", formatNumber(a.FirstEnd),
			formatNumber(a.SecondEnd), formatNumber(a.FirstCenter), formatNumber(a.SecondCenter),
			a.Rotation, formatNumber(a.AxisEnd), formatNumber(a.A), formatNumber(a.B),
			formatNumber(a.C))
	case OpSetOverrides:
		if c.Enabled {
			return "ENABLED"
		}
		return "DISABLED"
	}
	return ""
}

// String renders the call as name(args), for example
// straight_feed(10, 0, 0, 0, 0, 0).
func (c Call) String() string {
	return c.Op.String() + "(" + c.args() + ")"
}

// Machine is the motion and device layer driven by the canonical calls.
type Machine interface {
	Comment(text string) error
	Message(text string) error
	SetLengthUnits(units Units) error
	SelectPlane(plane Plane) error
	SetDistanceMode(mode DistanceMode) error
	SetFeedMode(mode FeedMode) error
	SetFeedRate(rate float64) error
	SetSpindleSpeed(speed float64) error
	SelectTool(tool int) error
	StartCutterRadiusCompensation(radius float64, side CompSide) error
	StopCutterRadiusCompensation() error
	UseToolLengthOffset(offset float64) error
	SetOriginOffsets(offset Position) error
	SetMotionControlMode(mode PathMode, tolerance float64) error
	Dwell(seconds float64) error
	StraightTraverse(pos Position) error
	StraightFeed(pos Position) error
	ArcFeed(arc Arc) error
	StartSpindleClockwise() error
	StartSpindleCounterclockwise() error
	StopSpindleTurning() error
	ChangeTool(tool int) error
	MistOn() error
	FloodOn() error
	MistOff() error
	FloodOff() error
	SetOverrides(enabled bool) error
	ProgramStop() error
	OptionalProgramStop() error
	PalletShuttle() error
	ProgramEnd() error
}

// Apply makes the call on m.
func (c Call) Apply(m Machine) error {
	switch c.Op {
	case OpComment:
		return m.Comment(c.Text)
	case OpMessage:
		return m.Message(c.Text)
	case OpSetLengthUnits:
		return m.SetLengthUnits(c.Units)
	case OpSelectPlane:
		return m.SelectPlane(c.Plane)
	case OpSetDistanceMode:
		return m.SetDistanceMode(c.Distance)
	case OpSetFeedMode:
		return m.SetFeedMode(c.FeedMode)
	case OpSetFeedRate:
		return m.SetFeedRate(c.Value)
	case OpSetSpindleSpeed:
		return m.SetSpindleSpeed(c.Value)
	case OpSelectTool:
		return m.SelectTool(c.Tool)
	case OpStartCutterRadiusCompensation:
		return m.StartCutterRadiusCompensation(c.Value, c.Side)
	case OpStopCutterRadiusCompensation:
		return m.StopCutterRadiusCompensation()
	case OpUseToolLengthOffset:
		return m.UseToolLengthOffset(c.Value)
	case OpSetOriginOffsets:
		return m.SetOriginOffsets(c.Pos)
	case OpSetMotionControlMode:
		return m.SetMotionControlMode(c.Path, c.Value)
	case OpDwell:
		return m.Dwell(c.Value)
	case OpStraightTraverse:
		return m.StraightTraverse(c.Pos)
	case OpStraightFeed:
		return m.StraightFeed(c.Pos)
	case OpArcFeed:
		return m.ArcFeed(c.Arc)
	case OpStartSpindleClockwise:
		return m.StartSpindleClockwise()
	case OpStartSpindleCounterclockwise:
		return m.StartSpindleCounterclockwise()
	case OpStopSpindleTurning:
		return m.StopSpindleTurning()
	case OpChangeTool:
		return m.ChangeTool(c.Tool)
	case OpMistOn:
		return m.MistOn()
	case OpFloodOn:
		return m.FloodOn()
	case OpMistOff:
		return m.MistOff()
	case OpFloodOff:
		return m.FloodOff()
	case OpSetOverrides:
		return m.SetOverrides(c.Enabled)
	case OpProgramStop:
		return m.ProgramStop()
	case OpOptionalProgramStop:
		return m.OptionalProgramStop()
	case OpPalletShuttle:
		return m.PalletShuttle()
	case OpProgramEnd:
		return m.ProgramEnd()
	}
	return fmt.Errorf("ngc: unknown canonical call: %s", c.Op)
}

// NopMachine ignores every call; embed it to implement only some of Machine.
type NopMachine struct{}

func (NopMachine) Comment(text string) error { return nil }
func (NopMachine) Message(text string) error { return nil }
func (NopMachine) SetLengthUnits(units Units) error { return nil }
func (NopMachine) SelectPlane(plane Plane) error { return nil }
func (NopMachine) SetDistanceMode(mode DistanceMode) error { return nil }
func (NopMachine) SetFeedMode(mode FeedMode) error { return nil }
func (NopMachine) SetFeedRate(rate float64) error { return nil }
func (NopMachine) SetSpindleSpeed(speed float64) error { return nil }
func (NopMachine) SelectTool(tool int) error { return nil }
func (NopMachine) StartCutterRadiusCompensation(r float64, s CompSide) error { return nil }
func (NopMachine) StopCutterRadiusCompensation() error { return nil }
func (NopMachine) UseToolLengthOffset(offset float64) error { return nil }
func (NopMachine) SetOriginOffsets(offset Position) error { return nil }
func (NopMachine) SetMotionControlMode(mode PathMode, tol float64) error { return nil }
func (NopMachine) Dwell(seconds float64) error { return nil }
func (NopMachine) StraightTraverse(pos Position) error { return nil }
func (NopMachine) StraightFeed(pos Position) error { return nil }
func (NopMachine) ArcFeed(arc Arc) error { return nil }
func (NopMachine) StartSpindleClockwise() error { return nil }
func (NopMachine) StartSpindleCounterclockwise() error { return nil }
func (NopMachine) StopSpindleTurning() error { return nil }
func (NopMachine) ChangeTool(tool int) error { return nil }
func (NopMachine) MistOn() error { return nil }
func (NopMachine) FloodOn() error { return nil }
func (NopMachine) MistOff() error { return nil }
func (NopMachine) FloodOff() error { return nil }
func (NopMachine) SetOverrides(enabled bool) error { return nil }
func (NopMachine) ProgramStop() error { return nil }
func (NopMachine) OptionalProgramStop() error { return nil }
func (NopMachine) PalletShuttle() error { return nil }
func (NopMachine) ProgramEnd() error { return nil }

// Sink receives canonical calls in order.
type Sink interface {
	Emit(c Call) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(c Call) error

func (sf SinkFunc) Emit(c Call) error {
	return sf(c)
}

type machineSink struct {
	m Machine
}

func (ms machineSink) Emit(c Call) error {
	return c.Apply(ms.m)
}

// MachineSink returns a Sink which makes each call on m.
func MachineSink(m Machine) Sink {
	return machineSink{m}
}

// Recorder keeps every call it receives.
type Recorder struct {
	Calls []Call
}

func (r *Recorder) Emit(c Call) error {
	r.Calls = append(r.Calls, c)
	return nil
}

// Strings returns the recorded calls rendered with Call.String.
func (r *Recorder) Strings() []string {
	strs := make([]string, 0, len(r.Calls))
	for _, c := range r.Calls {
		strs = append(strs, c.String())
	}
	return strs
}

func (r *Recorder) String() string {
	return strings.Join(r.Strings(), "\n")
}

// Queue is an unbounded Sink which hands calls to another goroutine; the
// interpreter never blocks on it.
type Queue struct {
	mu     sync.Mutex
	calls  []Call
	closed bool
	ready  chan struct{}
}

func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{})}
}

func (q *Queue) Emit(c Call) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("ngc: emit on closed queue: %s", c)
	}
	q.calls = append(q.calls, c)
	close(q.ready)
	q.ready = make(chan struct{})
	return nil
}

// Close marks the end of the calls; Next returns io.EOF once the queue is
// drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ready)
	}
}

// Next waits for the next call.
func (q *Queue) Next(ctx context.Context) (Call, error) {
	for {
		q.mu.Lock()
		if len(q.calls) > 0 {
			c := q.calls[0]
			q.calls = q.calls[1:]
			q.mu.Unlock()
			return c, nil
		} else if q.closed {
			q.mu.Unlock()
			return Call{}, io.EOF
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Call{}, ctx.Err()
		case <-ready:
		}
	}
}
