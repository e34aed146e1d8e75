package ngc

import (
	"strings"
)

// messageText returns the text of a (MSG, ...) comment.
func messageText(comment string) (string, bool) {
	s := strings.TrimLeft(comment, " \t")
	if len(s) < 4 || !strings.EqualFold(s[:3], "MSG") {
		return "", false
	}
	s = strings.TrimLeft(s[3:], " \t")
	if !strings.HasPrefix(s, ",") {
		return "", false
	}
	return strings.TrimLeft(s[1:], " \t"), true
}

// Emit converts a command into canonical calls in execution order: comments,
// mode settings, motion, device M codes in numeric order, and finally stops.
// s is the state after the block was applied.
func Emit(cmd Command, s Setup) []Call {
	b := cmd.Block
	var calls []Call
	add := func(c Call) {
		c.Line = b.Line
		calls = append(calls, c)
	}

	for _, comment := range b.Comments {
		if msg, ok := messageText(comment); ok {
			add(Call{Op: OpMessage, Text: msg})
		} else {
			add(Call{Op: OpComment, Text: comment})
		}
	}

	if b.GModes[GroupUnits] != NoCode {
		add(Call{Op: OpSetLengthUnits, Units: s.Units})
	}
	if b.GModes[GroupPlane] != NoCode {
		add(Call{Op: OpSelectPlane, Plane: s.Plane})
	}
	if b.GModes[GroupDistance] != NoCode {
		add(Call{Op: OpSetDistanceMode, Distance: s.Distance})
	}
	if b.GModes[GroupFeedMode] != NoCode {
		add(Call{Op: OpSetFeedMode, FeedMode: s.FeedMode})
	}
	if b.Has(WordF) {
		add(Call{Op: OpSetFeedRate, Value: s.Feed})
	}
	if b.Has(WordS) {
		add(Call{Op: OpSetSpindleSpeed, Value: s.Speed})
	}
	if b.Has(WordT) {
		add(Call{Op: OpSelectTool, Tool: s.Selected})
	}
	switch b.GModes[GroupCutterComp] {
	case gCompOff:
		add(Call{Op: OpStopCutterRadiusCompensation})
	case gCompLeft, gCompRight:
		add(Call{Op: OpStartCutterRadiusCompensation, Value: s.CompRadius, Side: s.Comp})
	}
	if b.GModes[GroupToolLength] != NoCode {
		add(Call{Op: OpUseToolLengthOffset, Value: s.LengthOffset})
	}
	if cmd.Origin && !cmd.End {
		add(Call{Op: OpSetOriginOffsets, Pos: s.Origin.add(s.AxisOffset)})
	}
	if b.GModes[GroupPathControl] != NoCode {
		add(Call{Op: OpSetMotionControlMode, Path: s.PathMode, Value: s.Tolerance})
	}

	for _, mv := range cmd.Moves {
		switch mv.Kind {
		case MoveTraverse:
			add(Call{Op: OpStraightTraverse, Pos: mv.End})
		case MoveFeed:
			add(Call{Op: OpStraightFeed, Pos: mv.End})
		case MoveArc:
			add(Call{Op: OpArcFeed, Arc: mv.Arc})
		case MoveDwell:
			add(Call{Op: OpDwell, Value: mv.Seconds})
		}
	}

	switch b.MModes[MGroupSpindle] {
	case mSpindleCW:
		add(Call{Op: OpStartSpindleClockwise})
	case mSpindleCCW:
		add(Call{Op: OpStartSpindleCounterclockwise})
	case mSpindleStop:
		add(Call{Op: OpStopSpindleTurning})
	}
	if b.MModes[MGroupToolChange] == mToolChange {
		add(Call{Op: OpChangeTool, Tool: s.Tool})
	}
	switch b.MModes[MGroupCoolant] {
	case mMist:
		add(Call{Op: OpMistOn})
	case mFlood:
		add(Call{Op: OpFloodOn})
	case mCoolantOff:
		add(Call{Op: OpMistOff})
		add(Call{Op: OpFloodOff})
	}
	if b.MModes[MGroupOverride] != NoCode {
		add(Call{Op: OpSetOverrides, Enabled: s.Overrides})
	}

	switch b.MModes[MGroupStop] {
	case mStop:
		add(Call{Op: OpProgramStop})
	case mOptionalStop:
		add(Call{Op: OpOptionalProgramStop})
	case mPalletStop:
		add(Call{Op: OpPalletShuttle})
		add(Call{Op: OpProgramStop})
	case mEnd, mEndRewind:
		add(Call{Op: OpSetOriginOffsets, Pos: s.Origin.add(s.AxisOffset)})
		add(Call{Op: OpSelectPlane, Plane: s.Plane})
		add(Call{Op: OpSetDistanceMode, Distance: s.Distance})
		add(Call{Op: OpSetFeedMode, FeedMode: s.FeedMode})
		add(Call{Op: OpSetOverrides, Enabled: s.Overrides})
		if cmd.CompStop {
			add(Call{Op: OpStopCutterRadiusCompensation})
		}
		add(Call{Op: OpStopSpindleTurning})
		add(Call{Op: OpMistOff})
		add(Call{Op: OpFloodOff})
		if b.MModes[MGroupStop] == mEndRewind {
			add(Call{Op: OpPalletShuttle})
		}
		add(Call{Op: OpProgramEnd})
	}

	return calls
}
