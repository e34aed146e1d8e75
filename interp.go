package ngc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sync/atomic"
)

// ErrAborted is returned by Run and Step after Abort.
var ErrAborted = errors.New("ngc: aborted")

// State is what the control flow engine is doing.
type State int

const (
	StateNormal State = iota
	StateInSubroutine
	StateInLoop
	StateSkipping
)

func (st State) String() string {
	switch st {
	case StateNormal:
		return "normal"
	case StateInSubroutine:
		return "in subroutine"
	case StateInLoop:
		return "in loop"
	case StateSkipping:
		return "skipping"
	}
	return fmt.Sprintf("State(%d)", int(st))
}

type frameKind int

const (
	frameCall frameKind = iota
	frameWhile
	frameDo
	frameRepeat
	frameIf
)

type frame struct {
	kind  frameKind
	label string
	start int // line of the opening o-word
	ret   int // call: line to return to
	count int // repeat: iterations left
	taken bool
}

// Interp runs programs and MDI lines, sending canonical calls to a Sink.
// Only Abort may be called from another goroutine.
type Interp struct {
	cfg   Config
	log   *log.Logger
	sink  Sink
	store ParameterStore
	units Units

	setup  Setup
	params *Params

	prog   *Program
	pc     int
	skipTo int
	frames []frame
	done   bool

	aborted atomic.Bool
}

// NewInterp creates an interpreter and loads the persisted parameters. A
// store which cannot be read is fatal.
func NewInterp(sink Sink, cfg Config) (*Interp, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("ngc: %w", err)
	}
	if cfg.ParameterDB != "" && cfg.Store == nil {
		return nil, errors.New("ngc: parameter_db needs a Store opened with paramdb.Open")
	}
	units, _ := cfg.units()

	in := &Interp{
		cfg:    cfg,
		log:    cfg.logger(),
		sink:   sink,
		store:  cfg.store(),
		units:  units,
		setup:  NewSetup(units, cfg.Tools),
		params: NewParams(),
	}
	in.params.bind = &in.setup

	if in.store != nil {
		vals, err := in.store.Load()
		if err != nil {
			return nil, fmt.Errorf("ngc: loading parameters: %w", err)
		}
		if err := in.params.Restore(vals); err != nil {
			return nil, fmt.Errorf("ngc: loading parameters: %w", err)
		}
		in.log.Printf("loaded %d parameters", len(vals))
	}
	in.setup.syncOffsets()
	return in, nil
}

// Load parses a program and makes it the current program.
func (in *Interp) Load(r io.Reader, name string) error {
	prog, err := Parse(r, name)
	if err != nil {
		return err
	}
	in.LoadProgram(prog)
	return nil
}

// LoadProgram makes prog the current program, starting at its first line.
func (in *Interp) LoadProgram(prog *Program) {
	in.prog = prog
	in.pc = 0
	in.skipTo = 0
	in.frames = nil
	in.done = false
	in.params.unwind()
}

// Setup returns a copy of the modal state.
func (in *Interp) Setup() Setup {
	return in.setup
}

// Params returns the parameter store.
func (in *Interp) Params() *Params {
	return in.params
}

// State reports whether the interpreter is skipping lines, or inside a
// loop or subroutine, based on the innermost frame.
func (in *Interp) State() State {
	if in.skipTo > in.pc {
		return StateSkipping
	}
	for i := len(in.frames) - 1; i >= 0; i-- {
		switch in.frames[i].kind {
		case frameCall:
			return StateInSubroutine
		case frameWhile, frameDo, frameRepeat:
			return StateInLoop
		}
	}
	return StateNormal
}

// Abort stops the program at the next block boundary.
func (in *Interp) Abort() {
	in.aborted.Store(true)
}

// Reset abandons the current program, unwinding every frame, and returns
// the modal state to its startup modes. Parameters and position are kept.
func (in *Interp) Reset() {
	in.unwind()
	in.pc = 0
	in.done = false
	in.aborted.Store(false)
	in.setup.resetModes(in.units)
}

func (in *Interp) unwind() {
	in.frames = nil
	in.skipTo = 0
	in.params.unwind()
}

func (in *Interp) abort() error {
	in.unwind()
	in.done = true
	in.log.Printf("aborted at line %d", in.lineNumber())
	return ErrAborted
}

func (in *Interp) lineNumber() int {
	if in.prog == nil || in.pc == 0 || in.pc > len(in.prog.lines) {
		return 0
	}
	return in.prog.lines[in.pc-1].number
}

// Run steps through the program until it ends, fails, is aborted or ctx is
// done. With the skip policy, block errors are logged and the block is
// skipped; control flow errors always stop the program.
func (in *Interp) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			in.unwind()
			in.done = true
			return err
		}

		done, err := in.Step()
		if err != nil {
			if errors.Is(err, ErrAborted) || in.done || in.cfg.OnError != OnErrorSkip ||
				IsKind(err, ControlFlowError) {

				return err
			}
			var e *Error
			if !errors.As(err, &e) {
				return err
			}
			in.log.Printf("skipping: %s", err)
			continue
		}
		if done {
			return nil
		}
	}
}

// Step runs the next line. It returns true when the program has ended.
func (in *Interp) Step() (bool, error) {
	if in.aborted.Load() {
		return true, in.abort()
	}
	if in.prog == nil {
		return true, errors.New("ngc: no program loaded")
	}
	if in.done {
		return true, nil
	}
	if in.pc >= len(in.prog.lines) {
		if len(in.frames) > 0 {
			f := in.frames[len(in.frames)-1]
			err := &Error{Kind: ControlFlowError, Line: in.prog.lines[f.start].number, Seq: -1,
				Msg: fmt.Sprintf("end of program inside o%s", f.label)}
			in.unwind()
			in.done = true
			return true, err
		}
		return true, in.end()
	}

	idx := in.pc
	in.pc += 1
	if in.skipTo > idx {
		return false, nil
	}

	pl := &in.prog.lines[idx]
	if pl.err != nil {
		return false, pl.err
	}
	if pl.Delete && in.cfg.BlockDelete {
		return false, nil
	}
	if pl.Control != nil {
		if err := in.control(idx); err != nil {
			in.unwind()
			in.done = true
			return true, locate(atCol(err, pl.Control.Col), pl.number, pl.Seq)
		}
		return false, nil
	}

	done, err := in.execute(pl.Line, pl.number)
	if err != nil {
		return false, err
	}
	return done, nil
}

// Execute runs a single MDI line. O-word control is not allowed.
func (in *Interp) Execute(text string) error {
	if in.aborted.Load() {
		in.aborted.Store(false)
	}
	line, err := Tokenize(text)
	if err != nil {
		return locate(err, 1, -1)
	}
	if line.Control != nil {
		return &Error{Kind: ControlFlowError, Line: 1, Col: line.Control.Col, Seq: line.Seq,
			Msg: "o-words are not allowed in MDI"}
	}
	_, err = in.execute(line, 1)
	return err
}

// execute runs one block as a unit: either every effect of the block
// happens, or none do.
func (in *Interp) execute(line Line, number int) (bool, error) {
	in.setup.line = number
	in.params.begin()
	b, err := Assemble(line, in.params)
	if err != nil {
		in.params.rollback()
		return false, locate(err, number, line.Seq)
	}
	b.Line = number

	next, cmd, err := in.setup.Apply(&b)
	if err != nil {
		in.params.rollback()
		return false, locate(err, number, line.Seq)
	}
	calls := Emit(cmd, next)
	in.params.commit()
	in.setup = next

	for _, c := range calls {
		if err := in.sink.Emit(c); err != nil {
			return false, fmt.Errorf("ngc: line %d: %w", number, err)
		}
	}
	if cmd.End {
		return true, in.end()
	}
	return false, nil
}

// end finishes the program normally and saves the parameters.
func (in *Interp) end() error {
	in.unwind()
	in.done = true
	if in.store == nil {
		return nil
	}
	// Bound positions are saved in the startup units.
	saved := in.setup
	if saved.Units != in.units {
		saved.setUnits(in.units)
	}
	vals := in.params.persistentIn(&saved)
	if err := in.store.Save(vals); err != nil {
		return fmt.Errorf("ngc: saving parameters: %w", err)
	}
	in.log.Printf("saved %d parameters", len(vals))
	return nil
}

// jump moves to line idx, ending any skip.
func (in *Interp) jump(idx int) {
	in.pc = idx
	in.skipTo = 0
}

func (in *Interp) top() *frame {
	if len(in.frames) == 0 {
		return nil
	}
	return &in.frames[len(in.frames)-1]
}

func (in *Interp) pop() {
	in.frames = in.frames[:len(in.frames)-1]
}

func (in *Interp) condition(c *Control) (bool, error) {
	val, err := Eval(c.Args[0], in.params)
	if err != nil {
		return false, err
	}
	return val != 0, nil
}

// expectFrame checks that the innermost frame was opened by the same
// construct as c.
func (in *Interp) expectFrame(c *Control, kind frameKind) (*frame, error) {
	f := in.top()
	if f == nil || f.kind != kind || f.label != c.Label {
		return nil, errorf(ControlFlowError, "o%s %s does not match the innermost block",
			c.Label, c.Keyword)
	}
	return f, nil
}

func (in *Interp) control(idx int) error {
	pl := &in.prog.lines[idx]
	c := pl.Control

	switch c.Keyword {
	case KeywordSub:
		in.skipTo = pl.match + 1
	case KeywordEndSub, KeywordReturn:
		return in.ret(c)
	case KeywordCall:
		return in.call(idx, c)
	case KeywordWhile:
		if pl.closesDo {
			f, err := in.expectFrame(c, frameDo)
			if err != nil {
				return err
			}
			ok, err := in.condition(c)
			if err != nil {
				return err
			}
			if ok {
				in.jump(f.start + 1)
			} else {
				in.pop()
			}
			return nil
		}

		ok, err := in.condition(c)
		if err != nil {
			return err
		}
		f := in.top()
		again := f != nil && f.kind == frameWhile && f.start == idx
		if ok && !again {
			in.frames = append(in.frames, frame{kind: frameWhile, label: c.Label, start: idx})
		} else if !ok {
			if again {
				in.pop()
			}
			in.skipTo = pl.match + 1
		}
	case KeywordEndWhile:
		f, err := in.expectFrame(c, frameWhile)
		if err != nil {
			return err
		}
		in.jump(f.start)
	case KeywordDo:
		in.frames = append(in.frames, frame{kind: frameDo, label: c.Label, start: idx})
	case KeywordRepeat:
		val, err := Eval(c.Args[0], in.params)
		if err != nil {
			return err
		}
		n := int(math.Round(val))
		if n <= 0 {
			in.skipTo = pl.match + 1
			return nil
		}
		in.frames = append(in.frames,
			frame{kind: frameRepeat, label: c.Label, start: idx, count: n})
	case KeywordEndRepeat:
		f, err := in.expectFrame(c, frameRepeat)
		if err != nil {
			return err
		}
		f.count -= 1
		if f.count > 0 {
			in.jump(f.start + 1)
		} else {
			in.pop()
		}
	case KeywordBreak, KeywordContinue:
		return in.loopJump(idx, c)
	case KeywordIf:
		ok, err := in.condition(c)
		if err != nil {
			return err
		}
		in.frames = append(in.frames, frame{kind: frameIf, label: c.Label, start: idx, taken: ok})
		if !ok {
			in.skipTo = pl.match
		}
	case KeywordElseIf:
		f, err := in.expectFrame(c, frameIf)
		if err != nil {
			return err
		}
		if f.taken {
			in.skipTo = pl.end
			return nil
		}
		ok, err := in.condition(c)
		if err != nil {
			return err
		}
		if ok {
			f.taken = true
		} else {
			in.skipTo = pl.match
		}
	case KeywordElse:
		f, err := in.expectFrame(c, frameIf)
		if err != nil {
			return err
		}
		if f.taken {
			in.skipTo = pl.end
		} else {
			f.taken = true
		}
	case KeywordEndIf:
		if _, err := in.expectFrame(c, frameIf); err != nil {
			return err
		}
		in.pop()
	}
	return nil
}

func (in *Interp) call(idx int, c *Control) error {
	start, ok := in.prog.subs[c.Label]
	if !ok {
		return errorf(ControlFlowError, "undefined subroutine o%s", c.Label)
	}

	args := make([]float64, 0, len(c.Args))
	for _, arg := range c.Args {
		val, err := Eval(arg, in.params)
		if err != nil {
			return err
		}
		args = append(args, val)
	}
	if err := in.params.PushScope(args); err != nil {
		return err
	}
	in.frames = append(in.frames, frame{kind: frameCall, label: c.Label, start: start,
		ret: idx + 1})
	in.jump(start + 1)
	return nil
}

// ret returns from the innermost call, leaving any loops and conditionals
// inside the subroutine.
func (in *Interp) ret(c *Control) error {
	n := len(in.frames) - 1
	for n >= 0 && in.frames[n].kind != frameCall {
		n -= 1
	}
	if n < 0 {
		return errorf(ControlFlowError, "o%s %s with empty call stack", c.Label, c.Keyword)
	}
	f := in.frames[n]
	if f.label != c.Label {
		return errorf(ControlFlowError, "o%s %s inside o%s sub", c.Label, c.Keyword, f.label)
	}

	var val float64
	returned := len(c.Args) > 0
	if returned {
		var err error
		val, err = Eval(c.Args[0], in.params)
		if err != nil {
			return err
		}
	}
	if err := in.params.PopScope(); err != nil {
		return err
	}
	in.params.globals["_value"] = val
	in.params.globals["_value_returned"] = logicBool(returned)

	in.frames = in.frames[:n]
	in.jump(f.ret)
	return nil
}

// loopJump handles break and continue, leaving any conditionals inside the
// loop.
func (in *Interp) loopJump(idx int, c *Control) error {
	loop := in.prog.lines[idx].match
	n := len(in.frames) - 1
	for n >= 0 && in.frames[n].start != loop {
		if in.frames[n].kind == frameCall {
			n = -1
			break
		}
		n -= 1
	}
	if n < 0 {
		return errorf(ControlFlowError, "o%s %s outside of its loop", c.Label, c.Keyword)
	}
	f := in.frames[n]
	end := in.prog.lines[loop].match

	if c.Keyword == KeywordBreak {
		in.frames = in.frames[:n]
		in.skipTo = end + 1
		return nil
	}

	in.frames = in.frames[:n+1]
	switch f.kind {
	case frameWhile:
		in.jump(f.start)
	case frameDo, frameRepeat:
		in.jump(end)
	}
	return nil
}
