package ngc

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

type progLine struct {
	Line
	number int   // 1-based line in the source
	err    error // deferred tokenize error

	// match is the line which ends the construct this line opens: endsub,
	// endwhile, endrepeat, the while closing a do, or the next elseif, else
	// or endif of an if chain. Lines which close a loop point back to the
	// opening line, and break and continue point to their loop.
	match int
	// end is the endif of an if chain.
	end int
	// closesDo marks a while which ends a do loop.
	closesDo bool
}

// Program is a loaded program: its tokenized lines and the index of each
// subroutine definition.
type Program struct {
	Name  string
	lines []progLine
	subs  map[string]int
}

// Len returns the number of program lines.
func (prog *Program) Len() int {
	return len(prog.lines)
}

// Parse reads a whole program, checks its % framing, tokenizes each line
// and matches the o-word structure. Tokenize errors are kept and reported
// when the line is reached; framing and structure errors fail the whole
// program.
func Parse(r io.Reader, name string) (*Program, error) {
	prog := &Program{
		Name: name,
		subs: map[string]int{},
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var number int
	var framed, closed, content bool
	for sc.Scan() {
		number += 1
		text := strings.TrimRight(sc.Text(), "\r")
		trimmed := strings.TrimSpace(text)
		if strings.HasPrefix(trimmed, "%") {
			if framed {
				closed = true
				break
			} else if content {
				return nil, &Error{Kind: SyntaxError, Line: number, Seq: -1,
					Msg: "% must be the first line of the program"}
			}
			framed = true
			continue
		}
		if trimmed != "" {
			content = true
		}

		line, err := Tokenize(text)
		if err != nil {
			line = Line{Text: text, Seq: -1}
			err = locate(err, number, -1)
		}
		prog.lines = append(prog.lines, progLine{Line: line, number: number, err: err})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ngc: reading %s: %w", name, err)
	}
	if framed && !closed {
		return nil, &Error{Kind: SyntaxError, Line: number, Seq: -1,
			Msg: "missing closing %"}
	}

	if err := prog.match(); err != nil {
		return nil, err
	}
	return prog, nil
}

type openBlock struct {
	idx      int
	keyword  string
	label    string
	branch   int   // last branch of an if chain
	branches []int // every line of an if chain
	hasElse  bool
}

func (prog *Program) controlError(idx int, format string, args ...interface{}) error {
	pl := &prog.lines[idx]
	return &Error{Kind: ControlFlowError, Line: pl.number, Col: pl.Control.Col, Seq: pl.Seq,
		Msg: fmt.Sprintf(format, args...)}
}

// match pairs every opening o-word with its end and checks nesting.
func (prog *Program) match() error {
	var stack []*openBlock

	top := func(keyword, label string) *openBlock {
		if len(stack) == 0 {
			return nil
		}
		ob := stack[len(stack)-1]
		if ob.keyword != keyword || ob.label != label {
			return nil
		}
		return ob
	}
	findLoop := func(label string) *openBlock {
		for i := len(stack) - 1; i >= 0; i-- {
			ob := stack[i]
			if ob.keyword == KeywordSub {
				return nil
			}
			if ob.label == label && (ob.keyword == KeywordWhile || ob.keyword == KeywordDo ||
				ob.keyword == KeywordRepeat) {
				return ob
			}
		}
		return nil
	}

	for idx := range prog.lines {
		pl := &prog.lines[idx]
		c := pl.Control
		if c == nil {
			continue
		}

		switch c.Keyword {
		case KeywordSub:
			if len(stack) > 0 {
				return prog.controlError(idx, "o%s sub inside o%s %s", c.Label, stack[0].label,
					stack[0].keyword)
			}
			if _, ok := prog.subs[c.Label]; ok {
				return prog.controlError(idx, "o%s sub defined more than once", c.Label)
			}
			prog.subs[c.Label] = idx
			stack = append(stack, &openBlock{idx: idx, keyword: c.Keyword, label: c.Label})
		case KeywordWhile:
			if ob := top(KeywordDo, c.Label); ob != nil {
				prog.lines[ob.idx].match = idx
				pl.match = ob.idx
				pl.closesDo = true
				stack = stack[:len(stack)-1]
				continue
			}
			stack = append(stack, &openBlock{idx: idx, keyword: c.Keyword, label: c.Label})
		case KeywordDo, KeywordRepeat:
			stack = append(stack, &openBlock{idx: idx, keyword: c.Keyword, label: c.Label})
		case KeywordIf:
			stack = append(stack, &openBlock{idx: idx, keyword: c.Keyword, label: c.Label,
				branch: idx, branches: []int{idx}})
		case KeywordEndSub, KeywordEndWhile, KeywordEndRepeat:
			open := map[string]string{
				KeywordEndSub:    KeywordSub,
				KeywordEndWhile:  KeywordWhile,
				KeywordEndRepeat: KeywordRepeat,
			}[c.Keyword]
			ob := top(open, c.Label)
			if ob == nil {
				return prog.controlError(idx, "o%s %s without matching o%s %s", c.Label,
					c.Keyword, c.Label, open)
			}
			prog.lines[ob.idx].match = idx
			pl.match = ob.idx
			stack = stack[:len(stack)-1]
		case KeywordElseIf, KeywordElse:
			ob := top(KeywordIf, c.Label)
			if ob == nil {
				return prog.controlError(idx, "o%s %s without matching o%s if", c.Label,
					c.Keyword, c.Label)
			}
			if ob.hasElse {
				return prog.controlError(idx, "o%s %s after o%s else", c.Label, c.Keyword,
					c.Label)
			}
			prog.lines[ob.branch].match = idx
			ob.branch = idx
			ob.branches = append(ob.branches, idx)
			ob.hasElse = c.Keyword == KeywordElse
		case KeywordEndIf:
			ob := top(KeywordIf, c.Label)
			if ob == nil {
				return prog.controlError(idx, "o%s endif without matching o%s if", c.Label,
					c.Label)
			}
			prog.lines[ob.branch].match = idx
			for _, b := range ob.branches {
				prog.lines[b].end = idx
			}
			pl.end = idx
			stack = stack[:len(stack)-1]
		case KeywordBreak, KeywordContinue:
			ob := findLoop(c.Label)
			if ob == nil {
				return prog.controlError(idx, "o%s %s outside of o%s loop", c.Label, c.Keyword,
					c.Label)
			}
			pl.match = ob.idx
		case KeywordReturn:
			if len(stack) == 0 || stack[0].keyword != KeywordSub || stack[0].label != c.Label {
				return prog.controlError(idx, "o%s return outside of o%s sub", c.Label, c.Label)
			}
		}
	}

	if len(stack) > 0 {
		ob := stack[len(stack)-1]
		return prog.controlError(ob.idx, "o%s %s is never closed", ob.label, ob.keyword)
	}
	return nil
}
