package ngc

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// LexKind identifies the kind of a Lexeme.
type LexKind byte

const (
	LexNumber LexKind = iota + 1
	LexParam          // #
	LexName           // <name> following #
	LexOpen           // [
	LexClose          // ]
	LexOp             // operator; Text holds it
	LexFunc           // function name; Text holds it
)

// Lexeme is one element of a value expression.
type Lexeme struct {
	Kind LexKind
	Num  float64
	Text string
}

// Token is one word of a line: a letter followed by a value, or a parameter
// assignment (Letter is '#', Target is the parameter, Expr is the value).
type Token struct {
	Letter byte
	Target []Lexeme
	Expr   []Lexeme
	Col    int
}

// Control keywords of O-word lines.
const (
	KeywordSub       = "sub"
	KeywordEndSub    = "endsub"
	KeywordCall      = "call"
	KeywordReturn    = "return"
	KeywordWhile     = "while"
	KeywordEndWhile  = "endwhile"
	KeywordDo        = "do"
	KeywordBreak     = "break"
	KeywordContinue  = "continue"
	KeywordIf        = "if"
	KeywordElseIf    = "elseif"
	KeywordElse      = "else"
	KeywordEndIf     = "endif"
	KeywordRepeat    = "repeat"
	KeywordEndRepeat = "endrepeat"
)

type argCount int

const (
	noArgs argCount = iota
	oneArg
	optionalArg
	manyArgs
)

var keywords = map[string]argCount{
	KeywordSub:       noArgs,
	KeywordEndSub:    optionalArg,
	KeywordCall:      manyArgs,
	KeywordReturn:    optionalArg,
	KeywordWhile:     oneArg,
	KeywordEndWhile:  noArgs,
	KeywordDo:        noArgs,
	KeywordBreak:     noArgs,
	KeywordContinue:  noArgs,
	KeywordIf:        oneArg,
	KeywordElseIf:    oneArg,
	KeywordElse:      noArgs,
	KeywordEndIf:     noArgs,
	KeywordRepeat:    oneArg,
	KeywordEndRepeat: noArgs,
}

// Control is an O-word directive. Label is the decimal number of the O word
// or the <name> including the angle brackets.
type Control struct {
	Label   string
	Keyword string
	Args    [][]Lexeme
	Col     int
}

// Line is one tokenized program line.
type Line struct {
	Text     string
	Delete   bool // leading /
	Seq      int  // N number or -1
	Tokens   []Token
	Control  *Control
	Comments []string
}

var functions = map[string]bool{
	"ABS":    true,
	"ACOS":   true,
	"ASIN":   true,
	"ATAN":   true,
	"COS":    true,
	"EXISTS": true,
	"EXP":    true,
	"FIX":    true,
	"FUP":    true,
	"LN":     true,
	"ROUND":  true,
	"SIN":    true,
	"SQRT":   true,
	"TAN":    true,
}

var wordOps = map[string]bool{
	"MOD": true,
	"EQ":  true,
	"NE":  true,
	"GT":  true,
	"GE":  true,
	"LT":  true,
	"LE":  true,
	"AND": true,
	"OR":  true,
	"XOR": true,
}

type scanner struct {
	s   string
	pos int
}

func (sc *scanner) error(format string, args ...interface{}) {
	panic(errorAt(SyntaxError, sc.pos+1, format, args...))
}

func (sc *scanner) skipWhitespace() {
	for sc.pos < len(sc.s) && (sc.s[sc.pos] == ' ' || sc.s[sc.pos] == '\t' ||
		sc.s[sc.pos] == '\r' || sc.s[sc.pos] == '\n') {

		sc.pos += 1
	}
}

// peek returns the next non-whitespace byte, upper cased, or 0 at the end.
func (sc *scanner) peek() byte {
	sc.skipWhitespace()
	if sc.pos >= len(sc.s) {
		return 0
	}
	return upcaseByte(sc.s[sc.pos])
}

func (sc *scanner) readByte() byte {
	b := sc.peek()
	if b != 0 {
		sc.pos += 1
	}
	return b
}

func upcaseByte(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return (b - 'a') + 'A'
	}
	return b
}

func letterByte(b byte) bool {
	return b >= 'A' && b <= 'Z'
}

func digitByte(b byte) bool {
	return b >= '0' && b <= '9'
}

func (sc *scanner) parseNumber(neg bool) Lexeme {
	var digits []byte
	if neg {
		digits = append(digits, '-')
	}
	var cnt int
	var dot bool
	for {
		b := sc.peek()
		if digitByte(b) {
			cnt += 1
		} else if b == '.' && !dot {
			dot = true
		} else {
			break
		}
		digits = append(digits, b)
		sc.pos += 1
	}
	if cnt == 0 {
		sc.error("expected a number")
	}

	num, err := strconv.ParseFloat(string(digits), 64)
	if err != nil {
		sc.error("bad number: %s", string(digits))
	}
	return Lexeme{Kind: LexNumber, Num: num}
}

func (sc *scanner) parseInteger() int {
	var num int
	var cnt int
	for {
		b := sc.peek()
		if !digitByte(b) {
			break
		}
		cnt += 1
		num = num*10 + int(b-'0')
		if num > 99999999 {
			sc.error("number too big")
		}
		sc.pos += 1
	}
	if cnt == 0 {
		sc.error("expected an integer")
	}
	return num
}

// parseName reads <name> starting at the <; names are case insensitive and
// may not contain whitespace.
func (sc *scanner) parseName() string {
	sc.pos += 1
	var name []byte
	for {
		if sc.pos >= len(sc.s) {
			sc.error("missing > at end of name")
		}
		b := sc.s[sc.pos]
		sc.pos += 1
		if b == '>' {
			break
		} else if b == ' ' || b == '\t' {
			continue
		} else if b >= 'A' && b <= 'Z' {
			b = (b - 'A') + 'a'
		}
		name = append(name, b)
	}
	if len(name) == 0 {
		sc.error("empty name")
	}
	return string(name)
}

// parseWord matches the longest operator or function name at the current
// position.
func (sc *scanner) parseWord() string {
	var run []byte
	for i := sc.pos; i < len(sc.s); i++ {
		b := upcaseByte(sc.s[i])
		if b == ' ' || b == '\t' {
			continue
		}
		if !letterByte(b) {
			break
		}
		run = append(run, b)
	}

	var best string
	for n := 1; n <= len(run); n++ {
		w := string(run[:n])
		if functions[w] || wordOps[w] {
			best = w
		}
	}
	if best == "" {
		sc.error("unknown operation: %s", string(run))
	}

	for n := 0; n < len(best); {
		if letterByte(upcaseByte(sc.s[sc.pos])) {
			n += 1
		}
		sc.pos += 1
	}
	return best
}

// parseValue reads one real value: a number, a parameter reference, a
// bracketed expression, a function call or a signed value.
func (sc *scanner) parseValue(out []Lexeme, top bool) []Lexeme {
	b := sc.peek()
	switch {
	case b == '[':
		sc.pos += 1
		return sc.parseGroup(append(out, Lexeme{Kind: LexOpen}))
	case b == '#':
		sc.pos += 1
		out = append(out, Lexeme{Kind: LexParam})
		if sc.peek() == '<' {
			return append(out, Lexeme{Kind: LexName, Text: sc.parseName()})
		}
		return sc.parseValue(out, false)
	case b == '+' || b == '-':
		sc.pos += 1
		if n := sc.peek(); top && (digitByte(n) || n == '.') {
			return append(out, sc.parseNumber(b == '-'))
		}
		return sc.parseValue(append(out, Lexeme{Kind: LexOp, Text: string(b)}), false)
	case digitByte(b) || b == '.':
		return append(out, sc.parseNumber(false))
	case letterByte(b):
		w := sc.parseWord()
		if !functions[w] {
			sc.error("expected a value; got %s", w)
		}
		out = append(out, Lexeme{Kind: LexFunc, Text: w})
		if sc.peek() != '[' {
			sc.error("expected [ following %s", w)
		}
		out = sc.parseValue(out, false)
		if w == "ATAN" {
			if sc.readByte() != '/' {
				sc.error("expected / following ATAN[...]")
			}
			if sc.peek() != '[' {
				sc.error("expected [ following ATAN[...]/")
			}
			out = sc.parseValue(append(out, Lexeme{Kind: LexOp, Text: "/"}), false)
		}
		return out
	case b == 0:
		sc.error("missing value")
	}
	sc.error("expected a value; got %c", b)
	return nil
}

// parseGroup reads the contents of a bracketed expression through the
// closing bracket. The grammar is checked by the evaluator.
func (sc *scanner) parseGroup(out []Lexeme) []Lexeme {
	for {
		b := sc.peek()
		switch {
		case b == 0:
			sc.error("unterminated bracket expression")
		case b == ']':
			sc.pos += 1
			return append(out, Lexeme{Kind: LexClose})
		case b == '[':
			sc.pos += 1
			out = sc.parseGroup(append(out, Lexeme{Kind: LexOpen}))
		case b == '#':
			sc.pos += 1
			out = append(out, Lexeme{Kind: LexParam})
		case b == '<':
			out = append(out, Lexeme{Kind: LexName, Text: sc.parseName()})
		case digitByte(b) || b == '.':
			out = append(out, sc.parseNumber(false))
		case b == '+' || b == '-' || b == '/':
			sc.pos += 1
			out = append(out, Lexeme{Kind: LexOp, Text: string(b)})
		case b == '*':
			sc.pos += 1
			if sc.pos < len(sc.s) && sc.s[sc.pos] == '*' {
				sc.pos += 1
				out = append(out, Lexeme{Kind: LexOp, Text: "**"})
			} else {
				out = append(out, Lexeme{Kind: LexOp, Text: "*"})
			}
		case letterByte(b):
			w := sc.parseWord()
			if functions[w] {
				out = append(out, Lexeme{Kind: LexFunc, Text: w})
			} else {
				out = append(out, Lexeme{Kind: LexOp, Text: w})
			}
		default:
			sc.error("unexpected character in expression: %c", b)
		}
	}
}

func (sc *scanner) parseComment() string {
	start := sc.pos + 1
	for i := start; i < len(sc.s); i++ {
		switch sc.s[i] {
		case ')':
			sc.pos = i + 1
			return sc.s[start:i]
		case '(':
			sc.pos = i
			sc.error("nested comment")
		}
	}
	sc.error("unterminated comment")
	return ""
}

func (sc *scanner) parseControl(line *Line, col int) {
	ctl := Control{Col: col}
	if sc.peek() == '<' {
		ctl.Label = "<" + sc.parseName() + ">"
	} else {
		ctl.Label = strconv.Itoa(sc.parseInteger())
	}

	var kw []byte
	sc.skipWhitespace()
	for sc.pos < len(sc.s) {
		b := upcaseByte(sc.s[sc.pos])
		if !letterByte(b) {
			break
		}
		kw = append(kw, b-'A'+'a')
		sc.pos += 1
	}
	ctl.Keyword = string(kw)
	cnt, ok := keywords[ctl.Keyword]
	if !ok {
		if ctl.Keyword == "" {
			sc.error("missing keyword after O%s", ctl.Label)
		}
		sc.error("unknown o-word keyword: %s", ctl.Keyword)
	}

	for sc.peek() == '[' {
		if cnt == noArgs || (cnt != manyArgs && len(ctl.Args) == 1) {
			sc.error("too many arguments to %s", ctl.Keyword)
		}
		ctl.Args = append(ctl.Args, sc.parseValue(nil, false))
	}
	if cnt == oneArg && len(ctl.Args) == 0 {
		sc.error("%s requires a bracketed expression", ctl.Keyword)
	}
	line.Control = &ctl
}

// Tokenize splits one program line into words. It performs no evaluation.
func Tokenize(text string) (line Line, err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(runtime.Error); ok {
				panic(r)
			}
			line = Line{}
			err = r.(*Error)
		}
	}()

	sc := scanner{s: text}
	line.Text = text
	line.Seq = -1

	if sc.peek() == '/' {
		sc.pos += 1
		line.Delete = true
	}

	for {
		b := sc.peek()
		col := sc.pos + 1
		switch {
		case b == 0:
			return line, nil
		case b == '(':
			line.Comments = append(line.Comments, sc.parseComment())
			continue
		case b == ';':
			line.Comments = append(line.Comments, sc.s[sc.pos+1:])
			return line, nil
		}

		if line.Control != nil {
			sc.error("unexpected text after o-word")
		}

		switch {
		case b == '#':
			sc.pos += 1
			tok := Token{Letter: '#', Col: col}
			if sc.peek() == '<' {
				tok.Target = []Lexeme{{Kind: LexName, Text: sc.parseName()}}
			} else {
				tok.Target = sc.parseValue(nil, false)
			}
			if sc.readByte() != '=' {
				sc.error("expected = in parameter assignment")
			}
			tok.Expr = sc.parseValue(nil, true)
			line.Tokens = append(line.Tokens, tok)
		case b == 'N' && len(line.Tokens) == 0 && line.Seq < 0:
			sc.pos += 1
			line.Seq = sc.parseInteger()
		case b == 'O' && len(line.Tokens) == 0:
			sc.pos += 1
			sc.parseControl(&line, col)
		case letterByte(b):
			sc.pos += 1
			line.Tokens = append(line.Tokens,
				Token{Letter: b, Expr: sc.parseValue(nil, true), Col: col})
		default:
			sc.error("unrecognized character: %q", b)
		}
	}
}

func formatNumber(n float64) string {
	if n == 0 {
		return "0"
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// FormatExpr renders lexemes as canonical program text.
func FormatExpr(expr []Lexeme) string {
	var sb strings.Builder
	for _, lex := range expr {
		switch lex.Kind {
		case LexNumber:
			sb.WriteString(formatNumber(lex.Num))
		case LexParam:
			sb.WriteByte('#')
		case LexName:
			sb.WriteString("<" + lex.Text + ">")
		case LexOpen:
			sb.WriteByte('[')
		case LexClose:
			sb.WriteByte(']')
		case LexOp:
			if wordOps[lex.Text] {
				sb.WriteString(" " + lex.Text + " ")
			} else {
				sb.WriteString(lex.Text)
			}
		case LexFunc:
			sb.WriteString(lex.Text)
		default:
			panic(fmt.Sprintf("unexpected lexeme kind: %d", lex.Kind))
		}
	}
	return sb.String()
}

func (tok Token) String() string {
	if tok.Letter == '#' {
		return "#" + FormatExpr(tok.Target) + "=" + FormatExpr(tok.Expr)
	}
	return string(tok.Letter) + FormatExpr(tok.Expr)
}

// String returns the line in canonical form: upper case, single spaces
// between words, comments last.
func (line Line) String() string {
	var words []string
	if line.Delete {
		words = append(words, "/")
	}
	if line.Seq >= 0 {
		words = append(words, fmt.Sprintf("N%d", line.Seq))
	}
	if line.Control != nil {
		words = append(words, "O"+line.Control.Label, line.Control.Keyword)
		for _, arg := range line.Control.Args {
			words = append(words, FormatExpr(arg))
		}
	}
	for _, tok := range line.Tokens {
		words = append(words, tok.String())
	}
	for _, c := range line.Comments {
		if strings.ContainsAny(c, "()") {
			words = append(words, ";"+c)
		} else {
			words = append(words, "("+c+")")
		}
	}
	return strings.Join(words, " ")
}
