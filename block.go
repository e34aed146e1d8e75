package ngc

import (
	"errors"
	"math"
	"strings"
)

// Code is a G or M code number times ten: G59.1 is 591 and M30 is 300.
type Code int

// NoCode marks a modal group which a block leaves unset.
const NoCode Code = -1

func (c Code) String() string {
	return formatNumber(float64(c) / 10)
}

const (
	gRapid             Code = 0
	gLinear            Code = 10
	gArcCW             Code = 20
	gArcCCW            Code = 30
	gDwell             Code = 40
	gSetCoordSys       Code = 100
	gPlaneXY           Code = 170
	gPlaneXZ           Code = 180
	gPlaneYZ           Code = 190
	gInches            Code = 200
	gMillimeters       Code = 210
	gHome              Code = 280
	gSetHome           Code = 281
	gHome2             Code = 300
	gSetHome2          Code = 301
	gCompOff           Code = 400
	gCompLeft          Code = 410
	gCompRight         Code = 420
	gLengthOffset      Code = 430
	gLengthOffsetOff   Code = 490
	gMachineCoords     Code = 530
	gExactStop         Code = 610
	gExactPath         Code = 611
	gContinuous        Code = 640
	gPeckChipBreak     Code = 730
	gCycleOff          Code = 800
	gDrill             Code = 810
	gDrillDwell        Code = 820
	gPeckDrill         Code = 830
	gBore              Code = 850
	gBoreDwell         Code = 890
	gAbsolute          Code = 900
	gArcAbsolute       Code = 901
	gIncremental       Code = 910
	gArcIncremental    Code = 911
	gAxisOffset        Code = 920
	gAxisOffsetClear   Code = 921
	gAxisOffsetSuspend Code = 922
	gAxisOffsetRestore Code = 923
	gInverseTime       Code = 930
	gUnitsPerMinute    Code = 940
	gRetractOldZ       Code = 980
	gRetractR          Code = 990

	mStop         Code = 0
	mOptionalStop Code = 10
	mEnd          Code = 20
	mSpindleCW    Code = 30
	mSpindleCCW   Code = 40
	mSpindleStop  Code = 50
	mToolChange   Code = 60
	mMist         Code = 70
	mFlood        Code = 80
	mCoolantOff   Code = 90
	mEndRewind    Code = 300
	mOverridesOn  Code = 480
	mOverridesOff Code = 490
	mPalletStop   Code = 600
)

var coordSystemCodes = [coordSysCount]Code{540, 550, 560, 570, 580, 590, 591, 592, 593}

// ModalGroup is a group of mutually exclusive G codes.
type ModalGroup int

const (
	GroupNonModal ModalGroup = iota
	GroupMotion
	GroupPlane
	GroupDistance
	GroupArcDistance
	GroupFeedMode
	GroupUnits
	GroupCutterComp
	GroupToolLength
	GroupRetract
	GroupCoordSystem
	GroupPathControl

	numModalGroups
)

// MGroup is a group of mutually exclusive M codes.
type MGroup int

const (
	MGroupStop MGroup = iota
	MGroupToolChange
	MGroupSpindle
	MGroupCoolant
	MGroupOverride

	numMGroups
)

var gGroups = map[Code]ModalGroup{
	gDwell:             GroupNonModal,
	gSetCoordSys:       GroupNonModal,
	gHome:              GroupNonModal,
	gSetHome:           GroupNonModal,
	gHome2:             GroupNonModal,
	gSetHome2:          GroupNonModal,
	gMachineCoords:     GroupNonModal,
	gAxisOffset:        GroupNonModal,
	gAxisOffsetClear:   GroupNonModal,
	gAxisOffsetSuspend: GroupNonModal,
	gAxisOffsetRestore: GroupNonModal,
	gRapid:             GroupMotion,
	gLinear:            GroupMotion,
	gArcCW:             GroupMotion,
	gArcCCW:            GroupMotion,
	gPeckChipBreak:     GroupMotion,
	gCycleOff:          GroupMotion,
	gDrill:             GroupMotion,
	gDrillDwell:        GroupMotion,
	gPeckDrill:         GroupMotion,
	gBore:              GroupMotion,
	gBoreDwell:         GroupMotion,
	gPlaneXY:           GroupPlane,
	gPlaneXZ:           GroupPlane,
	gPlaneYZ:           GroupPlane,
	gAbsolute:          GroupDistance,
	gIncremental:       GroupDistance,
	gArcAbsolute:       GroupArcDistance,
	gArcIncremental:    GroupArcDistance,
	gInverseTime:       GroupFeedMode,
	gUnitsPerMinute:    GroupFeedMode,
	gInches:            GroupUnits,
	gMillimeters:       GroupUnits,
	gCompOff:           GroupCutterComp,
	gCompLeft:          GroupCutterComp,
	gCompRight:         GroupCutterComp,
	gLengthOffset:      GroupToolLength,
	gLengthOffsetOff:   GroupToolLength,
	gRetractOldZ:       GroupRetract,
	gRetractR:          GroupRetract,
	540:                GroupCoordSystem,
	550:                GroupCoordSystem,
	560:                GroupCoordSystem,
	570:                GroupCoordSystem,
	580:                GroupCoordSystem,
	590:                GroupCoordSystem,
	591:                GroupCoordSystem,
	592:                GroupCoordSystem,
	593:                GroupCoordSystem,
	gExactStop:         GroupPathControl,
	gExactPath:         GroupPathControl,
	gContinuous:        GroupPathControl,
}

var mGroups = map[Code]MGroup{
	mStop:         MGroupStop,
	mOptionalStop: MGroupStop,
	mEnd:          MGroupStop,
	mEndRewind:    MGroupStop,
	mPalletStop:   MGroupStop,
	mToolChange:   MGroupToolChange,
	mSpindleCW:    MGroupSpindle,
	mSpindleCCW:   MGroupSpindle,
	mSpindleStop:  MGroupSpindle,
	mMist:         MGroupCoolant,
	mFlood:        MGroupCoolant,
	mCoolantOff:   MGroupCoolant,
	mOverridesOn:  MGroupOverride,
	mOverridesOff: MGroupOverride,
}

// Word is a letter, other than G, M, N and O, which carries a value.
type Word int

const (
	WordA Word = iota
	WordB
	WordC
	WordD
	WordF
	WordH
	WordI
	WordJ
	WordK
	WordL
	WordP
	WordQ
	WordR
	WordS
	WordT
	WordX
	WordY
	WordZ

	numWords
)

var wordLetters = [numWords]byte{
	'A', 'B', 'C', 'D', 'F', 'H', 'I', 'J', 'K', 'L', 'P', 'Q', 'R', 'S', 'T', 'X', 'Y', 'Z',
}

var axisWords = [numAxes]Word{WordX, WordY, WordZ, WordA, WordB, WordC}

func letterWord(b byte) (Word, bool) {
	for w, l := range wordLetters {
		if l == b {
			return Word(w), true
		}
	}
	return 0, false
}

func (w Word) String() string {
	return string(wordLetters[w])
}

type WordValue struct {
	Set   bool
	Value float64
}

// Block is one assembled program line.
type Block struct {
	Line     int
	Seq      int
	Delete   bool
	Comments []string
	GModes   [numModalGroups]Code
	MModes   [numMGroups]Code
	Words    [numWords]WordValue
}

func NewBlock() Block {
	b := Block{Seq: -1}
	for g := range b.GModes {
		b.GModes[g] = NoCode
	}
	for g := range b.MModes {
		b.MModes[g] = NoCode
	}
	return b
}

func (b *Block) Has(w Word) bool {
	return b.Words[w].Set
}

func (b *Block) Value(w Word) float64 {
	return b.Words[w].Value
}

func (b *Block) hasAxes() bool {
	for _, w := range axisWords {
		if b.Words[w].Set {
			return true
		}
	}
	return false
}

func (b *Block) intValue(w Word) int {
	return int(math.Round(b.Words[w].Value))
}

func toCode(val float64) (Code, bool) {
	c := math.Round(val * 10)
	if c < 0 || math.Abs(val*10-c) > 1e-4 {
		return NoCode, false
	}
	return Code(c), true
}

func integerValue(val float64) bool {
	return math.Abs(val-math.Round(val)) < 1e-4
}

func atCol(err error, col int) error {
	var e *Error
	if errors.As(err, &e) && e.Col == 0 {
		e.Col = col
	}
	return err
}

func assign(tok Token, p *Params) error {
	val, err := Eval(tok.Expr, p)
	if err != nil {
		return err
	}
	if len(tok.Target) == 1 && tok.Target[0].Kind == LexName {
		return p.SetName(tok.Target[0].Text, val)
	}

	n, err := Eval(tok.Target, p)
	if err != nil {
		return err
	}
	num, err := paramNumber(n)
	if err != nil {
		return err
	}
	return p.SetNum(num, val)
}

// Assemble evaluates the words of a line into a block. Parameter
// assignments are written to p as they are reached, so later words on the
// same line see the new values.
func Assemble(line Line, p *Params) (Block, error) {
	b := NewBlock()
	b.Seq = line.Seq
	b.Delete = line.Delete
	b.Comments = line.Comments

	for _, tok := range line.Tokens {
		if tok.Letter == '#' {
			if err := assign(tok, p); err != nil {
				return Block{}, atCol(err, tok.Col)
			}
			continue
		}

		val, err := Eval(tok.Expr, p)
		if err != nil {
			return Block{}, atCol(err, tok.Col)
		}

		switch tok.Letter {
		case 'G':
			code, ok := toCode(val)
			group, known := gGroups[code]
			if !ok || !known {
				return Block{}, errorAt(SemanticError, tok.Col, "unsupported G code: G%s",
					formatNumber(val))
			}
			if b.GModes[group] != NoCode {
				return Block{}, errorAt(SemanticError, tok.Col,
					"conflicting modal group: G%s and G%s", b.GModes[group], code)
			}
			b.GModes[group] = code
		case 'M':
			code, ok := toCode(val)
			group, known := mGroups[code]
			if !ok || !known {
				return Block{}, errorAt(SemanticError, tok.Col, "unsupported M code: M%s",
					formatNumber(val))
			}
			if b.MModes[group] != NoCode {
				return Block{}, errorAt(SemanticError, tok.Col,
					"conflicting modal group: M%s and M%s", b.MModes[group], code)
			}
			b.MModes[group] = code
		default:
			w, ok := letterWord(tok.Letter)
			if !ok {
				return Block{}, errorAt(SyntaxError, tok.Col, "unknown word: %c", tok.Letter)
			}
			if b.Words[w].Set {
				return Block{}, errorAt(SemanticError, tok.Col, "multiple %s words", w)
			}
			switch w {
			case WordF, WordS:
				if val < 0 {
					return Block{}, errorAt(SemanticError, tok.Col, "negative %s word: %s", w,
						formatNumber(val))
				}
			case WordD, WordH, WordL, WordT:
				if val < 0 || !integerValue(val) {
					return Block{}, errorAt(SemanticError, tok.Col,
						"%s word must be a non-negative integer: %s", w, formatNumber(val))
				}
			}
			b.Words[w] = WordValue{Set: true, Value: val}
		}
	}

	return b, nil
}

// String returns the block as program text with every value resolved.
func (b Block) String() string {
	var words []string
	if b.Delete {
		words = append(words, "/")
	}
	if b.Seq >= 0 {
		words = append(words, "N"+formatNumber(float64(b.Seq)))
	}
	for _, c := range b.GModes {
		if c != NoCode {
			words = append(words, "G"+c.String())
		}
	}
	for _, c := range b.MModes {
		if c != NoCode {
			words = append(words, "M"+c.String())
		}
	}
	for w, wv := range b.Words {
		if wv.Set {
			words = append(words, Word(w).String()+formatNumber(wv.Value))
		}
	}
	for _, c := range b.Comments {
		if strings.ContainsAny(c, "()") {
			words = append(words, ";"+c)
		} else {
			words = append(words, "("+c+")")
		}
	}
	return strings.Join(words, " ")
}
