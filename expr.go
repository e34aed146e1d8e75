package ngc

import (
	"math"
)

const (
	// Relative equality for EQ and NE.
	equalTolerance = 0.0001

	powerLevel      = 1
	multiplyLevel   = 2
	addLevel        = 3
	relationalLevel = 4
	logicalLevel    = 5
)

var opLevels = map[string]int{
	"**":  powerLevel,
	"*":   multiplyLevel,
	"/":   multiplyLevel,
	"MOD": multiplyLevel,
	"+":   addLevel,
	"-":   addLevel,
	"EQ":  relationalLevel,
	"NE":  relationalLevel,
	"GT":  relationalLevel,
	"GE":  relationalLevel,
	"LT":  relationalLevel,
	"LE":  relationalLevel,
	"AND": logicalLevel,
	"OR":  logicalLevel,
	"XOR": logicalLevel,
}

// Eval evaluates a complete value expression. Parameters are read from p;
// the store is never modified.
func Eval(expr []Lexeme, p *Params) (float64, error) {
	val, rest, err := evalValue(expr, p)
	if err != nil {
		return 0, err
	}
	if len(rest) > 0 {
		return 0, errorf(SyntaxError, "unexpected %s after value", FormatExpr(rest))
	}
	return val, nil
}

/*
<value> = <number>
    | '+' <value> | '-' <value>
    | '#' <value> | '#' '<' <name> '>'
    | '[' <binary> ']'
    | <func> '[' <binary> ']'
    | 'ATAN' '[' <binary> ']' '/' '[' <binary> ']'
<binary> = <value> { <op> <value> }
*/

func evalValue(toks []Lexeme, p *Params) (float64, []Lexeme, error) {
	if len(toks) == 0 {
		return 0, nil, errorf(SyntaxError, "missing value")
	}

	tok := toks[0]
	switch tok.Kind {
	case LexNumber:
		return tok.Num, toks[1:], nil
	case LexOpen:
		return evalGroup(toks, p)
	case LexParam:
		return evalParam(toks[1:], p)
	case LexOp:
		if tok.Text == "-" || tok.Text == "+" {
			val, rest, err := evalValue(toks[1:], p)
			if err != nil {
				return 0, nil, err
			}
			if tok.Text == "-" {
				val = -val
			}
			return val, rest, nil
		}
	case LexFunc:
		return evalFunc(tok.Text, toks[1:], p)
	}
	return 0, nil, errorf(SyntaxError, "expected a value; got %s", FormatExpr(toks[:1]))
}

func evalGroup(toks []Lexeme, p *Params) (float64, []Lexeme, error) {
	if len(toks) == 0 || toks[0].Kind != LexOpen {
		return 0, nil, errorf(SyntaxError, "expected [")
	}
	val, rest, err := evalBinary(toks[1:], p, logicalLevel)
	if err != nil {
		return 0, nil, err
	}
	if len(rest) == 0 || rest[0].Kind != LexClose {
		return 0, nil, errorf(SyntaxError, "expected ]")
	}
	return val, rest[1:], nil
}

func evalBinary(toks []Lexeme, p *Params, level int) (float64, []Lexeme, error) {
	if level == 0 {
		return evalValue(toks, p)
	}

	left, rest, err := evalBinary(toks, p, level-1)
	if err != nil {
		return 0, nil, err
	}
	for len(rest) > 0 && rest[0].Kind == LexOp && opLevels[rest[0].Text] == level {
		op := rest[0].Text
		var right float64
		right, rest, err = evalBinary(rest[1:], p, level-1)
		if err != nil {
			return 0, nil, err
		}
		left, err = binaryOp(op, left, right)
		if err != nil {
			return 0, nil, err
		}
	}
	return left, rest, nil
}

func logicBool(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func binaryOp(op string, left, right float64) (float64, error) {
	var val float64
	switch op {
	case "**":
		if left < 0 && right != math.Trunc(right) {
			return 0, errorf(ArithmeticError, "negative value raised to non-integer power")
		} else if left == 0 && right < 0 {
			return 0, errorf(ArithmeticError, "zero raised to negative power")
		}
		val = math.Pow(left, right)
	case "*":
		val = left * right
	case "/":
		if right == 0 {
			return 0, errorf(ArithmeticError, "division by zero")
		}
		val = left / right
	case "MOD":
		if right == 0 {
			return 0, errorf(ArithmeticError, "modulo by zero")
		}
		val = math.Mod(left, right)
		if val < 0 {
			val += math.Abs(right)
		}
	case "+":
		val = left + right
	case "-":
		val = left - right
	case "EQ":
		val = logicBool(math.Abs(left-right) < equalTolerance)
	case "NE":
		val = logicBool(math.Abs(left-right) >= equalTolerance)
	case "GT":
		val = logicBool(left > right)
	case "GE":
		val = logicBool(left >= right)
	case "LT":
		val = logicBool(left < right)
	case "LE":
		val = logicBool(left <= right)
	case "AND":
		val = logicBool(left != 0 && right != 0)
	case "OR":
		val = logicBool(left != 0 || right != 0)
	case "XOR":
		val = logicBool((left != 0) != (right != 0))
	default:
		return 0, errorf(SyntaxError, "unknown operation: %s", op)
	}

	if math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, errorf(ArithmeticError, "%s overflow", op)
	}
	return val, nil
}

func paramNumber(val float64) (int, error) {
	num := math.Round(val)
	if math.Abs(val-num) > 1e-6 {
		return 0, errorf(ParameterError, "parameter number must be an integer: %s",
			formatNumber(val))
	}
	return int(num), nil
}

func evalParam(toks []Lexeme, p *Params) (float64, []Lexeme, error) {
	if len(toks) > 0 && toks[0].Kind == LexName {
		val, err := p.Name(toks[0].Text)
		return val, toks[1:], err
	}

	val, rest, err := evalValue(toks, p)
	if err != nil {
		return 0, nil, err
	}
	num, err := paramNumber(val)
	if err != nil {
		return 0, nil, err
	}
	val, err = p.Num(num)
	return val, rest, err
}

func evalExists(toks []Lexeme, p *Params) (float64, []Lexeme, error) {
	if len(toks) < 3 || toks[0].Kind != LexOpen || toks[1].Kind != LexParam {
		return 0, nil, errorf(SyntaxError, "EXISTS requires a parameter")
	}

	var exists bool
	var rest []Lexeme
	if toks[2].Kind == LexName {
		exists = p.Exists(toks[2].Text)
		rest = toks[3:]
	} else {
		val, r, err := evalValue(toks[2:], p)
		if err != nil {
			return 0, nil, err
		}
		num, err := paramNumber(val)
		if err != nil {
			return 0, nil, err
		}
		exists = num >= 1 && num <= MaxParam
		rest = r
	}
	if len(rest) == 0 || rest[0].Kind != LexClose {
		return 0, nil, errorf(SyntaxError, "expected ] after EXISTS parameter")
	}
	return logicBool(exists), rest[1:], nil
}

func degrees(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

func evalFunc(name string, toks []Lexeme, p *Params) (float64, []Lexeme, error) {
	if name == "EXISTS" {
		return evalExists(toks, p)
	}

	arg, rest, err := evalGroup(toks, p)
	if err != nil {
		return 0, nil, err
	}

	var val float64
	switch name {
	case "ABS":
		val = math.Abs(arg)
	case "ACOS":
		if arg < -1.0 || arg > 1.0 {
			return 0, nil, errorf(ArithmeticError, "ACOS argument out of range: %s",
				formatNumber(arg))
		}
		val = degrees(math.Acos(arg))
	case "ASIN":
		if arg < -1.0 || arg > 1.0 {
			return 0, nil, errorf(ArithmeticError, "ASIN argument out of range: %s",
				formatNumber(arg))
		}
		val = degrees(math.Asin(arg))
	case "ATAN":
		if len(rest) == 0 || rest[0].Kind != LexOp || rest[0].Text != "/" {
			return 0, nil, errorf(SyntaxError, "expected / after ATAN[...]")
		}
		var x float64
		x, rest, err = evalGroup(rest[1:], p)
		if err != nil {
			return 0, nil, err
		}
		val = degrees(math.Atan2(arg, x))
	case "COS":
		val = math.Cos(radians(arg))
	case "EXP":
		val = math.Exp(arg)
	case "FIX":
		val = math.Floor(arg)
	case "FUP":
		val = math.Ceil(arg)
	case "LN":
		if arg <= 0.0 {
			return 0, nil, errorf(ArithmeticError, "LN of non-positive value: %s",
				formatNumber(arg))
		}
		val = math.Log(arg)
	case "ROUND":
		val = math.Round(arg)
	case "SIN":
		val = math.Sin(radians(arg))
	case "SQRT":
		if arg < 0.0 {
			return 0, nil, errorf(ArithmeticError, "SQRT of negative value: %s",
				formatNumber(arg))
		}
		val = math.Sqrt(arg)
	case "TAN":
		val = math.Tan(radians(arg))
	default:
		return 0, nil, errorf(SyntaxError, "unknown function: %s", name)
	}

	if math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, nil, errorf(ArithmeticError, "%s overflow", name)
	}
	return val, rest, nil
}
