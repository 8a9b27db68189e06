package codegen

import (
	"fmt"
	"strings"
)

// TranslateCondition rewrites a boolean condition into lang's syntax.
//
// Supported grammar:
//
//	<expr>    ::= <or>
//	<or>      ::= <and> ( ("||" | "or") <and> )*
//	<and>     ::= <unary> ( ("&&" | "and") <unary> )*
//	<unary>   ::= ("!" | "not") <unary> | "(" <expr> ")" | <compare>
//	<compare> ::= <operand> [ ("==" | "!=" | "<" | "<=" | ">" | ">=") <operand> ]
//	<operand> ::= identifier (dots allowed) | quoted string | number | true | false
//
// The second result is false when text does not parse; callers then use the
// text unchanged.
func TranslateCondition(lang Language, text string) (string, bool) {
	p := &condParser{input: strings.TrimSpace(text)}
	if p.input == "" {
		return "", false
	}
	expr, err := p.parseOr()
	if err != nil {
		return "", false
	}
	p.skipWS()
	if p.pos != len(p.input) {
		return "", false
	}
	return expr.render(lang), true
}

type condExpr interface {
	render(lang Language) string
}

type condBinary struct {
	op    string // "and" or "or"
	terms []condExpr
}

func (e condBinary) render(lang Language) string {
	sep := " && "
	if e.op == "or" {
		sep = " || "
	}
	if lang.Target() == TargetPython {
		sep = " " + e.op + " "
	}
	parts := make([]string, len(e.terms))
	for i, t := range e.terms {
		parts[i] = t.render(lang)
	}
	return strings.Join(parts, sep)
}

type condNot struct{ x condExpr }

func (e condNot) render(lang Language) string {
	inner := e.x.render(lang)
	if _, simple := e.x.(condOperand); !simple {
		if _, group := e.x.(condGroup); !group {
			inner = "(" + inner + ")"
		}
	}
	if lang.Target() == TargetPython {
		return "not " + inner
	}
	return "!" + inner
}

type condGroup struct{ x condExpr }

func (e condGroup) render(lang Language) string { return "(" + e.x.render(lang) + ")" }

type condCompare struct {
	left, right condOperand
	op          string
}

func (e condCompare) render(lang Language) string {
	return e.left.render(lang) + " " + e.op + " " + e.right.render(lang)
}

type operandKind int

const (
	operandName operandKind = iota
	operandString
	operandNumber
	operandBool
)

type condOperand struct {
	kind operandKind
	text string
}

func (o condOperand) render(lang Language) string {
	switch o.kind {
	case operandString:
		return lang.StringLiteral(o.text)
	case operandNumber:
		if num, isInt, ok := normalizeNumber(o.text); ok {
			if isInt {
				return lang.IntLiteral(num)
			}
			return num
		}
	case operandBool:
		b, _ := parseBool(o.text)
		return lang.BoolLiteral(b)
	}
	return o.text
}

type condParser struct {
	input string
	pos   int
}

func (p *condParser) peek() string {
	if p.pos >= len(p.input) {
		return ""
	}
	return p.input[p.pos:]
}

func (p *condParser) skipWS() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

// keyword consumes word when it appears at the cursor as a whole word.
func (p *condParser) keyword(word string) bool {
	rest := p.peek()
	if !strings.HasPrefix(rest, word) {
		return false
	}
	if len(rest) > len(word) && isKeyByte(rest[len(word)]) {
		return false
	}
	p.pos += len(word)
	return true
}

func (p *condParser) symbolOrKeyword(sym, word string) bool {
	p.skipWS()
	if strings.HasPrefix(p.peek(), sym) {
		p.pos += len(sym)
		return true
	}
	return p.keyword(word)
}

func (p *condParser) parseOr() (condExpr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms := []condExpr{left}
	for p.symbolOrKeyword("||", "or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, right)
	}
	if len(terms) == 1 {
		return left, nil
	}
	return condBinary{op: "or", terms: terms}, nil
}

func (p *condParser) parseAnd() (condExpr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	terms := []condExpr{left}
	for p.symbolOrKeyword("&&", "and") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		terms = append(terms, right)
	}
	if len(terms) == 1 {
		return left, nil
	}
	return condBinary{op: "and", terms: terms}, nil
}

func (p *condParser) parseUnary() (condExpr, error) {
	p.skipWS()
	if p.pos >= len(p.input) {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	if strings.HasPrefix(p.peek(), "!") && !strings.HasPrefix(p.peek(), "!=") {
		p.pos++
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return condNot{x: x}, nil
	}
	if p.keyword("not") {
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return condNot{x: x}, nil
	}
	if p.input[p.pos] == '(' {
		p.pos++
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipWS()
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return nil, fmt.Errorf("expected ')'")
		}
		p.pos++
		return condGroup{x: x}, nil
	}
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	p.skipWS()
	for _, op := range []string{"==", "!=", "<=", ">=", "<", ">"} {
		if strings.HasPrefix(p.peek(), op) {
			p.pos += len(op)
			p.skipWS()
			right, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			return condCompare{left: left, op: op, right: right}, nil
		}
	}
	return left, nil
}

func (p *condParser) parseOperand() (condOperand, error) {
	if p.pos >= len(p.input) {
		return condOperand{}, fmt.Errorf("expected operand at end of expression")
	}
	if q := p.input[p.pos]; q == '\'' || q == '"' {
		p.pos++
		start := p.pos
		for p.pos < len(p.input) && p.input[p.pos] != q {
			p.pos++
		}
		if p.pos >= len(p.input) {
			return condOperand{}, fmt.Errorf("unterminated string")
		}
		val := p.input[start:p.pos]
		p.pos++
		return condOperand{kind: operandString, text: val}, nil
	}
	start := p.pos
	if c := p.input[p.pos]; c == '-' || c == '+' {
		p.pos++
	}
	for p.pos < len(p.input) && isKeyByte(p.input[p.pos]) {
		p.pos++
	}
	word := p.input[start:p.pos]
	switch {
	case word == "" || word == "-" || word == "+":
		return condOperand{}, fmt.Errorf("expected operand at pos %d in %q", start, p.input)
	case numberPattern.MatchString(word):
		return condOperand{kind: operandNumber, text: word}, nil
	case strings.EqualFold(word, "true") || strings.EqualFold(word, "false"):
		return condOperand{kind: operandBool, text: word}, nil
	case word == "and" || word == "or" || word == "not":
		return condOperand{}, fmt.Errorf("unexpected %q", word)
	case !IsIdentifier(strings.ReplaceAll(word, ".", "_")):
		return condOperand{}, fmt.Errorf("invalid operand %q", word)
	}
	return condOperand{kind: operandName, text: word}, nil
}

func isKeyByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '.'
}
