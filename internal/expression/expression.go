// Package expression evaluates small arithmetic formulas over named decimal
// variables. Only the four arithmetic operators and parentheses are
// supported; a formula can never execute arbitrary code.
package expression

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ErrMalformedExpression wraps every parse or evaluation failure.
var ErrMalformedExpression = errors.New("malformed_expression")

// Expr is a parsed formula, safe for concurrent evaluation.
type Expr struct {
	raw  string
	root node
}

type node interface {
	eval(vars map[string]decimal.Decimal) (decimal.Decimal, error)
}

type literalNode struct {
	value decimal.Decimal
}

func (n literalNode) eval(map[string]decimal.Decimal) (decimal.Decimal, error) {
	return n.value, nil
}

type variableNode struct {
	name string
}

func (n variableNode) eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	value, ok := vars[n.name]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown identifier %q", ErrMalformedExpression, n.name)
	}
	return value, nil
}

type binaryNode struct {
	op          rune
	left, right node
}

func (n binaryNode) eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	left, err := n.left.eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	right, err := n.right.eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	switch n.op {
	case '+':
		return left.Add(right), nil
	case '-':
		return left.Sub(right), nil
	case '*':
		return left.Mul(right), nil
	case '/':
		if right.IsZero() {
			return decimal.Zero, fmt.Errorf("%w: division by zero", ErrMalformedExpression)
		}
		return left.Div(right), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unsupported operator %q", ErrMalformedExpression, n.op)
	}
}

// Parse builds an Expr or fails with ErrMalformedExpression.
func Parse(formula string) (*Expr, error) {
	trimmed := strings.TrimSpace(formula)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty formula", ErrMalformedExpression)
	}

	tokens, err := tokenize(trimmed)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	root, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, fmt.Errorf("%w: unexpected token %q", ErrMalformedExpression, p.peek().text)
	}

	return &Expr{raw: trimmed, root: root}, nil
}

// Evaluate computes the formula against the given variables.
func (e *Expr) Evaluate(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	return e.root.eval(vars)
}

// String returns the original formula text.
func (e *Expr) String() string { return e.raw }

// Evaluate parses and evaluates in one step.
func Evaluate(formula string, vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	expr, err := Parse(formula)
	if err != nil {
		return decimal.Zero, err
	}
	return expr.Evaluate(vars)
}

type tokenKind int

const (
	tokenNumber tokenKind = iota
	tokenIdent
	tokenOperator
	tokenLeftParen
	tokenRightParen
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	runes := []rune(input)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokenLeftParen, text: "("})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokenRightParen, text: ")"})
			i++
		case r == '+' || r == '-' || r == '*' || r == '/':
			tokens = append(tokens, token{kind: tokenOperator, text: string(r)})
			i++
		case unicode.IsDigit(r) || r == '.':
			start := i
			dots := 0
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				if runes[i] == '.' {
					dots++
				}
				i++
			}
			text := string(runes[start:i])
			if dots > 1 || text == "." {
				return nil, fmt.Errorf("%w: invalid number %q", ErrMalformedExpression, text)
			}
			tokens = append(tokens, token{kind: tokenNumber, text: text})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_' || runes[i] == '.') {
				i++
			}
			tokens = append(tokens, token{kind: tokenIdent, text: string(runes[start:i])})
		default:
			return nil, fmt.Errorf("%w: unexpected character %q", ErrMalformedExpression, r)
		}
	}
	return tokens, nil
}

// parser implements primary -> multiplicative -> additive recursive descent
// with left-to-right associativity.
type parser struct {
	tokens []token
	pos    int
}

func (p *parser) done() bool { return p.pos >= len(p.tokens) }

func (p *parser) peek() token {
	if p.done() {
		return token{}
	}
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for !p.done() && p.peek().kind == tokenOperator && (p.peek().text == "+" || p.peek().text == "-") {
		op := rune(p.next().text[0])
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for !p.done() && p.peek().kind == tokenOperator && (p.peek().text == "*" || p.peek().text == "/") {
		op := rune(p.next().text[0])
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parsePrimary() (node, error) {
	if p.done() {
		return nil, fmt.Errorf("%w: unexpected end of formula", ErrMalformedExpression)
	}

	t := p.next()
	switch t.kind {
	case tokenNumber:
		value, err := decimal.NewFromString(t.text)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid number %q", ErrMalformedExpression, t.text)
		}
		return literalNode{value: value}, nil
	case tokenIdent:
		return variableNode{name: t.text}, nil
	case tokenOperator:
		// Unary minus on a primary.
		if t.text == "-" {
			inner, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			return binaryNode{op: '-', left: literalNode{value: decimal.Zero}, right: inner}, nil
		}
		return nil, fmt.Errorf("%w: unexpected operator %q", ErrMalformedExpression, t.text)
	case tokenLeftParen:
		inner, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		if p.done() || p.peek().kind != tokenRightParen {
			return nil, fmt.Errorf("%w: unbalanced parentheses", ErrMalformedExpression)
		}
		p.next()
		return inner, nil
	default:
		return nil, fmt.Errorf("%w: unexpected token %q", ErrMalformedExpression, t.text)
	}
}
