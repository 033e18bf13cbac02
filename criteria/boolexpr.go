package criteria

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// The boolean expression grammar combines rule references with AND, OR and
// NOT. NOT binds tightest, then AND, then OR; parentheses override
// precedence. References are rule aliases or 1-based member positions
// (either "2" or "r2").
//
//	expr   := or
//	or     := and ( OR and )*
//	and    := not ( AND not )*
//	not    := NOT not | primary
//	primary := '(' or ')' | reference

type exprNode interface {
	// eval substitutes each reference with its rule outcome.
	eval(outcomes map[string]bool) (bool, error)
	// refs appends every reference in the subtree, for validation.
	refs([]string) []string
}

type refNode struct{ name string }

func (n refNode) eval(outcomes map[string]bool) (bool, error) {
	v, ok := outcomes[n.name]
	if !ok {
		return false, fmt.Errorf("unresolved reference %q", n.name)
	}
	return v, nil
}

func (n refNode) refs(acc []string) []string { return append(acc, n.name) }

type notNode struct{ child exprNode }

func (n notNode) eval(outcomes map[string]bool) (bool, error) {
	v, err := n.child.eval(outcomes)
	return !v, err
}

func (n notNode) refs(acc []string) []string { return n.child.refs(acc) }

type andNode struct{ left, right exprNode }

func (n andNode) eval(outcomes map[string]bool) (bool, error) {
	l, err := n.left.eval(outcomes)
	if err != nil {
		return false, err
	}
	r, err := n.right.eval(outcomes)
	if err != nil {
		return false, err
	}
	return l && r, nil
}

func (n andNode) refs(acc []string) []string { return n.right.refs(n.left.refs(acc)) }

type orNode struct{ left, right exprNode }

func (n orNode) eval(outcomes map[string]bool) (bool, error) {
	l, err := n.left.eval(outcomes)
	if err != nil {
		return false, err
	}
	r, err := n.right.eval(outcomes)
	if err != nil {
		return false, err
	}
	return l || r, nil
}

func (n orNode) refs(acc []string) []string { return n.right.refs(n.left.refs(acc)) }

type tokenKind int

const (
	tokRef tokenKind = iota
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lexExpression splits an expression into tokens. AND/OR/NOT keywords are
// case-insensitive; reference names keep their case.
func lexExpression(expr string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(expr) {
		c := rune(expr[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, pos: i})
			i++
		case c == '&':
			if i+1 < len(expr) && expr[i+1] == '&' {
				toks = append(toks, token{kind: tokAnd, pos: i})
				i += 2
				continue
			}
			return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
		case c == '|':
			if i+1 < len(expr) && expr[i+1] == '|' {
				toks = append(toks, token{kind: tokOr, pos: i})
				i += 2
				continue
			}
			return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
		case c == '!':
			toks = append(toks, token{kind: tokNot, pos: i})
			i++
		case c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c):
			start := i
			for i < len(expr) {
				r := rune(expr[i])
				if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
					i++
					continue
				}
				break
			}
			word := expr[start:i]
			switch strings.ToUpper(word) {
			case "AND":
				toks = append(toks, token{kind: tokAnd, pos: start})
			case "OR":
				toks = append(toks, token{kind: tokOr, pos: start})
			case "NOT":
				toks = append(toks, token{kind: tokNot, pos: start})
			default:
				toks = append(toks, token{kind: tokRef, text: word, pos: start})
			}
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(expr)})
	return toks, nil
}

type exprParser struct {
	toks []token
	pos  int
}

func (p *exprParser) peek() token { return p.toks[p.pos] }

func (p *exprParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// parseExpression parses a boolean expression into its AST. A malformed
// expression is a configuration error, surfaced once per group at
// validation time, never silently coerced to false.
func parseExpression(expr string) (exprNode, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("empty expression")
	}
	toks, err := lexExpression(expr)
	if err != nil {
		return nil, err
	}
	p := &exprParser{toks: toks}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected token at position %d", t.pos)
	}
	return node, nil
}

func (p *exprParser) parseOr() (exprNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseAnd() (exprNode, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseNot() (exprNode, error) {
	if p.peek().kind == tokNot {
		p.next()
		child, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return notNode{child: child}, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (exprNode, error) {
	t := p.next()
	switch t.kind {
	case tokLParen:
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("unbalanced parenthesis at position %d", t.pos)
		}
		return node, nil
	case tokRef:
		return refNode{name: t.text}, nil
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	default:
		return nil, fmt.Errorf("unexpected token at position %d", t.pos)
	}
}

// resolveReference maps a reference token to a member rule index. Aliases
// take precedence; otherwise a bare number or rN form is a 1-based
// position. Returns -1 when nothing matches.
func resolveReference(ref string, rules []Rule) int {
	for i, r := range rules {
		if r.Alias != "" && r.Alias == ref {
			return i
		}
	}

	num := ref
	if len(ref) > 1 && (ref[0] == 'r' || ref[0] == 'R') {
		num = ref[1:]
	}
	if pos, err := strconv.Atoi(num); err == nil && pos >= 1 && pos <= len(rules) {
		return pos - 1
	}
	return -1
}
