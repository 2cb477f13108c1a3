package mapping

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Expr is a compiled value transform. The language is closed: literals, the
// variable `value`, dict literals with indexing or .get(key, default),
// parentheses, == and != comparisons and the conditional `a if cond else b`.
//
//	{1: 'p4', 2: 'p3', 3: 'p2', 4: 'p1'}[value]
//	'done' if value == True else 'open'
//	{'urgent': 'High'}.get(value, 'Normal')
type Expr struct {
	src  string
	root node
}

// CompileExpr parses src.
func CompileExpr(src string) (*Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at offset %d", tok.text, tok.pos)
	}
	return &Expr{src: src, root: root}, nil
}

// Eval evaluates the expression with value bound to the given input.
func (e *Expr) Eval(value any) (any, error) {
	return e.root.eval(value)
}

func (e *Expr) String() string { return e.src }

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func lex(src string) ([]token, error) {
	var toks []token
	r := []rune(src)
	for i := 0; i < len(r); {
		c := r[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '\'' || c == '"':
			start := i
			i++
			var b strings.Builder
			for i < len(r) && r[i] != c {
				if r[i] == '\\' && i+1 < len(r) {
					i++
				}
				b.WriteRune(r[i])
				i++
			}
			if i >= len(r) {
				return nil, fmt.Errorf("unterminated string at offset %d", start)
			}
			i++
			toks = append(toks, token{kind: tokString, text: b.String(), pos: start})
		case unicode.IsDigit(c) || (c == '-' && i+1 < len(r) && unicode.IsDigit(r[i+1])):
			start := i
			i++
			for i < len(r) && (unicode.IsDigit(r[i]) || r[i] == '.') {
				i++
			}
			toks = append(toks, token{kind: tokNumber, text: string(r[start:i]), pos: start})
		case unicode.IsLetter(c) || c == '_':
			start := i
			for i < len(r) && (unicode.IsLetter(r[i]) || unicode.IsDigit(r[i]) || r[i] == '_') {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: string(r[start:i]), pos: start})
		case (c == '=' || c == '!') && i+1 < len(r) && r[i+1] == '=':
			toks = append(toks, token{kind: tokPunct, text: string(r[i : i+2]), pos: i})
			i += 2
		case strings.ContainsRune("{}[]():,.", c):
			toks = append(toks, token{kind: tokPunct, text: string(c), pos: i})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", c, i)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(r)}), nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isPunct(text string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == text
}

func (p *parser) isKeyword(word string) bool {
	t := p.peek()
	return t.kind == tokIdent && t.text == word
}

func (p *parser) expect(text string) error {
	t := p.next()
	if t.kind != tokPunct || t.text != text {
		if t.kind == tokEOF {
			return fmt.Errorf("expected %q, got end of expression", text)
		}
		return fmt.Errorf("expected %q at offset %d, got %q", text, t.pos, t.text)
	}
	return nil
}

// expr := compare [ "if" compare "else" expr ]
func (p *parser) parseExpr() (node, error) {
	then, err := p.parseCompare()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword("if") {
		return then, nil
	}
	p.next()
	cond, err := p.parseCompare()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword("else") {
		return nil, fmt.Errorf("expected 'else' at offset %d", p.peek().pos)
	}
	p.next()
	otherwise, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &condNode{cond: cond, then: then, otherwise: otherwise}, nil
}

// compare := postfix [ ("==" | "!=") postfix ]
func (p *parser) parseCompare() (node, error) {
	left, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.isPunct("==") || p.isPunct("!=") {
		op := p.next().text
		right, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		return &compareNode{left: left, right: right, negate: op == "!="}, nil
	}
	return left, nil
}

// postfix := primary { "[" expr "]" | ".get(" expr [ "," expr ] ")" }
func (p *parser) parsePostfix() (node, error) {
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isPunct("["):
			p.next()
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			n = &indexNode{target: n, key: key}
		case p.isPunct("."):
			p.next()
			name := p.next()
			if name.kind != tokIdent || name.text != "get" {
				return nil, fmt.Errorf("unsupported method %q at offset %d", name.text, name.pos)
			}
			if err := p.expect("("); err != nil {
				return nil, err
			}
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			var def node = literalNode{}
			if p.isPunct(",") {
				p.next()
				if def, err = p.parseExpr(); err != nil {
					return nil, err
				}
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			n = &indexNode{target: n, key: key, fallback: def, lenient: true}
		default:
			return n, nil
		}
	}
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		if strings.Contains(t.text, ".") {
			f, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q", t.text)
			}
			return literalNode{v: f}, nil
		}
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", t.text)
		}
		return literalNode{v: n}, nil
	case tokString:
		return literalNode{v: t.text}, nil
	case tokIdent:
		switch t.text {
		case "value":
			return valueNode{}, nil
		case "True", "true":
			return literalNode{v: true}, nil
		case "False", "false":
			return literalNode{v: false}, nil
		case "None", "null":
			return literalNode{}, nil
		}
		return nil, fmt.Errorf("unknown name %q at offset %d", t.text, t.pos)
	case tokPunct:
		switch t.text {
		case "(":
			n, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return n, p.expect(")")
		case "{":
			return p.parseDict()
		}
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	}
	return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
}

func (p *parser) parseDict() (node, error) {
	d := &dictNode{}
	for !p.isPunct("}") {
		key, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		lit, ok := key.(literalNode)
		if !ok {
			return nil, fmt.Errorf("dict keys must be literals")
		}
		if err := p.expect(":"); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		d.keys = append(d.keys, keyOf(lit.v))
		d.values = append(d.values, val)
		if !p.isPunct(",") {
			break
		}
		p.next()
	}
	return d, p.expect("}")
}

type node interface {
	eval(value any) (any, error)
}

type literalNode struct{ v any }

func (n literalNode) eval(any) (any, error) { return n.v, nil }

type valueNode struct{}

func (valueNode) eval(value any) (any, error) { return value, nil }

type dictNode struct {
	keys   []string
	values []node
}

func (n *dictNode) eval(value any) (any, error) {
	m := make(map[string]any, len(n.keys))
	for i, k := range n.keys {
		v, err := n.values[i].eval(value)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

type indexNode struct {
	target   node
	key      node
	fallback node
	lenient  bool
}

func (n *indexNode) eval(value any) (any, error) {
	t, err := n.target.eval(value)
	if err != nil {
		return nil, err
	}
	m, ok := t.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cannot index %T", t)
	}
	k, err := n.key.eval(value)
	if err != nil {
		return nil, err
	}
	if v, ok := m[keyOf(k)]; ok {
		return v, nil
	}
	if n.lenient {
		return n.fallback.eval(value)
	}
	return nil, fmt.Errorf("key %s not found", keyOf(k))
}

type compareNode struct {
	left, right node
	negate      bool
}

func (n *compareNode) eval(value any) (any, error) {
	l, err := n.left.eval(value)
	if err != nil {
		return nil, err
	}
	r, err := n.right.eval(value)
	if err != nil {
		return nil, err
	}
	return (keyOf(l) == keyOf(r)) != n.negate, nil
}

type condNode struct {
	cond, then, otherwise node
}

func (n *condNode) eval(value any) (any, error) {
	c, err := n.cond.eval(value)
	if err != nil {
		return nil, err
	}
	if truthy(c) {
		return n.then.eval(value)
	}
	return n.otherwise.eval(value)
}

// keyOf is the string form used for dict lookups and equality, so that the
// integer 4, the float 4.0 and the string "4" all address the same key.
func keyOf(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return keyOf(float64(x))
	}
	return fmt.Sprint(v)
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	}
	return true
}
