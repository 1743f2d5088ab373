package eval

// Hand-written recursive-descent parser and evaluator for the `${{ expr }}`
// expression language (spec.md §4.2). No Jinja/CEL/expr-style safe
// expression evaluator appears anywhere in the retrieval pack, so this is
// the one deliberately stdlib-only component of the project: built on
// text/scanner the way a small one-off language tool would be, not
// reaching for a general parser-combinator framework nothing in the corpus
// uses either.

import (
	"fmt"
	"strconv"
	"strings"
	"text/scanner"

	"github.com/prefix-dev/rattler-build-go/recipe"
)

// ResultKind discriminates an expression's evaluated shape: most
// expressions reduce to a scalar Variable, but `pin_subpackage`/
// `pin_compatible` calls reduce to a typed Dependency instead (spec.md
// §4.2: "inject typed Dependency values, not strings").
type ResultKind int

const (
	ResultScalar ResultKind = iota
	ResultDependency
)

// Result is an expression's evaluated value.
type Result struct {
	Kind   ResultKind
	Scalar recipe.Variable
	Dep    recipe.Dependency
}

func scalarResult(v recipe.Variable) Result { return Result{Kind: ResultScalar, Scalar: v} }

// String renders a Result the way it would be spliced into a larger
// template string; a Dependency result renders as its MatchSpec-style
// string form, same as Dependency.String().
func (r Result) String() string {
	if r.Kind == ResultDependency {
		return r.Dep.String()
	}
	return r.Scalar.String()
}

func (r Result) Truthy() bool {
	if r.Kind == ResultDependency {
		return true
	}
	return r.Scalar.Truthy()
}

// ---- AST ----

type node interface{}

type identNode struct{ name string }
type literalNode struct{ v recipe.Variable }
type memberNode struct {
	target node
	name   string
}
type callNode struct {
	callee node // identNode or memberNode
	args   []node
	kwargs map[string]node
}
type binOpNode struct {
	op          string
	left, right node
}
type notNode struct{ inner node }

// ---- Tokenizer ----

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokLParen
	tokRParen
	tokComma
	tokDot
	tokEq   // =
	tokEqEq // ==
	tokNeq  // !=
	tokLt
	tokLe
	tokGt
	tokGe
	tokTilde
)

type token struct {
	kind tokenKind
	text string
}

type lexer struct {
	toks []token
	pos  int
}

func newLexer(src string) (*lexer, error) {
	var sc scanner.Scanner
	sc.Init(strings.NewReader(src))
	sc.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats | scanner.ScanStrings | scanner.ScanChars
	sc.Error = func(s *scanner.Scanner, msg string) {}

	var toks []token
	for {
		r := sc.Scan()
		if r == scanner.EOF {
			break
		}
		switch r {
		case scanner.Ident:
			toks = append(toks, token{tokIdent, sc.TokenText()})
		case scanner.Int, scanner.Float:
			toks = append(toks, token{tokNumber, sc.TokenText()})
		case scanner.String:
			unquoted, err := strconv.Unquote(sc.TokenText())
			if err != nil {
				unquoted = strings.Trim(sc.TokenText(), `"`)
			}
			toks = append(toks, token{tokString, unquoted})
		case scanner.Char:
			text := sc.TokenText()
			toks = append(toks, token{tokString, strings.Trim(text, "'")})
		case '(':
			toks = append(toks, token{tokLParen, "("})
		case ')':
			toks = append(toks, token{tokRParen, ")"})
		case ',':
			toks = append(toks, token{tokComma, ","})
		case '.':
			toks = append(toks, token{tokDot, "."})
		case '~':
			toks = append(toks, token{tokTilde, "~"})
		case '\'':
			// single-quoted strings handled via Char above for single
			// runes; fall through to manual scan for multi-char ones
			// (text/scanner's ScanChars only covers single runes).
			s, err := scanSingleQuoted(&sc)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{tokString, s})
		case '=':
			if sc.Peek() == '=' {
				sc.Next()
				toks = append(toks, token{tokEqEq, "=="})
			} else {
				toks = append(toks, token{tokEq, "="})
			}
		case '!':
			if sc.Peek() == '=' {
				sc.Next()
				toks = append(toks, token{tokNeq, "!="})
			} else {
				return nil, fmt.Errorf("unexpected '!' at offset %d", sc.Pos().Offset)
			}
		case '<':
			if sc.Peek() == '=' {
				sc.Next()
				toks = append(toks, token{tokLe, "<="})
			} else {
				toks = append(toks, token{tokLt, "<"})
			}
		case '>':
			if sc.Peek() == '=' {
				sc.Next()
				toks = append(toks, token{tokGe, ">="})
			} else {
				toks = append(toks, token{tokGt, ">"})
			}
		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", r, sc.Pos().Offset)
		}
	}
	return &lexer{toks: toks}, nil
}

// scanSingleQuoted reads a '...'-delimited string; text/scanner's
// ScanChars only supports a single rune between quotes, so multi-character
// single-quoted strings (the common case: pin_subpackage('numpy')) are
// read by hand here.
func scanSingleQuoted(sc *scanner.Scanner) (string, error) {
	var b strings.Builder
	for {
		r := sc.Next()
		if r == scanner.EOF {
			return "", fmt.Errorf("unterminated string literal")
		}
		if r == '\'' {
			return b.String(), nil
		}
		b.WriteRune(r)
	}
}

func (l *lexer) peek() token {
	if l.pos >= len(l.toks) {
		return token{kind: tokEOF}
	}
	return l.toks[l.pos]
}

func (l *lexer) next() token {
	t := l.peek()
	if l.pos < len(l.toks) {
		l.pos++
	}
	return t
}

func (l *lexer) expect(k tokenKind) (token, error) {
	t := l.next()
	if t.kind != k {
		return t, fmt.Errorf("unexpected token %q", t.text)
	}
	return t, nil
}

// ---- Parser ----

// parseExpr parses a full `${{ ... }}` expression body (the text between
// the delimiters, already stripped).
func parseExpr(src string) (node, error) {
	l, err := newLexer(src)
	if err != nil {
		return nil, err
	}
	p := &parser{l: l}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.l.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected trailing token %q", p.l.peek().text)
	}
	return n, nil
}

type parser struct{ l *lexer }

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.matchIdent("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binOpNode{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.matchIdent("and") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &binOpNode{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.matchIdent("not") {
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notNode{inner: inner}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	op := ""
	switch p.l.peek().kind {
	case tokEqEq:
		op = "=="
	case tokNeq:
		op = "!="
	case tokLt:
		op = "<"
	case tokLe:
		op = "<="
	case tokGt:
		op = ">"
	case tokGe:
		op = ">="
	}
	if op != "" {
		p.l.next()
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		return &binOpNode{op: op, left: left, right: right}, nil
	}
	if p.matchIdent("in") {
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		return &binOpNode{op: "in", left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseConcat() (node, error) {
	left, err := p.parseChain()
	if err != nil {
		return nil, err
	}
	for p.l.peek().kind == tokTilde {
		p.l.next()
		right, err := p.parseChain()
		if err != nil {
			return nil, err
		}
		left = &binOpNode{op: "~", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseChain() (node, error) {
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.l.peek().kind == tokDot {
		p.l.next()
		nameTok, err := p.l.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		n = &memberNode{target: n, name: nameTok.text}
		if p.l.peek().kind == tokLParen {
			args, kwargs, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			n = &callNode{callee: n, args: args, kwargs: kwargs}
		}
	}
	return n, nil
}

func (p *parser) parsePrimary() (node, error) {
	t := p.l.next()
	switch t.kind {
	case tokString:
		return &literalNode{v: recipe.StringVariable(t.text)}, nil
	case tokNumber:
		if i, err := strconv.ParseInt(t.text, 10, 64); err == nil {
			return &literalNode{v: recipe.IntVariable(i)}, nil
		}
		return &literalNode{v: recipe.StringVariable(t.text)}, nil
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.l.expect(tokRParen); err != nil {
			return nil, err
		}
		return inner, nil
	case tokIdent:
		switch t.text {
		case "true", "True":
			return &literalNode{v: recipe.BoolVariable(true)}, nil
		case "false", "False":
			return &literalNode{v: recipe.BoolVariable(false)}, nil
		case "None", "none", "null":
			return &literalNode{v: recipe.StringVariable("")}, nil
		}
		n := node(&identNode{name: t.text})
		if p.l.peek().kind == tokLParen {
			args, kwargs, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			n = &callNode{callee: n, args: args, kwargs: kwargs}
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unexpected token %q", t.text)
	}
}

func (p *parser) parseArgs() ([]node, map[string]node, error) {
	if _, err := p.l.expect(tokLParen); err != nil {
		return nil, nil, err
	}
	var args []node
	var kwargs map[string]node
	if p.l.peek().kind == tokRParen {
		p.l.next()
		return args, kwargs, nil
	}
	for {
		if p.l.peek().kind == tokIdent {
			save := p.l.pos
			name := p.l.next().text
			if p.l.peek().kind == tokEq {
				p.l.next()
				val, err := p.parseOr()
				if err != nil {
					return nil, nil, err
				}
				if kwargs == nil {
					kwargs = map[string]node{}
				}
				kwargs[name] = val
				goto sep
			}
			p.l.pos = save
		}
		{
			val, err := p.parseOr()
			if err != nil {
				return nil, nil, err
			}
			args = append(args, val)
		}
	sep:
		if p.l.peek().kind == tokComma {
			p.l.next()
			continue
		}
		break
	}
	if _, err := p.l.expect(tokRParen); err != nil {
		return nil, nil, err
	}
	return args, kwargs, nil
}

func (p *parser) matchIdent(name string) bool {
	t := p.l.peek()
	if t.kind == tokIdent && t.text == name {
		p.l.next()
		return true
	}
	return false
}

// ---- Evaluator ----

// Eval evaluates a parsed expression tree against ctx and the builtin
// registry (spec.md §4.2).
func Eval(ctx *EvaluationContext, n node) (Result, error) {
	switch e := n.(type) {
	case *literalNode:
		return scalarResult(e.v), nil
	case *identNode:
		return scalarResult(ctx.Lookup(e.name)), nil
	case *memberNode:
		return evalMember(ctx, e)
	case *callNode:
		return evalCall(ctx, e)
	case *notNode:
		inner, err := Eval(ctx, e.inner)
		if err != nil {
			return Result{}, err
		}
		return scalarResult(recipe.BoolVariable(!inner.Truthy())), nil
	case *binOpNode:
		return evalBinOp(ctx, e)
	default:
		return Result{}, fmt.Errorf("unhandled expression node %T", n)
	}
}

func evalBinOp(ctx *EvaluationContext, e *binOpNode) (Result, error) {
	if e.op == "and" {
		left, err := Eval(ctx, e.left)
		if err != nil {
			return Result{}, err
		}
		if !left.Truthy() {
			return left, nil
		}
		return Eval(ctx, e.right)
	}
	if e.op == "or" {
		left, err := Eval(ctx, e.left)
		if err != nil {
			return Result{}, err
		}
		if left.Truthy() {
			return left, nil
		}
		return Eval(ctx, e.right)
	}

	left, err := Eval(ctx, e.left)
	if err != nil {
		return Result{}, err
	}
	right, err := Eval(ctx, e.right)
	if err != nil {
		return Result{}, err
	}

	switch e.op {
	case "==":
		return scalarResult(recipe.BoolVariable(left.String() == right.String())), nil
	case "!=":
		return scalarResult(recipe.BoolVariable(left.String() != right.String())), nil
	case "<", "<=", ">", ">=":
		return compareNumeric(left, right, e.op)
	case "~":
		return scalarResult(recipe.StringVariable(left.String() + right.String())), nil
	case "in":
		return scalarResult(recipe.BoolVariable(strings.Contains(right.String(), left.String()))), nil
	default:
		return Result{}, fmt.Errorf("unsupported operator %q", e.op)
	}
}

// compareNumeric backs the `<`/`<=`/`>`/`>=` operators. A dotted operand
// (either side) is treated as a version string and compared segment-by-
// segment the same way match() does, so `${{ python >= "3.10" }}` orders
// "3.10" above "3.9" instead of parsing it as the float 3.1. Operands with
// no dot — plain integers like a build number — still go through float
// parsing, which is exact for that case and needs no segment machinery.
func compareNumeric(left, right Result, op string) (Result, error) {
	ls, rs := left.String(), right.String()
	if strings.Contains(ls, ".") || strings.Contains(rs, ".") {
		cmp := compareVersionSegments(ls, rs)
		return scalarResult(recipe.BoolVariable(compareFromCmp(cmp, op))), nil
	}

	lf, lerr := strconv.ParseFloat(ls, 64)
	rf, rerr := strconv.ParseFloat(rs, 64)
	if lerr != nil || rerr != nil {
		return Result{}, fmt.Errorf("comparison operator %q requires numeric operands, got %q and %q", op, ls, rs)
	}
	var b bool
	switch op {
	case "<":
		b = lf < rf
	case "<=":
		b = lf <= rf
	case ">":
		b = lf > rf
	case ">=":
		b = lf >= rf
	}
	return scalarResult(recipe.BoolVariable(b)), nil
}

func compareFromCmp(cmp int, op string) bool {
	switch op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

// FreeIdentifiers parses a single `${{ expr }}` body (without the
// delimiters) and returns every bare identifier it reads as a variable —
// the variant expander's free-identifier scan (spec.md §4.3 step 1a).
// Builtin function/method names (`compiler`, `pin_subpackage`, `env.get`,
// ...), keyword-argument names (`exact` in `exact=True`), and member names
// after a dot are excluded, since those aren't variant keys themselves.
func FreeIdentifiers(src string) ([]string, error) {
	n, err := parseExpr(src)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	var walk func(n node, isCallee bool)
	walk = func(n node, isCallee bool) {
		switch e := n.(type) {
		case *identNode:
			if isCallee {
				return
			}
			if !seen[e.name] {
				seen[e.name] = true
				out = append(out, e.name)
			}
		case *memberNode:
			// Only the root of a member chain can be a free identifier
			// (e.g. `foo` in a bare `foo.bar`); the member name itself
			// never is. When the chain is a callee, as in `env.get(...)`,
			// the root (`env`) is skipped too.
			walk(e.target, isCallee)
		case *callNode:
			walk(e.callee, true)
			for _, a := range e.args {
				walk(a, false)
			}
			for _, a := range e.kwargs {
				walk(a, false)
			}
		case *binOpNode:
			walk(e.left, false)
			walk(e.right, false)
		case *notNode:
			walk(e.inner, false)
		case *literalNode:
		}
	}
	walk(n, false)
	return out, nil
}

func evalMember(ctx *EvaluationContext, e *memberNode) (Result, error) {
	// Member access is only meaningful as a method call (`env.get`,
	// `path.join`, ...); evalCall resolves those directly when the callee
	// is a memberNode whose target is an identifier, so a bare member
	// access (no call) ignores the member name and renders its target.
	base, err := Eval(ctx, e.target)
	if err != nil {
		return Result{}, err
	}
	return base, nil
}
