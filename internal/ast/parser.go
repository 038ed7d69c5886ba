package ast

import (
	"strconv"
	"strings"

	"github.com/seanpringle/rela/internal/rerr"
	"github.com/seanpringle/rela/internal/token"
	"github.com/seanpringle/rela/internal/value"
)

// Parser is a single-pass recursive-descent parser with a shunting-yard
// core for binary operators, per §4.D. It allocates every Node into an
// Arena the caller discards after compilation.
type Parser struct {
	toks  []token.Token
	pos   int
	arena *Arena
	file  string
	src   string

	fpathID    int64
	fpathIDs   []int64
}

const maxScopeDepth = 8 // §9: "Bounded nesting depth (source uses 8)"

func NewParser(toks []token.Token, src, file string) *Parser {
	return &Parser{toks: toks, arena: NewArena(), file: file, src: src}
}

func (p *Parser) Arena() *Arena { return p.arena }

func (p *Parser) cur() token.Token  { return p.toks[p.pos] }
func (p *Parser) atEnd() bool       { return p.cur().Kind == token.EOF }
func (p *Parser) advance() token.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}
func (p *Parser) check(k token.Kind) bool { return p.cur().Kind == k }
func (p *Parser) match(k token.Kind) bool {
	if p.check(k) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) snippet() string {
	line := p.cur().Line
	lines := strings.Split(p.src, "\n")
	if line-1 >= 0 && line-1 < len(lines) {
		return strings.TrimSpace(lines[line-1])
	}
	return ""
}

func (p *Parser) errf(format string, args ...any) error {
	t := p.cur()
	return rerr.NewParse(p.file, t.Line, t.Col, p.snippet(), format, args...)
}

func (p *Parser) expect(k token.Kind) (token.Token, error) {
	if !p.check(k) {
		return token.Token{}, p.errf("expected %s but found %s %q", k, p.cur().Kind, p.cur().Lexeme)
	}
	return p.advance(), nil
}

// Parse parses the whole token stream as a KMulti of top-level Expr*.
func (p *Parser) Parse() (*Node, error) {
	n, err := p.parseStatements(token.EOF)
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		return nil, p.errf("unexpected trailing token %s %q", p.cur().Kind, p.cur().Lexeme)
	}
	return n, nil
}

// terminators that close a statement-list block.
func isTerminator(k token.Kind, stops ...token.Kind) bool {
	for _, s := range stops {
		if k == s {
			return true
		}
	}
	return false
}

func (p *Parser) parseStatements(stops ...token.Kind) (*Node, error) {
	m := p.arena.New(KMulti)
	for !p.atEnd() && !isTerminator(p.cur().Kind, stops...) {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		m.Args = append(m.Args, stmt)
	}
	return m, nil
}

func (p *Parser) parseStatement() (*Node, error) {
	switch p.cur().Kind {
	case token.Return:
		return p.parseReturn()
	case token.Break:
		p.advance()
		n := p.arena.New(KBreak)
		return n, nil
	case token.Continue:
		p.advance()
		n := p.arena.New(KContinue)
		return n, nil
	}
	return p.parseExprStatement()
}

func (p *Parser) parseReturn() (*Node, error) {
	p.advance()
	n := p.arena.New(KReturn)
	if p.canStartExpr() {
		vals, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		n.Values = vals
	}
	return n, nil
}

func (p *Parser) canStartExpr() bool {
	switch p.cur().Kind {
	case token.End, token.Else, token.EOF, token.RParen, token.RBracket, token.RBrace, token.Comma:
		return false
	}
	return true
}

// parseExprStatement handles the "a[,b…] = x[,y…]" multi-assign form,
// falling back to a plain value expression when no `=` follows.
func (p *Parser) parseExprStatement() (*Node, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.check(token.Comma) || p.check(token.Assign) {
		targets := []*Node{first}
		for p.match(token.Comma) {
			t, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			targets = append(targets, t)
		}
		if _, err := p.expect(token.Assign); err != nil {
			return nil, err
		}
		values, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		n := p.arena.New(KAssign)
		n.Targets = targets
		n.Values = values
		return n, nil
	}
	return p.parseBinaryRHS(first, 0)
}

func (p *Parser) parseExprList() ([]*Node, error) {
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	list := []*Node{first}
	for p.match(token.Comma) {
		n, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, nil
}

func (p *Parser) parseExpr() (*Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return p.parseBinaryRHS(left, 0)
}

// precedence table, low to high, per §4.D.
func precedence(k token.Kind) (int, bool) {
	switch k {
	case token.OrOr, token.KwOr:
		return 0, true
	case token.AndAnd, token.KwAnd:
		return 1, true
	case token.EqEq, token.NotEq, token.Gte, token.Gt, token.Lte, token.Lt, token.Tilde:
		return 2, true
	case token.Plus, token.Minus:
		return 3, true
	case token.Star, token.Slash, token.Percent:
		return 4, true
	}
	return 0, false
}

// parseBinaryRHS implements the shunting-yard climb: consume operators
// whose precedence is >= minPrec, recursing for a higher-or-equal-minPrec
// right-hand side.
func (p *Parser) parseBinaryRHS(left *Node, minPrec int) (*Node, error) {
	for {
		prec, ok := precedence(p.cur().Kind)
		if !ok || prec < minPrec {
			return left, nil
		}
		opTok := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		for {
			nextPrec, ok := precedence(p.cur().Kind)
			if !ok || nextPrec <= prec {
				break
			}
			right, err = p.parseBinaryRHS(right, prec+1)
			if err != nil {
				return nil, err
			}
		}
		switch opTok.Kind {
		case token.AndAnd, token.KwAnd:
			n := p.arena.New(KAnd)
			n.Left, n.Right = left, right
			left = n
		case token.OrOr, token.KwOr:
			n := p.arena.New(KOr)
			n.Left, n.Right = left, right
			left = n
		default:
			n := p.arena.New(KBinary)
			n.Item = value.Int(int64(opTok.Kind))
			n.Left, n.Right = left, right
			left = n
		}
	}
}

func (p *Parser) parseUnary() (*Node, error) {
	switch p.cur().Kind {
	case token.Hash, token.Minus, token.Bang:
		opTok := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		n := p.arena.New(KUnary)
		n.Item = value.Int(int64(opTok.Kind))
		n.Left = operand
		return n, nil
	case token.Ellipsis:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		n := p.arena.New(KUnpack)
		n.Left = operand
		return n, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (*Node, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().Kind {
		case token.LParen:
			p.advance()
			var args []*Node
			if !p.check(token.RParen) {
				args, err = p.parseExprList()
				if err != nil {
					return nil, err
				}
			}
			if _, err := p.expect(token.RParen); err != nil {
				return nil, err
			}
			n := p.arena.New(KCall)
			n.Chain = node
			n.Args = args
			node = n
		case token.LBracket:
			p.advance()
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RBracket); err != nil {
				return nil, err
			}
			n := p.arena.New(KIndex)
			n.Chain = node
			n.Left = idx
			node = n
		case token.Dot:
			p.advance()
			nameTok, err := p.expect(token.Ident)
			if err != nil {
				return nil, err
			}
			n := p.arena.New(KField)
			n.Chain = node
			n.Name = nameTok.Lexeme
			node = n
		case token.Colon:
			p.advance()
			nameTok, err := p.expect(token.Ident)
			if err != nil {
				return nil, err
			}
			n := p.arena.New(KMethod)
			n.Chain = node
			n.Name = nameTok.Lexeme
			node = n
		default:
			return node, nil
		}
	}
}

func (p *Parser) parsePrimary() (*Node, error) {
	t := p.cur()
	switch t.Kind {
	case token.Int:
		p.advance()
		i, err := strconv.ParseInt(t.Lexeme, 10, 64)
		if err != nil {
			return nil, p.errf("bad integer literal %q", t.Lexeme)
		}
		n := p.arena.New(KLiteral)
		n.Item = value.Int(i)
		return n, nil
	case token.Float:
		p.advance()
		f, err := strconv.ParseFloat(t.Lexeme, 64)
		if err != nil {
			return nil, p.errf("bad float literal %q", t.Lexeme)
		}
		n := p.arena.New(KLiteral)
		n.Item = value.Float(f)
		return n, nil
	case token.String:
		p.advance()
		return p.buildStringNode(t)
	case token.True:
		p.advance()
		n := p.arena.New(KLiteral)
		n.Item = value.Bool(true)
		return n, nil
	case token.False:
		p.advance()
		n := p.arena.New(KLiteral)
		n.Item = value.Bool(false)
		return n, nil
	case token.Nil:
		p.advance()
		n := p.arena.New(KLiteral)
		n.Item = value.Nil()
		return n, nil
	case token.Global:
		p.advance()
		return p.arena.New(KGlobalRef), nil
	case token.Ident:
		p.advance()
		n := p.arena.New(KName)
		n.Name = t.Lexeme
		return n, nil
	case token.LParen:
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RParen); err != nil {
			return nil, err
		}
		return inner, nil
	case token.LBracket:
		return p.parseVector()
	case token.LBrace:
		return p.parseMap()
	case token.If:
		return p.parseIf()
	case token.While:
		return p.parseWhile()
	case token.For:
		return p.parseFor()
	case token.Function:
		return p.parseFunction()
	}
	return nil, p.errf("unexpected token %s %q", t.Kind, t.Lexeme)
}

func (p *Parser) buildStringNode(t token.Token) (*Node, error) {
	if len(t.Frags) == 0 {
		n := p.arena.New(KLiteral)
		s := ""
		n.Item = value.String(&s)
		return n, nil
	}
	if len(t.Frags) == 1 && t.Frags[0].Literal {
		n := p.arena.New(KLiteral)
		s := t.Frags[0].Text
		n.Item = value.String(&s)
		return n, nil
	}
	interp := p.arena.New(KInterp)
	for _, f := range t.Frags {
		if f.Literal {
			lit := p.arena.New(KLiteral)
			s := f.Text
			lit.Item = value.String(&s)
			interp.Parts = append(interp.Parts, lit)
			continue
		}
		sub, err := parseSubExpr(p, f.Text, t.Line)
		if err != nil {
			return nil, err
		}
		interp.Parts = append(interp.Parts, sub)
	}
	return interp, nil
}

// parseSubExpr compiles an embedded `$(expr)`/`$name` fragment by
// re-scanning it with its own Parser sharing the outer Arena, so nodes
// stay in the same transient pool.
func parseSubExpr(outer *Parser, src string, line int) (*Node, error) {
	toks, err := scanFragment(src, outer.file, line)
	if err != nil {
		return nil, err
	}
	sub := &Parser{toks: toks, arena: outer.arena, file: outer.file, src: src}
	return sub.parseExpr()
}

func (p *Parser) parseVector() (*Node, error) {
	p.advance() // [
	n := p.arena.New(KVector)
	for !p.check(token.RBracket) {
		el, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		n.Args = append(n.Args, el)
		if !p.match(token.Comma) {
			break
		}
	}
	if _, err := p.expect(token.RBracket); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Parser) parseMap() (*Node, error) {
	p.advance() // {
	n := p.arena.New(KMapLit)
	for !p.check(token.RBrace) {
		var keyNode *Node
		if p.check(token.String) {
			t := p.advance()
			kn, err := p.buildStringNode(t)
			if err != nil {
				return nil, err
			}
			keyNode = kn
		} else {
			nameTok, err := p.expect(token.Ident)
			if err != nil {
				return nil, err
			}
			kn := p.arena.New(KLiteral)
			s := nameTok.Lexeme
			kn.Item = value.String(&s)
			keyNode = kn
		}
		if _, err := p.expect(token.Assign); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		n.Keys = append(n.Keys, keyNode)
		n.Vals = append(n.Vals, val)
		if !p.match(token.Comma) {
			break
		}
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return nil, err
	}
	return n, nil
}

// parseIf compiles to a ternary-style expression: the value of the last
// statement in the taken branch, per §4.D.
func (p *Parser) parseIf() (*Node, error) {
	p.advance() // if
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	then, err := p.parseStatements(token.Else, token.End)
	if err != nil {
		return nil, err
	}
	n := p.arena.New(KIf)
	n.Cond = cond
	n.Then = then
	if p.match(token.Else) {
		els, err := p.parseStatements(token.End)
		if err != nil {
			return nil, err
		}
		n.Else = els
	}
	if _, err := p.expect(token.End); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Parser) parseWhile() (*Node, error) {
	p.advance() // while
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Do); err != nil {
		return nil, err
	}
	body, err := p.parseStatements(token.End)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.End); err != nil {
		return nil, err
	}
	n := p.arena.New(KWhile)
	n.Cond = cond
	n.Body = body
	return n, nil
}

// parseFor covers the single grammar shared by every iterable kind; the
// VM's FOR opcode dispatches on the runtime type of the iterable. FOR
// iterates integers, vectors and maps; for any other kind, coroutines and
// callables included, it ends the loop without running the body.
func (p *Parser) parseFor() (*Node, error) {
	p.advance() // for
	var vars []string
	if p.check(token.Ident) {
		v1 := p.advance().Lexeme
		vars = append(vars, v1)
		if p.match(token.Comma) {
			v2, err := p.expect(token.Ident)
			if err != nil {
				return nil, err
			}
			vars = append(vars, v2.Lexeme)
		}
		if _, err := p.expect(token.In); err != nil {
			return nil, err
		}
	}
	iter, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Do); err != nil {
		return nil, err
	}
	body, err := p.parseStatements(token.End)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.End); err != nil {
		return nil, err
	}
	n := p.arena.New(KFor)
	n.Vars = vars
	n.Iter = iter
	n.Body = body
	return n, nil
}

// parseFunction assigns a unique compile-time scope id and records the
// id path from the outermost enclosing function, per §4.E. A bare
// `function name …` also assigns the produced Subroutine value to name.
func (p *Parser) parseFunction() (*Node, error) {
	p.advance() // function
	var name string
	if p.check(token.Ident) {
		name = p.advance().Lexeme
	}
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	var params []string
	for !p.check(token.RParen) {
		pt, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		params = append(params, pt.Lexeme)
		if !p.match(token.Comma) {
			break
		}
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}

	if len(p.fpathIDs) >= maxScopeDepth {
		return nil, p.errf("reached function nest limit(%d)", maxScopeDepth)
	}
	p.fpathID++
	id := p.fpathID
	path := FuncPath{ID: id, IDs: append([]int64(nil), p.fpathIDs...)}
	p.fpathIDs = append(p.fpathIDs, id)

	body, err := p.parseStatements(token.End)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.End); err != nil {
		return nil, err
	}
	p.fpathIDs = p.fpathIDs[:len(p.fpathIDs)-1]

	n := p.arena.New(KFunction)
	n.Name = name
	n.Params = params
	n.Body = body
	n.Path = path
	return n, nil
}
