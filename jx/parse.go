package jx

import "fmt"

// ParseMode selects strict (pure JSON, no symbols/operators) or
// permissive (full expression language) lexing, per spec.md §4.2.
type ParseMode int

const (
	ModeStrict ParseMode = iota
	ModePermissive
)

// ParseError is one recorded parse failure with its source line.
type ParseError struct {
	Line    int
	Message string
}

func (e ParseError) Error() string { return fmt.Sprintf("on line %d: %s", e.Line, e.Message) }

// Parser is a recursive-descent parser over a token stream produced by
// Lexer, following spec.md §4.2's grammar. StaticMode, when set,
// disables binary operators entirely so that `Parse` consumes only a
// single atomic or unary expression — deltadb sets this during log
// replay so record payloads are never mis-parsed as expressions
// (spec.md §4.2).
type Parser struct {
	lex        *Lexer
	mode       ParseMode
	staticMode bool
	tok        Token
	errs       []ParseError
}

// NewParser constructs a parser over src. staticMode corresponds to
// spec.md §4.2's process-wide static-mode flag, but is threaded as an
// explicit argument per spec.md §9's "fold globals into config" note.
func NewParser(src []byte, mode ParseMode, staticMode bool) *Parser {
	p := &Parser{lex: NewLexer(src), mode: mode, staticMode: staticMode}
	p.tok = p.lex.Next()
	return p
}

// Parse parses a single value/expression, and top-level is done.
func Parse(src []byte, mode ParseMode) (*Value, []ParseError) {
	p := NewParser(src, mode, false)
	v := p.ParseValue()
	return v, p.errs
}

// ParseStatic parses with static mode engaged (deltadb log replay).
func ParseStatic(src []byte, mode ParseMode) (*Value, []ParseError) {
	p := NewParser(src, mode, true)
	v := p.ParseValue()
	return v, p.errs
}

func (p *Parser) Errors() []ParseError { return p.errs }

func (p *Parser) errorf(line int, format string, args ...interface{}) *Value {
	msg := fmt.Sprintf(format, args...)
	p.errs = append(p.errs, ParseError{Line: line, Message: msg})
	return nil
}

func (p *Parser) advance() Token {
	t := p.tok
	p.tok = p.lex.Next()
	return t
}

func (p *Parser) expect(k TokenKind, what string) (Token, bool) {
	if p.tok.Kind == TokError {
		p.errorf(p.tok.Line, "%s", p.tok.Msg)
		return Token{}, false
	}
	if p.tok.Kind != k {
		p.errorf(p.tok.Line, "expected %s", what)
		return Token{}, false
	}
	return p.advance(), true
}

// ParseValue is the grammar's `value` production: binary(maxprec), or
// in static mode a single unary/atomic expression.
func (p *Parser) ParseValue() *Value {
	if p.staticMode {
		return p.parseUnary()
	}
	return p.parseOr()
}

func (p *Parser) parseOr() *Value {
	left := p.parseAnd()
	for p.tok.Kind == TokOr || p.tok.Kind == TokOrOr {
		line := p.tok.Line
		p.advance()
		right := p.parseAnd()
		left = Operator(OpOr, left, right, line)
	}
	return left
}

func (p *Parser) parseAnd() *Value {
	left := p.parseCompare()
	for p.tok.Kind == TokAnd || p.tok.Kind == TokAndAnd {
		line := p.tok.Line
		p.advance()
		right := p.parseCompare()
		left = Operator(OpAnd, left, right, line)
	}
	return left
}

func (p *Parser) parseCompare() *Value {
	left := p.parseAdd()
	for {
		var tag Op
		switch p.tok.Kind {
		case TokEq:
			tag = OpEq
		case TokNe:
			tag = OpNe
		case TokLt:
			tag = OpLt
		case TokLe:
			tag = OpLe
		case TokGt:
			tag = OpGt
		case TokGe:
			tag = OpGe
		default:
			return left
		}
		line := p.tok.Line
		p.advance()
		right := p.parseAdd()
		left = Operator(tag, left, right, line)
	}
}

func (p *Parser) parseAdd() *Value {
	left := p.parseMul()
	for p.tok.Kind == TokPlus || p.tok.Kind == TokMinus {
		tag := OpAdd
		if p.tok.Kind == TokMinus {
			tag = OpSub
		}
		line := p.tok.Line
		p.advance()
		right := p.parseMul()
		left = Operator(tag, left, right, line)
	}
	return left
}

func (p *Parser) parseMul() *Value {
	left := p.parseUnary()
	for p.tok.Kind == TokStar || p.tok.Kind == TokSlash || p.tok.Kind == TokPercent {
		var tag Op
		switch p.tok.Kind {
		case TokStar:
			tag = OpMul
		case TokSlash:
			tag = OpDiv
		case TokPercent:
			tag = OpMod
		}
		line := p.tok.Line
		p.advance()
		right := p.parseUnary()
		left = Operator(tag, left, right, line)
	}
	return left
}

func (p *Parser) parseUnary() *Value {
	switch p.tok.Kind {
	case TokMinus:
		line := p.tok.Line
		p.advance()
		inner := p.parseUnary()
		// fold -literal into the literal, per spec.md §4.2.
		if inner != nil && inner.Kind == KindInt && len(inner.Array) == 0 {
			return &Value{Kind: KindInt, Int: -inner.Int, Line: line}
		}
		if inner != nil && inner.Kind == KindDouble {
			return &Value{Kind: KindDouble, Double: -inner.Double, Line: line}
		}
		return Operator(OpSub, nil, inner, line)
	case TokPlus:
		line := p.tok.Line
		p.advance()
		inner := p.parseUnary()
		if inner != nil && (inner.Kind == KindInt || inner.Kind == KindDouble) {
			return inner
		}
		return Operator(OpAdd, nil, inner, line)
	case TokBang, TokNot:
		line := p.tok.Line
		p.advance()
		inner := p.parseUnary()
		return Operator(OpNot, nil, inner, line)
	case TokErrorKw:
		line := p.tok.Line
		p.advance()
		if _, ok := p.expect(TokLParen, "'(' after error"); !ok {
			return nil
		}
		inner := p.parsePostfix()
		if _, ok := p.expect(TokRParen, "')' to close error(...)"); !ok {
			return nil
		}
		return WrapError(inner)
	default:
		return p.parsePostfix()
	}
}

func (p *Parser) parsePostfix() *Value {
	v := p.parseAtomic()
	for {
		switch p.tok.Kind {
		case TokLBracket:
			line := p.tok.Line
			p.advance()
			idx := p.parseIndex()
			if _, ok := p.expect(TokRBracket, "']'"); !ok {
				return nil
			}
			v = Operator(OpLookup, v, idx, line)
		case TokLParen:
			line := p.tok.Line
			p.advance()
			args := p.parseArgs(TokRParen)
			if _, ok := p.expect(TokRParen, "')'"); !ok {
				return nil
			}
			v = Operator(OpCall, v, Array(args...), line)
		case TokDot:
			line := p.tok.Line
			p.advance()
			name, ok := p.expect(TokIdent, "method name after '.'")
			if !ok {
				return nil
			}
			if _, ok := p.expect(TokLParen, "'(' after method name"); !ok {
				return nil
			}
			args := p.parseArgs(TokRParen)
			if _, ok := p.expect(TokRParen, "')'"); !ok {
				return nil
			}
			call := Operator(OpCall, Symbol(name.Text), Array(args...), line)
			v = Operator(OpDot, v, call, line)
		default:
			return v
		}
	}
}

// parseIndex implements `index := value | value? ':' value?`.
func (p *Parser) parseIndex() *Value {
	if p.tok.Kind == TokColon {
		line := p.tok.Line
		p.advance()
		var hi *Value
		if p.tok.Kind != TokRBracket {
			hi = p.ParseValue()
		}
		return Operator(OpSlice, nil, hi, line)
	}
	first := p.ParseValue()
	if p.tok.Kind == TokColon {
		line := p.tok.Line
		p.advance()
		var hi *Value
		if p.tok.Kind != TokRBracket {
			hi = p.ParseValue()
		}
		return Operator(OpSlice, first, hi, line)
	}
	return first
}

func (p *Parser) parseArgs(end TokenKind) []*Value {
	var args []*Value
	if p.tok.Kind == end {
		return args
	}
	for {
		args = append(args, p.ParseValue())
		if p.tok.Kind != TokComma {
			break
		}
		p.advance()
	}
	return args
}

func (p *Parser) parseAtomic() *Value {
	line := p.tok.Line
	switch p.tok.Kind {
	case TokInt:
		t := p.advance()
		return &Value{Kind: KindInt, Int: t.Int, Line: line}
	case TokDouble:
		t := p.advance()
		return &Value{Kind: KindDouble, Double: t.Dbl, Line: line}
	case TokString:
		t := p.advance()
		return &Value{Kind: KindString, Str: t.Text, Line: line}
	case TokTrue:
		p.advance()
		return &Value{Kind: KindBool, Bool: true, Line: line}
	case TokFalse:
		p.advance()
		return &Value{Kind: KindBool, Bool: false, Line: line}
	case TokNull:
		p.advance()
		return &Value{Kind: KindNull, Line: line}
	case TokIdent:
		t := p.advance()
		if p.mode == ModeStrict {
			return p.errorf(line, "unquoted symbol %q not allowed in strict mode", t.Text)
		}
		return &Value{Kind: KindSymbol, Sym: t.Text, Line: line}
	case TokLBracket:
		return p.parseArrayLiteral()
	case TokLBrace:
		return p.parseObjectLiteral()
	case TokLParen:
		p.advance()
		v := p.ParseValue()
		p.expect(TokRParen, "')'")
		return v
	case TokError:
		return p.errorf(line, "%s", p.tok.Msg)
	default:
		return p.errorf(line, "unexpected token")
	}
}

func (p *Parser) parseArrayLiteral() *Value {
	line := p.tok.Line
	p.advance() // [
	v := &Value{Kind: KindArray, Line: line}
	if p.tok.Kind == TokRBracket {
		p.advance()
		return v
	}
	for {
		elem := p.ParseValue()
		comp := p.tryParseComprehension()
		v.Array = append(v.Array, Item{Value: elem, Comp: comp})
		if p.tok.Kind != TokComma {
			break
		}
		p.advance()
	}
	p.expect(TokRBracket, "']'")
	return v
}

func (p *Parser) parseObjectLiteral() *Value {
	line := p.tok.Line
	p.advance() // {
	v := &Value{Kind: KindObject, Line: line}
	if p.tok.Kind == TokRBrace {
		p.advance()
		return v
	}
	for {
		keyExpr := p.ParseValue()
		if _, ok := p.expect(TokColon, "':' in object pair"); !ok {
			break
		}
		valExpr := p.ParseValue()
		comp := p.tryParseComprehension()
		key := ""
		if keyExpr != nil && keyExpr.Kind == KindString {
			key = keyExpr.Str
		} else if keyExpr != nil && keyExpr.Kind == KindSymbol {
			key = keyExpr.Sym
		}
		v.Obj = append(v.Obj, Pair{Key: key, Value: valExpr, Comp: comp})
		if p.tok.Kind != TokComma {
			break
		}
		p.advance()
	}
	p.expect(TokRBrace, "'}'")
	return v
}

func (p *Parser) tryParseComprehension() *Comprehension {
	if p.tok.Kind != TokFor {
		return nil
	}
	p.advance()
	ident, ok := p.expect(TokIdent, "loop variable after 'for'")
	if !ok {
		return nil
	}
	if _, ok := p.expect(TokIn, "'in' in comprehension"); !ok {
		return nil
	}
	elements := p.ParseValue()
	c := &Comprehension{Var: ident.Text, Elements: elements}
	if p.tok.Kind == TokIf {
		p.advance()
		c.Cond = p.ParseValue()
	}
	c.Next = p.tryParseComprehension()
	return c
}
