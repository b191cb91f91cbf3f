package idl

import (
	"fmt"
	"strconv"
)

// Parser builds a Registry from a token stream.  Grammar violations
// panic with a ParseError that is recovered at the enclosing
// definition; the parser then skips to the end of that definition
// and carries on, so one run reports every error it can find.
type Parser struct {
	lex   *Lexer
	reg   *Registry
	tok   Token
	peek  *Token
	depth int // open braces
}

func NewParser(reg *Registry, lex *Lexer) *Parser {
	p := &Parser{lex: lex, reg: reg}
	p.next()
	return p
}

// Preprocess, lex, and parse one file's contents into reg.  Returns
// false if this file added any diagnostics.
func ParseFile(reg *Registry, filename, contents string) bool {
	before := len(reg.Errors)
	lex := NewLexer(filename, Preprocess(filename, contents),
		func(e ParseError) { reg.Errors = append(reg.Errors, e) })
	NewParser(reg, lex).Parse()
	return len(reg.Errors) == before
}

func (p *Parser) next() Token {
	prev := p.tok
	switch prev.Type {
	case '{':
		p.depth++
	case '}':
		if p.depth > 0 {
			p.depth--
		}
	}
	if p.peek != nil {
		p.tok, p.peek = *p.peek, nil
	} else {
		p.tok = p.lex.Next()
	}
	return prev
}

func (p *Parser) lookahead() Token {
	if p.peek == nil {
		t := p.lex.Next()
		p.peek = &t
	}
	return *p.peek
}

func (p *Parser) throw(msg string, args ...interface{}) {
	panic(ParseError{
		Class: SyntaxError,
		Pos:   p.tok.Pos,
		Msg:   fmt.Sprintf(msg, args...),
	})
}

func (p *Parser) unexpected(want string) {
	p.throw("syntax error at %s, expected %s", p.tok, want)
}

func (p *Parser) is(t TokenType) bool {
	return p.tok.Type == t
}

func (p *Parser) accept(t TokenType) bool {
	if p.tok.Type == t {
		p.next()
		return true
	}
	return false
}

func (p *Parser) expect(t TokenType) Token {
	if p.tok.Type != t {
		p.unexpected(t.String())
	}
	return p.next()
}

func (p *Parser) ident() Token {
	return p.expect(T_ID)
}

// Skip to just past the ';' that closes the current top-level
// definition, or to a marker that starts something new.
func (p *Parser) resync() {
	for {
		switch p.tok.Type {
		case T_EOF, T_NEWFILE, T_BEGIN_ERRORS, T_END_ERRORS:
			p.depth = 0
			return
		case ';':
			p.next()
			if p.depth == 0 {
				return
			}
		default:
			p.next()
		}
	}
}

// Parse until end of input.
func (p *Parser) Parse() {
	for !p.is(T_EOF) {
		p.definition1()
	}
}

func (p *Parser) definition1() {
	defer func() {
		if i := recover(); i != nil {
			if pe, ok := i.(ParseError); ok {
				p.reg.Errors = append(p.reg.Errors, pe)
				p.resync()
			} else {
				panic(i)
			}
		}
	}()
	p.definition()
}

func (p *Parser) definition() {
	switch p.tok.Type {
	case T_NEWFILE:
		p.next()
	case T_PACKAGE:
		pos := p.next().Pos
		p.reg.AddPackage(pos, p.ident().Value)
		p.accept(';')
	case T_CONST:
		p.constDef()
	case T_ENUM:
		p.enumDef()
	case T_TYPEDEF:
		pos := p.next().Pos
		m := p.declaration("")
		p.expect(';')
		p.reg.AddAlias(pos, m.Name, m.Type)
	case T_STRUCT:
		p.structDef()
	case T_BEGIN_ERRORS:
		p.errorCodes()
	case T_END_ERRORS:
		// Left behind when an error code list failed to parse.
		p.next()
	case T_ID:
		p.procDef()
	default:
		p.unexpected("definition")
	}
}

func (p *Parser) number() *Constant {
	t := p.expect(T_NUM)
	v, err := strconv.ParseInt(t.Value, 0, 64)
	if err != nil {
		u, uerr := strconv.ParseUint(t.Value, 0, 64)
		if uerr != nil {
			p.reg.semantic(t.Pos, "bad number %s", t.Value)
		}
		v = int64(u)
	}
	return &Constant{Value: v, Text: t.Value, Pos: t.Pos}
}

// A literal or the name of a previously defined constant.
func (p *Parser) value() *Constant {
	if p.is(T_ID) {
		t := p.next()
		return p.reg.GetConstant(t.Pos, t.Value)
	}
	return p.number()
}

// const ID = value ;
func (p *Parser) constDef() *Constant {
	p.expect(T_CONST)
	id := p.ident()
	p.expect('=')
	val := p.value()
	p.expect(';')
	return p.reg.AddConstant(id.Pos, id.Value, val)
}

// enum ID { ID = value, ... } ;
func (p *Parser) enumDef() {
	pos := p.expect(T_ENUM).Pos
	id := p.ident()
	p.expect('{')
	for {
		tag := p.ident()
		p.expect('=')
		p.reg.AddConstant(tag.Pos, tag.Value, p.value())
		if !p.accept(',') || p.is('}') {
			break
		}
	}
	p.expect('}')
	p.expect(';')
	base, _ := p.reg.GetType("int32_t")
	t := *base
	t.Name, t.Enum, t.Pos = id.Value, true, pos
	p.reg.AddType(id.Pos, id.Value, &t)
}

// { declaration ; ... }
func (p *Parser) structBody(context string) []*Member {
	p.expect('{')
	var members []*Member
	seen := map[string]bool{}
	for {
		m := p.declaration(context)
		p.expect(';')
		if seen[m.Name] {
			p.reg.semantic(m.Pos, "duplicate member %s", m.Name)
		} else {
			seen[m.Name] = true
			members = append(members, m)
		}
		if p.is('}') {
			break
		}
	}
	p.expect('}')
	return members
}

// struct ID { ... } ;
func (p *Parser) structDef() {
	p.expect(T_STRUCT)
	id := p.ident()
	members := p.structBody(id.Value)
	p.expect(';')
	p.addStruct(id.Pos, id.Value, members)
}

// __BEGIN_ERROR_CODES__ const ... __END_ERROR_CODES__
func (p *Parser) errorCodes() {
	pos := p.expect(T_BEGIN_ERRORS).Pos
	var codes []*Constant
	for p.is(T_CONST) {
		codes = append(codes, p.constDef())
	}
	p.expect(T_END_ERRORS)
	if len(codes) == 0 {
		p.throw("empty error code list")
	}
	p.reg.AddErrorCodes(pos, codes)
}

func (p *Parser) addStruct(pos Pos, name string, members []*Member) *Type {
	t, err := NewStruct(name, members, pos)
	if err != nil {
		p.reg.semantic(pos, "%s", err)
	}
	return p.reg.AddStruct(pos, t)
}

func (p *Parser) typeSpec(context string) *Type {
	switch p.tok.Type {
	case T_BASIC:
		t, _ := p.reg.GetType(p.next().Value)
		return t
	case T_STRUCT:
		pos := p.next().Pos
		if p.is('{') {
			// Anonymous struct; named after where it appears.
			name := fmt.Sprintf("XdrAnon_%s_%d_%d", context, pos.Lineno,
				pos.Colno)
			return p.addStruct(pos, name, p.structBody(name))
		}
		return p.namedType(p.ident())
	case T_ID:
		return p.namedType(p.next())
	}
	p.unexpected("type")
	return nil
}

func (p *Parser) namedType(id Token) *Type {
	t, err := p.reg.GetType(id.Value)
	if err != nil {
		p.reg.semantic(id.Pos, "%s", err)
		t, _ = p.reg.GetType("int32_t")
	}
	return t
}

// < optional value >
func (p *Parser) bound() *Constant {
	p.expect('<')
	if p.accept('>') {
		return nil
	}
	v := p.value()
	p.expect('>')
	return v
}

// The declaration forms:
//
//	T x
//	T *x
//	T x[N]
//	T x<N?>     (blob bound if T is string/opaque, else bulk)
//	T *x<N?>
//	T<N?> *x    (bulk)
func (p *Parser) declaration(context string) *Member {
	pos := p.tok.Pos
	base := p.typeSpec(context)
	var dim, max *Constant
	card, variable := SINGLE, false

	if p.is('<') {
		max = p.bound()
		p.expect('*')
		card = BULK
	} else {
		p.accept('*')
	}
	id := p.ident()
	if card == SINGLE {
		if p.is('[') {
			p.next()
			dim = p.value()
			p.expect(']')
			card = FIXED
		}
		if p.is('<') {
			max = p.bound()
			variable = true
		}
	}
	if card == FIXED && variable {
		p.reg.semantic(pos, "%s: can't be both variable and fixed-size array",
			id.Value)
		return &Member{Name: id.Value, Type: base, Pos: id.Pos}
	} else if variable && !(base.IsBlobBase() && base.Card == SINGLE) {
		card = BULK
	}

	t, err := Derive(base, card, dim, max, pos)
	if err != nil {
		p.reg.semantic(pos, "%s: %s", id.Value, err)
		t = base
	}
	return &Member{Name: id.Value, Type: t, Pos: id.Pos}
}

func (p *Parser) param(context string) *Param {
	var dir Direction
	switch p.tok.Type {
	case T_IN:
		dir = IN
	case T_OUT:
		dir = OUT
	case T_INOUT:
		dir = INOUT
	default:
		p.unexpected("IN, OUT or INOUT")
	}
	p.next()
	return &Param{Member: *p.declaration(context), Dir: dir}
}

func (p *Parser) procFlags(proc *Proc) {
	for {
		if p.accept(T_SPLIT) {
			proc.Split = true
		} else if p.accept(T_MULTI) {
			proc.Multi = true
		} else {
			return
		}
	}
}

// ID ( params ) [split|multi] = value [split|multi] ;
func (p *Parser) procDef() {
	id := p.ident()
	proc := &Proc{Short: id.Value, Name: id.Value, Pos: id.Pos,
		Pkg: p.reg.Package()}
	if proc.Pkg != nil {
		proc.Name = proc.Pkg.Name + "_" + id.Value
	}
	p.expect('(')
	seen := map[string]bool{}
	if !p.is(')') {
		for {
			prm := p.param(proc.Name)
			if seen[prm.Name] {
				p.reg.semantic(prm.Pos, "duplicate parameter %s", prm.Name)
			}
			seen[prm.Name] = true
			proc.Params = append(proc.Params, prm)
			if !p.accept(',') {
				break
			}
		}
	}
	p.expect(')')
	p.procFlags(proc)
	p.expect('=')
	proc.Opcode = p.value()
	if err := checkU32("opcode", proc.Opcode); err != nil {
		p.reg.semantic(id.Pos, "%s: %s", proc.Name, err)
	}
	p.procFlags(proc)
	p.expect(';')
	if proc.Split && proc.Multi {
		p.reg.semantic(id.Pos, "%s: split and multi are exclusive", proc.Name)
	}
	p.reg.AddProc(proc)
}
