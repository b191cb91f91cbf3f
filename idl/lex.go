package idl

import (
	"fmt"
	"strings"
)

const tabwidth = 8

type TokenType int

// Single-character punctuation tokens use the character itself as
// their TokenType.
const (
	T_EOF TokenType = -(iota + 1)
	T_ID
	T_NUM
	T_NEWFILE
	T_BEGIN_ERRORS
	T_END_ERRORS
	T_PACKAGE
	T_CONST
	T_ENUM
	T_TYPEDEF
	T_STRUCT
	T_IN
	T_OUT
	T_INOUT
	T_MULTI
	T_SPLIT
	T_BASIC // one of the basic type names
)

var keywords = map[string]TokenType{
	"IN":      T_IN,
	"INOUT":   T_INOUT,
	"OUT":     T_OUT,
	"const":   T_CONST,
	"enum":    T_ENUM,
	"multi":   T_MULTI,
	"package": T_PACKAGE,
	"split":   T_SPLIT,
	"struct":  T_STRUCT,
	"typedef": T_TYPEDEF,
}

func init() {
	for _, b := range basicTypes {
		keywords[b.name] = T_BASIC
	}
}

const (
	newfileMarker     = "__NEWFILE__"
	beginErrorsMarker = "__BEGIN_ERROR_CODES__"
	endErrorsMarker   = "__END_ERROR_CODES__"
)

func (t TokenType) String() string {
	switch t {
	case T_EOF:
		return "end of file"
	case T_ID:
		return "identifier"
	case T_NUM:
		return "number"
	case T_NEWFILE:
		return newfileMarker
	case T_BEGIN_ERRORS:
		return "start of error codes"
	case T_END_ERRORS:
		return "end of error codes"
	case T_BASIC:
		return "type name"
	}
	for k, v := range keywords {
		if v == t && v != T_BASIC {
			return k
		}
	}
	if t > 0 {
		return fmt.Sprintf("'%c'", rune(t))
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

type Token struct {
	Type  TokenType
	Value string
	Pos
}

func (t Token) String() string {
	switch t.Type {
	case T_EOF, T_NEWFILE, T_BEGIN_ERRORS, T_END_ERRORS:
		return t.Type.String()
	}
	return fmt.Sprintf("%q", t.Value)
}

const eofRune rune = -1

// Lexer turns preprocessed IDL text into tokens.  A __NEWFILE__ line
// switches the file name used in positions and restarts line
// numbering, so diagnostics point into the original files.
type Lexer struct {
	filename      string
	input         string
	lineno, colno int
	report        func(ParseError)
}

// Create a lexer over preprocessed input.  Illegal characters are
// passed to report and skipped.
func NewLexer(filename, input string, report func(ParseError)) *Lexer {
	if report == nil {
		report = func(ParseError) {}
	}
	return &Lexer{
		filename: filename,
		input:    input,
		lineno:   1,
		report:   report,
	}
}

func (l *Lexer) at(i int) rune {
	if i < 0 || i >= len(l.input) {
		return eofRune
	}
	return rune(l.input[i])
}

func (l *Lexer) advance(length int) {
	if length < 0 || length > len(l.input) {
		panic("Lexer::advance: length out of range")
	}
	for i := 0; i < length; i++ {
		switch l.input[i] {
		case '\n':
			l.lineno++
			l.colno = 0
		case '\t':
			l.colno += tabwidth - (l.colno % tabwidth)
		default:
			l.colno++
		}
	}
	l.input = l.input[length:]
}

func (l *Lexer) pos() Pos {
	return Pos{File: l.filename, Lineno: l.lineno, Colno: l.colno + 1}
}

func (l *Lexer) skipSpace() {
	i := strings.IndexFunc(l.input, func(c rune) bool {
		return c != ' ' && c != '\t' && c != '\n' && c != '\r'
	})
	if i < 0 {
		i = len(l.input)
	}
	l.advance(i)
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}

func isOctDigit(c rune) bool {
	return c >= '0' && c <= '7'
}

func isHexDigit(c rune) bool {
	if isDigit(c) {
		return true
	}
	c &^= 0x20
	return c >= 'A' && c <= 'F'
}

func isIdStart(c rune) bool {
	if c == '_' {
		return true
	}
	c &^= 0x20
	return c >= 'A' && c <= 'Z'
}

func isIdRest(c rune) bool {
	return isIdStart(c) || isDigit(c)
}

func (l *Lexer) makeToken(typ TokenType, n int) Token {
	if n <= 0 || n > len(l.input) {
		panic("Lexer::makeToken: length out of range")
	}
	t := Token{Type: typ, Value: l.input[:n], Pos: l.pos()}
	l.advance(n)
	return t
}

func (l *Lexer) identifier() Token {
	i := 1
	for ; isIdRest(l.at(i)); i++ {
	}
	t := l.makeToken(T_ID, i)
	switch t.Value {
	case newfileMarker:
		rest := l.input
		if j := strings.IndexByte(rest, '\n'); j >= 0 {
			rest = rest[:j]
		}
		l.advance(len(rest))
		t.Type = T_NEWFILE
		t.Value = strings.TrimSpace(rest)
		l.filename = t.Value
		// The marker occupies the line before line 1.
		l.lineno = 0
	case beginErrorsMarker:
		t.Type = T_BEGIN_ERRORS
	case endErrorsMarker:
		t.Type = T_END_ERRORS
	default:
		if kw, ok := keywords[t.Value]; ok {
			t.Type = kw
		}
	}
	return t
}

// Decimal (optionally negative), octal with a leading 0, or hex with
// a leading 0x.
func (l *Lexer) integer() (Token, bool) {
	i, c := 0, l.at(0)
	if c == '-' {
		i, c = 1, l.at(1)
	}
	if !isDigit(c) {
		return Token{}, false
	}
	switch {
	case i == 0 && c == '0' && l.at(1)|0x20 == 'x' && isHexDigit(l.at(2)):
		for i = 2; isHexDigit(l.at(i)); i++ {
		}
	case i == 0 && c == '0' && isOctDigit(l.at(1)):
		for i = 1; isOctDigit(l.at(i)); i++ {
		}
	case c == '0':
		i++
	default:
		for i++; isDigit(l.at(i)); i++ {
		}
	}
	return l.makeToken(T_NUM, i), true
}

// Return the next token; T_EOF at the end of input.
func (l *Lexer) Next() Token {
	for {
		l.skipSpace()
		switch c := l.at(0); {
		case c == eofRune:
			return Token{Type: T_EOF, Pos: l.pos()}
		case strings.ContainsRune("(){}[]<>;*=,", c):
			return l.makeToken(TokenType(c), 1)
		case isIdStart(c):
			return l.identifier()
		case isDigit(c) || c == '-':
			if t, ok := l.integer(); ok {
				return t
			}
			fallthrough
		default:
			pos := l.pos()
			l.advance(1)
			l.report(ParseError{
				Class: LexError,
				Pos:   pos,
				Msg:   fmt.Sprintf("illegal character %q", c),
			})
		}
	}
}

// Tokenize all of the input.
func (l *Lexer) All() []Token {
	var ret []Token
	for {
		t := l.Next()
		ret = append(ret, t)
		if t.Type == T_EOF {
			return ret
		}
	}
}
