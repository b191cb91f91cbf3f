package idl

import (
	"fmt"
	"strings"
)

// Class of a diagnostic produced while reading IDL input.
type Class int

const (
	LexError Class = iota
	SyntaxError
	SemanticError
)

func (c Class) String() string {
	switch c {
	case LexError:
		return "lex error"
	case SyntaxError:
		return "syntax error"
	case SemanticError:
		return "semantic error"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Position of a token in the (preprocessed) input.  Line numbers of
// the preprocessed text match the original source file.
type Pos struct {
	File          string
	Lineno, Colno int
}

func (p Pos) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Lineno, p.Colno)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Lineno, p.Colno)
}

// A single diagnostic.
type ParseError struct {
	Class Class
	Pos
	Msg string
}

func (err ParseError) Error() string {
	return fmt.Sprintf("%s: %s", err.Pos.String(), err.Msg)
}

// All diagnostics recorded for one compilation unit, in the order
// they were found.
type ParseErrors []ParseError

func (err ParseErrors) Error() string {
	ret := &strings.Builder{}
	for i, e := range err {
		if i != 0 {
			ret.WriteByte('\n')
		}
		ret.WriteString(e.Error())
	}
	return ret.String()
}

// Count the diagnostics of class c.
func (err ParseErrors) Count(c Class) int {
	n := 0
	for i := range err {
		if err[i].Class == c {
			n++
		}
	}
	return n
}

// Returned by Registry.GetType when a name is neither a type nor an
// alias.
type UndefinedType string

func (err UndefinedType) Error() string {
	return fmt.Sprintf("undefined type %s", string(err))
}
