// Parser for the INI dialect of rxgen configuration files.
//
// The dialect follows git-config: "[section]" headers, "key = value"
// lines, '#' and ';' comments, and double-quoted values with \n, \t,
// \b, \" and \\ escapes.  A key with no '=' has a nil value.
package ini

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"strings"
)

const tabwidth = 8
const eofRune rune = -1

// A section header.  A nil *Section is the part of the file before
// the first header.
type Section struct {
	Name string
}

func (s *Section) String() string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("[%s]", s.Name)
}

// True if both are nil or both name the same section.
func (s *Section) Eq(s2 *Section) bool {
	if s == nil || s2 == nil {
		return s == s2
	}
	return s.Name == s2.Name
}

// Valid section names and keys start with a letter and continue with
// letters, digits, and '-'.
func ValidName(s string) bool {
	return s != "" && isAlpha(rune(s[0])) &&
		strings.IndexFunc(s, func(r rune) bool { return !isKeyChar(r) }) < 0
}

// One key in the file.
type Item struct {
	*Section
	Key   string
	Value *string
	Line  int
}

// Value, or "" if there is none.
func (it *Item) Val() string {
	if it.Value == nil {
		return ""
	}
	return *it.Value
}

// section.key, or just key outside any section.
func (it *Item) QKey() string {
	if it.Section == nil {
		return it.Key
	}
	return it.Section.Name + "." + it.Key
}

// Receives parsed items.  A sink may also have a
// StartSection(*Section) error method, called at each header, and a
// Done() method, called at the end of the file.
type Sink interface {
	Item(Item) error
}

// Returned by a sink to blame the key rather than the value.
type BadKey string

func (err BadKey) Error() string {
	return string(err)
}

type BadValue string

func (err BadValue) Error() string {
	return string(err)
}

type ParseError struct {
	File          string
	Lineno, Colno int
	Msg           string
}

func (err ParseError) Error() string {
	if err.File == "" {
		return fmt.Sprintf("%d:%d: %s", err.Lineno, err.Colno, err.Msg)
	}
	return fmt.Sprintf("%s:%d:%d: %s", err.File, err.Lineno, err.Colno,
		err.Msg)
}

// Every error found in one file.
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

type position struct {
	index, lineno, colno int
}

type parser struct {
	position
	input   []byte
	file    string
	sec     *Section
	sink    Sink
	section func(*Section) error
}

func (l *parser) throwAt(pos position, msg string) {
	panic(ParseError{
		File:   l.file,
		Lineno: pos.lineno + 1,
		Colno:  pos.colno + 1,
		Msg:    msg,
	})
}

func (l *parser) throw(msg string, args ...interface{}) {
	l.throwAt(l.position, fmt.Sprintf(msg, args...))
}

func (l *parser) peek() rune {
	return l.at(0)
}

func (l *parser) at(n int) rune {
	n += l.index
	if n >= len(l.input) || n < 0 {
		return eofRune
	}
	return rune(l.input[n])
}

func (l *parser) remaining() int {
	return len(l.input) - l.index
}

func (l *parser) skip(n int) {
	if n < 0 || n > l.remaining() {
		n = l.remaining()
	}
	stop := l.index + n
	for ; l.index < stop; l.index++ {
		switch l.input[l.index] {
		case '\n':
			l.lineno++
			l.colno = 0
		case '\t':
			l.colno += tabwidth - l.colno%tabwidth
		default:
			l.colno++
		}
	}
}

func (l *parser) match(text string) bool {
	if bytes.HasPrefix(l.input[l.index:], []byte(text)) {
		l.skip(len(text))
		return true
	}
	return false
}

// Skip to the next newline, or to EOF if there is none.
func (l *parser) skipLine() {
	if i := bytes.IndexByte(l.input[l.index:], '\n'); i >= 0 {
		l.skip(i)
	} else {
		l.skip(l.remaining())
	}
}

func (l *parser) takeWhile(fn func(rune) bool) string {
	i := l.index
	for l.index < len(l.input) && fn(l.peek()) {
		l.skip(1)
	}
	return string(l.input[i:l.index])
}

func (l *parser) skipWS() bool {
	return l.takeWhile(func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\r'
	}) != ""
}

func isAlpha(c rune) bool {
	c &^= 0x20
	return c >= 'A' && c <= 'Z'
}

func isKeyChar(c rune) bool {
	return isAlpha(c) || (c >= '0' && c <= '9') || c == '-'
}

func (l *parser) header() *Section {
	if !l.match("[") {
		return nil
	}
	name := l.takeWhile(isKeyChar)
	if name == "" {
		l.throw("expected section name after '['")
	}
	if !l.match("]") {
		l.throw("expected ']'")
	}
	return &Section{Name: name}
}

// Quote a value if reading it back would otherwise change it.
func Escape(val string) string {
	quote := val != "" && (val[0] == ' ' || val[0] == '\t' ||
		val[len(val)-1] == ' ')
	for _, c := range []byte(val) {
		if c < ' ' || c >= 0x7f || strings.IndexByte("\"#;\\", c) >= 0 {
			quote = true
		}
	}
	if !quote {
		return val
	}
	ret := strings.Builder{}
	ret.WriteByte('"')
	for _, b := range []byte(val) {
		switch b {
		case '"', '\\':
			ret.WriteByte('\\')
			ret.WriteByte(b)
		case '\b':
			ret.WriteString("\\b")
		case '\n':
			ret.WriteString("\\n")
		case '\t':
			ret.WriteString("\\t")
		default:
			ret.WriteByte(b)
		}
	}
	ret.WriteByte('"')
	return ret.String()
}

func (l *parser) value() string {
	ret := strings.Builder{}
	inquote := false
	// Unquoted trailing blanks are not part of the value.
	keep := 0
	for {
		c := l.peek()
		switch {
		case c == '\\':
			l.skip(1)
			switch e := l.peek(); e {
			case '"', '\\':
				ret.WriteByte(byte(e))
			case 'n':
				ret.WriteByte('\n')
			case 't':
				ret.WriteByte('\t')
			case 'b':
				ret.WriteByte('\b')
			case '\n':
			case eofRune:
				l.throw("incomplete escape sequence at EOF")
			default:
				l.throw("invalid escape sequence \\%c", e)
			}
			keep = ret.Len()
		case c == '"':
			inquote = !inquote
			keep = ret.Len()
		case c == '\n' || c == eofRune:
			if inquote {
				l.throw("missing close quotes")
			}
			l.skip(1)
			return ret.String()[:keep]
		case !inquote && (c == '#' || c == ';'):
			l.skipLine()
			continue
		case c == '\r' && l.at(1) == '\n':
		default:
			ret.WriteByte(byte(c))
			if inquote || (c != ' ' && c != '\t') {
				keep = ret.Len()
			}
		}
		l.skip(1)
	}
}

// Parse one line.
func (l *parser) line() (err *ParseError) {
	defer func() {
		if i := recover(); i != nil {
			pe, ok := i.(ParseError)
			if !ok {
				panic(i)
			}
			err = &pe
			l.skipLine()
			l.skip(1)
		}
	}()
	l.skipWS()
	keypos := l.position
	if sec := l.header(); sec != nil {
		l.skipWS()
		if c := l.peek(); c != '\n' && c != '#' && c != ';' && c != eofRune {
			l.throw("junk after section header")
		}
		l.skipLine()
		l.skip(1)
		l.sec = sec
		if err := l.section(sec); err != nil {
			l.throwAt(keypos, err.Error())
		}
	} else if isAlpha(l.peek()) {
		k := l.takeWhile(isKeyChar)
		l.skipWS()
		var v *string
		var valpos position
		if !l.match("=") {
			if c := l.peek(); c != '\n' && c != '#' && c != ';' &&
				c != eofRune {
				l.throw("expected '=' after %s", k)
			}
			valpos = l.position
			l.skipLine()
			l.skip(1)
		} else {
			l.skipWS()
			valpos = l.position
			val := l.value()
			v = &val
		}
		err := l.sink.Item(Item{
			Section: l.sec,
			Key:     k,
			Value:   v,
			Line:    keypos.lineno + 1,
		})
		if ke, ok := err.(BadKey); ok {
			l.throwAt(keypos, string(ke))
		} else if err != nil {
			l.throwAt(valpos, err.Error())
		}
	} else if c := l.peek(); c == '#' || c == ';' || c == '\n' || c == '\r' {
		l.skipLine()
		l.skip(1)
	} else if c != eofRune {
		l.throw("expected section or key")
	}
	return
}

// Parse INI text into sink.  filename is used only in errors, which
// are of type ParseErrors.
func Parse(sink Sink, filename string, contents []byte) error {
	l := &parser{input: contents, file: filename, sink: sink}
	if ss, ok := sink.(interface{ StartSection(*Section) error }); ok {
		l.section = ss.StartSection
	} else {
		l.section = func(*Section) error { return nil }
	}
	var errs ParseErrors
	for l.remaining() > 0 {
		if e := l.line(); e != nil {
			errs = append(errs, *e)
		}
	}
	if done, ok := sink.(interface{ Done() }); ok {
		done.Done()
	}
	if errs != nil {
		return errs
	}
	return nil
}

// Read and parse an INI file.
func ParseFile(sink Sink, filename string) error {
	contents, err := ioutil.ReadFile(filename)
	if err != nil {
		return err
	}
	return Parse(sink, filename, contents)
}
