package idl

import (
	"fmt"
	"strconv"
)

// Basic representation of a type on the wire.
type Basic int

const (
	INT32 Basic = iota
	INT64
	STRING
	OPAQUE
	STRUCT
)

func (b Basic) String() string {
	switch b {
	case INT32:
		return "int32"
	case INT64:
		return "int64"
	case STRING:
		return "string"
	case OPAQUE:
		return "opaque"
	case STRUCT:
		return "struct"
	}
	return fmt.Sprintf("Basic(%d)", int(b))
}

// How many values of the base type a declaration holds.
type Cardinality int

const (
	SINGLE Cardinality = iota
	FIXED              // T x[N]
	BULK               // T x<N>, T x<>, T<N> *x
)

// Shape of a type as seen by the emitters.  Every type maps to
// exactly one Kind, and the emitters switch over all of them.
type Kind int

const (
	Scalar32 Kind = iota
	Scalar64
	Struct
	FixedArray
	Blob
	Bulk
)

func (k Kind) String() string {
	switch k {
	case Scalar32:
		return "Scalar32"
	case Scalar64:
		return "Scalar64"
	case Struct:
		return "Struct"
	case FixedArray:
		return "FixedArray"
	case Blob:
		return "Blob"
	case Bulk:
		return "Bulk"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// A named or literal integer constant.  Literal constants have an
// empty Name.
type Constant struct {
	Name  string
	Value int64
	Text  string // source spelling of a literal, or the referenced name
	Pos   Pos
}

// The Go expression for a constant: its name when it has one.
func (c *Constant) Expr() string {
	if c.Name != "" {
		return c.Name
	}
	return strconv.FormatInt(c.Value, 10)
}

func (c *Constant) String() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Text
}

// A struct member, procedure parameter, or planner-synthesized count
// word.
type Member struct {
	Name string
	Type *Type
	Pos  Pos

	// Non-nil for the 4-byte count the planner inserts ahead of a
	// blob or bulk payload; points at the payload member.
	CountOf *Member
}

// A type.  Types are never mutated once registered; applying [N] or
// <N> to a type produces a new Type that shares the base's name,
// basic representation, and members.
type Type struct {
	Name    string // int32_t, string, struct name, enum name
	Basic   Basic
	Signed  bool
	Card    Cardinality
	Dim     *Constant // FIXED only
	Max     *Constant // BULK or blob bound; nil means unbounded
	Members []*Member // STRUCT only

	// Encoded size in bytes; nil means the size depends on the
	// value (blobs, bulk arrays, structs containing either).
	XdrSize *uint32

	Elem *Type // element type of FIXED and BULK
	Enum bool
	Pos  Pos
}

func sizeOf(n uint32) *uint32 {
	return &n
}

// The wire size and whether it is statically known.
func (t *Type) FixedSize() (uint32, bool) {
	if t.XdrSize == nil {
		return 0, false
	}
	return *t.XdrSize, true
}

func (t *Type) Kind() Kind {
	switch t.Card {
	case FIXED:
		return FixedArray
	case BULK:
		return Bulk
	}
	switch t.Basic {
	case INT32:
		return Scalar32
	case INT64:
		return Scalar64
	case STRING, OPAQUE:
		return Blob
	}
	return Struct
}

func (t *Type) IsBlobBase() bool {
	return t.Basic == STRING || t.Basic == OPAQUE
}

func (t *Type) IsInt() bool {
	return t.Basic == INT32 || t.Basic == INT64
}

// The single-valued type an array or bulk type is made of, or t
// itself.
func (t *Type) Base() *Type {
	if t.Elem != nil {
		return t.Elem
	}
	return t
}

func (t *Type) String() string {
	switch t.Kind() {
	case FixedArray:
		return fmt.Sprintf("%s[%s]", t.Name, t.Dim)
	case Bulk, Blob:
		if t.Max != nil {
			return fmt.Sprintf("%s<%s>", t.Name, t.Max)
		}
		return t.Name + "<>"
	}
	return t.Name
}

// A type alias introduced by typedef.
type Alias struct {
	Name string
	Type *Type
	Pos  Pos
}

type basicType struct {
	name   string
	basic  Basic
	signed bool
	size   uint32
}

var basicTypes = []basicType{
	{"char", INT32, true, 4},
	{"int8_t", INT32, true, 4},
	{"int16_t", INT32, true, 4},
	{"int32_t", INT32, true, 4},
	{"int64_t", INT64, true, 8},
	{"uint8_t", INT32, false, 4},
	{"uint16_t", INT32, false, 4},
	{"uint32_t", INT32, false, 4},
	{"uint64_t", INT64, false, 8},
	{"string", STRING, false, 4},
	{"opaque", OPAQUE, false, 4},
}

func newBasicType(b basicType) *Type {
	t := &Type{Name: b.name, Basic: b.basic, Signed: b.signed}
	if !t.IsBlobBase() {
		t.XdrSize = sizeOf(b.size)
	}
	return t
}

// A fresh uint32_t, the type of planner-synthesized count words.
func CountType() *Type {
	return newBasicType(basicType{"uint32_t", INT32, false, 4})
}
