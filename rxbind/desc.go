// Package rxbind is the dynamic-object runtime for rxgen bindings.
//
// A binding is a table of descriptors: one StructDesc per struct and
// one ProcDesc per procedure, each carrying its decode plan.  Values
// are held in Objects.  A fixed-size struct keeps its raw XDR layout
// and materializes members from it on first access; assigned and
// materialized members are cached and folded back into the layout by
// Premarshal before encoding.  Scalars are int64 (signed) or uint64
// (unsigned), blobs are string or []byte, and arrays are *List.
package rxbind

import (
	"fmt"

	"github.com/xdrpp/rxgen/rxrpc"
)

// Shape of a field.
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

type FieldDesc struct {
	Name   string
	Kind   Kind
	Signed bool // scalars and scalar elements
	Text   bool // Blob: string rather than opaque

	// Struct: the member type.  FixedArray and Bulk: the element
	// type when Elem is Struct.
	Struct *StructDesc

	Elem     Kind   // FixedArray and Bulk
	ElemSize uint32 // FixedArray and Bulk
	Dim      uint32 // FixedArray

	Max     uint32 // Blob and Bulk, when Bounded
	Bounded bool

	Offset uint32 // within the parent's raw layout, when fixed-size
	Size   uint32 // wire size; 0 for Blob and Bulk
}

// The element of an array field as a field of its own.
func (f *FieldDesc) elem() *FieldDesc {
	return &FieldDesc{
		Name:   f.Name,
		Kind:   f.Elem,
		Signed: f.Signed,
		Struct: f.Struct,
		Size:   f.ElemSize,
	}
}

type StructDesc struct {
	Name    string
	Size    uint32 // wire size when not Dynamic
	Dynamic bool
	Fields  []*FieldDesc
	Plan    *Plan
}

func (d *StructDesc) Field(name string) (int, *FieldDesc) {
	for i, f := range d.Fields {
		if f.Name == name {
			return i, f
		}
	}
	return -1, nil
}

type Form int

const (
	Flat Form = iota + 1
	BlobPhase
	BulkPhase
	SplitPhase
	DonePhase
)

func (f Form) String() string {
	switch f {
	case Flat:
		return "flat"
	case BlobPhase:
		return "blob"
	case BulkPhase:
		return "bulk"
	case SplitPhase:
		return "split"
	case DonePhase:
		return "done"
	}
	return fmt.Sprintf("Form(%d)", int(f))
}

// One field decoded by a flat phase.  With Count set, the step reads
// the count word that precedes the payload of Field.
type Step struct {
	Field int
	Count bool
}

type PhaseDesc struct {
	Form   Form
	Size   uint32
	Steps  []Step // Flat
	Target int    // BlobPhase and BulkPhase: index of the payload field
}

type Plan struct {
	Phases []PhaseDesc
	Chunk  uint32
}

type ProcDesc struct {
	Name   string
	Opcode uint32
	Split  bool
	Multi  bool

	// Parameters as fields, with plans for decoding each direction.
	// The request plan puts a split transfer last, the response plan
	// first.
	Request, Response *StructDesc
}

func (p *ProcDesc) NewRequest() *Object {
	return New(p.Request)
}

func (p *ProcDesc) NewResponse() *Object {
	return New(p.Response)
}

func (p *ProcDesc) encode(o *Object, opcode bool) ([]byte, error) {
	body, err := Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	} else if !opcode {
		return body, nil
	}
	e := rxrpc.NewEncoder()
	e.U32(p.Opcode)
	e.Write(body)
	return e.Bytes(), nil
}

// Serialize a request: the opcode, then the IN and INOUT parameters.
// Bound violations fail with rxrpc.ErrInvalid before anything is
// encoded.
func (p *ProcDesc) EncodeRequest(req *Object) ([]byte, error) {
	return p.encode(req, true)
}

func (p *ProcDesc) EncodeResponse(resp *Object) ([]byte, error) {
	return p.encode(resp, false)
}

// A decoder for the response, for use on the client side.
func (p *ProcDesc) ResponseDecoder(resp *Object) *Decoder {
	return &Decoder{Obj: resp}
}

// A decoder for the request after the opcode, for the server side.
func (p *ProcDesc) RequestDecoder(req *Object) *Decoder {
	return &Decoder{Obj: req}
}

// Everything one binding defines.
type Module struct {
	Name      string
	Structs   map[string]*StructDesc
	Procs     map[string]*ProcDesc
	Constants map[string]int64
	Aborts    rxrpc.AbortTable

	// Constructors for the structs reachable from some procedure.
	New map[string]func() *Object
}

func (m *Module) Proc(name string) (*ProcDesc, error) {
	if p, ok := m.Procs[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%s: no procedure %s", m.Name, name)
}

func (m *Module) Make(name string) (*Object, error) {
	if mk, ok := m.New[name]; ok {
		return mk(), nil
	}
	return nil, fmt.Errorf("%s: no constructor for %s", m.Name, name)
}
