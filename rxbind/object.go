package rxbind

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xdrpp/goxdr/xdr"
	"github.com/xdrpp/rxgen/rxrpc"
)

// An ordered collection, the value of fixed and bulk array fields.
type List struct {
	Items []interface{}
}

func NewList(items ...interface{}) *List {
	return &List{Items: items}
}

func (l *List) Len() int {
	return len(l.Items)
}

func (l *List) Index(i int) interface{} {
	return l.Items[i]
}

func (l *List) Append(v interface{}) {
	l.Items = append(l.Items, v)
}

// A struct value or a parameter set.
type Object struct {
	Desc  *StructDesc
	raw   []byte // XDR layout of a fixed-size struct; nil if Dynamic
	cache map[string]interface{}
}

// A zero-valued object.
func New(d *StructDesc) *Object {
	o := &Object{Desc: d, cache: map[string]interface{}{}}
	if !d.Dynamic {
		o.raw = make([]byte, d.Size)
	}
	return o
}

// An object over an existing raw layout, which it shares.
func view(d *StructDesc, raw []byte) *Object {
	return &Object{Desc: d, raw: raw, cache: map[string]interface{}{}}
}

// Get a member, materializing it from the raw layout on first access.
func (o *Object) Get(name string) (interface{}, error) {
	if v, ok := o.cache[name]; ok {
		return v, nil
	}
	_, f := o.Desc.Field(name)
	if f == nil {
		return nil, fmt.Errorf("%s has no member %s", o.Desc.Name, name)
	}
	var v interface{}
	if o.raw != nil {
		v = materialize(f, o.raw[f.Offset:f.Offset+f.Size])
	} else {
		v = zero(f)
	}
	o.cache[name] = v
	return v, nil
}

// Get for callers that know the member exists.
func (o *Object) MustGet(name string) interface{} {
	v, err := o.Get(name)
	if err != nil {
		panic(err)
	}
	return v
}

// Assign a member.  Integers of any Go type are accepted for scalar
// members and normalized to int64 or uint64.
func (o *Object) Set(name string, v interface{}) error {
	_, f := o.Desc.Field(name)
	if f == nil {
		return fmt.Errorf("%s has no member %s", o.Desc.Name, name)
	}
	nv, err := normalize(f, v)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", o.Desc.Name, name, err)
	}
	o.cache[name] = nv
	return nil
}

// Fold cached members back into the raw layout.
func (o *Object) Premarshal() error {
	for _, f := range o.Desc.Fields {
		v, ok := o.cache[f.Name]
		if !ok {
			continue
		}
		if o.raw == nil {
			if err := premarshalValue(v); err != nil {
				return err
			}
			continue
		}
		if err := fold(f, o.raw[f.Offset:f.Offset+f.Size], v); err != nil {
			return fmt.Errorf("%s.%s: %w", o.Desc.Name, f.Name, err)
		}
	}
	return nil
}

// The raw XDR layout of a fixed-size struct, after Premarshal.
func (o *Object) Raw() ([]byte, error) {
	if o.raw == nil {
		return nil, fmt.Errorf("%s has no fixed layout", o.Desc.Name)
	}
	if err := o.Premarshal(); err != nil {
		return nil, err
	}
	return o.raw, nil
}

// Write the object's encoding.
func (o *Object) Encode(e *rxrpc.Encoder) error {
	if o.raw != nil {
		raw, err := o.Raw()
		if err != nil {
			return err
		}
		e.Write(raw)
		return nil
	}
	for _, f := range o.Desc.Fields {
		v, err := o.Get(f.Name)
		if err != nil {
			return err
		}
		if err = encodeValue(e, f, v); err != nil {
			return fmt.Errorf("%s.%s: %w", o.Desc.Name, f.Name, err)
		}
	}
	return nil
}

func (o *Object) String() string {
	out := &strings.Builder{}
	fmt.Fprintf(out, "%s{", o.Desc.Name)
	for i, f := range o.Desc.Fields {
		if i > 0 {
			out.WriteString(", ")
		}
		v, _ := o.Get(f.Name)
		fmt.Fprintf(out, "%s: %v", f.Name, v)
	}
	out.WriteString("}")
	return out.String()
}

func (l *List) String() string {
	return fmt.Sprint(l.Items)
}

func zero(f *FieldDesc) interface{} {
	switch f.Kind {
	case Scalar32, Scalar64:
		if f.Signed {
			return int64(0)
		}
		return uint64(0)
	case Struct:
		return New(f.Struct)
	case FixedArray:
		l := &List{Items: make([]interface{}, f.Dim)}
		e := f.elem()
		for i := range l.Items {
			l.Items[i] = zero(e)
		}
		return l
	case Blob:
		if f.Text {
			return ""
		}
		return []byte{}
	case Bulk:
		return &List{}
	}
	panic(fmt.Sprintf("rxbind: bad kind %s", f.Kind))
}

// Decode a fixed-size member from its slice of a raw layout.  Struct
// members and struct elements become views sharing raw.
func materialize(f *FieldDesc, raw []byte) interface{} {
	switch f.Kind {
	case Scalar32, Scalar64:
		return readScalar(f, raw)
	case Struct:
		return view(f.Struct, raw)
	case FixedArray:
		e := f.elem()
		l := &List{Items: make([]interface{}, f.Dim)}
		for i := range l.Items {
			off := uint32(i) * e.Size
			l.Items[i] = materialize(e, raw[off:off+e.Size])
		}
		return l
	}
	panic(fmt.Sprintf("rxbind: cannot materialize %s", f.Kind))
}

func readScalar(f *FieldDesc, raw []byte) interface{} {
	in := &xdr.XdrIn{In: bytes.NewReader(raw)}
	switch {
	case f.Kind == Scalar32 && f.Signed:
		var v int32
		in.Marshal(f.Name, xdr.XDR_int32(&v))
		return int64(v)
	case f.Kind == Scalar32:
		var v uint32
		in.Marshal(f.Name, xdr.XDR_uint32(&v))
		return uint64(v)
	case f.Signed:
		var v int64
		in.Marshal(f.Name, xdr.XDR_int64(&v))
		return v
	default:
		var v uint64
		in.Marshal(f.Name, xdr.XDR_uint64(&v))
		return v
	}
}

// Write a fixed-size value into its slice of a raw layout.
func fold(f *FieldDesc, dst []byte, v interface{}) error {
	switch f.Kind {
	case Scalar32, Scalar64:
		e := rxrpc.NewEncoder()
		if err := encodeValue(e, f, v); err != nil {
			return err
		}
		copy(dst, e.Bytes())
	case Struct:
		sub := v.(*Object)
		raw, err := sub.Raw()
		if err != nil {
			return err
		}
		copy(dst, raw)
	case FixedArray:
		l := v.(*List)
		if uint32(l.Len()) != f.Dim {
			return fmt.Errorf("array has %d elements, want %d", l.Len(), f.Dim)
		}
		e := f.elem()
		for i, item := range l.Items {
			off := uint32(i) * e.Size
			if err := fold(e, dst[off:off+e.Size], item); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("cannot fold %s into a fixed layout", f.Kind)
	}
	return nil
}

func premarshalValue(v interface{}) error {
	switch x := v.(type) {
	case *Object:
		return x.Premarshal()
	case *List:
		for _, item := range x.Items {
			if err := premarshalValue(item); err != nil {
				return err
			}
		}
	}
	return nil
}
