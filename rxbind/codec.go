package rxbind

import (
	"fmt"
	"io"
	"math"

	"github.com/xdrpp/goxdr/xdr"
	"github.com/xdrpp/rxgen/rxrpc"
)

func toInt(v interface{}) (i int64, u uint64, neg bool, ok bool) {
	switch x := v.(type) {
	case int:
		i = int64(x)
	case int8:
		i = int64(x)
	case int16:
		i = int64(x)
	case int32:
		i = int64(x)
	case int64:
		i = x
	case uint:
		return 0, uint64(x), false, true
	case uint8:
		return 0, uint64(x), false, true
	case uint16:
		return 0, uint64(x), false, true
	case uint32:
		return 0, uint64(x), false, true
	case uint64:
		return 0, x, false, true
	default:
		return 0, 0, false, false
	}
	if i < 0 {
		return i, 0, true, true
	}
	return i, uint64(i), false, true
}

func normalizeScalar(f *FieldDesc, v interface{}) (interface{}, error) {
	i, u, neg, ok := toInt(v)
	if !ok {
		return nil, fmt.Errorf("%T is not an integer", v)
	}
	switch {
	case f.Kind == Scalar32 && f.Signed:
		if neg && i < math.MinInt32 || !neg && u > math.MaxInt32 {
			return nil, fmt.Errorf("%v overflows int32", v)
		} else if neg {
			return i, nil
		}
		return int64(u), nil
	case f.Kind == Scalar32:
		if neg || u > math.MaxUint32 {
			return nil, fmt.Errorf("%v overflows uint32", v)
		}
		return u, nil
	case f.Signed:
		if !neg && u > math.MaxInt64 {
			return nil, fmt.Errorf("%v overflows int64", v)
		}
		if neg {
			return i, nil
		}
		return int64(u), nil
	default:
		if neg {
			return nil, fmt.Errorf("%v overflows uint64", v)
		}
		return u, nil
	}
}

// Check v against the shape of f and convert it to the canonical Go
// representation.
func normalize(f *FieldDesc, v interface{}) (interface{}, error) {
	switch f.Kind {
	case Scalar32, Scalar64:
		return normalizeScalar(f, v)
	case Struct:
		o, ok := v.(*Object)
		if !ok || o.Desc != f.Struct {
			return nil, fmt.Errorf("want %s, got %T", f.Struct.Name, v)
		}
		return o, nil
	case FixedArray, Bulk:
		l, ok := v.(*List)
		if !ok {
			return nil, fmt.Errorf("want *List, got %T", v)
		}
		if f.Kind == FixedArray && uint32(l.Len()) != f.Dim {
			return nil, fmt.Errorf("array has %d elements, want %d",
				l.Len(), f.Dim)
		}
		e := f.elem()
		ret := &List{Items: make([]interface{}, l.Len())}
		for i, item := range l.Items {
			n, err := normalize(e, item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			ret.Items[i] = n
		}
		return ret, nil
	case Blob:
		switch x := v.(type) {
		case string:
			if f.Text {
				return x, nil
			}
			return []byte(x), nil
		case []byte:
			if f.Text {
				return string(x), nil
			}
			return x, nil
		}
		return nil, fmt.Errorf("want string or []byte, got %T", v)
	}
	return nil, fmt.Errorf("bad kind %s", f.Kind)
}

func encodeValue(e *rxrpc.Encoder, f *FieldDesc, v interface{}) error {
	switch f.Kind {
	case Scalar32, Scalar64:
		n, err := normalizeScalar(f, v)
		if err != nil {
			return err
		}
		switch {
		case f.Kind == Scalar32 && f.Signed:
			e.I32(int32(n.(int64)))
		case f.Kind == Scalar32:
			e.U32(uint32(n.(uint64)))
		case f.Signed:
			e.I64(n.(int64))
		default:
			e.U64(n.(uint64))
		}
	case Struct:
		o, ok := v.(*Object)
		if !ok {
			return fmt.Errorf("want %s, got %T", f.Struct.Name, v)
		}
		return o.Encode(e)
	case FixedArray, Bulk:
		l, ok := v.(*List)
		if !ok {
			return fmt.Errorf("want *List, got %T", v)
		}
		if f.Kind == FixedArray {
			if uint32(l.Len()) != f.Dim {
				return fmt.Errorf("array has %d elements, want %d",
					l.Len(), f.Dim)
			}
		} else {
			e.U32(uint32(l.Len()))
		}
		el := f.elem()
		for i, item := range l.Items {
			if err := encodeValue(e, el, item); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
	case Blob:
		switch x := v.(type) {
		case string:
			e.Text(x)
		case []byte:
			e.Opaque(x)
		default:
			return fmt.Errorf("want string or []byte, got %T", v)
		}
	default:
		return fmt.Errorf("bad kind %s", f.Kind)
	}
	return nil
}

func length(v interface{}) uint32 {
	switch x := v.(type) {
	case string:
		return uint32(len(x))
	case []byte:
		return uint32(len(x))
	case *List:
		return uint32(x.Len())
	}
	return 0
}

// Check every bounded blob and bulk member of o.
func checkBounds(o *Object) error {
	for _, f := range o.Desc.Fields {
		if !f.Bounded || (f.Kind != Blob && f.Kind != Bulk) {
			continue
		}
		v, err := o.Get(f.Name)
		if err != nil {
			return err
		}
		if err = rxrpc.CheckBound(f.Name, length(v), f.Max); err != nil {
			return err
		}
	}
	return nil
}

// Decode a fixed-size value.  The caller has checked that f.Size bytes
// are available.
func decodeFixed(c *rxrpc.Call, f *FieldDesc) interface{} {
	switch f.Kind {
	case Scalar32:
		if f.Signed {
			return int64(c.I32())
		}
		return uint64(c.U32())
	case Scalar64:
		if f.Signed {
			return c.I64()
		}
		return c.U64()
	case Struct:
		o := New(f.Struct)
		if _, err := io.ReadFull(c, o.raw); err != nil {
			xdr.XdrPanic("%s: %s", f.Name, err)
		}
		return o
	case FixedArray:
		e := f.elem()
		l := &List{Items: make([]interface{}, f.Dim)}
		for i := range l.Items {
			l.Items[i] = decodeFixed(c, e)
		}
		return l
	}
	xdr.XdrPanic("%s: %s is not fixed-size", f.Name, f.Kind)
	return nil
}

// Decoder interprets a decode plan, filling in Obj.  It implements
// rxrpc.Decoder, and like generated decoders keeps all progress in the
// Call.
type Decoder struct {
	Obj *Object

	// Supplies the buffer for a blob payload; nil means allocate.
	Alloc func(field string, n uint32) ([]byte, error)
}

func (d *Decoder) start(f *FieldDesc, n uint32) error {
	switch f.Kind {
	case Blob:
		var alloc func(uint32) ([]byte, error)
		if d.Alloc != nil {
			alloc = func(n uint32) ([]byte, error) { return d.Alloc(f.Name, n) }
		}
		buf, err := rxrpc.Alloc(alloc, n)
		if err != nil {
			return err
		}
		d.Obj.cache[f.Name] = buf
	case Bulk:
		d.Obj.cache[f.Name] = &List{
			Items: make([]interface{}, 0, rxrpc.BulkCap(n)),
		}
	}
	return nil
}

func (d *Decoder) Decode(c *rxrpc.Call) (st rxrpc.Status) {
	defer rxrpc.Catch(&st)
	desc := d.Obj.Desc
	pl := desc.Plan
	for {
		if c.Phase == 0 {
			if pl.Chunk != 0 {
				c.Chunk = pl.Chunk
			}
			c.Enter(1)
			continue
		} else if c.Phase > len(pl.Phases) {
			return rxrpc.Fail(fmt.Errorf("%s: bad phase %d", desc.Name, c.Phase))
		}
		ph := &pl.Phases[c.Phase-1]
		next := c.Phase + 1
		switch ph.Form {
		case Flat:
			if !c.Has(ph.Size) {
				return rxrpc.Need(ph.Size)
			}
			for _, s := range ph.Steps {
				f := desc.Fields[s.Field]
				if !s.Count {
					d.Obj.cache[f.Name] = decodeFixed(c, f)
					continue
				}
				n := c.U32()
				if f.Bounded {
					if err := rxrpc.CheckBound(f.Name, n, f.Max); err != nil {
						return rxrpc.Fail(err)
					}
				}
				c.Begin(n)
				if n == 0 {
					// The payload phase follows directly; skip it.
					d.Obj.cache[f.Name] = zero(f)
					next++
				} else if err := d.start(f, n); err != nil {
					return rxrpc.Fail(err)
				}
			}
			c.Enter(next)
		case BlobPhase:
			f := desc.Fields[ph.Target]
			buf := d.Obj.cache[f.Name].([]byte)
			if !c.ReadBlob(buf) {
				return rxrpc.Need(c.BlobNeed())
			}
			if f.Text {
				d.Obj.cache[f.Name] = string(buf)
			}
			c.Enter(next)
		case BulkPhase:
			f := desc.Fields[ph.Target]
			l := d.Obj.cache[f.Name].(*List)
			e := f.elem()
			for c.More() {
				if !c.Has(e.Size) {
					return rxrpc.Need(c.BulkNeed(e.Size))
				}
				l.Append(decodeFixed(c, e))
				c.Next()
			}
			c.Enter(next)
		case SplitPhase:
			if st, done := c.SplitReceive(); !done {
				return st
			}
			c.Enter(next)
		case DonePhase:
			return rxrpc.Done
		default:
			return rxrpc.Fail(fmt.Errorf("%s: bad phase form %s",
				desc.Name, ph.Form))
		}
	}
}

// Decode a complete encoding of a struct or parameter set.
func Unmarshal(o *Object, input []byte) error {
	c := rxrpc.NewCall()
	c.Feed(input)
	st := (&Decoder{Obj: o}).Decode(c)
	switch {
	case st.Result == rxrpc.Failed:
		return st.Err
	case st.Result == rxrpc.NeedMore:
		return io.ErrUnexpectedEOF
	case c.Available() != 0:
		return fmt.Errorf("%s: %d trailing bytes", o.Desc.Name, c.Available())
	}
	return nil
}

// Encode a struct or parameter set.
func Marshal(o *Object) (ret []byte, err error) {
	if err = checkBounds(o); err != nil {
		return nil, err
	}
	defer rxrpc.CatchErr(&err)
	e := rxrpc.NewEncoder()
	if err = o.Encode(e); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}
