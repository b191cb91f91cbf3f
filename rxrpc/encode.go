package rxrpc

import (
	"bytes"
	"strings"

	"github.com/xdrpp/goxdr/xdr"
)

// Encoder accumulates an XDR-encoded message.
type Encoder struct {
	buf bytes.Buffer
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) Encode(name string, t xdr.XdrType) {
	t.XdrMarshal(&xdr.XdrOut{Out: &e.buf}, name)
}

func (e *Encoder) U32(v uint32) {
	e.Encode("", xdr.XDR_uint32(&v))
}

func (e *Encoder) I32(v int32) {
	e.Encode("", xdr.XDR_int32(&v))
}

// High word first.
func (e *Encoder) U64(v uint64) {
	e.Encode("", xdr.XDR_uint64(&v))
}

func (e *Encoder) I64(v int64) {
	e.Encode("", xdr.XDR_int64(&v))
}

// A length-prefixed, padded byte blob.
func (e *Encoder) Opaque(b []byte) {
	e.Encode("", xdr.XdrVecOpaque{Bytes: &b, Bound: uint32(len(b))})
}

func (e *Encoder) Text(s string) {
	e.Encode("", xdr.XdrString{Str: &s, Bound: uint32(len(s))})
}

// Append bytes that are already XDR-encoded.
func (e *Encoder) Write(p []byte) (int, error) {
	return e.buf.Write(p)
}

func (e *Encoder) Len() int {
	return e.buf.Len()
}

func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Marshal t to its raw binary encoding.
func ToBin(t xdr.XdrType) []byte {
	e := NewEncoder()
	e.Encode("", t)
	return e.Bytes()
}

// Unmarshal t from raw binary bytes.  Trailing bytes are an error.
func FromBin(t xdr.XdrType, input []byte) (err error) {
	defer CatchErr(&err)
	in := strings.NewReader(string(input))
	t.XdrMarshal(&xdr.XdrIn{In: in}, "")
	if in.Len() != 0 {
		xdr.XdrPanic("%d trailing bytes", in.Len())
	}
	return nil
}
