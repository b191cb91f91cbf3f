package rxrpc

import (
	"io"
	"math"

	"github.com/xdrpp/goxdr/xdr"
)

// Need value meaning the decoder will accept whatever arrives next.
const AnySize = math.MaxUint32

// Default cap on the bytes requested at once for a blob or bulk
// payload.
const DefaultChunk = 1024

// Bulk elements no larger than this are requested several at a time.
const SmallElem = 512

// Drives the auxiliary transfer of a split procedure.  Receive is
// called each time the decoder is in the split phase, with init set on
// the first call.  It returns the number of bytes it wants buffered
// before the next call, AnySize for whatever arrives, or 0 once the
// transfer is complete.
type SplitReceiver interface {
	Receive(c *Call, init bool) (uint32, error)
}

// SplitFunc adapts a function to the SplitReceiver interface.
type SplitFunc func(c *Call, init bool) (uint32, error)

func (f SplitFunc) Receive(c *Call, init bool) (uint32, error) {
	return f(c, init)
}

// Call is the decode cursor for one message: the bytes received but
// not yet consumed, plus the decoder's progress.  The transport
// appends bytes with Write or Feed and calls the decoder again; the
// decoder consumes bytes through Read.
type Call struct {
	buf []byte

	// Current decode phase; 0 before the first call.
	Phase int

	// Within a blob phase, the blob length and the bytes consumed so
	// far (padding included).  Within a bulk phase, the element
	// count and the elements decoded so far.
	Count, Offset uint32

	Chunk uint32
	Split SplitReceiver

	// The text blob being read, for decoders that convert it to a
	// string once complete.
	Buf []byte

	fresh bool
}

func NewCall() *Call {
	return &Call{Chunk: DefaultChunk}
}

// Append received bytes.
func (c *Call) Write(p []byte) (int, error) {
	c.buf = append(c.buf, p...)
	return len(p), nil
}

func (c *Call) Feed(p []byte) {
	c.Write(p)
}

// Number of buffered bytes not yet consumed.
func (c *Call) Available() uint32 {
	return uint32(len(c.buf))
}

func (c *Call) Has(n uint32) bool {
	return uint32(len(c.buf)) >= n
}

// Consume buffered bytes.
func (c *Call) Read(p []byte) (int, error) {
	if len(c.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

// Move to phase, resetting the per-phase state.
func (c *Call) Enter(phase int) {
	c.Phase = phase
	c.fresh = true
}

// Start a blob or bulk payload of n bytes or elements.
func (c *Call) Begin(n uint32) {
	c.Count, c.Offset = n, 0
}

func (c *Call) chunk() uint32 {
	if c.Chunk == 0 {
		return DefaultChunk
	}
	return c.Chunk
}

// Unmarshal t from the buffered bytes.  The caller must have checked
// that enough bytes are available; a short buffer panics with an
// xdr.XdrError.
func (c *Call) Decode(name string, t xdr.XdrType) {
	t.XdrMarshal(&xdr.XdrIn{In: c}, name)
}

func (c *Call) U32() uint32 {
	var v uint32
	c.Decode("", xdr.XDR_uint32(&v))
	return v
}

func (c *Call) I32() int32 {
	var v int32
	c.Decode("", xdr.XDR_int32(&v))
	return v
}

// 64-bit values are two words, high word first.
func (c *Call) U64() uint64 {
	var v uint64
	c.Decode("", xdr.XDR_uint64(&v))
	return v
}

func (c *Call) I64() int64 {
	var v int64
	c.Decode("", xdr.XDR_int64(&v))
	return v
}

func pad4(n uint32) uint32 {
	return (n + 3) &^ 3
}

// Copy whatever has arrived of the current blob into dst, which holds
// Count bytes, and consume its padding.  Reports whether the whole
// blob has been read.
func (c *Call) ReadBlob(dst []byte) bool {
	padded := pad4(c.Count)
	for c.Offset < padded && len(c.buf) > 0 {
		if c.Offset < c.Count {
			n := copy(dst[c.Offset:c.Count], c.buf)
			c.buf = c.buf[n:]
			c.Offset += uint32(n)
		} else {
			if c.buf[0] != 0 {
				xdr.XdrPanic("padding contained non-zero bytes")
			}
			c.buf = c.buf[1:]
			c.Offset++
		}
	}
	return c.Offset == padded
}

// Bytes to ask for while in a blob phase.
func (c *Call) BlobNeed() uint32 {
	rem := pad4(c.Count) - c.Offset
	if ch := c.chunk(); rem > ch {
		rem = ch
	}
	return rem
}

// Whether bulk elements remain.
func (c *Call) More() bool {
	return c.Offset < c.Count
}

// Record one decoded bulk element.
func (c *Call) Next() {
	c.Offset++
}

// Bytes to ask for while in a bulk phase of elem-byte elements.
func (c *Call) BulkNeed(elem uint32) uint32 {
	if elem > SmallElem {
		return elem
	}
	n := c.chunk() / elem
	if n == 0 {
		n = 1
	}
	if rem := c.Count - c.Offset; n > rem {
		n = rem
	}
	return n * elem
}

// Run the split receiver.  Returns true when the auxiliary transfer is
// complete (or there is none); otherwise returns the status the
// decoder should return.
func (c *Call) SplitReceive() (Status, bool) {
	if c.Split == nil {
		return Status{}, true
	}
	init := c.fresh
	c.fresh = false
	n, err := c.Split.Receive(c, init)
	if err != nil {
		return Fail(err), false
	} else if n == 0 {
		return Status{}, true
	}
	return Need(n), false
}

// Obtain the buffer for an n-byte blob from alloc, or allocate it.
func Alloc(alloc func(n uint32) ([]byte, error), n uint32) ([]byte, error) {
	if alloc == nil {
		return make([]byte, n), nil
	}
	b, err := alloc(n)
	if err != nil {
		return nil, err
	} else if uint32(len(b)) < n {
		return nil, xdr.XdrError("allocator returned a short buffer")
	}
	return b[:n], nil
}

// Initial capacity for a bulk array of n elements.
func BulkCap(n uint32) int {
	if n > DefaultChunk {
		return DefaultChunk
	}
	return int(n)
}
