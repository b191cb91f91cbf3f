package rxbind

import (
	"bytes"
	"context"
	"testing"
	"testing/iotest"

	"github.com/google/go-cmp/cmp"
	"github.com/xdrpp/rxgen/rxrpc"
)

// Parameters of Scatter(IN uint32_t tag, IN uint32_t vals<>)
var bulkDesc = &StructDesc{
	Name:    "ScatterRequest",
	Dynamic: true,
	Fields: []*FieldDesc{
		{Name: "tag", Kind: Scalar32, Size: 4},
		{Name: "vals", Kind: Bulk, Elem: Scalar32, ElemSize: 4},
	},
	Plan: &Plan{Phases: []PhaseDesc{
		{Form: Flat, Size: 8, Steps: []Step{{Field: 0}, {Field: 1, Count: true}}},
		{Form: BulkPhase, Size: 1024, Target: 1},
		{Form: DonePhase},
	}},
}

func encodeBlob(t *testing.T, a int32, blob []byte, b int32) []byte {
	t.Helper()
	desc := *recDesc
	desc.Fields = append([]*FieldDesc(nil), recDesc.Fields...)
	unbounded := *recDesc.Fields[1]
	unbounded.Bounded = false
	desc.Fields[1] = &unbounded
	o := New(&desc)
	o.Set("a", a)
	o.Set("blob", blob)
	o.Set("b", b)
	out, err := Marshal(o)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestChunkedBlob(t *testing.T) {
	blob := make([]byte, 5000)
	for i := range blob {
		blob[i] = byte(i)
	}
	msg := encodeBlob(t, 7, blob, -2)

	desc := *recDesc
	desc.Fields = append([]*FieldDesc(nil), recDesc.Fields...)
	big := *recDesc.Fields[1]
	big.Max = 8000
	desc.Fields[1] = &big

	o := New(&desc)
	d := &Decoder{Obj: o}
	c := rxrpc.NewCall()
	var needs []uint32
	for _, part := range [][]byte{nil, msg[:4096], msg[4096:4896], msg[4896:]} {
		c.Feed(part)
		st := d.Decode(c)
		if st.Result == rxrpc.Failed {
			t.Fatal(st.Err)
		}
		if st.Result == rxrpc.NeedMore {
			if st.Need <= c.Available() {
				t.Errorf("need %d with %d available", st.Need, c.Available())
			}
			needs = append(needs, st.Need)
		}
	}
	if c.Phase != 4 {
		t.Fatalf("ended in phase %d", c.Phase)
	}
	if diff := cmp.Diff([]uint32{8, 912, 112}, needs); diff != "" {
		t.Errorf("needs (-want +got):\n%s", diff)
	}
	if !bytes.Equal(o.MustGet("blob").([]byte), blob) {
		t.Errorf("blob mismatch")
	}
	if b := o.MustGet("b"); b != int64(-2) {
		t.Errorf("b = %#v", b)
	}
}

func TestBlobBound(t *testing.T) {
	msg := encodeBlob(t, 1, make([]byte, 17), 2)
	err := Unmarshal(New(recDesc), msg)
	if !rxrpc.IsInvalid(err) {
		t.Errorf("oversized blob: %v", err)
	}
}

func TestBlobAlloc(t *testing.T) {
	msg := encodeBlob(t, 1, []byte("hello"), 2)
	var backing [16]byte
	var asked []string
	o := New(recDesc)
	d := &Decoder{Obj: o, Alloc: func(field string, n uint32) ([]byte, error) {
		asked = append(asked, field)
		return backing[:], nil
	}}
	c := rxrpc.NewCall()
	c.Feed(msg)
	if st := d.Decode(c); st.Result != rxrpc.Complete {
		t.Fatalf("decode: %s", st)
	}
	if diff := cmp.Diff([]string{"blob"}, asked); diff != "" {
		t.Errorf("alloc calls (-want +got):\n%s", diff)
	}
	if string(backing[:5]) != "hello" {
		t.Errorf("blob not placed in supplied buffer: %q", backing[:5])
	}
}

func TestEmptyBlob(t *testing.T) {
	msg := encodeBlob(t, 3, nil, 4)
	o := New(recDesc)
	d := &Decoder{Obj: o, Alloc: func(string, uint32) ([]byte, error) {
		t.Errorf("allocated for an empty blob")
		return nil, nil
	}}
	c := rxrpc.NewCall()
	c.Feed(msg)
	if st := d.Decode(c); st.Result != rxrpc.Complete {
		t.Fatalf("decode: %s", st)
	}
	if n := len(o.MustGet("blob").([]byte)); n != 0 {
		t.Errorf("blob has %d bytes", n)
	}
	if b := o.MustGet("b"); b != int64(4) {
		t.Errorf("b = %#v", b)
	}
}

func TestBadPadding(t *testing.T) {
	msg := encodeBlob(t, 3, []byte("x"), 4)
	msg[9] = 1
	if err := Unmarshal(New(recDesc), msg); err == nil {
		t.Errorf("non-zero padding accepted")
	}
}

func TestBulk(t *testing.T) {
	for _, n := range []int{0, 1, 5000} {
		req := New(bulkDesc)
		vals := &List{}
		for i := 0; i < n; i++ {
			vals.Append(uint32(i * 3))
		}
		req.Set("tag", 99)
		if err := req.Set("vals", vals); err != nil {
			t.Fatal(err)
		}
		msg, err := Marshal(req)
		if err != nil {
			t.Fatal(err)
		}
		if len(msg) != 8+4*n {
			t.Fatalf("N=%d: encoded %d bytes", n, len(msg))
		}

		got := New(bulkDesc)
		c := rxrpc.NewCall()
		err = rxrpc.Receive(context.Background(),
			iotest.HalfReader(bytes.NewReader(msg)), c, &Decoder{Obj: got})
		if err != nil {
			t.Fatalf("N=%d: %s", n, err)
		}
		l := got.MustGet("vals").(*List)
		if l.Len() != n {
			t.Fatalf("N=%d: decoded %d elements", n, l.Len())
		}
		for i, v := range l.Items {
			if v != uint64(i*3) {
				t.Fatalf("N=%d: vals[%d] = %v", n, i, v)
			}
		}
	}
}

func TestBulkNeed(t *testing.T) {
	req := New(bulkDesc)
	vals := &List{}
	for i := 0; i < 600; i++ {
		vals.Append(i)
	}
	req.Set("vals", vals)
	msg, _ := Marshal(req)

	c := rxrpc.NewCall()
	d := &Decoder{Obj: New(bulkDesc)}
	c.Feed(msg[:8])
	// 256 elements of 4 bytes fit in one chunk.
	if st := d.Decode(c); st != rxrpc.Need(1024) {
		t.Errorf("first need: %s", st)
	}
	c.Feed(msg[8 : 8+1024+4*100])
	// 244 elements remain.
	if st := d.Decode(c); st != rxrpc.Need(976) {
		t.Errorf("second need: %s", st)
	}
	c.Feed(msg[8+1024+4*100:])
	if st := d.Decode(c); st != rxrpc.Done {
		t.Errorf("final: %s", st)
	}
}

func TestTruncated(t *testing.T) {
	msg := encodeBlob(t, 1, []byte("abcdef"), 2)
	err := rxrpc.Receive(context.Background(),
		bytes.NewReader(msg[:len(msg)-1]), rxrpc.NewCall(),
		&Decoder{Obj: New(recDesc)})
	if err == nil {
		t.Errorf("truncated message accepted")
	}
}

func TestSplitLast(t *testing.T) {
	// Parameters of Fetch(IN uint32_t id) split, in request order.
	desc := &StructDesc{
		Name:    "FetchRequest",
		Dynamic: true,
		Fields:  []*FieldDesc{{Name: "id", Kind: Scalar32, Size: 4}},
		Plan: &Plan{Phases: []PhaseDesc{
			{Form: Flat, Size: 4, Steps: []Step{{Field: 0}}},
			{Form: SplitPhase},
			{Form: DonePhase},
		}},
	}
	var seen []byte
	var inits int
	c := rxrpc.NewCall()
	c.Split = rxrpc.SplitFunc(func(c *rxrpc.Call, init bool) (uint32, error) {
		if init {
			inits++
		}
		b := make([]byte, c.Available())
		c.Read(b)
		seen = append(seen, b...)
		if len(seen) < 6 {
			return 6 - uint32(len(seen)), nil
		}
		return 0, nil
	})
	o := New(desc)
	d := &Decoder{Obj: o}
	c.Feed([]byte{0, 0, 0, 5, 'a', 'b'})
	if st := d.Decode(c); st != rxrpc.Need(4) {
		t.Fatalf("after first part: %s", st)
	}
	c.Feed([]byte("cdef"))
	if st := d.Decode(c); st != rxrpc.Done {
		t.Fatalf("after second part: %s", st)
	}
	if string(seen) != "abcdef" || inits != 1 {
		t.Errorf("split saw %q with %d inits", seen, inits)
	}
	if id := o.MustGet("id"); id != uint64(5) {
		t.Errorf("id = %#v", id)
	}
}
