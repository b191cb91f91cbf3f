package rxbind

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xdrpp/rxgen/rxrpc"
)

// struct Pt { int32_t x; uint64_t y; };
var ptDesc = &StructDesc{
	Name: "Pt",
	Size: 12,
	Fields: []*FieldDesc{
		{Name: "x", Kind: Scalar32, Signed: true, Offset: 0, Size: 4},
		{Name: "y", Kind: Scalar64, Offset: 4, Size: 8},
	},
	Plan: &Plan{Phases: []PhaseDesc{
		{Form: Flat, Size: 12, Steps: []Step{{Field: 0}, {Field: 1}}},
		{Form: DonePhase},
	}},
}

// struct Outer { Pt p; uint32_t n[2]; Pt ps[2]; };
var outerDesc = &StructDesc{
	Name: "Outer",
	Size: 12 + 8 + 24,
	Fields: []*FieldDesc{
		{Name: "p", Kind: Struct, Struct: ptDesc, Offset: 0, Size: 12},
		{Name: "n", Kind: FixedArray, Elem: Scalar32, ElemSize: 4, Dim: 2,
			Offset: 12, Size: 8},
		{Name: "ps", Kind: FixedArray, Elem: Struct, Struct: ptDesc,
			ElemSize: 12, Dim: 2, Offset: 20, Size: 24},
	},
	Plan: &Plan{Phases: []PhaseDesc{
		{Form: Flat, Size: 44, Steps: []Step{{Field: 0}, {Field: 1}, {Field: 2}}},
		{Form: DonePhase},
	}},
}

func TestObjectFixedLayout(t *testing.T) {
	p := New(ptDesc)
	if err := p.Set("x", -5); err != nil {
		t.Fatal(err)
	}
	if err := p.Set("y", uint32(7)); err != nil {
		t.Fatal(err)
	}
	raw, err := p.Raw()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0xff, 0xff, 0xff, 0xfb, 0, 0, 0, 0, 0, 0, 0, 7}
	if diff := cmp.Diff(want, raw); diff != "" {
		t.Errorf("layout (-want +got):\n%s", diff)
	}

	q := New(ptDesc)
	if err := Unmarshal(q, raw); err != nil {
		t.Fatal(err)
	}
	if x := q.MustGet("x"); x != int64(-5) {
		t.Errorf("x = %#v", x)
	}
	if y := q.MustGet("y"); y != uint64(7) {
		t.Errorf("y = %#v", y)
	}
}

func TestObjectViews(t *testing.T) {
	raw := []byte{
		0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 2, // p
		0, 0, 0, 3, 0, 0, 0, 4, // n
		0, 0, 0, 5, 0, 0, 0, 0, 0, 0, 0, 6, // ps[0]
		0, 0, 0, 7, 0, 0, 0, 0, 0, 0, 0, 8, // ps[1]
	}
	o := New(outerDesc)
	if err := Unmarshal(o, raw); err != nil {
		t.Fatal(err)
	}
	enc, err := Marshal(o)
	if err != nil || !bytes.Equal(enc, raw) {
		t.Fatalf("round trip: %v\n%x", err, enc)
	}

	// Materialized from the raw layout and edited in place.
	v := view(outerDesc, append([]byte(nil), raw...))
	p := v.MustGet("p").(*Object)
	if x := p.MustGet("x"); x != int64(1) {
		t.Errorf("p.x = %#v", x)
	}
	p.Set("x", 100)
	ps := v.MustGet("ps").(*List)
	ps.Index(1).(*Object).Set("y", 9)
	n := v.MustGet("n").(*List)
	if n.Index(1) != uint64(4) {
		t.Errorf("n[1] = %#v", n.Index(1))
	}
	out, err := v.Raw()
	if err != nil {
		t.Fatal(err)
	}
	if out[3] != 100 || out[43] != 9 || out[15] != 3 {
		t.Errorf("premarshal did not fold edits: %x", out)
	}
	if v.MustGet("p") != p {
		t.Errorf("materialized member not cached")
	}
}

func TestObjectSetErrors(t *testing.T) {
	o := New(outerDesc)
	cases := []struct {
		name string
		v    interface{}
	}{
		{"nope", 1},
		{"p", New(outerDesc)},
		{"n", NewList(uint32(1))},
		{"n", NewList(1, -1)},
		{"p", "str"},
	}
	for _, c := range cases {
		if err := o.Set(c.name, c.v); err == nil {
			t.Errorf("Set(%s, %v) succeeded", c.name, c.v)
		}
	}
	if err := New(ptDesc).Set("x", int64(1)<<31); err == nil {
		t.Errorf("int32 overflow accepted")
	}
}

// Parameters of GetBlob(IN int32_t a, IN opaque blob<16>, IN int32_t b)
var recDesc = &StructDesc{
	Name:    "GetBlobRequest",
	Dynamic: true,
	Fields: []*FieldDesc{
		{Name: "a", Kind: Scalar32, Signed: true, Size: 4},
		{Name: "blob", Kind: Blob, Max: 16, Bounded: true},
		{Name: "b", Kind: Scalar32, Signed: true, Size: 4},
	},
	Plan: &Plan{Phases: []PhaseDesc{
		{Form: Flat, Size: 8, Steps: []Step{{Field: 0}, {Field: 1, Count: true}}},
		{Form: BlobPhase, Size: 1024, Target: 1},
		{Form: Flat, Size: 4, Steps: []Step{{Field: 2}}},
		{Form: DonePhase},
	}},
}

func TestRequestBound(t *testing.T) {
	proc := &ProcDesc{Name: "GetBlob", Opcode: 9, Request: recDesc}
	req := proc.NewRequest()
	req.Set("a", 1)
	req.Set("blob", bytes.Repeat([]byte{1}, 17))
	out, err := proc.EncodeRequest(req)
	if !errors.Is(err, rxrpc.ErrInvalid) || out != nil {
		t.Errorf("oversized blob: %v %x", err, out)
	}
	req.Set("blob", "abc")
	out, err = proc.EncodeRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0, 0, 0, 9, 0, 0, 0, 1, 0, 0, 0, 3, 'a', 'b', 'c', 0,
		0, 0, 0, 0}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("request (-want +got):\n%s", diff)
	}

	got := proc.NewRequest()
	c := rxrpc.NewCall()
	c.Feed(out[4:])
	if st := proc.RequestDecoder(got).Decode(c); st.Result != rxrpc.Complete {
		t.Fatalf("decode: %s", st)
	}
	if diff := cmp.Diff([]byte("abc"), got.MustGet("blob")); diff != "" {
		t.Errorf("blob (-want +got):\n%s", diff)
	}
}

func TestObjectString(t *testing.T) {
	o := New(ptDesc)
	o.Set("x", 3)
	if s := o.String(); s != "Pt{x: 3, y: 0}" {
		t.Errorf("String() = %q", s)
	}
}
