package ini

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type collect []string

func (c *collect) Item(it Item) error {
	*c = append(*c, it.QKey()+"="+it.Val())
	return nil
}

func TestParseErrors(t *testing.T) {
	var c collect
	err := Parse(&c, "t.conf", []byte(`[output]
dir = "open
[bad
9key = x
ok = 1
`))
	var pe ParseErrors
	if !errors.As(err, &pe) {
		t.Fatalf("want ParseErrors, got %v", err)
	}
	want := ParseErrors{
		{File: "t.conf", Lineno: 2, Colno: 12, Msg: "missing close quotes"},
		{File: "t.conf", Lineno: 3, Colno: 5, Msg: "expected ']'"},
		{File: "t.conf", Lineno: 4, Colno: 1, Msg: "expected section or key"},
	}
	if diff := cmp.Diff(want, pe); diff != "" {
		t.Errorf("errors (-want +got):\n%s", diff)
	}
	// Parsing continues after each error.
	if diff := cmp.Diff(collect{"output.ok=1"}, c); diff != "" {
		t.Errorf("items (-want +got):\n%s", diff)
	}
	if s := pe[0].Error(); s != "t.conf:2:12: missing close quotes" {
		t.Errorf("Error() = %q", s)
	}
}

func TestEscapes(t *testing.T) {
	var c collect
	err := Parse(&c, "", []byte("a = \"x\\ty\\n\" # c\r\nb = one \\\n two\n"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(collect{"a=x\ty\n", "b=one  two"}, c); diff != "" {
		t.Errorf("items (-want +got):\n%s", diff)
	}
	for _, v := range []string{"plain", " lead", "a;b", "tab\there", ""} {
		var c collect
		if err := Parse(&c, "", []byte("k = "+Escape(v)+"\n")); err != nil {
			t.Errorf("%q: %s", v, err)
		} else if c[0] != "k="+v {
			t.Errorf("Escape(%q) read back as %q", v, c[0])
		}
	}
}

func TestStructSinkErrors(t *testing.T) {
	var conf struct {
		ChunkSize uint32 `ini:"chunk-size"`
	}
	s := &StructSink{Sec: &Section{Name: "decode"}}
	s.AddStruct(&conf)
	err := Parse(s, "t.conf", []byte(`[decode]
chunk-size = lots
colour = red
`))
	want := ParseErrors{
		{File: "t.conf", Lineno: 2, Colno: 14,
			Msg: `decode.chunk-size: invalid value "lots"`},
		{File: "t.conf", Lineno: 3, Colno: 1,
			Msg: "unknown key decode.colour"},
	}
	if diff := cmp.Diff(error(want), err); diff != "" {
		t.Errorf("errors (-want +got):\n%s", diff)
	}
}

func TestSinks(t *testing.T) {
	var a, b struct{ X int }
	sa := &StructSink{Sec: &Section{Name: "a"}}
	sa.AddStruct(&a)
	sb := &StructSink{Sec: &Section{Name: "b"}}
	sb.AddStruct(&b)
	if err := Parse(Sinks{sa, sb}, "", []byte("[a]\nX = 1\n[b]\nX = 2\n")); err != nil {
		t.Fatal(err)
	}
	if a.X != 1 || b.X != 2 {
		t.Errorf("a.X = %d, b.X = %d", a.X, b.X)
	}
}
