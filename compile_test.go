package rxgen

import (
	"bytes"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/xdrpp/rxgen/idl"
)

func readVL(t *testing.T) []Source {
	t.Helper()
	srcs, err := ReadSources([]string{filepath.Join("testdata", "vl.xg")})
	if err != nil {
		t.Fatal(err)
	}
	return srcs
}

func vlConfig(pkg string) *Config {
	conf := DefaultConfig()
	conf.Output.Package = pkg
	conf.Output.Basename = "vl"
	return conf
}

func TestCompile(t *testing.T) {
	srcs := readVL(t)
	out, err := Compile(srcs, vlConfig("vlgen"))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range out.Files {
		names = append(names, f.Name)
	}
	want := []string{"vl_wire_types.go", "vl_wire.go", "vl_bind_types.go",
		"vl_bind.go"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("artifacts (-want +got):\n%s", diff)
	}

	header := "// Code generated by rxgen; DO NOT EDIT.\n" + digestPrefix +
		out.Digest + "\n\npackage vlgen\n"
	for _, f := range out.Files {
		if !bytes.HasPrefix(f.Contents, []byte(header)) {
			t.Errorf("%s header:\n%s", f.Name,
				f.Contents[:len(header)])
		}
	}
	if len(out.Digest) != 64 {
		t.Errorf("digest %q is not BLAKE2b-256 hex", out.Digest)
	}
	for _, want := range []string{
		"func EncodeVL_GetEntryByIdRequest(",
		"func DecodeVL_ListEntriesResponse(",
		"type VL_FetchDumpResponseDecoder struct {",
	} {
		if !bytes.Contains(out.Files[1].Contents, []byte(want)) {
			t.Errorf("wire source lacks %q", want)
		}
	}
	if bytes.Contains(out.Files[0].Contents, []byte("Obsolete")) {
		t.Errorf("#if 0 block was compiled")
	}
}

func TestCompileNoDigest(t *testing.T) {
	conf := vlConfig("vlgen")
	conf.Output.HeaderDigest = false
	out, err := Compile(readVL(t), conf)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(out.Files[0].Contents, []byte(digestPrefix)) {
		t.Errorf("digest written with header-digest off")
	}
}

func TestCompileErrors(t *testing.T) {
	srcs, err := ReadSources([]string{filepath.Join("testdata", "bad.xg")})
	if err != nil {
		t.Fatal(err)
	}
	out, err := Compile(srcs, DefaultConfig())
	if out != nil {
		t.Errorf("output produced despite errors")
	}
	var pe idl.ParseErrors
	if !errors.As(err, &pe) {
		t.Fatalf("want idl.ParseErrors, got %v", err)
	}
	if pe.Count(idl.SemanticError) != 1 || pe.Count(idl.SyntaxError) != 1 {
		t.Errorf("diagnostics:\n%s", pe)
	}
	if !strings.HasPrefix(pe[0].Error(), filepath.Join("testdata", "bad.xg")+":4:") {
		t.Errorf("first diagnostic %q", pe[0])
	}
}

func TestCompileGenerationError(t *testing.T) {
	srcs := []Source{{Name: "g.xg", Contents: []byte(
		"struct S { opaque blobs[2]; };\n")}}
	if _, err := Compile(srcs, DefaultConfig()); err == nil ||
		!strings.Contains(err.Error(), "S:blobs") {
		t.Errorf("got %v", err)
	}
}

func TestReadSources(t *testing.T) {
	_, err := ReadSources([]string{
		filepath.Join("testdata", "vl.xg"),
		filepath.Join("testdata", "missing1.xg"),
		filepath.Join("testdata", "missing2.xg"),
	})
	if err == nil {
		t.Fatal("missing files not reported")
	}
	for _, name := range []string{"missing1.xg", "missing2.xg"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("%s not reported in %q", name, err)
		}
	}
}

// Compilations share no mutable state.
func TestConcurrentCompile(t *testing.T) {
	srcs := readVL(t)
	ref, err := Compile(srcs, vlConfig("vlgen"))
	if err != nil {
		t.Fatal(err)
	}
	outs := make([]*Output, 8)
	var g errgroup.Group
	for i := range outs {
		i := i
		g.Go(func() error {
			out, err := Compile(srcs, vlConfig("vlgen"))
			outs[i] = out
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	for i, out := range outs {
		if diff := cmp.Diff(ref, out); diff != "" {
			t.Errorf("compile %d differs (-want +got):\n%s", i, diff)
		}
	}
}

func TestBindSubdirectory(t *testing.T) {
	conf := vlConfig("vlgen")
	conf.Output.BindPackage = "vlbind"
	out, err := Compile(readVL(t), conf)
	if err != nil {
		t.Fatal(err)
	}
	if name := out.Files[3].Name; name != filepath.Join("vlbind", "vl_bind.go") {
		t.Errorf("binding source written to %s", name)
	}
	if !bytes.Contains(out.Files[3].Contents, []byte("\npackage vlbind\n")) {
		t.Errorf("binding source not in package vlbind")
	}
}

func TestWriteAndCheck(t *testing.T) {
	dir := t.TempDir()
	srcs := readVL(t)
	conf := vlConfig("vlgen")
	out, err := Compile(srcs, conf)
	if err != nil {
		t.Fatal(err)
	}
	if err := out.WriteFiles(dir); err != nil {
		t.Fatal(err)
	}
	for _, f := range out.Files {
		got, err := ioutil.ReadFile(filepath.Join(dir, f.Name))
		if err != nil {
			t.Fatal(err)
		} else if !bytes.Equal(got, f.Contents) {
			t.Errorf("%s: contents differ", f.Name)
		}
		if _, err := os.Stat(filepath.Join(dir, f.Name) + ".lock"); err == nil {
			t.Errorf("%s: lock file left behind", f.Name)
		}
	}
	if err := Check(dir, srcs, conf); err != nil {
		t.Errorf("fresh output: %s", err)
	}

	edited := []Source{{Name: srcs[0].Name,
		Contents: append(append([]byte(nil), srcs[0].Contents...),
			"\nconst EXTRA = 1;\n"...)}}
	var se *StaleError
	if err := Check(dir, edited, conf); !errors.As(err, &se) ||
		len(se.Files) != 4 {
		t.Errorf("edited input: %v", err)
	}

	os.Remove(filepath.Join(dir, "vl_bind.go"))
	if err := Check(dir, srcs, conf); !errors.As(err, &se) ||
		len(se.Files) != 1 {
		t.Errorf("missing artifact: %v", err)
	}

	// An existing lock file blocks the write.
	lock := filepath.Join(dir, "vl_wire.go.lock")
	if err := ioutil.WriteFile(lock, nil, 0666); err != nil {
		t.Fatal(err)
	}
	if err := out.WriteFiles(dir); err == nil {
		t.Errorf("write succeeded despite a lock file")
	}
}

func TestGeneratedCodeVets(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping go vet in short mode")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("no go command")
	}
	dir := filepath.Join("testdata", "vlgen")
	os.RemoveAll(dir)
	defer os.RemoveAll(dir)
	out, err := Compile(readVL(t), vlConfig("vlgen"))
	if err != nil {
		t.Fatal(err)
	}
	if err := out.WriteFiles(dir); err != nil {
		t.Fatal(err)
	}
	cmd := exec.Command("go", "vet", "./"+filepath.ToSlash(dir))
	if msg, err := cmd.CombinedOutput(); err != nil {
		t.Errorf("go vet of generated code failed:\n%s", msg)
	}
}

// Generate vl.xg and sample.xg into testdata/wiredecode, beside a
// checked-in test that runs the emitted decoders.
func TestGeneratedDecoders(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping go test of generated code in short mode")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("no go command")
	}
	srcs, err := ReadSources([]string{filepath.Join("testdata", "vl.xg"),
		filepath.Join("testdata", "sample.xg")})
	if err != nil {
		t.Fatal(err)
	}
	conf := DefaultConfig()
	conf.Output.Package = "wiredecode"
	conf.Output.Basename = "wire"
	out, err := Compile(srcs, conf)
	if err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join("testdata", "wiredecode")
	defer func() {
		for _, f := range out.Files {
			os.Remove(filepath.Join(dir, f.Name))
		}
	}()
	if err := out.WriteFiles(dir); err != nil {
		t.Fatal(err)
	}
	cmd := exec.Command("go", "test", "./"+filepath.ToSlash(dir))
	if msg, err := cmd.CombinedOutput(); err != nil {
		t.Errorf("go test of generated decoders failed:\n%s", msg)
	}
}

func TestPlans(t *testing.T) {
	reg, err := Parse(readVL(t), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	plans, err := Plans(reg, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	got := map[string][2]string{}
	for _, pp := range plans {
		got[pp.Proc.Name] = [2]string{pp.Request.String(),
			pp.Response.String()}
	}
	want := map[string][2]string{
		"VL_Probe": {"1:done/0{}", "1:done/0{}"},
		"VL_FetchDump": {
			"1:flat/12{volid,since} 2:split/0{} 3:done/0{}",
			"1:split/0{} 2:flat/4{nr__cookie} 3:blob/1024{cookie} " +
				"4:flat/8{size} 5:done/0{}",
		},
	}
	for name, w := range want {
		if diff := cmp.Diff(w, got[name]); diff != "" {
			t.Errorf("%s plans (-want +got):\n%s", name, diff)
		}
	}
	if len(plans) != len(reg.Procs) {
		t.Errorf("%d plans for %d procedures", len(plans), len(reg.Procs))
	}
}

func ExampleDigest() {
	fmt.Println(Digest(nil)[:16])
	// Output:
	// 0e5751c026e543b2
}
