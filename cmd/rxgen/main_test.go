package main

import (
	"bytes"
	"context"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/multierr"

	"github.com/xdrpp/rxgen"
	"github.com/xdrpp/rxgen/idl"
)

var (
	vlFile  = filepath.Join("..", "..", "testdata", "vl.xg")
	badFile = filepath.Join("..", "..", "testdata", "bad.xg")
)

// A configuration file that keeps tests independent of any installed
// rxgen.conf.
func testConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rxgen.conf")
	err := ioutil.WriteFile(path, []byte("[output]\npackage = vlgen\n"), 0666)
	if err != nil {
		t.Fatal(err)
	}
	return path
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	var ret []string
	err := filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
		if err == nil && !fi.IsDir() {
			rel, _ := filepath.Rel(dir, path)
			ret = append(ret, rel)
		}
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(ret)
	return ret
}

func TestCompileCommand(t *testing.T) {
	out := t.TempDir()
	cmd := &compileCmd{jobs: 2}
	cmd.config = testConfig(t)
	cmd.dir = out
	cmd.basename = "vl"
	if err := cmd.run(context.Background(), []string{vlFile}); err != nil {
		t.Fatal(err)
	}
	want := []string{"vl_bind.go", "vl_bind_types.go", "vl_wire.go",
		"vl_wire_types.go"}
	if diff := cmp.Diff(want, listDir(t, out)); diff != "" {
		t.Errorf("files (-want +got):\n%s", diff)
	}
	contents, err := ioutil.ReadFile(filepath.Join(out, "vl_wire.go"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(contents, []byte("\npackage vlgen\n")) {
		t.Errorf("-p not applied")
	}
}

func TestCompileEach(t *testing.T) {
	dir := t.TempDir()
	ping := filepath.Join(dir, "ping.xg")
	if err := ioutil.WriteFile(ping, []byte("Ping(IN int32_t x) = 1;\n"),
		0666); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out")
	cmd := &compileCmd{each: true, jobs: 2}
	cmd.config = testConfig(t)
	cmd.dir = out
	cmd.pkg = "gen"
	cmd.bindPkg = "genbind"
	if err := cmd.run(context.Background(), []string{vlFile, ping}); err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join("ping", "genbind", "ping_bind.go"),
		filepath.Join("ping", "genbind", "ping_bind_types.go"),
		filepath.Join("ping", "ping_wire.go"),
		filepath.Join("ping", "ping_wire_types.go"),
		filepath.Join("vl", "genbind", "vl_bind.go"),
		filepath.Join("vl", "genbind", "vl_bind_types.go"),
		filepath.Join("vl", "vl_wire.go"),
		filepath.Join("vl", "vl_wire_types.go"),
	}
	if diff := cmp.Diff(want, listDir(t, out)); diff != "" {
		t.Errorf("files (-want +got):\n%s", diff)
	}
}

func TestCompileFailureWritesNothing(t *testing.T) {
	out := t.TempDir()
	cmd := &compileCmd{each: true, jobs: 1}
	cmd.config = testConfig(t)
	cmd.dir = out
	err := cmd.run(context.Background(), []string{badFile, vlFile})
	var pe idl.ParseErrors
	if !errors.As(err, &pe) {
		t.Fatalf("want idl.ParseErrors, got %v", err)
	}
	if files := listDir(t, out); len(files) != 0 {
		t.Errorf("wrote %v", files)
	}

	var msg bytes.Buffer
	report(&msg, err)
	if !strings.HasPrefix(msg.String(), badFile+":4:") {
		t.Errorf("report:\n%s", msg.String())
	}
	if n := strings.Count(msg.String(), "\n"); n != len(pe) {
		t.Errorf("%d lines for %d diagnostics", n, len(pe))
	}
}

func TestCompileUsage(t *testing.T) {
	if err := (&compileCmd{}).run(context.Background(), nil); err != errUsage {
		t.Errorf("no files: %v", err)
	}
}

func TestPlanCommand(t *testing.T) {
	cmd := &planCmd{}
	cmd.config = testConfig(t)
	var out bytes.Buffer
	if err := cmd.run(&out, []string{vlFile}); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"proc VL_ListEntries opcode 510\n" +
			"  request: 1:flat/4{first} 2:done/0{}\n" +
			"  response: 1:flat/8{next,nr__entries} 2:bulk/180{entries} 3:done/0{}\n",
		"proc VL_GetStats opcode 509 multi\n",
		"proc VL_FetchDump opcode 520 split\n" +
			"  request: 1:flat/12{volid,since} 2:split/0{} 3:done/0{}\n" +
			"  response: 1:split/0{} 2:flat/4{nr__cookie} 3:blob/1024{cookie} 4:flat/8{size} 5:done/0{}\n",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("plan lacks:\n%s\ngot:\n%s", want, out.String())
		}
	}

	cmd.verbose = true
	cmd.chunk = 4096
	out.Reset()
	if err := cmd.run(&out, []string{vlFile}); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"phaseSummary", `"cookie"`, "4096"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("verbose plan lacks %q", want)
		}
	}
}

func TestCheckCommand(t *testing.T) {
	out := t.TempDir()
	conf := testConfig(t)
	compile := &compileCmd{jobs: 1}
	compile.config = conf
	compile.dir = out
	if err := compile.run(context.Background(), []string{vlFile}); err != nil {
		t.Fatal(err)
	}

	check := &checkCmd{}
	check.config = conf
	if err := check.run([]string{out, vlFile}); err != nil {
		t.Errorf("fresh output: %s", err)
	}
	err := check.run([]string{out, badFile})
	var se *rxgen.StaleError
	if !errors.As(err, &se) || len(se.Files) != 4 {
		t.Errorf("other input: %v", err)
	}
	if err := check.run([]string{out}); err != errUsage {
		t.Errorf("no inputs: %v", err)
	}
}

func TestReportMultiple(t *testing.T) {
	var msg bytes.Buffer
	report(&msg, multierr.Combine(errors.New("one"), errors.New("two")))
	if got := msg.String(); got != "rxgen: one\nrxgen: two\n" {
		t.Errorf("report = %q", got)
	}
}

func TestConfigCommand(t *testing.T) {
	cmd := &configCmd{}
	cmd.config = testConfig(t)
	cmd.chunk = 2048
	var out bytes.Buffer
	if err := cmd.run(&out, nil); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"# " + cmd.config + "\n",
		"\tpackage = vlgen\n", "\tchunk-size = 2048\n"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("config lacks %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	err := cmd.run(&out, []string{"output.package", "decode.chunk-size"})
	if err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "vlgen\n2048\n" {
		t.Errorf("values = %q", got)
	}
	if err := cmd.run(&out, []string{"output.colour"}); err == nil {
		t.Errorf("unknown setting accepted")
	}
}
