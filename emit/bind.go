package emit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xdrpp/rxgen/idl"
	"github.com/xdrpp/rxgen/phase"
	"github.com/xdrpp/rxgen/rxbind"
	"github.com/xdrpp/rxgen/rxrpc"
)

// The binding backend.  It first builds the descriptor tables in
// memory, then renders them as Go source, so generated bindings and
// Binding agree by construction.
type binder struct {
	*emitter
	m     *model
	mod   *rxbind.Module
	descs map[string]*rxbind.StructDesc
	order []*rxbind.StructDesc // render order
	procs []*rxbind.ProcDesc
}

func newBinder(reg *idl.Registry, opts Options) *binder {
	b := &binder{
		emitter: newEmitter(reg, opts),
		descs:   map[string]*rxbind.StructDesc{},
	}
	b.m = b.model()
	b.build()
	return b
}

// Build the binding module for reg in memory.
func Binding(reg *idl.Registry, opts Options) (mod *rxbind.Module, err error) {
	defer catch(&err)
	return newBinder(reg, opts).mod, nil
}

// Generate the binding header and source for reg.
func BindingSource(reg *idl.Registry, opts Options) (types, src string,
	err error) {
	defer catch(&err)
	b := newBinder(reg, opts)
	return b.typesFile(), b.srcFile(), nil
}

func bindKind(k idl.Kind) rxbind.Kind {
	switch k {
	case idl.Scalar32:
		return rxbind.Scalar32
	case idl.Scalar64:
		return rxbind.Scalar64
	case idl.Struct:
		return rxbind.Struct
	case idl.FixedArray:
		return rxbind.FixedArray
	case idl.Blob:
		return rxbind.Blob
	case idl.Bulk:
		return rxbind.Bulk
	}
	panic(fmt.Sprintf("emit: bad kind %s", k))
}

func bindForm(f phase.Form) rxbind.Form {
	switch f {
	case phase.Flat:
		return rxbind.Flat
	case phase.Blob:
		return rxbind.BlobPhase
	case phase.Bulk:
		return rxbind.BulkPhase
	case phase.Split:
		return rxbind.SplitPhase
	case phase.Done:
		return rxbind.DonePhase
	}
	panic(fmt.Sprintf("emit: bad form %s", f))
}

func (b *binder) build() {
	mod := &rxbind.Module{
		Name:      b.opts.BindPackage,
		Structs:   map[string]*rxbind.StructDesc{},
		Procs:     map[string]*rxbind.ProcDesc{},
		Constants: map[string]int64{},
		Aborts:    rxrpc.AbortTable{},
		New:       map[string]func() *rxbind.Object{},
	}
	for _, s := range b.m.structs {
		d := b.structDesc(s.t.Name, s.t.Members, s.plan, !s.dynamic())
		mod.Structs[d.Name] = d
		if b.m.reached[d.Name] {
			mod.New[d.Name] = func() *rxbind.Object { return rxbind.New(d) }
		}
	}
	for _, pi := range b.m.procs {
		p := pi.p
		pd := &rxbind.ProcDesc{
			Name:   p.Name,
			Opcode: uint32(p.Opcode.Value),
			Split:  p.Split,
			Multi:  p.Multi,
			Request: b.structDesc(p.Name+"Request", pi.req, pi.reqPlan,
				false),
			Response: b.structDesc(p.Name+"Response", pi.resp,
				pi.respPlan, false),
		}
		mod.Procs[p.Name] = pd
		b.procs = append(b.procs, pd)
	}
	for _, c := range b.reg.ConstList {
		mod.Constants[c.Name] = c.Value
	}
	for _, pkg := range b.reg.PkgList {
		if len(pkg.Aborts) == 0 {
			continue
		}
		class := rxrpc.NewPackageAbort(pkg.Name)
		for _, ac := range pkg.Aborts {
			mod.Aborts.Add(&rxrpc.AbortCode{Name: ac.Name, Code: ac.U32,
				Class: class})
		}
	}
	b.where = ""
	b.mod = mod
}

// Describe a field list.  fixed gives the list a raw layout, as for
// a struct whose size is static.
func (b *binder) structDesc(name string, fields []*idl.Member,
	pl *phase.Plan, fixed bool) *rxbind.StructDesc {
	d := &rxbind.StructDesc{Name: name, Dynamic: !fixed}
	index := map[*idl.Member]int{}
	var off uint32
	for i, m := range fields {
		b.at(name, m.Name)
		index[m] = i
		f := b.fieldDesc(m)
		if fixed {
			f.Offset = off
			off += f.Size
		}
		d.Fields = append(d.Fields, f)
	}
	if fixed {
		d.Size = off
	}
	d.Plan = &rxbind.Plan{Chunk: pl.Chunk}
	for _, ph := range pl.Phases {
		pd := rxbind.PhaseDesc{Form: bindForm(ph.Form), Size: ph.Size}
		switch ph.Form {
		case phase.Flat:
			for _, m := range ph.Fields {
				if m.CountOf != nil {
					pd.Steps = append(pd.Steps,
						rxbind.Step{Field: index[m.CountOf], Count: true})
				} else {
					pd.Steps = append(pd.Steps, rxbind.Step{Field: index[m]})
				}
			}
		case phase.Blob, phase.Bulk:
			pd.Target = index[ph.Target]
		}
		d.Plan.Phases = append(d.Plan.Phases, pd)
	}
	b.descs[name] = d
	b.order = append(b.order, d)
	return d
}

func (b *binder) fieldDesc(m *idl.Member) *rxbind.FieldDesc {
	t := m.Type
	f := &rxbind.FieldDesc{Name: m.Name, Kind: bindKind(t.Kind())}
	f.Size, _ = t.FixedSize()
	base := t.Base()
	switch t.Kind() {
	case idl.Scalar32, idl.Scalar64:
		f.Signed = t.Signed
	case idl.Struct:
		f.Struct = b.nested(t)
	case idl.Blob:
		f.Text = t.Basic == idl.STRING
	case idl.FixedArray, idl.Bulk:
		f.Elem = bindKind(base.Kind())
		f.ElemSize, _ = base.FixedSize()
		f.Signed = base.Signed
		if base.Kind() == idl.Struct {
			f.Struct = b.nested(base)
		}
		if t.Kind() == idl.FixedArray {
			f.Dim = uint32(t.Dim.Value)
		}
	}
	if t.Kind() == idl.Blob || t.Kind() == idl.Bulk {
		if t.Max != nil {
			f.Max, f.Bounded = uint32(t.Max.Value), true
		}
	}
	return f
}

// The descriptor of a struct used inside another.  Structs are
// declared before use, so it has already been built.
func (b *binder) nested(t *idl.Type) *rxbind.StructDesc {
	if d, ok := b.descs[t.Name]; ok {
		return d
	}
	b.throw("struct %s used before its descriptor", t.Name)
	return nil
}

//
// Rendering
//

func descVar(name string) string {
	return "_desc_" + name
}

func (b *binder) typesFile() string {
	out := &strings.Builder{}
	fmt.Fprintf(out, "package %s\n\n", b.opts.BindPackage)
	fmt.Fprintf(out, "import \"github.com/xdrpp/rxgen/rxrpc\"\n")
	fmt.Fprintf(out, "\n// The root of every remote abort error.\n")
	fmt.Fprintf(out, "var RemoteAbort = rxrpc.RemoteAbort\n")
	for _, pkg := range b.reg.PkgList {
		if len(pkg.Aborts) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n// Aborts raised by %s servers.\n", pkg.Name)
		fmt.Fprintf(out, "var %sAbort = rxrpc.NewPackageAbort(%q)\n",
			pkg.Name, pkg.Name)
	}
	codes := b.mod.Aborts.Sorted()
	if len(codes) > 0 {
		fmt.Fprintf(out, "\nvar (\n")
		for _, ac := range codes {
			fmt.Fprintf(out, "\tAbort%s = &rxrpc.AbortCode{Name: %q, "+
				"Code: %d, Class: %s}\n", ac.Name, ac.Name, ac.Code,
				ac.Class.Name)
		}
		fmt.Fprintf(out, ")\n")
	}
	fmt.Fprintf(out, "\nvar Constants = map[string]int64{\n")
	for _, c := range b.reg.ConstList {
		fmt.Fprintf(out, "\t%q: %d,\n", c.Name, c.Value)
	}
	fmt.Fprintf(out, "}\n")
	return out.String()
}

func (b *binder) srcFile() string {
	out := &strings.Builder{}
	fmt.Fprintf(out, "package %s\n\n", b.opts.BindPackage)
	fmt.Fprintf(out, "import (\n\t\"github.com/xdrpp/rxgen/rxbind\"\n"+
		"\t\"github.com/xdrpp/rxgen/rxrpc\"\n)\n")
	for _, d := range b.order {
		out.WriteString(renderStruct(d))
	}
	for _, p := range b.procs {
		out.WriteString(frag(`
var _proc_$NAME = &rxbind.ProcDesc{
	Name:     "$NAME",
	Opcode:   $OPCODE,
	Split:    $SPLIT,
	Multi:    $MULTI,
	Request:  $REQ,
	Response: $RESP,
}
`, "NAME", p.Name, "OPCODE", fmt.Sprint(p.Opcode),
			"SPLIT", fmt.Sprint(p.Split), "MULTI", fmt.Sprint(p.Multi),
			"REQ", descVar(p.Request.Name), "RESP", descVar(p.Response.Name)))
	}

	fmt.Fprintf(out, "\n// Module describes every struct and procedure.\n")
	fmt.Fprintf(out, "var Module = &rxbind.Module{\n\tName: %q,\n",
		b.mod.Name)
	fmt.Fprintf(out, "\tStructs: map[string]*rxbind.StructDesc{\n")
	for _, s := range b.m.structs {
		fmt.Fprintf(out, "\t\t%q: %s,\n", s.t.Name, descVar(s.t.Name))
	}
	fmt.Fprintf(out, "\t},\n\tProcs: map[string]*rxbind.ProcDesc{\n")
	for _, p := range b.procs {
		fmt.Fprintf(out, "\t\t%q: _proc_%s,\n", p.Name, p.Name)
	}
	fmt.Fprintf(out, "\t},\n\tConstants: Constants,\n")
	fmt.Fprintf(out, "\tAborts: rxrpc.NewAbortTable(")
	for _, ac := range b.mod.Aborts.Sorted() {
		fmt.Fprintf(out, "Abort%s, ", ac.Name)
	}
	fmt.Fprintf(out, "),\n\tNew: map[string]func() *rxbind.Object{\n")
	var reached []string
	for name := range b.mod.New {
		reached = append(reached, name)
	}
	sort.Strings(reached)
	for _, name := range reached {
		fmt.Fprintf(out, "\t\t%q: func() *rxbind.Object { "+
			"return rxbind.New(%s) },\n", name, descVar(name))
	}
	fmt.Fprintf(out, "\t},\n}\n")
	return out.String()
}

func renderStruct(d *rxbind.StructDesc) string {
	out := &strings.Builder{}
	fmt.Fprintf(out, "\nvar %s = &rxbind.StructDesc{\n\tName: %q,\n",
		descVar(d.Name), d.Name)
	if d.Dynamic {
		fmt.Fprintf(out, "\tDynamic: true,\n")
	} else {
		fmt.Fprintf(out, "\tSize: %d,\n", d.Size)
	}
	fmt.Fprintf(out, "\tFields: []*rxbind.FieldDesc{\n")
	for _, f := range d.Fields {
		fmt.Fprintf(out, "\t\t%s,\n", renderField(f))
	}
	fmt.Fprintf(out, "\t},\n\tPlan: &rxbind.Plan{Chunk: %d, "+
		"Phases: []rxbind.PhaseDesc{\n", d.Plan.Chunk)
	for _, ph := range d.Plan.Phases {
		fmt.Fprintf(out, "\t\t%s,\n", renderPhase(ph))
	}
	fmt.Fprintf(out, "\t}},\n}\n")
	return out.String()
}

func renderField(f *rxbind.FieldDesc) string {
	parts := []string{
		fmt.Sprintf("Name: %q", f.Name),
		"Kind: rxbind." + f.Kind.String(),
	}
	add := func(format string, args ...interface{}) {
		parts = append(parts, fmt.Sprintf(format, args...))
	}
	if f.Signed {
		add("Signed: true")
	}
	if f.Text {
		add("Text: true")
	}
	if f.Struct != nil {
		add("Struct: %s", descVar(f.Struct.Name))
	}
	if f.Kind == rxbind.FixedArray || f.Kind == rxbind.Bulk {
		add("Elem: rxbind.%s", f.Elem)
		add("ElemSize: %d", f.ElemSize)
	}
	if f.Dim != 0 {
		add("Dim: %d", f.Dim)
	}
	if f.Bounded {
		add("Max: %d", f.Max)
		add("Bounded: true")
	}
	if f.Offset != 0 {
		add("Offset: %d", f.Offset)
	}
	if f.Size != 0 {
		add("Size: %d", f.Size)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func renderPhase(ph rxbind.PhaseDesc) string {
	var form string
	switch ph.Form {
	case rxbind.Flat:
		form = "rxbind.Flat"
	case rxbind.BlobPhase:
		form = "rxbind.BlobPhase"
	case rxbind.BulkPhase:
		form = "rxbind.BulkPhase"
	case rxbind.SplitPhase:
		form = "rxbind.SplitPhase"
	default:
		form = "rxbind.DonePhase"
	}
	parts := []string{"Form: " + form}
	if ph.Size != 0 {
		parts = append(parts, fmt.Sprintf("Size: %d", ph.Size))
	}
	if len(ph.Steps) > 0 {
		var steps []string
		for _, s := range ph.Steps {
			if s.Count {
				steps = append(steps, fmt.Sprintf("{Field: %d, Count: true}",
					s.Field))
			} else {
				steps = append(steps, fmt.Sprintf("{Field: %d}", s.Field))
			}
		}
		parts = append(parts, "Steps: []rxbind.Step{"+
			strings.Join(steps, ", ")+"}")
	}
	if ph.Form == rxbind.BlobPhase || ph.Form == rxbind.BulkPhase {
		parts = append(parts, fmt.Sprintf("Target: %d", ph.Target))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
