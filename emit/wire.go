package emit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xdrpp/rxgen/idl"
	"github.com/xdrpp/rxgen/phase"
)

// The wire backend.  types collects declarations (the wire header) and
// src the marshaling code (the wire source).
type wire struct {
	*emitter
	m       *model
	types   strings.Builder
	src     strings.Builder
	usesXdr bool
}

// Generate the wire header and source for reg.
func Wire(reg *idl.Registry, opts Options) (types, src string, err error) {
	defer catch(&err)
	w := &wire{emitter: newEmitter(reg, opts)}
	w.m = w.model()
	w.emitAll()
	return w.typesFile(), w.srcFile(), nil
}

func (w *wire) printf(str string, args ...interface{}) {
	fmt.Fprintf(&w.types, str, args...)
}

func (w *wire) xprintf(str string, args ...interface{}) {
	fmt.Fprintf(&w.src, str, args...)
}

func (w *wire) xappend(s string) {
	w.src.WriteString(s)
}

func (w *wire) typesFile() string {
	return fmt.Sprintf("package %s\n%s", w.opts.Package, w.types.String())
}

func (w *wire) srcFile() string {
	out := &strings.Builder{}
	fmt.Fprintf(out, "package %s\n\nimport (\n", w.opts.Package)
	if w.usesXdr {
		out.WriteString("\t\"github.com/xdrpp/goxdr/xdr\"\n")
	}
	out.WriteString("\t\"github.com/xdrpp/rxgen/rxrpc\"\n)\n")
	out.WriteString(w.src.String())
	return out.String()
}

func (w *wire) emitAll() {
	w.emitConstants()
	for _, s := range w.m.structs {
		w.emitStruct(s)
	}
	for _, p := range w.m.procs {
		w.emitProc(p)
	}
	w.emitAborts()
}

func (w *wire) emitConstants() {
	if len(w.reg.ConstList) > 0 {
		w.printf("\nconst (\n")
		for _, c := range w.reg.ConstList {
			w.printf("\t%s = %d\n", c.Name, c.Value)
		}
		w.printf(")\n")
	}
	var enums []string
	for name, t := range w.reg.Types {
		if t.Enum {
			enums = append(enums, name)
		}
	}
	sort.Strings(enums)
	for _, name := range enums {
		w.printf("\ntype %s = int32\n", name)
	}
}

// Go declaration of one member, with the bound as a trailing comment.
func (w *wire) field(m *idl.Member) string {
	decl := fmt.Sprintf("\t%s %s", capitalize(m.Name), w.goType(m.Type))
	if k := m.Type.Kind(); (k == idl.Blob || k == idl.Bulk) &&
		m.Type.Max != nil {
		decl += " // bound " + m.Type.Max.String()
	}
	return decl + "\n"
}

func (w *wire) emitStruct(s *structInfo) {
	t := s.t
	w.printf("\ntype %s struct {\n", t.Name)
	for _, m := range t.Members {
		w.at(t.Name, m.Name)
		w.printf("%s", w.field(m))
	}
	w.printf("}\n")
	if sz, ok := t.FixedSize(); ok {
		w.printf("\nconst %s_XdrSize = %d\n", t.Name, sz)
	}

	w.usesXdr = true
	w.xappend(frag(`
func (*$TYPE) XdrTypeName() string { return "$TYPE" }
func (v *$TYPE) XdrPointer() interface{} { return v }
func (v *$TYPE) XdrValue() interface{} { return *v }
func (v *$TYPE) XdrMarshal(x xdr.XDR, name string) { x.Marshal(name, v) }
func (v *$TYPE) XdrRecurse(x xdr.XDR, name string) {
	if name != "" {
		name = x.Sprintf("%s.", name)
	}
`, "TYPE", t.Name))
	for _, m := range t.Members {
		w.at(t.Name, m.Name)
		w.xprintf("%s", indent(w.xdrgen("v."+capitalize(m.Name),
			fmt.Sprintf(`x.Sprintf("%%s%s", name)`, m.Name), m.Type, "i")))
	}
	w.xprintf("}\n")

	if s.dynamic() {
		w.emitDecoder(t.Name, t.Name, t.Members, s.plan,
			fmt.Sprintf("%sDecoder decodes a %s incrementally.", t.Name, t.Name))
	}
}

// Code marshaling ref, an addressable value of type t, through the
// xdr.XDR x.  idx names the loop variable for arrays.
func (w *wire) xdrgen(ref, name string, t *idl.Type, idx string) string {
	bnd := bound(t)
	if bnd == "" {
		bnd = "0xffffffff"
	}
	switch t.Kind() {
	case idl.Scalar32, idl.Scalar64:
		return fmt.Sprintf("x.Marshal(%s, xdr.XDR_%s(&%s))\n", name,
			scalarType(t), ref)
	case idl.Struct:
		return fmt.Sprintf("x.Marshal(%s, &%s)\n", name, ref)
	case idl.FixedArray:
		return fmt.Sprintf("for %s := range %s {\n%s}\n", idx, ref,
			indent(w.xdrgen(ref+"["+idx+"]",
				fmt.Sprintf(`x.Sprintf("%%s[%%d]", %s, %s)`, name, idx),
				t.Elem, idx+"i")))
	case idl.Blob:
		if t.Basic == idl.STRING {
			return fmt.Sprintf("x.Marshal(%s, xdr.XdrString{Str: &%s, Bound: %s})\n",
				name, ref, bnd)
		}
		return fmt.Sprintf("x.Marshal(%s, xdr.XdrVecOpaque{Bytes: &%s, Bound: %s})\n",
			name, ref, bnd)
	case idl.Bulk:
		return frag(`{
	size := xdr.XdrSize{Size: uint32(len($REF)), Bound: $BOUND}
	x.Marshal(x.Sprintf("%s.len", $NAME), &size)
	if int(size.Size) != len($REF) {
		$REF = make($GOTYPE, size.Size)
	}
	for $IDX := range $REF {
$ELEM	}
}
`, "REF", ref, "BOUND", bnd, "NAME", name, "GOTYPE", w.goType(t),
			"IDX", idx,
			"ELEM", indent(w.xdrgen(ref+"["+idx+"]",
				fmt.Sprintf(`x.Sprintf("%%s[%%d]", %s, %s)`, name, idx),
				t.Elem, idx+"i")))
	}
	w.throw("cannot marshal %s", t)
	return ""
}

func (w *wire) emitProc(pi *procInfo) {
	p := pi.p
	w.printf("\nconst %sOpcode = %s\n", p.Name, p.Opcode.Expr())
	w.printf("\n// Parameters of %s sent by the client.\n", p.Name)
	w.printf("type %sRequest struct {\n", p.Name)
	for _, m := range pi.req {
		w.at(p.Name, m.Name)
		w.printf("%s", w.field(m))
	}
	w.printf("}\n")
	w.printf("\n// Parameters of %s returned by the server.\n", p.Name)
	w.printf("type %sResponse struct {\n", p.Name)
	for _, m := range pi.resp {
		w.at(p.Name, m.Name)
		w.printf("%s", w.field(m))
	}
	w.printf("}\n")

	w.emitEncoder(p, "Request", pi.req, true)
	w.emitEncoder(p, "Response", pi.resp, false)

	req, resp := p.Name+"Request", p.Name+"Response"
	w.emitDecoder(resp, resp, pi.resp, pi.respPlan, fmt.Sprintf(
		"%sDecoder decodes the reply to a %s call.", resp, p.Name))
	w.emitDecoder(req, req, pi.req, pi.reqPlan, fmt.Sprintf(
		"%sDecoder decodes a %s call on the server, after the\n"+
			"// opcode.", req, p.Name))
	w.xappend(frag(`
// Run the client-side decoder for the reply to a $PROC call.
func Decode$RESP(c *rxrpc.Call, v *$RESP) rxrpc.Status {
	return (&$RESPDecoder{V: v}).Decode(c)
}

// Run the server-side decoder for a $PROC call.
func Decode$REQ(c *rxrpc.Call, v *$REQ) rxrpc.Status {
	return (&$REQDecoder{V: v}).Decode(c)
}
`, "PROC", p.Name, "RESP", resp, "REQ", req))
}

// Code encoding ref, a value of type t, into the rxrpc.Encoder e.
func (w *wire) encodegen(ref, name string, t *idl.Type) string {
	switch t.Kind() {
	case idl.Scalar32, idl.Scalar64:
		return fmt.Sprintf("e.%s(%s)\n", encoderMethod(t), ref)
	case idl.Struct:
		return fmt.Sprintf("e.Encode(%q, &%s)\n", name, ref)
	case idl.Blob:
		if t.Basic == idl.STRING {
			return fmt.Sprintf("e.Text(%s)\n", ref)
		}
		return fmt.Sprintf("e.Opaque(%s)\n", ref)
	case idl.Bulk:
		return fmt.Sprintf("e.U32(uint32(len(%s)))\nfor i := range %s {\n%s}\n",
			ref, ref, indent(w.encodegen(ref+"[i]", name, t.Elem)))
	}
	w.throw("cannot encode %s", t)
	return ""
}

func encoderMethod(t *idl.Type) string {
	switch scalarType(t) {
	case "int32":
		return "I32"
	case "uint32":
		return "U32"
	case "int64":
		return "I64"
	}
	return "U64"
}

func (w *wire) emitEncoder(p *idl.Proc, dir string, fields []*idl.Member,
	opcode bool) {
	typ := p.Name + dir
	if opcode {
		w.xprintf("\n// Encode a %s call: the opcode, then the IN and INOUT "+
			"parameters.\n// Oversized blobs and arrays fail with "+
			"rxrpc.ErrInvalid.\n", p.Name)
	} else {
		w.xprintf("\n// Encode the reply to a %s call.\n", p.Name)
	}
	w.xprintf("func Encode%s(v *%s) (ret []byte, err error) {\n", typ, typ)
	for _, m := range fields {
		w.at(p.Name, m.Name)
		if k := m.Type.Kind(); (k == idl.Blob || k == idl.Bulk) &&
			m.Type.Max != nil {
			w.xappend(frag(`	if err = rxrpc.CheckBound("$NAME", uint32(len(v.$FIELD)), $BOUND); err != nil {
		return nil, err
	}
`, "NAME", m.Name, "FIELD", capitalize(m.Name), "BOUND", bound(m.Type)))
		}
	}
	w.xprintf("\tdefer rxrpc.CatchErr(&err)\n\te := rxrpc.NewEncoder()\n")
	if opcode {
		w.xprintf("\te.U32(%sOpcode)\n", p.Name)
	}
	for _, m := range fields {
		w.at(p.Name, m.Name)
		w.xprintf("%s", indent(w.encodegen("v."+capitalize(m.Name), m.Name,
			m.Type)))
	}
	w.xprintf("\treturn e.Bytes(), nil\n}\n")
}

// Code decoding a fixed-size value from the Call c into ref.
func (w *wire) decodegen(ref, name string, t *idl.Type, idx string) string {
	switch t.Kind() {
	case idl.Scalar32, idl.Scalar64:
		return fmt.Sprintf("%s = c.%s()\n", ref, encoderMethod(t))
	case idl.Struct:
		return fmt.Sprintf("c.Decode(%q, &%s)\n", name, ref)
	case idl.FixedArray:
		return fmt.Sprintf("for %s := range %s {\n%s}\n", idx, ref,
			indent(w.decodegen(ref+"["+idx+"]", name, t.Elem, idx+"i")))
	}
	w.throw("%s is not fixed-size", t)
	return ""
}

func phaseConst(prefix string, ph *phase.Phase) string {
	if ph.Form == phase.Done {
		return fmt.Sprintf("_%s_done", prefix)
	}
	return fmt.Sprintf("_%s_%s%d", prefix, ph.Form, ph.ID)
}

// Emit a resumable decoder type prefix+"Decoder" filling in a typ from
// the phases of pl.
func (w *wire) emitDecoder(prefix, typ string, fields []*idl.Member,
	pl *phase.Plan, doc string) {
	dec := prefix + "Decoder"
	names := make(map[int]string, len(pl.Phases))
	w.xprintf("\nconst (\n")
	for _, ph := range pl.Phases {
		names[ph.ID] = phaseConst(prefix, ph)
		w.xprintf("\t%s = %d\n", names[ph.ID], ph.ID)
	}
	w.xprintf(")\n")

	w.xprintf("\n// %s\n", doc)
	var hooks []string
	for _, ph := range pl.Payloads() {
		if ph.Form == phase.Blob {
			hooks = append(hooks, ph.Target.Name)
		}
	}
	if len(hooks) > 0 {
		w.xprintf("// The Alloc hooks supply blob buffers; nil means " +
			"allocate.\n")
	}
	w.xprintf("type %s struct {\n\tV *%s\n", dec, typ)
	for _, h := range hooks {
		w.xprintf("\tAlloc%s func(n uint32) ([]byte, error)\n", capitalize(h))
	}
	w.xprintf("}\n")

	w.xprintf("\nfunc (d *%s) Decode(c *rxrpc.Call) (st rxrpc.Status) {\n",
		dec)
	w.xprintf("\tdefer rxrpc.Catch(&st)\n")
	if len(fields) > 0 {
		w.xprintf("\tv := d.V\n")
	}
	w.xprintf("\tfor {\n\t\tswitch c.Phase {\n")
	w.xprintf("\t\tcase 0:\n\t\t\tc.Chunk = %d\n\t\t\tc.Enter(%s)\n",
		pl.Chunk, names[1])
	for i, ph := range pl.Phases {
		w.xprintf("\t\tcase %s:\n", names[ph.ID])
		var body string
		switch ph.Form {
		case phase.Flat:
			body = w.flatPhase(prefix, ph, pl.Phases, names)
		case phase.Blob:
			body = w.blobPhase(prefix, ph)
		case phase.Bulk:
			body = w.bulkPhase(prefix, ph)
		case phase.Split:
			body = "if st, done := c.SplitReceive(); !done {\n" +
				"\treturn st\n}\n"
		case phase.Done:
			body = "return rxrpc.Done\n"
		}
		if ph.Form != phase.Done {
			body += fmt.Sprintf("c.Enter(%s)\n", names[pl.Phases[i+1].ID])
		}
		w.xprintf("%s", indent(indent(indent(body))))
	}
	w.xprintf("\t\tdefault:\n\t\t\treturn rxrpc.BadPhase(%q, c.Phase)\n",
		dec)
	w.xprintf("\t\t}\n\t}\n}\n")
}

func (w *wire) flatPhase(prefix string, ph *phase.Phase,
	phases []*phase.Phase, names map[int]string) string {
	out := &strings.Builder{}
	fmt.Fprintf(out, "if !c.Has(%d) {\n\treturn rxrpc.Need(%d)\n}\n",
		ph.Size, ph.Size)
	for _, m := range ph.Fields {
		w.at(prefix, m.Name)
		if m.CountOf == nil {
			out.WriteString(w.decodegen("v."+capitalize(m.Name), m.Name,
				m.Type, "i"))
			continue
		}
		target := m.CountOf
		field := "v." + capitalize(target.Name)
		t := target.Type
		out.WriteString("n := c.U32()\n")
		if t.Max != nil {
			fmt.Fprintf(out, "if err := rxrpc.CheckBound(%q, n, %s); "+
				"err != nil {\n\treturn rxrpc.Fail(err)\n}\n",
				target.Name, bound(t))
		}
		out.WriteString("c.Begin(n)\n")

		// The payload phase directly follows this one.
		after := names[ph.ID+2]
		var zero, start string
		switch {
		case t.Kind() == idl.Bulk:
			zero = field + " = nil\n"
			start = fmt.Sprintf("%s = make(%s, 0, rxrpc.BulkCap(n))\n",
				field, w.goType(t))
		case t.Basic == idl.STRING:
			zero = field + " = \"\"\n"
			start = fmt.Sprintf("buf, err := rxrpc.Alloc(d.Alloc%s, n)\n"+
				"if err != nil {\n\treturn rxrpc.Fail(err)\n}\nc.Buf = buf\n",
				capitalize(target.Name))
		default:
			zero = field + " = []byte{}\n"
			start = fmt.Sprintf("buf, err := rxrpc.Alloc(d.Alloc%s, n)\n"+
				"if err != nil {\n\treturn rxrpc.Fail(err)\n}\n%s = buf\n",
				capitalize(target.Name), field)
		}
		fmt.Fprintf(out, "if n == 0 {\n%s\tc.Enter(%s)\n\tcontinue\n}\n%s",
			indent(zero), after, start)
	}
	return out.String()
}

func (w *wire) blobPhase(prefix string, ph *phase.Phase) string {
	w.at(prefix, ph.Target.Name)
	field := "v." + capitalize(ph.Target.Name)
	if ph.Target.Type.Basic == idl.STRING {
		return fmt.Sprintf("if !c.ReadBlob(c.Buf) {\n"+
			"\treturn rxrpc.Need(c.BlobNeed())\n}\n"+
			"%s = string(c.Buf)\nc.Buf = nil\n", field)
	}
	return fmt.Sprintf("if !c.ReadBlob(%s) {\n"+
		"\treturn rxrpc.Need(c.BlobNeed())\n}\n", field)
}

func (w *wire) bulkPhase(prefix string, ph *phase.Phase) string {
	w.at(prefix, ph.Target.Name)
	field := "v." + capitalize(ph.Target.Name)
	elem := ph.Target.Type.Elem
	var read string
	if elem.Kind() == idl.Struct {
		read = fmt.Sprintf("var el %s\nc.Decode(%q, &el)\n%s = append(%s, el)\n",
			elem.Name, ph.Target.Name, field, field)
	} else {
		read = fmt.Sprintf("%s = append(%s, c.%s())\n", field, field,
			encoderMethod(elem))
	}
	return fmt.Sprintf("for c.More() {\n\tif !c.Has(%d) {\n"+
		"\t\treturn rxrpc.Need(c.BulkNeed(%d))\n\t}\n%s\tc.Next()\n}\n",
		ph.Size, ph.Size, indent(read))
}

// The abort codes of every package, one table for the whole unit.
func (w *wire) emitAborts() {
	var codes []*idl.AbortCode
	for _, pkg := range w.reg.PkgList {
		if len(pkg.Aborts) == 0 {
			continue
		}
		w.xprintf("\nvar _%s_abort = rxrpc.NewPackageAbort(%q)\n",
			pkg.Name, pkg.Name)
		codes = append(codes, pkg.Aborts...)
	}
	sort.SliceStable(codes, func(i, j int) bool {
		return codes[i].U32 < codes[j].U32
	})
	w.xprintf("\n// Remote abort codes by value.\n")
	w.xprintf("var Aborts = rxrpc.NewAbortTable(")
	for _, ac := range codes {
		w.xprintf("\n\t&rxrpc.AbortCode{Name: %q, Code: %d, Class: _%s_abort},",
			ac.Name, ac.U32, ac.Pkg.Name)
	}
	if len(codes) > 0 {
		w.xprintf("\n")
	}
	w.xprintf(")\n")
}
