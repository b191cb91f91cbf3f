// Package emit generates Go source from a parsed IDL registry.
//
// There are two backends over the same model.  The wire backend
// produces plain Go structs with goxdr marshaling methods, request and
// response encoders, and resumable phased decoders driven by an
// rxrpc.Call.  The binding backend produces descriptor tables for the
// rxbind dynamic-object runtime.  Both consume the phase plans built by
// package phase, so field order and phase structure are identical.
package emit

import (
	"fmt"
	"strings"

	"github.com/xdrpp/rxgen/idl"
	"github.com/xdrpp/rxgen/phase"
)

type Options struct {
	Package     string // Go package of the wire artifacts
	BindPackage string // Go package of the binding artifacts
	Chunk       uint32 // blob/bulk read cap; 0 means phase.DefaultChunk
}

// A type shape the emitters cannot represent.  Where is the
// struct:member or proc:param being emitted.
type GenerationError struct {
	Where string
	Msg   string
}

func (err GenerationError) Error() string {
	if err.Where == "" {
		return err.Msg
	}
	return fmt.Sprintf("%s: %s", err.Where, err.Msg)
}

// State shared by both backends.  An emitter belongs to one
// generation run.
type emitter struct {
	reg   *idl.Registry
	opts  Options
	where string
}

func newEmitter(reg *idl.Registry, opts Options) *emitter {
	if opts.Package == "" {
		opts.Package = "rxgen"
	}
	if opts.BindPackage == "" {
		opts.BindPackage = opts.Package
	}
	if opts.Chunk == 0 {
		opts.Chunk = phase.DefaultChunk
	}
	return &emitter{reg: reg, opts: opts}
}

func (e *emitter) at(context, member string) {
	e.where = context + ":" + member
}

func (e *emitter) throw(msg string, args ...interface{}) {
	panic(GenerationError{Where: e.where, Msg: fmt.Sprintf(msg, args...)})
}

// Deferred by every entry point.
func catch(err *error) {
	if i := recover(); i != nil {
		if ge, ok := i.(GenerationError); ok {
			*err = ge
			return
		}
		panic(i)
	}
}

// Plan fields, converting planner shape errors to generation errors.
func (e *emitter) plan(context string, fields []*idl.Member,
	split phase.SplitPos) *phase.Plan {
	pl, err := phase.Build(fields, phase.Options{Split: split,
		Chunk: e.opts.Chunk})
	if err != nil {
		if se, ok := err.(phase.ShapeError); ok {
			e.at(context, se.Member.Name)
			e.throw("%s", se.Msg)
		}
		e.throw("%s", err)
	}
	return pl
}

// Check a struct's members for shapes no backend supports.
func (e *emitter) checkStruct(t *idl.Type) {
	for _, m := range t.Members {
		e.at(t.Name, m.Name)
		if _, err := phase.Check(m); err != nil {
			e.throw("%s", err.(phase.ShapeError).Msg)
		}
	}
}

// Check a parameter list.  Parameters may be scalars, fixed-size
// structs, blobs, or bulk arrays.
func (e *emitter) checkParams(p *idl.Proc) {
	for _, prm := range p.Params {
		e.at(p.Name, prm.Name)
		if _, err := phase.Check(&prm.Member); err != nil {
			e.throw("%s", err.(phase.ShapeError).Msg)
		}
		if prm.Type.Kind() == idl.FixedArray {
			e.throw("array parameter not supported")
		}
	}
}

func capitalize(s string) string {
	if len(s) > 0 && s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]&^0x20) + s[1:]
	}
	return s
}

func indent(s string) string {
	if s == "" {
		return ""
	}
	return "\t" + strings.Replace(strings.TrimSuffix(s, "\n"), "\n", "\n\t",
		-1) + "\n"
}

// Expand $NAME placeholders in a code fragment.
func frag(text string, kv ...string) string {
	pairs := make([]string, len(kv))
	for i := 0; i < len(kv); i += 2 {
		pairs[i], pairs[i+1] = "$"+kv[i], kv[i+1]
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// Every struct, plus every procedure's request and response, checked
// and planned.  Shared by both backends.
type model struct {
	structs []*structInfo
	procs   []*procInfo
	reached idl.Reached
}

type structInfo struct {
	t    *idl.Type
	plan *phase.Plan
}

func (s *structInfo) dynamic() bool {
	_, ok := s.t.FixedSize()
	return !ok
}

type procInfo struct {
	p        *idl.Proc
	req      []*idl.Member
	resp     []*idl.Member
	reqPlan  *phase.Plan
	respPlan *phase.Plan
}

func (e *emitter) model() *model {
	m := &model{reached: idl.Reachable(e.reg)}
	for _, t := range e.reg.Structs {
		e.checkStruct(t)
		m.structs = append(m.structs, &structInfo{
			t:    t,
			plan: e.plan(t.Name, t.Members, phase.NoSplit),
		})
	}
	for _, p := range e.reg.Procs {
		e.checkParams(p)
		pi := &procInfo{
			p:    p,
			req:  idl.Members(p.Request),
			resp: idl.Members(p.Response),
		}
		pi.reqPlan = e.plan(p.Name, pi.req, phase.ProcSplit(p.Split, true))
		pi.respPlan = e.plan(p.Name, pi.resp, phase.ProcSplit(p.Split, false))
		m.procs = append(m.procs, pi)
	}
	e.where = ""
	return m
}

// Go type of a scalar.
func scalarType(t *idl.Type) string {
	switch {
	case t.Basic == idl.INT32 && t.Signed:
		return "int32"
	case t.Basic == idl.INT32:
		return "uint32"
	case t.Signed:
		return "int64"
	}
	return "uint64"
}

// Go type of a member or parameter in the wire representation.
func (e *emitter) goType(t *idl.Type) string {
	switch t.Kind() {
	case idl.Scalar32, idl.Scalar64:
		return scalarType(t)
	case idl.Struct:
		return t.Name
	case idl.FixedArray:
		return fmt.Sprintf("[%s]%s", t.Dim.Expr(), e.goType(t.Elem))
	case idl.Blob:
		if t.Basic == idl.STRING {
			return "string"
		}
		return "[]byte"
	case idl.Bulk:
		return "[]" + e.goType(t.Elem)
	}
	e.throw("unsupported type %s", t)
	return ""
}

// The Go bound expression of a blob or bulk type, "" if unbounded.
func bound(t *idl.Type) string {
	if t.Max == nil {
		return ""
	}
	return t.Max.Expr()
}
