// Package rxgen compiles RPC interface definitions into Go.
//
// Compile parses a set of IDL files as one unit and produces four
// artifacts: the wire header and source (plain structs, encoders, and
// resumable phased decoders over package rxrpc) and the binding
// header and source (descriptor tables for package rxbind).
package rxgen

import (
	"fmt"
	"go/format"
	"io/ioutil"
	"path/filepath"

	"github.com/golang/glog"
	"go.uber.org/multierr"

	"github.com/xdrpp/rxgen/emit"
	"github.com/xdrpp/rxgen/idl"
	"github.com/xdrpp/rxgen/phase"
)

// One input file.
type Source struct {
	Name     string
	Contents []byte
}

// Read every file, reporting all the ones that could not be read.
func ReadSources(files []string) ([]Source, error) {
	var err error
	ret := make([]Source, 0, len(files))
	for _, file := range files {
		contents, e := ioutil.ReadFile(file)
		if e != nil {
			err = multierr.Append(err, e)
			continue
		}
		ret = append(ret, Source{Name: file, Contents: contents})
	}
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// Parse sources into a registry.  Diagnostics are returned as
// idl.ParseErrors.
func Parse(srcs []Source, conf *Config) (*idl.Registry, error) {
	reg := idl.NewRegistry(idl.Options{
		Predefined: conf.Compile.PredefinedConstants,
	})
	for _, src := range srcs {
		glog.V(1).Infof("parsing %s", src.Name)
		idl.ParseFile(reg, src.Name, string(src.Contents))
	}
	if len(reg.Errors) > 0 {
		return nil, reg.Errors
	}
	return reg, nil
}

func emitOptions(conf *Config) emit.Options {
	return emit.Options{
		Package:     conf.Output.Package,
		BindPackage: conf.bindPackage(),
		Chunk:       conf.chunk(),
	}
}

func (c *Config) bindPackage() string {
	if c.Output.BindPackage == "" {
		return c.Output.Package
	}
	return c.Output.BindPackage
}

// The decode plans of one procedure.
type ProcPlans struct {
	Proc              *idl.Proc
	Request, Response *phase.Plan
}

// Plan the request and response of every procedure in reg.
func Plans(reg *idl.Registry, conf *Config) ([]ProcPlans, error) {
	ret := make([]ProcPlans, 0, len(reg.Procs))
	for _, p := range reg.Procs {
		pp := ProcPlans{Proc: p}
		for _, dir := range []struct {
			params  []*idl.Param
			request bool
			plan    **phase.Plan
		}{
			{p.Request, true, &pp.Request},
			{p.Response, false, &pp.Response},
		} {
			pl, err := phase.Build(idl.Members(dir.params), phase.Options{
				Chunk: conf.chunk(),
				Split: phase.ProcSplit(p.Split, dir.request),
			})
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p.Name, err)
			}
			*dir.plan = pl
		}
		ret = append(ret, pp)
	}
	return ret, nil
}

func logPlans(reg *idl.Registry, conf *Config) {
	plans, err := Plans(reg, conf)
	if err != nil {
		glog.Errorf("planning: %s", err)
		return
	}
	for _, pp := range plans {
		glog.Infof("%s request: %s", pp.Proc.Name, pp.Request)
		glog.Infof("%s response: %s", pp.Proc.Name, pp.Response)
	}
}

// Compile srcs as one unit.  Nothing is written; see Output.WriteFiles.
func Compile(srcs []Source, conf *Config) (*Output, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	reg, err := Parse(srcs, conf)
	if err != nil {
		return nil, err
	}
	opts := emitOptions(conf)
	wireTypes, wireSrc, err := emit.Wire(reg, opts)
	if err != nil {
		return nil, err
	}
	bindTypes, bindSrc, err := emit.BindingSource(reg, opts)
	if err != nil {
		return nil, err
	}
	if glog.V(2) {
		logPlans(reg, conf)
	}

	out := &Output{Digest: Digest(srcs)}
	header := "// Code generated by rxgen; DO NOT EDIT.\n"
	if conf.Output.HeaderDigest {
		header += fmt.Sprintf("%s%s\n", digestPrefix, out.Digest)
	}
	for i, body := range []string{wireTypes, wireSrc, bindTypes, bindSrc} {
		name := ArtifactNames(conf)[i]
		code, err := format.Source([]byte(header + "\n" + body))
		if err != nil {
			return nil, fmt.Errorf("%s: formatting generated code: %w",
				name, err)
		}
		glog.V(2).Infof("generated %s (%d bytes)", name, len(code))
		out.Files = append(out.Files, File{Name: name, Contents: code})
	}
	return out, nil
}

// The four artifact paths relative to the output directory: wire
// header, wire source, binding header, binding source.
func ArtifactNames(conf *Config) []string {
	b := conf.Output.Basename
	bindDir := ""
	if p := conf.bindPackage(); p != conf.Output.Package {
		bindDir = p
	}
	return []string{
		b + "_wire_types.go",
		b + "_wire.go",
		filepath.Join(bindDir, b+"_bind_types.go"),
		filepath.Join(bindDir, b+"_bind.go"),
	}
}
