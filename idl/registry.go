package idl

import (
	"fmt"
	"math"
	"strings"
)

// Registry holds every entity of one compilation unit.  It is filled
// by a single top-to-bottom pass over the input files and is not
// shared: concurrent compilations each use their own Registry.
type Registry struct {
	Types     map[string]*Type
	Aliases   map[string]*Alias
	Structs   []*Type // in declaration order
	Constants map[string]*Constant
	ConstList []*Constant // in declaration order
	Packages  map[string]*Package
	PkgList   []*Package
	Procs     []*Proc
	Aborts    map[string]*AbortCode
	AbortIDs  map[uint32]*AbortCode
	Errors    ParseErrors

	pkg       *Package
	procNames map[string]*Proc
	structs   map[string]*Type
}

type Options struct {
	// Define RXRPC_SECURITY_PLAIN, _AUTH and _ENCRYPT.
	Predefined bool
}

var DefaultOptions = Options{Predefined: true}

func NewRegistry(opts Options) *Registry {
	r := &Registry{
		Types:     map[string]*Type{},
		Aliases:   map[string]*Alias{},
		Constants: map[string]*Constant{},
		Packages:  map[string]*Package{},
		Aborts:    map[string]*AbortCode{},
		AbortIDs:  map[uint32]*AbortCode{},
		procNames: map[string]*Proc{},
		structs:   map[string]*Type{},
	}
	for _, b := range basicTypes {
		r.Types[b.name] = newBasicType(b)
	}
	if opts.Predefined {
		for i, name := range []string{"RXRPC_SECURITY_PLAIN",
			"RXRPC_SECURITY_AUTH", "RXRPC_SECURITY_ENCRYPT"} {
			r.AddConstant(Pos{}, name, &Constant{
				Value: int64(i),
				Text:  fmt.Sprint(i),
			})
		}
	}
	return r
}

// Record a diagnostic.
func (r *Registry) Report(class Class, pos Pos, msg string, args ...interface{}) {
	r.Errors = append(r.Errors, ParseError{
		Class: class,
		Pos:   pos,
		Msg:   fmt.Sprintf(msg, args...),
	})
}

func (r *Registry) semantic(pos Pos, msg string, args ...interface{}) {
	r.Report(SemanticError, pos, msg, args...)
}

func (r *Registry) Failed() bool {
	return len(r.Errors) > 0
}

// Current package, or nil before the first package declaration.
func (r *Registry) Package() *Package {
	return r.pkg
}

func (r *Registry) AddPackage(pos Pos, prefix string) *Package {
	name := strings.TrimSuffix(prefix, "_")
	if pkg, ok := r.Packages[name]; ok {
		r.semantic(pos, "package %s already exists", name)
		r.pkg = pkg
		return pkg
	}
	pkg := &Package{Name: name, Prefix: prefix, Pos: pos}
	r.Packages[name] = pkg
	r.PkgList = append(r.PkgList, pkg)
	r.pkg = pkg
	return pkg
}

// Register a named constant whose value is taken from val.
func (r *Registry) AddConstant(pos Pos, name string, val *Constant) *Constant {
	if c, ok := r.Constants[name]; ok {
		r.semantic(pos, "constant %s already exists", name)
		return c
	}
	c := &Constant{Name: name, Value: val.Value, Text: val.Text, Pos: pos}
	r.Constants[name] = c
	r.ConstList = append(r.ConstList, c)
	return c
}

// Look up a constant by name.  An undefined name is reported and
// evaluates to zero so that parsing can continue.
func (r *Registry) GetConstant(pos Pos, name string) *Constant {
	if c, ok := r.Constants[name]; ok {
		return c
	}
	r.semantic(pos, "constant %s undefined", name)
	return &Constant{Name: "", Value: 0, Text: "0", Pos: pos}
}

func (r *Registry) AddErrorCodes(pos Pos, codes []*Constant) {
	if r.pkg == nil {
		r.semantic(pos, "error codes outside of any package")
		return
	}
	for _, c := range codes {
		if _, ok := r.Aborts[c.Name]; ok {
			r.semantic(c.Pos, "abort code %s already exists", c.Name)
			continue
		}
		ac := &AbortCode{Constant: c, U32: uint32(c.Value), Pkg: r.pkg}
		r.pkg.Aborts = append(r.pkg.Aborts, ac)
		r.Aborts[c.Name] = ac
		if _, dup := r.AbortIDs[ac.U32]; !dup {
			r.AbortIDs[ac.U32] = ac
		}
	}
}

// Register a new named type (struct or enum).
func (r *Registry) AddType(pos Pos, name string, t *Type) *Type {
	if old, ok := r.Types[name]; ok {
		r.semantic(pos, "type %s already exists", name)
		return old
	}
	r.Types[name] = t
	return t
}

func (r *Registry) AddStruct(pos Pos, t *Type) *Type {
	if old, ok := r.structs[t.Name]; ok {
		r.semantic(pos, "struct %s already exists", t.Name)
		return old
	}
	r.structs[t.Name] = t
	r.Structs = append(r.Structs, t)
	return r.AddType(pos, t.Name, t)
}

func (r *Registry) AddAlias(pos Pos, name string, t *Type) {
	if _, ok := r.Aliases[name]; ok {
		r.semantic(pos, "type alias %s already exists", name)
		return
	} else if _, ok := r.structs[name]; ok {
		r.semantic(pos, "struct %s already exists, cannot shadow with alias",
			name)
		return
	}
	r.Aliases[name] = &Alias{Name: name, Type: t, Pos: pos}
}

// Look up a type, then an alias, by name.
func (r *Registry) GetType(name string) (*Type, error) {
	if t, ok := r.Types[name]; ok {
		return t, nil
	} else if a, ok := r.Aliases[name]; ok {
		return a.Type, nil
	}
	return nil, UndefinedType(name)
}

func (r *Registry) AddProc(p *Proc) {
	if _, ok := r.procNames[p.Name]; ok {
		r.semantic(p.Pos, "proc %s already exists", p.Name)
		return
	}
	p.Request, p.Response = Classify(p.Params)
	r.procNames[p.Name] = p
	r.Procs = append(r.Procs, p)
}

func (r *Registry) Proc(name string) *Proc {
	return r.procNames[name]
}

// Build a new struct type.  Its size is the sum of the member sizes,
// or unknown if any member's size is unknown.  A struct whose size
// does not fit in 32 bits is returned with an unknown size and an
// error.
func NewStruct(name string, members []*Member, pos Pos) (*Type, error) {
	t := &Type{Name: name, Basic: STRUCT, Members: members, Pos: pos}
	var total uint64
	for _, m := range members {
		sz, ok := m.Type.FixedSize()
		if !ok {
			return t, nil
		}
		total += uint64(sz)
	}
	if total > math.MaxUint32 {
		return t, fmt.Errorf("struct %s too large", name)
	}
	t.XdrSize = sizeOf(uint32(total))
	return t, nil
}

// Check that c fits in an unsigned 32-bit word.
func checkU32(what string, c *Constant) error {
	if c != nil && (c.Value < 0 || c.Value > math.MaxUint32) {
		return fmt.Errorf("%s %s out of range", what, c)
	}
	return nil
}

// Apply a fixed dimension, a bulk bound, or a blob bound to base.
// base is never modified.  Shape violations are returned as errors
// for the caller to report.
func Derive(base *Type, card Cardinality, dim, max *Constant,
	pos Pos) (*Type, error) {
	if card == SINGLE && dim == nil && max == nil {
		return base, nil
	}
	t := *base
	t.Pos = pos
	switch card {
	case FIXED:
		if dim == nil {
			return nil, fmt.Errorf("dimension required for fixed-size array")
		} else if max != nil {
			return nil, fmt.Errorf(
				"can't be both variable and fixed-size array")
		} else if base.Card != SINGLE {
			return nil, fmt.Errorf("array-of-array not supported")
		} else if dim.Value <= 0 {
			return nil, fmt.Errorf("array dimension %s must be positive", dim)
		} else if err := checkU32("array dimension", dim); err != nil {
			return nil, err
		}
		t.Card, t.Dim, t.Max, t.Elem = FIXED, dim, nil, base
		t.XdrSize = nil
		if sz, ok := base.FixedSize(); ok {
			total := uint64(sz) * uint64(dim.Value)
			if total > math.MaxUint32 {
				return nil, fmt.Errorf("array too large")
			}
			t.XdrSize = sizeOf(uint32(total))
		}
	case BULK:
		if dim != nil {
			return nil, fmt.Errorf(
				"can't be both variable and fixed-size array")
		} else if base.Card != SINGLE {
			return nil, fmt.Errorf("array-of-array not supported")
		} else if err := checkU32("bound", max); err != nil {
			return nil, err
		}
		t.Card, t.Dim, t.Max, t.Elem = BULK, nil, max, base
		t.XdrSize = nil
	case SINGLE:
		if dim != nil {
			if base.IsBlobBase() {
				return nil, fmt.Errorf(
					"can't specify fixed dimension limits on string/opaque")
			}
			return nil, fmt.Errorf("can't specify dimension limits on non-array")
		} else if !base.IsBlobBase() || base.Card != SINGLE {
			if max != nil {
				return nil, fmt.Errorf(
					"can't specify dimension limits on non-array")
			}
			return &t, nil
		} else if max != nil && base.Max != nil {
			return nil, fmt.Errorf("maximum size already set on string/opaque")
		} else if err := checkU32("bound", max); err != nil {
			return nil, err
		}
		if max != nil {
			t.Max = max
		}
		t.XdrSize = nil
	}
	return &t, nil
}
