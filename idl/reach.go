package idl

// The set of struct names reachable from at least one procedure
// parameter, directly or through members and array elements.
type Reached map[string]bool

// Walk every procedure's parameters and mark the structs they use.
func Reachable(r *Registry) Reached {
	ret := Reached{}
	var visit func(t *Type)
	visit = func(t *Type) {
		t = t.Base()
		if t.Basic != STRUCT || ret[t.Name] {
			return
		}
		ret[t.Name] = true
		for _, m := range t.Members {
			visit(m.Type)
		}
	}
	for _, p := range r.Procs {
		for _, prm := range p.Params {
			visit(prm.Type)
		}
	}
	return ret
}

// The reached structs, in declaration order.
func (rs Reached) Structs(r *Registry) []*Type {
	var ret []*Type
	for _, t := range r.Structs {
		if rs[t.Name] {
			ret = append(ret, t)
		}
	}
	return ret
}
