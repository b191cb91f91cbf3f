package idl

// Direction of a procedure parameter.
type Direction int

const (
	IN Direction = iota + 1
	OUT
	INOUT
)

func (d Direction) String() string {
	switch d {
	case IN:
		return "IN"
	case OUT:
		return "OUT"
	case INOUT:
		return "INOUT"
	}
	return "?"
}

type Param struct {
	Member
	Dir Direction
}

// A remote procedure.
type Proc struct {
	Name   string // package-qualified, e.g. VL_GetEntryByName
	Short  string // as declared
	Pkg    *Package
	Params []*Param
	Opcode *Constant
	Multi  bool
	Split  bool
	Pos    Pos

	// Derived by Classify.
	Request, Response []*Param
}

// Split a parameter list by direction.  IN parameters go only to the
// request, OUT only to the response, and INOUT to both; each list
// keeps declaration order.
func Classify(params []*Param) (request, response []*Param) {
	for _, p := range params {
		switch p.Dir {
		case IN:
			request = append(request, p)
		case OUT:
			response = append(response, p)
		case INOUT:
			request = append(request, p)
			response = append(response, p)
		}
	}
	return
}

// The parameter list as plain members, for the phase planner.
func Members(params []*Param) []*Member {
	ret := make([]*Member, len(params))
	for i := range params {
		ret[i] = &params[i].Member
	}
	return ret
}

// A package groups procedures and the abort codes their servers may
// return.
type Package struct {
	Name   string // display name, trailing '_' removed
	Prefix string // as declared
	Aborts []*AbortCode
	Pos    Pos
}

// A remote abort code.  Negative source values are folded to their
// 32-bit two's complement.
type AbortCode struct {
	*Constant
	U32 uint32
	Pkg *Package
}
