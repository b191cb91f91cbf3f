// Package phase partitions an ordered field list into resumable
// decode phases.
//
// A decoder fed arbitrary chunks of a message must always be able to
// say how many more bytes it needs before it can make progress, and
// must never re-read bytes it has already consumed.  Consecutive
// fixed-size fields are decoded together once enough bytes have
// arrived (a flat phase).  A blob or bulk array is preceded on the wire
// by a 4-byte count, which is appended to the flat phase before it;
// the payload itself gets a phase of its own that the decoder re-enters
// until the count is exhausted.
package phase

import (
	"fmt"
	"math"
	"strings"

	"github.com/xdrpp/rxgen/idl"
)

type Form int

const (
	Flat Form = iota + 1
	Blob
	Bulk
	Split
	Done
)

func (f Form) String() string {
	switch f {
	case Flat:
		return "flat"
	case Blob:
		return "blob"
	case Bulk:
		return "bulk"
	case Split:
		return "split"
	case Done:
		return "done"
	}
	return fmt.Sprintf("Form(%d)", int(f))
}

// Default cap on the bytes a blob or bulk phase asks for at once.
const DefaultChunk = 1024

// Bulk elements no larger than this are read several at a time.
const SmallElem = 512

// One resumable unit of decode work.
type Phase struct {
	ID   int // numbered from 1; 0 means not started
	Form Form

	// Bytes that must be available before the phase can run.  For
	// flat phases this is the sum of the field sizes, for blob phases
	// the chunk cap, and for bulk phases the size of one element.
	// Split and Done phases have no static threshold.
	Size uint32

	// Flat: the fields decoded, including any synthesized count.
	// Blob and Bulk: the payload member alone.
	Fields []*idl.Member

	// Blob and Bulk only: the payload member and the count member
	// that precedes it in the previous flat phase.
	Target *idl.Member
	Count  *idl.Member
}

func (p *Phase) String() string {
	var names []string
	for _, f := range p.Fields {
		names = append(names, f.Name)
	}
	return fmt.Sprintf("%d:%s/%d{%s}", p.ID, p.Form, p.Size,
		strings.Join(names, ","))
}

// Elem is the element size of a bulk phase, or 1 for a blob phase.
func (p *Phase) Elem() uint32 {
	if p.Form == Bulk {
		sz, _ := p.Target.Type.Base().FixedSize()
		return sz
	}
	return 1
}

type Plan struct {
	Phases []*Phase
	Chunk  uint32
}

func (pl *Plan) String() string {
	var out []string
	for _, p := range pl.Phases {
		out = append(out, p.String())
	}
	return strings.Join(out, " ")
}

// The phases that decode payloads, in order.
func (pl *Plan) Payloads() []*Phase {
	var ret []*Phase
	for _, p := range pl.Phases {
		if p.Form == Blob || p.Form == Bulk {
			ret = append(ret, p)
		}
	}
	return ret
}

// Whether the planned fields contain anything of dynamic size.
func (pl *Plan) Dynamic() bool {
	for _, p := range pl.Phases {
		if p.Form != Flat && p.Form != Done {
			return true
		}
	}
	return false
}

// Where a procedure's auxiliary transfer sits relative to its fields.
type SplitPos int

const (
	NoSplit SplitPos = iota
	SplitFirst
	SplitLast
)

// The split position of a procedure's request or response plan.  The
// request carries the transfer after its fields, the response before.
func ProcSplit(split, request bool) SplitPos {
	switch {
	case !split:
		return NoSplit
	case request:
		return SplitLast
	}
	return SplitFirst
}

type Options struct {
	Split SplitPos
	Chunk uint32 // 0 means DefaultChunk
}

// A field whose shape the planner cannot decode.
type ShapeError struct {
	Member *idl.Member
	Msg    string
}

func (err ShapeError) Error() string {
	return fmt.Sprintf("%s: %s", err.Member.Name, err.Msg)
}

// The name of the count word synthesized ahead of a payload.
func CountName(m *idl.Member) string {
	return "nr__" + m.Name
}

// Check that a field can appear in a plan and return its Kind.
func Check(m *idl.Member) (idl.Kind, error) {
	t := m.Type
	k := t.Kind()
	switch k {
	case idl.Scalar32, idl.Scalar64:
	case idl.Struct:
		if _, ok := t.FixedSize(); !ok {
			return k, ShapeError{m, fmt.Sprintf(
				"struct %s has dynamic size and cannot be nested", t.Name)}
		}
	case idl.FixedArray:
		if t.Elem.IsBlobBase() {
			return k, ShapeError{m, "array of blob not supported"}
		} else if _, ok := t.FixedSize(); !ok {
			return k, ShapeError{m, fmt.Sprintf(
				"array of dynamic struct %s not supported", t.Elem.Name)}
		}
	case idl.Blob:
	case idl.Bulk:
		if t.Elem.IsBlobBase() {
			return k, ShapeError{m, "bulk array of blob not supported"}
		} else if _, ok := t.Elem.FixedSize(); !ok {
			return k, ShapeError{m, fmt.Sprintf(
				"bulk array of dynamic struct %s not supported", t.Elem.Name)}
		}
	default:
		return k, ShapeError{m, fmt.Sprintf("unsupported kind %s", k)}
	}
	return k, nil
}

// Build the decode plan for an ordered field list.
func Build(fields []*idl.Member, opts Options) (*Plan, error) {
	pl := &Plan{Chunk: opts.Chunk}
	if pl.Chunk == 0 {
		pl.Chunk = DefaultChunk
	}
	add := func(p *Phase) {
		p.ID = len(pl.Phases) + 1
		pl.Phases = append(pl.Phases, p)
	}
	var flat *Phase
	closeFlat := func() {
		if flat != nil {
			add(flat)
			flat = nil
		}
	}
	addFlat := func(m *idl.Member, size uint32) error {
		if flat == nil {
			flat = &Phase{Form: Flat}
		}
		if uint64(flat.Size)+uint64(size) > math.MaxUint32 {
			return ShapeError{m, "fixed-size fields too large"}
		}
		flat.Fields = append(flat.Fields, m)
		flat.Size += size
		return nil
	}

	if opts.Split == SplitFirst {
		add(&Phase{Form: Split})
	}
	for _, m := range fields {
		k, err := Check(m)
		if err != nil {
			return nil, err
		}
		switch k {
		case idl.Blob, idl.Bulk:
			count := &idl.Member{
				Name:    CountName(m),
				Type:    idl.CountType(),
				Pos:     m.Pos,
				CountOf: m,
			}
			if err := addFlat(count, 4); err != nil {
				return nil, err
			}
			closeFlat()
			p := &Phase{Form: Blob, Size: pl.Chunk, Fields: []*idl.Member{m},
				Target: m, Count: count}
			if k == idl.Bulk {
				p.Form = Bulk
				p.Size, _ = m.Type.Elem.FixedSize()
			}
			add(p)
		default:
			sz, _ := m.Type.FixedSize()
			if err := addFlat(m, sz); err != nil {
				return nil, err
			}
		}
	}
	closeFlat()
	if opts.Split == SplitLast {
		add(&Phase{Form: Split})
	}
	add(&Phase{Form: Done})
	return pl, nil
}
