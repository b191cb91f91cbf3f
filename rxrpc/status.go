// Package rxrpc is the runtime linked into code generated by rxgen.
//
// Generated request encoders serialize through an Encoder.  Generated
// decoders are resumable: they consume bytes buffered in a Call and
// return a Status saying how many bytes they need before they can make
// further progress, that they are done, or that the input was bad.
// All progress lives in the Call (the current phase and a per-phase
// cursor), so a decoder can be invoked again whenever more bytes
// arrive.
package rxrpc

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/xdrpp/goxdr/xdr"
)

type Result int

const (
	NeedMore Result = iota
	Complete
	Failed
)

func (r Result) String() string {
	switch r {
	case NeedMore:
		return "need"
	case Complete:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// The outcome of one call to a decoder.
type Status struct {
	Result Result

	// With NeedMore, the decoder should be called again once at
	// least this many bytes are available in the Call.  AnySize
	// means any amount will do.
	Need uint32

	Err error // with Failed
}

func (s Status) String() string {
	switch s.Result {
	case NeedMore:
		return fmt.Sprintf("need(%d)", s.Need)
	case Failed:
		return fmt.Sprintf("failed(%v)", s.Err)
	}
	return s.Result.String()
}

func Need(n uint32) Status {
	return Status{Result: NeedMore, Need: n}
}

var Done = Status{Result: Complete}

func Fail(err error) Status {
	return Status{Result: Failed, Err: err}
}

// Any decoder generated by rxgen.
type Decoder interface {
	Decode(c *Call) Status
}

// DecodeFunc adapts a function to the Decoder interface.
type DecodeFunc func(c *Call) Status

func (f DecodeFunc) Decode(c *Call) Status {
	return f(c)
}

// The status for a Call whose phase the decoder does not know.
func BadPhase(decoder string, phase int) Status {
	return Fail(fmt.Errorf("%s: bad phase %d", decoder, phase))
}

// Returned for values that violate a declared bound, before or instead
// of touching the wire.
var ErrInvalid error = syscall.EINVAL

// Check a blob length or bulk count against its declared maximum.
func CheckBound(field string, n, max uint32) error {
	if n > max {
		return fmt.Errorf("%w: %s has %d elements, maximum %d",
			ErrInvalid, field, n, max)
	}
	return nil
}

// Deferred by generated decoders: converts a panic carrying an
// xdr.XdrError (short or malformed input) into a Failed status.
func Catch(st *Status) {
	if i := recover(); i != nil {
		if xe, ok := i.(xdr.XdrError); ok {
			*st = Fail(xe)
			return
		}
		panic(i)
	}
}

// Deferred by generated encoders: converts an xdr.XdrError panic into
// an error return.
func CatchErr(err *error) {
	if i := recover(); i != nil {
		if xe, ok := i.(xdr.XdrError); ok {
			*err = xe
			return
		}
		panic(i)
	}
}

// Whether err was produced by a bound check.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}
