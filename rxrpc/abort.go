package rxrpc

import (
	"fmt"
	"sort"
)

// A family of remote abort codes.  Classes chain to their parent, and
// every chain ends at RemoteAbort, so errors.Is works at any level.
type AbortClass struct {
	Name   string
	Parent *AbortClass
}

func (c *AbortClass) Error() string {
	return c.Name
}

func (c *AbortClass) Unwrap() error {
	if c.Parent == nil {
		return nil
	}
	return c.Parent
}

// Classes with the same name match, so separately generated tables
// agree with each other.
func (c *AbortClass) Is(target error) bool {
	t, ok := target.(*AbortClass)
	return ok && t.Name == c.Name
}

// The root of every abort class.
var RemoteAbort = &AbortClass{Name: "RemoteAbort"}

// Create the per-package class for package pkg.
func NewPackageAbort(pkg string) *AbortClass {
	return &AbortClass{Name: pkg + "Abort", Parent: RemoteAbort}
}

// One named abort code returned by a remote server.
type AbortCode struct {
	Name  string
	Code  uint32
	Class *AbortClass
}

func (a *AbortCode) Error() string {
	return fmt.Sprintf("%s: %s (%d)", a.Class.Name, a.Name, int32(a.Code))
}

func (a *AbortCode) Unwrap() error {
	return a.Class
}

func (a *AbortCode) Is(target error) bool {
	t, ok := target.(*AbortCode)
	return ok && t.Code == a.Code && t.Name == a.Name
}

// An abort code nobody declared.
type UnknownAbort uint32

func (u UnknownAbort) Error() string {
	return fmt.Sprintf("unknown abort code %d", int32(u))
}

func (u UnknownAbort) Unwrap() error {
	return RemoteAbort
}

// Abort codes by value.
type AbortTable map[uint32]*AbortCode

func NewAbortTable(codes ...*AbortCode) AbortTable {
	t := AbortTable{}
	t.Add(codes...)
	return t
}

// Add codes; the first code registered for a value wins.
func (t AbortTable) Add(codes ...*AbortCode) {
	for _, a := range codes {
		if _, ok := t[a.Code]; !ok {
			t[a.Code] = a
		}
	}
}

// The error for an abort code received from the wire.
func (t AbortTable) Err(code uint32) error {
	if a, ok := t[code]; ok {
		return a
	}
	return UnknownAbort(code)
}

// The codes sorted by value.
func (t AbortTable) Sorted() []*AbortCode {
	ret := make([]*AbortCode, 0, len(t))
	for _, a := range t {
		ret = append(ret, a)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Code < ret[j].Code })
	return ret
}
