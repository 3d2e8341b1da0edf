package jsonrpc

import (
	"context"
	"fmt"

	"github.com/mnehpets/sigrpc/jsontype"
	"github.com/mnehpets/sigrpc/signature"
)

// HandlerFunc implements a procedure. The context always carries the *Call
// (see CallFromContext). Declared optional parameters the client omitted are
// present in p as nil.
//
// Returning an *Error (possibly wrapped) reports that error to the client
// unchanged; any other error is reported as an InternalError.
type HandlerFunc func(ctx context.Context, p Params) (any, error)

// Descriptor is the registered metadata for one procedure. Descriptors are
// immutable once built and safe to share.
type Descriptor struct {
	Name       string
	Params     []signature.Param
	Return     jsontype.TypeTag
	Handler    HandlerFunc
	Safe       bool // callable through the read-only (GET) transport
	Describe   bool // listed by system.describe
	Idempotent bool
	Summary    string
	DocsURL    string
	Signature  string // the signature as written
}

// ProcOption configures a Descriptor built by NewProc.
type ProcOption func(*Descriptor)

// Safe marks the procedure callable through GET and JSON-P.
func Safe() ProcOption { return func(d *Descriptor) { d.Safe = true } }

// Hidden omits the procedure from system.describe.
func Hidden() ProcOption { return func(d *Descriptor) { d.Describe = false } }

// Idempotent marks the procedure idempotent in its description.
func Idempotent() ProcOption { return func(d *Descriptor) { d.Idempotent = true } }

// Summary sets the one-line description.
func Summary(s string) ProcOption { return func(d *Descriptor) { d.Summary = s } }

// DocsURL sets the help URL reported by system.describe.
func DocsURL(u string) ProcOption { return func(d *Descriptor) { d.DocsURL = u } }

// NewProc builds a descriptor from a signature string and a handler.
func NewProc(sig string, h HandlerFunc, opts ...ProcOption) (*Descriptor, error) {
	if h == nil {
		return nil, fmt.Errorf("jsonrpc: nil handler for %q", sig)
	}
	s, err := signature.Parse(sig)
	if err != nil {
		return nil, err
	}
	d := &Descriptor{
		Name:      s.Name,
		Params:    s.Params,
		Return:    s.Return,
		Handler:   h,
		Describe:  true,
		Signature: sig,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Proc is like NewProc but panics on error. It is intended for service
// definitions written as package-level literals.
func Proc(sig string, h HandlerFunc, opts ...ProcOption) *Descriptor {
	d, err := NewProc(sig, h, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// ParamDescription describes one parameter in introspection output.
type ParamDescription struct {
	Name     string           `json:"name"`
	Type     jsontype.TypeTag `json:"type"`
	Optional bool             `json:"optional"`
}

// ProcDescription is the introspection view of a Descriptor.
type ProcDescription struct {
	Name       string             `json:"name"`
	Summary    string             `json:"summary"`
	Help       string             `json:"help"`
	Idempotent bool               `json:"idempotent"`
	Params     []ParamDescription `json:"params"`
	Return     jsontype.TypeTag   `json:"return"`
	Signature  string             `json:"signature"`
}

// Description returns the introspection view of d.
func (d *Descriptor) Description() ProcDescription {
	params := make([]ParamDescription, len(d.Params))
	for i, p := range d.Params {
		params[i] = ParamDescription{Name: p.Name, Type: p.Type, Optional: p.Optional}
	}
	return ProcDescription{
		Name:       d.Name,
		Summary:    d.Summary,
		Help:       d.DocsURL,
		Idempotent: d.Idempotent,
		Params:     params,
		Return:     d.Return,
		Signature:  d.Signature,
	}
}
