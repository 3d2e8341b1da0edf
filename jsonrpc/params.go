package jsonrpc

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/mnehpets/sigrpc/signature"
)

// Params holds the validated arguments of one call, one value per declared
// parameter in declaration order. Optional parameters the client omitted
// hold nil. Parameters supplied but not declared are not present.
type Params struct {
	names  []string
	values []any
	named  bool
}

// NewParams builds Params from parallel name and value slices. It is meant
// for tests and for calling handlers directly.
func NewParams(names []string, values []any, named bool) Params {
	return Params{names: names, values: values, named: named}
}

// Named reports whether the client supplied params as an object rather than
// an array.
func (p Params) Named() bool { return p.named }

// Len returns the number of declared parameters.
func (p Params) Len() int { return len(p.values) }

// Names returns the declared parameter names in order.
func (p Params) Names() []string { return append([]string(nil), p.names...) }

// At returns the value of the i'th declared parameter.
func (p Params) At(i int) any {
	if i < 0 || i >= len(p.values) {
		return nil
	}
	return p.values[i]
}

// Get returns the value of the named parameter, or nil.
func (p Params) Get(name string) any {
	for i, n := range p.names {
		if n == name {
			return p.values[i]
		}
	}
	return nil
}

// IsNil reports whether the named parameter is absent or null.
func (p Params) IsNil(name string) bool { return p.Get(name) == nil }

// Args returns the values in declaration order.
func (p Params) Args() []any { return append([]any(nil), p.values...) }

// Map returns the values keyed by parameter name.
func (p Params) Map() map[string]any {
	m := make(map[string]any, len(p.names))
	for i, n := range p.names {
		m[n] = p.values[i]
	}
	return m
}

// String returns the named string parameter, or "" if it is not a string.
func (p Params) String(name string) string {
	s, _ := p.Get(name).(string)
	return s
}

// Bool returns the named boolean parameter, or false.
func (p Params) Bool(name string) bool {
	b, _ := p.Get(name).(bool)
	return b
}

// Number returns the named numeric parameter in exact decimal form, or "" if
// it is not a number.
func (p Params) Number(name string) json.Number {
	switch v := p.Get(name).(type) {
	case json.Number:
		return v
	case float64:
		return json.Number(strconv.FormatFloat(v, 'g', -1, 64))
	case int:
		return json.Number(strconv.Itoa(v))
	case int64:
		return json.Number(strconv.FormatInt(v, 10))
	}
	return ""
}

// Float returns the named numeric parameter as a float64, or 0.
func (p Params) Float(name string) float64 {
	switch v := p.Get(name).(type) {
	case json.Number:
		f, _ := v.Float64()
		return f
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Int returns the named numeric parameter as an int64. Non-integral values
// are truncated toward zero; non-numbers yield 0.
func (p Params) Int(name string) int64 {
	if n, ok := p.Get(name).(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i
		}
	}
	return int64(math.Trunc(p.Float(name)))
}

// Array returns the named array parameter, or nil.
func (p Params) Array(name string) []any {
	a, _ := p.Get(name).([]any)
	return a
}

// Object returns the named object parameter, or nil.
func (p Params) Object(name string) map[string]any {
	m, _ := p.Get(name).(map[string]any)
	return m
}

// Validate checks params, the decoded "params" member of a request, against
// the declared parameters of d.
//
// For an array, declared parameters are matched by position; for an object,
// by name. A missing parameter is nil if declared optional and an error
// otherwise. Optional parameters accept nil whatever their declared type.
// Values beyond those declared are dropped.
func Validate(d *Descriptor, params any) (Params, error) {
	out := Params{
		names:  make([]string, len(d.Params)),
		values: make([]any, len(d.Params)),
	}
	switch ps := params.(type) {
	case []any:
		for i, decl := range d.Params {
			var v any
			if i < len(ps) {
				v = ps[i]
			} else if !decl.Optional {
				return Params{}, missingParam(decl)
			}
			if err := checkParam(decl, v); err != nil {
				return Params{}, err
			}
			out.names[i], out.values[i] = decl.Name, v
		}
	case map[string]any:
		out.named = true
		for i, decl := range d.Params {
			v, ok := ps[decl.Name]
			if !ok && !decl.Optional {
				return Params{}, missingParam(decl)
			}
			if err := checkParam(decl, v); err != nil {
				return Params{}, err
			}
			out.names[i], out.values[i] = decl.Name, v
		}
	default:
		return Params{}, InvalidParamsError("The `params` argument must be an array or object.")
	}
	return out, nil
}

func missingParam(decl signature.Param) *Error {
	return InvalidParamsError("Parameter `" + decl.Name + "` is required, but was not provided.")
}

func checkParam(decl signature.Param, v any) *Error {
	if decl.Optional && v == nil {
		return nil
	}
	if !decl.Type.Accepts(v) {
		return InvalidParamsError("`" + decl.Name + "` param should be of type " + string(decl.Type) + ".")
	}
	return nil
}
