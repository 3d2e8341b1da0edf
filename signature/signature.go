// Package signature parses the compact procedure signature grammar.
//
// A signature names a procedure, its ordered parameters and its return type:
//
//	add(a=<num>, b=<num>?) -> <num>
//
// The name is one or more word characters or dots. Parameters are written as
// name=<tag> and separated by ", "; a trailing "?" marks a parameter optional.
// Once a parameter is optional every following parameter must be optional
// too. The return type follows a literal " -> ". Tags are the names defined by
// package jsontype.
package signature

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/mnehpets/sigrpc/jsontype"
)

// ErrInvalid is matched by every error returned from Parse.
var ErrInvalid = errors.New("invalid signature")

var (
	sigRE = regexp.MustCompile(`^(?P<name>[\w.]+)\((?P<args>.*)\) -> <(?P<rtype>\w+)>$`)
	argRE = regexp.MustCompile(`^(?P<name>\w+)=<(?P<type>\w+)>(?P<optional>\?)?$`)
)

// Param is one declared parameter.
type Param struct {
	Name     string
	Type     jsontype.TypeTag
	Optional bool
}

func (p Param) String() string {
	s := p.Name + "=<" + string(p.Type) + ">"
	if p.Optional {
		s += "?"
	}
	return s
}

// Signature is the parsed form of a signature string.
type Signature struct {
	Name   string
	Params []Param
	Return jsontype.TypeTag
}

// String renders s in canonical form. The result parses to a Signature equal
// to s.
func (s Signature) String() string {
	args := make([]string, len(s.Params))
	for i, p := range s.Params {
		args[i] = p.String()
	}
	return s.Name + "(" + strings.Join(args, ", ") + ") -> <" + string(s.Return) + ">"
}

// Required returns the number of leading required parameters.
func (s Signature) Required() int {
	for i, p := range s.Params {
		if p.Optional {
			return i
		}
	}
	return len(s.Params)
}

// Param returns the declared parameter with the given name.
func (s Signature) Param(name string) (Param, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Parse parses sig. It is pure: equal inputs yield equal results.
func Parse(sig string) (Signature, error) {
	m := sigRE.FindStringSubmatch(sig)
	if m == nil {
		return Signature{}, &SyntaxError{Signature: sig, Detail: "expected name(arg=<type>, ...) -> <type>"}
	}
	name := m[sigRE.SubexpIndex("name")]
	args := m[sigRE.SubexpIndex("args")]
	rtype := m[sigRE.SubexpIndex("rtype")]

	ret, err := jsontype.ParseTag(rtype)
	if err != nil {
		return Signature{}, &ReturnTypeError{Signature: sig, Tag: rtype}
	}
	params, err := parseParams(sig, args)
	if err != nil {
		return Signature{}, err
	}
	return Signature{Name: name, Params: params, Return: ret}, nil
}

// MustParse is like Parse but panics if sig is invalid. It is meant for
// signatures written as literals in service definitions.
func MustParse(sig string) Signature {
	s, err := Parse(sig)
	if err != nil {
		panic(err)
	}
	return s
}

func parseParams(sig, args string) ([]Param, error) {
	if args == "" {
		return nil, nil
	}
	var (
		params   []Param
		seen     = make(map[string]bool)
		optional bool
	)
	for _, arg := range strings.Split(args, ", ") {
		m := argRE.FindStringSubmatch(arg)
		if m == nil {
			return nil, &SyntaxError{Signature: sig, Detail: fmt.Sprintf("malformed parameter %q", arg)}
		}
		p := Param{
			Name:     m[argRE.SubexpIndex("name")],
			Optional: m[argRE.SubexpIndex("optional")] != "",
		}
		tag := m[argRE.SubexpIndex("type")]
		t, err := jsontype.ParseTag(tag)
		if err != nil {
			return nil, &ParamTypeError{Signature: sig, Param: p.Name, Tag: tag}
		}
		p.Type = t
		if seen[p.Name] {
			return nil, &SyntaxError{Signature: sig, Detail: fmt.Sprintf("duplicate parameter %q", p.Name)}
		}
		seen[p.Name] = true

		if p.Optional {
			optional = true
		} else if optional {
			return nil, &OrderError{Signature: sig, Param: p.Name}
		}
		params = append(params, p)
	}
	return params, nil
}

// SyntaxError reports a signature that does not match the grammar.
type SyntaxError struct {
	Signature string
	Detail    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("signature: syntax of %q is incorrect: %s", e.Signature, e.Detail)
}

func (e *SyntaxError) Is(target error) bool { return target == ErrInvalid }

// OrderError reports a required parameter declared after an optional one.
type OrderError struct {
	Signature string
	Param     string // the first required parameter following an optional one
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("signature: required params must come before optional params in %q (param %q)", e.Signature, e.Param)
}

func (e *OrderError) Is(target error) bool { return target == ErrInvalid }

// ReturnTypeError reports an unknown return type tag.
type ReturnTypeError struct {
	Signature string
	Tag       string
}

func (e *ReturnTypeError) Error() string {
	return fmt.Sprintf("signature: invalid return type %q in %q; allowed types are: %s", e.Tag, e.Signature, jsontype.TagNames())
}

func (e *ReturnTypeError) Is(target error) bool { return target == ErrInvalid }

// ParamTypeError reports an unknown parameter type tag.
type ParamTypeError struct {
	Signature string
	Param     string
	Tag       string
}

func (e *ParamTypeError) Error() string {
	return fmt.Sprintf("signature: invalid type %q for param %q in %q; allowed types are: %s", e.Tag, e.Param, e.Signature, jsontype.TagNames())
}

func (e *ParamTypeError) Is(target error) bool { return target == ErrInvalid }
