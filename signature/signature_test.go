package signature_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/creachadair/mds/mtest"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/mnehpets/sigrpc/jsontype"
	"github.com/mnehpets/sigrpc/signature"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want signature.Signature
	}{
		{"name(a=<num>, b=<str>?) -> <num>", signature.Signature{
			Name: "name",
			Params: []signature.Param{
				{Name: "a", Type: jsontype.Num},
				{Name: "b", Type: jsontype.Str, Optional: true},
			},
			Return: jsontype.Num,
		}},
		{"system.describe() -> <obj>", signature.Signature{
			Name:   "system.describe",
			Return: jsontype.Obj,
		}},
		{"get_sum(aye=<num>, bee=<num>?, cee=<any>?) -> <num>", signature.Signature{
			Name: "get_sum",
			Params: []signature.Param{
				{Name: "aye", Type: jsontype.Num},
				{Name: "bee", Type: jsontype.Num, Optional: true},
				{Name: "cee", Type: jsontype.Any, Optional: true},
			},
			Return: jsontype.Num,
		}},
		{"a.b.c(flag=<bit>, items=<arr>, opts=<obj>, nothing=<nil>) -> <nil>", signature.Signature{
			Name: "a.b.c",
			Params: []signature.Param{
				{Name: "flag", Type: jsontype.Bit},
				{Name: "items", Type: jsontype.Arr},
				{Name: "opts", Type: jsontype.Obj},
				{Name: "nothing", Type: jsontype.Nil},
			},
			Return: jsontype.Nil,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := signature.Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse: unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Parse (-want +got):\n%s", diff)
			}

			// The canonical rendering re-parses to the same value.
			again, err := signature.Parse(got.String())
			if err != nil {
				t.Fatalf("Parse(%q): %v", got.String(), err)
			}
			if diff := cmp.Diff(got, again, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("round trip (-first +second):\n%s", diff)
			}
		})
	}
}

func TestParseDeterministic(t *testing.T) {
	const sig = "echo(msg=<str>, times=<num>?) -> <arr>"
	a := signature.MustParse(sig)
	b := signature.MustParse(sig)
	if !cmp.Equal(a, b) {
		t.Errorf("two parses differ: %+v vs %+v", a, b)
	}
	if got := a.String(); got != sig {
		t.Errorf("String() = %q, want %q", got, sig)
	}
	if got := a.Required(); got != 1 {
		t.Errorf("Required() = %d, want 1", got)
	}
	if p, ok := a.Param("times"); !ok || !p.Optional {
		t.Errorf("Param(times) = %+v, %v", p, ok)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		in      string
		check   func(error) bool
		wantSub string
	}{
		{"name(a=<num>?, b=<str>) -> <num>", isOrder, `param "b"`},
		{"name(a=<num>, b=<str>?, c=<str>) -> <num>", isOrder, `param "c"`},
		{"name(a=<num>) -> <spam>", isReturnType, "allowed types are: bit, num, str, arr, obj, nil, any"},
		{"name(a=<spam>) -> <num>", isParamType, `"spam"`},
		{"name(a=<num>)", isSyntax, "incorrect"},
		{"name(a=<num>) -> num", isSyntax, "incorrect"},
		{"na-me() -> <num>", isSyntax, "incorrect"},
		{"name(a=<num>,b=<num>) -> <num>", isSyntax, "malformed parameter"},
		{"name(a=num) -> <num>", isSyntax, "malformed parameter"},
		{"name(a=<num>, a=<str>) -> <num>", isSyntax, "duplicate parameter"},
		{"", isSyntax, "incorrect"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := signature.Parse(tt.in)
			if err == nil {
				t.Fatal("Parse: got nil error")
			}
			if !tt.check(err) {
				t.Errorf("Parse: wrong error type %T: %v", err, err)
			}
			if !errors.Is(err, signature.ErrInvalid) {
				t.Errorf("Parse: error %v does not match ErrInvalid", err)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Parse: error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestMustParsePanics(t *testing.T) {
	v := mtest.MustPanic(t, func() { signature.MustParse("bogus") })
	if err, ok := v.(error); !ok || !errors.Is(err, signature.ErrInvalid) {
		t.Errorf("panic value = %v, want a signature error", v)
	}
}

func isOrder(err error) bool {
	var e *signature.OrderError
	return errors.As(err, &e)
}

func isReturnType(err error) bool {
	var e *signature.ReturnTypeError
	return errors.As(err, &e)
}

func isParamType(err error) bool {
	var e *signature.ParamTypeError
	return errors.As(err, &e)
}

func isSyntax(err error) bool {
	var e *signature.SyntaxError
	return errors.As(err, &e)
}
