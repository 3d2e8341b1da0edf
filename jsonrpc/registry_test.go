package jsonrpc

import (
	"context"
	"strings"
	"testing"

	"github.com/creachadair/mds/mtest"
	"github.com/google/go-cmp/cmp"
)

func constProc(sig string, v any, opts ...ProcOption) *Descriptor {
	return Proc(sig, func(context.Context, Params) (any, error) { return v, nil }, opts...)
}

func TestRegistry_Override(t *testing.T) {
	parent := NewBuilder(Base()).Register(
		constProc("a() -> <str>", "parent a"),
		constProc("b() -> <str>", "parent b"),
	).Build()
	child := NewBuilder(parent).Register(
		constProc("b() -> <str>", "child b"),
		constProc("c() -> <str>", "child c"),
	).Build()

	if diff := cmp.Diff([]string{"a", "b", "c", DescribeMethod}, child.Names()); diff != "" {
		t.Errorf("child names (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b", DescribeMethod}, parent.Names()); diff != "" {
		t.Errorf("parent names changed (-want +got):\n%s", diff)
	}

	for _, tt := range []struct {
		reg  *Registry
		name string
		want any
	}{
		{parent, "a", "parent a"},
		{parent, "b", "parent b"},
		{child, "a", "parent a"},
		{child, "b", "child b"},
		{child, "c", "child c"},
	} {
		d, ok := tt.reg.Resolve(tt.name)
		if !ok {
			t.Fatalf("Resolve(%q): not found", tt.name)
		}
		got, _ := d.Handler(context.Background(), Params{})
		if got != tt.want {
			t.Errorf("Resolve(%q) handler returned %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRegistry_AncestorOrder(t *testing.T) {
	general := NewBuilder().Register(constProc("x() -> <str>", "general")).Build()
	specific := NewBuilder().Register(constProc("x() -> <str>", "specific")).Build()

	reg := NewBuilder(general, nil, specific).Build()
	d, _ := reg.Resolve("x")
	if got, _ := d.Handler(context.Background(), Params{}); got != "specific" {
		t.Errorf("got %v, want the later ancestor to win", got)
	}
}

func TestRegistry_Extend(t *testing.T) {
	reg := NewBuilder().Register(constProc("x() -> <num>", 1)).Build()
	ext := reg.Extend(constProc("y() -> <num>", 2))
	if reg.Len() != 1 || ext.Len() != 2 {
		t.Errorf("got lens %d and %d, want 1 and 2", reg.Len(), ext.Len())
	}
	if _, ok := reg.Resolve("y"); ok {
		t.Error("Extend mutated the original registry")
	}
}

func TestRegistry_Frozen(t *testing.T) {
	b := NewBuilder()
	b.Build()
	v := mtest.MustPanic(t, func() { b.Register(constProc("x() -> <nil>", nil)) })
	if s, ok := v.(string); !ok || !strings.Contains(s, "built registry") {
		t.Errorf("got panic %v", v)
	}
	mtest.MustPanic(t, func() { NewBuilder().Register(nil) })
}

func TestRegistry_Nil(t *testing.T) {
	var r *Registry
	if _, ok := r.Resolve("x"); ok {
		t.Error("nil registry resolved a method")
	}
}

func TestRegistry_Describable(t *testing.T) {
	reg := NewBuilder(Base()).Register(
		constProc("shown() -> <nil>", nil),
		constProc("hidden() -> <nil>", nil, Hidden()),
	).Build()
	var names []string
	for _, d := range reg.Describable() {
		names = append(names, d.Name)
	}
	if diff := cmp.Diff([]string{"shown"}, names); diff != "" {
		t.Errorf("Describable (-want +got):\n%s", diff)
	}
}

func TestBase(t *testing.T) {
	if Base() != Base() {
		t.Error("Base returned different registries")
	}
	d, ok := Base().Resolve(DescribeMethod)
	if !ok {
		t.Fatalf("Base has no %s", DescribeMethod)
	}
	if !d.Safe || d.Describe || len(d.Params) != 0 {
		t.Errorf("got %+v", d)
	}
	if _, err := d.Handler(context.Background(), Params{}); err == nil {
		t.Error("describe without a call: got nil error")
	}
}

func TestNewProc(t *testing.T) {
	d, err := NewProc("get(key=<str>, def=<any>?) -> <any>", func(context.Context, Params) (any, error) { return nil, nil },
		Safe(), Idempotent(), Summary("Gets a key."), DocsURL("https://example.com/get"))
	if err != nil {
		t.Fatalf("NewProc: %v", err)
	}
	want := ProcDescription{
		Name:       "get",
		Summary:    "Gets a key.",
		Help:       "https://example.com/get",
		Idempotent: true,
		Params: []ParamDescription{
			{Name: "key", Type: "str"},
			{Name: "def", Type: "any", Optional: true},
		},
		Return:    "any",
		Signature: "get(key=<str>, def=<any>?) -> <any>",
	}
	if diff := cmp.Diff(want, d.Description()); diff != "" {
		t.Errorf("Description (-want +got):\n%s", diff)
	}
	if !d.Safe || !d.Describe {
		t.Errorf("flags: got safe=%v describe=%v", d.Safe, d.Describe)
	}

	if _, err := NewProc("x() -> <nil>", nil); err == nil {
		t.Error("NewProc with nil handler: got nil error")
	}
	if _, err := NewProc("not a signature", func(context.Context, Params) (any, error) { return nil, nil }); err == nil {
		t.Error("NewProc with bad signature: got nil error")
	}
	mtest.MustPanic(t, func() { Proc("bogus", nil) })
}
