package runtime

import (
	"errors"
	"reflect"
	"testing"
)

type namedHandler string

func (h namedHandler) Type() string       { return string(h) }
func (h namedHandler) Run(*Context) error { return nil }

func TestRegistryRegister(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(namedHandler("story_export")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := reg.Register(namedHandler("story_export")); !errors.Is(err, ErrHandlerDuplicate) {
		t.Fatalf("duplicate: want=%v got=%v", ErrHandlerDuplicate, err)
	}
	if err := reg.Register(namedHandler("")); !errors.Is(err, ErrUnnamedHandler) {
		t.Fatalf("unnamed: want=%v got=%v", ErrUnnamedHandler, err)
	}
	if err := reg.Register(nil); !errors.Is(err, ErrUnnamedHandler) {
		t.Fatalf("nil: want=%v got=%v", ErrUnnamedHandler, err)
	}
}

func TestRegistryLookupAndTypes(t *testing.T) {
	reg := NewRegistry()
	for _, jt := range []string{"story_illustrate", "story_export"} {
		if err := reg.Register(namedHandler(jt)); err != nil {
			t.Fatalf("register %s: %v", jt, err)
		}
	}
	if _, ok := reg.Lookup("story_export"); !ok {
		t.Fatalf("lookup: expected story_export")
	}
	if _, ok := reg.Lookup("missing"); ok {
		t.Fatalf("lookup: unexpected handler for missing")
	}
	want := []string{"story_export", "story_illustrate"}
	if got := reg.Types(); !reflect.DeepEqual(got, want) {
		t.Fatalf("types: want=%v got=%v", want, got)
	}
}
