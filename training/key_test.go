package training

import (
	"strings"
	"testing"
)

func TestKeyIdentity(t *testing.T) {
	st := NewSymbolTable()

	k1 := ClassKey(st.Intern("Foo"), st.Intern("app"))
	k2 := ClassKey(st.Intern("Foo"), st.Intern("app"))
	if k1 != k2 {
		t.Error("Keys built from the same interned names should be equal")
	}

	k3 := ClassKey(st.Intern("Foo"), st.Intern("ext"))
	if k1 == k3 {
		t.Error("Different loaders should give different keys")
	}

	// Usable as a map key.
	m := map[Key]int{k1: 1}
	if m[k2] != 1 {
		t.Error("Equal keys should hash to the same map slot")
	}
}

func TestKeyKinds(t *testing.T) {
	st := NewSymbolTable()

	var empty Key
	if !empty.IsEmpty() {
		t.Error("Zero key should be empty")
	}

	ck := ClassKey(st.Intern("Foo"), nil)
	if ck.IsEmpty() || ck.IsMethod() {
		t.Error("Class key misclassified")
	}

	mk := MethodKey(st.Intern("Foo"), nil, st.Intern("bar"), st.Intern("()V"))
	if !mk.IsMethod() {
		t.Error("Method key should report IsMethod")
	}
	if mk.ClassOnly() != ck {
		t.Error("ClassOnly should strip the method part")
	}
}

func TestKeyCompare(t *testing.T) {
	st := NewSymbolTable()
	foo := st.Intern("Foo")

	a := MethodKey(foo, nil, st.Intern("alpha"), st.Intern("()V"))
	b := MethodKey(foo, nil, st.Intern("beta"), st.Intern("()V"))
	if a.Compare(b) >= 0 || b.Compare(a) <= 0 {
		t.Error("Method names should order keys within a class")
	}
	if a.Compare(a) != 0 {
		t.Error("Key should compare equal to itself")
	}

	// Class part dominates method part.
	z := MethodKey(st.Intern("Zoo"), nil, st.Intern("alpha"), st.Intern("()V"))
	if b.Compare(z) >= 0 {
		t.Error("Class name should dominate ordering")
	}
}

func TestKeyString(t *testing.T) {
	st := NewSymbolTable()
	mk := MethodKey(st.Intern("Foo"), st.Intern("app"), st.Intern("bar"), st.Intern("(I)V"))
	s := mk.String()
	if s == "" {
		t.Fatal("String should not be empty")
	}
	for _, want := range []string{"Foo", "bar", "(I)V"} {
		if !strings.Contains(s, want) {
			t.Errorf("Key string %q missing %q", s, want)
		}
	}
}
