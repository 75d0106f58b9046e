package task

import "testing"

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	v := Plain(func(args ...any) (any, error) { return nil, nil })
	r.Register("k", v)

	got, ok := r.Lookup("k")
	if !ok {
		t.Fatalf("Lookup(k) not found after Register")
	}
	if got.Cap != CapNone {
		t.Fatalf("Lookup returned a differently-tagged variant")
	}
	if _, ok := r.Lookup("missing"); ok {
		t.Fatalf("Lookup(missing) should not be found")
	}
}

func TestMustLookupPanicsOnMissingKey(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("MustLookup should panic on an unregistered key")
		}
	}()
	MustLookup("definitely-not-registered")
}
