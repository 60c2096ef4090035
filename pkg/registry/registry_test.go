package registry

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
)

type testItem struct {
	Name string
}

func TestBaseRegistry_Register(t *testing.T) {
	r := NewBaseRegistry[testItem]()

	if err := r.Register("alpha", testItem{Name: "alpha"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register("", testItem{}); err == nil {
		t.Error("expected error for empty name")
	}
	if err := r.Register("alpha", testItem{Name: "other"}); err == nil {
		t.Error("expected error for duplicate name")
	}
}

func TestBaseRegistry_Get(t *testing.T) {
	r := NewBaseRegistry[testItem]()
	want := testItem{Name: "alpha"}
	if err := r.Register("alpha", want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := r.Get("alpha")
	if !ok {
		t.Fatal("expected item to exist")
	}
	if got != want {
		t.Errorf("expected %v, got %v", want, got)
	}

	if _, ok := r.Get("missing"); ok {
		t.Error("expected missing item to report !ok")
	}
}

func TestBaseRegistry_NamesSorted(t *testing.T) {
	r := NewBaseRegistry[testItem]()
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		if err := r.Register(name, testItem{Name: name}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	want := []string{"alpha", "bravo", "charlie"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected sorted names %v, got %v", want, got)
	}
}

func TestBaseRegistry_ListNameOrder(t *testing.T) {
	r := NewBaseRegistry[testItem]()
	for _, name := range []string{"bravo", "alpha"} {
		if err := r.Register(name, testItem{Name: name}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	items := r.List()
	if len(items) != 2 || items[0].Name != "alpha" || items[1].Name != "bravo" {
		t.Errorf("expected items in name order, got %v", items)
	}
}

func TestBaseRegistry_Remove(t *testing.T) {
	r := NewBaseRegistry[testItem]()
	if err := r.Register("alpha", testItem{Name: "alpha"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := r.Remove("alpha"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := r.Remove("alpha"); err == nil {
		t.Error("expected error removing a missing item")
	}
	if r.Count() != 0 {
		t.Errorf("expected empty registry, got %d items", r.Count())
	}
}

func TestBaseRegistry_Clear(t *testing.T) {
	r := NewBaseRegistry[testItem]()
	for i := 0; i < 3; i++ {
		if err := r.Register(fmt.Sprintf("item-%d", i), testItem{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	r.Clear()
	if r.Count() != 0 {
		t.Errorf("expected empty registry after Clear, got %d items", r.Count())
	}
}

func TestBaseRegistry_ConcurrentAccess(t *testing.T) {
	r := NewBaseRegistry[int]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = r.Register(fmt.Sprintf("item-%d", n), n)
			r.Get(fmt.Sprintf("item-%d", n))
			r.Names()
		}(i)
	}
	wg.Wait()

	if r.Count() != 50 {
		t.Errorf("expected 50 items, got %d", r.Count())
	}
}
