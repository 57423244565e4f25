package session

import "testing"

func TestRegistryInsertReusesHoles(t *testing.T) {
	r := NewRegistry()
	a := &Session{}
	b := &Session{}
	c := &Session{}

	ia := r.Insert(a)
	ib := r.Insert(b)
	if ia != 0 || ib != 1 {
		t.Fatalf("unexpected slots: %d, %d", ia, ib)
	}

	r.Remove(ia)
	ic := r.Insert(c)
	if ic != 0 {
		t.Fatalf("insert should reuse the freed slot 0, got %d", ic)
	}
}

func TestRegistryRemoveTrimsTrailingHoles(t *testing.T) {
	r := NewRegistry()
	a := &Session{}
	b := &Session{}
	r.Insert(a)
	ib := r.Insert(b)

	r.Remove(ib)
	if got := len(r.sessions); got != 1 {
		t.Fatalf("trailing hole should be trimmed: len = %d, want 1", got)
	}

	r.Remove(0)
	if got := len(r.sessions); got != 0 {
		t.Fatalf("all holes should be trimmed: len = %d, want 0", got)
	}
}

func TestRegistryEachSkipsHoles(t *testing.T) {
	r := NewRegistry()
	a := &Session{}
	b := &Session{}
	c := &Session{}
	r.Insert(a)
	ib := r.Insert(b)
	r.Insert(c)
	r.Remove(ib)

	var seen []*Session
	r.Each(func(s *Session) { seen = append(seen, s) })
	if len(seen) != 2 {
		t.Fatalf("Each should skip the removed hole: got %d sessions", len(seen))
	}
}

func TestRegistryLen(t *testing.T) {
	r := NewRegistry()
	r.Insert(&Session{})
	idx := r.Insert(&Session{})
	r.Remove(idx)
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
}
