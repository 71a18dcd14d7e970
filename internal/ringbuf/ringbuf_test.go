package ringbuf

import "testing"

func TestRing_BasicPushAt(t *testing.T) {
	r := New[int](4)

	r.Push(1)
	r.Push(2)

	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}

	got, ok := r.At(0)
	if !ok || got != 1 {
		t.Fatalf("expected oldest=1, got %d ok=%v", got, ok)
	}

	got, ok = r.Newest(0)
	if !ok || got != 2 {
		t.Fatalf("expected newest=2, got %d ok=%v", got, ok)
	}

	if _, ok := r.At(2); ok {
		t.Fatal("At past len should return false")
	}
}

func TestRing_EvictsOldest(t *testing.T) {
	r := New[int](2)

	r.Push(1)
	r.Push(2)
	r.Push(3)

	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}
	s := r.Slice()
	if len(s) != 2 || s[0] != 2 || s[1] != 3 {
		t.Fatalf("expected [2 3], got %v", s)
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := New[int](4)

	// Push far past capacity; contents must always be the last 4 values in order
	for i := 0; i < 23; i++ {
		r.Push(i)
		if i < 3 {
			continue
		}
		for k := 0; k < 4; k++ {
			v, ok := r.At(k)
			if !ok {
				t.Fatalf("push %d: At(%d) failed", i, k)
			}
			if want := i - 3 + k; v != want {
				t.Fatalf("push %d: At(%d) = %d, want %d", i, k, v, want)
			}
		}
	}
}

func TestRing_MinCapacity(t *testing.T) {
	r := New[string](0)
	r.Push("a")
	r.Push("b")
	if r.Len() != 1 {
		t.Fatalf("expected len=1, got %d", r.Len())
	}
	if v, _ := r.Newest(0); v != "b" {
		t.Fatalf("expected b, got %s", v)
	}
	if _, ok := r.Newest(1); ok {
		t.Fatal("Newest past len should return false")
	}
}
