package domain

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestRingBuffer_PushAndLast(t *testing.T) {
	r := NewRingBuffer[int](3)

	if _, ok := r.Last(); ok {
		t.Fatal("Last on empty buffer should report no element")
	}

	r.Push(1)
	r.Push(2)

	last, ok := r.Last()
	if !ok || last != 2 {
		t.Fatalf("Last = %d, %v; want 2, true", last, ok)
	}
	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
}

func TestRingBuffer_WrapKeepsNewest(t *testing.T) {
	r := NewRingBuffer[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3 (saturated)", r.Len())
	}

	var got []int
	r.EachNewest(func(v int) bool {
		got = append(got, v)
		return true
	})

	want := []int{5, 4, 3}
	if len(got) != len(want) {
		t.Fatalf("EachNewest visited %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("EachNewest visited %v, want %v", got, want)
		}
	}
}

func TestRingBuffer_PushCountDoesNotSaturate(t *testing.T) {
	r := NewRingBuffer[int](300)

	for i := 0; i < 300; i++ {
		r.Push(i)
	}
	if r.PushCount() != 300 {
		t.Fatalf("PushCount = %d, want 300", r.PushCount())
	}

	// Push #301 wraps the buffer: Len stays at capacity, the counter must not.
	r.Push(300)
	if r.Len() != 300 {
		t.Fatalf("Len = %d, want 300", r.Len())
	}
	if r.PushCount() != 301 {
		t.Fatalf("PushCount = %d, want 301", r.PushCount())
	}
}

func TestRingBuffer_Clear(t *testing.T) {
	r := NewRingBuffer[int](4)
	for i := 0; i < 10; i++ {
		r.Push(i)
	}

	r.Clear()

	if r.Len() != 0 || r.PushCount() != 0 {
		t.Fatalf("after Clear: Len=%d PushCount=%d, want 0, 0", r.Len(), r.PushCount())
	}
	if _, ok := r.Last(); ok {
		t.Fatal("Last after Clear should report no element")
	}
}

func TestRingBuffer_EachNewestStops(t *testing.T) {
	r := NewRingBuffer[int](5)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	visited := 0
	r.EachNewest(func(int) bool {
		visited++
		return visited < 2
	})
	if visited != 2 {
		t.Fatalf("visited %d elements, want 2", visited)
	}
}

func TestRingBuffer_CounterMonotoneProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200

	properties := gopter.NewProperties(params)

	properties.Property("push counter is strictly monotone across wraps", prop.ForAll(
		func(pushes []int) bool {
			r := NewRingBuffer[int](7)
			prev := r.PushCount()
			for _, v := range pushes {
				r.Push(v)
				if r.PushCount() != prev+1 {
					return false
				}
				prev = r.PushCount()
			}
			return r.PushCount() == uint64(len(pushes)) && r.Len() <= r.Cap()
		},
		gen.SliceOf(gen.Int()),
	))

	properties.TestingRun(t)
}
