package agent

import (
	"sync"
	"testing"
)

func TestMemoryAppendListClear(t *testing.T) {
	m := NewMemory()
	m.Append("user", "hello")
	m.Append("assistant", "hi")

	entries := m.List()
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Role != "user" || entries[0].Content != "hello" {
		t.Fatalf("first entry = %#v", entries[0])
	}
	if entries[1].Role != "assistant" || entries[1].Content != "hi" {
		t.Fatalf("second entry = %#v", entries[1])
	}

	m.Clear()
	if got := len(m.List()); got != 0 {
		t.Fatalf("len(entries) after clear = %d, want 0", got)
	}
}

func TestMemoryTail(t *testing.T) {
	m := NewMemory()
	m.Append("user", "one")
	m.Append("assistant", "two")
	m.Append("user", "three")

	tail := m.Tail(2)
	if len(tail) != 2 {
		t.Fatalf("len(tail) = %d, want 2", len(tail))
	}
	if tail[0].Content != "two" || tail[1].Content != "three" {
		t.Fatalf("tail = %#v", tail)
	}

	if got := m.Tail(10); len(got) != 3 {
		t.Fatalf("len(tail) with large limit = %d, want 3", len(got))
	}
	if got := m.Tail(0); got != nil {
		t.Fatalf("tail with zero limit = %#v, want nil", got)
	}
}

func TestMemoryConcurrentAppend(t *testing.T) {
	m := NewMemory()
	const n = 50

	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			m.Append("user", "hello")
		}()
	}

	wg.Wait()

	if got := len(m.List()); got != n {
		t.Fatalf("len(entries) = %d, want %d", got, n)
	}
}
