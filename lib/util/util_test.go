package util

import (
	"reflect"
	"testing"
)

// TestMapHeapOrder tests that items come out ordered by key
func TestMapHeapOrder(t *testing.T) {
	h := NewMapHeap[string]()
	for _, k := range []uint64{5, 1, 4, 2, 3} {
		h.Push(k, string(rune('a'+k)))
	}
	h.Push(4, "replaced")

	if h.Len() != 5 {
		t.Fatalf("Expected 5 items, got %d", h.Len())
	}
	if k, v, ok := h.Peek(); !ok || k != 1 || v != "b" {
		t.Errorf("Expected (1, b), got (%d, %s, %v)", k, v, ok)
	}

	var keys []uint64
	var values []string
	for h.Len() > 0 {
		k, v, _ := h.Pop()
		keys = append(keys, k)
		values = append(values, v)
	}
	if !reflect.DeepEqual(keys, []uint64{1, 2, 3, 4, 5}) {
		t.Errorf("Unexpected key order %v", keys)
	}
	if values[3] != "replaced" {
		t.Errorf("Expected replaced value for key 4, got %s", values[3])
	}
	if _, _, ok := h.Pop(); ok {
		t.Error("Pop on empty heap should fail")
	}
}

// TestMapHeapKeyAccess tests lookup and removal by key
func TestMapHeapKeyAccess(t *testing.T) {
	h := NewMapHeap[int]()
	h.Push(10, 100)
	h.Push(20, 200)
	h.Push(30, 300)

	if !h.Contains(20) || h.Contains(40) {
		t.Error("Contains returned wrong result")
	}
	if v, ok := h.Get(30); !ok || v != 300 {
		t.Errorf("Expected 300, got %d", v)
	}
	if v, ok := h.Remove(10); !ok || v != 100 {
		t.Errorf("Expected to remove 100, got %d", v)
	}
	if _, ok := h.Remove(10); ok {
		t.Error("Removing twice should fail")
	}
	if k, _, _ := h.Peek(); k != 20 {
		t.Errorf("Expected smallest key 20, got %d", k)
	}
}

// TestSizeHistogram tests sample bucketing and percentile estimates
func TestSizeHistogram(t *testing.T) {
	h := NewSizeHistogram()
	if h.MedianEstimate() != 0 {
		t.Error("Empty histogram should report zero")
	}

	for i := 0; i < 90; i++ {
		h.AddSample(10)
	}
	for i := 0; i < 10; i++ {
		h.AddSample(100000)
	}

	if got := h.MedianEstimate(); got != 8 {
		t.Errorf("Expected median estimate 8, got %d", got)
	}
	if got := h.GetPercentileEstimate(99); got != (65536+262144)/2 {
		t.Errorf("Unexpected p99 estimate %d", got)
	}
	if got := h.GetPercentileEstimate(101); got != 0 {
		t.Errorf("Expected 0 for an invalid percentile, got %d", got)
	}

	h.AddSample(1 << 30)
	if got := h.GetPercentileEstimate(100); got != 2*16777216 {
		t.Errorf("Expected overflow bucket estimate, got %d", got)
	}
}

// TestPickRendezvous tests stable endpoint selection
func TestPickRendezvous(t *testing.T) {
	if PickRendezvous("k", nil) != "" {
		t.Error("Expected empty result without candidates")
	}

	all := []string{"a:1", "b:1", "c:1", "d:1"}
	first := PickRendezvous("client-1", all)
	for i := 0; i < 10; i++ {
		if got := PickRendezvous("client-1", all); got != first {
			t.Fatalf("Selection is not stable: %s vs %s", got, first)
		}
	}

	// removing a losing candidate keeps the choice
	var rest []string
	for _, c := range all {
		if c != first {
			rest = append(rest, c)
		}
	}
	loser := rest[0]
	var without []string
	for _, c := range all {
		if c != loser {
			without = append(without, c)
		}
	}
	if got := PickRendezvous("client-1", without); got != first {
		t.Errorf("Expected %s to stay selected, got %s", first, got)
	}

	if HashString("x", 1) == HashString("x", 2) {
		t.Error("Seed should change the hash")
	}
	if GenerateSeed() == GenerateSeed() {
		t.Error("Seeds should differ")
	}
}
