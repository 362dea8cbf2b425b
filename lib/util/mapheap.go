// Package util
//
// This file provides a min-heap ordered by uint64 keys that also supports
// direct access by key.
//
// The server uses it to hold replies that finished out of order: every reply
// is stored under the sequence number of its request, and replies are only
// released while the smallest key equals the next sequence number to send.
//
// Time Complexity:
//   - O(log n) for Push, Pop and Remove
//   - O(1) for Peek, Get and Contains
//
// The heap is not thread-safe. Callers must synchronize access.
package util

import (
	"container/heap"
	"strconv"
)

// heapItem is an element of a MapHeap
type heapItem[V any] struct {
	key   uint64
	value V
	index int // maintained by the heap package
}

func (i *heapItem[V]) String() string {
	return "{Key: " + strconv.FormatUint(i.key, 10) + ", Index: " + strconv.Itoa(i.index) + "}"
}

// entries implements heap.Interface for the items of a MapHeap
type entries[V any] struct {
	items    []*heapItem[V]
	itemsMap map[uint64]*heapItem[V]
}

func (e *entries[V]) Len() int { return len(e.items) }

func (e *entries[V]) Less(i, j int) bool { return e.items[i].key < e.items[j].key }

func (e *entries[V]) Swap(i, j int) {
	e.items[i], e.items[j] = e.items[j], e.items[i]
	e.items[i].index = i
	e.items[j].index = j
}

func (e *entries[V]) Push(x any) {
	it := x.(*heapItem[V])
	it.index = len(e.items)
	e.items = append(e.items, it)
	e.itemsMap[it.key] = it
}

func (e *entries[V]) Pop() any {
	old := e.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // avoid memory leak
	it.index = -1
	e.items = old[:n-1]
	delete(e.itemsMap, it.key)
	return it
}

// MapHeap is a min-heap of values keyed by uint64 with key based access
type MapHeap[V any] struct {
	e entries[V]
}

// NewMapHeap creates an empty heap
func NewMapHeap[V any]() *MapHeap[V] {
	return &MapHeap[V]{e: entries[V]{itemsMap: make(map[uint64]*heapItem[V])}}
}

// Len returns the number of items
func (h *MapHeap[V]) Len() int { return h.e.Len() }

// Push adds a value under key or replaces the value stored under key
func (h *MapHeap[V]) Push(key uint64, value V) {
	if it, exists := h.e.itemsMap[key]; exists {
		it.value = value
		return
	}
	heap.Push(&h.e, &heapItem[V]{key: key, value: value})
}

// Peek returns the item with the smallest key without removing it
func (h *MapHeap[V]) Peek() (uint64, V, bool) {
	if len(h.e.items) == 0 {
		var zero V
		return 0, zero, false
	}
	it := h.e.items[0]
	return it.key, it.value, true
}

// Pop removes and returns the item with the smallest key
func (h *MapHeap[V]) Pop() (uint64, V, bool) {
	if len(h.e.items) == 0 {
		var zero V
		return 0, zero, false
	}
	it := heap.Pop(&h.e).(*heapItem[V])
	return it.key, it.value, true
}

// Remove removes the item stored under key
func (h *MapHeap[V]) Remove(key uint64) (V, bool) {
	it, exists := h.e.itemsMap[key]
	if !exists {
		var zero V
		return zero, false
	}
	heap.Remove(&h.e, it.index)
	return it.value, true
}

// Get returns the value stored under key without removing it
func (h *MapHeap[V]) Get(key uint64) (V, bool) {
	it, exists := h.e.itemsMap[key]
	if !exists {
		var zero V
		return zero, false
	}
	return it.value, true
}

// Contains checks if a key exists in the heap
func (h *MapHeap[V]) Contains(key uint64) bool {
	_, exists := h.e.itemsMap[key]
	return exists
}
