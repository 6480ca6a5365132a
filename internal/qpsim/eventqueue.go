package qpsim

import "container/heap"

// QueueEntry is one scheduled delivery: a Byte arriving at (DestRow,
// DestCol) from IngressDir at DeliveryTime, optionally tagged with the
// Command that should govern the receiving Asic's reaction.
type QueueEntry struct {
	DestRow      int
	DestCol      int
	IngressDir   Direction
	Byte         *Byte
	DeliveryTime float64
	Command      Command

	seq uint64 // insertion order, breaks DeliveryTime ties
}

// eventHeap backs EventQueue with container/heap, the idiomatic
// substitute for a hand-rolled sorted linked list — stable tie-breaking on
// insertion order is preserved via the seq field rather than list order.
type eventHeap []*QueueEntry

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].DeliveryTime == h[j].DeliveryTime {
		return h[i].seq < h[j].seq
	}
	return h[i].DeliveryTime < h[j].DeliveryTime
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(*QueueEntry)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// EventQueue is the monotonic priority queue ordering inter-Asic byte
// deliveries by DeliveryTime, ascending, with insertion-order tie-breaking.
type EventQueue struct {
	h       eventHeap
	nextSeq uint64
}

// NewEventQueue returns an empty EventQueue.
func NewEventQueue() *EventQueue {
	return &EventQueue{}
}

// Push inserts entry in delivery-time order, stable for ties.
func (q *EventQueue) Push(entry *QueueEntry) {
	entry.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.h, entry)
}

// Pop returns the earliest entry, or nil if the queue is empty.
func (q *EventQueue) Pop() *QueueEntry {
	if len(q.h) == 0 {
		return nil
	}
	return heap.Pop(&q.h).(*QueueEntry)
}

// Peek returns the earliest entry without removing it, or nil if empty.
func (q *EventQueue) Peek() *QueueEntry {
	if len(q.h) == 0 {
		return nil
	}
	return q.h[0]
}

// Len returns the number of entries currently queued.
func (q *EventQueue) Len() int { return len(q.h) }
