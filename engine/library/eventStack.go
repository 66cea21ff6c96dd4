package library

import (
	"nostrkit/protocol"
)

// NewEventStack returns a new Event stack (FIFO) holding at most limit
// entries. A limit of 0 means 16.
func NewEventStack(limit int) *Stack {
	if limit <= 0 {
		limit = 16
	}
	return &Stack{
		nodes: make([]*protocol.Event, limit),
		limit: limit,
	}
}

// Stack is a bounded FIFO of events. It backs the per-relay outbound queue:
// once full, Push refuses further entries so a dead relay cannot grow an
// unbounded backlog.
type Stack struct {
	nodes []*protocol.Event
	limit int
	head  int
	tail  int
	count int
}

// Push adds an Event to the stack. It reports false when the stack is full.
func (q *Stack) Push(n *protocol.Event) bool {
	if q.count == q.limit {
		return false
	}
	q.nodes[q.tail] = n
	q.tail = (q.tail + 1) % q.limit
	q.count++
	return true
}

// Pop removes and returns an Event from the stack in first to last order.
func (q *Stack) Pop() (*protocol.Event, bool) {
	if q.count == 0 {
		return nil, false
	}
	node := q.nodes[q.head]
	q.nodes[q.head] = nil
	q.head = (q.head + 1) % q.limit
	q.count--
	return node, true
}

// Len returns the number of queued events.
func (q *Stack) Len() int {
	return q.count
}
