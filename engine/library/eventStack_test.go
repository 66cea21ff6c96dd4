package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nostrkit/protocol"
)

func TestStackFIFO(t *testing.T) {
	q := NewEventStack(4)
	for i, id := range []string{"a", "b", "c"} {
		require.True(t, q.Push(&protocol.Event{ID: id}), "push %d", i)
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		e, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, e.ID)
	}
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestStackRefusesWhenFull(t *testing.T) {
	q := NewEventStack(2)
	assert.True(t, q.Push(&protocol.Event{ID: "1"}))
	assert.True(t, q.Push(&protocol.Event{ID: "2"}))
	assert.False(t, q.Push(&protocol.Event{ID: "3"}), "bounded queue must refuse overflow")

	e, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "1", e.ID)
	assert.True(t, q.Push(&protocol.Event{ID: "3"}), "space freed by pop is reusable")
}

func TestStackWraparound(t *testing.T) {
	q := NewEventStack(2)
	for round := 0; round < 5; round++ {
		require.True(t, q.Push(&protocol.Event{ID: "x"}))
		require.True(t, q.Push(&protocol.Event{ID: "y"}))
		e, _ := q.Pop()
		assert.Equal(t, "x", e.ID)
		e, _ = q.Pop()
		assert.Equal(t, "y", e.ID)
	}
}
