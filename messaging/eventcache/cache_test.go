package eventcache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nostrkit/protocol"
)

func note(id string, createdAt int64) *protocol.Event {
	return &protocol.Event{ID: id, Kind: protocol.KindTextNote, CreatedAt: protocol.Timestamp(createdAt)}
}

func TestInsertIdempotent(t *testing.T) {
	c := New(time.Minute, 10)
	defer c.Close()
	c.Insert(note("e1", 1))
	c.Insert(note("e1", 1))
	c.Insert(note("e1", 1))
	assert.Equal(t, 1, c.Len())

	got, ok := c.Get("e1")
	require.True(t, ok)
	assert.Equal(t, "e1", got.ID)
	_, ok = c.Get("nope")
	assert.False(t, ok)

	c.Insert(nil)
	c.Insert(&protocol.Event{})
	assert.Equal(t, 1, c.Len())
}

func TestQueryFiltersLocally(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()
	for i := 0; i < 5; i++ {
		c.Insert(note(fmt.Sprintf("e%d", i), int64(i)))
	}
	c.Insert(&protocol.Event{ID: "dm", Kind: protocol.KindEncryptedDM, CreatedAt: 99})

	notes := c.Query(protocol.Filter{Kinds: []int{protocol.KindTextNote}})
	assert.Len(t, notes, 5)
	assert.Equal(t, "e4", notes[0].ID, "newest first")

	limited := c.Query(protocol.Filter{Kinds: []int{protocol.KindTextNote}, Limit: 2})
	assert.Len(t, limited, 2)

	dms := c.Query(protocol.Filter{Kinds: []int{protocol.KindEncryptedDM}})
	require.Len(t, dms, 1)
	assert.Equal(t, "dm", dms[0].ID)
}

func TestEvictByTTL(t *testing.T) {
	c := New(50*time.Millisecond, 100)
	defer c.Close()
	c.Insert(note("old", 1))
	time.Sleep(80 * time.Millisecond)
	c.Insert(note("fresh", 2))

	c.evictOnce(time.Now())
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("old")
	assert.False(t, ok, "expired entry must be gone")
	_, ok = c.Get("fresh")
	assert.True(t, ok)
}

func TestEvictTrimsOldestFirst(t *testing.T) {
	c := New(time.Hour, 3)
	defer c.Close()
	for i := 0; i < 5; i++ {
		c.Insert(note(fmt.Sprintf("e%d", i), int64(i)))
		time.Sleep(2 * time.Millisecond) // distinct insertion times
	}
	c.evictOnce(time.Now())
	assert.Equal(t, 3, c.Len())
	for _, gone := range []string{"e0", "e1"} {
		_, ok := c.Get(gone)
		assert.False(t, ok, "%s inserted earliest, must be trimmed", gone)
	}
	for _, kept := range []string{"e2", "e3", "e4"} {
		_, ok := c.Get(kept)
		assert.True(t, ok, "%s must survive", kept)
	}
}

func TestCloseIdempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}

func TestCloseThenResume(t *testing.T) {
	c := New(time.Minute, 10)
	c.Insert(note("kept", 1))
	c.Close()

	c.Resume()
	c.Resume() // idempotent
	defer c.Close()

	_, ok := c.Get("kept")
	assert.True(t, ok, "entries survive a close/resume cycle")
	c.Insert(note("new", 2))
	assert.Equal(t, 2, c.Len())
}
