package session

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCreateLookupRemove(t *testing.T) {
	r := NewRegistry()
	w := &fakeWriter{}
	c := &Control{CreatedAt: time.Now(), pty: newFakePTY(80, 24)}

	id := r.Create(c, w)
	require.NotEmpty(t, id)
	assert.Equal(t, id, c.ID)
	assert.Equal(t, 1, r.Len())

	gotW, err := r.Writer(id)
	require.NoError(t, err)
	assert.Same(t, w, gotW.(*fakeWriter))

	gotC, err := r.Control(id)
	require.NoError(t, err)
	assert.Same(t, c, gotC)

	removed, ok := r.Remove(id)
	require.True(t, ok)
	assert.Same(t, c, removed)

	_, err = r.Writer(id)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Control(id)
	assert.ErrorIs(t, err, ErrNotFound)
	_, ok = r.Remove(id)
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}

func TestRegistrySkipsTakenIDs(t *testing.T) {
	r := NewRegistry()
	ids := []string{"a", "a", "a", "b"}
	r.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first := r.Create(&Control{}, io.Discard)
	second := r.Create(&Control{}, io.Discard)
	assert.Equal(t, "a", first)
	assert.Equal(t, "b", second)
}

func TestRegistryIDsOldestFirst(t *testing.T) {
	r := NewRegistry()
	base := time.Now()
	late := r.Create(&Control{CreatedAt: base.Add(time.Second)}, io.Discard)
	early := r.Create(&Control{CreatedAt: base}, io.Discard)

	assert.Equal(t, []string{early, late}, r.IDs())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := r.Create(&Control{CreatedAt: time.Now()}, io.Discard)
			_, err := r.Writer(id)
			assert.NoError(t, err)
			_ = r.IDs()
			_, ok := r.Remove(id)
			assert.True(t, ok)
		}()
	}
	wg.Wait()
	assert.Zero(t, r.Len())
}

func TestMultiSink(t *testing.T) {
	a, b := &captureSink{}, &captureSink{}
	var fn []Event
	sink := MultiSink{a, nil, b, SinkFunc(func(e Event) { fn = append(fn, e) })}

	sink.Publish(Event{Type: EventOpened, SessionID: "s"})

	assert.Len(t, a.all(), 1)
	assert.Len(t, b.all(), 1)
	assert.Len(t, fn, 1)
}
