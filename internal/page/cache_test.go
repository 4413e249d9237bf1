package page

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// memBackend is an in-memory Backend for testing the cache in isolation
// from any real file.
type memBackend struct {
	mu    sync.Mutex
	pages map[ID][]byte
}

func newMemBackend() *memBackend {
	return &memBackend{pages: make(map[ID][]byte)}
}

func (m *memBackend) ReadPageAt(id ID, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.pages[id]; ok {
		copy(buf, data)
		return nil
	}
	p := newPage(id)
	p.sealChecksum()
	copy(buf, p.data[:])
	return nil
}

func (m *memBackend) WritePageAt(id ID, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(buf))
	copy(cp, buf)
	m.pages[id] = cp
	return nil
}

func (m *memBackend) Sync() error { return nil }

func TestPinMissThenHit(t *testing.T) {
	c := New(newMemBackend(), 4)

	g, err := c.Pin(1, false)
	require.NoError(t, err)
	g.Release()

	g2, err := c.Pin(1, false)
	require.NoError(t, err)
	g2.Release()

	st := c.Stats()
	require.Equal(t, uint64(1), st.Hits)
	require.Equal(t, uint64(1), st.Misses)
}

func TestWriteThenReadBack(t *testing.T) {
	c := New(newMemBackend(), 4)

	g, err := c.Pin(1, true)
	require.NoError(t, err)
	copy(g.Page().Payload(), []byte("hello"))
	g.Release()
	require.NoError(t, c.FlushAll())

	c2 := New(c.backend, 4)
	g2, err := c2.Pin(1, false)
	require.NoError(t, err)
	require.Equal(t, "hello", string(g2.Page().Payload()[:5]))
	g2.Release()
}

func TestPinnedPageNotEvicted(t *testing.T) {
	c := New(newMemBackend(), 1)

	g1, err := c.Pin(1, false)
	require.NoError(t, err)

	_, err = c.Pin(2, false)
	require.Error(t, err, "expected CacheError::Full when the only frame is pinned")

	g1.Release()
}

func TestEvictionMakesRoom(t *testing.T) {
	c := New(newMemBackend(), 1)

	g1, err := c.Pin(1, false)
	require.NoError(t, err)
	g1.Release()

	g2, err := c.Pin(2, false)
	require.NoError(t, err)
	g2.Release()

	st := c.Stats()
	require.Equal(t, uint64(1), st.Evictions)
}

func TestCorruptedPageDetected(t *testing.T) {
	be := newMemBackend()
	be.pages[1] = make([]byte, Size) // all zero payload, zero checksum -> mismatch
	be.pages[1][Payload] = 0xFF      // corrupt the trailer relative to an all-zero payload checksum

	c := New(be, 4)
	_, err := c.Pin(1, false)
	require.Error(t, err)
}

func TestFlushClearsDirtySet(t *testing.T) {
	c := New(newMemBackend(), 4)

	g, err := c.Pin(1, true)
	require.NoError(t, err)
	g.Release()

	require.Equal(t, 1, c.Stats().Dirty)
	require.NoError(t, c.FlushAll())
	require.Equal(t, 0, c.Stats().Dirty)
}
