package propstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "properties.store"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSetAndGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	head, err := s.Set(None, 1, Str("Alice"))
	require.NoError(t, err)
	head, err = s.Set(head, 2, Int(30))
	require.NoError(t, err)

	v, ok, err := s.Get(head, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Alice", v.Str)

	v, ok, err = s.Get(head, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(30), v.Int)
}

func TestSetReplacesExistingKeyInPlace(t *testing.T) {
	s := openTestStore(t)

	head, err := s.Set(None, 1, Int(1))
	require.NoError(t, err)
	head, err = s.Set(head, 2, Int(2))
	require.NoError(t, err)
	head, err = s.Set(head, 1, Int(99))
	require.NoError(t, err)

	all, err := s.All(head)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, int64(99), all[1].Int)
	require.Equal(t, int64(2), all[2].Int)
}

func TestRemoveUnlinksKey(t *testing.T) {
	s := openTestStore(t)

	head, err := s.Set(None, 1, Int(1))
	require.NoError(t, err)
	head, err = s.Set(head, 2, Int(2))
	require.NoError(t, err)

	newHead, removed, err := s.Remove(head, 1)
	require.NoError(t, err)
	require.True(t, removed)

	_, ok, err := s.Get(newHead, 1)
	require.NoError(t, err)
	require.False(t, ok)

	v, ok, err := s.Get(newHead, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), v.Int)
}

func TestRemoveMissingKeyIsNoop(t *testing.T) {
	s := openTestStore(t)
	head, err := s.Set(None, 1, Int(1))
	require.NoError(t, err)

	newHead, removed, err := s.Remove(head, 42)
	require.NoError(t, err)
	require.False(t, removed)
	require.Equal(t, head, newHead)
}

func TestVectorRoundTrip(t *testing.T) {
	s := openTestStore(t)
	vec := []float64{0.1, 0.2, 0.3, -1.5}
	head, err := s.Set(None, 7, Vector(vec))
	require.NoError(t, err)

	v, ok, err := s.Get(head, 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, vec, v.Vector)
}

func TestListAndMapRoundTrip(t *testing.T) {
	s := openTestStore(t)
	list := List([]Value{Int(1), Str("two"), Bool(true)})
	m := Map(map[string]Value{"a": Int(1), "b": Str("x")})

	head, err := s.Set(None, 1, list)
	require.NoError(t, err)
	head, err = s.Set(head, 2, m)
	require.NoError(t, err)

	got, ok, err := s.Get(head, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, Equal(list, got))

	got, ok, err = s.Get(head, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, Equal(m, got))
}

func TestGetOnEmptyHeadReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.Get(None, 1)
	require.NoError(t, err)
	require.False(t, ok)
}
