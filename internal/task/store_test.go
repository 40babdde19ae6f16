package task

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeRecord(userID, taskType string, status Status) *Record {
	return &Record{
		ID:     uuid.New(),
		UserID: userID,
		Type:   taskType,
		Status: status,
	}
}

func TestRecordStore_AddAndCapacity(t *testing.T) {
	t.Parallel()

	store := NewRecordStore(2)

	require.NoError(t, store.Add(storeRecord("u1", "echo", StatusPending)))
	require.NoError(t, store.Add(storeRecord("u1", "echo", StatusPending)))
	assert.Equal(t, 2, store.Len())

	err := store.Add(storeRecord("u1", "echo", StatusPending))
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, 2, store.Len())
}

func TestRecordStore_RemoveAndLookup(t *testing.T) {
	t.Parallel()

	store := NewRecordStore(10)
	rec := storeRecord("u1", "echo", StatusPending)
	require.NoError(t, store.Add(rec))

	assert.True(t, store.Has(rec.ID))
	got, ok := store.Get(rec.ID)
	require.True(t, ok)
	assert.Same(t, rec, got)

	removed, ok := store.Remove(rec.ID)
	require.True(t, ok)
	assert.Same(t, rec, removed)
	assert.False(t, store.Has(rec.ID))
	assert.Equal(t, 0, store.Len())

	// Removing an absent id is not an error
	_, ok = store.Remove(rec.ID)
	assert.False(t, ok)
	_, ok = store.Get(rec.ID)
	assert.False(t, ok)
}

func TestRecordStore_FindWrappers(t *testing.T) {
	t.Parallel()

	store := NewRecordStore(10)
	a := storeRecord("u1", "echo", StatusPending)
	b := storeRecord("u2", "render", StatusProcessing)
	c := storeRecord("u1", "render", StatusPending)
	for _, rec := range []*Record{a, b, c} {
		require.NoError(t, store.Add(rec))
	}

	assert.Equal(t, []*Record{a, c}, store.FindByUser("u1"))
	assert.Equal(t, []*Record{b, c}, store.FindByType("render"))
	assert.Equal(t, []*Record{a, c}, store.FindByStatus(StatusPending))
	assert.Empty(t, store.FindByUser("nobody"))
}

func TestRecordStore_FindReturnsSnapshot(t *testing.T) {
	t.Parallel()

	store := NewRecordStore(10)
	a := storeRecord("u1", "echo", StatusPending)
	b := storeRecord("u1", "echo", StatusPending)
	require.NoError(t, store.Add(a))
	require.NoError(t, store.Add(b))

	found := store.FindByUser("u1")
	require.Len(t, found, 2)

	// Mutating the store must not affect an already-returned result
	_, ok := store.Remove(a.ID)
	require.True(t, ok)
	assert.Len(t, found, 2)
	assert.Same(t, a, found[0])
}

func TestRecordStore_TakeFirst(t *testing.T) {
	t.Parallel()

	store := NewRecordStore(10)
	first := storeRecord("u1", "echo", StatusPending)
	second := storeRecord("u2", "echo", StatusPending)
	third := storeRecord("u1", "echo", StatusPending)
	for _, rec := range []*Record{first, second, third} {
		require.NoError(t, store.Add(rec))
	}

	t.Run("observes insertion order", func(t *testing.T) {
		got, ok := store.TakeFirst(func(*Record) bool { return true })
		require.True(t, ok)
		assert.Same(t, first, got)
		assert.False(t, store.Has(first.ID))
		assert.Equal(t, 2, store.Len())
	})

	t.Run("honors the predicate", func(t *testing.T) {
		got, ok := store.TakeFirst(func(r *Record) bool { return r.UserID == "u1" })
		require.True(t, ok)
		assert.Same(t, third, got)
	})

	t.Run("no match", func(t *testing.T) {
		_, ok := store.TakeFirst(func(r *Record) bool { return r.UserID == "nobody" })
		assert.False(t, ok)
		assert.Equal(t, 1, store.Len())
	})
}

func TestRecordStore_Replace(t *testing.T) {
	t.Parallel()

	store := NewRecordStore(10)
	a := storeRecord("u1", "echo", StatusPending)
	b := storeRecord("u1", "echo", StatusPending)
	require.NoError(t, store.Add(a))
	require.NoError(t, store.Add(b))

	t.Run("replaces by id and moves to back", func(t *testing.T) {
		updated := a.Clone()
		updated.Status = StatusProcessing

		prev, ok := store.Replace(updated)
		require.True(t, ok)
		assert.Same(t, a, prev)
		assert.Equal(t, 2, store.Len())

		got, ok := store.Get(a.ID)
		require.True(t, ok)
		assert.Equal(t, StatusProcessing, got.Status)

		// Remove-then-add semantics: the replaced record is now last
		taken, ok := store.TakeFirst(func(*Record) bool { return true })
		require.True(t, ok)
		assert.Same(t, b, taken)
	})

	t.Run("absent id is not inserted", func(t *testing.T) {
		stray := storeRecord("u9", "echo", StatusPending)
		prev, ok := store.Replace(stray)
		assert.False(t, ok)
		assert.Nil(t, prev)
		assert.False(t, store.Has(stray.ID))
	})
}
