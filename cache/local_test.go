package cache

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PoisonousPython/PluralKit/types"
)

func entry(kind, id string, version int64) types.CacheEntry {
	return types.CacheEntry{
		Kind:    kind,
		ID:      id,
		Payload: json.RawMessage(`{"id":"` + id + `"}`),
		Version: version,
	}
}

func TestLocal_GetMiss(t *testing.T) {
	l := NewLocal()

	_, err := l.Get(t.Context(), types.KindGuild, "missing")
	require.ErrorIs(t, err, types.ErrEntityNotFound)
}

func TestLocal_UpsertVersioning(t *testing.T) {
	ctx := t.Context()

	t.Run("version zero assigns one for a new key", func(t *testing.T) {
		l := NewLocal()
		require.NoError(t, l.Upsert(ctx, entry(types.KindGuild, "1", 0)))

		got, err := l.Get(ctx, types.KindGuild, "1")
		require.NoError(t, err)
		require.Equal(t, int64(1), got.Version)
	})

	t.Run("version zero advances past the stored version", func(t *testing.T) {
		l := NewLocal()
		require.NoError(t, l.Upsert(ctx, entry(types.KindGuild, "1", 5)))
		require.NoError(t, l.Upsert(ctx, entry(types.KindGuild, "1", 0)))

		got, err := l.Get(ctx, types.KindGuild, "1")
		require.NoError(t, err)
		require.Equal(t, int64(6), got.Version)
	})

	t.Run("stale write is dropped without error", func(t *testing.T) {
		l := NewLocal()
		newer := entry(types.KindGuild, "1", 10)
		newer.Payload = json.RawMessage(`{"id":"1","name":"newer"}`)
		require.NoError(t, l.Upsert(ctx, newer))
		require.NoError(t, l.Upsert(ctx, entry(types.KindGuild, "1", 3)))

		got, err := l.Get(ctx, types.KindGuild, "1")
		require.NoError(t, err)
		require.Equal(t, int64(10), got.Version)
		require.JSONEq(t, string(newer.Payload), string(got.Payload))
	})

	t.Run("equal version wins", func(t *testing.T) {
		l := NewLocal()
		require.NoError(t, l.Upsert(ctx, entry(types.KindGuild, "1", 4)))
		replacement := entry(types.KindGuild, "1", 4)
		replacement.Payload = json.RawMessage(`{"id":"1","rewritten":true}`)
		require.NoError(t, l.Upsert(ctx, replacement))

		got, err := l.Get(ctx, types.KindGuild, "1")
		require.NoError(t, err)
		require.JSONEq(t, string(replacement.Payload), string(got.Payload))
	})
}

func TestLocal_VersionNeverRegressesUnderConcurrency(t *testing.T) {
	ctx := t.Context()
	l := NewLocal()

	const writers = 8
	const perWriter = 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_ = l.Upsert(ctx, entry(types.KindUser, "77", 0))
			}
		}()
	}
	wg.Wait()

	got, err := l.Get(ctx, types.KindUser, "77")
	require.NoError(t, err)
	require.Equal(t, int64(writers*perWriter), got.Version,
		"every version-zero upsert must advance the version exactly once")
}

func TestLocal_Delete(t *testing.T) {
	ctx := t.Context()
	l := NewLocal()

	require.NoError(t, l.Upsert(ctx, entry(types.KindChannel, "9", 0)))
	require.NoError(t, l.Delete(ctx, types.KindChannel, "9"))

	_, err := l.Get(ctx, types.KindChannel, "9")
	require.ErrorIs(t, err, types.ErrEntityNotFound)

	// Deleting an absent key is not an error.
	require.NoError(t, l.Delete(ctx, types.KindChannel, "9"))
}

func TestLocal_BulkGet(t *testing.T) {
	ctx := t.Context()
	l := NewLocal()

	for _, id := range []string{"a", "b", "d"} {
		require.NoError(t, l.Upsert(ctx, entry(types.KindMember, id, 0)))
	}

	seq := l.BulkGet(ctx, types.KindMember, []string{"a", "b", "c", "d"})

	collect := func() []string {
		var ids []string
		for e := range seq {
			ids = append(ids, e.ID)
		}
		return ids
	}

	require.Equal(t, []string{"a", "b", "d"}, collect(), "misses are skipped, order preserved")
	require.Equal(t, []string{"a", "b", "d"}, collect(), "sequence must be restartable")

	t.Run("early break stops iteration", func(t *testing.T) {
		var first []string
		for e := range seq {
			first = append(first, e.ID)
			break
		}
		require.Equal(t, []string{"a"}, first)
	})

	t.Run("cancelled context ends the sequence", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		for range l.BulkGet(cancelled, types.KindMember, []string{"a"}) {
			t.Fatal("no entries expected after cancellation")
		}
	})
}
