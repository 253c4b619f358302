package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"scenarist-ai/internal/domain"
)

func TestAppend_NewestFirstAndCapped(t *testing.T) {
	ctx := context.Background()
	store := Open(NewMemoryKV(), Options{})

	for i := 1; i <= 12; i++ {
		_, err := store.Append(ctx, "alice", fmt.Sprintf("script %d", i), "# md", nil)
		require.NoError(t, err)
	}

	list, err := store.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 10)
	require.Equal(t, "script 12", list[0].Title)
	require.Equal(t, "script 3", list[9].Title)
}

func TestAppend_AccountsAreSeparate(t *testing.T) {
	ctx := context.Background()
	store := Open(nil, Options{Limit: 3})

	_, err := store.Append(ctx, "a", "one", "", nil)
	require.NoError(t, err)

	list, err := store.List(ctx, "b")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestList_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := Open(nil, Options{})
	_, err := store.Append(ctx, "", "one", "", nil)
	require.NoError(t, err)

	list, _ := store.List(ctx, "")
	list[0].Title = "mutated"

	again, _ := store.List(ctx, "")
	require.Equal(t, "one", again[0].Title)
}

func TestClearAndGet(t *testing.T) {
	ctx := context.Background()
	store := Open(nil, Options{})

	entry, err := store.Append(ctx, "x", "one", "body", &domain.GenerateResult{TitleOptions: []string{"one"}})
	require.NoError(t, err)
	require.NotEmpty(t, entry.ID)

	got, ok, err := store.Get(ctx, "x", entry.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "body", got.Markdown)

	require.NoError(t, store.Clear(ctx, "x"))
	list, _ := store.List(ctx, "x")
	require.Empty(t, list)
}

func TestCorruptRecordStartsEmpty(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Put(ctx, recordKey("bob"), "{not json"))

	store := Open(kv, Options{})
	list, err := store.List(ctx, "bob")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestSQLiteKV_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	kv, err := OpenSQLite(path)
	require.NoError(t, err)

	store := Open(kv, Options{Now: func() time.Time { return fixed }})
	entry, err := store.Append(ctx, "carol", "persisted", "# persisted", &domain.GenerateResult{
		Shots: []domain.Shot{{Timecode: "0-2s", Frame: "open"}},
	})
	require.NoError(t, err)
	require.NoError(t, kv.Close())

	kv2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer kv2.Close()

	reopened := Open(kv2, Options{})
	list, err := reopened.List(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, entry.ID, list[0].ID)
	require.True(t, fixed.Equal(list[0].CreatedAt))
	require.NotNil(t, list[0].Result)
	require.Equal(t, "0-2s", list[0].Result.Shots[0].Timecode)
}

func TestSQLiteKV_MissingKey(t *testing.T) {
	kv, err := OpenSQLite(filepath.Join(t.TempDir(), "h.db"))
	require.NoError(t, err)
	defer kv.Close()

	_, ok, err := kv.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, kv.Put(context.Background(), "k", "v1"))
	require.NoError(t, kv.Put(context.Background(), "k", "v2"))
	v, ok, err := kv.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", v)
}
