package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"scenarist-ai/internal/domain"
	"scenarist-ai/internal/ingest"
	"scenarist-ai/internal/render"
	"scenarist-ai/internal/scenario"
	"scenarist-ai/internal/thumbs"
)

func TestGet_ReusesWorkspace(t *testing.T) {
	store := NewStore(Options{})
	a := store.Get("chat-1")
	b := store.Get("chat-1")
	c := store.Get("chat-2")

	require.Same(t, a, b)
	require.NotSame(t, a, c)
	require.Equal(t, domain.PlatformShorts, a.Options().Platform)
}

func TestWorkspace_TracksEmittedAttachments(t *testing.T) {
	store := NewStore(Options{MaxFiles: 2})
	w := store.Get("u")

	ids := w.Files.Offer(context.Background(),
		ingest.FromBytes("a.txt", "text/plain", []byte("hello")),
		ingest.FromBytes("b.txt", "text/plain", []byte("world")),
		ingest.FromBytes("c.txt", "text/plain", []byte("dropped")),
	)
	require.Len(t, ids, 2)
	w.Files.Wait()

	in := w.Input("topic")
	require.Equal(t, "topic", in.Text)
	require.Len(t, in.Attachments, 2)

	require.True(t, w.Files.Remove(ids[0]))
	require.Len(t, w.Attachments(), 1)
	require.Equal(t, "b.txt", w.Attachments()[0].Name)
}

func TestWorkspace_SetOutcomeFeedsBoardAndLayout(t *testing.T) {
	store := NewStore(Options{})
	w := store.Get("u")

	w.Layout.Toggle(render.SectionHooks)
	w.SetOutcome(scenario.Outcome{
		Request: domain.GenerateRequest{Options: domain.Options{}.WithDefaults()},
		Result: domain.GenerateResult{
			TitleOptions:   []string{"T"},
			ThumbnailIdeas: []string{"one", "two"},
		},
	})

	require.False(t, w.Layout.Expanded(render.SectionHooks))
	snap := w.Board.Snapshot()
	require.Len(t, snap.Items, 2)
	require.Equal(t, thumbs.StatePlaceholder, snap.Items[0].State)

	got, ok := w.Outcome()
	require.True(t, ok)
	require.Equal(t, "T", got.Result.Title(""))

	w.Reset()
	_, ok = w.Outcome()
	require.False(t, ok)
	require.Empty(t, w.Board.Snapshot().Items)
	require.Empty(t, w.Attachments())
}

func TestSetOptions_AppliesDefaults(t *testing.T) {
	store := NewStore(Options{Defaults: domain.Options{Language: "German"}})
	w := store.Get("u")
	require.Equal(t, "German", w.Options().Language)

	w.SetOptions(domain.Options{Platform: domain.PlatformYouTube})
	o := w.Options()
	require.Equal(t, domain.PlatformYouTube, o.Platform)
	require.Equal(t, domain.StyleStorytelling, o.Style)
}

func TestSweep_DropsIdleWorkspaces(t *testing.T) {
	store := NewStore(Options{IdleTTL: time.Hour})
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	first := store.Get("old")
	now = now.Add(2 * time.Hour)
	store.Get("fresh")

	require.Equal(t, 1, store.Sweep())
	require.NotSame(t, first, store.Get("old"))
}
