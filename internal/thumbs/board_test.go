package thumbs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"scenarist-ai/internal/apperr"
	"scenarist-ai/internal/domain"
)

type fakeGenerator struct {
	mu      sync.Mutex
	delays  map[string]time.Duration
	fail    map[string]bool
	gates   map[string]chan struct{}
	prompts []domain.ImagePrompt
}

func (f *fakeGenerator) GenerateImage(ctx context.Context, p domain.ImagePrompt) (domain.Image, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, p)
	var delay time.Duration
	var fail bool
	var gate chan struct{}
	for idea, d := range f.delays {
		if strings.Contains(p.Prompt, idea) {
			delay = d
		}
	}
	for idea, v := range f.fail {
		if strings.Contains(p.Prompt, idea) {
			fail = v
		}
	}
	for idea, g := range f.gates {
		if strings.Contains(p.Prompt, idea) {
			gate = g
		}
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.Image{}, ctx.Err()
		}
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if fail {
		return domain.Image{}, apperr.Transport(errors.New("model overloaded"))
	}
	return domain.Image{MimeType: "image/png", Data: []byte("img")}, nil
}

func TestVisualizeAll_VariableDelaysProgressMonotonic(t *testing.T) {
	gen := &fakeGenerator{delays: map[string]time.Duration{
		"idea-a": 40 * time.Millisecond,
		"idea-b": 5 * time.Millisecond,
		"idea-c": 25 * time.Millisecond,
		"idea-d": 10 * time.Millisecond,
	}}

	var mu sync.Mutex
	var seen []Progress
	board := New(Options{
		Generator: gen,
		OnProgress: func(p Progress) {
			mu.Lock()
			seen = append(seen, p)
			mu.Unlock()
		},
	})
	board.SetIdeas([]string{"idea-a", "idea-b", "idea-c", "idea-d"})

	final, err := board.VisualizeAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, Progress{Completed: 4, Total: 4, Ready: 4}, final)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 4)
	for i := 1; i < len(seen); i++ {
		require.Greater(t, seen[i].Ratio(), seen[i-1].Ratio())
	}
	require.Equal(t, 1.0, seen[len(seen)-1].Ratio())

	snap := board.Snapshot()
	for _, it := range snap.Items {
		require.Equal(t, StateReady, it.State)
		require.True(t, strings.HasPrefix(it.ImageURI, "data:image/png;base64,"))
	}
}

func TestVisualizeAll_FailuresDoNotStopOthers(t *testing.T) {
	gen := &fakeGenerator{fail: map[string]bool{"idea-b": true}}
	board := New(Options{Generator: gen})
	board.SetIdeas([]string{"idea-a", "idea-b", "idea-c"})

	final, err := board.VisualizeAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, final.Completed)
	require.Equal(t, 2, final.Ready)
	require.Equal(t, 1, final.Failed)

	item, err := board.Item(1)
	require.NoError(t, err)
	require.Equal(t, StateError, item.State)
	require.Equal(t, apperr.DefaultMessage(apperr.KindTransport), item.Error)

	gen.mu.Lock()
	gen.fail = nil
	gen.mu.Unlock()

	final, err = board.VisualizeAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, Progress{Completed: 3, Total: 3, Ready: 3}, final)

	gen.mu.Lock()
	require.Len(t, gen.prompts, 4)
	gen.mu.Unlock()
}

func TestVisualize_RejectsDuplicateWhileLoading(t *testing.T) {
	gate := make(chan struct{})
	gen := &fakeGenerator{gates: map[string]chan struct{}{"idea-a": gate}}
	board := New(Options{Generator: gen})
	board.SetIdeas([]string{"idea-a"})

	done := make(chan error, 1)
	go func() {
		_, err := board.Visualize(context.Background(), 0)
		done <- err
	}()

	require.Eventually(t, func() bool {
		it, _ := board.Item(0)
		return it.State == StateLoading
	}, time.Second, 5*time.Millisecond)

	_, err := board.Visualize(context.Background(), 0)
	require.ErrorIs(t, err, ErrInFlight)

	close(gate)
	require.NoError(t, <-done)

	it, _ := board.Item(0)
	require.Equal(t, StateReady, it.State)

	_, err = board.Visualize(context.Background(), 0)
	require.NoError(t, err)
}

func TestVisualizeAll_AwaitsInFlightItems(t *testing.T) {
	gate := make(chan struct{})
	gen := &fakeGenerator{gates: map[string]chan struct{}{"idea-a": gate}}
	board := New(Options{Generator: gen})
	board.SetIdeas([]string{"idea-a", "idea-b"})

	single := make(chan error, 1)
	go func() {
		_, err := board.Visualize(context.Background(), 0)
		single <- err
	}()
	require.Eventually(t, func() bool {
		it, _ := board.Item(0)
		return it.State == StateLoading
	}, time.Second, 5*time.Millisecond)

	batch := make(chan Progress, 1)
	go func() {
		p, _ := board.VisualizeAll(context.Background())
		batch <- p
	}()

	time.Sleep(20 * time.Millisecond)
	close(gate)

	require.NoError(t, <-single)
	require.Equal(t, Progress{Completed: 2, Total: 2, Ready: 2}, <-batch)

	gen.mu.Lock()
	require.Len(t, gen.prompts, 2)
	gen.mu.Unlock()
}

func TestSetIdeas_ResetsAndDiscardsStaleRenders(t *testing.T) {
	gate := make(chan struct{})
	gen := &fakeGenerator{gates: map[string]chan struct{}{"legacy-idea": gate}}
	board := New(Options{Generator: gen})
	board.SetIdeas([]string{"legacy-idea"})

	done := make(chan error, 1)
	go func() {
		_, err := board.Visualize(context.Background(), 0)
		done <- err
	}()
	require.Eventually(t, func() bool {
		it, _ := board.Item(0)
		return it.State == StateLoading
	}, time.Second, 5*time.Millisecond)

	require.False(t, board.SetIdeas([]string{"legacy-idea"}))
	require.True(t, board.SetIdeas([]string{"new idea"}))

	close(gate)
	require.ErrorIs(t, <-done, ErrStale)

	it, err := board.Item(0)
	require.NoError(t, err)
	require.Equal(t, "new idea", it.Idea)
	require.Equal(t, StatePlaceholder, it.State)
}

func TestVisualize_FailedRetryKeepsImage(t *testing.T) {
	gen := &fakeGenerator{fail: map[string]bool{}}
	board := New(Options{Generator: gen})
	board.SetIdeas([]string{"idea-a"})

	it, err := board.Visualize(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, StateReady, it.State)

	gen.mu.Lock()
	gen.fail["idea-a"] = true
	gen.mu.Unlock()

	it, err = board.Visualize(context.Background(), 0)
	require.Equal(t, apperr.KindTransport, apperr.KindOf(err))
	require.Equal(t, StateError, it.State)
	require.NotEmpty(t, it.Error)
	require.NotNil(t, it.Image)
	require.Equal(t, []byte("img"), it.Image.Data)
	require.NotEmpty(t, it.ImageURI)

	snap := board.Snapshot()
	require.NotNil(t, snap.Items[0].Image)
}

func TestVisualize_IndexOutOfRange(t *testing.T) {
	board := New(Options{Generator: &fakeGenerator{}})
	board.SetIdeas([]string{"a"})

	_, err := board.Visualize(context.Background(), 3)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestVisualize_NoGeneratorIsConfigError(t *testing.T) {
	board := New(Options{})
	board.SetIdeas([]string{"a"})

	it, err := board.Visualize(context.Background(), 0)
	require.Equal(t, apperr.KindConfig, apperr.KindOf(err))
	require.Equal(t, StateError, it.State)
}

func TestVisualize_UsesPlatformAspect(t *testing.T) {
	gen := &fakeGenerator{}
	board := New(Options{Generator: gen, Model: "img-model"})
	board.SetContext(domain.PlatformYouTube, domain.StyleEducational, "Coffee hacks")
	board.SetIdeas([]string{"Big cup, text: WRONG BREW"})

	_, err := board.Visualize(context.Background(), 0)
	require.NoError(t, err)

	gen.mu.Lock()
	defer gen.mu.Unlock()
	p := gen.prompts[0]
	require.Equal(t, "16:9", p.AspectRatio)
	require.Equal(t, "img-model", p.Model)
	require.Contains(t, p.Prompt, "Big cup, text: WRONG BREW")
	require.Contains(t, p.Prompt, "Clean Explainer")
	require.Contains(t, p.Prompt, "Video title: Coffee hacks")
	require.NotContains(t, p.Prompt, "Vertical safe zones")
}

func TestBuildPrompt_VerticalAndOverride(t *testing.T) {
	prompt := BuildPrompt(PromptOptions{
		Idea:        "Shocked face",
		Platform:    domain.PlatformTikTok,
		Style:       domain.StyleStorytelling,
		VisualStyle: "dark_premium",
	})
	require.Contains(t, prompt, "Aspect ratio: 9:16.")
	require.Contains(t, prompt, "Vertical safe zones")
	require.Contains(t, prompt, "Dark Premium")
	require.NotContains(t, prompt, "Cinematic Story Frame")
	require.Len(t, VisualStyles(), 5)
}

func TestSnapshot_Empty(t *testing.T) {
	board := New(Options{})
	snap := board.Snapshot()
	require.Empty(t, snap.Items)
	require.Zero(t, snap.Progress.Ratio())

	p, err := board.VisualizeAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, Progress{}, p)
}

func TestVisualizeAllFunc_CallsBothObservers(t *testing.T) {
	var boardCalls, callCalls int
	var mu sync.Mutex
	board := New(Options{
		Generator: &fakeGenerator{},
		OnProgress: func(Progress) {
			mu.Lock()
			boardCalls++
			mu.Unlock()
		},
	})
	board.SetIdeas([]string{"x", "y"})

	final, err := board.VisualizeAllFunc(context.Background(), func(Progress) {
		mu.Lock()
		callCalls++
		mu.Unlock()
	})
	require.NoError(t, err)
	require.Equal(t, 2, final.Ready)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, boardCalls)
	require.Equal(t, 2, callCalls)
}
