// Package thumbs renders preview images for the thumbnail ideas of a result.
// Every idea has its own state; renders run independently and a batch
// reports live progress.
package thumbs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"scenarist-ai/internal/apperr"
	"scenarist-ai/internal/domain"
	"scenarist-ai/internal/metrics"
)

type State string

const (
	StatePlaceholder State = "placeholder"
	StateLoading     State = "loading"
	StateReady       State = "ready"
	StateError       State = "error"
)

const DefaultTimeout = 120 * time.Second

var (
	// ErrInFlight is returned when a render for the same index is running.
	ErrInFlight = errors.New("thumbnail render already in progress")
	// ErrStale is returned when the ideas changed while a render was running.
	ErrStale = errors.New("thumbnail ideas changed")
)

type ImageGenerator interface {
	GenerateImage(ctx context.Context, p domain.ImagePrompt) (domain.Image, error)
}

type Item struct {
	Index    int           `json:"index"`
	Idea     string        `json:"idea"`
	State    State         `json:"state"`
	Error    string        `json:"error,omitempty"`
	ImageURI string        `json:"image,omitempty"`
	Image    *domain.Image `json:"-"`
}

type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
	Ready     int `json:"ready"`
	Failed    int `json:"failed"`
}

// Ratio is Completed/Total, or 0 for an empty board.
func (p Progress) Ratio() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total)
}

type Snapshot struct {
	Items    []Item   `json:"items"`
	Progress Progress `json:"progress"`
}

type Options struct {
	Generator   ImageGenerator
	Model       string
	Platform    domain.Platform
	Style       domain.Style
	VisualStyle string
	Timeout     time.Duration
	// OnProgress is called after each settlement of a VisualizeAll batch.
	OnProgress func(Progress)
	// OnItem is called whenever one render settles.
	OnItem func(Item)
	Logger *slog.Logger
}

type Board struct {
	gen        ImageGenerator
	model      string
	timeout    time.Duration
	onProgress func(Progress)
	onItem     func(Item)
	logger     *slog.Logger

	mu          sync.Mutex
	platform    domain.Platform
	style       domain.Style
	visualStyle string
	title       string
	items       []Item
	inflight    map[int]chan struct{}
	epoch       uint64
}

func New(opts Options) *Board {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Board{
		gen:         opts.Generator,
		model:       opts.Model,
		timeout:     timeout,
		onProgress:  opts.OnProgress,
		onItem:      opts.OnItem,
		logger:      logger,
		platform:    opts.Platform,
		style:       opts.Style,
		visualStyle: opts.VisualStyle,
		inflight:    make(map[int]chan struct{}),
	}
}

// SetIdeas replaces the idea list. When the list differs from the current
// one every item returns to placeholder and running renders become stale.
// It reports whether a reset happened.
func (b *Board) SetIdeas(ideas []string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sameIdeas(b.items, ideas) {
		return false
	}

	b.epoch++
	b.items = make([]Item, len(ideas))
	for i, idea := range ideas {
		b.items[i] = Item{Index: i, Idea: idea, State: StatePlaceholder}
	}
	b.inflight = make(map[int]chan struct{})
	return true
}

// SetContext updates the prompt context used by later renders. Existing
// images are kept.
func (b *Board) SetContext(platform domain.Platform, style domain.Style, title string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.platform = platform
	b.style = style
	b.title = title
}

func (b *Board) SetVisualStyle(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.visualStyle = key
}

func sameIdeas(items []Item, ideas []string) bool {
	if len(items) != len(ideas) {
		return false
	}
	for i := range items {
		if items[i].Idea != ideas[i] {
			return false
		}
	}
	return true
}

type job struct {
	index  int
	epoch  uint64
	done   chan struct{}
	prompt domain.ImagePrompt
}

// beginLocked moves index to loading and registers its completion channel.
func (b *Board) beginLocked(index int) job {
	it := &b.items[index]
	it.State = StateLoading
	it.Error = ""

	done := make(chan struct{})
	b.inflight[index] = done

	return job{
		index: index,
		epoch: b.epoch,
		done:  done,
		prompt: domain.ImagePrompt{
			Model: b.model,
			Prompt: BuildPrompt(PromptOptions{
				Idea:        it.Idea,
				Platform:    b.platform,
				Style:       b.style,
				VisualStyle: b.visualStyle,
				Title:       b.title,
			}),
			AspectRatio: AspectRatio(b.platform),
		},
	}
}

func (b *Board) checkIndexLocked(index int) error {
	if index < 0 || index >= len(b.items) {
		return apperr.New(apperr.KindNotFound, fmt.Sprintf("There is no thumbnail idea #%d.", index+1))
	}
	return nil
}

// Visualize renders one idea. A ready or failed item is rendered again; a
// loading one is rejected with ErrInFlight.
func (b *Board) Visualize(ctx context.Context, index int) (Item, error) {
	b.mu.Lock()
	if err := b.checkIndexLocked(index); err != nil {
		b.mu.Unlock()
		return Item{}, err
	}
	if b.items[index].State == StateLoading {
		b.mu.Unlock()
		return Item{}, ErrInFlight
	}
	j := b.beginLocked(index)
	b.mu.Unlock()

	return b.run(ctx, j)
}

func (b *Board) run(ctx context.Context, j job) (Item, error) {
	defer close(j.done)

	var img domain.Image
	var err error
	if b.gen == nil {
		err = apperr.Config("")
	} else {
		callCtx, cancel := context.WithTimeout(ctx, b.timeout)
		img, err = b.gen.GenerateImage(callCtx, j.prompt)
		if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !apperr.Is(err, apperr.KindTimeout) {
			err = apperr.Timeout(err)
		}
		cancel()
	}

	b.mu.Lock()
	if j.epoch != b.epoch {
		b.mu.Unlock()
		b.logger.Debug("thumbnail render discarded", "index", j.index)
		return Item{}, ErrStale
	}

	it := &b.items[j.index]
	if err != nil {
		// an earlier image survives a failed retry
		it.State = StateError
		it.Error = apperr.UserMessage(err)
	} else {
		it.State = StateReady
		it.Error = ""
		it.Image = &img
	}
	delete(b.inflight, j.index)
	out := withURI(*it)
	b.mu.Unlock()

	if err != nil {
		metrics.ThumbnailTotal.WithLabelValues(string(StateError)).Inc()
		b.logger.Warn("thumbnail render failed", "index", j.index, "kind", apperr.KindOf(err).String(), "err", err)
	} else {
		metrics.ThumbnailTotal.WithLabelValues(string(StateReady)).Inc()
		b.logger.Info("thumbnail ready", "index", j.index, "bytes", len(img.Data))
	}

	if b.onItem != nil {
		b.onItem(out)
	}
	return out, err
}

// VisualizeAll renders every idea without an image, also waits for renders
// already running, and returns once all of them settled. Failures do not
// stop the others. Ready items count as completed from the start, so the
// reported progress only grows.
func (b *Board) VisualizeAll(ctx context.Context) (Progress, error) {
	return b.VisualizeAllFunc(ctx, nil)
}

// VisualizeAllFunc is VisualizeAll with an extra per-call progress callback,
// invoked after the board's own OnProgress.
func (b *Board) VisualizeAllFunc(ctx context.Context, onProgress func(Progress)) (Progress, error) {
	b.mu.Lock()
	if len(b.items) == 0 {
		b.mu.Unlock()
		return Progress{}, nil
	}

	epoch := b.epoch
	prog := Progress{Total: len(b.items)}
	var jobs []job
	awaits := make(map[int]chan struct{})

	for i := range b.items {
		switch b.items[i].State {
		case StateReady:
			prog.Completed++
			prog.Ready++
		case StateLoading:
			awaits[i] = b.inflight[i]
		default:
			jobs = append(jobs, b.beginLocked(i))
		}
	}
	b.mu.Unlock()

	var progMu sync.Mutex
	settle := func(ok bool) {
		progMu.Lock()
		defer progMu.Unlock()
		prog.Completed++
		if ok {
			prog.Ready++
		} else {
			prog.Failed++
		}
		if b.onProgress != nil {
			b.onProgress(prog)
		}
		if onProgress != nil {
			onProgress(prog)
		}
	}

	var g errgroup.Group
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			_, err := b.run(ctx, j)
			settle(err == nil)
			return nil
		})
	}
	for index, done := range awaits {
		index, done := index, done
		g.Go(func() error {
			if done != nil {
				select {
				case <-done:
				case <-ctx.Done():
				}
			}
			settle(b.stateIs(epoch, index, StateReady))
			return nil
		})
	}
	_ = g.Wait()

	progMu.Lock()
	defer progMu.Unlock()
	return prog, ctx.Err()
}

func (b *Board) stateIs(epoch uint64, index int, state State) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if epoch != b.epoch || index >= len(b.items) {
		return false
	}
	return b.items[index].State == state
}

// Item returns one item with its image encoded.
func (b *Board) Item(index int) (Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkIndexLocked(index); err != nil {
		return Item{}, err
	}
	return withURI(b.items[index]), nil
}

func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{Items: make([]Item, len(b.items))}
	snap.Progress.Total = len(b.items)
	for i, it := range b.items {
		snap.Items[i] = withURI(it)
		switch it.State {
		case StateReady:
			snap.Progress.Ready++
		case StateError:
			snap.Progress.Failed++
		}
	}
	snap.Progress.Completed = snap.Progress.Ready + snap.Progress.Failed
	return snap
}

func withURI(it Item) Item {
	if it.Image != nil {
		img := *it.Image
		it.Image = &img
		it.ImageURI = img.DataURI()
	}
	return it
}
