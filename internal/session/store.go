package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"scenarist-ai/internal/domain"
	"scenarist-ai/internal/ingest"
	"scenarist-ai/internal/render"
	"scenarist-ai/internal/scenario"
	"scenarist-ai/internal/thumbs"
)

// Workspace is the editing state of one user: chosen options, the files
// being ingested, the last generation and its thumbnail board.
type Workspace struct {
	Key    string
	Files  *ingest.Session
	Layout *render.Layout
	Board  *thumbs.Board

	mu           sync.Mutex
	options      domain.Options
	attachments  []domain.Attachment
	outcome      *scenario.Outcome
	lastActivity time.Time
}

type Options struct {
	MaxFiles int
	MaxBytes int64
	// Defaults seeds the options of a new workspace.
	Defaults domain.Options
	// Thumbs configures every board; the context fields are set per result.
	Thumbs thumbs.Options
	// IdleTTL drops workspaces unused for longer than this. Zero keeps them.
	IdleTTL time.Duration
	Logger  *slog.Logger
}

type Store struct {
	mu         sync.Mutex
	workspaces map[string]*Workspace
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
}

func NewStore(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	opts.Defaults = opts.Defaults.WithDefaults()

	return &Store{
		workspaces: make(map[string]*Workspace),
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// Get returns the workspace for key, creating it on first use.
func (s *Store) Get(key string) *Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if w, ok := s.workspaces[key]; ok {
		w.touch(now)
		return w
	}

	w := s.newWorkspace(key)
	w.lastActivity = now
	s.workspaces[key] = w
	return w
}

func (s *Store) newWorkspace(key string) *Workspace {
	w := &Workspace{
		Key:     key,
		Layout:  render.NewLayout(),
		options: s.opts.Defaults,
	}
	logger := s.logger.With("workspace", key)

	w.Files = ingest.New(ingest.Options{
		MaxFiles: s.opts.MaxFiles,
		MaxBytes: s.opts.MaxBytes,
		OnChange: func(list []domain.Attachment) {
			w.mu.Lock()
			w.attachments = list
			w.mu.Unlock()
			logger.Debug("attachments changed", "count", len(list))
		},
		Logger: logger,
	})

	bopts := s.opts.Thumbs
	bopts.Platform = w.options.Platform
	bopts.Style = w.options.Style
	bopts.Logger = logger
	w.Board = thumbs.New(bopts)
	return w
}

// Sweep drops workspaces idle for longer than IdleTTL and returns how many
// were removed.
func (s *Store) Sweep() int {
	if s.opts.IdleTTL <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.opts.IdleTTL)
	removed := 0
	for key, w := range s.workspaces {
		if w.idleSince().Before(cutoff) {
			delete(s.workspaces, key)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.opts.IdleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Info("idle workspaces dropped", "count", n)
			}
		}
	}
}

func (w *Workspace) touch(now time.Time) {
	w.mu.Lock()
	w.lastActivity = now
	w.mu.Unlock()
}

func (w *Workspace) idleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastActivity
}

func (w *Workspace) Options() domain.Options {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.options
}

// SetOptions replaces the options. Later thumbnail renders use the new
// platform and style.
func (w *Workspace) SetOptions(o domain.Options) {
	w.mu.Lock()
	w.options = o.WithDefaults()
	title := ""
	if w.outcome != nil {
		title = w.outcome.Result.Title("")
	}
	opts := w.options
	w.mu.Unlock()

	w.Board.SetContext(opts.Platform, opts.Style, title)
}

// Attachments is the last list published by the ingestion session.
func (w *Workspace) Attachments() []domain.Attachment {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.Attachment(nil), w.attachments...)
}

// Input pairs text with the current attachments.
func (w *Workspace) Input(text string) domain.Input {
	return domain.Input{Text: text, Attachments: w.Attachments()}
}

// Outcome returns the last successful generation.
func (w *Workspace) Outcome() (scenario.Outcome, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.outcome == nil {
		return scenario.Outcome{}, false
	}
	return *w.outcome, true
}

// Result is the last result, or the zero value when there is none.
func (w *Workspace) Result() domain.GenerateResult {
	out, _ := w.Outcome()
	return out.Result
}

// SetOutcome stores a new generation. The section layout returns to its
// defaults and the board follows the new thumbnail ideas.
func (w *Workspace) SetOutcome(out scenario.Outcome) {
	w.mu.Lock()
	w.outcome = &out
	w.mu.Unlock()

	w.Layout.Reset()
	opts := out.Request.Options
	w.Board.SetContext(opts.Platform, opts.Style, out.Result.Title(""))
	w.Board.SetIdeas(out.Result.ThumbnailIdeas)
}

// Reset clears files, result and thumbnails. Options are kept.
func (w *Workspace) Reset() {
	w.Files.Reset()

	w.mu.Lock()
	w.outcome = nil
	w.attachments = nil
	w.mu.Unlock()

	w.Layout.Reset()
	w.Board.SetIdeas(nil)
}
