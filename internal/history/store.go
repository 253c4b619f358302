// Package history keeps the most recent generated scripts per account,
// newest first, as one JSON record per account in a KV store.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"scenarist-ai/internal/domain"
)

const (
	DefaultLimit = 10
	keyPrefix    = "scenarist_history"
)

type Options struct {
	Limit  int
	Now    func() time.Time
	Logger *slog.Logger
}

type Store struct {
	kv     KV
	limit  int
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string][]domain.HistoryEntry
}

func Open(kv KV, opts Options) *Store {
	if kv == nil {
		kv = NewMemoryKV()
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		kv:      kv,
		limit:   limit,
		now:     now,
		logger:  logger,
		entries: make(map[string][]domain.HistoryEntry),
	}
}

func recordKey(account string) string {
	account = strings.TrimSpace(account)
	if account == "" {
		return keyPrefix
	}
	return keyPrefix + ":" + account
}

// loadLocked reads the account's record once and caches it. A corrupt
// record is logged and treated as empty.
func (s *Store) loadLocked(ctx context.Context, account string) ([]domain.HistoryEntry, error) {
	key := recordKey(account)
	if list, ok := s.entries[key]; ok {
		return list, nil
	}

	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var list []domain.HistoryEntry
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			s.logger.Warn("history record unreadable, starting empty", "key", key, "err", err)
			list = nil
		}
	}
	if len(list) > s.limit {
		list = list[:s.limit]
	}
	s.entries[key] = list
	return list, nil
}

func (s *Store) saveLocked(ctx context.Context, account string, list []domain.HistoryEntry) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := s.kv.Put(ctx, recordKey(account), string(raw)); err != nil {
		return err
	}
	s.entries[recordKey(account)] = list
	return nil
}

// Append puts a new entry at the front and evicts the oldest past the limit.
func (s *Store) Append(ctx context.Context, account, title, markdown string, result *domain.GenerateResult) (domain.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.loadLocked(ctx, account)
	if err != nil {
		return domain.HistoryEntry{}, err
	}

	entry := domain.HistoryEntry{
		ID:        uuid.NewString(),
		Title:     title,
		Markdown:  markdown,
		Result:    result,
		CreatedAt: s.now().UTC(),
	}

	next := make([]domain.HistoryEntry, 0, s.limit)
	next = append(next, entry)
	next = append(next, list...)
	if len(next) > s.limit {
		next = next[:s.limit]
	}

	if err := s.saveLocked(ctx, account, next); err != nil {
		return domain.HistoryEntry{}, err
	}
	return entry, nil
}

// List returns the account's entries, newest first.
func (s *Store) List(ctx context.Context, account string) ([]domain.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.loadLocked(ctx, account)
	if err != nil {
		return nil, err
	}
	return append([]domain.HistoryEntry(nil), list...), nil
}

func (s *Store) Get(ctx context.Context, account, id string) (domain.HistoryEntry, bool, error) {
	list, err := s.List(ctx, account)
	if err != nil {
		return domain.HistoryEntry{}, false, err
	}
	for _, e := range list {
		if e.ID == id {
			return e, true, nil
		}
	}
	return domain.HistoryEntry{}, false, nil
}

func (s *Store) Clear(ctx context.Context, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, account, []domain.HistoryEntry{})
}
