package credit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ledger stores per-day usage counters and the pro flag for accounts.
type Ledger interface {
	Used(ctx context.Context, account, day string) (int, error)
	// Consume increments the day's counter unless it already reached limit.
	Consume(ctx context.Context, account, day string, limit int) (bool, error)
	Refund(ctx context.Context, account, day string) error
	IsPro(ctx context.Context, account string) (bool, error)
	SetPro(ctx context.Context, account string) error
	Reset(ctx context.Context) error
}

// MemoryLedger keeps counters in process memory. Nothing survives a restart.
type MemoryLedger struct {
	mu   sync.Mutex
	used map[string]int
	pro  map[string]bool
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		used: make(map[string]int),
		pro:  make(map[string]bool),
	}
}

func memKey(account, day string) string {
	return account + "|" + day
}

func (m *MemoryLedger) Used(_ context.Context, account, day string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used[memKey(account, day)], nil
}

func (m *MemoryLedger) Consume(_ context.Context, account, day string, limit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memKey(account, day)
	if m.used[key] >= limit {
		return false, nil
	}
	m.used[key]++
	return true, nil
}

func (m *MemoryLedger) Refund(_ context.Context, account, day string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memKey(account, day)
	if m.used[key] > 0 {
		m.used[key]--
	}
	return nil
}

func (m *MemoryLedger) IsPro(_ context.Context, account string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pro[account], nil
}

func (m *MemoryLedger) SetPro(_ context.Context, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pro[account] = true
	return nil
}

func (m *MemoryLedger) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used = make(map[string]int)
	m.pro = make(map[string]bool)
	return nil
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisLedger shares counters between processes. Day counters expire after
// two days so stale keys clean themselves up.
type RedisLedger struct {
	rdb    *redis.Client
	prefix string
}

const dayKeyTTL = 48 * time.Hour

func NewRedisLedger(ctx context.Context, opts RedisOptions) (*RedisLedger, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisLedgerFromClient(rdb, opts.Prefix), nil
}

func NewRedisLedgerFromClient(rdb *redis.Client, prefix string) *RedisLedger {
	if prefix == "" {
		prefix = "credits"
	}
	return &RedisLedger{rdb: rdb, prefix: prefix}
}

func (r *RedisLedger) dayKey(account, day string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, account, day)
}

func (r *RedisLedger) proKey(account string) string {
	return fmt.Sprintf("%s:%s:pro", r.prefix, account)
}

func (r *RedisLedger) Used(ctx context.Context, account, day string) (int, error) {
	n, err := r.rdb.Get(ctx, r.dayKey(account, day)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read usage: %w", err)
	}
	return n, nil
}

func (r *RedisLedger) Consume(ctx context.Context, account, day string, limit int) (bool, error) {
	key := r.dayKey(account, day)

	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, dayKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("consume credit: %w", err)
	}

	if incr.Val() > int64(limit) {
		if err := r.rdb.Decr(ctx, key).Err(); err != nil {
			return false, fmt.Errorf("roll back overdraft: %w", err)
		}
		return false, nil
	}
	return true, nil
}

func (r *RedisLedger) Refund(ctx context.Context, account, day string) error {
	key := r.dayKey(account, day)
	n, err := r.rdb.Decr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("refund credit: %w", err)
	}
	if n < 0 {
		return r.rdb.Set(ctx, key, 0, dayKeyTTL).Err()
	}
	return nil
}

func (r *RedisLedger) IsPro(ctx context.Context, account string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.proKey(account)).Result()
	if err != nil {
		return false, fmt.Errorf("read pro flag: %w", err)
	}
	return n > 0, nil
}

func (r *RedisLedger) SetPro(ctx context.Context, account string) error {
	if err := r.rdb.Set(ctx, r.proKey(account), "1", 0).Err(); err != nil {
		return fmt.Errorf("set pro flag: %w", err)
	}
	return nil
}

// Reset deletes every key under the ledger prefix.
func (r *RedisLedger) Reset(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, r.prefix+":*", 100).Result()
		if err != nil {
			return fmt.Errorf("scan ledger keys: %w", err)
		}
		if len(keys) > 0 {
			if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete ledger keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (r *RedisLedger) Close() error {
	return r.rdb.Close()
}
