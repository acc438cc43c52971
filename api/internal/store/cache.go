package store

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"insights-proxy/api/internal/insights/types"
)

// ErrNotFound is returned by a Store for a key it does not hold.
var ErrNotFound = errors.New("store: not found")

// DefaultTTL is how long a cached result stays fresh.
const DefaultTTL = 24 * time.Hour

// Entry is one cached result. Entries are replaced whole, never patched.
type Entry struct {
	Key        string
	Task       types.TaskKind
	ContextID  string
	InputHash  string
	ResultJSON string
	Model      string
	LatencyMs  int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Store is the document boundary the cache sits on. Save overwrites.
type Store interface {
	Load(ctx context.Context, key string) (Entry, error)
	Save(ctx context.Context, e Entry) error
}

// Cache checks freshness on read; stale entries are ignored, not deleted.
type Cache struct {
	store Store
	ttl   time.Duration
	log   *zap.Logger

	Now func() time.Time
}

func NewCache(s Store, ttl time.Duration, log *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{store: s, ttl: ttl, log: log, Now: time.Now}
}

func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the fresh entry for (task, contextID, input). ok is false on a miss or a stale entry.
func (c *Cache) Get(ctx context.Context, task types.TaskKind, contextID string, input any) (Entry, bool, error) {
	key := Key(task, contextID, input)
	e, err := c.store.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, eris.Wrapf(err, "load cache entry %s", key)
	}
	if age := c.Now().Sub(e.CreatedAt); age > c.ttl {
		c.log.Info("ai cache expired", zap.String("task", string(task)), zap.String("key", key), zap.Duration("age", age))
		return Entry{}, false, nil
	}
	c.log.Info("ai cache hit", zap.String("task", string(task)), zap.String("key", key))
	return e, true, nil
}

// Put stores a result under (task, contextID, input), replacing any previous entry and its timestamp.
func (c *Cache) Put(ctx context.Context, task types.TaskKind, contextID string, input any, resultJSON, model string, latency time.Duration) (Entry, error) {
	now := c.Now().UTC()
	e := Entry{
		Key:        Key(task, contextID, input),
		Task:       task,
		ContextID:  contextID,
		ResultJSON: resultJSON,
		Model:      model,
		LatencyMs:  latency.Milliseconds(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if input != nil {
		e.InputHash = HashInput(input)
	}
	if err := c.store.Save(ctx, e); err != nil {
		return Entry{}, eris.Wrapf(err, "save cache entry %s", e.Key)
	}
	c.log.Info("ai cache set", zap.String("task", string(task)), zap.String("key", e.Key), zap.Int64("latency_ms", e.LatencyMs))
	return e, nil
}
