package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/linklet/linklet/internal/model"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// URLRepositoryInterface is the store contract the service layer consumes.
type URLRepositoryInterface interface {
	Create(ctx context.Context, url *model.URL) error
	GetByShortID(ctx context.Context, shortID string) (*model.URL, error)
	GetByLongURL(ctx context.Context, longURL string) (*model.URL, error)
	ShortIDExists(ctx context.Context, shortID string) (bool, error)
	NextSeq(ctx context.Context, name string) (int64, error)
	RecordClick(ctx context.Context, shortID, referrer string) (string, error)
	GetStats(ctx context.Context, shortID string) (*model.URL, []model.ReferrerCount, error)
}

// CachedURLRepository wraps URLRepository with a Redis cache-aside layer
// for the two immutable lookups: short ID -> record and long URL -> record.
// Analytics fields in cached records go stale by design, so anything that
// needs fresh counters (stats, click recording) passes straight through to
// the database. Redis being down degrades to plain database reads.
type CachedURLRepository struct {
	db    *URLRepository
	cache *redis.Client
	ttl   time.Duration
	group singleflight.Group
}

func NewCachedURLRepository(db *URLRepository, cache *redis.Client, ttl time.Duration) *CachedURLRepository {
	return &CachedURLRepository{db: db, cache: cache, ttl: ttl}
}

func shortIDKey(shortID string) string {
	return "url:" + shortID
}

func longURLKey(longURL string) string {
	// Long URLs are unbounded; hash them into a fixed-size key.
	sum := sha256.Sum256([]byte(longURL))
	return "lurl:" + hex.EncodeToString(sum[:])
}

// Create inserts through to the database and, on success, writes both
// mappings to the cache so an immediately following shorten or redirect
// hits warm entries.
func (r *CachedURLRepository) Create(ctx context.Context, url *model.URL) error {
	if err := r.db.Create(ctx, url); err != nil {
		return err
	}
	r.store(ctx, url)
	return nil
}

// GetByShortID resolves a short ID with cache-aside. Concurrent misses for
// the same ID are collapsed into one database query.
func (r *CachedURLRepository) GetByShortID(ctx context.Context, shortID string) (*model.URL, error) {
	if url, ok := r.lookup(ctx, shortIDKey(shortID)); ok {
		return url, nil
	}

	v, err, _ := r.group.Do(shortIDKey(shortID), func() (any, error) {
		url, err := r.db.GetByShortID(ctx, shortID)
		if err != nil {
			return nil, err
		}
		r.store(ctx, url)
		return url, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.URL), nil
}

// GetByLongURL resolves a long URL with cache-aside, serving the idempotent
// shorten path. Misses are not cached: a concurrent shorten may create the
// record at any moment and a cached miss would hide it.
func (r *CachedURLRepository) GetByLongURL(ctx context.Context, longURL string) (*model.URL, error) {
	if url, ok := r.lookup(ctx, longURLKey(longURL)); ok {
		return url, nil
	}

	v, err, _ := r.group.Do(longURLKey(longURL), func() (any, error) {
		url, err := r.db.GetByLongURL(ctx, longURL)
		if err != nil {
			return nil, err
		}
		r.store(ctx, url)
		return url, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.URL), nil
}

// ShortIDExists always consults the database; the allocator's collision
// check must not trust possibly-evicted cache state.
func (r *CachedURLRepository) ShortIDExists(ctx context.Context, shortID string) (bool, error) {
	return r.db.ShortIDExists(ctx, shortID)
}

func (r *CachedURLRepository) NextSeq(ctx context.Context, name string) (int64, error) {
	return r.db.NextSeq(ctx, name)
}

// RecordClick passes through: the analytics update is a single database
// transaction and must see the row, not a cached copy.
func (r *CachedURLRepository) RecordClick(ctx context.Context, shortID, referrer string) (string, error) {
	return r.db.RecordClick(ctx, shortID, referrer)
}

// GetStats passes through so counters are never stale.
func (r *CachedURLRepository) GetStats(ctx context.Context, shortID string) (*model.URL, []model.ReferrerCount, error) {
	return r.db.GetStats(ctx, shortID)
}

func (r *CachedURLRepository) lookup(ctx context.Context, key string) (*model.URL, bool) {
	if r.cache == nil {
		return nil, false
	}
	data, err := r.cache.Get(ctx, key).Bytes()
	if err != nil {
		// Cache miss and Redis failure are both treated as a miss.
		return nil, false
	}
	var url model.URL
	if err := json.Unmarshal(data, &url); err != nil {
		return nil, false
	}
	return &url, true
}

func (r *CachedURLRepository) store(ctx context.Context, url *model.URL) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(url)
	if err != nil {
		return
	}
	// Best effort; a failed cache write only costs a future database read.
	r.cache.Set(ctx, shortIDKey(url.ShortID), data, r.ttl)
	r.cache.Set(ctx, longURLKey(url.LongURL), data, r.ttl)
}

var _ URLRepositoryInterface = (*CachedURLRepository)(nil)
var _ URLRepositoryInterface = (*URLRepository)(nil)
