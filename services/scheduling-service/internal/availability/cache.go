package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
)

// Store is the slice of Redis the cache needs. Get returns redis.Nil on a miss.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

type redisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) Store { return redisStore{rdb: rdb} }

func (s redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.rdb.Get(ctx, key).Bytes()
}

func (s redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s redisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s redisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	return out, iter.Err()
}

// CachedSource caches raw day availability and collapses concurrent fetches
// for the same day into one upstream call. Cache failures fall through to the
// wrapped source; upstream errors are never cached.
type CachedSource struct {
	src    Source
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger

	fetchTimeout time.Duration
}

const defaultFetchTimeout = 15 * time.Second

func NewCachedSource(src Source, store Store, ttl time.Duration, logger *slog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSource{src: src, store: store, ttl: ttl, logger: logger, fetchTimeout: defaultFetchTimeout}
}

type cachedDay struct {
	Available bool     `json:"available"`
	Morning   []string `json:"morning"`
	Afternoon []string `json:"afternoon"`
}

func cacheKey(clinicID, doctorID string, d clock.Date) string {
	return fmt.Sprintf("avail:%s:%s:%s", clinicID, doctorID, d)
}

func (c *CachedSource) Availability(ctx context.Context, q Query) (Day, error) {
	key := cacheKey(q.ClinicID, q.DoctorID, q.Date)
	if day, ok := c.lookup(ctx, key, q.Date); ok {
		return day, nil
	}

	// The shared fetch outlives any one caller; each caller still stops
	// waiting when its own context ends.
	ch := c.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		day, err := c.src.Availability(fctx, q)
		if err != nil {
			return Day{}, err
		}
		c.save(fctx, key, day)
		return day, nil
	})
	select {
	case <-ctx.Done():
		return Day{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Day{}, res.Err
		}
		return res.Val.(Day), nil
	}
}

func (c *CachedSource) lookup(ctx context.Context, key string, d clock.Date) (Day, bool) {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("availability cache read failed", "key", key, "err", err)
		}
		return Day{}, false
	}
	var cd cachedDay
	if err := json.Unmarshal(raw, &cd); err != nil {
		c.logger.Warn("availability cache entry corrupt", "key", key, "err", err)
		return Day{}, false
	}
	day := Day{Date: d, Available: cd.Available}
	if day.Morning, err = parseClocks(cd.Morning); err != nil {
		return Day{}, false
	}
	if day.Afternoon, err = parseClocks(cd.Afternoon); err != nil {
		return Day{}, false
	}
	return day, true
}

func (c *CachedSource) save(ctx context.Context, key string, day Day) {
	raw, err := json.Marshal(cachedDay{
		Available: day.Available,
		Morning:   clocks(day.Morning),
		Afternoon: clocks(day.Afternoon),
	})
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
		c.logger.Warn("availability cache write failed", "key", key, "err", err)
	}
}

// Invalidate drops cached days for doctorID. An empty clinicID matches every
// clinic the doctor is cached under; no dates drops every cached day. An
// empty doctorID with no dates drops the whole clinic.
func (c *CachedSource) Invalidate(ctx context.Context, clinicID, doctorID string, dates ...clock.Date) error {
	clinic, doctor := clinicID, doctorID
	if clinic == "" {
		clinic = "*"
	}
	if doctor == "" {
		doctor = "*"
	}
	var keys []string
	if len(dates) == 0 {
		found, err := c.store.Keys(ctx, fmt.Sprintf("avail:%s:%s:*", clinic, doctor))
		if err != nil {
			return fmt.Errorf("scan availability cache: %w", err)
		}
		keys = found
	}
	for _, d := range dates {
		if clinicID != "" && doctorID != "" {
			keys = append(keys, cacheKey(clinicID, doctorID, d))
			continue
		}
		found, err := c.store.Keys(ctx, cacheKey(clinic, doctor, d))
		if err != nil {
			return fmt.Errorf("scan availability cache: %w", err)
		}
		keys = append(keys, found...)
	}
	if err := c.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("invalidate availability cache: %w", err)
	}
	return nil
}

func clocks(ts []clock.TimeOfDay) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Clock24()
	}
	return out
}

func parseClocks(ss []string) ([]clock.TimeOfDay, error) {
	out := make([]clock.TimeOfDay, 0, len(ss))
	for _, s := range ss {
		t, err := clock.Parse24(s)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
