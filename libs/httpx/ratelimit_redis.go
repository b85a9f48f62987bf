package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed-window rate limiter backed by Redis, shared by
// every replica of the service.
type RedisRateLimiter struct {
	rdb      redis.Scripter
	limit    int
	window   time.Duration
	prefix   string
	key      KeyFunc
	logger   *slog.Logger
	failOpen bool
}

var redisFixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

type RedisLimiterOptions struct {
	Limit  int
	Window time.Duration
	Prefix string
	Key    KeyFunc
	Logger *slog.Logger
	// FailOpen lets traffic through when Redis errors.
	FailOpen bool
}

func NewRedisRateLimiter(rdb redis.Scripter, opts RedisLimiterOptions) *RedisRateLimiter {
	if opts.Limit <= 0 {
		opts.Limit = 60
	}
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	opts.Prefix = strings.TrimSpace(opts.Prefix)
	if opts.Prefix == "" {
		opts.Prefix = "rl"
	}
	if opts.Key == nil {
		opts.Key = ClientKey
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &RedisRateLimiter{
		rdb:      rdb,
		limit:    opts.Limit,
		window:   opts.Window,
		prefix:   opts.Prefix,
		key:      opts.Key,
		logger:   opts.Logger,
		failOpen: opts.FailOpen,
	}
}

func (rl *RedisRateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count, err := rl.incr(r.Context(), rl.prefix+":"+rl.key(r))
			if err != nil {
				rl.logger.Warn("redis rate limiter error", "err", err)
				if rl.failOpen {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "rate limiter unavailable", http.StatusServiceUnavailable)
				return
			}
			if count > int64(rl.limit) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RedisRateLimiter) incr(ctx context.Context, key string) (int64, error) {
	res, err := redisFixedWindowScript.Run(ctx, rl.rdb, []string{key}, rl.window.Milliseconds()).Result()
	if err != nil {
		return 0, err
	}
	switch v := res.(type) {
	case int64:
		return v, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis script result type %T", res)
	}
}
