package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Guard serializes mutations per key. Acquire fails fast with ErrInFlight
// instead of queueing, so a double submit is reported rather than replayed.
type Guard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Locks is the in-process Guard.
type Locks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocks() *Locks { return &Locks{held: map[string]struct{}{}} }

func (l *Locks) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, ErrInFlight
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// RedisGuard holds the key across every replica with SET NX PX. The TTL
// bounds how long a crashed holder can block the appointment.
type RedisGuard struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewRedisGuard(rdb redis.Cmdable, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisGuard{rdb: rdb, ttl: ttl, prefix: "booking:lock:"}
}

// Deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func (g *RedisGuard) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ok, err := g.rdb.SetNX(ctx, g.prefix+key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire booking lock: %w", err)
	}
	if !ok {
		return nil, ErrInFlight
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, g.rdb, []string{g.prefix + key}, token).Err()
		})
	}, nil
}

func appointmentKey(id string) string { return "appointment:" + id }

func slotKey(r BookRequest) string {
	return fmt.Sprintf("slot:%s:%s:%s", r.DoctorID, r.Date, r.Slot.Clock24())
}
