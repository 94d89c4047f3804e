package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/BartekS5/ticketflow/pkg/etlerr"
	"github.com/BartekS5/ticketflow/pkg/logger"
	"github.com/BartekS5/ticketflow/pkg/retry"
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

var refreshScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

const minRefresh = 10 * time.Millisecond

// Redis is a Locker shared by every process using the same Redis. The TTL
// bounds how long a crashed holder can block others; a live holder keeps
// extending it until Unlock.
type Redis struct {
	rdb       redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	// MaxWait caps the poll interval while waiting for a held lock.
	MaxWait time.Duration
}

func NewRedis(rdb redis.UniversalClient, keyPrefix string, ttl time.Duration) *Redis {
	if keyPrefix == "" {
		keyPrefix = "ticketflow:lock:"
	}
	return &Redis{rdb: rdb, keyPrefix: keyPrefix, ttl: ttl, MaxWait: 500 * time.Millisecond}
}

func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	lockKey := r.keyPrefix + key
	token := uuid.NewString()
	wait := retry.Exponential(10*time.Millisecond, r.MaxWait)

	for attempt := 2; ; attempt++ {
		ok, err := r.rdb.SetNX(ctx, lockKey, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, etlerr.New(etlerr.KindTransport, "acquire lock "+key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait(attempt)):
		}
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go r.keepAlive(lockKey, token, stop, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped
			r.release(lockKey, token)
		})
	}, nil
}

// refreshEvery returns how often a held lock's TTL is extended.
func refreshEvery(ttl time.Duration) time.Duration {
	return max(ttl/3, minRefresh)
}

// keepAlive extends the TTL while the holder runs. It gives up when the
// key no longer carries token.
func (r *Redis) keepAlive(lockKey, token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(refreshEvery(r.ttl))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n, err := refreshScript.Run(ctx, r.rdb, []string{lockKey}, token, r.ttl.Milliseconds()).Int64()
			cancel()
			switch {
			case err != nil:
				logger.L().Warnw("Failed to refresh lock", "key", lockKey, "error", err)
			case n == 0:
				logger.L().Errorw("Lock lost while held", "key", lockKey, "ttl", r.ttl)
				return
			}
		}
	}
}

func (r *Redis) release(lockKey, token string) {
	// The caller's ctx may already be done.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := releaseScript.Run(ctx, r.rdb, []string{lockKey}, token).Int64()
	switch {
	case err != nil && !errors.Is(err, redis.Nil):
		logger.L().Warnw("Failed to release lock", "key", lockKey, "error", err)
	case n == 0:
		logger.L().Warnw("Lock expired before release", "key", lockKey, "ttl", r.ttl)
	}
}
