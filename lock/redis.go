package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v7"
	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

var _ Locker = &Redis{}

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisOptions contains the configuration of Redis
type RedisOptions struct {
	Client redis.UniversalClient
	Logger *zap.Logger
	// TTL bounds how long a crashed holder keeps the lock
	TTL time.Duration
	// RetryInterval is the polling period while the lock is held elsewhere
	RetryInterval time.Duration
	Prefix        string
}

// Redis is a Locker shared by every replica, built on SET NX with a token-checked release
type Redis struct {
	RedisOptions
	script *redis.Script
}

// NewRedis returns a distributed Locker
func NewRedis(option RedisOptions) (*Redis, error) {
	if option.Client == nil {
		return nil, fmt.Errorf("nil Client is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.TTL <= 0 {
		return nil, fmt.Errorf("TTL must be positive")
	}
	if option.RetryInterval <= 0 {
		option.RetryInterval = 50 * time.Millisecond
	}
	if option.Prefix == "" {
		option.Prefix = "lock:"
	}
	return &Redis{
		RedisOptions: option,
		script:       redis.NewScript(releaseScript),
	}, nil
}

// TryLock makes a single attempt. The returned token is needed to release
func (r *Redis) TryLock(key string) (string, bool, error) {
	token := uuid.New().String()
	ok, err := r.Client.SetNX(r.Prefix+key, token, r.TTL).Result()
	if err != nil {
		return "", false, extErrors.Wrap(err, "Cannot set lock key")
	}
	return token, ok, nil
}

// Release deletes key only if token still owns it
func (r *Redis) Release(key, token string) error {
	return r.script.Run(r.Client, []string{r.Prefix + key}, token).Err()
}

// Lock polls until key is acquired or ctx is done
func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	ticker := time.NewTicker(r.RetryInterval)
	defer ticker.Stop()
	for {
		token, ok, err := r.TryLock(key)
		if err != nil {
			return nil, err
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					if err := r.Release(key, token); err != nil {
						r.Logger.Error("Unable to release lock",
							zap.String("Key", key),
							zap.Error(err),
						)
					}
				})
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, extErrors.Wrapf(ctx.Err(), "Cannot acquire lock %s", key)
		case <-ticker.C:
		}
	}
}
