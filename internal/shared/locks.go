package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another owner holds the lock.
var ErrLockHeld = errors.New("shared: lock held by another owner")

// PurchaseOrderLockKey builds redis keys serialising writers of one order.
func PurchaseOrderLockKey(poID int64) string {
	return fmt.Sprintf("procurement:po:%d:lock", poID)
}

// ReconcileLockKey guards the consistency scan so only one worker runs it.
func ReconcileLockKey() string {
	return "procurement:reconcile:lock"
}

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker hands out short-lived exclusive leases backed by SET NX PX.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisLocker constructs a locker whose leases expire after ttl.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl}
}

// Lease is a held lock.
type Lease struct {
	client redis.UniversalClient
	key    string
	token  string
}

// Acquire takes the lock or fails fast with ErrLockHeld.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (*Lease, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lease{client: l.client, key: key, token: token}, nil
}

// Key returns the locked key.
func (l *Lease) Key() string {
	return l.key
}

// Release frees the lock if it has not expired and been taken by someone
// else in the meantime.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("shared: release %s: %w", l.key, err)
	}
	return nil
}
