package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"MetalPulse/pkg/cache"
)

// CacheCycleLock is a TTL lock in the shared cache. The TTL bounds how long a
// crashed holder can block other replicas; the owner token keeps a replica
// whose lock expired from releasing the next holder's lock.
type CacheCycleLock struct {
	cache cache.Service
	key   string
	owner string
	ttl   time.Duration
}

func NewCacheCycleLock(c cache.Service, ttl time.Duration) *CacheCycleLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CacheCycleLock{
		cache: c,
		key:   cache.Key("lock", "cycle"),
		owner: uuid.NewString(),
		ttl:   ttl,
	}
}

func (l *CacheCycleLock) TryAcquire(ctx context.Context) (bool, error) {
	return l.cache.TryLock(ctx, l.key, l.owner, l.ttl)
}

// Release returns cache.ErrLockNotHeld when the lock expired while the cycle ran.
func (l *CacheCycleLock) Release(ctx context.Context) error {
	return l.cache.Unlock(ctx, l.key, l.owner)
}
