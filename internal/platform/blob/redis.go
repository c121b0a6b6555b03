package blob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/sentinel"
)

// RedisStore implements Store on redis. The blob content lives under
// blob:<id>; the lease is a separate key blob-lease:<id> holding the lease
// token, with the TTL enforced by redis itself.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func dataKey(blobID string) string  { return "blob:" + blobID }
func leaseKey(blobID string) string { return "blob-lease:" + blobID }

// releaseScript deletes the lease key only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// guardedWriteScript writes (or deletes, when ARGV[3] is "1") the data key
// only if the lease key is absent or matches the presented token. Returns 1
// on success, 0 when the lease check fails.
var guardedWriteScript = redis.NewScript(`
local lease = redis.call("GET", KEYS[1])
if lease and lease ~= ARGV[1] then
	return 0
end
if not lease and ARGV[1] ~= "" then
	return 0
end
if ARGV[3] == "1" then
	redis.call("DEL", KEYS[2])
else
	redis.call("SET", KEYS[2], ARGV[2])
end
return 1
`)

func (s *RedisStore) AcquireLease(ctx context.Context, blobID string, ttl time.Duration) (string, error) {
	leaseID := uuid.New().String()
	ok, err := s.client.SetNX(ctx, leaseKey(blobID), leaseID, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire lease on %s: %w", blobID, err)
	}
	if !ok {
		return "", sentinel.ErrLeaseHeld
	}
	return leaseID, nil
}

func (s *RedisStore) ReleaseLease(ctx context.Context, blobID, leaseID string) error {
	// Compare-and-delete: never release a lease that was re-acquired by
	// another writer after ours expired.
	if err := releaseScript.Run(ctx, s.client, []string{leaseKey(blobID)}, leaseID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lease on %s: %w", blobID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, blobID, leaseID string) ([]byte, bool, error) {
	if err := s.checkLease(ctx, blobID, leaseID); err != nil {
		return nil, false, err
	}
	data, err := s.client.Get(ctx, dataKey(blobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get blob %s: %w", blobID, err)
	}
	return data, true, nil
}

func (s *RedisStore) Put(ctx context.Context, blobID string, data []byte, leaseID string) error {
	return s.guardedWrite(ctx, blobID, data, leaseID, false)
}

func (s *RedisStore) Delete(ctx context.Context, blobID, leaseID string) error {
	return s.guardedWrite(ctx, blobID, nil, leaseID, true)
}

func (s *RedisStore) guardedWrite(ctx context.Context, blobID string, data []byte, leaseID string, del bool) error {
	delFlag := "0"
	if del {
		delFlag = "1"
	}
	res, err := guardedWriteScript.Run(ctx, s.client,
		[]string{leaseKey(blobID), dataKey(blobID)},
		leaseID, string(data), delFlag,
	).Int()
	if err != nil {
		return fmt.Errorf("write blob %s: %w", blobID, err)
	}
	if res == 0 {
		return sentinel.ErrLeaseHeld
	}
	return nil
}

func (s *RedisStore) checkLease(ctx context.Context, blobID, leaseID string) error {
	current, err := s.client.Get(ctx, leaseKey(blobID)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		if leaseID != "" {
			// The presented lease expired out from under the caller.
			return sentinel.ErrLeaseHeld
		}
		return nil
	case err != nil:
		return fmt.Errorf("check lease on %s: %w", blobID, err)
	case current != leaseID:
		return sentinel.ErrLeaseHeld
	}
	return nil
}
