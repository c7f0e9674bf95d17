package flowstate

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	keySuppression = "lumera:flow:suppression"
	keyResume      = "lumera:flow:resume"
	keyBearer      = "lumera:flow:bearer"
	keyVerifyLock  = "lumera:flow:verify_lock"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

type redisStore struct {
	client *redis.Client
	script *redis.Script
}

// NewRedisStore returns a Store shared across processes via Redis. Used when
// several client workers must observe the same flow state.
func NewRedisStore(client *redis.Client) (Store, error) {
	if client == nil {
		return nil, errors.New("flowstate: redis client is required")
	}
	return &redisStore{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}, nil
}

func (r *redisStore) SetSuppression(ctx context.Context, s Suppression) error {
	if s == SuppressionNone {
		return r.client.Del(ctx, keySuppression).Err()
	}
	return r.client.Set(ctx, keySuppression, string(s), 0).Err()
}

func (r *redisStore) Suppression(ctx context.Context) (Suppression, error) {
	val, err := r.client.Get(ctx, keySuppression).Result()
	if errors.Is(err, redis.Nil) {
		return SuppressionNone, nil
	}
	if err != nil {
		return SuppressionNone, err
	}
	return Suppression(val), nil
}

func (r *redisStore) ClearSuppression(ctx context.Context) error {
	return r.client.Del(ctx, keySuppression).Err()
}

func (r *redisStore) SaveResume(ctx context.Context, snap ResumeSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, keyResume, payload, 0).Err()
}

func (r *redisStore) LoadResume(ctx context.Context) (ResumeSnapshot, bool, error) {
	raw, err := r.client.Get(ctx, keyResume).Bytes()
	if errors.Is(err, redis.Nil) {
		return ResumeSnapshot{}, false, nil
	}
	if err != nil {
		return ResumeSnapshot{}, false, err
	}
	var snap ResumeSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return ResumeSnapshot{}, false, err
	}
	return snap, true, nil
}

func (r *redisStore) ClearResume(ctx context.Context) error {
	return r.client.Del(ctx, keyResume).Err()
}

func (r *redisStore) SetBearerToken(ctx context.Context, token string) error {
	if token == "" {
		return r.client.Del(ctx, keyBearer).Err()
	}
	return r.client.Set(ctx, keyBearer, token, 0).Err()
}

func (r *redisStore) BearerToken(ctx context.Context) (string, bool, error) {
	val, err := r.client.Get(ctx, keyBearer).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, val != "", nil
}

func (r *redisStore) ClearBearerToken(ctx context.Context) error {
	return r.client.Del(ctx, keyBearer).Err()
}

func (r *redisStore) AcquireVerification(ctx context.Context, ttl time.Duration) (string, bool, error) {
	if ttl <= 0 {
		return "", false, errors.New("flowstate: lock ttl must be positive")
	}
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, keyVerifyLock, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (r *redisStore) ReleaseVerification(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return r.script.Run(ctx, r.client, []string{keyVerifyLock}, token).Err()
}

func (r *redisStore) Purge(ctx context.Context) error {
	return r.client.Del(ctx, keySuppression, keyResume, keyBearer, keyVerifyLock).Err()
}
