package callstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultSlotKey = "pushtalk:call:active"

// RedisStore keeps the single call slot in one redis key as a JSON blob.
type RedisStore struct {
	rdb    *redis.Client
	key    string
	window time.Duration
	now    func() time.Time

	// OnStale, when set, is invoked after a stale record is discarded.
	OnStale func()
}

func NewRedisStore(rdb *redis.Client, window time.Duration) *RedisStore {
	if window <= 0 {
		window = DefaultRecoveryWindow
	}
	return &RedisStore{rdb: rdb, key: defaultSlotKey, window: window, now: time.Now}
}

func (s *RedisStore) Save(ctx context.Context, rec PersistedCall) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("callstate: marshal: %w", err)
	}
	// No TTL here: staleness is evaluated at load time so a clock-skewed
	// redis does not silently drop a resumable call.
	if err := s.rdb.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("callstate: save: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (*PersistedCall, error) {
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("callstate: load: %w", err)
	}

	var rec PersistedCall
	if err := json.Unmarshal(raw, &rec); err != nil {
		// A corrupt slot is unrecoverable; clear it rather than wedging
		// every future load.
		_ = s.Clear(ctx)
		return nil, fmt.Errorf("callstate: decode: %w", err)
	}

	if s.now().UnixMilli()-rec.JoinTimestampMillis > s.window.Milliseconds() {
		if err := s.Clear(ctx); err != nil {
			return nil, err
		}
		if s.OnStale != nil {
			s.OnStale()
		}
		return nil, nil
	}
	return &rec, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("callstate: clear: %w", err)
	}
	return nil
}
