package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"pushtalk-agent/pkg/utils"
)

const defaultLeaseKey = "pushtalk:agent:foreground"

// RedisLease is the production Declarer: a TTL'd lease key the supervisor
// checks before reclaiming the agent, refreshed while the call is active.
// The TTL means a crashed agent never leaks a permanent lease.
type RedisLease struct {
	rdb    *redis.Client
	key    string
	holder string
	ttl    time.Duration
	log    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewRedisLease(rdb *redis.Client, holder string, ttl time.Duration, log *slog.Logger) *RedisLease {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisLease{rdb: rdb, key: defaultLeaseKey, holder: holder, ttl: ttl, log: log}
}

func (l *RedisLease) Declare(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		return nil
	}

	ok, err := utils.AcquireLease(ctx, l.rdb, l.key, l.holder, l.ttl)
	if err != nil {
		return fmt.Errorf("presence: acquire lease: %w", err)
	}
	if !ok {
		// The slot is held, which for a single-agent device means a stale
		// lease from a previous run; take it over by refreshing.
		if err := utils.RefreshLease(ctx, l.rdb, l.key, l.ttl); err != nil {
			return fmt.Errorf("presence: adopt lease: %w", err)
		}
	}

	refreshCtx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	go l.refreshLoop(refreshCtx)
	return nil
}

func (l *RedisLease) Release(ctx context.Context) error {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.mu.Unlock()

	if err := utils.ReleaseLease(ctx, l.rdb, l.key); err != nil {
		return fmt.Errorf("presence: release lease: %w", err)
	}
	return nil
}

func (l *RedisLease) refreshLoop(ctx context.Context) {
	t := time.NewTicker(l.ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := utils.RefreshLease(ctx, l.rdb, l.key, l.ttl); err != nil && ctx.Err() == nil {
				l.log.Warn("presence lease refresh failed", "err", err)
			}
		}
	}
}

// RedisNotifier publishes the ongoing-call notification on a redis channel
// the shell subscribes to.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
}

func NewRedisNotifier(rdb *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, channel: channel}
}

type notifyFrame struct {
	Kind string        `json:"kind"`
	Call *Notification `json:"call,omitempty"`
}

func (n *RedisNotifier) Post(ctx context.Context, note Notification) error {
	raw, err := json.Marshal(notifyFrame{Kind: "call_ongoing", Call: &note})
	if err != nil {
		return err
	}
	if err := n.rdb.Publish(ctx, n.channel, raw).Err(); err != nil {
		return fmt.Errorf("presence: publish notification: %w", err)
	}
	return nil
}

func (n *RedisNotifier) Cancel(ctx context.Context) error {
	raw, err := json.Marshal(notifyFrame{Kind: "call_cleared"})
	if err != nil {
		return err
	}
	if err := n.rdb.Publish(ctx, n.channel, raw).Err(); err != nil {
		return fmt.Errorf("presence: publish cancel: %w", err)
	}
	return nil
}
