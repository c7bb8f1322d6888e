package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"mercator-hq/custodian/pkg/config"
)

// Invalidator carries "policies changed" signals between the processes that
// share one store. Subscribers drop their cached snapshot on every signal.
type Invalidator interface {
	// Publish announces a policy change.
	Publish(ctx context.Context) error

	// Subscribe calls fn for every announced change until ctx is done.
	Subscribe(ctx context.Context, fn func()) error

	// Close releases the underlying connection.
	Close() error
}

// NewInvalidator returns the invalidator selected by cfg.Backend.
func NewInvalidator(ctx context.Context, cfg config.InvalidationConfig) (Invalidator, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalInvalidator(), nil
	case "redis":
		inv, err := NewRedisInvalidator(ctx, cfg.RedisURL, cfg.Channel)
		if err != nil {
			return nil, err
		}
		return inv, nil
	default:
		return nil, fmt.Errorf("unsupported invalidation backend %q", cfg.Backend)
	}
}

// LocalInvalidator delivers signals to subscribers of the same process.
type LocalInvalidator struct {
	mu   sync.RWMutex
	subs map[int]func()
	next int
}

// NewLocalInvalidator creates an in-process invalidator.
func NewLocalInvalidator() *LocalInvalidator {
	return &LocalInvalidator{subs: make(map[int]func())}
}

// Publish calls every live subscriber synchronously.
func (l *LocalInvalidator) Publish(ctx context.Context) error {
	l.mu.RLock()
	fns := make([]func(), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
	return nil
}

// Subscribe registers fn until ctx is done.
func (l *LocalInvalidator) Subscribe(ctx context.Context, fn func()) error {
	l.mu.Lock()
	id := l.next
	l.next++
	l.subs[id] = fn
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}()
	return nil
}

// Close implements Invalidator.
func (l *LocalInvalidator) Close() error {
	return nil
}

// RedisInvalidator publishes signals on a Redis pub/sub channel.
type RedisInvalidator struct {
	client   *redis.Client
	channel  string
	instance string
	logger   *slog.Logger
}

// NewRedisInvalidator connects to redisURL and verifies the connection.
func NewRedisInvalidator(ctx context.Context, redisURL, channel string) (*RedisInvalidator, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if channel == "" {
		channel = config.DefaultInvalidationChannel
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	inv := &RedisInvalidator{
		client:   client,
		channel:  channel,
		instance: uuid.New().String(),
		logger:   slog.Default().With("component", "compliance.policy_invalidation"),
	}
	inv.logger.Info("policy invalidation connected",
		"redis_addr", opts.Addr,
		"channel", channel,
	)
	return inv, nil
}

// Publish sends this process's instance id on the channel.
func (r *RedisInvalidator) Publish(ctx context.Context) error {
	if err := r.client.Publish(ctx, r.channel, r.instance).Err(); err != nil {
		return fmt.Errorf("failed to publish policy invalidation: %w", err)
	}
	return nil
}

// Subscribe waits for the subscription to be confirmed, then calls fn from a
// background goroutine for every message until ctx is done. Messages sent by
// this process are delivered too; callers invalidate locally anyway, so the
// second call is a no-op.
func (r *RedisInvalidator) Subscribe(ctx context.Context, fn func()) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.logger.Debug("policy invalidation received", "origin", msg.Payload)
				fn()
			}
		}
	}()
	return nil
}

// Close closes the Redis client.
func (r *RedisInvalidator) Close() error {
	return r.client.Close()
}
