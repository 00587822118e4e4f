// Package redisbus relays docsync bus changes between processes over Redis
// pub/sub.
//
// Every process publishes the changes that originated on its own bus and
// delivers the changes of other processes to local subscribers. The origin
// id carried by each change keeps a process from hearing itself.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/brunoga/docsync"
	"github.com/brunoga/docsync/config"
	"github.com/brunoga/docsync/internal/logger"
)

const publishTimeout = 5 * time.Second

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the relay logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Relay) { r.log = logger.FromZap(l) }
}

// Relay implements docsync.Relay on a Redis channel.
type Relay struct {
	log     *logger.Logger
	rdb     goredis.UniversalClient
	channel string
}

var _ docsync.Relay = (*Relay)(nil)

// New wraps an existing client.
func New(rdb goredis.UniversalClient, channel string, opts ...Option) *Relay {
	r := &Relay{rdb: rdb, channel: channel, log: logger.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("service", "RedisRelay", "channel", channel)
	return r
}

// Dial connects to the Redis server described by cfg and checks it answers.
func Dial(ctx context.Context, cfg config.RedisConfig, opts ...Option) (*Relay, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	channel := cfg.Channel
	if channel == "" {
		channel = "docsync:changes"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, channel, opts...), nil
}

// Encode serializes a change for the wire.
func Encode(c docsync.Change) ([]byte, error) {
	return json.Marshal(c)
}

// Decode parses a change produced by Encode. Integral path elements come
// back as ints.
func Decode(raw []byte) (docsync.Change, error) {
	var c docsync.Change
	if err := json.Unmarshal(raw, &c); err != nil {
		return docsync.Change{}, err
	}
	if c.Origin == "" {
		return docsync.Change{}, fmt.Errorf("change without origin")
	}
	return c, nil
}

// Relay publishes c on the channel.
func (r *Relay) Relay(c docsync.Change) error {
	if r == nil || r.rdb == nil {
		return fmt.Errorf("redis relay not initialized")
	}
	raw, err := Encode(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return r.rdb.Publish(ctx, r.channel, raw).Err()
}

// Attach installs r as bus's relay and forwards remote changes into bus
// until ctx is done.
func (r *Relay) Attach(ctx context.Context, bus *docsync.Bus) error {
	if err := r.Forward(ctx, bus); err != nil {
		return err
	}
	bus.SetRelay(r)
	return nil
}

// Forward subscribes to the channel and delivers every change from another
// origin to bus. Delivery happens on a background goroutine, which exits
// when ctx is done or the subscription closes.
func (r *Relay) Forward(ctx context.Context, bus *docsync.Bus) error {
	if r == nil || r.rdb == nil {
		return fmt.Errorf("redis relay not initialized")
	}
	if bus == nil {
		return fmt.Errorf("bus required")
	}

	sub := r.rdb.Subscribe(ctx, r.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				r.handle(bus, m.Payload)
			}
		}
	}()
	return nil
}

func (r *Relay) handle(bus *docsync.Bus, payload string) {
	c, err := Decode([]byte(payload))
	if err != nil {
		r.log.Warn("bad redis change payload", "error", err)
		return
	}
	bus.Deliver(c)
}

// Close closes the underlying client.
func (r *Relay) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}
