// Package cache stores leaderboards, recent results and fan-out channels
// either in process or in Redis.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/cache/local"
	cacheredis "github.com/ClementNoelRenard/Running-Map-Run-For-Life/cache/redis"
)

// Member is a sorted-set member with its score.
type Member struct {
	Member string
	Score  float64
}

// Cache defines the KV / ZSet / List operations.
type Cache interface {
	// KV
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error

	// ZSet
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRange(ctx context.Context, key string, start, stop int64) ([]Member, error)
	ZScore(ctx context.Context, key, member string) (float64, error)
	ZCard(ctx context.Context, key string) (int64, error)

	// List
	LPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int64) error

	Close() error
}

// Message is a received pub/sub message.
type Message struct {
	Channel string
	Payload string
}

// PubSub defines channel publish/subscribe operations.
type PubSub interface {
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error)
}

// Config holds configuration for both Redis and the local cache.
type Config struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

// IsNotFound reports whether err means the key is missing in either backend.
func IsNotFound(err error) bool {
	return errors.Is(err, local.ErrNotFound) || errors.Is(err, cacheredis.ErrNotFound)
}

// NewCache returns a Cache backed by Redis if RedisAddr is set,
// otherwise an in-process one.
func NewCache(cfg Config) (Cache, error) {
	if cfg.RedisAddr != "" {
		rc, err := cacheredis.NewCache(redisConfig(cfg))
		if err != nil {
			return nil, err
		}
		return redisCacheAdapter{rc}, nil
	}
	lc, err := local.NewCache(local.Config{GCInterval: cfg.LocalGCInterval})
	if err != nil {
		return nil, err
	}
	return localCacheAdapter{lc}, nil
}

// NewPubSub returns a PubSub backed by Redis if RedisAddr is set,
// otherwise an in-process one.
func NewPubSub(cfg Config) (PubSub, error) {
	bufSize := cfg.LocalPubSubBuf
	if bufSize <= 0 {
		bufSize = 256
	}
	if cfg.RedisAddr != "" {
		rps, err := cacheredis.NewPubSub(redisConfig(cfg))
		if err != nil {
			return nil, err
		}
		return &redisPubSubAdapter{ps: rps, buf: bufSize}, nil
	}
	return &localPubSubAdapter{ps: local.NewPubSub(bufSize), buf: bufSize}, nil
}

func redisConfig(cfg Config) cacheredis.Config {
	return cacheredis.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

// ---- adapters bridging sub-package types to this package ----

type localCacheAdapter struct{ *local.LocalCache }

func (a localCacheAdapter) ZRange(ctx context.Context, key string, start, stop int64) ([]Member, error) {
	return fromLocal(a.LocalCache.ZRange(ctx, key, start, stop))
}

func (a localCacheAdapter) Close() error {
	a.LocalCache.Close()
	return nil
}

func fromLocal(in []local.Member, err error) ([]Member, error) {
	if err != nil {
		return nil, err
	}
	out := make([]Member, len(in))
	for i, m := range in {
		out[i] = Member{Member: m.Member, Score: m.Score}
	}
	return out, nil
}

type redisCacheAdapter struct{ *cacheredis.RedisCache }

func (a redisCacheAdapter) ZRange(ctx context.Context, key string, start, stop int64) ([]Member, error) {
	return fromRedis(a.RedisCache.ZRange(ctx, key, start, stop))
}

func fromRedis(in []cacheredis.Member, err error) ([]Member, error) {
	if err != nil {
		return nil, err
	}
	out := make([]Member, len(in))
	for i, m := range in {
		out[i] = Member{Member: m.Member, Score: m.Score}
	}
	return out, nil
}

type localPubSubAdapter struct {
	ps  *local.LocalPubSub
	buf int
}

func (a *localPubSubAdapter) Publish(ctx context.Context, channel, message string) error {
	return a.ps.Publish(ctx, channel, message)
}

func (a *localPubSubAdapter) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	localCh, cancel, err := a.ps.Subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan *Message, a.buf)
	go func() {
		defer close(out)
		for msg := range localCh {
			out <- &Message{Channel: msg.Channel, Payload: msg.Payload}
		}
	}()
	return out, cancel, nil
}

type redisPubSubAdapter struct {
	ps  *cacheredis.RedisPubSub
	buf int
}

func (a *redisPubSubAdapter) Publish(ctx context.Context, channel, message string) error {
	return a.ps.Publish(ctx, channel, message)
}

func (a *redisPubSubAdapter) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	redisCh, cancel, err := a.ps.Subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan *Message, a.buf)
	go func() {
		defer close(out)
		for msg := range redisCh {
			out <- &Message{Channel: msg.Channel, Payload: msg.Payload}
		}
	}()
	return out, cancel, nil
}
