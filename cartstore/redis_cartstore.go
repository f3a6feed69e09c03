// storefront/cartstore/redis_cartstore.go

package cartstore

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/norun9/microservices-demo-ambient/storefront/cart"
	"github.com/norun9/microservices-demo-ambient/storefront/catalog"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	cartField       = "cart"
	keyPrefix       = "cart:"
	pingAttempts    = 30
	maxPingInterval = 30 * time.Second
)

// RedisCartStore is a cart store backed by Redis. Each session is a hash
// whose "cart" field holds the JSON snapshot.
type RedisCartStore struct {
	client *redis.Client
	ttl    time.Duration
	log    logrus.FieldLogger

	// first wait between Initialize pings; doubled per attempt
	pingInterval time.Duration
}

// NewRedisCartStore accepts a Redis address ("host", "host:port" or a
// redis:// URL) and returns a store instance.
func NewRedisCartStore(redisAddr string, ttl time.Duration, log logrus.FieldLogger) *RedisCartStore {
	opts, err := redis.ParseURL(redisAddr)
	if err != nil {
		if !strings.Contains(redisAddr, ":") {
			redisAddr = redisAddr + ":6379"
		}
		opts = &redis.Options{
			Addr:         redisAddr,
			MinIdleConns: 1,
			MaxRetries:   3,
			DialTimeout:  30 * time.Second,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			PoolSize:     10,
			PoolTimeout:  4 * time.Second,
			IdleTimeout:  180 * time.Second,
		}
	}

	client := redis.NewClient(opts)
	client.AddHook(redisotel.NewTracingHook())

	return &RedisCartStore{
		client:       client,
		ttl:          ttl,
		log:          log,
		pingInterval: time.Second,
	}
}

// Initialize waits for Redis to answer a ping, backing off between attempts.
func (r *RedisCartStore) Initialize(ctx context.Context) error {
	r.log.Info("RedisCartStore: initializing connection...")

	for i := 0; i < pingAttempts; i++ {
		if r.Ping(ctx) {
			r.log.WithField("attempt", i+1).Info("RedisCartStore initialized successfully")
			return nil
		}

		backoff := r.pingInterval * time.Duration(1<<uint(i))
		if backoff > maxPingInterval || backoff <= 0 {
			backoff = maxPingInterval
		}
		r.log.WithField("attempt", i+1).Warnf("RedisCartStore: ping failed, waiting %v", backoff)

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "redis initialization cancelled")
		case <-time.After(backoff):
		}
	}

	return errors.Errorf("failed to connect to Redis after %d attempts", pingAttempts)
}

// Load reads the cart of a session; a missing key is an empty cart.
func (r *RedisCartStore) Load(ctx context.Context, sessionID string) (cart.State, error) {
	val, err := r.client.HGet(ctx, keyPrefix+sessionID, cartField).Bytes()
	if err == redis.Nil {
		return cart.State{Items: []catalog.Product{}}, nil
	}
	if err != nil {
		return cart.State{}, errors.Wrap(err, "redis HGet error")
	}

	var state cart.State
	if err := json.Unmarshal(val, &state); err != nil {
		return cart.State{}, errors.Wrap(err, "failed to parse cart data")
	}
	if state.Items == nil {
		state.Items = []catalog.Product{}
	}
	return state, nil
}

// Save writes the cart of a session and refreshes its expiry.
func (r *RedisCartStore) Save(ctx context.Context, sessionID string, state cart.State) error {
	bin, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "failed to encode cart data")
	}

	key := keyPrefix + sessionID
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, cartField, bin)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "redis HSet error")
	}
	return nil
}

// Delete removes the cart of a session.
func (r *RedisCartStore) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, keyPrefix+sessionID).Err(); err != nil {
		return errors.Wrap(err, "redis Del error")
	}
	return nil
}

// Ping checks that Redis is alive.
func (r *RedisCartStore) Ping(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.client.Ping(pingCtx).Err(); err != nil {
		r.log.WithError(err).Debug("RedisCartStore: ping failed")
		return false
	}
	return true
}

// Close releases the client's connections.
func (r *RedisCartStore) Close() error {
	return r.client.Close()
}
