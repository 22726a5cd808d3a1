package redis

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"github.com/zlnvch/pixelverse/cache"
)

const maxUpdateRetries = 10

type RedisCanvasCache struct {
	client redis.UniversalClient
}

func NewRedisCanvasCache(ctx context.Context, devMode bool, redisEndpoint string) (*RedisCanvasCache, error) {
	var client redis.UniversalClient
	if devMode {
		client = redis.NewClient(&redis.Options{
			Addr: redisEndpoint,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr: redisEndpoint,
			// AWS elasticache endpoints require TLS
			TLSConfig: &tls.Config{},
		})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, eris.Wrap(err, "redis ping failed")
	}

	return &RedisCanvasCache{client: client}, nil
}

func NewFromClient(client redis.UniversalClient) *RedisCanvasCache {
	return &RedisCanvasCache{client: client}
}

func (redisCache *RedisCanvasCache) Publish(ctx context.Context, channel string, message []byte) error {
	if err := redisCache.client.Publish(ctx, channel, message).Err(); err != nil {
		return eris.Wrapf(err, "publish to %s failed", channel)
	}
	return nil
}

func (redisCache *RedisCanvasCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	pubsub := redisCache.client.Subscribe(ctx, channel)
	// Ensure subscription is established
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		log.Error().Str("channel", channel).Msg("Pubsub channel closed")
		return eris.Wrapf(err, "subscribe to %s failed", channel)
	}

	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	return nil
}

// Keys use hash tags so a wallet's keys land in one cluster slot
func buildQuotaKey(key string) string {
	return "quota:{" + key + "}"
}

func buildBalanceKey(wallet string) string {
	return "balance:{" + wallet + "}"
}

func (redisCache *RedisCanvasCache) GetQuotaState(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := redisCache.client.Get(ctx, buildQuotaKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, eris.Wrap(err, "GET quota failed")
	}
	return b, true, nil
}

// UpdateQuotaState is an optimistic WATCH/MULTI transaction, retried when
// another writer touched the key in between.
func (redisCache *RedisCanvasCache) UpdateQuotaState(ctx context.Context, key string, ttl time.Duration, update cache.UpdateFunc) error {
	redisKey := buildQuotaKey(key)

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, redisKey).Bytes()
		found := true
		if err == redis.Nil {
			found = false
		} else if err != nil {
			return err
		}

		next, err := update(current, found)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, next, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := redisCache.client.Watch(ctx, txf, redisKey)
		if err == nil {
			return nil
		}
		if err == redis.TxFailedErr {
			continue
		}
		return eris.Wrap(err, "quota update failed")
	}
	return cache.ErrUpdateConflict
}

func (redisCache *RedisCanvasCache) GetCachedBalance(ctx context.Context, wallet string) (float64, bool, error) {
	val, err := redisCache.client.Get(ctx, buildBalanceKey(wallet)).Float64()
	if err != nil {
		if err == redis.Nil {
			return 0, false, nil
		}
		return 0, false, eris.Wrap(err, "GET balance failed")
	}
	return val, true, nil
}

func (redisCache *RedisCanvasCache) SetCachedBalance(ctx context.Context, wallet string, balance float64, ttl time.Duration) error {
	if err := redisCache.client.Set(ctx, buildBalanceKey(wallet), balance, ttl).Err(); err != nil {
		return eris.Wrap(err, "SET balance failed")
	}
	return nil
}
