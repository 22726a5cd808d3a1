package redisstore

import (
	"context"
	"crypto/tls"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"github.com/zlnvch/pixelverse/models"
	"github.com/zlnvch/pixelverse/store"
)

const (
	pixelsKey      = "canvas:pixels"
	scanBatchSize  = 1000
	maxHistoryLen  = 100
	historyKeyBase = "history:"
)

// RedisCanvasStore keeps every pixel as a field of one hash, keyed "x,y".
// HSET gives last-writer-wins upserts and HSCAN the full scan.
type RedisCanvasStore struct {
	client redis.UniversalClient
}

func NewRedisCanvasStore(devMode bool, redisEndpoint string) *RedisCanvasStore {
	opts := &redis.Options{Addr: redisEndpoint}
	if !devMode {
		// AWS elasticache endpoints require TLS
		opts.TLSConfig = &tls.Config{}
	}
	return &RedisCanvasStore{client: redis.NewClient(opts)}
}

func NewFromClient(client redis.UniversalClient) *RedisCanvasStore {
	return &RedisCanvasStore{client: client}
}

func buildHistoryKey(x int, y int) string {
	return historyKeyBase + "{" + store.CoordKey(x, y) + "}"
}

func (redisStore *RedisCanvasStore) Ping(ctx context.Context) error {
	return redisStore.client.Ping(ctx).Err()
}

func (redisStore *RedisCanvasStore) Get(ctx context.Context, x int, y int) (models.PixelRecord, error) {
	key := store.CoordKey(x, y)
	raw, err := redisStore.client.HGet(ctx, pixelsKey, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return models.PixelRecord{}, store.ErrPixelNotFound
		}
		return models.PixelRecord{}, eris.Wrap(err, "HGET failed")
	}
	return store.DecodeRecord(key, raw)
}

func (redisStore *RedisCanvasStore) Set(ctx context.Context, record models.PixelRecord) error {
	value, err := store.EncodeRecord(record)
	if err != nil {
		return err
	}
	if err := redisStore.client.HSet(ctx, pixelsKey, store.CoordKey(record.X, record.Y), value).Err(); err != nil {
		return eris.Wrap(err, "HSET failed")
	}
	return nil
}

func (redisStore *RedisCanvasStore) EnumerateAll(ctx context.Context) ([]models.PixelRecord, error) {
	// HSCAN may return a field more than once
	seen := make(map[string]struct{})
	records := []models.PixelRecord{}

	var cursor uint64
	for {
		fields, next, err := redisStore.client.HScan(ctx, pixelsKey, cursor, "", scanBatchSize).Result()
		if err != nil {
			return nil, eris.Wrap(err, "HSCAN failed")
		}

		for i := 0; i+1 < len(fields); i += 2 {
			key := fields[i]
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			record, err := store.DecodeRecord(key, []byte(fields[i+1]))
			if err != nil {
				log.Warn().Err(err).Str("key", key).Msg("Skipping undecodable pixel")
				continue
			}
			records = append(records, record)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return records, nil
}

func (redisStore *RedisCanvasStore) Delete(ctx context.Context, x int, y int) error {
	if err := redisStore.client.HDel(ctx, pixelsKey, store.CoordKey(x, y)).Err(); err != nil {
		return eris.Wrap(err, "HDEL failed")
	}
	return nil
}

func (redisStore *RedisCanvasStore) AppendHistory(ctx context.Context, entries []models.HistoryEntry) ([]models.HistoryEntry, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	pipe := redisStore.client.Pipeline()
	for _, entry := range entries {
		b, err := json.Marshal(entry)
		if err != nil {
			return entries, eris.Wrap(err, "failed to encode history entry")
		}
		key := buildHistoryKey(entry.Pixel.X, entry.Pixel.Y)
		pipe.LPush(ctx, key, b)
		pipe.LTrim(ctx, key, 0, maxHistoryLen-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return entries, eris.Wrap(err, "history pipeline failed")
	}
	return nil, nil
}

func (redisStore *RedisCanvasStore) GetHistory(ctx context.Context, x int, y int, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 || limit > maxHistoryLen {
		limit = maxHistoryLen
	}

	items, err := redisStore.client.LRange(ctx, buildHistoryKey(x, y), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, eris.Wrap(err, "LRANGE failed")
	}

	entries := make([]models.HistoryEntry, 0, len(items))
	for _, item := range items {
		var entry models.HistoryEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			log.Warn().Err(err).Msg("Skipping undecodable history entry")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
