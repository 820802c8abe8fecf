package quotes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/atmx/trading-game/internal/metrics"
	"github.com/atmx/trading-game/internal/model"
)

// putIfNewer writes the quote JSON and its publish time (unix micros) only
// when no newer publish time is held for the field.
var putIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[2], ARGV[1])
if cur and tonumber(cur) > tonumber(ARGV[2]) then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
return 1
`)

// RedisBook keeps quotes in a Redis hash so several server instances share
// one quote book.
type RedisBook struct {
	rdb    *redis.Client
	prefix string
	log    *zap.Logger
}

// NewRedisBook creates a book stored under keys beginning with prefix.
func NewRedisBook(rdb *redis.Client, prefix string, log *zap.Logger) *RedisBook {
	if prefix == "" {
		prefix = "quotes"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBook{rdb: rdb, prefix: prefix, log: log.Named("quotes")}
}

func (b *RedisBook) Put(ctx context.Context, q model.PriceQuote) error {
	key := q.Key()
	if key == "" {
		return ErrInvalidQuote
	}
	data, err := json.Marshal(q)
	if err != nil {
		return err
	}
	keys := []string{b.dataKey(), b.timeKey()}
	if err := putIfNewer.Run(ctx, b.rdb, keys, key, q.PublishTime.UnixMicro(), data).Err(); err != nil {
		return fmt.Errorf("put quote %s: %w", key, err)
	}
	return nil
}

func (b *RedisBook) Candidates(ctx context.Context) ([]model.PriceQuote, error) {
	vals, err := b.rdb.HGetAll(ctx, b.dataKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	return decodeQuotes(vals, b.log), nil
}

// decodeQuotes parses the hash values of the data key. Entries that fail
// to decode are skipped, logged and counted.
func decodeQuotes(vals map[string]string, log *zap.Logger) []model.PriceQuote {
	out := make([]model.PriceQuote, 0, len(vals))
	for field, v := range vals {
		var q model.PriceQuote
		if err := json.Unmarshal([]byte(v), &q); err != nil {
			metrics.QuotesCorrupt.Inc()
			log.Warn("corrupt quote entry", zap.String("key", field), zap.Error(err))
			continue
		}
		out = append(out, q)
	}
	sortByKey(out)
	return out
}

func (b *RedisBook) dataKey() string { return b.prefix + ":data" }
func (b *RedisBook) timeKey() string { return b.prefix + ":ts" }
