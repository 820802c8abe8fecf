package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/atmx/trading-game/internal/metrics"
	"github.com/atmx/trading-game/internal/model"
)

// Consumer reads JSON-encoded quotes from a Kafka topic into a Book.
type Consumer struct {
	reader *kafka.Reader
	book   Book
	log    *zap.Logger
}

// NewConsumer creates a consumer in group groupID reading topic.
func NewConsumer(brokers []string, topic, groupID string, book Book, log *zap.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 1e6,
			MaxWait:  250 * time.Millisecond,
		}),
		book: book,
		log:  log.Named("quotes"),
	}
}

// Run consumes until ctx is cancelled. Undecodable messages are skipped.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		c.handle(ctx, m.Value)
	}
}

func (c *Consumer) handle(ctx context.Context, payload []byte) {
	var q model.PriceQuote
	if err := json.Unmarshal(payload, &q); err != nil {
		c.log.Warn("bad quote message", zap.Error(err))
		return
	}
	if err := c.book.Put(ctx, q); err != nil {
		c.log.Error("put quote", zap.String("key", q.Key()), zap.Error(err))
		return
	}
	metrics.QuotesIngested.WithLabelValues("kafka").Inc()
	c.log.Debug("quote ingested",
		zap.String("key", q.Key()),
		zap.Int64("price", q.Price),
		zap.Int32("expo", q.Expo))
}
