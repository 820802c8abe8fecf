package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaSink publishes events as JSON to a Kafka topic, keyed by session so
// one session's events stay ordered within a partition.
type KafkaSink struct {
	w       *kafka.Writer
	timeout time.Duration
}

// NewKafkaSink creates a sink writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		timeout: 5 * time.Second,
	}
}

func (s *KafkaSink) Emit(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(ev.SessionID, 10)),
		Value: data,
		Time:  ev.Timestamp,
	})
}

// Close flushes pending writes.
func (s *KafkaSink) Close() error {
	return s.w.Close()
}
