// Package kafka publishes confirmed trades to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"solana-launch-sniper/internal/domain"
	"solana-launch-sniper/internal/storage"
)

// Config holds Kafka connection configuration.
type Config struct {
	Brokers []string
	Topic   string
}

// messageWriter is the subset of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TradeSink implements storage.TradeSink as a Kafka producer.
// Trades are keyed by mint so events for one token stay on one partition.
type TradeSink struct {
	writer messageWriter
}

var _ storage.TradeSink = (*TradeSink)(nil)

// NewTradeSink creates a producer for cfg.Topic.
func NewTradeSink(cfg Config) (*TradeSink, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka sink needs brokers and a topic")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &TradeSink{writer: writer}, nil
}

// AppendTrade publishes rec as JSON.
func (s *TradeSink) AppendTrade(ctx context.Context, rec domain.TradeRecord) error {
	msg, err := tradeMessage(rec)
	if err != nil {
		return err
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish trade %s: %w", rec.TradeID, err)
	}
	return nil
}

func tradeMessage(rec domain.TradeRecord) (kafka.Message, error) {
	if rec.TradeID == "" {
		return kafka.Message{}, storage.ErrInvalidInput
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode trade: %w", err)
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return kafka.Message{
		Key:   []byte(rec.Mint),
		Value: data,
		Time:  ts,
		Headers: []kafka.Header{
			{Key: "trade_id", Value: []byte(rec.TradeID)},
			{Key: "side", Value: []byte(rec.Side)},
		},
	}, nil
}

// Close flushes pending writes and closes the producer.
func (s *TradeSink) Close() error {
	return s.writer.Close()
}
