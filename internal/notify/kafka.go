package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events to a topic keyed by user id, so one user's
// events stay ordered within a partition. Failures are logged and dropped.
type KafkaSink struct {
	w       messageWriter
	log     *zap.Logger
	timeout time.Duration
}

func NewKafkaSink(brokers []string, topic string, log *zap.Logger) *KafkaSink {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
	}
	return newKafkaSink(w, log)
}

func newKafkaSink(w messageWriter, log *zap.Logger) *KafkaSink {
	return &KafkaSink{w: w, log: log.Named("kafka"), timeout: 2 * time.Second}
}

type kafkaEnvelope struct {
	Type   string    `json:"type"`
	UserID string    `json:"user_id,omitempty"`
	Data   any       `json:"data"`
	At     time.Time `json:"at"`
}

func (k *KafkaSink) Notify(ctx context.Context, evt Event) {
	if evt.Type == EventPrices {
		return
	}
	payload, err := json.Marshal(kafkaEnvelope{Type: evt.Type, UserID: evt.UserID, Data: evt.Data, At: evt.At})
	if err != nil {
		k.log.Error("marshal event", zap.String("type", evt.Type), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.timeout)
	defer cancel()
	msg := kafka.Message{Key: []byte(evt.UserID), Value: payload, Time: evt.At}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		k.log.Warn("publish event", zap.String("type", evt.Type), zap.String("user_id", evt.UserID), zap.Error(err))
	}
}

func (k *KafkaSink) Close() error {
	return k.w.Close()
}
