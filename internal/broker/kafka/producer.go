package kafka

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

const (
	HeaderContentType = "content-type"
	HeaderSchema      = "schema"

	contentTypeJSON = "application/json"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Producer publishes JSON payloads. The topic name doubles as the schema
// header so consumers can reject payloads meant for another topic.
type Producer struct {
	w   messageWriter
	now func() time.Time
}

func NewProducer(brokers []string) *Producer {
	return newProducerWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	})
}

func newProducerWithWriter(w messageWriter) *Producer {
	return &Producer{w: w, now: time.Now}
}

// Publish writes one message keyed by key. Messages with the same key land on
// the same partition, so updates for one tracking number stay ordered.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	if len(key) == 0 {
		return errors.New("kafka publish: empty key")
	}
	err := p.w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
		Time:  p.now().UTC(),
		Headers: []kafka.Header{
			{Key: HeaderContentType, Value: []byte(contentTypeJSON)},
			{Key: HeaderSchema, Value: []byte(topic)},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "kafka publish to %s", topic)
	}
	return nil
}

func (p *Producer) Close() error {
	if c, ok := p.w.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
