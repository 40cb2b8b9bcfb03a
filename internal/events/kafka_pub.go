package events

import (
	"context"
	"strconv"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

type kafkaPublisher struct{ w *kafka.Writer }

// NewKafka writes events to topic keyed by message id, so one message's
// events stay ordered within a partition.
func NewKafka(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		return NewNoop()
	}
	if topic == "" {
		topic = "govmsg.events"
	}
	// Writers are safe for concurrent use
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireOne,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &kafkaPublisher{w: w}
}

func (p *kafkaPublisher) Close() error { return p.w.Close() }

func (p *kafkaPublisher) Publish(ctx context.Context, evt Event) error {
	b, err := encode(evt)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(evt.MessageID), 10)),
		Value: b,
	})
}
