package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Producer is a thin wrapper over a kafka-go writer. Topic routing happens
// per message so one producer serves every group-order event stream.
type Producer struct {
	Writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{Writer: writer}
}

// Publish writes one message to the given topic.
func (p *Producer) Publish(topic string, key, value []byte) error {
	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   key,
			Value: value,
		},
	)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
