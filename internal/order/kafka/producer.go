package kafka

import (
	"encoding/json"

	"ms-grouporder/internal/kafka"
	"ms-grouporder/internal/models"
)

// Producer streams order lifecycle events over the shared Kafka producer,
// keyed by order id so events for one order stay in partition order.
type Producer struct {
	Base *kafka.Producer
}

func NewProducer(base *kafka.Producer) *Producer {
	return &Producer{Base: base}
}

// PublishOrderSubmitted streams the order submission event to Kafka
func (p *Producer) PublishOrderSubmitted(order models.Order) error {
	msgBytes, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return p.Base.Publish(kafka.TopicOrderSubmitted, []byte(order.OrderID), msgBytes)
}

// PublishOrderReopened streams the submit→editing event to Kafka
func (p *Producer) PublishOrderReopened(order models.Order) error {
	msgBytes, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return p.Base.Publish(kafka.TopicOrderReopened, []byte(order.OrderID), msgBytes)
}
