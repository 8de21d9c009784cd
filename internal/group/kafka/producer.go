package kafka

import (
	"encoding/json"

	"ms-grouporder/internal/kafka"
	"ms-grouporder/internal/models"
)

// Producer streams group lifecycle events, keyed by group id.
type Producer struct {
	Base *kafka.Producer
}

func NewProducer(base *kafka.Producer) *Producer {
	return &Producer{Base: base}
}

// PublishGroupClosed streams the group close event to Kafka
func (p *Producer) PublishGroupClosed(group models.Group) error {
	msgBytes, err := json.Marshal(group)
	if err != nil {
		return err
	}
	return p.Base.Publish(kafka.TopicGroupClosed, []byte(group.GroupID), msgBytes)
}

// PublishLuckyDraw streams the resolved lucky draw winners to Kafka
func (p *Producer) PublishLuckyDraw(groupID string, winners []string) error {
	payload := struct {
		GroupID string   `json:"group_id"`
		Winners []string `json:"winners"`
	}{GroupID: groupID, Winners: winners}
	msgBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.Base.Publish(kafka.TopicGroupLuckyDraw, []byte(groupID), msgBytes)
}
