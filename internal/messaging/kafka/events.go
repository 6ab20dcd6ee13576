package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "fulfillment.order.events"
	TopicDeadLetterQueue = "fulfillment.dlq"
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderEventType     = "x-event-type"
)

// Envelope — формат сообщения, в котором outbox публикует события.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope упаковывает outbox-сообщение. Невалидный JSON payload кладётся строкой.
func NewEnvelope(msg domain.OutboxMessage, at time.Time) Envelope {
	payload := json.RawMessage(msg.Payload)
	if len(msg.Payload) == 0 {
		payload = json.RawMessage("null")
	} else if !json.Valid(msg.Payload) {
		quoted, _ := json.Marshal(string(msg.Payload))
		payload = quoted
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   at,
	}
}

// ConsumerDeadLetter — сообщение, которое consumer не смог обработать.
type ConsumerDeadLetter struct {
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition int32     `json:"original_partition"`
	OriginalOffset    int64     `json:"original_offset"`
	OriginalKey       string    `json:"original_key"`
	OriginalValue     string    `json:"original_value"`
	ErrorMessage      string    `json:"error_message"`
	FailedAt          time.Time `json:"failed_at"`
	RetryCount        int       `json:"retry_count"`
}

// ParseEnvelope разбирает outbox-конверт из сообщения.
func ParseEnvelope(message *sarama.ConsumerMessage) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return envelope, nil
}

// ParseOrderEvent разбирает событие заказа из outbox-конверта.
func ParseOrderEvent(message *sarama.ConsumerMessage) (domain.OrderEvent, error) {
	envelope, err := ParseEnvelope(message)
	if err != nil {
		return domain.OrderEvent{}, err
	}
	if envelope.AggregateType != domain.AggregateOrder {
		return domain.OrderEvent{}, fmt.Errorf("unexpected aggregate type %q", envelope.AggregateType)
	}

	var event domain.OrderEvent
	if err := json.Unmarshal(envelope.Payload, &event); err != nil {
		return domain.OrderEvent{}, fmt.Errorf("failed to unmarshal order event: %w", err)
	}
	if event.EventType == "" {
		event.EventType = envelope.EventType
	}
	return event, nil
}
