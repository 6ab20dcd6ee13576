package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
)

// runEvents печатает события заказов из Kafka. С -topic fulfillment.dlq
// показывает сообщения, ушедшие в DLQ.
func runEvents(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet("events")
	brokers := fs.String("brokers", strings.Join(env.cfg.Kafka.Brokers, ","), "kafka brokers, comma separated")
	topic := fs.String("topic", env.cfg.Kafka.Topic, "topic to read")
	group := fs.String("group", env.cfg.Kafka.GroupID, "consumer group id")
	oldest := fs.Bool("oldest", false, "read a new group from the oldest offset")
	if err := fs.Parse(args); err != nil {
		return err
	}

	list := splitBrokers(*brokers)
	if len(list) == 0 {
		return fmt.Errorf("%w: events needs -brokers or kafka.brokers", errUsage)
	}

	var mu sync.Mutex
	handler := func(_ context.Context, message *sarama.ConsumerMessage) error {
		mu.Lock()
		defer mu.Unlock()
		_, _ = fmt.Fprintln(env.out, formatMessage(message))
		return nil
	}

	opts := []kafka.ConsumerOption{kafka.WithConsumerLogger(env.logger.WithField("component", "kafka-consumer"))}
	if *oldest {
		opts = append(opts, kafka.WithOldestOffset())
	}
	consumer, err := kafka.NewConsumer(list, *group, []string{*topic}, handler, opts...)
	if err != nil {
		return err
	}
	if err := consumer.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return consumer.Stop()
}

// formatMessage показывает событие заказа, запись DLQ consumer'а или сырое значение.
func formatMessage(message *sarama.ConsumerMessage) string {
	prefix := fmt.Sprintf("%s/%d@%d", message.Topic, message.Partition, message.Offset)

	if event, err := kafka.ParseOrderEvent(message); err == nil {
		return prefix + " " + formatOrderEvent(event)
	}

	var dead kafka.ConsumerDeadLetter
	if err := json.Unmarshal(message.Value, &dead); err == nil && dead.OriginalTopic != "" {
		return fmt.Sprintf("%s dead-letter from %s/%d@%d after %d retries: %s",
			prefix, dead.OriginalTopic, dead.OriginalPartition, dead.OriginalOffset, dead.RetryCount, dead.ErrorMessage)
	}

	return fmt.Sprintf("%s raw key=%s value=%s", prefix, string(message.Key), string(message.Value))
}

func formatOrderEvent(event domain.OrderEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s order=%s", event.EventType, event.OrderID)
	if event.OrderNumber != "" {
		fmt.Fprintf(&b, " number=%s", event.OrderNumber)
	}
	if event.From != "" {
		fmt.Fprintf(&b, " %s->%s", event.From, event.To)
	} else {
		fmt.Fprintf(&b, " ->%s", event.To)
	}
	if event.TrackingNumber != "" {
		fmt.Fprintf(&b, " tracking=%s/%s", event.Carrier, event.TrackingNumber)
	}
	if event.Note != "" {
		fmt.Fprintf(&b, " note=%q", event.Note)
	}
	fmt.Fprintf(&b, " v%d", event.Version)
	if !event.Occurred.IsZero() {
		fmt.Fprintf(&b, " at=%s", event.Occurred.UTC().Format(time.RFC3339))
	}
	return b.String()
}

func splitBrokers(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

