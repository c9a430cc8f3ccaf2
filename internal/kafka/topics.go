package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

const topicWaitTimeout = 10 * time.Second

// EnsureTopicsExist creates any missing topics before the first publish.
// Booking traffic is low-volume, so every topic gets a single partition and
// per-topic ordering is global.
func EnsureTopicsExist(ctx context.Context, brokers []string, topics []string) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial broker %s: %w", brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to resolve controller: %w", err)
	}
	controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := kafka.DialContext(ctx, "tcp", controllerAddr)
	if err != nil {
		return fmt.Errorf("failed to dial controller %s: %w", controllerAddr, err)
	}
	defer controllerConn.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
	}
	if err := controllerConn.CreateTopics(configs...); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("failed to create topics: %w", err)
	}

	return waitForTopics(ctx, conn, topics)
}

// waitForTopics polls broker metadata until every topic is visible. Creation
// is asynchronous; publishing before propagation fails with unknown-topic
// errors.
func waitForTopics(ctx context.Context, conn *kafka.Conn, topics []string) error {
	deadline := time.Now().Add(topicWaitTimeout)
	for {
		partitions, err := conn.ReadPartitions()
		if err != nil {
			return fmt.Errorf("failed to read partitions: %w", err)
		}
		visible := make(map[string]bool, len(partitions))
		for _, p := range partitions {
			visible[p.Topic] = true
		}

		missing := ""
		for _, topic := range topics {
			if !visible[topic] {
				missing = topic
				break
			}
		}
		if missing == "" {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("topic %s not visible after creation", missing)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}
