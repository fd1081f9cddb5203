package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mahirjain10/texture-workers/config"
)

// ─── CONNECTION AND CHANNEL MANAGEMENT ────────────────────────────────────

func NewRabbitMQClient(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

func NewChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	if conn == nil || conn.IsClosed() {
		return nil, fmt.Errorf("failed to open channel: connection closed")
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return ch, nil
}

// ─── QUEUE OPERATIONS ─────────────────────────────────────────────────────

func NewQueue(ch *amqp.Channel, queueName string) (*amqp.Queue, error) {
	queue, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}
	return &queue, nil
}

func NewQueueConsumer(ch *amqp.Channel, queueName string) (<-chan amqp.Delivery, error) {
	// One unacked job per consumer: map generation is CPU bound.
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}
	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume: %w", err)
	}
	return msgs, nil
}

// DeclareStatusTopology declares the status exchange and binds the status
// queue to it.
func DeclareStatusTopology(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		config.StatusExchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("error while declaring an exchange: %w", err)
	}
	if _, err := NewQueue(ch, config.StatusQueue); err != nil {
		return err
	}
	if err := ch.QueueBind(config.StatusQueue, config.StatusRoutingKey, config.StatusExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind status queue: %w", err)
	}
	return nil
}
